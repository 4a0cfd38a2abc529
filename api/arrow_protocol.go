package api

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/goccy/go-json"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// MaxMessageSize is the default maximum message size (50MB).
// This prevents DoS attacks via oversized messages.
const MaxMessageSize = 50 * 1024 * 1024 // 50MB

// ErrMessageTooLarge is returned when a message exceeds the size limit.
var ErrMessageTooLarge = errors.New("message size exceeds maximum allowed size")

// Response status bytes.
const (
	StatusOK    byte = 0
	StatusError byte = 1
)

// CodeBadRequest is reported for payloads that are not a valid request.
const CodeBadRequest = "BAD_REQUEST"

// ErrorResponse is the JSON body of a StatusError response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap maps the wire code back to the engine sentinel so clients can
// use errors.Is.
func (e *ErrorResponse) Unwrap() error {
	switch e.Code {
	case temporal.CodeUnitMismatch:
		return temporal.ErrUnitMismatch
	case temporal.CodeUnsupportedKind:
		return temporal.ErrUnsupportedKind
	case temporal.CodeArithmeticOverflow:
		return temporal.ErrArithmeticOverflow
	case temporal.CodeLengthMismatch:
		return temporal.ErrLengthMismatch
	case temporal.CodeUnknownOp:
		return temporal.ErrUnknownOp
	case CodeBadRequest:
		return harrow.ErrMalformedRequest
	}
	return nil
}

// ErrorCodeFor returns the wire code for an error raised while serving a
// request.
func ErrorCodeFor(err error) string {
	if errors.Is(err, harrow.ErrMalformedRequest) || errors.Is(err, ErrMessageTooLarge) {
		return CodeBadRequest
	}
	return temporal.ErrorCode(err)
}

// MessageSizeError reports an incoming frame whose declared length exceeds
// the limit. The body is still unread; Size bytes must be skipped to reach
// the next frame. It matches ErrMessageTooLarge with errors.Is.
type MessageSizeError struct {
	Size uint32
	Max  int
}

func (e *MessageSizeError) Error() string {
	return fmt.Sprintf("%v: %d bytes (max: %d)", ErrMessageTooLarge, e.Size, e.Max)
}

func (e *MessageSizeError) Unwrap() error {
	return ErrMessageTooLarge
}

// ReadMessage reads a length-prefixed message using MaxMessageSize.
func ReadMessage(r io.Reader) ([]byte, error) {
	return ReadMessageLimit(r, MaxMessageSize)
}

// ReadMessageLimit reads a length-prefixed message from the reader.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func ReadMessageLimit(r io.Reader, maxSize int) ([]byte, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}

	if uint64(length) > uint64(maxSize) {
		return nil, &MessageSizeError{Size: length, Max: maxSize}
	}

	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("failed to read message body: %w", err)
	}

	return buf, nil
}

// WriteMessage writes a length-prefixed message using MaxMessageSize.
func WriteMessage(w io.Writer, data []byte) error {
	return WriteMessageLimit(w, data, MaxMessageSize)
}

// WriteMessageLimit writes a length-prefixed message to the writer.
// Format: [4 bytes length (BigEndian)] [N bytes payload]
func WriteMessageLimit(w io.Writer, data []byte, maxSize int) error {
	if len(data) > math.MaxUint32 {
		return fmt.Errorf("%w: data length %d exceeds uint32 max", ErrMessageTooLarge, len(data))
	}

	if len(data) > maxSize {
		return fmt.Errorf("%w: %d bytes (max: %d)", ErrMessageTooLarge, len(data), maxSize)
	}

	length := uint32(len(data)) // #nosec G115 - bounds checked above
	if err := binary.Write(w, binary.BigEndian, length); err != nil {
		return fmt.Errorf("failed to write message length: %w", err)
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write message body: %w", err)
	}

	return nil
}

// OKResponse prefixes an IPC result stream with StatusOK.
func OKResponse(ipcData []byte) []byte {
	out := make([]byte, 0, len(ipcData)+1)
	out = append(out, StatusOK)
	return append(out, ipcData...)
}

// ErrorResponsePayload builds a StatusError response.
func ErrorResponsePayload(code, message string) []byte {
	body, err := json.Marshal(ErrorResponse{Code: code, Message: message})
	if err != nil {
		body = []byte(`{"code":"INTERNAL","message":"failed to encode error"}`)
	}
	return append([]byte{StatusError}, body...)
}

// ParseResponse splits a response into its IPC result stream, or returns
// the *ErrorResponse it carries.
func ParseResponse(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("empty response")
	}

	switch data[0] {
	case StatusOK:
		return data[1:], nil
	case StatusError:
		var resp ErrorResponse
		if err := json.Unmarshal(data[1:], &resp); err != nil {
			return nil, fmt.Errorf("failed to decode error response: %w", err)
		}
		return nil, &resp
	default:
		return nil, fmt.Errorf("unknown response status %d", data[0])
	}
}
