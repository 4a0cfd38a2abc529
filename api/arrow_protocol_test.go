package api

import (
	"bytes"
	"errors"
	"testing"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

func TestMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello arrow")

	if err := WriteMessage(&buf, payload); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	if buf.Len() != 4+len(payload) {
		t.Errorf("Expected %d bytes on the wire, got %d", 4+len(payload), buf.Len())
	}

	got, err := ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Expected %q, got %q", payload, got)
	}
}

func TestMessageLimit(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMessageLimit(&buf, make([]byte, 16), 8); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Expected ErrMessageTooLarge on write, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Expected nothing written, got %d bytes", buf.Len())
	}

	if err := WriteMessage(&buf, make([]byte, 16)); err != nil {
		t.Fatalf("WriteMessage failed: %v", err)
	}
	_, err := ReadMessageLimit(&buf, 8)
	if !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("Expected ErrMessageTooLarge on read, got %v", err)
	}
	var sizeErr *MessageSizeError
	if !errors.As(err, &sizeErr) || sizeErr.Size != 16 || sizeErr.Max != 8 {
		t.Errorf("Expected MessageSizeError{16, 8}, got %v", err)
	}
	if buf.Len() != 16 {
		t.Errorf("Expected the 16-byte body to stay unread, got %d bytes left", buf.Len())
	}
}

func TestReadMessageTruncated(t *testing.T) {
	buf := bytes.NewReader([]byte{0, 0, 0, 10, 'a', 'b'})
	if _, err := ReadMessage(buf); err == nil {
		t.Error("Expected error for truncated body")
	}
}

func TestParseResponse(t *testing.T) {
	body, err := ParseResponse(OKResponse([]byte{1, 2, 3}))
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	if !bytes.Equal(body, []byte{1, 2, 3}) {
		t.Errorf("Expected body [1 2 3], got %v", body)
	}

	_, err = ParseResponse(ErrorResponsePayload(temporal.CodeArithmeticOverflow, "boom"))
	var resp *ErrorResponse
	if !errors.As(err, &resp) {
		t.Fatalf("Expected *ErrorResponse, got %v", err)
	}
	if resp.Code != temporal.CodeArithmeticOverflow || resp.Message != "boom" {
		t.Errorf("Unexpected error response %+v", resp)
	}
	if !errors.Is(err, temporal.ErrArithmeticOverflow) {
		t.Error("Expected error to unwrap to ErrArithmeticOverflow")
	}

	for _, data := range [][]byte{nil, {7}, {StatusError, '{'}} {
		if _, err := ParseResponse(data); err == nil {
			t.Errorf("ParseResponse(%v): expected error", data)
		}
	}
}

func TestErrorCodeFor(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{harrow.ErrMalformedRequest, CodeBadRequest},
		{ErrMessageTooLarge, CodeBadRequest},
		{temporal.ErrUnitMismatch, temporal.CodeUnitMismatch},
		{temporal.ErrUnsupportedKind, temporal.CodeUnsupportedKind},
		{temporal.ErrLengthMismatch, temporal.CodeLengthMismatch},
		{temporal.ErrUnknownOp, temporal.CodeUnknownOp},
		{errors.New("other"), temporal.CodeInternal},
	}

	for _, tt := range tests {
		if got := ErrorCodeFor(tt.err); got != tt.want {
			t.Errorf("ErrorCodeFor(%v): expected %s, got %s", tt.err, tt.want, got)
		}
		resp := &ErrorResponse{Code: tt.want}
		if tt.want != temporal.CodeInternal && tt.err != ErrMessageTooLarge && !errors.Is(resp, tt.err) {
			t.Errorf("ErrorResponse %s does not unwrap to %v", tt.want, tt.err)
		}
	}
}

// FuzzReadMessage checks that arbitrary frames never panic the reader.
// Run with: go test -fuzz=FuzzReadMessage -fuzztime=30s ./api/
func FuzzReadMessage(f *testing.F) {
	f.Add([]byte{0, 0, 0, 1, 'x'})
	f.Add([]byte{0xff, 0xff, 0xff, 0xff})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = ReadMessageLimit(bytes.NewReader(data), 1024)
	})
}
