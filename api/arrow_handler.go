package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	harrow "github.com/VanDung-dev/HieraTime-Engine/arrow"
	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
	"github.com/VanDung-dev/HieraTime-Engine/engine"
)

// ArrowHandler decodes compute requests, runs them on the executor and
// encodes the results. It is shared by every transport.
type ArrowHandler struct {
	codec    *harrow.IPCCodec
	executor *engine.Executor
	metrics  *Metrics
	logger   *zap.Logger
	opts     []temporal.Option
}

// NewArrowHandler creates a new ArrowHandler. metrics and logger may be nil.
func NewArrowHandler(codec *harrow.IPCCodec, executor *engine.Executor, metrics *Metrics, logger *zap.Logger, opts ...temporal.Option) *ArrowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArrowHandler{
		codec:    codec,
		executor: executor,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// ProcessBatch parses the input bytes as a request IPC stream, evaluates it
// and returns the result IPC stream.
func (h *ArrowHandler) ProcessBatch(ctx context.Context, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: received empty data", harrow.ErrMalformedRequest)
	}

	req, err := h.codec.DecodeRequest(data)
	if err != nil {
		return nil, err
	}
	defer req.Release()

	if !req.Op.Valid() {
		return nil, fmt.Errorf("%w: %q", temporal.ErrUnknownOp, req.Op)
	}

	start := time.Now()
	result, err := h.executor.Run(ctx, req.Op, req.LHS, req.RHS, h.opts...)
	elapsed := time.Since(start)

	h.recordKernel(req.Op, req.Rows(), elapsed, err)
	if err != nil {
		return nil, err
	}
	defer result.Release()

	h.logger.Debug("processed batch",
		zap.String("op", string(req.Op)),
		zap.Int("rows", result.Len()),
		zap.Int("nulls", result.NullN()),
		zap.Duration("elapsed", elapsed),
	)

	out, err := h.codec.EncodeResult(req.Op, result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return out, nil
}

// Handle evaluates one request and always returns a status-prefixed
// response payload.
func (h *ArrowHandler) Handle(ctx context.Context, transport string, data []byte) []byte {
	start := time.Now()

	out, err := h.ProcessBatch(ctx, data)
	status := StatusLabelOK
	var resp []byte
	if err != nil {
		status = ErrorCodeFor(err)
		resp = ErrorResponsePayload(status, err.Error())

		fields := []zap.Field{zap.String("transport", transport), zap.String("code", status), zap.Error(err)}
		if status == temporal.CodeInternal && !errors.Is(err, context.Canceled) {
			h.logger.Error("request failed", fields...)
		} else {
			h.logger.Debug("request rejected", fields...)
		}
	} else {
		resp = OKResponse(out)
	}

	if h.metrics != nil {
		h.metrics.RecordRequest(transport, status, time.Since(start))
	}
	return resp
}

func (h *ArrowHandler) recordKernel(op temporal.Op, rows int, elapsed time.Duration, err error) {
	if h.metrics == nil {
		return
	}
	status := StatusLabelOK
	if err != nil {
		status = ErrorCodeFor(err)
	}
	h.metrics.RecordKernel(string(op), status, rows, elapsed)
	if pool := h.executor.Pool(); pool != nil {
		h.metrics.UpdateWorkerPool(pool.GetStats())
	}
}
