// Package arrow provides Arrow IPC serialization for zero-copy data transfer.
package arrow

import (
	"bytes"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Compression names accepted by NewIPCCodec.
const (
	CompressionNone = "none"
	CompressionLZ4  = "lz4"
	CompressionZstd = "zstd"
)

// IPCCodec reads and writes Arrow record batches as IPC streams.
type IPCCodec struct {
	allocator   memory.Allocator
	compression string
}

// NewIPCCodec creates a codec. An empty compression means none.
func NewIPCCodec(mem memory.Allocator, compression string) (*IPCCodec, error) {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	switch compression {
	case "", CompressionNone:
		compression = CompressionNone
	case CompressionLZ4, CompressionZstd:
	default:
		return nil, fmt.Errorf("unsupported IPC compression %q", compression)
	}
	return &IPCCodec{
		allocator:   mem,
		compression: compression,
	}, nil
}

// Allocator returns the allocator used for decoded records.
func (c *IPCCodec) Allocator() memory.Allocator {
	return c.allocator
}

func (c *IPCCodec) writerOptions(schema *arrow.Schema) []ipc.Option {
	opts := []ipc.Option{ipc.WithSchema(schema), ipc.WithAllocator(c.allocator)}
	switch c.compression {
	case CompressionLZ4:
		opts = append(opts, ipc.WithLZ4())
	case CompressionZstd:
		opts = append(opts, ipc.WithZstd())
	}
	return opts
}

// SerializeToIPC serializes an Arrow Record to IPC bytes.
func (c *IPCCodec) SerializeToIPC(record arrow.Record) ([]byte, error) {
	return c.SerializeMultipleToIPC([]arrow.Record{record})
}

// DeserializeFromIPC deserializes the first record of an IPC stream. The
// caller owns the returned record.
func (c *IPCCodec) DeserializeFromIPC(data []byte) (arrow.Record, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if reader.Err() != nil {
			return nil, reader.Err()
		}
		return nil, fmt.Errorf("no records in IPC data")
	}

	record := reader.Record()
	record.Retain() // the reader releases its reference on Next/Release

	return record, nil
}

// SerializeMultipleToIPC serializes records sharing one schema.
func (c *IPCCodec) SerializeMultipleToIPC(records []arrow.Record) ([]byte, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to serialize")
	}

	var buf bytes.Buffer
	writer := ipc.NewWriter(&buf, c.writerOptions(records[0].Schema())...)
	defer writer.Close()

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

// WriteIPCFile writes records sharing one schema to w in the Arrow IPC
// file format, which carries a footer for random access.
func (c *IPCCodec) WriteIPCFile(w io.Writer, records []arrow.Record) error {
	if len(records) == 0 {
		return fmt.Errorf("no records to write")
	}

	writer, err := ipc.NewFileWriter(w, c.writerOptions(records[0].Schema())...)
	if err != nil {
		return fmt.Errorf("failed to create file writer: %w", err)
	}

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			writer.Close()
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close file writer: %w", err)
	}
	return nil
}

// ReadIPCFile reads every record of an Arrow IPC file. The caller owns the
// returned records.
func (c *IPCCodec) ReadIPCFile(r ipc.ReadAtSeeker) ([]arrow.Record, error) {
	reader, err := ipc.NewFileReader(r, ipc.WithAllocator(c.allocator))
	if err != nil {
		return nil, fmt.Errorf("failed to open IPC file: %w", err)
	}
	defer reader.Close()

	records := make([]arrow.Record, 0, reader.NumRecords())
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.RecordBatchAt(i)
		if err != nil {
			for _, r := range records {
				r.Release()
			}
			return nil, fmt.Errorf("failed to read record %d: %w", i, err)
		}
		records = append(records, record)
	}

	return records, nil
}
