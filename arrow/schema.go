package arrow

import (
	"errors"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/VanDung-dev/HieraTime-Engine/compute/temporal"
)

// Wire layout of compute requests and results.
const (
	// MetadataOpKey is the schema metadata key naming the operation.
	MetadataOpKey = "hieratime.op"

	ColumnLHS    = "lhs"
	ColumnRHS    = "rhs"
	ColumnResult = "result"
)

// ErrMalformedRequest is returned when a payload does not follow the
// request or result layout.
var ErrMalformedRequest = errors.New("malformed request")

// Request is a decoded compute request. A length-1 operand is broadcast
// against the other one.
type Request struct {
	Op  temporal.Op
	LHS arrow.Array
	RHS arrow.Array
}

// Rows returns the broadcast output length.
func (r *Request) Rows() int {
	n, err := temporal.BroadcastLen(r.LHS.Len(), r.RHS.Len())
	if err != nil {
		return 0
	}
	return n
}

// Release releases both operands.
func (r *Request) Release() {
	if r.LHS != nil {
		r.LHS.Release()
	}
	if r.RHS != nil {
		r.RHS.Release()
	}
}

// RequestSchema returns the schema of a request record.
//
// Fields:
//   - lhs: temporal operand (nullable)
//   - rhs: duration, interval or temporal operand (nullable)
func RequestSchema(op temporal.Op, lhs, rhs arrow.DataType) *arrow.Schema {
	md := arrow.NewMetadata([]string{MetadataOpKey}, []string{string(op)})
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: ColumnLHS, Type: lhs, Nullable: true},
			{Name: ColumnRHS, Type: rhs, Nullable: true},
		},
		&md,
	)
}

// ResultSchema returns the schema of a result record.
func ResultSchema(op temporal.Op, result arrow.DataType) *arrow.Schema {
	md := arrow.NewMetadata([]string{MetadataOpKey}, []string{string(op)})
	return arrow.NewSchema(
		[]arrow.Field{
			{Name: ColumnResult, Type: result, Nullable: true},
		},
		&md,
	)
}

// NewRequestRecord packs two operands into one record. Record columns share
// a length, so a length-1 operand facing a longer one is sent as a single
// run of a run-end encoded column and unpacked again by DecodeRequest.
func NewRequestRecord(mem memory.Allocator, op temporal.Op, lhs, rhs arrow.Array) (arrow.Record, error) {
	n, err := temporal.BroadcastLen(lhs.Len(), rhs.Len())
	if err != nil {
		return nil, err
	}

	lcol, err := broadcastColumn(mem, lhs, n)
	if err != nil {
		return nil, err
	}
	defer lcol.Release()

	rcol, err := broadcastColumn(mem, rhs, n)
	if err != nil {
		return nil, err
	}
	defer rcol.Release()

	schema := RequestSchema(op, lcol.DataType(), rcol.DataType())
	return array.NewRecord(schema, []arrow.Array{lcol, rcol}, int64(n)), nil
}

func broadcastColumn(mem memory.Allocator, arr arrow.Array, n int) (arrow.Array, error) {
	switch {
	case arr.Len() == n:
		arr.Retain()
		return arr, nil
	case n == 0:
		return array.NewSlice(arr, 0, 0), nil
	}

	bldr := array.NewInt32Builder(mem)
	defer bldr.Release()
	bldr.Append(int32(n))
	runEnds := bldr.NewArray()
	defer runEnds.Release()

	return array.NewRunEndEncodedArray(runEnds, arr, n, 0), nil
}

// unpackColumn undoes broadcastColumn. The returned array carries its own
// reference.
func unpackColumn(col arrow.Array) (arrow.Array, error) {
	ree, ok := col.(*array.RunEndEncoded)
	if !ok {
		col.Retain()
		return col, nil
	}
	values := ree.Values()
	if values.Len() != 1 {
		return nil, fmt.Errorf("%w: run-end encoded operand must hold a single run, got %d",
			ErrMalformedRequest, values.Len())
	}
	values.Retain()
	return values, nil
}

// OpFromSchema reads the operation name from schema metadata.
func OpFromSchema(schema *arrow.Schema) (temporal.Op, error) {
	md := schema.Metadata()
	idx := md.FindKey(MetadataOpKey)
	if idx < 0 {
		return "", fmt.Errorf("%w: missing %q metadata", ErrMalformedRequest, MetadataOpKey)
	}
	return temporal.Op(md.Values()[idx]), nil
}

// RequestFromRecord extracts a Request from a decoded record.
func RequestFromRecord(record arrow.Record) (*Request, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: record is nil", ErrMalformedRequest)
	}
	op, err := OpFromSchema(record.Schema())
	if err != nil {
		return nil, err
	}

	lhsIdx := record.Schema().FieldIndices(ColumnLHS)
	rhsIdx := record.Schema().FieldIndices(ColumnRHS)
	if record.NumCols() != 2 || len(lhsIdx) != 1 || len(rhsIdx) != 1 {
		return nil, fmt.Errorf("%w: expected columns %q and %q, got %s",
			ErrMalformedRequest, ColumnLHS, ColumnRHS, record.Schema())
	}

	lhs, err := unpackColumn(record.Column(lhsIdx[0]))
	if err != nil {
		return nil, err
	}
	rhs, err := unpackColumn(record.Column(rhsIdx[0]))
	if err != nil {
		lhs.Release()
		return nil, err
	}

	return &Request{Op: op, LHS: lhs, RHS: rhs}, nil
}

// EncodeRequest serializes a compute request to IPC bytes.
func (c *IPCCodec) EncodeRequest(op temporal.Op, lhs, rhs arrow.Array) ([]byte, error) {
	record, err := NewRequestRecord(c.allocator, op, lhs, rhs)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	return c.SerializeToIPC(record)
}

// DecodeRequest deserializes IPC bytes into a Request. The caller must
// Release it.
func (c *IPCCodec) DecodeRequest(data []byte) (*Request, error) {
	record, err := c.DeserializeFromIPC(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	defer record.Release()

	return RequestFromRecord(record)
}

// NewResultRecord wraps a result array in a single-column record tagged
// with op.
func NewResultRecord(op temporal.Op, result arrow.Array) arrow.Record {
	schema := ResultSchema(op, result.DataType())
	return array.NewRecord(schema, []arrow.Array{result}, int64(result.Len()))
}

// EncodeResult serializes a result array to IPC bytes.
func (c *IPCCodec) EncodeResult(op temporal.Op, result arrow.Array) ([]byte, error) {
	record := NewResultRecord(op, result)
	defer record.Release()

	return c.SerializeToIPC(record)
}

// DecodeResult deserializes IPC bytes into the result array. The caller
// must Release it.
func (c *IPCCodec) DecodeResult(data []byte) (arrow.Array, error) {
	record, err := c.DeserializeFromIPC(data)
	if err != nil {
		return nil, err
	}
	defer record.Release()

	if record.NumCols() != 1 {
		return nil, fmt.Errorf("%w: expected a single %q column, got %d",
			ErrMalformedRequest, ColumnResult, record.NumCols())
	}
	if err := ValidateSchema(record, ResultSchema("", record.Column(0).DataType())); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}

	result := record.Column(0)
	result.Retain()
	return result, nil
}

// ValidateSchema checks if a record matches the expected field names and
// types. Metadata is not compared.
func ValidateSchema(record arrow.Record, expected *arrow.Schema) error {
	if record == nil {
		return errors.New("record is nil")
	}

	actual := record.Schema()
	if actual.NumFields() != expected.NumFields() {
		return fmt.Errorf("field count mismatch: got %d, expected %d",
			actual.NumFields(), expected.NumFields())
	}

	for i := 0; i < actual.NumFields(); i++ {
		actualField := actual.Field(i)
		expectedField := expected.Field(i)

		if actualField.Name != expectedField.Name {
			return fmt.Errorf("field %d name mismatch: got %s, expected %s",
				i, actualField.Name, expectedField.Name)
		}

		if !arrow.TypeEqual(actualField.Type, expectedField.Type) {
			return fmt.Errorf("field %s type mismatch: got %s, expected %s",
				actualField.Name, actualField.Type, expectedField.Type)
		}
	}

	return nil
}
