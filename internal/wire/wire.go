// Package wire holds helpers for the protobuf wire encoding
// that the node and commit codecs share.
// Encoders always emit fields in field-number order
// and repeated fields in a canonical order,
// so equal values encode to equal bytes.
package wire

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field is one decoded field.
// Bytes is set for length-delimited fields,
// Varint for varint fields.
type Field struct {
	Num    protowire.Number
	Type   protowire.Type
	Bytes  []byte
	Varint uint64
}

// Zigzag decodes a signed varint field.
func (f Field) Zigzag() int64 {
	return protowire.DecodeZigZag(f.Varint)
}

// Each calls f for each field in b, in order.
// Fields of other wire types are skipped.
func Each(b []byte, f func(Field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(protowire.ParseError(n), "parsing tag")
		}
		b = b[n:]

		fld := Field{Num: num, Type: typ}
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "parsing field %d", num)
			}
			fld.Bytes = v
			b = b[n:]

		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "parsing field %d", num)
			}
			fld.Varint = v
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(protowire.ParseError(n), "skipping field %d", num)
			}
			b = b[n:]
			continue
		}

		if err := f(fld); err != nil {
			return err
		}
	}
	return nil
}

// AppendBytes appends a length-delimited field.
func AppendBytes(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// AppendString appends a string field.
func AppendString(b []byte, num protowire.Number, v string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// AppendVarint appends a varint field.
func AppendVarint(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

// AppendZigzag appends a signed varint field.
func AppendZigzag(b []byte, num protowire.Number, v int64) []byte {
	return AppendVarint(b, num, protowire.EncodeZigZag(v))
}
