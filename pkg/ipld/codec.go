package ipld

import (
	"bytes"
	"encoding/binary"
	"math"

	varint "github.com/multiformats/go-varint"
)

// Canonical binary encoding: a minimal, deterministic, type-tagged format.
// Every constructible Go representation of a given logical value encodes
// to exactly one byte sequence — map keys are always written in sorted
// order and there is exactly one way to encode each scalar. This is the
// property canonicalize.JCS gives the teacher's compliance artifacts
// (sorted keys, no ambiguity); we get it here directly at the binary
// level instead of going through JSON, since the data model needs a
// first-class bytes variant and a first-class link variant that JSON
// text can't carry natively.
const (
	tagNull   byte = 0
	tagFalse  byte = 1
	tagTrue   byte = 2
	tagInt    byte = 3
	tagFloat  byte = 4
	tagBytes  byte = 5
	tagString byte = 6
	tagList   byte = 7
	tagMap    byte = 8
	tagLink   byte = 9
)

// Encode produces the canonical binary encoding of v. Encoding is
// infallible for any Value built from the constructors/accessors in this
// package; ErrShapeMismatch is only possible if a caller hand-builds an
// unsupported Go type and passes it in directly.
func Encode(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeInto(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeInto(buf *bytes.Buffer, v Value) error {
	switch t := v.(type) {
	case nil:
		buf.WriteByte(tagNull)
	case bool:
		if t {
			buf.WriteByte(tagTrue)
		} else {
			buf.WriteByte(tagFalse)
		}
	case int64:
		buf.WriteByte(tagInt)
		writeVarint(buf, zigzag(t))
	case int:
		return encodeInto(buf, int64(t))
	case float64:
		buf.WriteByte(tagFloat)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(t))
		buf.Write(b[:])
	case []byte:
		buf.WriteByte(tagBytes)
		writeVarint(buf, uint64(len(t)))
		buf.Write(t)
	case string:
		buf.WriteByte(tagString)
		writeVarint(buf, uint64(len(t)))
		buf.WriteString(t)
	case List:
		buf.WriteByte(tagList)
		writeVarint(buf, uint64(len(t)))
		for _, elem := range t {
			if err := encodeInto(buf, elem); err != nil {
				return err
			}
		}
	case []Value:
		return encodeInto(buf, List(t))
	case Map:
		buf.WriteByte(tagMap)
		keys := sortedKeys(t)
		writeVarint(buf, uint64(len(keys)))
		for _, k := range keys {
			writeVarint(buf, uint64(len(k)))
			buf.WriteString(k)
			if err := encodeInto(buf, t[k]); err != nil {
				return err
			}
		}
	case map[string]Value:
		return encodeInto(buf, Map(t))
	case Link:
		buf.WriteByte(tagLink)
		fb := t.Fingerprint.Bytes()
		writeVarint(buf, uint64(len(fb)))
		buf.Write(fb)
	default:
		return shapeMismatch("unencodable Go type " + typeName(v))
	}
	return nil
}

// Decode parses bytes produced by Encode back into a Value.
func Decode(b []byte) (Value, error) {
	r := bytes.NewReader(b)
	v, err := decodeFrom(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, invalidEncoding("trailing bytes after top-level value")
	}
	return v, nil
}

func decodeFrom(r *bytes.Reader) (Value, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, invalidEncoding("unexpected end of input reading tag")
	}
	switch tag {
	case tagNull:
		return nil, nil
	case tagFalse:
		return false, nil
	case tagTrue:
		return true, nil
	case tagInt:
		u, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		return unzigzag(u), nil
	case tagFloat:
		var b [8]byte
		if _, err := r.Read(b[:]); err != nil {
			return nil, invalidEncoding("truncated float")
		}
		return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
	case tagBytes:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return nil, invalidEncoding("truncated bytes")
		}
		return buf, nil
	case tagString:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return nil, invalidEncoding("truncated string")
		}
		return string(buf), nil
	case tagList:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		list := make(List, n)
		for i := range list {
			elem, err := decodeFrom(r)
			if err != nil {
				return nil, err
			}
			list[i] = elem
		}
		return list, nil
	case tagMap:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		m := make(Map, n)
		prevKey := ""
		for i := uint64(0); i < n; i++ {
			klen, err := readVarint(r)
			if err != nil {
				return nil, err
			}
			kbuf := make([]byte, klen)
			if _, err := readFull(r, kbuf); err != nil {
				return nil, invalidEncoding("truncated map key")
			}
			key := string(kbuf)
			if i > 0 && key <= prevKey {
				return nil, invalidEncoding("map keys not in canonical sorted order")
			}
			prevKey = key
			val, err := decodeFrom(r)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	case tagLink:
		n, err := readVarint(r)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, n)
		if _, err := readFull(r, buf); err != nil {
			return nil, invalidEncoding("truncated link")
		}
		fp, err := FingerprintFromBytes(buf)
		if err != nil {
			return nil, invalidEncoding("malformed link fingerprint: " + err.Error())
		}
		return Link{Fingerprint: fp}, nil
	default:
		return nil, invalidEncoding("unknown tag byte")
	}
}

func writeVarint(buf *bytes.Buffer, u uint64) {
	tmp := varint.ToUvarint(u)
	buf.Write(tmp)
}

func readVarint(r *bytes.Reader) (uint64, error) {
	u, err := varint.ReadUvarint(r)
	if err != nil {
		return 0, invalidEncoding("malformed varint")
	}
	return u, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
		if m == 0 {
			return n, invalidEncoding("short read")
		}
	}
	return n, nil
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(u uint64) int64 {
	return int64(u>>1) ^ -int64(u&1)
}
