package metadata

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Binary document format, little-endian:
//
//	[EntryCount:4] then per entry (keys in sorted order):
//	[KeyLen:2][Key:N][Kind:1][payload]
//
// Payloads: KindInt/KindTime = 8 bytes, KindFloat = 8 bytes,
// KindBool = 1 byte, KindString = [Len:4][bytes], KindNull = none.

const maxDocumentEntries = 1 << 16

// MarshalBinary encodes the document in a deterministic binary form.
func (d Document) MarshalBinary() ([]byte, error) {
	if len(d) > maxDocumentEntries {
		return nil, fmt.Errorf("metadata document too large: %d entries", len(d))
	}

	buf := make([]byte, 4, 64)
	binary.LittleEndian.PutUint32(buf, uint32(len(d)))

	for _, k := range d.SortedKeys() {
		if len(k) > math.MaxUint16 {
			return nil, fmt.Errorf("metadata key too long: %d bytes", len(k))
		}
		var klen [2]byte
		binary.LittleEndian.PutUint16(klen[:], uint16(len(k)))
		buf = append(buf, klen[:]...)
		buf = append(buf, k...)

		v := d[k]
		buf = append(buf, byte(v.Kind))
		switch v.Kind {
		case KindNull:
		case KindInt, KindTime:
			var p [8]byte
			binary.LittleEndian.PutUint64(p[:], uint64(v.I64))
			buf = append(buf, p[:]...)
		case KindFloat:
			var p [8]byte
			binary.LittleEndian.PutUint64(p[:], math.Float64bits(v.F64))
			buf = append(buf, p[:]...)
		case KindBool:
			if v.B {
				buf = append(buf, 1)
			} else {
				buf = append(buf, 0)
			}
		case KindString:
			var p [4]byte
			binary.LittleEndian.PutUint32(p[:], uint32(len(v.S)))
			buf = append(buf, p[:]...)
			buf = append(buf, v.S...)
		default:
			return nil, fmt.Errorf("cannot encode metadata value of kind %d", v.Kind)
		}
	}

	return buf, nil
}

// UnmarshalBinary decodes a document previously encoded with MarshalBinary.
func (d *Document) UnmarshalBinary(data []byte) error {
	if len(data) < 4 {
		return fmt.Errorf("metadata document truncated: %d bytes", len(data))
	}
	count := binary.LittleEndian.Uint32(data[:4])
	if count > maxDocumentEntries {
		return fmt.Errorf("metadata document corrupt: %d entries", count)
	}
	pos := 4

	doc := make(Document, count)
	for i := uint32(0); i < count; i++ {
		if pos+2 > len(data) {
			return fmt.Errorf("metadata entry %d truncated", i)
		}
		klen := int(binary.LittleEndian.Uint16(data[pos : pos+2]))
		pos += 2
		if pos+klen+1 > len(data) {
			return fmt.Errorf("metadata entry %d truncated", i)
		}
		key := string(data[pos : pos+klen])
		pos += klen

		kind := Kind(data[pos])
		pos++

		var v Value
		switch kind {
		case KindNull:
			v = Null()
		case KindInt, KindTime:
			if pos+8 > len(data) {
				return fmt.Errorf("metadata entry %q truncated", key)
			}
			v = Value{Kind: kind, I64: int64(binary.LittleEndian.Uint64(data[pos : pos+8]))}
			pos += 8
		case KindFloat:
			if pos+8 > len(data) {
				return fmt.Errorf("metadata entry %q truncated", key)
			}
			v = Float(math.Float64frombits(binary.LittleEndian.Uint64(data[pos : pos+8])))
			pos += 8
		case KindBool:
			if pos+1 > len(data) {
				return fmt.Errorf("metadata entry %q truncated", key)
			}
			v = Bool(data[pos] == 1)
			pos++
		case KindString:
			if pos+4 > len(data) {
				return fmt.Errorf("metadata entry %q truncated", key)
			}
			slen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
			pos += 4
			if pos+slen > len(data) {
				return fmt.Errorf("metadata entry %q truncated", key)
			}
			v = String(string(data[pos : pos+slen]))
			pos += slen
		default:
			return fmt.Errorf("cannot decode metadata value of kind %d", kind)
		}
		doc[key] = v
	}

	*d = doc
	return nil
}
