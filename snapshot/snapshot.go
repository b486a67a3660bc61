package snapshot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/pierrec/lz4/v4"

	"github.com/jeezy05/researchmate/metadata"
)

// Magic identifies a snapshot blob.
var Magic = [4]byte{'R', 'M', 'S', '0'}

// Version is the current snapshot format version.
const Version uint8 = 1

const (
	headerSize = 8 // magic(4) + version(1) + flags(1) + reserved(2)
	footerSize = 4 // CRC32 over header + payload

	flagLZ4 uint8 = 1 << 0
)

// ErrInvalidFormat is returned when a blob is not a snapshot or uses an
// unsupported format version.
var ErrInvalidFormat = errors.New("invalid snapshot format")

// ErrChecksumMismatch is returned when the CRC32 footer does not match the
// blob contents.
var ErrChecksumMismatch = errors.New("snapshot checksum mismatch")

// Record is one index entry as persisted in a snapshot.
type Record struct {
	ID       string
	Vector   []float32
	Content  string
	Metadata metadata.Document
	Seq      uint64
}

// Snapshot is a complete, consistent image of an index.
type Snapshot struct {
	// Dimension is the vector dimensionality, 0 for an empty index.
	Dimension int

	// LastSeq is the highest operation sequence number covered by this
	// snapshot. WAL entries with Seq <= LastSeq are already reflected here.
	LastSeq uint64

	// Records are the live entries in insertion order.
	Records []Record
}

// Options configures snapshot encoding.
type Options struct {
	// Compress enables lz4 frame compression of the payload.
	Compress bool

	// CompressionLevel selects the lz4 level when Compress is set.
	CompressionLevel lz4.CompressionLevel
}

// DefaultOptions contains default snapshot encoding settings.
var DefaultOptions = Options{
	Compress:         false,
	CompressionLevel: lz4.Fast,
}

// Encode serializes the snapshot into a self-verifying blob.
func Encode(snap *Snapshot, optFns ...func(o *Options)) ([]byte, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	payload, err := encodePayload(snap)
	if err != nil {
		return nil, err
	}

	var flags uint8
	if opts.Compress {
		flags |= flagLZ4

		var compressed bytes.Buffer
		zw := lz4.NewWriter(&compressed)
		if err := zw.Apply(lz4.CompressionLevelOption(opts.CompressionLevel)); err != nil {
			return nil, fmt.Errorf("failed to configure lz4 writer: %w", err)
		}
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("failed to compress snapshot: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("failed to finalize lz4 frame: %w", err)
		}
		payload = compressed.Bytes()
	}

	blob := make([]byte, 0, headerSize+len(payload)+footerSize)
	blob = append(blob, Magic[:]...)
	blob = append(blob, Version, flags, 0, 0)
	blob = append(blob, payload...)

	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[:], crc32.ChecksumIEEE(blob))
	blob = append(blob, footer[:]...)

	return blob, nil
}

// Decode parses and verifies a snapshot blob produced by Encode.
func Decode(blob []byte) (*Snapshot, error) {
	if len(blob) < headerSize+footerSize {
		return nil, fmt.Errorf("%w: blob too short (%d bytes)", ErrInvalidFormat, len(blob))
	}
	if !bytes.Equal(blob[:4], Magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidFormat)
	}
	if blob[4] != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, blob[4])
	}
	flags := blob[5]

	body := blob[:len(blob)-footerSize]
	want := binary.LittleEndian.Uint32(blob[len(blob)-footerSize:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return nil, fmt.Errorf("%w: expected 0x%08x, got 0x%08x", ErrChecksumMismatch, want, got)
	}

	payload := body[headerSize:]
	if flags&flagLZ4 != 0 {
		decompressed, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress snapshot: %w", err)
		}
		payload = decompressed
	}

	return decodePayload(payload)
}

// Payload layout, little-endian:
//
//	[Dimension:4][LastSeq:8][Count:4] then per record:
//	[Seq:8][IDLen:2][ID][Vector: Dimension*4][ContentLen:4][Content]
//	[MetaLen:4][Metadata binary]
func encodePayload(snap *Snapshot) ([]byte, error) {
	var buf bytes.Buffer

	var fixed [16]byte
	binary.LittleEndian.PutUint32(fixed[0:4], uint32(snap.Dimension))
	binary.LittleEndian.PutUint64(fixed[4:12], snap.LastSeq)
	binary.LittleEndian.PutUint32(fixed[12:16], uint32(len(snap.Records)))
	buf.Write(fixed[:])

	for i := range snap.Records {
		rec := &snap.Records[i]
		if len(rec.Vector) != snap.Dimension {
			return nil, fmt.Errorf("record %s has dimension %d, snapshot has %d", rec.ID, len(rec.Vector), snap.Dimension)
		}
		if len(rec.ID) > math.MaxUint16 {
			return nil, fmt.Errorf("record id too long: %d bytes", len(rec.ID))
		}

		var seq [8]byte
		binary.LittleEndian.PutUint64(seq[:], rec.Seq)
		buf.Write(seq[:])

		var idLen [2]byte
		binary.LittleEndian.PutUint16(idLen[:], uint16(len(rec.ID)))
		buf.Write(idLen[:])
		buf.WriteString(rec.ID)

		var f32 [4]byte
		for _, v := range rec.Vector {
			binary.LittleEndian.PutUint32(f32[:], math.Float32bits(v))
			buf.Write(f32[:])
		}

		var contentLen [4]byte
		binary.LittleEndian.PutUint32(contentLen[:], uint32(len(rec.Content)))
		buf.Write(contentLen[:])
		buf.WriteString(rec.Content)

		var meta []byte
		if len(rec.Metadata) > 0 {
			var err error
			meta, err = rec.Metadata.MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("failed to encode metadata for record %s: %w", rec.ID, err)
			}
		}
		var metaLen [4]byte
		binary.LittleEndian.PutUint32(metaLen[:], uint32(len(meta)))
		buf.Write(metaLen[:])
		buf.Write(meta)
	}

	return buf.Bytes(), nil
}

func decodePayload(payload []byte) (*Snapshot, error) {
	if len(payload) < 16 {
		return nil, fmt.Errorf("%w: payload too short", ErrInvalidFormat)
	}
	dim := int(binary.LittleEndian.Uint32(payload[0:4]))
	lastSeq := binary.LittleEndian.Uint64(payload[4:12])
	count := int(binary.LittleEndian.Uint32(payload[12:16]))
	pos := 16

	// Each record needs at least its fixed-size fields.
	if minSize := count * (8 + 2 + dim*4 + 4 + 4); minSize < 0 || len(payload)-pos < minSize {
		return nil, fmt.Errorf("%w: record count %d exceeds payload", ErrInvalidFormat, count)
	}

	snap := &Snapshot{
		Dimension: dim,
		LastSeq:   lastSeq,
		Records:   make([]Record, 0, count),
	}

	for i := 0; i < count; i++ {
		if pos+10 > len(payload) {
			return nil, fmt.Errorf("%w: record %d truncated", ErrInvalidFormat, i)
		}
		seq := binary.LittleEndian.Uint64(payload[pos : pos+8])
		idLen := int(binary.LittleEndian.Uint16(payload[pos+8 : pos+10]))
		pos += 10

		if pos+idLen+dim*4 > len(payload) {
			return nil, fmt.Errorf("%w: record %d truncated", ErrInvalidFormat, i)
		}
		id := string(payload[pos : pos+idLen])
		pos += idLen

		vec := make([]float32, dim)
		for j := 0; j < dim; j++ {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(payload[pos : pos+4]))
			pos += 4
		}

		if pos+4 > len(payload) {
			return nil, fmt.Errorf("%w: record %d truncated", ErrInvalidFormat, i)
		}
		contentLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
		pos += 4
		if pos+contentLen > len(payload) {
			return nil, fmt.Errorf("%w: record %d truncated", ErrInvalidFormat, i)
		}
		content := string(payload[pos : pos+contentLen])
		pos += contentLen

		if pos+4 > len(payload) {
			return nil, fmt.Errorf("%w: record %d truncated", ErrInvalidFormat, i)
		}
		metaLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
		pos += 4
		if pos+metaLen > len(payload) {
			return nil, fmt.Errorf("%w: record %d truncated", ErrInvalidFormat, i)
		}
		var meta metadata.Document
		if metaLen > 0 {
			if err := meta.UnmarshalBinary(payload[pos : pos+metaLen]); err != nil {
				return nil, fmt.Errorf("failed to decode metadata for record %s: %w", id, err)
			}
		}
		pos += metaLen

		snap.Records = append(snap.Records, Record{
			ID:       id,
			Vector:   vec,
			Content:  content,
			Metadata: meta,
			Seq:      seq,
		})
	}

	if pos != len(payload) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFormat, len(payload)-pos)
	}

	return snap, nil
}
