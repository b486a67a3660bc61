package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"math"
)

// Entry stream format, little-endian. Each entry is a self-checking frame:
//
//	[FrameLen:4][CRC32:4][payload]
//
// Payload:
//
//	[Type:1][SeqNum:8][IDLen:2][ID:N]
//	for OpInsert additionally:
//	[VectorLen:4][Vector:N*4][ContentLen:4][Content:N][MetadataLen:4][Metadata:N]
//
// A torn write at the tail of the log shows up as a short frame or a CRC
// mismatch; replay stops there, losing at most the in-flight operation.

const maxFrameLen = 64 << 20 // sanity bound against corrupt length prefixes

func encodeEntry(entry *Entry) ([]byte, error) {
	if len(entry.ID) > math.MaxUint16 {
		return nil, fmt.Errorf("record id too long: %d bytes", len(entry.ID))
	}

	buf := make([]byte, 0, 64+4*len(entry.Vector)+len(entry.Content))
	buf = append(buf, byte(entry.Type))
	buf = binary.LittleEndian.AppendUint64(buf, entry.SeqNum)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entry.ID)))
	buf = append(buf, entry.ID...)

	if entry.Type == OpInsert {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entry.Vector)))
		for _, v := range entry.Vector {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}

		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(entry.Content)))
		buf = append(buf, entry.Content...)

		var metadataBytes []byte
		if entry.Metadata != nil {
			b, err := entry.Metadata.MarshalBinary()
			if err != nil {
				return nil, fmt.Errorf("failed to encode entry metadata: %w", err)
			}
			metadataBytes = b
		}
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(metadataBytes)))
		buf = append(buf, metadataBytes...)
	}

	frame := make([]byte, 8, 8+len(buf))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(buf)))
	binary.LittleEndian.PutUint32(frame[4:8], crc32.ChecksumIEEE(buf))
	return append(frame, buf...), nil
}

// decodeEntry reads the next frame. It returns io.EOF on a clean end of
// stream and io.ErrUnexpectedEOF or a CRC error on a torn tail.
func decodeEntry(r io.Reader, entry *Entry) error {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return io.EOF
		}
		return io.ErrUnexpectedEOF
	}

	frameLen := binary.LittleEndian.Uint32(header[0:4])
	if frameLen > maxFrameLen {
		return fmt.Errorf("WAL frame length %d exceeds limit", frameLen)
	}
	payload := make([]byte, frameLen)
	if _, err := io.ReadFull(r, payload); err != nil {
		return io.ErrUnexpectedEOF
	}

	if crc := crc32.ChecksumIEEE(payload); crc != binary.LittleEndian.Uint32(header[4:8]) {
		return fmt.Errorf("WAL frame checksum mismatch")
	}

	return decodePayload(payload, entry)
}

func decodePayload(payload []byte, entry *Entry) error {
	if len(payload) < 11 {
		return fmt.Errorf("WAL frame too short: %d bytes", len(payload))
	}
	entry.Type = OperationType(payload[0])
	entry.SeqNum = binary.LittleEndian.Uint64(payload[1:9])
	idLen := int(binary.LittleEndian.Uint16(payload[9:11]))
	pos := 11
	if pos+idLen > len(payload) {
		return fmt.Errorf("WAL frame truncated id")
	}
	entry.ID = string(payload[pos : pos+idLen])
	pos += idLen

	entry.Vector = nil
	entry.Content = ""
	entry.Metadata = nil
	if entry.Type != OpInsert {
		return nil
	}

	if pos+4 > len(payload) {
		return fmt.Errorf("WAL frame truncated vector length")
	}
	vecLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4
	if pos+vecLen*4 > len(payload) {
		return fmt.Errorf("WAL frame truncated vector")
	}
	entry.Vector = make([]float32, vecLen)
	for i := 0; i < vecLen; i++ {
		entry.Vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(payload[pos : pos+4]))
		pos += 4
	}

	if pos+4 > len(payload) {
		return fmt.Errorf("WAL frame truncated content length")
	}
	contentLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4
	if pos+contentLen > len(payload) {
		return fmt.Errorf("WAL frame truncated content")
	}
	entry.Content = string(payload[pos : pos+contentLen])
	pos += contentLen

	if pos+4 > len(payload) {
		return fmt.Errorf("WAL frame truncated metadata length")
	}
	metaLen := int(binary.LittleEndian.Uint32(payload[pos : pos+4]))
	pos += 4
	if pos+metaLen > len(payload) {
		return fmt.Errorf("WAL frame truncated metadata")
	}
	if metaLen > 0 {
		if err := entry.Metadata.UnmarshalBinary(payload[pos : pos+metaLen]); err != nil {
			return fmt.Errorf("failed to decode entry metadata: %w", err)
		}
	}

	return nil
}
