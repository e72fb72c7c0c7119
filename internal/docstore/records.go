// internal/docstore/records.go
package docstore

import (
	"bytes"
	"encoding/binary"
	"time"
)

// chunkRecord is the persisted form of a Chunk.
type chunkRecord struct {
	ID          string `gorm:"primaryKey"`
	Filename    string `gorm:"index"`
	Source      string
	StartOffset int
	Text        string
	Embedding   []byte
	CreatedAt   time.Time
}

func (chunkRecord) TableName() string { return "chunks" }

func toRecord(c Chunk) chunkRecord {
	return chunkRecord{
		ID:          c.ID,
		Filename:    c.Metadata.Filename,
		Source:      c.Metadata.Source,
		StartOffset: c.Metadata.StartOffset,
		Text:        c.Text,
		Embedding:   floatsToBytes(c.Embedding),
	}
}

func (r chunkRecord) chunk() Chunk {
	return Chunk{
		ID:        r.ID,
		Text:      r.Text,
		Embedding: bytesToFloats(r.Embedding),
		Metadata: Metadata{
			Filename:    r.Filename,
			Source:      r.Source,
			StartOffset: r.StartOffset,
		},
	}
}

// floatsToBytes encodes v as little-endian float32 values.
func floatsToBytes(v []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func bytesToFloats(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	_ = binary.Read(bytes.NewReader(b[:len(out)*4]), binary.LittleEndian, &out)
	return out
}
