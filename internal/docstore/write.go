// internal/docstore/write.go
package docstore

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// SQLite caps bound parameters per statement, so id lookups and inserts
// are split.
const (
	idCheckBatch = 500
	insertBatch  = 100
)

// Insert stores chunks, embedding any that arrive without a vector. All
// chunks of one call are written in a single transaction: either every
// chunk lands or none does. A batch may not introduce a filename that is
// already stored, nor repeat or reuse an id.
func (s *Store) Insert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.Available() {
		return ErrStoreUnavailable
	}

	seen := make(map[string]struct{}, len(chunks))
	filenames := make(map[string]struct{})
	for _, c := range chunks {
		if _, dup := seen[c.ID]; dup {
			return &DuplicateIDError{ID: c.ID}
		}
		seen[c.ID] = struct{}{}
		filenames[c.Metadata.Filename] = struct{}{}
	}

	prepared := make([]Chunk, len(chunks))
	copy(prepared, chunks)
	for i := range prepared {
		if len(prepared[i].Embedding) > 0 {
			continue
		}
		if s.embedder == nil {
			return errors.New("insert: no embedder configured")
		}
		vec, err := s.embedder.Embed(ctx, prepared[i].Text)
		if err != nil {
			return fmt.Errorf("embed chunk %s: %w", prepared[i].ID, err)
		}
		prepared[i].Embedding = vec
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.handle()
	if err != nil {
		return err
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for name := range filenames {
			var count int64
			if err := tx.Model(&chunkRecord{}).Where("filename = ?", name).Count(&count).Error; err != nil {
				return fmt.Errorf("check filename: %w", err)
			}
			if count > 0 {
				return &DuplicateFilenameError{Filename: name}
			}
		}

		ids := make([]string, 0, len(prepared))
		for _, c := range prepared {
			ids = append(ids, c.ID)
		}
		for start := 0; start < len(ids); start += idCheckBatch {
			end := min(start+idCheckBatch, len(ids))
			var existing []string
			if err := tx.Model(&chunkRecord{}).Where("id IN ?", ids[start:end]).Limit(1).Pluck("id", &existing).Error; err != nil {
				return fmt.Errorf("check ids: %w", err)
			}
			if len(existing) > 0 {
				return &DuplicateIDError{ID: existing[0]}
			}
		}

		records := make([]chunkRecord, 0, len(prepared))
		for _, c := range prepared {
			records = append(records, toRecord(c))
		}
		if err := tx.CreateInBatches(&records, insertBatch).Error; err != nil {
			return fmt.Errorf("insert chunks: %w", err)
		}
		return nil
	})
}

// DeleteByFilename removes every chunk of filename and reports how many
// were removed. No match is not an error.
func (s *Store) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()
	db, err := s.handle()
	if err != nil {
		return 0, err
	}

	res := db.WithContext(ctx).Where("filename = ?", filename).Delete(&chunkRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete %s: %w", filename, res.Error)
	}
	return int(res.RowsAffected), nil
}
