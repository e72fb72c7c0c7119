// internal/ingest/ingest.go

// Package ingest turns uploaded files into stored chunks and manages the
// documents already in the store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/mwiater/examrag/internal/docstore"
	"github.com/mwiater/examrag/internal/logging"
)

// ErrEmptyDocument reports a file that produced no text or no chunks.
var ErrEmptyDocument = errors.New("document produced no text")

// Store is the document store surface used for ingestion.
type Store interface {
	Available() bool
	Reinitialize(ctx context.Context) error
	Insert(ctx context.Context, chunks []docstore.Chunk) error
	DeleteByFilename(ctx context.Context, filename string) (int, error)
	ListFilenames(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (docstore.Stats, error)
}

// Result reports the outcome of adding one document.
type Result struct {
	Filename    string `json:"filename"`
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ChunksAdded int    `json:"chunks_added"`
	Err         error  `json:"-"`
}

// BatchResult collects per-file results.
type BatchResult struct {
	Results   []Result `json:"results"`
	Succeeded int      `json:"succeeded"`
}

// DeleteResult reports the outcome of removing a document.
type DeleteResult struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// Stats describes the store for display.
type Stats struct {
	TotalDocuments int    `json:"total_documents"`
	TotalChunks    int    `json:"total_chunks"`
	Available      bool   `json:"available"`
	Error          string `json:"error,omitempty"`
}

// File is a named document body.
type File struct {
	Name string
	Data []byte
}

// Ingester is the single writer for document changes.
type Ingester struct {
	store    Store
	splitter *Splitter
	mu       sync.Mutex
}

// New returns an Ingester splitting text into chunkSize runes with
// chunkOverlap runes of overlap.
func New(store Store, chunkSize, chunkOverlap int) *Ingester {
	return &Ingester{store: store, splitter: NewSplitter(chunkSize, chunkOverlap)}
}

// ensureAvailable gives an unavailable store one reinitialize.
func (in *Ingester) ensureAvailable(ctx context.Context) bool {
	if in.store.Available() {
		return true
	}
	logging.LogEvent("document store not available; attempting to reinitialize")
	if err := in.store.Reinitialize(ctx); err != nil {
		logging.LogEvent("could not reinitialize document store: %v", err)
		return false
	}
	return true
}

// Chunks extracts, cleans and splits data into chunks for filename.
func (in *Ingester) Chunks(filename string, data []byte) ([]docstore.Chunk, error) {
	raw, err := Extract(filename, data)
	if err != nil {
		return nil, err
	}
	text := CleanText(raw)
	if text == "" {
		return nil, ErrEmptyDocument
	}
	pieces := in.splitter.Split(text)
	if len(pieces) == 0 {
		return nil, ErrEmptyDocument
	}
	chunks := make([]docstore.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = docstore.Chunk{
			ID:   fmt.Sprintf("%s_%d", filename, i+1),
			Text: p.Text,
			Metadata: docstore.Metadata{
				Filename:    filename,
				Source:      filename,
				StartOffset: p.StartOffset,
			},
		}
	}
	return chunks, nil
}

// AddDocument ingests one file. All of its chunks are stored or none are.
func (in *Ingester) AddDocument(ctx context.Context, filename string, data []byte) Result {
	in.mu.Lock()
	defer in.mu.Unlock()

	res := Result{Filename: filename}
	fail := func(msg string, err error) Result {
		res.Message, res.Err = msg, err
		logging.LogEvent("add %s failed: %s", filename, msg)
		return res
	}

	if !in.ensureAvailable(ctx) {
		return fail("Vector store is not available and could not be reinitialized. Please check the database connection.", docstore.ErrStoreUnavailable)
	}

	existing, err := in.store.ListFilenames(ctx)
	if err != nil {
		return fail(fmt.Sprintf("Error processing document: %v", err), err)
	}
	for _, name := range existing {
		if name == filename {
			return fail(duplicateMessage(filename), &docstore.DuplicateFilenameError{Filename: filename})
		}
	}

	chunks, err := in.Chunks(filename, data)
	switch {
	case errors.Is(err, ErrEmptyDocument):
		return fail("Failed to create chunks from the document.", err)
	case err != nil:
		return fail(fmt.Sprintf("Error processing document: %v", err), err)
	}

	if err := in.store.Insert(ctx, chunks); err != nil {
		var dup *docstore.DuplicateFilenameError
		if errors.As(err, &dup) {
			return fail(duplicateMessage(filename), err)
		}
		return fail(fmt.Sprintf("Error processing document: %v", err), err)
	}

	logging.LogEvent("added %d chunks for %s", len(chunks), filename)
	res.Success = true
	res.ChunksAdded = len(chunks)
	res.Message = fmt.Sprintf("Successfully added '%s' to vector store.", filename)
	return res
}

func duplicateMessage(filename string) string {
	return fmt.Sprintf("Document '%s' already exists in the vector store. Please delete it first or use a different name.", filename)
}

// AddFile reads path from disk and ingests it under its base name.
func (in *Ingester) AddFile(ctx context.Context, path string) Result {
	name := filepath.Base(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{Filename: name, Message: fmt.Sprintf("Error reading file: %v", err), Err: err}
	}
	return in.AddDocument(ctx, name, data)
}

// AddBatch ingests files one by one. A failing file never stops the rest.
func (in *Ingester) AddBatch(ctx context.Context, files []File) BatchResult {
	out := BatchResult{Results: make([]Result, 0, len(files))}
	for _, f := range files {
		res := in.AddDocument(ctx, f.Name, f.Data)
		if res.Success {
			out.Succeeded++
		}
		out.Results = append(out.Results, res)
	}
	return out
}

// DeleteDocument removes every chunk of filename.
func (in *Ingester) DeleteDocument(ctx context.Context, filename string) DeleteResult {
	in.mu.Lock()
	defer in.mu.Unlock()

	if !in.store.Available() {
		return DeleteResult{Message: "Vector store is not available."}
	}
	n, err := in.store.DeleteByFilename(ctx, filename)
	if err != nil {
		logging.LogEvent("delete %s failed: %v", filename, err)
		return DeleteResult{Message: fmt.Sprintf("Error deleting document: %v", err)}
	}
	if n == 0 {
		return DeleteResult{Message: fmt.Sprintf("No document found with filename: '%s'", filename)}
	}
	logging.LogEvent("deleted %d chunks for %s", n, filename)
	return DeleteResult{
		Success:       true,
		Message:       fmt.Sprintf("Successfully deleted '%s' and all its %d chunks.", filename, n),
		ChunksDeleted: n,
	}
}

// ListDocuments returns the stored filenames, or an empty list when the
// store cannot be reached.
func (in *Ingester) ListDocuments(ctx context.Context) []string {
	if !in.ensureAvailable(ctx) {
		return []string{}
	}
	names, err := in.store.ListFilenames(ctx)
	if err != nil {
		logging.LogEvent("error listing documents: %v", err)
		return []string{}
	}
	return names
}

// Stats reports document and chunk counts.
func (in *Ingester) Stats(ctx context.Context) Stats {
	if !in.ensureAvailable(ctx) {
		return Stats{Error: "Vector store unavailable and could not be reinitialized"}
	}
	st, err := in.store.Stats(ctx)
	if err != nil {
		logging.LogEvent("error getting document stats: %v", err)
		return Stats{Error: err.Error()}
	}
	return Stats{TotalDocuments: st.TotalDocuments, TotalChunks: st.TotalChunks, Available: true}
}
