// internal/ingest/ingest_test.go
package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/mwiater/examrag/internal/docstore"
)

type constEmbedder struct{}

func (constEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{float32(len(text)), 1, 0}, nil
}

func newIngester(t *testing.T, chunkSize, overlap int) (*Ingester, *docstore.Store) {
	t.Helper()
	store := docstore.New(filepath.Join(t.TempDir(), "vectordb"), constEmbedder{})
	require.NoError(t, store.Open(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return New(store, chunkSize, overlap), store
}

const syllabus = `JEE Main Physics syllabus:
Mechanics, thermodynamics and optics.

JEE Main Chemistry syllabus:
Physical, organic and inorganic chemistry.`

func TestAddDocument(t *testing.T) {
	ctx := context.Background()
	in, _ := newIngester(t, 40, 10)

	res := in.AddDocument(ctx, "syllabus.txt", []byte(syllabus))
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "Successfully added 'syllabus.txt' to vector store.", res.Message)
	assert.Greater(t, res.ChunksAdded, 1)

	chunks, err := in.Chunks("syllabus.txt", []byte(syllabus))
	require.NoError(t, err)
	assert.Equal(t, "syllabus.txt_1", chunks[0].ID)
	assert.Equal(t, "syllabus.txt", chunks[0].Metadata.Source)
	assert.Equal(t, 0, chunks[0].Metadata.StartOffset)
	for _, c := range chunks {
		assert.NotContains(t, c.Text, "\n")
		assert.LessOrEqual(t, len([]rune(c.Text)), 40)
	}

	stats := in.Stats(ctx)
	assert.Equal(t, Stats{TotalDocuments: 1, TotalChunks: res.ChunksAdded, Available: true}, stats)
	assert.Equal(t, []string{"syllabus.txt"}, in.ListDocuments(ctx))
}

func TestAddDocumentDuplicate(t *testing.T) {
	ctx := context.Background()
	in, _ := newIngester(t, 1200, 400)
	require.True(t, in.AddDocument(ctx, "a.md", []byte("JEE dates")).Success)

	res := in.AddDocument(ctx, "a.md", []byte("other text"))
	assert.False(t, res.Success)
	assert.Equal(t, "Document 'a.md' already exists in the vector store. Please delete it first or use a different name.", res.Message)
	assert.Zero(t, res.ChunksAdded)
	var dup *docstore.DuplicateFilenameError
	assert.ErrorAs(t, res.Err, &dup)
}

func TestAddDocumentEmptyAndUnsupported(t *testing.T) {
	ctx := context.Background()
	in, _ := newIngester(t, 1200, 400)

	empty := in.AddDocument(ctx, "blank.txt", []byte(" \n\n\t "))
	assert.False(t, empty.Success)
	assert.Equal(t, "Failed to create chunks from the document.", empty.Message)
	assert.ErrorIs(t, empty.Err, ErrEmptyDocument)

	bad := in.AddDocument(ctx, "slides.pptx", []byte("x"))
	assert.False(t, bad.Success)
	assert.ErrorIs(t, bad.Err, ErrUnsupportedType)

	assert.Equal(t, 0, in.Stats(ctx).TotalChunks)
}

func TestAddBatchContinuesAfterFailure(t *testing.T) {
	in, _ := newIngester(t, 1200, 400)
	batch := in.AddBatch(context.Background(), []File{
		{Name: "one.txt", Data: []byte("first")},
		{Name: "two.txt", Data: []byte("")},
		{Name: "three.md", Data: []byte("third")},
	})
	assert.Equal(t, 2, batch.Succeeded)
	require.Len(t, batch.Results, 3)
	assert.False(t, batch.Results[1].Success)
	assert.True(t, batch.Results[2].Success)
}

func TestDeleteDocument(t *testing.T) {
	ctx := context.Background()
	in, _ := newIngester(t, 1200, 400)
	require.True(t, in.AddDocument(ctx, "a.txt", []byte("JEE Advanced eligibility")).Success)

	res := in.DeleteDocument(ctx, "a.txt")
	assert.Equal(t, DeleteResult{Success: true, Message: "Successfully deleted 'a.txt' and all its 1 chunks.", ChunksDeleted: 1}, res)

	missing := in.DeleteDocument(ctx, "a.txt")
	assert.Equal(t, DeleteResult{Message: "No document found with filename: 'a.txt'"}, missing)
}

func TestUnavailableStore(t *testing.T) {
	ctx := context.Background()
	store := docstore.New(t.TempDir(), constEmbedder{}, docstore.WithOpener(func(string) (*gorm.DB, error) {
		return nil, errors.New("locked")
	}))
	in := New(store, 1200, 400)

	res := in.AddDocument(ctx, "a.txt", []byte("text"))
	assert.False(t, res.Success)
	assert.Equal(t, "Vector store is not available and could not be reinitialized. Please check the database connection.", res.Message)
	assert.ErrorIs(t, res.Err, docstore.ErrStoreUnavailable)

	assert.Equal(t, Stats{Error: "Vector store unavailable and could not be reinitialized"}, in.Stats(ctx))
	assert.Empty(t, in.ListDocuments(ctx))
	assert.Equal(t, "Vector store is not available.", in.DeleteDocument(ctx, "a.txt").Message)
}

func TestStatsReinitializesOnce(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vectordb")
	store := docstore.New(dir, constEmbedder{})
	in := New(store, 1200, 400)

	// The store was never opened; the first call loads it.
	st := in.Stats(ctx)
	assert.True(t, st.Available)
	assert.Equal(t, docstore.Ready, store.State())
	t.Cleanup(func() { _ = store.Close() })
}

func TestExtract(t *testing.T) {
	html := `<html><head><title>T</title><script>var x=1;</script></head>
<body><main><h1>JEE Main</h1><p>Held in January and April.</p><ul><li>Paper 1</li></ul></main></body></html>`
	text, err := Extract("dates.HTML", []byte(html))
	require.NoError(t, err)
	assert.Equal(t, "JEE Main\nHeld in January and April.\nPaper 1", text)

	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Subject"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Weightage"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "Physics"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 33))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	text, err = Extract("weightage.xlsx", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "Subject | Weightage\nPhysics | 33", text)

	_, err = Extract("broken.pdf", []byte("not a pdf"))
	assert.Error(t, err)

	_, err = Extract("bad.txt", []byte{0xff, 0xfe, 0xfd})
	assert.Error(t, err)

	assert.True(t, Supported("notes.MD"))
	assert.False(t, Supported("image.png"))
}

func TestWatchIngestsNewFiles(t *testing.T) {
	in, _ := newIngester(t, 1200, 400)
	dir := t.TempDir()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := make(chan Result, 4)
	errc := make(chan error, 1)
	go func() { errc <- in.Watch(ctx, dir, func(r Result) { results <- r }) }()

	// Give the watcher time to register.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "dates.txt"), []byte("JEE Main session 1 in January."), 0o644))

	select {
	case res := <-results:
		assert.Equal(t, "dates.txt", res.Filename)
		assert.True(t, res.Success, res.Message)
	case <-ctx.Done():
		t.Fatal("timed out waiting for watched file to be ingested")
	}
	cancel()
	assert.NoError(t, <-errc)
	assert.True(t, strings.HasSuffix(in.ListDocuments(context.Background())[0], ".txt"))
}
