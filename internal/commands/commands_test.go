// internal/commands/commands_test.go
package examrag

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/examrag/cli"
)

func writeDoc(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDocsCommandsLifecycle(t *testing.T) {
	configPath := setupCommandEnv(t, "")
	docs := t.TempDir()
	writeDoc(t, docs, "dates.txt", "JEE Main is conducted in two sessions, January and April.")
	writeDoc(t, docs, "notes.bin", "ignored")

	out, err := execute(t, "--config", configPath, "docs", "add", docs)
	if err != nil {
		t.Fatalf("docs add: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Successfully added 'dates.txt' to vector store.") || !strings.Contains(out, "1 of 1 documents added") {
		t.Fatalf("unexpected add output: %s", out)
	}

	out, err = execute(t, "--config", configPath, "docs", "add", filepath.Join(docs, "dates.txt"))
	if err == nil || !strings.Contains(out, "already exists") {
		t.Fatalf("expected duplicate failure, got err=%v out=%s", err, out)
	}

	out, err = execute(t, "--config", configPath, "docs", "list")
	if err != nil || !strings.Contains(out, "dates.txt") {
		t.Fatalf("docs list: err=%v out=%s", err, out)
	}

	out, err = execute(t, "--config", configPath, "docs", "stats")
	if err != nil || !strings.Contains(out, "Documents: 1") || !strings.Contains(out, "Chunks:    1") {
		t.Fatalf("docs stats: err=%v out=%s", err, out)
	}

	if out, err = execute(t, "--config", configPath, "docs", "delete", "dates.txt"); err != nil {
		t.Fatalf("docs delete: %v\n%s", err, out)
	}
	if _, err = execute(t, "--config", configPath, "docs", "delete", "dates.txt"); err == nil {
		t.Fatalf("expected deleting a missing document to fail")
	}

	out, err = execute(t, "--config", configPath, "docs", "list")
	if err != nil || !strings.Contains(out, "No documents indexed.") {
		t.Fatalf("docs list after delete: err=%v out=%s", err, out)
	}
}

func TestAskStreamsAnswerWithSources(t *testing.T) {
	configPath := setupCommandEnv(t, "")
	docs := t.TempDir()
	writeDoc(t, docs, "pattern.md", "JEE Main has two sessions every year.")

	if out, err := execute(t, "--config", configPath, "docs", "add", docs); err != nil {
		t.Fatalf("docs add: %v\n%s", err, out)
	}

	out, err := execute(t, "--config", configPath, "ask", "--sources", "how", "many", "sessions?")
	_ = askCmd.Flags().Set("sources", "false")
	if err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}
	for _, want := range []string{"Answer from context.", "standalone query: How many JEE Main sessions are held? (English)", "source: pattern.md_1"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}

	history, err := os.ReadFile(GetConfig().ChatHistoryFile)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if !strings.Contains(string(history), "Answer from context.") {
		t.Fatalf("expected answer in transcript, got %s", history)
	}
}

func TestAskInDebugTracesStagesToLogFile(t *testing.T) {
	configPath := setupCommandEnv(t, `, "debug": true`)

	if out, err := execute(t, "--config", configPath, "ask", "what is the syllabus?"); err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}

	logged, err := os.ReadFile(GetConfig().LogFilePath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	for _, want := range []string{`"Name":"chain.process"`, `"Name":"chain.reformulate"`, `"Name":"chain.retrieve"`, `"Name":"chain.generate"`} {
		if !strings.Contains(string(logged), want) {
			t.Fatalf("expected span %s in log, got: %s", want, logged)
		}
	}
}

func TestAskWithEmptyStoreStillGenerates(t *testing.T) {
	configPath := setupCommandEnv(t, "")

	out, err := execute(t, "--config", configPath, "ask", "what is the syllabus?")
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if !strings.Contains(out, "Answer from context.") {
		t.Fatalf("expected the generator to still answer, got %s", out)
	}
}

func TestRagPreviewShowsContext(t *testing.T) {
	configPath := setupCommandEnv(t, "")
	docs := t.TempDir()
	writeDoc(t, docs, "eligibility.txt", "Candidates must have passed class 12.")
	if out, err := execute(t, "--config", configPath, "docs", "add", docs); err != nil {
		t.Fatalf("docs add: %v\n%s", err, out)
	}

	out, err := execute(t, "--config", configPath, "rag", "preview", "--search", "similarity", "eligibility")
	_ = ragPreviewCmd.Flags().Set("search", "")
	if err != nil {
		t.Fatalf("rag preview: %v\n%s", err, out)
	}
	for _, want := range []string{"[RAG] search: similarity", "[RAG] chunks: 1", "id=eligibility.txt_1", "Source: eligibility.txt"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
}

func TestChatCmdStartsGUIWithSession(t *testing.T) {
	configPath := setupCommandEnv(t, `, "provider": "ollama", "chatModel": "llama3"`)

	originalStartGUI := startGUI
	defer func() { startGUI = originalStartGUI }()

	var got cli.Info
	var gotSession cli.Session
	startGUI = func(ctx context.Context, sess cli.Session, lib cli.Library, info cli.Info) error {
		gotSession, got = sess, info
		if lib == nil {
			t.Error("expected a document library")
		}
		return nil
	}

	if out, err := execute(t, "--config", configPath, "chat"); err != nil {
		t.Fatalf("chat: %v\n%s", err, out)
	}
	if gotSession == nil || gotSession.ChatID() == "" {
		t.Fatal("expected startGUI to receive a session with a chat id")
	}
	if got.Provider != "ollama" || got.Model != "llama3" || got.Search != "mmr" {
		t.Fatalf("unexpected header info: %+v", got)
	}
}

func TestListCommands(t *testing.T) {
	configPath := setupCommandEnv(t, "")

	out, err := execute(t, "--config", configPath, "list", "commands")
	if err != nil {
		t.Fatalf("list commands: %v", err)
	}
	for _, want := range []string{"Commands and Subcommands:", "examrag docs add", "examrag rag preview", "examrag serve"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
	if strings.Contains(out, "completion") {
		t.Fatalf("completion should be filtered: %s", out)
	}
}

func TestShowMetricsAfterAsk(t *testing.T) {
	configPath := setupCommandEnv(t, `, "chatModel": "gpt-test", "embeddingModel": "embed-test"`)

	out, err := execute(t, "--config", configPath, "show", "metrics")
	if err != nil || !strings.Contains(out, "No metrics recorded") {
		t.Fatalf("expected empty metrics, err=%v out=%s", err, out)
	}

	if out, err := execute(t, "--config", configPath, "ask", "when is the exam?"); err != nil {
		t.Fatalf("ask: %v\n%s", err, out)
	}

	out, err = execute(t, "--config", configPath, "show", "metrics")
	if err != nil {
		t.Fatalf("show metrics: %v", err)
	}
	// One reformulation and one answer; the query embedding for retrieval.
	for _, want := range []string{"gpt-test", "chat requests: 2", "embed-test", "embeddings:    1 calls"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got: %s", want, out)
		}
	}
}
