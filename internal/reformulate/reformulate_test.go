// internal/reformulate/reformulate_test.go
package reformulate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/providers"
)

type scriptedProvider struct {
	reply string
	err   error
	last  providers.StreamRequest
}

func (p *scriptedProvider) Stream(ctx context.Context, req providers.StreamRequest, cb providers.StreamCallbacks) error {
	p.last = req
	if p.err != nil {
		return p.err
	}
	if err := cb.OnChunk(providers.ChatMessage{Role: providers.RoleAssistant, Content: p.reply}); err != nil {
		return err
	}
	return cb.OnComplete(providers.StreamMetadata{Done: true})
}

func (p *scriptedProvider) Close() error { return nil }

func TestReformulateFoldsHistory(t *testing.T) {
	p := &scriptedProvider{reply: `{"query":"What is the JEE Advanced 2025 exam date?","language":"English"}`}
	r := New(p, "gpt-test", 0.2)

	recent := []memory.Turn{{Input: "Tell me about JEE Advanced 2025", Output: "It is conducted by IIT Kanpur."}}
	q, err := r.Reformulate(context.Background(), "when is it?", recent)
	require.NoError(t, err)
	assert.Equal(t, Query{Query: "What is the JEE Advanced 2025 exam date?", Language: "English"}, q)

	require.True(t, p.last.DisableStreaming)
	require.NotNil(t, p.last.Schema)
	assert.Equal(t, "standalone_query", p.last.Schema.Name)
	require.Len(t, p.last.Messages, 1)
	assert.Equal(t,
		"Conversation history:\nhuman: Tell me about JEE Advanced 2025\nai: It is conducted by IIT Kanpur.\n\nCurrent query: when is it?",
		p.last.Messages[0].Content)
}

func TestSentSchemaLeavesLengthChecksLocal(t *testing.T) {
	p := &scriptedProvider{reply: `{"query":"","language":"English"}`}
	_, err := New(p, "m", 0).Reformulate(context.Background(), "dates?", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reply failed validation")

	props := p.last.Schema.Schema["properties"].(map[string]any)
	for name, raw := range props {
		field := raw.(map[string]any)
		assert.NotContains(t, field, "minLength", "field %s", name)
	}
}

func TestBuildInputWithoutHistory(t *testing.T) {
	assert.Equal(t, "Current query: syllabus?", BuildInput("syllabus?", nil))
	two := BuildInput("q", []memory.Turn{{Input: "a", Output: "b"}, {Input: "c", Output: "d"}})
	assert.Equal(t, "Conversation history:\nhuman: a\nai: b\nhuman: c\nai: d\n\nCurrent query: q", two)
}

func TestReformulateAcceptsFencedJSON(t *testing.T) {
	p := &scriptedProvider{reply: "```json\n{\"query\":\"What is the physics syllabus?\",\"language\":\"Hindi\"}\n```"}
	q, err := New(p, "m", 0).Reformulate(context.Background(), "physics ka syllabus kya hai?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hindi", q.Language)
}

func TestReformulateFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "provider error", err: &providers.ProviderError{Provider: "openai", Op: "chat", Err: errors.New("timeout")}},
		{name: "not json", reply: "sure! the query is physics"},
		{name: "missing language", reply: `{"query":"physics"}`},
		{name: "empty query", reply: `{"query":"","language":"English"}`},
		{name: "blank query", reply: `{"query":"   ","language":"English"}`},
		{name: "extra field", reply: `{"query":"q","language":"English","confidence":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &scriptedProvider{reply: tt.reply, err: tt.err}
			_, err := New(p, "m", 0).Reformulate(context.Background(), "original", nil)
			var rerr *ReformulationError
			require.ErrorAs(t, err, &rerr)
			assert.Equal(t, "original", rerr.Query)
			if tt.err != nil {
				assert.True(t, providers.IsProviderError(err))
			}
		})
	}
}
