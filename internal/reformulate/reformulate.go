// internal/reformulate/reformulate.go

// Package reformulate turns a follow-up question into a standalone English
// query and reports the language the user wrote in.
package reformulate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/mwiater/examrag/internal/logging"
	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/providers"
)

// Query is the structured reformulation result.
type Query struct {
	Query    string `json:"query"`
	Language string `json:"language"`
}

// ReformulationError wraps any failure to obtain a valid Query.
type ReformulationError struct {
	Query string
	Err   error
}

func (e *ReformulationError) Error() string {
	return fmt.Sprintf("reformulate %q: %v", e.Query, e.Err)
}

func (e *ReformulationError) Unwrap() error { return e.Err }

const instructions = `You rewrite user questions for a document search system.
ALWAYS return the query in English. Steps:
1. Detect the input language.
2. If the input is not English, translate it to English first.
3. Then reformulate it as a standalone query using the conversation context.
4. If no relevant history exists, return the current query (translated if required and grammar-corrected).
The final query MUST be in English regardless of the input language.
Set "language" to the detected language of the original input by name (e.g. English, Spanish, Hindi, Bengali). Read the whole sentence carefully before deciding.`

// Schema is the response format sent to the backend. OpenAI strict mode
// rejects keywords such as minLength, so it only names types and fields.
var Schema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"query":    map[string]any{"type": "string"},
		"language": map[string]any{"type": "string"},
	},
	"required":             []any{"query", "language"},
	"additionalProperties": false,
}

// replySchema is what the reply is validated against locally.
var replySchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"query":    map[string]any{"type": "string", "minLength": 1},
		"language": map[string]any{"type": "string", "minLength": 1},
	},
	"required":             []any{"query", "language"},
	"additionalProperties": false,
}

// Reformulator issues one structured completion per query.
type Reformulator struct {
	provider    providers.ChatProvider
	model       string
	temperature float64
}

// New returns a Reformulator using model on provider.
func New(provider providers.ChatProvider, model string, temperature float64) *Reformulator {
	return &Reformulator{provider: provider, model: model, temperature: temperature}
}

// Reformulate rewrites query using the recent turns as context. There is
// no retry; every failure is a *ReformulationError.
func (r *Reformulator) Reformulate(ctx context.Context, query string, recent []memory.Turn) (Query, error) {
	fail := func(err error) (Query, error) {
		return Query{}, &ReformulationError{Query: query, Err: err}
	}
	if r.provider == nil {
		return fail(errors.New("no chat provider configured"))
	}

	req := providers.StreamRequest{
		Model:        r.model,
		SystemPrompt: instructions,
		Messages:     []providers.ChatMessage{{Role: providers.RoleUser, Content: BuildInput(query, recent)}},
		Temperature:  r.temperature,
		Schema:       &providers.ResponseSchema{Name: "standalone_query", Schema: Schema},
	}
	raw, _, err := providers.Collect(ctx, r.provider, req)
	if err != nil {
		return fail(err)
	}

	doc := []byte(stripFences(raw))
	if err := validate(doc); err != nil {
		return fail(err)
	}
	var out Query
	if err := json.Unmarshal(doc, &out); err != nil {
		return fail(fmt.Errorf("decode reply: %w", err))
	}
	out.Query = strings.TrimSpace(out.Query)
	out.Language = strings.TrimSpace(out.Language)
	if out.Query == "" || out.Language == "" {
		return fail(errors.New("reply has blank fields"))
	}
	logging.LogDebug("reformulated %q -> %q (%s)", query, out.Query, out.Language)
	return out, nil
}

// BuildInput renders the user message: the history as alternating human/ai
// lines followed by the current query. History is left out when no
// complete exchange exists.
func BuildInput(query string, recent []memory.Turn) string {
	var b strings.Builder
	if len(recent) > 0 {
		b.WriteString("Conversation history:\n")
		for i, turn := range recent {
			if i > 0 {
				b.WriteString("\n")
			}
			fmt.Fprintf(&b, "human: %s\nai: %s", turn.Input, turn.Output)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Current query: ")
	b.WriteString(query)
	return b.String()
}

func validate(doc []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewGoLoader(replySchema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("reply failed validation: %s", strings.Join(details, "; "))
}

// stripFences removes a ```json fence some models wrap around structured output.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
