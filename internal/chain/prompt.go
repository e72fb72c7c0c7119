// internal/chain/prompt.go
package chain

import (
	"fmt"
	"strings"

	"github.com/mwiater/examrag/internal/docstore"
	"github.com/mwiater/examrag/internal/memory"
	"github.com/mwiater/examrag/internal/providers"
)

// User-facing fallback messages. Internal causes are only logged.
const (
	UnavailableMessage = "RAG system is currently unavailable. Please ensure documents are loaded and try again."
	RetrievalMessage   = "Error retrieving documents. Please try again."
	ProcessingMessage  = "Error processing your query. Please try again."
	NoContextMessage   = "No specific JEE information found for this query. Please try rephrasing your question or ask about JEE syllabus, exam pattern, dates or preparation."
)

// DefaultSystemPrompt is the assistant policy used when none is configured.
const DefaultSystemPrompt = `You are an AI Customer Support Agent for an EdTech platform specializing in JEE (Joint Entrance Examination) preparation. Your role is to help students with JEE-related queries using the provided knowledge base.
Core Instructions:
- Answer ONLY JEE-related queries (syllabus, paper pattern, exam dates, weightage topics, preparation strategies, eligibility, attempts, etc.)
- Use retrieval-augmented responses by citing sources from the knowledge base separately in a new line.
- Provide accurate, helpful information to support student preparation
- Basic greetings and polite interactions are acceptable
- Do not answer queries outside JEE.

Query Scope - REJECT:
- Non-JEE academic topics
- Personal advice unrelated to JEE
- Technical support for platform issues
- General homework help outside JEE scope
- Non-educational conversations

Response Format:
- Provide clear, concise answers
- Always cite sources from knowledge base when available
- If information is not in the knowledge base, clearly state limitations
- For out-of-scope queries, politely redirect to JEE-related topics.

Language: Give the answer in the same language as the question, but always use English for citations.`

// FormatContext renders retrieved chunks as "Source: <filename>\n<text>"
// blocks separated by a blank line.
func FormatContext(results []docstore.Result) string {
	if len(results) == 0 {
		return NoContextMessage
	}
	parts := make([]string, 0, len(results))
	for _, r := range results {
		name := r.Chunk.Metadata.Filename
		if name == "" {
			name = "Unknown Document"
		}
		parts = append(parts, fmt.Sprintf("Source: %s\n%s", name, r.Chunk.Text))
	}
	return strings.Join(parts, "\n\n")
}

// BuildMessages assembles the generation prompt after the system policy:
// the context, the whole memory window, then the current question.
func BuildMessages(contextText string, history []memory.Turn, question, language string) []providers.ChatMessage {
	msgs := make([]providers.ChatMessage, 0, 2+2*len(history))
	msgs = append(msgs, providers.ChatMessage{
		Role:    providers.RoleUser,
		Content: "use this information to answer queries: \n" + contextText,
	})
	for _, turn := range history {
		msgs = append(msgs,
			providers.ChatMessage{Role: providers.RoleUser, Content: turn.Input},
			providers.ChatMessage{Role: providers.RoleAssistant, Content: turn.Output},
		)
	}
	msgs = append(msgs, providers.ChatMessage{
		Role:    providers.RoleUser,
		Content: fmt.Sprintf("Current question: %s \n Language in which response should be: %s", question, language),
	})
	return msgs
}
