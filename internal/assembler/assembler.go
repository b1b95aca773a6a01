// Package assembler turns ranked retrieval results into the bounded context
// block handed to the generative model.
package assembler

import (
	"fmt"
	"strings"

	"memberqa/internal/domain"
)

// DefaultMaxContextChars bounds the assembled context size.
const DefaultMaxContextChars = 100000

const blockSeparator = "\n---\n"

// Assembler formats retrieved messages most-similar-first, one block per
// message. When the budget is exceeded it drops whole blocks from the
// low-similarity end; a retained message is never cut mid-text.
type Assembler struct {
	maxChars int
}

func New(maxChars int) *Assembler {
	if maxChars <= 0 {
		maxChars = DefaultMaxContextChars
	}
	return &Assembler{maxChars: maxChars}
}

// Assemble renders the context block. Exact-duplicate message texts are
// included once; no fuzzy deduplication is attempted.
func (a *Assembler) Assemble(results []domain.ScoredMessage) string {
	var sb strings.Builder
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		if _, dup := seen[r.Message.Text]; dup {
			continue
		}
		block := formatBlock(r.Message)
		cost := len(block)
		if sb.Len() > 0 {
			cost += len(blockSeparator)
		}
		// The most relevant message is always retained, budget or not.
		if sb.Len() > 0 && sb.Len()+cost > a.maxChars {
			break
		}
		seen[r.Message.Text] = struct{}{}
		if sb.Len() > 0 {
			sb.WriteString(blockSeparator)
		}
		sb.WriteString(block)
	}
	return sb.String()
}

func formatBlock(m domain.Message) string {
	if m.Timestamp == "" {
		return fmt.Sprintf("User: %s\nMessage: %s", m.Sender, m.Text)
	}
	return fmt.Sprintf("User: %s\nDate: %s\nMessage: %s", m.Sender, m.Timestamp, m.Text)
}
