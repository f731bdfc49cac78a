package synthesis

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sohailshk/SEC-Filings-QA-Agent/engine/domain"
)

// DefaultSystemPrompt frames the model as a filings analyst and demands
// citations so answers stay traceable to retrieved text.
const DefaultSystemPrompt = `You are a financial analyst assistant answering questions about SEC filings.
Answer using ONLY the excerpts below. Cite the sources you rely on by their
bracketed labels, e.g. [Source 1]. If the excerpts do not contain the answer,
say so plainly instead of guessing.`

// truncationMark is appended when a chunk is cut to fit its per-chunk cap.
const truncationMark = "…[truncated]"

// promptContext is the rendered context block plus the chunks that made it in.
type promptContext struct {
	text     string
	included []domain.Scored
}

// buildContext renders retrieved chunks into a budgeted context block.
// Chunks enter in rank order; each is capped at perChunk runes and the
// whole block at budget runes. A chunk that no longer fits whole is
// dropped along with everything ranked below it, so the context never
// contains a better-ranked gap.
func buildContext(hits []domain.Scored, perChunk, budget int) promptContext {
	var b strings.Builder
	var included []domain.Scored

	used := 0
	for _, h := range hits {
		text := h.Chunk.Text
		if runes := []rune(text); perChunk > 0 && len(runes) > perChunk {
			cut := perChunk - len([]rune(truncationMark))
			if cut < 0 {
				cut = 0
			}
			text = string(runes[:cut]) + truncationMark
		}
		block := fmt.Sprintf("[Source %d - %s]\n%s\n\n", len(included)+1, h.SourceRef(), text)
		size := utf8.RuneCountInString(block)
		if budget > 0 && used+size > budget {
			break
		}
		b.WriteString(block)
		used += size
		included = append(included, h)
	}
	return promptContext{text: strings.TrimRight(b.String(), "\n"), included: included}
}

// buildPrompt assembles the full generation prompt.
func buildPrompt(system, question string, pc promptContext) string {
	var b strings.Builder
	b.WriteString(system)
	b.WriteString("\n\nEXCERPTS:\n\n")
	b.WriteString(pc.text)
	b.WriteString("\n\nQUESTION: ")
	b.WriteString(question)
	b.WriteString("\n\nANSWER:")
	return b.String()
}
