package enrich

import (
	"fmt"
	"strings"

	"github.com/raglab/docuchat/internal/content"
)

// EnrichmentPrompt asks the model for a searchable description of one
// chunk. The response is schema-constrained, so the field layout here is
// documentation for the model, not a parsing contract.
const EnrichmentPrompt = `You are creating a searchable description for document content retrieval.

YOUR TASK:
Analyze the provided text, tables and images, and generate a description that covers:

1. Key facts, numbers, and data points from text and tables
2. Main topics and concepts discussed
3. Questions this content could answer
4. Visual content analysis (charts, diagrams, patterns in images)
5. Alternative search terms users might use

Make it detailed and searchable - prioritize findability over brevity.

Respond with these fields:
- "questions": all potential questions answerable from this content
- "summary": comprehensive summary of all data and information
- "image_verdicts": one entry per attached image, in order. Describe the image content in detail. If an image is irrelevant or purely decorative, the entry must state: ***DO NOT USE THIS IMAGE***
- "table_verdicts": one entry per table, in order. Describe the table content in detail. If a table is irrelevant, the entry must state: ***DO NOT USE THIS TABLE***`

// BuildPrompt assembles the full enrichment prompt for a chunk. Images
// travel as inline payloads, not text.
func BuildPrompt(chunk content.Chunk) string {
	var sb strings.Builder
	sb.WriteString(EnrichmentPrompt)
	sb.WriteString("\n\nCONTENT TO ANALYZE:\n\nTEXT CONTENT:\n")
	sb.WriteString(chunk.Text)
	sb.WriteString("\n")

	if len(chunk.Tables) > 0 {
		sb.WriteString("\nTABLES:\n")
		for i, table := range chunk.Tables {
			sb.WriteString(fmt.Sprintf("Table %d:\n%s\n\n", i+1, table))
		}
	}
	if len(chunk.Images) > 0 {
		sb.WriteString(fmt.Sprintf("\n%d image(s) are attached to this request, in order.\n", len(chunk.Images)))
	}
	return sb.String()
}
