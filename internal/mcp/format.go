package mcp

import (
	"fmt"
	"strings"

	"github.com/Aman-CERP/lockerindex/internal/engine"
)

// FormatHits renders search hits as markdown.
func FormatHits(query, docType string, hits []engine.Hit) string {
	scope := ""
	if docType != "" {
		scope = fmt.Sprintf(" in %s", docType)
	}

	if len(hits) == 0 {
		return fmt.Sprintf("No results found for \"%s\"%s", query, scope)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Search Results for \"%s\"%s\n\n", query, scope)
	fmt.Fprintf(&sb, "Found %d result", len(hits))
	if len(hits) != 1 {
		sb.WriteString("s")
	}
	sb.WriteString("\n\n")

	for i, h := range hits {
		fmt.Fprintf(&sb, "%d. `%s` (%s, score: %.2f)\n", i+1, h.ID, h.Type, h.Score)
	}
	return sb.String()
}

// toResults converts engine hits to the tool output shape.
func toResults(hits []engine.Hit) []SearchResultOutput {
	out := make([]SearchResultOutput, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResultOutput{ID: h.ID, Type: h.Type, Score: h.Score})
	}
	return out
}
