package scanning

import (
	"encoding/json"
	"strings"
)

// buildPrompt assembles the extraction instruction for one page.
// Rows from earlier pages are included so the model can continue where it left off.
func buildPrompt(column, comment string, previous []Row) string {
	var b strings.Builder

	if len(previous) > 0 {
		triples := make([][]any, 0, len(previous))
		for _, r := range previous {
			triples = append(triples, []any{r.Code, r.Description, r.Value})
		}
		if data, err := json.Marshal(triples); err == nil {
			b.WriteString(" Previous data extracted: ")
			b.Write(data)
			b.WriteString(".")
		}
	}

	b.WriteString("Extract the table containing product data in JSON array format without headers and not in markdown.")
	if comment = strings.TrimSpace(comment); comment != "" {
		b.WriteString(" ")
		b.WriteString(comment)
		b.WriteString(".")
	}
	b.WriteString(` Extract data exactly as: ["product code", "description", value in column "`)
	b.WriteString(column)
	b.WriteString(`" as number]`)

	return b.String()
}
