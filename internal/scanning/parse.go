package scanning

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// rowsSchema accepts any array; items that are not triples or objects are dropped later
var rowsSchema = jsonschema.MustCompileString("mem://tablescan/rows.json", `{
	"type": "array"
}`)

// errNotArray stands in for the schema error, whose message carries the schema URL
var errNotArray = errors.New("expected a JSON array of rows")

var leadingNumber = regexp.MustCompile(`^[+-]?(\d+([.,]\d*)?|[.,]\d+)([eE][+-]?\d+)?`)

// ParseError reports extracted text that is not a usable row array
type ParseError struct {
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("error parsing AI response: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// ExtractRows locates the payload text in a response envelope and parses it into rows
func ExtractRows(body []byte) ([]Row, error) {
	text, ok := envelopeText(DecodeEnvelope(body))
	if !ok {
		slog.Error("Could not find data in response structure", "body", string(body))
		return nil, ErrUnrecognizedEnvelope
	}

	rows, err := parseRows(text)
	if err != nil {
		slog.Error("Failed to parse response text", "text", text, "error", err)
		return nil, err
	}
	return rows, nil
}

// stripFence removes a surrounding markdown code block if the model added one
func stripFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

// parseRows decodes the model's JSON array into rows
func parseRows(text string) ([]Row, error) {
	text = stripFence(text)

	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, &ParseError{Text: text, Err: fmt.Errorf("unmarshaling json: %w", err)}
	}
	if dec.More() {
		return nil, &ParseError{Text: text, Err: fmt.Errorf("unexpected data after JSON value")}
	}

	if err := rowsSchema.Validate(payload); err != nil {
		slog.Debug("Row payload failed validation", "error", err)
		return nil, &ParseError{Text: text, Err: fmt.Errorf("validating rows: %w", errNotArray)}
	}

	items := payload.([]any)
	rows := make([]Row, 0, len(items))
	for i, item := range items {
		row, ok := rowFromItem(item)
		if !ok {
			slog.Debug("Dropping row without product code", "index", i, "item", item)
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// rowFromItem maps one array item to a Row. Items without a string code are rejected.
func rowFromItem(item any) (Row, bool) {
	var code, desc, value any

	switch v := item.(type) {
	case []any:
		if len(v) > 0 {
			code = v[0]
		}
		if len(v) > 1 {
			desc = v[1]
		}
		if len(v) > 2 {
			value = v[2]
		}
	case map[string]any:
		code = firstKey(v, "codice", "code")
		desc = firstKey(v, "descrizione", "description")
		value = firstKey(v, "valore", "value")
	default:
		return Row{}, false
	}

	c, ok := code.(string)
	if !ok || strings.TrimSpace(c) == "" {
		return Row{}, false
	}

	return Row{
		Code:        c,
		Description: cellText(desc),
		Value:       coerceValue(c, value),
	}, true
}

func firstKey(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// cellText renders a scalar the way it would appear in a table cell
func cellText(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(t); err != nil {
			return ""
		}
		return strings.TrimSpace(buf.String())
	}
}

// coerceValue turns the model's value cell into a number.
// Strings are read up to the first non-numeric character and a comma is
// accepted as decimal separator. Anything unreadable counts as zero.
func coerceValue(code string, v any) float64 {
	switch t := v.(type) {
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
	case string:
		if f, ok := parseNumber(t); ok {
			return f
		}
	}
	slog.Warn("Non-numeric value, using 0", "code", code, "value", v)
	return 0
}

func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f, true
	}

	m := leadingNumber.FindString(s)
	if m == "" {
		return 0, false
	}
	if !strings.Contains(m, ".") {
		m = strings.Replace(m, ",", ".", 1)
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
