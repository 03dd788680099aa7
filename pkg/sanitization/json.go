package sanitization

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// SanitizeJSON applies the property bag rules to a JSON document and returns
// it indented. Numbers are decoded exactly and re-encoded unchanged.
func SanitizeJSON(raw []byte) string {
	if len(bytes.TrimSpace(raw)) == 0 {
		return emptyMaskedValue
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var data any
	if err := dec.Decode(&data); err != nil {
		return fmt.Sprintf("(malformed JSON: %s)", err.Error())
	}

	out, err := json.MarshalIndent(sanitizeValue(data), "", "  ")
	if err != nil {
		return "(error marshaling sanitized JSON)"
	}
	return string(out)
}
