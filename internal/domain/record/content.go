package record

import "strings"

// Field is one labelled line of searchable content.
type Field struct {
	Label    string
	Value    string
	Required bool
}

// Required builds a field that is always emitted.
func Required(label, value string) Field {
	return Field{Label: label, Value: value, Required: true}
}

// Optional builds a field that is emitted only when it has a non-blank value.
func Optional(label, value string) Field {
	return Field{Label: label, Value: value}
}

// FormatForSearch renders the canonical content used both for embedding and as
// retrieved context. Field order comes from the record and must not change:
// re-embedded vectors are only comparable to older ones if the text is identical.
func FormatForSearch(r Record) string {
	fields := r.Fields()
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		if !f.Required && strings.TrimSpace(f.Value) == "" {
			continue
		}
		lines = append(lines, f.Label+": "+f.Value)
	}
	return strings.Join(lines, "\n")
}
