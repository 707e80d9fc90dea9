package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Summary represents the structured extraction the backend produces for an
// uploaded paper. Every field is optional; fields the backend did not fill
// are empty and are omitted from rendering. Keys outside the known set are
// preserved verbatim in Extra so nothing the summarizer emits is dropped.
type Summary struct {
	Title            string
	Authors          string
	Abstract         string
	ProblemStatement string
	Methodology      string
	KeyResults       string
	Conclusion       string

	// Extra holds summary keys beyond the fixed schema.
	Extra map[string]any
}

// SummarySection is a labeled block of summary text ready for rendering.
type SummarySection struct {
	Label string
	Text  string
}

var summaryKeys = []string{
	"title",
	"authors",
	"abstract",
	"problem_statement",
	"methodology",
	"key_results",
	"conclusion",
}

// IsZero reports whether the summary carries no content at all.
func (s Summary) IsZero() bool {
	return s.Title == "" && s.Authors == "" && s.Abstract == "" &&
		s.ProblemStatement == "" && s.Methodology == "" &&
		s.KeyResults == "" && s.Conclusion == "" && len(s.Extra) == 0
}

// Sections returns the present summary fields in a stable display order,
// followed by any extra keys sorted by name. Absent fields are omitted.
func (s Summary) Sections() []SummarySection {
	var out []SummarySection
	add := func(label, text string) {
		if text != "" {
			out = append(out, SummarySection{Label: label, Text: text})
		}
	}
	add("Abstract", s.Abstract)
	add("Problem Statement", s.ProblemStatement)
	add("Methodology", s.Methodology)
	add("Key Results", s.KeyResults)
	add("Conclusion", s.Conclusion)

	extraKeys := make([]string, 0, len(s.Extra))
	for k := range s.Extra {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		add(displayLabel(k), fmt.Sprintf("%v", s.Extra[k]))
	}
	return out
}

// Greeting renders the summary as the assistant's opening transcript entry
// for a freshly uploaded paper.
func (s Summary) Greeting() string {
	var sb strings.Builder
	sb.WriteString("I've read through the paper")
	if s.Title != "" {
		sb.WriteString(fmt.Sprintf(" **%s**", s.Title))
	}
	if s.Authors != "" {
		sb.WriteString(fmt.Sprintf(" by %s", s.Authors))
	}
	sb.WriteString(". Here's what it covers:\n")
	for _, sec := range s.Sections() {
		sb.WriteString(fmt.Sprintf("\n**%s**  \n%s\n", sec.Label, sec.Text))
	}
	sb.WriteString("\nAsk me anything about it.")
	return sb.String()
}

// UnmarshalJSON splits the backend's open-ended summary object into the
// fixed fields and the Extra residue.
func (s *Summary) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*s = Summary{}
	fields := map[string]*string{
		"title":             &s.Title,
		"authors":           &s.Authors,
		"abstract":          &s.Abstract,
		"problem_statement": &s.ProblemStatement,
		"methodology":       &s.Methodology,
		"key_results":       &s.KeyResults,
		"conclusion":        &s.Conclusion,
	}
	for key, dst := range fields {
		v, ok := raw[key]
		if !ok {
			continue
		}
		*dst = stringify(v)
		delete(raw, key)
	}
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

// MarshalJSON writes the summary back as a flat object, restoring the
// residual keys next to the fixed ones.
func (s Summary) MarshalJSON() ([]byte, error) {
	raw := make(map[string]any, len(summaryKeys)+len(s.Extra))
	values := []string{
		s.Title, s.Authors, s.Abstract, s.ProblemStatement,
		s.Methodology, s.KeyResults, s.Conclusion,
	}
	for i, key := range summaryKeys {
		if values[i] != "" {
			raw[key] = values[i]
		}
	}
	for k, v := range s.Extra {
		raw[k] = v
	}
	return json.Marshal(raw)
}

// stringify flattens the loose value shapes summarizers produce for a text
// field. Lists (e.g. authors) are joined with commas.
func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []any:
		parts := make([]string, 0, len(t))
		for _, e := range t {
			parts = append(parts, stringify(e))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}

func displayLabel(key string) string {
	words := strings.Split(strings.ReplaceAll(key, "_", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
