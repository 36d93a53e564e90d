package digest

import (
	"encoding/json"
	"io"
	"time"
)

type jsonReport struct {
	Topic     string       `json:"topic"`
	Generator string       `json:"generator"`
	Sources   []jsonSource `json:"sources"`
}

type jsonSource struct {
	Source     string      `json:"source"`
	ProfileURL string      `json:"profile_url,omitempty"`
	Posts      []jsonEntry `json:"posts"`
	Found      int         `json:"found"`
	Unique     int         `json:"unique"`
	Duplicates int         `json:"duplicates"`
	Fetched    int         `json:"fetched"`
	Truncated  bool        `json:"truncated,omitempty"`
}

type jsonEntry struct {
	PostedAt string `json:"posted_at"`
	Text     string `json:"text"`
}

// JSONFormatter formats a report as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// Format writes the report as JSON to w.
func (f *JSONFormatter) Format(w io.Writer, r *Report, opts Options) error {
	active := r.Active()
	out := jsonReport{
		Topic:     r.Topic,
		Generator: Generator,
		Sources:   make([]jsonSource, 0, len(active)),
	}
	for _, s := range active {
		js := jsonSource{
			Source:     s.Source,
			ProfileURL: opts.profileURL(s.Source),
			Posts:      make([]jsonEntry, 0, len(s.Entries)),
			Found:      s.Total(),
			Unique:     s.Unique,
			Duplicates: s.Duplicates,
			Fetched:    s.Fetched,
			Truncated:  opts.truncated(s),
		}
		for _, e := range s.Entries {
			js.Posts = append(js.Posts, jsonEntry{
				PostedAt: e.Time.UTC().Format(time.RFC3339),
				Text:     e.Text,
			})
		}
		out.Sources = append(out.Sources, js)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
