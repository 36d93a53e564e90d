package digest

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestJSONFormat_Full(t *testing.T) {
	r := &Report{Topic: "news"}
	r.Add(aliceReport())
	r.Add(SourceReport{Source: "empty", Fetched: 2})

	var buf bytes.Buffer
	if err := NewJSON().Format(&buf, r, opts()); err != nil {
		t.Fatalf("format: %v", err)
	}

	var out jsonReport
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if out.Topic != "news" || out.Generator != Generator {
		t.Errorf("topic = %q generator = %q", out.Topic, out.Generator)
	}
	if len(out.Sources) != 1 {
		t.Fatalf("sources = %d, want 1", len(out.Sources))
	}
	s := out.Sources[0]
	if s.Source != "alice" || s.ProfileURL != "https://www.twitter.com/alice" {
		t.Errorf("source = %q profile = %q", s.Source, s.ProfileURL)
	}
	if s.Found != 3 || s.Unique != 2 || s.Duplicates != 1 {
		t.Errorf("counts = %d/%d/%d, want 3/2/1", s.Found, s.Unique, s.Duplicates)
	}
	if len(s.Posts) != 2 || s.Posts[0].Text != "A" || s.Posts[1].Text != "B" {
		t.Errorf("posts = %+v", s.Posts)
	}
	if s.Posts[0].PostedAt != "2026-10-18T09:00:00Z" {
		t.Errorf("posted_at = %q", s.Posts[0].PostedAt)
	}
	if s.Truncated {
		t.Error("3 of 100 fetched should not be truncated")
	}
}

func TestJSONFormat_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := NewJSON().Format(&buf, &Report{Topic: "quiet"}, opts()); err != nil {
		t.Fatalf("format: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	sources, ok := raw["sources"].([]any)
	if !ok || len(sources) != 0 {
		t.Errorf("sources = %v, want empty array", raw["sources"])
	}
}
