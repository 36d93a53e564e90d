package digest

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

const entryIndent = "     "

// TextFormatter renders the plain-text mail body.
type TextFormatter struct{}

// NewText creates a plain-text formatter.
func NewText() *TextFormatter {
	return &TextFormatter{}
}

// Format writes the report as plain text to w. Sources without unique posts
// are omitted.
func (f *TextFormatter) Format(w io.Writer, r *Report, opts Options) error {
	active := r.Active()
	var lines []string

	if len(active) > 1 {
		names := make([]string, len(active))
		for i, s := range active {
			names[i] = s.Source
		}
		lines = append(lines, "Report on: "+strings.Join(names, ", "), "")
	}

	for _, s := range active {
		heading := s.Source + ":"
		if u := opts.profileURL(s.Source); u != "" {
			heading = fmt.Sprintf("%s - %s:", s.Source, u)
		}
		lines = append(lines, heading, strings.Repeat("*", utf8.RuneCountInString(heading)))

		for _, e := range s.Entries {
			lines = append(lines, opts.timestamp(e.Time), entryIndent+e.Text)
		}
		lines = append(lines, summaryLines(s, opts)...)
		lines = append(lines, "")
	}

	lines = append(lines, "Generated by "+Generator)
	_, err := io.WriteString(w, strings.Join(lines, "\n")+"\n")
	return err
}

func summaryLines(s SourceReport, opts Options) []string {
	var lines []string
	if opts.truncated(s) {
		lines = append(lines, fmt.Sprintf("Max number of posts (%d) fetched, results may be truncated.", s.Fetched))
	}
	summary := fmt.Sprintf("Summary: %d posts found", s.Total())
	if s.Duplicates > 0 {
		summary += fmt.Sprintf(": %d unique and %d duplicates.", s.Unique, s.Duplicates)
	}
	return append(lines, summary)
}
