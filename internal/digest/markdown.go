package digest

import (
	"fmt"
	"io"
)

// MarkdownFormatter formats a report as Markdown.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// Format writes the report as Markdown to w.
func (f *MarkdownFormatter) Format(w io.Writer, r *Report, opts Options) error {
	title := r.Topic
	if title == "" {
		title = "report"
	}
	fmt.Fprintf(w, "# %s\n\n", title)

	active := r.Active()
	if len(active) == 0 {
		fmt.Fprintln(w, "Nothing to report.")
		return nil
	}

	for _, s := range active {
		if u := opts.profileURL(s.Source); u != "" {
			fmt.Fprintf(w, "## [%s](%s)\n\n", s.Source, u)
		} else {
			fmt.Fprintf(w, "## %s\n\n", s.Source)
		}
		for _, e := range s.Entries {
			fmt.Fprintf(w, "- `%s` %s\n", opts.timestamp(e.Time), e.Text)
		}
		fmt.Fprintln(w)
		for _, line := range summaryLines(s, opts) {
			fmt.Fprintf(w, "*%s*\n", line)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "_Generated by %s_\n", Generator)
	return nil
}
