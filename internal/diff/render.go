package diff

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/roach88/overlay/internal/ir"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
)

// Formats lists the supported formats.
var Formats = []Format{FormatText, FormatJSON, FormatMarkdown, FormatHTML}

// ParseFormat parses a format name. "md" is accepted for markdown.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("unknown diff format %q (valid: text, json, markdown, html)", s)
}

// Render writes d to w in the given format.
func Render(w io.Writer, d Diff, f Format) error {
	switch f {
	case FormatText:
		return RenderText(w, d)
	case FormatJSON:
		return RenderJSON(w, d)
	case FormatMarkdown:
		return RenderMarkdown(w, d)
	case FormatHTML:
		return RenderHTML(w, d)
	}
	return fmt.Errorf("unknown diff format %q", f)
}

// formatValue renders a value as compact JSON. Absent values render empty.
func formatValue(v ir.Value) string {
	if v == nil {
		return ""
	}
	b, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}

// RenderText writes one line per change. Colors are used only when w is
// a terminal.
func RenderText(w io.Writer, d Diff) error {
	r := lipgloss.NewRenderer(w)
	styles := map[ChangeType]lipgloss.Style{
		Added:    r.NewStyle().Foreground(lipgloss.Color("#4CAF50")),
		Removed:  r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
		Modified: r.NewStyle().Foreground(lipgloss.Color("#F5C542")),
		Moved:    r.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
	}
	dim := r.NewStyle().Foreground(lipgloss.Color("#888888"))

	if d.Empty() {
		_, err := fmt.Fprintln(w, dim.Render("no changes"))
		return err
	}

	var sb strings.Builder
	for _, c := range d.Changes {
		var line string
		switch c.Type {
		case Added:
			line = fmt.Sprintf("+ %s: %s", c.Path, formatValue(c.After))
		case Removed:
			line = fmt.Sprintf("- %s: %s", c.Path, formatValue(c.Before))
		case Modified:
			line = fmt.Sprintf("~ %s: %s -> %s", c.Path, formatValue(c.Before), formatValue(c.After))
		case Moved:
			line = fmt.Sprintf("> %s -> %s: %s", c.From, c.Path, formatValue(c.After))
		}
		sb.WriteString(styles[c.Type].Render(line))
		sb.WriteByte('\n')
	}

	s := d.Summary()
	sb.WriteString(dim.Render(fmt.Sprintf("%d changes (%d added, %d removed, %d modified, %d moved)",
		s.Total(), s.Added, s.Removed, s.Modified, s.Moved)))
	sb.WriteByte('\n')

	_, err := io.WriteString(w, sb.String())
	return err
}

// RenderJSON writes the changes and a summary as indented JSON.
func RenderJSON(w io.Writer, d Diff) error {
	changes := d.Changes
	if changes == nil {
		changes = []Change{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Changes []Change `json:"changes"`
		Summary Summary  `json:"summary"`
	}{changes, d.Summary()})
}

// Markdown returns d as a markdown table.
func (d Diff) Markdown() string {
	var sb strings.Builder
	_ = RenderMarkdown(&sb, d)
	return sb.String()
}

// RenderMarkdown writes d as a markdown table.
func RenderMarkdown(w io.Writer, d Diff) error {
	if d.Empty() {
		_, err := io.WriteString(w, "_No changes._\n")
		return err
	}

	var sb strings.Builder
	sb.WriteString("| Change | Path | Before | After |\n")
	sb.WriteString("|---|---|---|---|\n")
	for _, c := range d.Changes {
		path := mdCode(c.Path)
		if c.Type == Moved {
			path = mdCode(c.From) + " -> " + mdCode(c.Path)
		}
		fmt.Fprintf(&sb, "| %s | %s | %s | %s |\n",
			c.Type, path, mdCode(formatValue(c.Before)), mdCode(formatValue(c.After)))
	}
	_, err := io.WriteString(w, sb.String())
	return err
}

func mdCode(s string) string {
	if s == "" {
		return ""
	}
	return "`" + strings.ReplaceAll(s, "|", `\|`) + "`"
}

var htmlTemplate = template.Must(template.New("diff").Parse(`<table class="contract-diff">
<thead><tr><th>Change</th><th>Path</th><th>Before</th><th>After</th></tr></thead>
<tbody>
{{- range .Rows}}
<tr class="{{.Type}}"><td>{{.Type}}</td><td>{{if .From}}<code>{{.From}}</code> &rarr; {{end}}<code>{{.Path}}</code></td><td>{{if .Before}}<code>{{.Before}}</code>{{end}}</td><td>{{if .After}}<code>{{.After}}</code>{{end}}</td></tr>
{{- else}}
<tr><td colspan="4">No changes.</td></tr>
{{- end}}
</tbody>
</table>
`))

type htmlRow struct {
	Type   ChangeType
	Path   string
	From   string
	Before string
	After  string
}

// RenderHTML writes d as an HTML table fragment.
func RenderHTML(w io.Writer, d Diff) error {
	rows := make([]htmlRow, len(d.Changes))
	for i, c := range d.Changes {
		rows[i] = htmlRow{
			Type:   c.Type,
			Path:   c.Path,
			From:   c.From,
			Before: formatValue(c.Before),
			After:  formatValue(c.After),
		}
	}
	return htmlTemplate.Execute(w, struct{ Rows []htmlRow }{rows})
}
