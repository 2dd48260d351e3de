package output

import (
	"bytes"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/jedib0t/go-pretty/v6/table"
)

var (
	sqlLexer     = chroma.Coalesce(lexers.Get("sql"))
	sqlFormatter = formatters.Get("terminal256")
	sqlStyle     = styles.Get("monokai")
)

// SQL returns sql highlighted for the terminal when color is enabled.
func (r *Renderer) SQL(sql string) string {
	if !r.color || sql == "" {
		return sql
	}
	return HighlightSQL(sql)
}

// HighlightSQL applies ANSI syntax highlighting. On error the input is
// returned unchanged.
func HighlightSQL(sql string) string {
	iterator, err := sqlLexer.Tokenise(nil, sql)
	if err != nil {
		return sql
	}
	var buf bytes.Buffer
	if err := sqlFormatter.Format(&buf, sqlStyle, iterator); err != nil {
		return sql
	}
	return strings.TrimRight(buf.String(), "\n")
}

// Table renders rows under header: a box table in text mode, a pipe table
// in markdown mode.
func (r *Renderer) Table(header []string, rows [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)

	h := make(table.Row, len(header))
	for i, col := range header {
		h[i] = col
	}
	t.AppendHeader(h)
	for _, row := range rows {
		tr := make(table.Row, len(row))
		for i, v := range row {
			tr[i] = v
		}
		t.AppendRow(tr)
	}

	if r.EffectiveMode() == ModeMarkdown {
		t.RenderMarkdown()
		return
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
