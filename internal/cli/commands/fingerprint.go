package commands

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/leapstack-labs/sqlshape/internal/cli/output"
	"github.com/leapstack-labs/sqlshape/pkg/fingerprint"
	"github.com/spf13/cobra"
)

// maxStatementBytes bounds one line of stdin input.
const maxStatementBytes = 4 << 20

// FingerprintOptions holds options for the fingerprint command.
type FingerprintOptions struct {
	Explain     bool
	Interactive bool
}

// FingerprintResult is one fingerprinted statement.
type FingerprintResult struct {
	SQL         string                   `json:"sql"`
	Fingerprint fingerprint.Fingerprint  `json:"fingerprint"`
	Sentinel    bool                     `json:"sentinel"`
	Description *fingerprint.Description `json:"description,omitempty"`
	ParseError  string                   `json:"parse_error,omitempty"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand() *cobra.Command {
	opts := &FingerprintOptions{}

	cmd := &cobra.Command{
		Use:   "fingerprint [SQL...]",
		Short: "Print structural fingerprints of SQL statements",
		Long: `Print the structural fingerprint of each statement.

Statements come from the arguments, or from stdin one per line when no
arguments are given. Statements that are not fingerprinted structurally
(transaction control, session settings, DDL, unparseable text) print their
sentinel instead.`,
		Example: `  # Fingerprint a statement
  sqlshape fingerprint "SELECT id FROM users WHERE id = 1"

  # Show the features behind the fingerprint
  sqlshape fingerprint --explain "SELECT count(*) FROM orders GROUP BY status"

  # Fingerprint a file of statements
  sqlshape fingerprint < statements.sql

  # Explore interactively
  sqlshape fingerprint -i`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFingerprint(cmd, args, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.Explain, "explain", "e", false, "Show the feature breakdown")
	cmd.Flags().BoolVarP(&opts.Interactive, "interactive", "i", false, "Start an interactive session")

	return cmd
}

func runFingerprint(cmd *cobra.Command, args []string, opts *FingerprintOptions) error {
	cc := NewCommandContext(cmd)

	if opts.Interactive {
		return runFingerprintREPL(cmd, cc, opts)
	}

	statements := args
	if len(statements) == 0 {
		var err error
		statements, err = readStatements(cmd.InOrStdin())
		if err != nil {
			return err
		}
	}
	if len(statements) == 0 {
		return fmt.Errorf("no SQL given: pass statements as arguments or on stdin")
	}

	results := make([]FingerprintResult, 0, len(statements))
	for _, sql := range statements {
		results = append(results, fingerprintOne(cc.Fingerprinter, sql, opts.Explain))
	}
	cc.Logger.Debug("fingerprinted statements", "count", len(results))

	r := cc.Renderer
	switch r.EffectiveMode() {
	case output.ModeJSON:
		return r.JSON(results)
	default:
		if opts.Explain {
			for i, res := range results {
				if i > 0 {
					r.Println()
				}
				renderExplain(r, res)
			}
			return nil
		}
		rows := make([][]string, 0, len(results))
		for _, res := range results {
			rows = append(rows, []string{string(res.Fingerprint), oneLine(res.SQL)})
		}
		r.Table([]string{"fingerprint", "sql"}, rows)
		return nil
	}
}

// readStatements returns the non-blank lines of in.
func readStatements(in io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxStatementBytes)
	var statements []string
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			statements = append(statements, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	return statements, nil
}

func fingerprintOne(fp *fingerprint.Fingerprinter, sql string, explain bool) FingerprintResult {
	if !explain {
		f := fp.Fingerprint(sql)
		return FingerprintResult{SQL: sql, Fingerprint: f, Sentinel: fingerprint.IsSentinel(f)}
	}
	d, err := fingerprint.Describe(sql)
	res := FingerprintResult{
		SQL:         sql,
		Fingerprint: d.Fingerprint,
		Sentinel:    d.Sentinel,
		Description: &d,
	}
	if err != nil {
		res.ParseError = err.Error()
	}
	return res
}

func renderExplain(r *output.Renderer, res FingerprintResult) {
	if r.EffectiveMode() == output.ModeMarkdown {
		r.Println(output.FormatCode("sql", res.SQL))
	} else {
		r.Println(r.SQL(res.SQL))
	}
	keyValue(r, "Fingerprint", r.Styles().Fingerprint.Render(string(res.Fingerprint)))
	if res.ParseError != "" {
		keyValue(r, "Parse error", res.ParseError)
	}
	d := res.Description
	if d == nil || d.Sentinel {
		return
	}
	keyValue(r, "Kind", d.Kind)
	keyValue(r, "Tables", listOrNone(d.Tables))
	if len(d.SubqueryTables) > 0 {
		keyValue(r, "Subquery tables", strings.Join(d.SubqueryTables, ", "))
	}
	keyValue(r, "Columns", listOrNone(d.Columns))
	if len(d.Joins) > 0 {
		keyValue(r, "Joins", strings.Join(d.Joins, ", "))
	}
	if len(d.SetOps) > 0 {
		keyValue(r, "Set operations", strings.Join(d.SetOps, ", "))
	}
	if len(d.Aggregations) > 0 {
		keyValue(r, "Aggregations", formatCounts(d.Aggregations))
	}
	if d.Subqueries > 0 {
		keyValue(r, "Subqueries", strconv.Itoa(d.Subqueries))
	}
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s×%d", k, m[k]))
	}
	return strings.Join(parts, ", ")
}

// oneLine collapses whitespace so a statement fits a table cell.
func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
