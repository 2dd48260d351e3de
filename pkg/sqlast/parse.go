package sqlast

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/xwb1989/sqlparser"
)

// ErrNoStatements is returned when the text holds no statement at all.
var ErrNoStatements = errors.New("no statements")

var (
	withRe      = regexp.MustCompile(`(?i)^with(?:\s+recursive)?\s+`)
	asRe        = regexp.MustCompile(`(?i)^as\s*`)
	setOpWordRe = regexp.MustCompile(`(?i)^(intersect|except|minus)(\s+(all|distinct))?\b`)
)

// Parse splits text into statements and converts each one. Text is expected
// to be the output of normalize.Normalize. A statement that fails to parse
// fails the whole text.
func Parse(text string) ([]Statement, error) {
	pieces, err := sqlparser.SplitStatementToPieces(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split statements: %w", err)
	}

	var stmts []Statement
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		stmt, err := parseStatement(piece)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, stmt)
	}
	if len(stmts) == 0 {
		return nil, ErrNoStatements
	}
	return stmts, nil
}

// parseStatement handles one statement: a leading WITH clause, then
// INTERSECT/EXCEPT chains, then the grammar itself.
func parseStatement(text string) (Statement, error) {
	ctes, rest, err := liftWith(text)
	if err != nil {
		return nil, err
	}

	body, err := parseSetOps(rest)
	if err != nil {
		return nil, err
	}
	if len(ctes) == 0 {
		return body, nil
	}
	return &With{CTEs: ctes, Body: body}, nil
}

func parseQuery(text string) (Query, error) {
	stmt, err := parseStatement(text)
	if err != nil {
		return nil, err
	}
	if w, ok := stmt.(*With); ok {
		if _, isQuery := w.Body.(Query); !isQuery {
			return nil, fmt.Errorf("expected a query: %q", truncate(text))
		}
	}
	if q, ok := stmt.(Query); ok {
		return q, nil
	}
	return nil, fmt.Errorf("expected a query: %q", truncate(text))
}

// parseSetOps splits text at top-level INTERSECT/EXCEPT/MINUS keywords, which
// the grammar does not accept, and combines the parts left to right.
func parseSetOps(text string) (Statement, error) {
	parts, ops := splitSetOps(text)
	if len(ops) == 0 {
		return parseGrammar(text)
	}

	left, err := parseQuery(unwrapParens(parts[0]))
	if err != nil {
		return nil, err
	}
	for i, op := range ops {
		right, err := parseQuery(unwrapParens(parts[i+1]))
		if err != nil {
			return nil, err
		}
		left = &SetOperation{Kind: op, Left: left, Right: right}
	}
	return left, nil
}

func parseGrammar(text string) (Statement, error) {
	parsed, err := sqlparser.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse statement: %w", err)
	}

	c := &converter{}
	stmt := c.statement(parsed)
	refineJoins(c.joins, scanJoinKinds(text))
	if stmt == nil {
		return &Other{Kind: "other"}, nil
	}
	return stmt, nil
}

// liftWith removes a leading WITH clause and parses each CTE body.
func liftWith(text string) ([]CTE, string, error) {
	loc := withRe.FindStringIndex(text)
	if loc == nil {
		return nil, text, nil
	}

	var ctes []CTE
	rest := text[loc[1]:]
	for {
		rest = strings.TrimLeftFunc(rest, unicode.IsSpace)
		name, after := readIdentifier(rest)
		if name == "" {
			return nil, "", fmt.Errorf("malformed WITH clause: %q", truncate(text))
		}
		rest = strings.TrimLeftFunc(after, unicode.IsSpace)

		var cols []string
		if strings.HasPrefix(rest, "(") {
			end := matchParen(rest)
			if end < 0 {
				return nil, "", fmt.Errorf("unbalanced WITH column list: %q", truncate(text))
			}
			for _, c := range strings.Split(rest[1:end], ",") {
				if c = strings.Trim(strings.TrimSpace(c), "`"); c != "" {
					cols = append(cols, c)
				}
			}
			rest = strings.TrimLeftFunc(rest[end+1:], unicode.IsSpace)
		}

		m := asRe.FindStringIndex(rest)
		if m == nil {
			return nil, "", fmt.Errorf("malformed WITH clause, missing AS: %q", truncate(text))
		}
		rest = rest[m[1]:]
		if !strings.HasPrefix(rest, "(") {
			return nil, "", fmt.Errorf("malformed WITH clause, missing body: %q", truncate(text))
		}
		end := matchParen(rest)
		if end < 0 {
			return nil, "", fmt.Errorf("unbalanced WITH body: %q", truncate(text))
		}

		q, err := parseQuery(strings.TrimSpace(rest[1:end]))
		if err != nil {
			return nil, "", fmt.Errorf("failed to parse CTE %s: %w", name, err)
		}
		ctes = append(ctes, CTE{Name: name, Columns: cols, Query: q})

		rest = strings.TrimLeftFunc(rest[end+1:], unicode.IsSpace)
		if strings.HasPrefix(rest, ",") {
			rest = rest[1:]
			continue
		}
		return ctes, rest, nil
	}
}

// splitSetOps returns the operands and operator kinds found at parenthesis
// depth zero outside of quoted text.
func splitSetOps(text string) (parts []string, ops []string) {
	depth := 0
	start := 0
	var quote byte
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
			continue
		case '(':
			depth++
			continue
		case ')':
			depth--
			continue
		}
		if depth != 0 || !wordBoundary(text, i) {
			continue
		}
		m := setOpWordRe.FindStringSubmatch(text[i:])
		if m == nil {
			continue
		}
		parts = append(parts, strings.TrimSpace(text[start:i]))
		ops = append(ops, setOpKind(m[1], m[3]))
		i += len(m[0]) - 1
		start = i + 1
	}
	if len(ops) == 0 {
		return []string{text}, nil
	}
	parts = append(parts, strings.TrimSpace(text[start:]))
	return parts, ops
}

func setOpKind(word, modifier string) string {
	all := strings.EqualFold(modifier, "all")
	if strings.EqualFold(word, "intersect") {
		if all {
			return SetIntersectAll
		}
		return SetIntersect
	}
	if all {
		return SetExceptAll
	}
	return SetExcept
}

func wordBoundary(text string, i int) bool {
	if i == 0 {
		return true
	}
	prev := rune(text[i-1])
	return !(unicode.IsLetter(prev) || unicode.IsDigit(prev) || prev == '_')
}

// matchParen returns the index of the parenthesis closing text[0], or -1.
func matchParen(text string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if quote != 0 {
			if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '\'', '"', '`':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// unwrapParens strips parentheses enclosing the whole of text.
func unwrapParens(text string) string {
	text = strings.TrimSpace(text)
	for strings.HasPrefix(text, "(") && matchParen(text) == len(text)-1 {
		text = strings.TrimSpace(text[1 : len(text)-1])
	}
	return text
}

func readIdentifier(text string) (string, string) {
	if strings.HasPrefix(text, "`") {
		end := strings.IndexByte(text[1:], '`')
		if end < 0 {
			return "", text
		}
		return text[1 : end+1], text[end+2:]
	}
	i := 0
	for i < len(text) {
		r := rune(text[i])
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '$') {
			break
		}
		i++
	}
	return text[:i], text[i:]
}

func truncate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
