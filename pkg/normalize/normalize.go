// Package normalize prepares raw SQL text for structural fingerprinting.
//
// It provides the textual pre-pass applied before parsing (comment removal,
// whitespace collapse, literal and LIMIT masking, alias canonicalization),
// the categorical classifier for statements that never reach feature
// extraction, and the identifier helpers shared by the extractor.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Placeholder tokens written in place of masked literals.
const (
	NumberToken = "N"
	StringToken = "S"
	AliasToken  = "t_alias"
	// TempAlias replaces single-token t<digits> identifiers during extraction.
	TempAlias = "temp_alias"
	// NullIdentifier is recorded for projections without a column name (SELECT *).
	NullIdentifier = "null"
)

// numberPattern matches integer, decimal, exponent and hex literals.
const numberPattern = `-?(?:0[xX][0-9a-fA-F]+|\d+(?:\.\d+)?(?:[eE][+-]?\d+)?)`

// quotedOrCommentRe matches quoted text first so comment markers inside
// literals and quoted identifiers are left alone.
var quotedOrCommentRe = regexp.MustCompile(`'(?:[^'\\]|\\.)*'|"(?:[^"\\]|\\.)*"|` + "`[^`]*`" + `|(?s:/\*.*?\*/)|--[^\n]*`)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	aliasRe        = regexp.MustCompile("([`\"\\s])t\\d+([`\"\\s])")
	equalsNumberRe = regexp.MustCompile(`=\s*` + numberPattern + `\b`)
	inListRe       = regexp.MustCompile(`(?i)\bIN\s*\(\s*` + numberPattern + `(?:\s*,\s*` + numberPattern + `)*\s*\)`)
	singleQuoteRe  = regexp.MustCompile(`'[^']*'`)
	doubleQuoteRe  = regexp.MustCompile(`"[^"]*"`)
	limitPairRe    = regexp.MustCompile(`(?i)\bLIMIT\s+\d+\s*,\s*\d+`)
	limitRe        = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
	offsetRe       = regexp.MustCompile(`(?i)\bOFFSET\s+\d+`)
	dollarParamRe  = regexp.MustCompile(`\$\d+`)
	pyformatRe     = regexp.MustCompile(`%(?:\([A-Za-z_][A-Za-z0-9_]*\))?s`)
	tempAliasRe    = regexp.MustCompile(`^t\d+$`)
	digitsRe       = regexp.MustCompile(`^\d+$`)
)

// StripComments removes block and line comments outside quoted text and
// collapses whitespace.
func StripComments(text string) string {
	text = quotedOrCommentRe.ReplaceAllStringFunc(text, func(m string) string {
		if strings.HasPrefix(m, "--") || strings.HasPrefix(m, "/*") {
			return " "
		}
		return m
	})
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// Normalize applies the textual pre-pass to text. The result is fed to the
// parser as is.
func Normalize(text string) string {
	text = norm.NFC.String(text)
	text = StripComments(text)

	text = aliasRe.ReplaceAllString(text, "${1}"+AliasToken+"${2}")
	text = equalsNumberRe.ReplaceAllString(text, "= "+NumberToken)
	text = inListRe.ReplaceAllString(text, "IN ("+NumberToken+")")
	text = singleQuoteRe.ReplaceAllString(text, "'"+StringToken+"'")
	text = doubleQuoteRe.ReplaceAllString(text, `"`+StringToken+`"`)
	text = limitPairRe.ReplaceAllString(text, "LIMIT "+NumberToken+", "+NumberToken)
	text = limitRe.ReplaceAllString(text, "LIMIT "+NumberToken)
	text = offsetRe.ReplaceAllString(text, "OFFSET "+NumberToken)

	text = dollarParamRe.ReplaceAllString(text, "?")
	text = pyformatRe.ReplaceAllString(text, "?")

	return text
}

// Identifier canonicalizes an extracted identifier: quoting is stripped, the
// name is lower-cased, and t<digits> aliases collapse to TempAlias.
func Identifier(name string) string {
	name = strings.Trim(strings.ReplaceAll(name, "`", ""), `"`)
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return NullIdentifier
	}
	if tempAliasRe.MatchString(name) {
		return TempAlias
	}
	return name
}

// ValidColumnName reports whether name can be recorded as a column. Tokens
// produced by literal masking and bare numbers are rejected.
func ValidColumnName(name string) bool {
	if name == "" || name == "?" {
		return false
	}
	if strings.HasPrefix(name, "'") || strings.HasPrefix(name, `"`) {
		return false
	}
	if digitsRe.MatchString(name) {
		return false
	}
	switch name {
	case NumberToken, StringToken, "'" + StringToken + "'":
		return false
	}
	return !strings.EqualFold(name, "null")
}
