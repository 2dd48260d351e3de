package sqlast

import (
	"github.com/xwb1989/sqlparser"
)

// scanJoinKinds tokenizes text and returns the kind of every join keyword in
// source order. The grammar folds INNER, CROSS and OUTER into the plain
// join forms; the token stream still carries them.
func scanJoinKinds(text string) []string {
	tkn := sqlparser.NewStringTokenizer(text)

	var (
		kinds  []string
		window []int // tokens since the previous join keyword
	)
	for {
		typ, _ := tkn.Scan()
		if typ == 0 || typ == sqlparser.LEX_ERROR {
			break
		}
		switch typ {
		case sqlparser.JOIN:
			kinds = append(kinds, joinKindFromQualifiers(window))
			window = window[:0]
		case sqlparser.STRAIGHT_JOIN:
			kinds = append(kinds, JoinStraight)
			window = window[:0]
		case sqlparser.NATURAL, sqlparser.LEFT, sqlparser.RIGHT, sqlparser.INNER, sqlparser.CROSS, sqlparser.OUTER:
			window = append(window, typ)
		default:
			window = window[:0]
		}
	}
	return kinds
}

func joinKindFromQualifiers(q []int) string {
	var natural, left, right, inner, cross, outer bool
	for _, t := range q {
		switch t {
		case sqlparser.NATURAL:
			natural = true
		case sqlparser.LEFT:
			left = true
		case sqlparser.RIGHT:
			right = true
		case sqlparser.INNER:
			inner = true
		case sqlparser.CROSS:
			cross = true
		case sqlparser.OUTER:
			outer = true
		}
	}

	switch {
	case natural && left:
		return JoinNaturalLeft
	case natural && right:
		return JoinNaturalRight
	case natural:
		return JoinNatural
	case left && outer:
		return JoinLeftOuter
	case left:
		return JoinLeft
	case right && outer:
		return JoinRightOuter
	case right:
		return JoinRight
	case inner:
		return JoinInner
	case cross:
		return JoinCross
	default:
		return JoinPlain
	}
}

// refineJoins replaces the grammar's join kinds with the token-level kinds
// when both agree on the number of joins and on their family.
func refineJoins(joins []*Join, scanned []string) {
	if len(joins) != len(scanned) {
		return
	}
	for i, j := range joins {
		if sameFamily(j.Kind, scanned[i]) {
			j.Kind = scanned[i]
		}
	}
}

func sameFamily(ast, scanned string) bool {
	switch ast {
	case JoinPlain:
		return scanned == JoinPlain || scanned == JoinInner || scanned == JoinCross
	case JoinLeft:
		return scanned == JoinLeft || scanned == JoinLeftOuter
	case JoinRight:
		return scanned == JoinRight || scanned == JoinRightOuter
	default:
		return ast == scanned
	}
}
