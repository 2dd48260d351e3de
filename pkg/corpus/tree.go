// Package corpus loads generated-SQL datasets and indexes their statements by
// generating unit and caller.
package corpus

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Markers that appear in place of, or appended to, SQL leaves.
const (
	// RedundantMarker is appended to leaves flagged as redundant.
	RedundantMarker = " <REDUNDANT SQL>"
	// NoSQLMarker replaces the SQL of a record for which nothing was
	// generated.
	NoSQLMarker = "<NO SQL GENERATE>"

	paramDependentType = "param_dependent"
)

// ErrInvalidTree is returned for a tree node of an impossible JSON type, such
// as a number where SQL is expected.
var ErrInvalidTree = errors.New("invalid sql tree")

// VariantTree is the nested SQL structure of a record. It is implemented by
// Leaf, List, *ParamDependent and Unknown only.
type VariantTree interface {
	variantTree()
}

// Leaf is a single SQL text.
type Leaf string

// List is an ordered sequence of trees.
type List []VariantTree

// ParamDependent lists alternative SQL for different runtime conditions.
type ParamDependent struct {
	Variants []NamedVariant
	// Extra holds wrapper fields other than type and variants.
	Extra map[string]any
}

// NamedVariant is one scenario of a ParamDependent node.
type NamedVariant struct {
	Scenario string
	SQL      VariantTree
	// Extra holds variant fields other than scenario and sql.
	Extra map[string]any
	// Raw is set instead of the other fields when the variant is not an
	// object. It is kept verbatim.
	Raw any
	// HasSQL records whether the variant carried an sql key.
	HasSQL bool

	hasScenario bool
}

// Unknown is a JSON object of an unrecognized shape. It flattens to nothing
// and is written back verbatim.
type Unknown struct {
	Raw map[string]any
}

func (Leaf) variantTree()            {}
func (List) variantTree()            {}
func (*ParamDependent) variantTree() {}
func (Unknown) variantTree()         {}

// Flatten returns every SQL text in tree, depth first. Leaves are trimmed;
// blank leaves and the no-SQL marker are skipped, and a trailing redundancy
// marker is removed.
func Flatten(tree VariantTree) []string {
	var out []string
	var walk func(VariantTree)
	walk = func(t VariantTree) {
		switch n := t.(type) {
		case Leaf:
			if s, ok := leafSQL(string(n)); ok {
				out = append(out, s)
			}
		case List:
			for _, item := range n {
				walk(item)
			}
		case *ParamDependent:
			for _, v := range n.Variants {
				if v.SQL != nil {
					walk(v.SQL)
				}
			}
		case Unknown, nil:
		default:
			panic(fmt.Sprintf("corpus: unexpected tree node %T", t))
		}
	}
	walk(tree)
	return out
}

// StripMarker removes a trailing redundancy marker.
func StripMarker(s string) string {
	return strings.TrimSuffix(s, RedundantMarker)
}

func leafSQL(s string) (string, bool) {
	s = strings.TrimSpace(StripMarker(strings.TrimSpace(s)))
	if s == "" || s == NoSQLMarker {
		return "", false
	}
	return s, true
}

// DecodeTree converts a decoded JSON value into a tree. A nil value is an
// empty list.
func DecodeTree(v any) (VariantTree, error) {
	switch n := v.(type) {
	case nil:
		return List{}, nil
	case string:
		return Leaf(n), nil
	case []any:
		list := make(List, 0, len(n))
		for i, item := range n {
			t, err := DecodeTree(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			list = append(list, t)
		}
		return list, nil
	case map[string]any:
		if typ, _ := n["type"].(string); typ != paramDependentType {
			return Unknown{Raw: n}, nil
		}
		return decodeParamDependent(n)
	default:
		return nil, fmt.Errorf("%w: unexpected %T", ErrInvalidTree, v)
	}
}

type rawParamDependent struct {
	Type     string         `mapstructure:"type"`
	Variants []any          `mapstructure:"variants"`
	Extra    map[string]any `mapstructure:",remain"`
}

type rawVariant struct {
	Scenario string         `mapstructure:"scenario"`
	SQL      any            `mapstructure:"sql"`
	Extra    map[string]any `mapstructure:",remain"`
}

func decodeParamDependent(obj map[string]any) (*ParamDependent, error) {
	var raw rawParamDependent
	if err := mapstructure.Decode(obj, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTree, err)
	}

	pd := &ParamDependent{Extra: raw.Extra}
	for i, item := range raw.Variants {
		vobj, ok := item.(map[string]any)
		if !ok {
			pd.Variants = append(pd.Variants, NamedVariant{Raw: item})
			continue
		}

		var rv rawVariant
		if err := mapstructure.Decode(vobj, &rv); err != nil {
			return nil, fmt.Errorf("variant %d: %w: %v", i, ErrInvalidTree, err)
		}
		nv := NamedVariant{Scenario: rv.Scenario, Extra: rv.Extra}
		_, nv.hasScenario = vobj["scenario"]
		if _, nv.HasSQL = vobj["sql"]; nv.HasSQL && rv.SQL != nil {
			t, err := DecodeTree(rv.SQL)
			if err != nil {
				return nil, fmt.Errorf("variant %d: %w", i, err)
			}
			nv.SQL = t
		}
		pd.Variants = append(pd.Variants, nv)
	}
	return pd, nil
}

// EncodeTree converts a tree back into the JSON value it was decoded from.
func EncodeTree(tree VariantTree) any {
	switch n := tree.(type) {
	case Leaf:
		return string(n)
	case List:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = EncodeTree(item)
		}
		return out
	case *ParamDependent:
		obj := make(map[string]any, len(n.Extra)+2)
		for k, v := range n.Extra {
			obj[k] = v
		}
		obj["type"] = paramDependentType
		variants := make([]any, len(n.Variants))
		for i, v := range n.Variants {
			variants[i] = encodeVariant(v)
		}
		obj["variants"] = variants
		return obj
	case Unknown:
		return n.Raw
	case nil:
		return nil
	default:
		panic(fmt.Sprintf("corpus: unexpected tree node %T", tree))
	}
}

func encodeVariant(v NamedVariant) any {
	if v.Raw != nil {
		return v.Raw
	}
	obj := make(map[string]any, len(v.Extra)+2)
	for k, val := range v.Extra {
		obj[k] = val
	}
	if v.hasScenario || v.Scenario != "" {
		obj["scenario"] = v.Scenario
	}
	if v.HasSQL {
		obj["sql"] = EncodeTree(v.SQL)
	}
	return obj
}

// MapLeaves returns a copy of tree with fn applied to every leaf. Wrapper
// nodes, scenarios and extra fields are preserved.
func MapLeaves(tree VariantTree, fn func(string) string) VariantTree {
	switch n := tree.(type) {
	case Leaf:
		return Leaf(fn(string(n)))
	case List:
		out := make(List, len(n))
		for i, item := range n {
			out[i] = MapLeaves(item, fn)
		}
		return out
	case *ParamDependent:
		pd := &ParamDependent{Extra: n.Extra, Variants: make([]NamedVariant, len(n.Variants))}
		for i, v := range n.Variants {
			if v.SQL != nil {
				v.SQL = MapLeaves(v.SQL, fn)
			}
			pd.Variants[i] = v
		}
		return pd
	default:
		return tree
	}
}
