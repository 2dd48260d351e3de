// Package sqlast is the closed SQL node set the feature extractor walks.
//
// Nodes are produced by Parse, which adapts the MySQL grammar of
// github.com/xwb1989/sqlparser and fills the gaps that grammar leaves
// (WITH clauses, INTERSECT/EXCEPT, join qualifiers). Anything the adapter
// does not recognize converts to nothing rather than failing.
package sqlast

// Node is implemented by every type in this package.
type Node interface {
	sqlNode()
}

// Statement is a top-level statement.
type Statement interface {
	Node
	statement()
}

// Query is a statement that yields rows: *Select, *SetOperation, or a *With
// whose body is a query.
type Query interface {
	Statement
	query()
}

// Expr is a scalar or boolean expression.
type Expr interface {
	Node
	expr()
}

// TableExpr is an entry of a FROM clause.
type TableExpr interface {
	Node
	tableExpr()
}

// Join kinds.
const (
	JoinPlain        = "join"
	JoinInner        = "inner_join"
	JoinCross        = "cross_join"
	JoinLeft         = "left_join"
	JoinRight        = "right_join"
	JoinLeftOuter    = "left_outer_join"
	JoinRightOuter   = "right_outer_join"
	JoinNatural      = "natural_join"
	JoinNaturalLeft  = "natural_left_join"
	JoinNaturalRight = "natural_right_join"
	JoinStraight     = "straight_join"
)

// Set operation kinds.
const (
	SetUnion        = "union"
	SetUnionAll     = "union_all"
	SetIntersect    = "intersect"
	SetIntersectAll = "intersect_all"
	SetExcept       = "except"
	SetExceptAll    = "except_all"
)

// Logical operators carried by BinaryPredicate and UnaryPredicate.
const (
	OpAnd    = "and"
	OpOr     = "or"
	OpNot    = "not"
	OpExists = "exists"
)

// Projection is one entry of a SELECT list.
type Projection struct {
	Expr  Expr   // nil for a star
	Star  bool   // SELECT * or t.*
	Table string // qualifier of t.*
	Alias string
}

// Select is a single SELECT block.
type Select struct {
	Distinct    bool
	Projections []Projection
	From        []TableExpr
	Where       Expr
	GroupBy     []Expr
	Having      Expr
	OrderBy     []Expr
	Limit       bool
	Offset      bool
}

// SetOperation combines two queries with UNION, INTERSECT or EXCEPT.
type SetOperation struct {
	Kind        string
	Left, Right Query
	OrderBy     []Expr
	Limit       bool
	Offset      bool
}

// Insert is INSERT or REPLACE.
type Insert struct {
	Table   *TableRef
	Columns []string
	Source  Query // INSERT ... SELECT, nil for VALUES
	Rows    int   // number of VALUES tuples
}

// Assignment is one SET target of an UPDATE.
type Assignment struct {
	Column *ColumnRef
	Value  Expr
}

// Update is an UPDATE statement.
type Update struct {
	Tables  []TableExpr
	Set     []Assignment
	Where   Expr
	OrderBy []Expr
	Limit   bool
}

// Delete is a DELETE statement. Targets is only set for multi-table deletes.
type Delete struct {
	Targets []*TableRef
	From    []TableExpr
	Where   Expr
	OrderBy []Expr
	Limit   bool
}

// CTE is one named query of a WITH clause.
type CTE struct {
	Name    string
	Columns []string
	Query   Query
}

// With wraps a statement preceded by a WITH clause.
type With struct {
	CTEs []CTE
	Body Statement
}

// Other is any statement the extractor has no features for (USE, SHOW, DDL,
// transaction control, ...).
type Other struct {
	Kind string
}

// TableRef names a table in FROM, JOIN, INSERT, UPDATE or DELETE.
type TableRef struct {
	Schema string
	Name   string
	Alias  string
}

// Join combines two table expressions.
type Join struct {
	Kind        string
	Left, Right TableExpr
	On          Expr
	Using       []string
}

// TableGroup is a parenthesized, comma separated list of table expressions.
type TableGroup struct {
	Items []TableExpr
}

// Subquery is a query used as a table or as an expression.
type Subquery struct {
	Query Query
	Alias string
}

// BinaryPredicate is a two-operand expression: logical, comparison or
// arithmetic. BETWEEN carries its bounds as a List on the right.
type BinaryPredicate struct {
	Op          string
	Left, Right Expr
}

// UnaryPredicate is a one-operand expression: NOT, EXISTS, IS NULL, unary
// arithmetic.
type UnaryPredicate struct {
	Op      string
	Operand Expr
}

// ColumnRef references a column, optionally qualified by a table or alias.
type ColumnRef struct {
	Table string
	Name  string
}

// LiteralKind classifies a Literal.
type LiteralKind int

// Literal kinds.
const (
	LiteralString LiteralKind = iota
	LiteralNumber
	LiteralPlaceholder
	LiteralNull
	LiteralBool
	LiteralOther
)

// Literal is a value. Its content is never retained.
type Literal struct {
	Kind LiteralKind
}

// FuncCall is a function call. CASE, CONVERT, INTERVAL and similar
// constructs are represented as calls named after the construct.
type FuncCall struct {
	Name     string
	Distinct bool
	Star     bool
	Args     []Expr
}

// List is a parenthesized expression list, such as an IN list.
type List struct {
	Items []Expr
}

func (*Select) sqlNode()          {}
func (*SetOperation) sqlNode()    {}
func (*Insert) sqlNode()          {}
func (*Update) sqlNode()          {}
func (*Delete) sqlNode()          {}
func (*With) sqlNode()            {}
func (*Other) sqlNode()           {}
func (*TableRef) sqlNode()        {}
func (*Join) sqlNode()            {}
func (*TableGroup) sqlNode()      {}
func (*Subquery) sqlNode()        {}
func (*BinaryPredicate) sqlNode() {}
func (*UnaryPredicate) sqlNode()  {}
func (*ColumnRef) sqlNode()       {}
func (*Literal) sqlNode()         {}
func (*FuncCall) sqlNode()        {}
func (*List) sqlNode()            {}

func (*Select) statement()       {}
func (*SetOperation) statement() {}
func (*Insert) statement()       {}
func (*Update) statement()       {}
func (*Delete) statement()       {}
func (*With) statement()         {}
func (*Other) statement()        {}

func (*Select) query()       {}
func (*SetOperation) query() {}
func (*With) query()         {}

func (*Subquery) expr()        {}
func (*BinaryPredicate) expr() {}
func (*UnaryPredicate) expr()  {}
func (*ColumnRef) expr()       {}
func (*Literal) expr()         {}
func (*FuncCall) expr()        {}
func (*List) expr()            {}

func (*TableRef) tableExpr()   {}
func (*Join) tableExpr()       {}
func (*TableGroup) tableExpr() {}
func (*Subquery) tableExpr()   {}
