package features

import (
	"strings"

	"github.com/leapstack-labs/sqlshape/pkg/normalize"
	"github.com/leapstack-labs/sqlshape/pkg/sqlast"
)

// Extract folds the features of every statement into one feature set.
// Several top-level statements produce a single, merged set; the kind of the
// last recognized statement wins.
func Extract(stmts []sqlast.Statement) *FeatureSet {
	x := &extractor{fs: New(), ctes: Set{}}
	for _, stmt := range stmts {
		if k := kindOf(stmt); k != KindUnknown {
			x.fs.Kind = k
		}
		x.statement(stmt)
	}
	x.finish()
	return x.fs
}

type extractor struct {
	fs    *FeatureSet
	depth int // subquery nesting; 0 is the statement itself
	ctes  Set
}

func kindOf(stmt sqlast.Statement) StatementKind {
	switch n := stmt.(type) {
	case *sqlast.Select, *sqlast.SetOperation:
		return KindSelect
	case *sqlast.Insert:
		return KindInsert
	case *sqlast.Update:
		return KindUpdate
	case *sqlast.Delete:
		return KindDelete
	case *sqlast.With:
		return kindOf(n.Body)
	default:
		return KindUnknown
	}
}

func (x *extractor) statement(stmt sqlast.Statement) {
	switch n := stmt.(type) {
	case *sqlast.Select:
		x.selectStmt(n)
	case *sqlast.SetOperation:
		x.setOperation(n)
	case *sqlast.With:
		x.with(n)
	case *sqlast.Insert:
		x.insert(n)
	case *sqlast.Update:
		x.update(n)
	case *sqlast.Delete:
		x.delete(n)
	case *sqlast.Other, nil:
	}
}

func (x *extractor) query(q sqlast.Query) {
	if q != nil {
		x.statement(q)
	}
}

// finish removes CTE names from the table sets and keeps subquery tables
// disjoint from top-level tables.
func (x *extractor) finish() {
	for name := range x.ctes {
		delete(x.fs.Tables, name)
		delete(x.fs.SubqueryTables, name)
	}
	for name := range x.fs.Tables {
		delete(x.fs.SubqueryTables, name)
	}
}

func (x *extractor) with(w *sqlast.With) {
	for _, cte := range w.CTEs {
		x.ctes.Add(normalize.Identifier(cte.Name))
		x.query(cte.Query)
	}
	x.statement(w.Body)
}

func (x *extractor) selectStmt(sel *sqlast.Select) {
	for _, p := range sel.Projections {
		if p.Star {
			x.fs.ProjectionColumns.Add(normalize.NullIdentifier)
			continue
		}
		x.aggregations(p.Expr)
		x.columnsInto(p.Expr, x.fs.ProjectionColumns)
	}

	for _, te := range sel.From {
		x.tableExpr(te)
	}

	x.predicate(sel.Where)

	if len(sel.GroupBy) > 0 {
		x.fs.HasGroupBy = true
		for _, g := range sel.GroupBy {
			x.columnsInto(g, x.fs.GroupKeys)
		}
	}

	if sel.Having != nil {
		x.fs.HasHaving = true
		x.aggregations(sel.Having)
		x.predicate(sel.Having)
	}

	x.orderBy(sel.OrderBy)
	x.limit(sel.Limit, sel.Offset)
}

func (x *extractor) setOperation(op *sqlast.SetOperation) {
	x.fs.SetOpKinds[op.Kind]++
	x.query(op.Left)
	x.query(op.Right)
	x.orderBy(op.OrderBy)
	x.limit(op.Limit, op.Offset)
}

func (x *extractor) insert(ins *sqlast.Insert) {
	x.table(ins.Table)
	for _, col := range ins.Columns {
		x.addColumn(x.fs.ProjectionColumns, col)
	}
	if ins.Source != nil {
		x.subquery(&sqlast.Subquery{Query: ins.Source})
	}
}

func (x *extractor) update(upd *sqlast.Update) {
	for _, te := range upd.Tables {
		x.tableExpr(te)
	}
	for _, a := range upd.Set {
		if a.Column != nil {
			x.addColumn(x.fs.ProjectionColumns, a.Column.Name)
		}
		x.subqueriesIn(a.Value)
	}
	x.predicate(upd.Where)
	x.orderBy(upd.OrderBy)
	x.limit(upd.Limit, false)
}

func (x *extractor) delete(del *sqlast.Delete) {
	for _, t := range del.Targets {
		x.table(t)
	}
	for _, te := range del.From {
		x.tableExpr(te)
	}
	x.predicate(del.Where)
	x.orderBy(del.OrderBy)
	x.limit(del.Limit, false)
}

func (x *extractor) tableExpr(te sqlast.TableExpr) {
	switch n := te.(type) {
	case *sqlast.TableRef:
		x.table(n)
	case *sqlast.Subquery:
		x.subquery(n)
	case *sqlast.Join:
		x.tableExpr(n.Left)
		x.fs.JoinKinds[n.Kind]++
		x.tableExpr(n.Right)
		x.predicate(n.On)
		for _, col := range n.Using {
			x.addColumn(x.fs.PredicateColumns, col)
		}
	case *sqlast.TableGroup:
		for _, item := range n.Items {
			x.tableExpr(item)
		}
	}
}

// dualTable is the pseudo table the parser puts in a FROM-less SELECT.
const dualTable = "dual"

func (x *extractor) table(t *sqlast.TableRef) {
	if t == nil || t.Name == "" {
		return
	}
	name := normalize.Identifier(t.Name)
	if name == dualTable {
		return
	}
	if x.depth == 0 {
		x.fs.Tables.Add(name)
	} else {
		x.fs.SubqueryTables.Add(name)
	}
}

func (x *extractor) subquery(sq *sqlast.Subquery) {
	if sq == nil || sq.Query == nil {
		return
	}
	x.fs.SubqueryCount++
	if x.fs.SubqueryCount > 1 {
		x.fs.HasNestedSubquery = true
	}
	x.depth++
	x.query(sq.Query)
	x.depth--
}

// predicate records every column a condition references. Values never
// contribute; subqueries are extracted in place.
func (x *extractor) predicate(e sqlast.Expr) {
	x.columnsInto(e, x.fs.PredicateColumns)
}

// columnsInto adds the columns referenced by e to dst and extracts any
// subquery found along the way.
func (x *extractor) columnsInto(e sqlast.Expr, dst Set) {
	switch n := e.(type) {
	case *sqlast.ColumnRef:
		x.addColumn(dst, n.Name)
	case *sqlast.BinaryPredicate:
		x.columnsInto(n.Left, dst)
		x.columnsInto(n.Right, dst)
	case *sqlast.UnaryPredicate:
		x.columnsInto(n.Operand, dst)
	case *sqlast.FuncCall:
		for _, arg := range n.Args {
			x.columnsInto(arg, dst)
		}
	case *sqlast.List:
		for _, item := range n.Items {
			x.columnsInto(item, dst)
		}
	case *sqlast.Subquery:
		x.subquery(n)
	case *sqlast.Literal, nil:
	}
}

// subqueriesIn extracts subqueries of e without recording its columns.
func (x *extractor) subqueriesIn(e sqlast.Expr) {
	switch n := e.(type) {
	case *sqlast.Subquery:
		x.subquery(n)
	case *sqlast.BinaryPredicate:
		x.subqueriesIn(n.Left)
		x.subqueriesIn(n.Right)
	case *sqlast.UnaryPredicate:
		x.subqueriesIn(n.Operand)
	case *sqlast.FuncCall:
		for _, arg := range n.Args {
			x.subqueriesIn(arg)
		}
	case *sqlast.List:
		for _, item := range n.Items {
			x.subqueriesIn(item)
		}
	}
}

// aggregations counts aggregate calls in e. Subqueries are left to their own
// SELECT.
func (x *extractor) aggregations(e sqlast.Expr) {
	switch n := e.(type) {
	case *sqlast.FuncCall:
		name := strings.ToLower(n.Name)
		if _, ok := aggregates[name]; ok {
			x.fs.Aggregations[name]++
		}
		for _, arg := range n.Args {
			x.aggregations(arg)
		}
	case *sqlast.BinaryPredicate:
		x.aggregations(n.Left)
		x.aggregations(n.Right)
	case *sqlast.UnaryPredicate:
		x.aggregations(n.Operand)
	case *sqlast.List:
		for _, item := range n.Items {
			x.aggregations(item)
		}
	}
}

func (x *extractor) orderBy(exprs []sqlast.Expr) {
	for _, e := range exprs {
		x.columnsInto(e, x.fs.OrderKeys)
	}
}

func (x *extractor) limit(limit, offset bool) {
	if limit {
		x.fs.LimitPresent = true
	}
	if offset {
		x.fs.OffsetPresent = true
	}
}

func (x *extractor) addColumn(dst Set, name string) {
	if !normalize.ValidColumnName(name) {
		return
	}
	dst.Add(normalize.Identifier(name))
}
