package sqlast

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// converter turns a parsed xwb1989 statement into the node set of this
// package. Joins are recorded in source order so the token scan can refine
// their kinds afterwards.
type converter struct {
	joins []*Join
}

func (c *converter) statement(stmt sqlparser.Statement) Statement {
	switch n := stmt.(type) {
	case *sqlparser.Select, *sqlparser.Union, *sqlparser.ParenSelect:
		return c.query(n.(sqlparser.SelectStatement))
	case *sqlparser.Insert:
		return c.insert(n)
	case *sqlparser.Update:
		return c.update(n)
	case *sqlparser.Delete:
		return c.delete(n)
	case *sqlparser.Set:
		return &Other{Kind: "set"}
	case *sqlparser.DDL, *sqlparser.DBDDL:
		return &Other{Kind: "ddl"}
	case *sqlparser.Show:
		return &Other{Kind: "show"}
	case *sqlparser.Use:
		return &Other{Kind: "use"}
	case *sqlparser.Begin:
		return &Other{Kind: "begin"}
	case *sqlparser.Commit, *sqlparser.Rollback:
		return &Other{Kind: "commit"}
	default:
		return &Other{Kind: "other"}
	}
}

func (c *converter) query(stmt sqlparser.SelectStatement) Query {
	switch n := stmt.(type) {
	case *sqlparser.Select:
		return c.selectStmt(n)
	case *sqlparser.ParenSelect:
		return c.query(n.Select)
	case *sqlparser.Union:
		op := &SetOperation{Kind: unionKind(n.Type)}
		op.Left = c.query(n.Left)
		op.Right = c.query(n.Right)
		op.OrderBy = c.orderBy(n.OrderBy)
		op.Limit, op.Offset = limitFlags(n.Limit)
		return op
	default:
		return nil
	}
}

func (c *converter) selectStmt(n *sqlparser.Select) *Select {
	sel := &Select{Distinct: n.Distinct != ""}
	for _, se := range n.SelectExprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			sel.Projections = append(sel.Projections, Projection{Star: true, Table: e.TableName.Name.String()})
		case *sqlparser.AliasedExpr:
			sel.Projections = append(sel.Projections, Projection{Expr: c.expr(e.Expr), Alias: e.As.String()})
		}
	}
	sel.From = c.tableExprs(n.From)
	if n.Where != nil {
		sel.Where = c.expr(n.Where.Expr)
	}
	for _, g := range n.GroupBy {
		if e := c.expr(g); e != nil {
			sel.GroupBy = append(sel.GroupBy, e)
		}
	}
	if n.Having != nil {
		sel.Having = c.expr(n.Having.Expr)
	}
	sel.OrderBy = c.orderBy(n.OrderBy)
	sel.Limit, sel.Offset = limitFlags(n.Limit)
	return sel
}

func (c *converter) insert(n *sqlparser.Insert) *Insert {
	ins := &Insert{Table: tableRef(n.Table, sqlparser.TableIdent{})}
	for _, col := range n.Columns {
		ins.Columns = append(ins.Columns, col.String())
	}
	switch rows := n.Rows.(type) {
	case sqlparser.Values:
		ins.Rows = len(rows)
	case sqlparser.SelectStatement:
		ins.Source = c.query(rows)
	}
	return ins
}

func (c *converter) update(n *sqlparser.Update) *Update {
	upd := &Update{Tables: c.tableExprs(n.TableExprs)}
	for _, ue := range n.Exprs {
		upd.Set = append(upd.Set, Assignment{
			Column: columnRef(ue.Name),
			Value:  c.expr(ue.Expr),
		})
	}
	if n.Where != nil {
		upd.Where = c.expr(n.Where.Expr)
	}
	upd.OrderBy = c.orderBy(n.OrderBy)
	upd.Limit, _ = limitFlags(n.Limit)
	return upd
}

func (c *converter) delete(n *sqlparser.Delete) *Delete {
	del := &Delete{}
	for _, t := range n.Targets {
		del.Targets = append(del.Targets, tableRef(t, sqlparser.TableIdent{}))
	}
	del.From = c.tableExprs(n.TableExprs)
	if n.Where != nil {
		del.Where = c.expr(n.Where.Expr)
	}
	del.OrderBy = c.orderBy(n.OrderBy)
	del.Limit, _ = limitFlags(n.Limit)
	return del
}

func (c *converter) tableExprs(exprs sqlparser.TableExprs) []TableExpr {
	var out []TableExpr
	for _, te := range exprs {
		if t := c.tableExpr(te); t != nil {
			out = append(out, t)
		}
	}
	return out
}

func (c *converter) tableExpr(te sqlparser.TableExpr) TableExpr {
	switch n := te.(type) {
	case *sqlparser.AliasedTableExpr:
		switch src := n.Expr.(type) {
		case sqlparser.TableName:
			return tableRef(src, n.As)
		case *sqlparser.Subquery:
			sq := c.subquery(src)
			if sq == nil {
				return nil
			}
			sq.Alias = n.As.String()
			return sq
		}
		return nil
	case *sqlparser.ParenTableExpr:
		items := c.tableExprs(n.Exprs)
		if len(items) == 1 {
			return items[0]
		}
		return &TableGroup{Items: items}
	case *sqlparser.JoinTableExpr:
		// Source order: left operand, the join keyword, right operand, ON.
		j := &Join{Kind: astJoinKind(n.Join)}
		j.Left = c.tableExpr(n.LeftExpr)
		c.joins = append(c.joins, j)
		j.Right = c.tableExpr(n.RightExpr)
		j.On = c.expr(n.Condition.On)
		for _, col := range n.Condition.Using {
			j.Using = append(j.Using, col.String())
		}
		return j
	default:
		return nil
	}
}

func (c *converter) subquery(n *sqlparser.Subquery) *Subquery {
	if n == nil {
		return nil
	}
	q := c.query(n.Select)
	if q == nil {
		return nil
	}
	return &Subquery{Query: q}
}

func (c *converter) orderBy(order sqlparser.OrderBy) []Expr {
	var out []Expr
	for _, o := range order {
		if e := c.expr(o.Expr); e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (c *converter) exprs(in []sqlparser.Expr) []Expr {
	var out []Expr
	for _, e := range in {
		if ce := c.expr(e); ce != nil {
			out = append(out, ce)
		}
	}
	return out
}

func (c *converter) funcArgs(fn *FuncCall, args sqlparser.SelectExprs) {
	for _, a := range args {
		switch e := a.(type) {
		case *sqlparser.StarExpr:
			fn.Star = true
		case *sqlparser.AliasedExpr:
			if ce := c.expr(e.Expr); ce != nil {
				fn.Args = append(fn.Args, ce)
			}
		}
	}
}

func (c *converter) expr(e sqlparser.Expr) Expr {
	switch n := e.(type) {
	case nil:
		return nil
	case *sqlparser.AndExpr:
		return &BinaryPredicate{Op: OpAnd, Left: c.expr(n.Left), Right: c.expr(n.Right)}
	case *sqlparser.OrExpr:
		return &BinaryPredicate{Op: OpOr, Left: c.expr(n.Left), Right: c.expr(n.Right)}
	case *sqlparser.NotExpr:
		return &UnaryPredicate{Op: OpNot, Operand: c.expr(n.Expr)}
	case *sqlparser.ParenExpr:
		return c.expr(n.Expr)
	case *sqlparser.ComparisonExpr:
		return &BinaryPredicate{Op: n.Operator, Left: c.expr(n.Left), Right: c.expr(n.Right)}
	case *sqlparser.RangeCond:
		return &BinaryPredicate{
			Op:    n.Operator,
			Left:  c.expr(n.Left),
			Right: &List{Items: c.exprs([]sqlparser.Expr{n.From, n.To})},
		}
	case *sqlparser.IsExpr:
		return &UnaryPredicate{Op: n.Operator, Operand: c.expr(n.Expr)}
	case *sqlparser.ExistsExpr:
		sq := c.subquery(n.Subquery)
		if sq == nil {
			return nil
		}
		return &UnaryPredicate{Op: OpExists, Operand: sq}
	case *sqlparser.SQLVal:
		return &Literal{Kind: literalKind(n.Type)}
	case *sqlparser.NullVal:
		return &Literal{Kind: LiteralNull}
	case sqlparser.BoolVal:
		return &Literal{Kind: LiteralBool}
	case sqlparser.ListArg:
		return &Literal{Kind: LiteralPlaceholder}
	case *sqlparser.Default:
		return &Literal{Kind: LiteralOther}
	case sqlparser.ValTuple:
		return &List{Items: c.exprs(n)}
	case *sqlparser.ColName:
		if n == nil {
			return nil
		}
		return columnRef(n)
	case *sqlparser.Subquery:
		if sq := c.subquery(n); sq != nil {
			return sq
		}
		return nil
	case *sqlparser.BinaryExpr:
		return &BinaryPredicate{Op: n.Operator, Left: c.expr(n.Left), Right: c.expr(n.Right)}
	case *sqlparser.UnaryExpr:
		return &UnaryPredicate{Op: n.Operator, Operand: c.expr(n.Expr)}
	case *sqlparser.CollateExpr:
		return c.expr(n.Expr)
	case *sqlparser.IntervalExpr:
		return &FuncCall{Name: "interval", Args: c.exprs([]sqlparser.Expr{n.Expr})}
	case *sqlparser.FuncExpr:
		fn := &FuncCall{Name: n.Name.Lowered(), Distinct: n.Distinct}
		c.funcArgs(fn, n.Exprs)
		return fn
	case *sqlparser.GroupConcatExpr:
		fn := &FuncCall{Name: "group_concat", Distinct: n.Distinct != ""}
		c.funcArgs(fn, n.Exprs)
		return fn
	case *sqlparser.ValuesFuncExpr:
		return &FuncCall{Name: "values", Args: c.exprs([]sqlparser.Expr{n.Name})}
	case *sqlparser.SubstrExpr:
		return &FuncCall{Name: "substr", Args: c.exprs([]sqlparser.Expr{n.Name, n.From, n.To})}
	case *sqlparser.ConvertExpr:
		return &FuncCall{Name: "convert", Args: c.exprs([]sqlparser.Expr{n.Expr})}
	case *sqlparser.ConvertUsingExpr:
		return &FuncCall{Name: "convert", Args: c.exprs([]sqlparser.Expr{n.Expr})}
	case *sqlparser.MatchExpr:
		fn := &FuncCall{Name: "match"}
		c.funcArgs(fn, n.Columns)
		if ce := c.expr(n.Expr); ce != nil {
			fn.Args = append(fn.Args, ce)
		}
		return fn
	case *sqlparser.CaseExpr:
		fn := &FuncCall{Name: "case"}
		parts := []sqlparser.Expr{n.Expr}
		for _, w := range n.Whens {
			parts = append(parts, w.Cond, w.Val)
		}
		parts = append(parts, n.Else)
		fn.Args = c.exprs(parts)
		return fn
	default:
		return nil
	}
}

func columnRef(n *sqlparser.ColName) *ColumnRef {
	if n == nil {
		return nil
	}
	return &ColumnRef{Table: n.Qualifier.Name.String(), Name: n.Name.String()}
}

func tableRef(t sqlparser.TableName, alias sqlparser.TableIdent) *TableRef {
	return &TableRef{
		Schema: t.Qualifier.String(),
		Name:   t.Name.String(),
		Alias:  alias.String(),
	}
}

func limitFlags(l *sqlparser.Limit) (limit, offset bool) {
	if l == nil {
		return false, false
	}
	return l.Rowcount != nil, l.Offset != nil
}

func literalKind(t sqlparser.ValType) LiteralKind {
	switch t {
	case sqlparser.StrVal:
		return LiteralString
	case sqlparser.IntVal, sqlparser.FloatVal, sqlparser.HexNum, sqlparser.HexVal, sqlparser.BitVal:
		return LiteralNumber
	case sqlparser.ValArg:
		return LiteralPlaceholder
	default:
		return LiteralOther
	}
}

func unionKind(t string) string {
	if strings.EqualFold(t, sqlparser.UnionAllStr) {
		return SetUnionAll
	}
	return SetUnion
}

func astJoinKind(j string) string {
	switch j {
	case sqlparser.StraightJoinStr:
		return JoinStraight
	case sqlparser.LeftJoinStr:
		return JoinLeft
	case sqlparser.RightJoinStr:
		return JoinRight
	case sqlparser.NaturalJoinStr:
		return JoinNatural
	case sqlparser.NaturalLeftJoinStr:
		return JoinNaturalLeft
	case sqlparser.NaturalRightJoinStr:
		return JoinNaturalRight
	default:
		return JoinPlain
	}
}
