package instantsearch

// Expression is a filter compiled from the refinements of a SearchParameters.
// Transport clients translate the tree into their backend's filter syntax.
// All Expressions are QueryOptions, but not all QueryOptions are Expressions.
type Expression interface {
	QueryOption
	// expr is a marker method to distinguish expressions from other options.
	expr()
}

// baseExpr provides the expr marker method for all expression types.
type baseExpr struct{}

func (baseExpr) expr() {}

// AndExpr matches when every inner expression matches.
type AndExpr struct {
	baseExpr
	Exprs []Expression
}

// Apply appends the expression to the query filters.
func (a AndExpr) Apply(q *Query) { q.Filters = append(q.Filters, a) }

// And creates an AND expression combining multiple expressions.
func And(exprs ...Expression) Expression {
	return AndExpr{Exprs: exprs}
}

// OrExpr matches when at least one inner expression matches.
type OrExpr struct {
	baseExpr
	Exprs []Expression
}

// Apply appends the expression to the query filters.
func (o OrExpr) Apply(q *Query) { q.Filters = append(q.Filters, o) }

// Or creates an OR expression combining multiple expressions.
func Or(exprs ...Expression) Expression {
	return OrExpr{Exprs: exprs}
}

// NotExpr negates its inner expression.
type NotExpr struct {
	baseExpr
	Inner Expression
}

// Apply appends the expression to the query filters.
func (n NotExpr) Apply(q *Query) { q.Filters = append(q.Filters, n) }

// Not creates a NOT expression negating the given expression.
func Not(expr Expression) Expression {
	return NotExpr{Inner: expr}
}

// EqExpr matches documents whose attribute equals Value. Facet refinements
// compile to EqExpr with string values; numeric refinements with float64.
type EqExpr struct {
	baseExpr
	Field string
	Value interface{}
}

// Apply appends the expression to the query filters.
func (e EqExpr) Apply(q *Query) { q.Filters = append(q.Filters, e) }

// Eq creates an equality comparison expression.
func Eq(field string, value interface{}) Expression {
	return EqExpr{Field: field, Value: value}
}

// NeExpr matches documents whose attribute differs from Value.
type NeExpr struct {
	baseExpr
	Field string
	Value interface{}
}

// Apply appends the expression to the query filters.
func (n NeExpr) Apply(q *Query) { q.Filters = append(q.Filters, n) }

// Ne creates a not-equal comparison expression.
func Ne(field string, value interface{}) Expression {
	return NeExpr{Field: field, Value: value}
}

// GtExpr represents a greater-than comparison expression.
type GtExpr struct {
	baseExpr
	Field string
	Value interface{}
}

// Apply appends the expression to the query filters.
func (g GtExpr) Apply(q *Query) { q.Filters = append(q.Filters, g) }

// Gt creates a greater-than comparison expression.
func Gt(field string, value interface{}) Expression {
	return GtExpr{Field: field, Value: value}
}

// GteExpr represents a greater-than-or-equal comparison expression.
type GteExpr struct {
	baseExpr
	Field string
	Value interface{}
}

// Apply appends the expression to the query filters.
func (g GteExpr) Apply(q *Query) { q.Filters = append(q.Filters, g) }

// Gte creates a greater-than-or-equal comparison expression.
func Gte(field string, value interface{}) Expression {
	return GteExpr{Field: field, Value: value}
}

// LtExpr represents a less-than comparison expression.
type LtExpr struct {
	baseExpr
	Field string
	Value interface{}
}

// Apply appends the expression to the query filters.
func (l LtExpr) Apply(q *Query) { q.Filters = append(q.Filters, l) }

// Lt creates a less-than comparison expression.
func Lt(field string, value interface{}) Expression {
	return LtExpr{Field: field, Value: value}
}

// LteExpr represents a less-than-or-equal comparison expression.
type LteExpr struct {
	baseExpr
	Field string
	Value interface{}
}

// Apply appends the expression to the query filters.
func (l LteExpr) Apply(q *Query) { q.Filters = append(q.Filters, l) }

// Lte creates a less-than-or-equal comparison expression.
func Lte(field string, value interface{}) Expression {
	return LteExpr{Field: field, Value: value}
}

// Compare builds the expression matching a numeric refinement.
// It returns nil for unknown operators.
func Compare(field string, op Operator, value float64) Expression {
	switch op {
	case OpEq:
		return Eq(field, value)
	case OpNe:
		return Ne(field, value)
	case OpGt:
		return Gt(field, value)
	case OpGte:
		return Gte(field, value)
	case OpLt:
		return Lt(field, value)
	case OpLte:
		return Lte(field, value)
	default:
		return nil
	}
}
