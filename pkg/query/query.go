package query

type (
	// Query is a logical query against an entity. Expression slots hold the
	// shared AST; the ClickHouse layer re-targets them at a physical table.
	Query struct {
		Entity      string
		Selected    []SelectedExpression
		Condition   Expression
		GroupBy     []Expression
		Having      Expression
		OrderBy     []OrderBy
		LimitBy     *LimitBy
		Limit       *int
		Offset      int
		Final       bool
		Totals      bool
		Granularity *int
		SampleRate  *float64
	}

	// SelectedExpression is one member of the select clause. Name is the
	// caller-facing alias for the result column.
	SelectedExpression struct {
		Name       string
		Expression Expression
	}

	OrderDirection string

	OrderBy struct {
		Direction  OrderDirection
		Expression Expression
	}

	LimitBy struct {
		Limit      int
		Expression Expression
	}
)

const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

// TransformExpressions applies fn to every expression tree in the query,
// replacing each slot with the transformed tree.
func (q *Query) TransformExpressions(fn func(Expression) Expression) {
	for i := range q.Selected {
		q.Selected[i].Expression = q.Selected[i].Expression.Transform(fn)
	}
	if q.Condition != nil {
		q.Condition = q.Condition.Transform(fn)
	}
	for i := range q.GroupBy {
		q.GroupBy[i] = q.GroupBy[i].Transform(fn)
	}
	if q.Having != nil {
		q.Having = q.Having.Transform(fn)
	}
	for i := range q.OrderBy {
		q.OrderBy[i].Expression = q.OrderBy[i].Expression.Transform(fn)
	}
	if q.LimitBy != nil {
		q.LimitBy.Expression = q.LimitBy.Expression.Transform(fn)
	}
}

// IterateExpressions walks every expression tree in the query depth-first.
func (q *Query) IterateExpressions(fn func(Expression)) {
	for _, s := range q.Selected {
		s.Expression.Iterate(fn)
	}
	if q.Condition != nil {
		q.Condition.Iterate(fn)
	}
	for _, g := range q.GroupBy {
		g.Iterate(fn)
	}
	if q.Having != nil {
		q.Having.Iterate(fn)
	}
	for _, o := range q.OrderBy {
		o.Expression.Iterate(fn)
	}
	if q.LimitBy != nil {
		q.LimitBy.Expression.Iterate(fn)
	}
}

// Columns returns every column referenced anywhere in the query.
func (q *Query) Columns() []*Column {
	var cols []*Column
	q.IterateExpressions(func(e Expression) {
		if c, ok := e.(*Column); ok {
			cols = append(cols, c)
		}
	})
	return cols
}

// Clone deep-copies the query. Expression trees are rebuilt via the identity
// transform, so processors mutating the copy never reach the original.
func (q *Query) Clone() *Query {
	out := *q
	identity := func(e Expression) Expression { return e }

	out.Selected = make([]SelectedExpression, len(q.Selected))
	for i, s := range q.Selected {
		out.Selected[i] = SelectedExpression{Name: s.Name, Expression: s.Expression.Transform(identity)}
	}
	if q.Condition != nil {
		out.Condition = q.Condition.Transform(identity)
	}
	out.GroupBy = make([]Expression, len(q.GroupBy))
	for i, g := range q.GroupBy {
		out.GroupBy[i] = g.Transform(identity)
	}
	if q.Having != nil {
		out.Having = q.Having.Transform(identity)
	}
	out.OrderBy = make([]OrderBy, len(q.OrderBy))
	for i, o := range q.OrderBy {
		out.OrderBy[i] = OrderBy{Direction: o.Direction, Expression: o.Expression.Transform(identity)}
	}
	if q.LimitBy != nil {
		out.LimitBy = &LimitBy{Limit: q.LimitBy.Limit, Expression: q.LimitBy.Expression.Transform(identity)}
	}
	if q.Limit != nil {
		limit := *q.Limit
		out.Limit = &limit
	}
	if q.Granularity != nil {
		granularity := *q.Granularity
		out.Granularity = &granularity
	}
	if q.SampleRate != nil {
		rate := *q.SampleRate
		out.SampleRate = &rate
	}
	return &out
}
