// Package query holds the logical query model: an expression AST shared by
// the matching, translation and processing layers, and the Query type built
// from it.
package query

import "time"

type (
	// Expression is a node in the query AST. Implementations are *Literal,
	// *Column, *FunctionCall, *CurriedFunctionCall, *SubscriptableReference,
	// *Lambda and *Argument.
	Expression interface {
		// GetAlias returns the node's alias, empty when unset.
		GetAlias() string

		// Accept dispatches to the visitor method for the concrete type.
		Accept(v Visitor)

		// Transform rebuilds the tree bottom-up: children are transformed
		// first, then fn is applied to the rebuilt node. Nodes fn leaves
		// alone keep their (rebuilt) shape.
		Transform(fn func(Expression) Expression) Expression

		// Iterate walks the tree depth-first, the node before its children.
		Iterate(fn func(Expression))

		// Equals compares by value, aliases included.
		Equals(other Expression) bool
	}

	// Visitor receives one callback per concrete node type.
	Visitor interface {
		VisitLiteral(*Literal)
		VisitColumn(*Column)
		VisitSubscriptableReference(*SubscriptableReference)
		VisitFunctionCall(*FunctionCall)
		VisitCurriedFunctionCall(*CurriedFunctionCall)
		VisitArgument(*Argument)
		VisitLambda(*Lambda)
	}

	// Literal is a scalar constant. Value is one of nil, bool, string,
	// int64, float64 or time.Time.
	Literal struct {
		Alias string
		Value any
	}

	Column struct {
		Alias      string
		TableName  string
		ColumnName string
	}

	FunctionCall struct {
		Alias      string
		Name       string
		Parameters []Expression
	}

	// CurriedFunctionCall applies an inner function call's result to a
	// second parameter list, e.g. quantile(0.9)(duration).
	CurriedFunctionCall struct {
		Alias         string
		InnerFunction *FunctionCall
		Parameters    []Expression
	}

	// SubscriptableReference is a key lookup on a mapping column, written
	// tags[key] at the logical level.
	SubscriptableReference struct {
		Alias  string
		Column *Column
		Key    *Literal
	}

	Lambda struct {
		Alias          string
		Parameters     []string
		Transformation Expression
	}

	// Argument references a lambda parameter by name.
	Argument struct {
		Alias string
		Name  string
	}
)

func (l *Literal) GetAlias() string { return l.Alias }
func (l *Literal) Accept(v Visitor) { v.VisitLiteral(l) }
func (l *Literal) Transform(fn func(Expression) Expression) Expression {
	return fn(&Literal{Alias: l.Alias, Value: l.Value})
}
func (l *Literal) Iterate(fn func(Expression)) { fn(l) }
func (l *Literal) Equals(other Expression) bool {
	o, ok := other.(*Literal)
	return ok && l.Alias == o.Alias && scalarEquals(l.Value, o.Value)
}

func (c *Column) GetAlias() string { return c.Alias }
func (c *Column) Accept(v Visitor) { v.VisitColumn(c) }
func (c *Column) Transform(fn func(Expression) Expression) Expression {
	return fn(&Column{Alias: c.Alias, TableName: c.TableName, ColumnName: c.ColumnName})
}
func (c *Column) Iterate(fn func(Expression)) { fn(c) }
func (c *Column) Equals(other Expression) bool {
	o, ok := other.(*Column)
	return ok && *c == *o
}

func (f *FunctionCall) GetAlias() string { return f.Alias }
func (f *FunctionCall) Accept(v Visitor) { v.VisitFunctionCall(f) }
func (f *FunctionCall) Transform(fn func(Expression) Expression) Expression {
	params := make([]Expression, len(f.Parameters))
	for i, p := range f.Parameters {
		params[i] = p.Transform(fn)
	}
	return fn(&FunctionCall{Alias: f.Alias, Name: f.Name, Parameters: params})
}
func (f *FunctionCall) Iterate(fn func(Expression)) {
	fn(f)
	for _, p := range f.Parameters {
		p.Iterate(fn)
	}
}
func (f *FunctionCall) Equals(other Expression) bool {
	o, ok := other.(*FunctionCall)
	if !ok || f.Alias != o.Alias || f.Name != o.Name || len(f.Parameters) != len(o.Parameters) {
		return false
	}
	for i, p := range f.Parameters {
		if !p.Equals(o.Parameters[i]) {
			return false
		}
	}
	return true
}

func (c *CurriedFunctionCall) GetAlias() string { return c.Alias }
func (c *CurriedFunctionCall) Accept(v Visitor) { v.VisitCurriedFunctionCall(c) }
func (c *CurriedFunctionCall) Transform(fn func(Expression) Expression) Expression {
	inner, ok := c.InnerFunction.Transform(fn).(*FunctionCall)
	if !ok {
		// the inner function must stay a function call; keep the original
		// when fn mapped it to something else
		inner = c.InnerFunction
	}
	params := make([]Expression, len(c.Parameters))
	for i, p := range c.Parameters {
		params[i] = p.Transform(fn)
	}
	return fn(&CurriedFunctionCall{Alias: c.Alias, InnerFunction: inner, Parameters: params})
}
func (c *CurriedFunctionCall) Iterate(fn func(Expression)) {
	fn(c)
	c.InnerFunction.Iterate(fn)
	for _, p := range c.Parameters {
		p.Iterate(fn)
	}
}
func (c *CurriedFunctionCall) Equals(other Expression) bool {
	o, ok := other.(*CurriedFunctionCall)
	if !ok || c.Alias != o.Alias || !c.InnerFunction.Equals(o.InnerFunction) || len(c.Parameters) != len(o.Parameters) {
		return false
	}
	for i, p := range c.Parameters {
		if !p.Equals(o.Parameters[i]) {
			return false
		}
	}
	return true
}

func (s *SubscriptableReference) GetAlias() string { return s.Alias }
func (s *SubscriptableReference) Accept(v Visitor) { v.VisitSubscriptableReference(s) }
func (s *SubscriptableReference) Transform(fn func(Expression) Expression) Expression {
	col, ok := s.Column.Transform(fn).(*Column)
	if !ok {
		col = s.Column
	}
	key, ok := s.Key.Transform(fn).(*Literal)
	if !ok {
		key = s.Key
	}
	return fn(&SubscriptableReference{Alias: s.Alias, Column: col, Key: key})
}
func (s *SubscriptableReference) Iterate(fn func(Expression)) {
	fn(s)
	s.Column.Iterate(fn)
	s.Key.Iterate(fn)
}
func (s *SubscriptableReference) Equals(other Expression) bool {
	o, ok := other.(*SubscriptableReference)
	return ok && s.Alias == o.Alias && s.Column.Equals(o.Column) && s.Key.Equals(o.Key)
}

func (l *Lambda) GetAlias() string { return l.Alias }
func (l *Lambda) Accept(v Visitor) { v.VisitLambda(l) }
func (l *Lambda) Transform(fn func(Expression) Expression) Expression {
	params := make([]string, len(l.Parameters))
	copy(params, l.Parameters)
	return fn(&Lambda{Alias: l.Alias, Parameters: params, Transformation: l.Transformation.Transform(fn)})
}
func (l *Lambda) Iterate(fn func(Expression)) {
	fn(l)
	l.Transformation.Iterate(fn)
}
func (l *Lambda) Equals(other Expression) bool {
	o, ok := other.(*Lambda)
	if !ok || l.Alias != o.Alias || len(l.Parameters) != len(o.Parameters) {
		return false
	}
	for i, p := range l.Parameters {
		if p != o.Parameters[i] {
			return false
		}
	}
	return l.Transformation.Equals(o.Transformation)
}

func (a *Argument) GetAlias() string { return a.Alias }
func (a *Argument) Accept(v Visitor) { v.VisitArgument(a) }
func (a *Argument) Transform(fn func(Expression) Expression) Expression {
	return fn(&Argument{Alias: a.Alias, Name: a.Name})
}
func (a *Argument) Iterate(fn func(Expression)) { fn(a) }
func (a *Argument) Equals(other Expression) bool {
	o, ok := other.(*Argument)
	return ok && *a == *o
}

func scalarEquals(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := b.(time.Time)
		return ok && at.Equal(bt)
	}
	return a == b
}
