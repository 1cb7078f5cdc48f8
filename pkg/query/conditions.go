package query

// ClickHouse function names used to express boolean conditions. The SQL
// formatter turns these back into infix operators where one exists.
const (
	FnAnd = "and"
	FnOr  = "or"
	FnNot = "not"

	FnEquals          = "equals"
	FnNotEquals       = "notEquals"
	FnGreater         = "greater"
	FnGreaterOrEquals = "greaterOrEquals"
	FnLess            = "less"
	FnLessOrEquals    = "lessOrEquals"
	FnIn              = "in"
	FnNotIn           = "notIn"
	FnLike            = "like"
	FnNotLike         = "notLike"
	FnIsNull          = "isNull"
	FnIsNotNull       = "isNotNull"
)

// OperatorFunctions maps request operators to condition function names.
var OperatorFunctions = map[string]string{
	"=":           FnEquals,
	"!=":          FnNotEquals,
	">":           FnGreater,
	">=":          FnGreaterOrEquals,
	"<":           FnLess,
	"<=":          FnLessOrEquals,
	"IN":          FnIn,
	"NOT IN":      FnNotIn,
	"LIKE":        FnLike,
	"NOT LIKE":    FnNotLike,
	"IS NULL":     FnIsNull,
	"IS NOT NULL": FnIsNotNull,
}

func BinaryCondition(function string, lhs, rhs Expression) *FunctionCall {
	return &FunctionCall{Name: function, Parameters: []Expression{lhs, rhs}}
}

func UnaryCondition(function string, operand Expression) *FunctionCall {
	return &FunctionCall{Name: function, Parameters: []Expression{operand}}
}

func Equals(lhs, rhs Expression) *FunctionCall { return BinaryCondition(FnEquals, lhs, rhs) }

func In(lhs Expression, rhs Expression) *FunctionCall { return BinaryCondition(FnIn, lhs, rhs) }

// And folds conditions into a right-nested and() chain. Zero conditions
// yields nil, one is returned as-is.
func And(conditions ...Expression) Expression {
	return combine(FnAnd, conditions)
}

func Or(conditions ...Expression) Expression {
	return combine(FnOr, conditions)
}

func combine(function string, conditions []Expression) Expression {
	switch len(conditions) {
	case 0:
		return nil
	case 1:
		return conditions[0]
	default:
		return &FunctionCall{Name: function, Parameters: []Expression{
			conditions[0],
			combine(function, conditions[1:]),
		}}
	}
}

// IsBinaryCondition reports whether e is a call to function with exactly
// two parameters.
func IsBinaryCondition(e Expression, function string) bool {
	fn, ok := e.(*FunctionCall)
	return ok && fn.Name == function && len(fn.Parameters) == 2
}

// FirstLevelConditions flattens a nested and() chain into its leaves.
// Anything that is not a two-parameter and() is a leaf, so an or() buried
// in the chain comes back whole.
func FirstLevelConditions(condition Expression) []Expression {
	if condition == nil {
		return nil
	}
	if IsBinaryCondition(condition, FnAnd) {
		fn := condition.(*FunctionCall)
		return append(
			FirstLevelConditions(fn.Parameters[0]),
			FirstLevelConditions(fn.Parameters[1])...,
		)
	}
	return []Expression{condition}
}
