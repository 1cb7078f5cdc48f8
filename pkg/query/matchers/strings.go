package matchers

// String patterns match the scalar name/alias fields of AST nodes. An unset
// alias is the empty string, so the Optional variants are the ones that
// accept it.

type stringPattern struct {
	value          string
	exact          bool
	allowUnset     bool
	requireNonZero bool
}

// String matches exactly value, which must be set.
func String(value string) Pattern[string] {
	return stringPattern{value: value, exact: true}
}

// AnyString matches any non-empty string.
func AnyString() Pattern[string] {
	return stringPattern{requireNonZero: true}
}

// OptionalString matches exactly value, the empty string included.
func OptionalString(value string) Pattern[string] {
	return stringPattern{value: value, exact: true, allowUnset: true}
}

// AnyOptionalString matches everything, the empty string included.
func AnyOptionalString() Pattern[string] {
	return stringPattern{allowUnset: true}
}

func (p stringPattern) Match(s string) *MatchResult {
	if s == "" && !p.allowUnset {
		return nil
	}
	if p.requireNonZero && s == "" {
		return nil
	}
	if p.exact && s != p.value {
		return nil
	}
	return NewMatchResult()
}

// AnyOf matches any of the given exact strings. Sugar for Or(String(...)).
func AnyOf(values ...string) Pattern[string] {
	patterns := make([]Pattern[string], len(values))
	for i, v := range values {
		patterns[i] = String(v)
	}
	return Or(patterns...)
}

type scalarPattern struct {
	value any
	any   bool
}

// ScalarValue matches a literal value exactly.
func ScalarValue(value any) Pattern[any] { return scalarPattern{value: value} }

// AnyScalar matches any literal value, nil included.
func AnyScalar() Pattern[any] { return scalarPattern{any: true} }

func (p scalarPattern) Match(v any) *MatchResult {
	if p.any || v == p.value {
		return NewMatchResult()
	}
	return nil
}
