// Package request validates the JSON query body and builds the logical
// query from it. The schema model is structural: typed properties with
// defaults and required sets, composed from a query part plus extension
// parts that may not redefine each other's properties.
package request

import (
	"fmt"
	"sort"

	"github.com/getsentry/snuba/pkg/multierr"
)

type (
	PropertyType string

	Property struct {
		Type    PropertyType
		Default any

		// HasDefault distinguishes an explicit nil default from none.
		HasDefault bool
	}

	// Schema is one part of the request: a flat set of typed properties.
	Schema struct {
		Properties map[string]Property
		Required   []string
	}

	// RequestSchema is the composed schema: the query part plus named
	// extension parts, all sharing the flat top-level key space.
	RequestSchema struct {
		Query      *Schema
		Extensions map[string]*Schema

		owner map[string]string
	}

	// Request is a validated body split back into its parts.
	Request struct {
		Query      map[string]any
		Extensions map[string]map[string]any
	}
)

const (
	TypeString  PropertyType = "string"
	TypeInteger PropertyType = "integer"
	TypeNumber  PropertyType = "number"
	TypeBoolean PropertyType = "boolean"
	TypeArray   PropertyType = "array"
	TypeObject  PropertyType = "object"
	TypeAny     PropertyType = "any"
)

// NewRequestSchema composes the parts, rejecting property collisions.
func NewRequestSchema(querySchema *Schema, extensions map[string]*Schema) (*RequestSchema, error) {
	rs := &RequestSchema{
		Query:      querySchema,
		Extensions: extensions,
		owner:      make(map[string]string),
	}
	for name := range querySchema.Properties {
		rs.owner[name] = "query"
	}

	extNames := make([]string, 0, len(extensions))
	for name := range extensions {
		extNames = append(extNames, name)
	}
	sort.Strings(extNames)

	for _, extName := range extNames {
		for prop := range extensions[extName].Properties {
			if existing, taken := rs.owner[prop]; taken {
				return nil, fmt.Errorf(
					"extension %q redefines property %q owned by %s", extName, prop, existing)
			}
			rs.owner[prop] = extName
		}
	}
	return rs, nil
}

// Validate splits body into parts, applies defaults and checks types and
// required sets. Unknown top-level keys are rejected.
func (rs *RequestSchema) Validate(body map[string]any) (*Request, error) {
	var errs multierr.Error

	for key := range body {
		if _, known := rs.owner[key]; !known {
			errs.Append(fmt.Errorf("unknown property %q", key))
		}
	}

	req := &Request{
		Query:      make(map[string]any),
		Extensions: make(map[string]map[string]any),
	}
	req.Query = rs.Query.validatePart("query", body, &errs)
	for name, ext := range rs.Extensions {
		req.Extensions[name] = ext.validatePart(name, body, &errs)
	}

	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}
	return req, nil
}

// Template returns a body holding every default, the starting point shown
// to API users.
func (rs *RequestSchema) Template() map[string]any {
	out := make(map[string]any)
	add := func(s *Schema) {
		for name, prop := range s.Properties {
			if prop.HasDefault {
				out[name] = prop.Default
			}
		}
	}
	add(rs.Query)
	for _, ext := range rs.Extensions {
		add(ext)
	}
	return out
}

func (s *Schema) validatePart(part string, body map[string]any, errs *multierr.Error) map[string]any {
	out := make(map[string]any)
	for name, prop := range s.Properties {
		value, present := body[name]
		if !present {
			if prop.HasDefault {
				out[name] = prop.Default
			}
			continue
		}
		if !typeMatches(prop.Type, value) {
			errs.Append(fmt.Errorf("%s.%s: expected %s, got %T", part, name, prop.Type, value))
			continue
		}
		out[name] = value
	}
	for _, name := range s.Required {
		if _, ok := out[name]; !ok {
			errs.Append(fmt.Errorf("%s.%s is required", part, name))
		}
	}
	return out
}

// typeMatches accepts what encoding/json produces: float64 for all
// numbers, so integer checks require a whole value.
func typeMatches(t PropertyType, v any) bool {
	switch t {
	case TypeAny:
		return true
	case TypeString:
		_, ok := v.(string)
		return ok
	case TypeBoolean:
		_, ok := v.(bool)
		return ok
	case TypeNumber:
		switch v.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case TypeInteger:
		switch v := v.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case TypeArray:
		_, ok := v.([]any)
		return ok
	case TypeObject:
		_, ok := v.(map[string]any)
		return ok
	default:
		return false
	}
}
