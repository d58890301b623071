package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// UnknownFieldPolicy controls how the validator treats result-value entries
// whose key has no matching schema row. A deployment picks one policy and
// uses it consistently; mixing policies per call is a caller bug.
type UnknownFieldPolicy string

const (
	// UnknownFieldIgnore drops entries with no schema row from the
	// normalized output.
	UnknownFieldIgnore UnknownFieldPolicy = "ignore"
	// UnknownFieldReject fails validation on the first entry with no
	// schema row.
	UnknownFieldReject UnknownFieldPolicy = "reject"
)

// SchemaIndex maps result-field keys to their schema rows for one project.
// It is built fresh from the rows read inside the validating transaction and
// never cached across calls: schema rows are mutable and there is no
// invalidation channel, so a stale index would silently misvalidate.
type SchemaIndex map[string]ResultSchema

// NewSchemaIndex builds a key-indexed view over the given schema rows.
// Keys are unique per project (a storage-layer rule), so a plain overwrite
// on duplicates is acceptable here.
func NewSchemaIndex(rows []ResultSchema) SchemaIndex {
	index := make(SchemaIndex, len(rows))
	for _, row := range rows {
		index[row.Key] = row
	}
	return index
}

// ValidationErrorKind classifies result-value validation failures.
type ValidationErrorKind string

// Validation failure kinds.
const (
	// ValidationUnknownField reports a value-map key absent from the schema.
	ValidationUnknownField ValidationErrorKind = "unknown_field"
	// ValidationTypeMismatch reports a value whose runtime shape does not
	// match the field's declared type.
	ValidationTypeMismatch ValidationErrorKind = "type_mismatch"
	// ValidationInvalidOption reports a categorical value outside the
	// declared option set.
	ValidationInvalidOption ValidationErrorKind = "invalid_option"
)

// ValidationError reports the single failing entry of a validation call.
// The rendered message names the field's label and, for option errors, the
// allowed set; API layers forward it verbatim as the 400 detail.
type ValidationError struct {
	Kind    ValidationErrorKind
	Key     string
	Label   string
	Options []string
	Value   any

	// hint names the expected shape in type-mismatch messages
	// ("numeric", "string", "text", ...).
	hint string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case ValidationUnknownField:
		return fmt.Sprintf("result field %q is not defined for this project", e.Key)
	case ValidationInvalidOption:
		return fmt.Sprintf("result field %q must be one of %v (got %q)", e.Label, e.Options, e.Value)
	default:
		return fmt.Sprintf("result field %q must be %s (got %v)", e.Label, e.hint, e.Value)
	}
}

// ValidateResultValues checks values against the index and returns a new
// normalized map. The input map is never mutated. Entries are processed in
// deterministic (sorted-key) order and validation stops at the first
// failure, so callers see exactly one error per call.
//
// On success every returned value matches its declared type shape:
// quantitative values are float64 (or []float64 for sequences), categorical
// and qualitative values are the submitted strings. Nil and empty-string
// values are treated as "not provided" and copied through untouched.
func ValidateResultValues(index SchemaIndex, values map[string]any, policy UnknownFieldPolicy) (map[string]any, error) {
	normalized := make(map[string]any, len(values))
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := values[key]
		schema, ok := index[key]
		if !ok {
			if policy == UnknownFieldReject {
				return nil, &ValidationError{Kind: ValidationUnknownField, Key: key, Value: value}
			}
			continue
		}
		if isAbsent(value) {
			normalized[key] = value
			continue
		}
		out, err := validateFieldValue(schema, value)
		if err != nil {
			return nil, err
		}
		normalized[key] = out
	}
	return normalized, nil
}

// isAbsent reports whether a submitted value counts as "not provided".
func isAbsent(value any) bool {
	if value == nil {
		return true
	}
	s, ok := value.(string)
	return ok && s == ""
}

func validateFieldValue(schema ResultSchema, value any) (any, error) {
	switch schema.ValueType {
	case ValueQuantitative:
		return validateQuantitative(schema, value)
	case ValueCategorical:
		return validateCategorical(schema, value)
	case ValueQualitative:
		s, ok := value.(string)
		if !ok {
			return nil, mismatch(schema, value, "text")
		}
		return s, nil
	default:
		// Unreachable for rows admitted by the storage rules; treated as a
		// mismatch rather than a panic so a corrupt row fails one request.
		return nil, mismatch(schema, value, "supported")
	}
}

func validateQuantitative(schema ResultSchema, value any) (any, error) {
	if seq, ok := asSequence(value); ok {
		out := make([]float64, len(seq))
		for i, elem := range seq {
			f, ok := coerceFloat(elem)
			if !ok {
				return nil, mismatch(schema, elem, "numeric sequence")
			}
			out[i] = f
		}
		return out, nil
	}
	f, ok := coerceFloat(value)
	if !ok {
		return nil, mismatch(schema, value, "numeric")
	}
	return f, nil
}

func validateCategorical(schema ResultSchema, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, mismatch(schema, value, "string")
	}
	if len(schema.Options) == 0 {
		return s, nil
	}
	for _, option := range schema.Options {
		if s == option {
			return s, nil
		}
	}
	return nil, &ValidationError{
		Kind:    ValidationInvalidOption,
		Key:     schema.Key,
		Label:   schema.Label,
		Options: append([]string(nil), schema.Options...),
		Value:   s,
	}
}

func mismatch(schema ResultSchema, value any, hint string) *ValidationError {
	return &ValidationError{
		Kind:  ValidationTypeMismatch,
		Key:   schema.Key,
		Label: schema.Label,
		Value: value,
		hint:  hint,
	}
}

// asSequence normalizes the accepted sequence shapes to []any. JSON decoding
// yields []any; re-validation of already-normalized maps yields []float64.
func asSequence(value any) ([]any, bool) {
	switch v := value.(type) {
	case []any:
		return v, true
	case []float64:
		out := make([]any, len(v))
		for i, f := range v {
			out[i] = f
		}
		return out, true
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

// coerceFloat accepts every value for which a float interpretation is
// defined: native numerics and strings strconv can parse. Booleans are
// explicitly excluded.
func coerceFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case interface{ Float64() (float64, error) }:
		// json.Number satisfies this without importing encoding/json here.
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
