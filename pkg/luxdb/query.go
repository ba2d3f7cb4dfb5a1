package luxdb

import (
	"encoding/json"
	"reflect"
	"strings"
)

// Predicate matches records. The staged and direct update/delete
// operations of [DB] and [Tx] accept plain func(T) bool values;
// Predicate exists so conditions built with [Where] compose with
// [Predicate.And] and [Predicate.Or].
type Predicate[T any] func(T) bool

// And returns a predicate matching records that satisfy both p and q.
func (p Predicate[T]) And(q Predicate[T]) Predicate[T] {
	return func(rec T) bool { return p(rec) && q(rec) }
}

// Or returns a predicate matching records that satisfy p or q.
func (p Predicate[T]) Or(q Predicate[T]) Predicate[T] {
	return func(rec T) bool { return p(rec) || q(rec) }
}

// Not returns the negation of p.
func (p Predicate[T]) Not() Predicate[T] {
	return func(rec T) bool { return !p(rec) }
}

// Field is a fluent condition builder over one top-level field of the
// record's JSON object form. Start with [Where], finish with a
// comparator:
//
//	active := luxdb.Where[User]("status").Eq("active")
//	db.UpdateOne(ctx, active, map[string]any{"status": "inactive"})
//
// Comparisons follow JSON semantics: numbers compare as float64
// regardless of the Go field type, strings lexicographically. A record
// without the field never matches.
type Field[T any] struct {
	name string
}

// Where starts a condition on the named top-level field.
func Where[T any](field string) Field[T] {
	return Field[T]{name: field}
}

// Eq matches records whose field equals value.
func (f Field[T]) Eq(value any) Predicate[T] {
	want := normalizeJSON(value)

	return f.match(func(got any) bool {
		return reflect.DeepEqual(got, want)
	})
}

// Ne matches records whose field is present and differs from value.
func (f Field[T]) Ne(value any) Predicate[T] {
	want := normalizeJSON(value)

	return f.match(func(got any) bool {
		return !reflect.DeepEqual(got, want)
	})
}

// Gt matches records whose field is greater than value.
func (f Field[T]) Gt(value any) Predicate[T] {
	return f.compare(value, func(c int) bool { return c > 0 })
}

// Gte matches records whose field is greater than or equal to value.
func (f Field[T]) Gte(value any) Predicate[T] {
	return f.compare(value, func(c int) bool { return c >= 0 })
}

// Lt matches records whose field is less than value.
func (f Field[T]) Lt(value any) Predicate[T] {
	return f.compare(value, func(c int) bool { return c < 0 })
}

// Lte matches records whose field is less than or equal to value.
func (f Field[T]) Lte(value any) Predicate[T] {
	return f.compare(value, func(c int) bool { return c <= 0 })
}

// Contains matches records whose string field contains substr, or whose
// array field contains an element equal to value.
func (f Field[T]) Contains(value any) Predicate[T] {
	want := normalizeJSON(value)

	return f.match(func(got any) bool {
		switch v := got.(type) {
		case string:
			s, ok := want.(string)

			return ok && strings.Contains(v, s)
		case []any:
			for _, elem := range v {
				if reflect.DeepEqual(elem, want) {
					return true
				}
			}

			return false
		default:
			return false
		}
	})
}

// In matches records whose field equals one of values.
func (f Field[T]) In(values ...any) Predicate[T] {
	want := make([]any, len(values))
	for i, v := range values {
		want[i] = normalizeJSON(v)
	}

	return f.match(func(got any) bool {
		for _, w := range want {
			if reflect.DeepEqual(got, w) {
				return true
			}
		}

		return false
	})
}

// Exists matches records that have the field at all.
func (f Field[T]) Exists() Predicate[T] {
	return f.match(func(any) bool { return true })
}

// match builds a predicate that extracts the field and applies cmp.
func (f Field[T]) match(cmp func(any) bool) Predicate[T] {
	return func(rec T) bool {
		got, ok := fieldValue(rec, f.name)
		if !ok {
			return false
		}

		return cmp(got)
	}
}

// compare builds an ordering predicate for numbers and strings.
func (f Field[T]) compare(value any, accept func(int) bool) Predicate[T] {
	want := normalizeJSON(value)

	return f.match(func(got any) bool {
		c, ok := orderedCompare(got, want)

		return ok && accept(c)
	})
}

// fieldValue extracts a top-level field from the record's JSON form.
func fieldValue[T any](rec T, name string) (any, bool) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false
	}

	var fields map[string]any

	err = json.Unmarshal(data, &fields)
	if err != nil {
		return nil, false
	}

	v, ok := fields[name]

	return v, ok
}

// normalizeJSON round-trips v through JSON so comparisons see the same
// representation field extraction produces (ints become float64, etc).
func normalizeJSON(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}

	var out any

	err = json.Unmarshal(data, &out)
	if err != nil {
		return v
	}

	return out
}

// orderedCompare compares two JSON values of the same kind.
// Returns -1/0/1 and whether the pair was comparable.
func orderedCompare(a, b any) (int, bool) {
	switch av := a.(type) {
	case float64:
		bv, ok := b.(float64)
		if !ok {
			return 0, false
		}

		switch {
		case av < bv:
			return -1, true
		case av > bv:
			return 1, true
		default:
			return 0, true
		}
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}

		return strings.Compare(av, bv), true
	default:
		return 0, false
	}
}

// Pick projects the named top-level fields of rec into a map.
// Missing fields are omitted.
func Pick[T any](rec T, fields ...string) map[string]any {
	out := make(map[string]any, len(fields))

	for _, name := range fields {
		if v, ok := fieldValue(rec, name); ok {
			out[name] = v
		}
	}

	return out
}
