package luxdb

import (
	"encoding/json"
	"fmt"
	"reflect"
)

// mergeRecord shallow-merges patch onto rec: fields of rec are
// overwritten only by keys explicitly present in patch. The merge runs
// over the JSON object form of T, mirroring the serialized shape the
// snapshot and data file use.
func mergeRecord[T any](rec T, patch map[string]any) (T, error) {
	var zero T

	data, err := json.Marshal(rec)
	if err != nil {
		return zero, fmt.Errorf("merge: encode record: %w", err)
	}

	var fields map[string]any

	err = json.Unmarshal(data, &fields)
	if err != nil {
		return zero, fmt.Errorf("merge: record is not a JSON object: %w", err)
	}

	for k, v := range patch {
		fields[k] = v
	}

	merged, err := json.Marshal(fields)
	if err != nil {
		return zero, fmt.Errorf("merge: encode result: %w", err)
	}

	var out T

	err = json.Unmarshal(merged, &out)
	if err != nil {
		return zero, fmt.Errorf("merge: decode result: %w", err)
	}

	return out, nil
}

// updateFirst merges patch into the first record matching pred,
// in place. Reports whether a record matched.
func updateFirst[T any](table []T, pred func(T) bool, patch map[string]any) (bool, error) {
	for i, rec := range table {
		if !pred(rec) {
			continue
		}

		merged, err := mergeRecord(rec, patch)
		if err != nil {
			return false, err
		}

		table[i] = merged

		return true, nil
	}

	return false, nil
}

// deleteMatching filters out every record matching pred. The result is
// a fresh slice; table and its backing array are left untouched, so it
// is safe to call on a published table snapshot.
func deleteMatching[T any](table []T, pred func(T) bool) []T {
	kept := make([]T, 0, len(table))

	for _, rec := range table {
		if !pred(rec) {
			kept = append(kept, rec)
		}
	}

	return kept
}

// deleteFirst removes the first record matching pred, returning a fresh
// slice. Reports whether a record was removed; when none matched, the
// original slice is returned as-is.
func deleteFirst[T any](table []T, pred func(T) bool) ([]T, bool) {
	for i, rec := range table {
		if pred(rec) {
			out := make([]T, 0, len(table)-1)
			out = append(out, table[:i]...)
			out = append(out, table[i+1:]...)

			return out, true
		}
	}

	return table, false
}

// recordID extracts the "id" field from a raw JSON record, if present.
func recordID(data json.RawMessage) (any, bool) {
	var fields map[string]any

	err := json.Unmarshal(data, &fields)
	if err != nil {
		return nil, false
	}

	id, ok := fields["id"]

	return id, ok && id != nil
}

// idOf extracts the "id" field of a typed record via its JSON form.
func idOf[T any](rec T) (any, bool) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, false
	}

	return recordID(data)
}

// jsonEqual reports whether rec serializes to the same JSON value as
// raw, ignoring key order.
func jsonEqual[T any](rec T, raw json.RawMessage) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		return false
	}

	var a, b any

	if json.Unmarshal(data, &a) != nil {
		return false
	}

	if json.Unmarshal(raw, &b) != nil {
		return false
	}

	return reflect.DeepEqual(a, b)
}
