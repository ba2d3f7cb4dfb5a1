package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/abubalo/luxdb/pkg/luxdb"
)

// Record is the record shape CLI commands operate on. The CLI has no
// compile-time schema; tables hold arbitrary JSON objects.
type Record = map[string]any

var (
	errTableNameRequired = errors.New("table name required")
	errInvalidTableName  = errors.New("invalid table name")
	errInvalidWhere      = errors.New("invalid --where expression")
)

// OpenTable opens the store behind the named table, creating the data
// directory on first use.
func OpenTable(cfg Config, log *slog.Logger, table string) (*luxdb.DB[Record], error) {
	err := validateTableName(table)
	if err != nil {
		return nil, err
	}

	err = os.MkdirAll(cfg.DataDirAbs, 0o755)
	if err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	path := cfg.TablePath(table)

	log.Debug("opening table", "table", table, "path", path)

	return luxdb.Open(luxdb.Config[Record]{
		Path:                path,
		LockTimeout:         cfg.LockTimeout(),
		CheckpointThreshold: cfg.CheckpointThreshold,
		DisableWAL:          cfg.DisableWAL,
	})
}

// validateTableName rejects names that would escape the data directory.
func validateTableName(table string) error {
	if table == "" {
		return errTableNameRequired
	}

	if strings.ContainsAny(table, "/\\") || table == "." || table == ".." {
		return fmt.Errorf("%w: %s", errInvalidTableName, table)
	}

	return nil
}

// whereOps maps expression operators to condition builders, longest
// operators first so "!=" is not parsed as "=".
var whereOps = []struct {
	token string
	build func(luxdb.Field[Record], any) luxdb.Predicate[Record]
}{
	{"!=", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Ne(v) }},
	{">=", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Gte(v) }},
	{"<=", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Lte(v) }},
	{"~=", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Contains(v) }},
	{"=", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Eq(v) }},
	{">", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Gt(v) }},
	{"<", func(f luxdb.Field[Record], v any) luxdb.Predicate[Record] { return f.Lt(v) }},
}

// ParseWhere turns expressions like "status=active", "age>=30" or
// "tags~=admin" into a combined predicate. Multiple expressions AND.
// An empty list matches every record.
func ParseWhere(exprs []string) (luxdb.Predicate[Record], error) {
	pred := luxdb.Predicate[Record](func(Record) bool { return true })

	for _, expr := range exprs {
		single, err := parseWhereExpr(expr)
		if err != nil {
			return nil, err
		}

		pred = pred.And(single)
	}

	return pred, nil
}

func parseWhereExpr(expr string) (luxdb.Predicate[Record], error) {
	for _, op := range whereOps {
		field, rawValue, ok := strings.Cut(expr, op.token)
		if !ok {
			continue
		}

		field = strings.TrimSpace(field)
		if field == "" {
			return nil, fmt.Errorf("%w: %s", errInvalidWhere, expr)
		}

		return op.build(luxdb.Where[Record](field), parseWhereValue(strings.TrimSpace(rawValue))), nil
	}

	return nil, fmt.Errorf("%w: %s (expected field<op>value)", errInvalidWhere, expr)
}

// parseWhereValue interprets the value side of an expression: valid
// JSON scalars keep their type (numbers, booleans, null), anything else
// is a plain string.
func parseWhereValue(raw string) any {
	var v any

	err := json.Unmarshal([]byte(raw), &v)
	if err != nil {
		return raw
	}

	return v
}

// parseRecord decodes one JSON object argument.
func parseRecord(arg string) (Record, error) {
	var rec Record

	err := json.Unmarshal([]byte(arg), &rec)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON object %q: %w", arg, err)
	}

	return rec, nil
}

// printRecords writes records one JSON object per line, optionally
// projected to the named fields. A projected field that no record
// carries is reported as a warning; the likely cause is a typo.
func printRecords(o *IO, records []Record, fields []string) error {
	for _, field := range fields {
		if !anyRecordHas(records, field) {
			o.Warn("unknown field", field)
		}
	}

	for _, rec := range records {
		out := rec
		if len(fields) > 0 {
			out = luxdb.Pick(rec, fields...)
		}

		data, err := json.Marshal(out)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}

		o.Println(string(data))
	}

	return nil
}

// anyRecordHas reports whether at least one record carries field.
// Vacuously true for an empty record set.
func anyRecordHas(records []Record, field string) bool {
	if len(records) == 0 {
		return true
	}

	for _, rec := range records {
		if _, ok := rec[field]; ok {
			return true
		}
	}

	return false
}
