package cli

import (
	"errors"
	"testing"
)

func Test_ParseWhere_Supports_All_Operators(t *testing.T) {
	t.Parallel()

	rec := Record{"name": "Ada", "age": float64(36), "tags": []any{"admin"}}

	cases := []struct {
		expr string
		want bool
	}{
		{"name=Ada", true},
		{"name=Bea", false},
		{"name!=Bea", true},
		{"age>30", true},
		{"age>=36", true},
		{"age<36", false},
		{"age<=36", true},
		{"name~=Ad", true},
		{"tags~=admin", true},
		{"missing=x", false},
	}

	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			t.Parallel()

			pred, err := ParseWhere([]string{tc.expr})
			if err != nil {
				t.Fatalf("parse %q: %v", tc.expr, err)
			}

			if got := pred(rec); got != tc.want {
				t.Fatalf("%q matched = %v, want %v", tc.expr, got, tc.want)
			}
		})
	}
}

func Test_ParseWhere_Combines_Expressions_With_And(t *testing.T) {
	t.Parallel()

	pred, err := ParseWhere([]string{"status=active", "age>=30"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if !pred(Record{"status": "active", "age": float64(36)}) {
		t.Fatal("conjunction did not match record satisfying both")
	}

	if pred(Record{"status": "active", "age": float64(20)}) {
		t.Fatal("conjunction matched record failing one expression")
	}
}

func Test_ParseWhere_Parses_JSON_Values(t *testing.T) {
	t.Parallel()

	pred, err := ParseWhere([]string{"active=true"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if !pred(Record{"active": true}) {
		t.Fatal("boolean value not matched")
	}

	if pred(Record{"active": "true"}) {
		t.Fatal("string value matched boolean expression")
	}
}

func Test_ParseWhere_Rejects_Malformed_Expressions(t *testing.T) {
	t.Parallel()

	for _, expr := range []string{"noop", "=value", "  =x"} {
		_, err := ParseWhere([]string{expr})
		if !errors.Is(err, errInvalidWhere) {
			t.Fatalf("parse %q: %v, want errInvalidWhere", expr, err)
		}
	}
}

func Test_ValidateTableName_Rejects_Path_Traversal(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "..", "a/b", `a\b`} {
		if err := validateTableName(name); err == nil {
			t.Fatalf("name %q accepted", name)
		}
	}

	if err := validateTableName("users"); err != nil {
		t.Fatalf("plain name rejected: %v", err)
	}
}
