package chain

import (
	"strings"
	"testing"
)

func TestEvalCondition(t *testing.T) {
	ec := NewContext(nil, map[string]any{
		"env":    "prod",
		"empty":  "",
		"count":  3,
		"result": "ok",
	})

	tests := []struct {
		expr string
		want bool
	}{
		{`${env} == prod`, true},
		{`${env} == "prod"`, true},
		{`${env} == 'prod'`, true},
		{`${env} == dev`, false},
		{`${env} != dev`, true},
		{`${env} != prod`, false},
		{`prod == ${env}`, true},
		{`${count} == 3`, true},
		{`${count} != 4`, true},
		{`${missing} == ""`, true},
		{`${missing} != ""`, false},
		{`${empty} == ""`, true},
		{`a == a`, true},
		{`a == b`, false},
		// Embedded placeholders resolve inside larger operands.
		{`status-${env} == status-prod`, true},
		{`${result}-${env} == ok-prod`, true},
		// Quoted literals may contain operator text.
		{`'a!=b' == ${missing}`, false},
		{`"a==b" != 'a!=b'`, true},
		{`${env} == 'a!=b'`, false},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, err := evalCondition(tt.expr, ec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("evalCondition(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestConditionSyntaxErrors(t *testing.T) {
	tests := []struct {
		expr        string
		errContains string
	}{
		{"", "empty"},
		{"   ", "empty"},
		{"no operator", "operator"},
		{"${a} ==", "operand"},
		{"== ${b}", "operand"},
		{"${a} == b == c", "more than one"},
		{"${a} != b != c", "more than one"},
		{"${a} == b != c", "more than one"},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := validateConditionSyntax(tt.expr)
			if err == nil {
				t.Fatalf("validateConditionSyntax(%q) = nil, want error", tt.expr)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err, tt.errContains)
			}
		})
	}
}

func TestSplitConditionPrefersNotEquals(t *testing.T) {
	lhs, op, rhs, err := splitCondition("${a} != b")
	if err != nil {
		t.Fatal(err)
	}
	if lhs != "${a}" || op != "!=" || rhs != "b" {
		t.Errorf("got %q %q %q", lhs, op, rhs)
	}
}
