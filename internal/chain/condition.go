package chain

import (
	"fmt"
	"strings"
)

// Condition grammar: Operand Op Operand, where Op is "==" or "!=" and each
// operand is a literal or a ${var} reference. Richer operators are
// deliberately not supported; a condition that does not fit the grammar is a
// structural error caught before the chain runs.

// evalCondition evaluates a condition expression against the context
// variables. Operands are compared as strings after resolution.
func evalCondition(expr string, ec *ExecutionContext) (bool, error) {
	lhs, op, rhs, err := splitCondition(expr)
	if err != nil {
		return false, err
	}

	left := resolveOperand(lhs, ec)
	right := resolveOperand(rhs, ec)

	if op == "!=" {
		return left != right, nil
	}
	return left == right, nil
}

// validateConditionSyntax checks a condition against the grammar without
// evaluating it.
func validateConditionSyntax(expr string) error {
	_, _, _, err := splitCondition(expr)
	return err
}

// splitCondition splits "lhs op rhs" on the first operator occurrence
// outside quotes, so a quoted literal may contain operator text.
func splitCondition(expr string) (lhs, op, rhs string, err error) {
	trimmed := strings.TrimSpace(expr)
	if trimmed == "" {
		return "", "", "", fmt.Errorf("empty condition")
	}

	idx, op := operatorIndex(trimmed)
	if idx < 0 {
		return "", "", "", fmt.Errorf("condition %q has no == or != operator", expr)
	}

	lhs = strings.TrimSpace(trimmed[:idx])
	rhs = strings.TrimSpace(trimmed[idx+2:])
	if lhs == "" || rhs == "" {
		return "", "", "", fmt.Errorf("condition %q is missing an operand", expr)
	}
	if j, _ := operatorIndex(rhs); j >= 0 {
		return "", "", "", fmt.Errorf("condition %q has more than one operator", expr)
	}
	return lhs, op, rhs, nil
}

// operatorIndex finds the first "==" or "!=" outside single or double quotes.
// Returns -1 when neither occurs.
func operatorIndex(s string) (int, string) {
	var quote byte
	for i := 0; i+1 < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			continue
		}
		if c == '\'' || c == '"' {
			quote = c
			continue
		}
		if (c == '=' || c == '!') && s[i+1] == '=' {
			return i, s[i : i+2]
		}
	}
	return -1, ""
}

// resolveOperand resolves a single operand. A ${var} reference reads the
// context variable (missing variables resolve to ""); quoted literals lose
// their quotes; anything else is taken verbatim.
func resolveOperand(operand string, ec *ExecutionContext) string {
	if m := placeholderPattern.FindStringSubmatch(operand); m != nil && m[0] == operand {
		v, ok := ec.Var(m[1])
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	}
	if len(operand) >= 2 {
		if (operand[0] == '"' && operand[len(operand)-1] == '"') ||
			(operand[0] == '\'' && operand[len(operand)-1] == '\'') {
			return operand[1 : len(operand)-1]
		}
	}
	// Operands containing embedded placeholders are resolved like commands.
	return resolvePlaceholders(operand, ec)
}
