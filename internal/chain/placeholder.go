package chain

import (
	"fmt"
	"regexp"
)

// placeholderPattern matches ${name} references in raw commands and
// condition operands.
var placeholderPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_.]+)\}`)

// ResolveCommand substitutes ${name} references in a command template
// against the current context variables. Recovery strategies use this to
// re-derive a command from fresh state instead of a cached resolution.
func (c *ExecutionContext) ResolveCommand(template string) string {
	return resolvePlaceholders(template, c)
}

// resolvePlaceholders substitutes ${name} references against the context
// variables in a single left-to-right pass. Substituted values are not
// re-scanned, so a value containing "${...}" cannot trigger re-expansion.
// Unknown variables resolve to the empty string.
func resolvePlaceholders(s string, ec *ExecutionContext) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		v, ok := ec.Var(name)
		if !ok {
			return ""
		}
		return fmt.Sprint(v)
	})
}
