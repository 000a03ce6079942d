package expr

import (
	"fmt"
	"strings"
)

// InvalidExpressionError reports a malformed or unsafe expression.
// $CALCULATE callers leave the token unresolved, condition callers fail open,
// raw Evaluate callers receive this error directly.
type InvalidExpressionError struct {
	Expr   string
	Reason string
}

func (e *InvalidExpressionError) Error() string {
	return fmt.Sprintf("invalid expression %q: %s", e.Expr, e.Reason)
}

func invalidExpr(expr, format string, args ...interface{}) *InvalidExpressionError {
	return &InvalidExpressionError{Expr: expr, Reason: fmt.Sprintf(format, args...)}
}

// CircularDependencyError reports a cycle among computed parameters.
// Always propagated; the unresolved set names every parameter left
// without a satisfiable evaluation order.
type CircularDependencyError struct {
	Unresolved []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("circular dependency among computed parameters: %s",
		strings.Join(e.Unresolved, ", "))
}
