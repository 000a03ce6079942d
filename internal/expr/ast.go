// Package expr implements the sandboxed expression and condition language
// used to compute workflow parameter values and gate workflow steps.
//
// The grammar covers numeric and quoted-string literals, variable
// references, arithmetic (+ - * / // % **), unary (- + not), chained
// comparisons, short-circuit and/or, parentheses, the Python-style ternary
// (X if COND else Y) and a fixed whitelist of math functions. Everything
// else - attribute access, indexing, unlisted calls - fails to parse.
package expr

// NodeKind tags every AST node variant. Evaluation is one exhaustive
// switch over this enum rather than class-hierarchy dispatch.
type NodeKind int

const (
	NodeNumber  NodeKind = iota // numeric literal: Num
	NodeString                  // string literal: Str
	NodeName                    // variable reference: Str
	NodeUnary                   // unary op: Op, Args[0]
	NodeBinary                  // arithmetic op: Op, Args[0], Args[1]
	NodeCompare                 // chained comparison: Args (n+1 operands), Ops (n)
	NodeBoolOp                  // and/or: Op, Args (2+)
	NodeCond                    // ternary: Args[0]=then, Args[1]=cond, Args[2]=else
	NodeCall                    // whitelisted call: Str=func name, Args
)

// Node is the tagged-union AST node. Only the fields relevant to Kind
// are populated.
type Node struct {
	Kind NodeKind
	Num  float64
	Str  string
	Op   string
	Ops  []string
	Args []*Node
}
