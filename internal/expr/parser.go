package expr

// Recursive-descent parser with Python-compatible precedence:
//
//	ternary:    or_test ["if" or_test "else" ternary]
//	or_test:    and_test ("or" and_test)*
//	and_test:   not_test ("and" not_test)*
//	not_test:   "not" not_test | comparison
//	comparison: arith (compare_op arith)*        chained
//	arith:      term (("+"|"-") term)*
//	term:       factor (("*"|"/"|"//"|"%") factor)*
//	factor:     ("+"|"-") factor | power
//	power:      atom ["**" factor]               right-associative
//	atom:       NUMBER | STRING | NAME | NAME "(" args ")" | "(" ternary ")"

type parser struct {
	src  string
	toks []token
	pos  int
}

// Parse compiles an expression into its AST. The result is reusable and
// safe for concurrent evaluation against independent contexts.
func Parse(input string) (*Node, error) {
	toks, err := tokenize(input)
	if err != nil {
		return nil, invalidExpr(input, "%v", err)
	}
	p := &parser{src: input, toks: toks}
	node, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, invalidExpr(input, "unexpected token %q at position %d", p.peek().text, p.peek().pos)
	}
	return node, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) matchOp(text string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) matchKeyword(word string) bool {
	if t := p.peek(); t.kind == tokName && t.text == word {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseTernary() (*Node, error) {
	then, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.matchKeyword("if") {
		return then, nil
	}
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.matchKeyword("else") {
		return nil, invalidExpr(p.src, "ternary expression missing 'else'")
	}
	els, err := p.parseTernary()
	if err != nil {
		return nil, err
	}
	return &Node{Kind: NodeCond, Args: []*Node{then, cond, els}}, nil
}

func (p *parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	operands := []*Node{left}
	for p.matchKeyword("or") {
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return &Node{Kind: NodeBoolOp, Op: "or", Args: operands}, nil
}

func (p *parser) parseAnd() (*Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	operands := []*Node{left}
	for p.matchKeyword("and") {
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		operands = append(operands, right)
	}
	if len(operands) == 1 {
		return left, nil
	}
	return &Node{Kind: NodeBoolOp, Op: "and", Args: operands}, nil
}

func (p *parser) parseNot() (*Node, error) {
	if p.matchKeyword("not") {
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeUnary, Op: "not", Args: []*Node{operand}}, nil
	}
	return p.parseComparison()
}

func isCompareOp(text string) bool {
	switch text {
	case "==", "!=", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (p *parser) parseComparison() (*Node, error) {
	left, err := p.parseArith()
	if err != nil {
		return nil, err
	}
	operands := []*Node{left}
	var ops []string
	for {
		t := p.peek()
		if t.kind != tokOp || !isCompareOp(t.text) {
			break
		}
		p.next()
		right, err := p.parseArith()
		if err != nil {
			return nil, err
		}
		ops = append(ops, t.text)
		operands = append(operands, right)
	}
	if len(ops) == 0 {
		return left, nil
	}
	return &Node{Kind: NodeCompare, Ops: ops, Args: operands}, nil
}

func (p *parser) parseArith() (*Node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "+" && t.text != "-") {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeBinary, Op: t.text, Args: []*Node{left, right}}
	}
}

func (p *parser) parseTerm() (*Node, error) {
	left, err := p.parseFactor()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		if t.kind != tokOp || (t.text != "*" && t.text != "/" && t.text != "//" && t.text != "%") {
			return left, nil
		}
		p.next()
		right, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeBinary, Op: t.text, Args: []*Node{left, right}}
	}
}

func (p *parser) parseFactor() (*Node, error) {
	if t := p.peek(); t.kind == tokOp && (t.text == "+" || t.text == "-") {
		p.next()
		operand, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeUnary, Op: t.text, Args: []*Node{operand}}, nil
	}
	return p.parsePower()
}

func (p *parser) parsePower() (*Node, error) {
	base, err := p.parseAtom()
	if err != nil {
		return nil, err
	}
	if p.matchOp("**") {
		// Right-associative; the exponent may carry its own unary sign.
		exp, err := p.parseFactor()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeBinary, Op: "**", Args: []*Node{base, exp}}, nil
	}
	return base, nil
}

func (p *parser) parseAtom() (*Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		return &Node{Kind: NodeNumber, Num: t.num}, nil
	case tokString:
		p.next()
		return &Node{Kind: NodeString, Str: t.text}, nil
	case tokName:
		switch t.text {
		case "if", "else", "and", "or", "not":
			return nil, invalidExpr(p.src, "unexpected keyword %q at position %d", t.text, t.pos)
		}
		p.next()
		if p.matchOp("(") {
			return p.parseCallArgs(t.text)
		}
		return &Node{Kind: NodeName, Str: t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.next()
			inner, err := p.parseTernary()
			if err != nil {
				return nil, err
			}
			if !p.matchOp(")") {
				return nil, invalidExpr(p.src, "missing closing parenthesis")
			}
			return inner, nil
		}
	}
	return nil, invalidExpr(p.src, "unexpected token %q at position %d", t.text, t.pos)
}

func (p *parser) parseCallArgs(name string) (*Node, error) {
	// Calls are validated against the whitelist at parse time so an
	// unlisted function never reaches evaluation.
	if _, ok := builtinFuncs[name]; !ok {
		return nil, invalidExpr(p.src, "call to unlisted function %q", name)
	}

	call := &Node{Kind: NodeCall, Str: name}
	if p.matchOp(")") {
		return call, nil
	}
	for {
		arg, err := p.parseTernary()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)
		if p.matchOp(",") {
			continue
		}
		if p.matchOp(")") {
			return call, nil
		}
		return nil, invalidExpr(p.src, "malformed argument list for %q", name)
	}
}
