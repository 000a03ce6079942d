package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokOp     // operator or punctuation
	tokEOF
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

// multi-character operators, longest first so "**" wins over "*" and
// "//" wins over "/".
var multiOps = []string{"**", "//", "==", "!=", "<=", ">="}

var singleOps = "+-*/%<>(),"

// tokenize splits an expression into tokens. Any character outside the
// grammar (brackets, dots outside numbers, colons, etc.) is rejected
// here, which is what keeps the language closed.
func tokenize(input string) ([]token, error) {
	var toks []token
	i := 0
	n := len(input)

	for i < n {
		c := input[i]

		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			i++
			continue
		}

		// Quoted string literal, single or double quoted.
		if c == '\'' || c == '"' {
			quote := c
			j := i + 1
			var sb strings.Builder
			closed := false
			for j < n {
				if input[j] == '\\' && j+1 < n {
					next := input[j+1]
					switch next {
					case '\\', quote:
						sb.WriteByte(next)
					case 'n':
						sb.WriteByte('\n')
					case 't':
						sb.WriteByte('\t')
					default:
						sb.WriteByte('\\')
						sb.WriteByte(next)
					}
					j += 2
					continue
				}
				if input[j] == quote {
					closed = true
					break
				}
				sb.WriteByte(input[j])
				j++
			}
			if !closed {
				return nil, fmt.Errorf("unterminated string literal at position %d", i)
			}
			toks = append(toks, token{kind: tokString, text: sb.String(), pos: i})
			i = j + 1
			continue
		}

		// Numeric literal: digits with optional fraction and exponent.
		if c >= '0' && c <= '9' || (c == '.' && i+1 < n && input[i+1] >= '0' && input[i+1] <= '9') {
			j := i
			for j < n && (input[j] >= '0' && input[j] <= '9' || input[j] == '.') {
				j++
			}
			if j < n && (input[j] == 'e' || input[j] == 'E') {
				k := j + 1
				if k < n && (input[k] == '+' || input[k] == '-') {
					k++
				}
				if k < n && input[k] >= '0' && input[k] <= '9' {
					for k < n && input[k] >= '0' && input[k] <= '9' {
						k++
					}
					j = k
				}
			}
			text := input[i:j]
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, fmt.Errorf("malformed number %q at position %d", text, i)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: f, pos: i})
			i = j
			continue
		}

		// Identifier or keyword.
		if isNameStart(rune(c)) {
			j := i
			for j < n && isNameChar(rune(input[j])) {
				j++
			}
			toks = append(toks, token{kind: tokName, text: input[i:j], pos: i})
			i = j
			continue
		}

		// Multi-character operators.
		matched := false
		for _, op := range multiOps {
			if strings.HasPrefix(input[i:], op) {
				toks = append(toks, token{kind: tokOp, text: op, pos: i})
				i += len(op)
				matched = true
				break
			}
		}
		if matched {
			continue
		}

		if strings.IndexByte(singleOps, c) >= 0 {
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
			continue
		}

		return nil, fmt.Errorf("unsupported character %q at position %d", string(c), i)
	}

	toks = append(toks, token{kind: tokEOF, pos: n})
	return toks, nil
}

func isNameStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isNameChar(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
