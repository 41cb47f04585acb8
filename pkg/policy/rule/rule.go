// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-threshold-kms.
//
// go-threshold-kms is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package rule implements the constrained boolean expression language
// used by custom access policies.
//
// The language is deliberately tiny: comparisons between a fixed set of
// request attributes and string literals, combined with and/or/not.
// There is no arithmetic, no function calls, no general-purpose
// interpreter, and no way to reach outside the request context.
//
// Grammar (lowest to highest precedence):
//
//	expr    = and { ("or" | "||") and }
//	and     = unary { ("and" | "&&") unary }
//	unary   = ("not" | "!") unary | primary
//	primary = "(" expr ")" | term [ ("==" | "!=") term ]
//	term    = identifier | string-literal | "true" | "false"
//
// Identifiers are the fixed variable set: principal, role, objectRef,
// objectOwner, action (strings) and isOwner, isAdmin (booleans). String
// literals may be single- or double-quoted.
//
// Example expressions:
//
//	role == 'reviewer' and action == 'view'
//	isOwner or principal == 'alice'
//	not (action == 'delete')
package rule

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrInvalidExpression is returned for malformed rule text or for
// evaluation problems such as unknown identifiers or type mismatches.
var ErrInvalidExpression = errors.New("rule: invalid expression")

// Vars is the fixed variable set a rule may reference. All values come
// from the access-request context; rules cannot observe anything else.
type Vars struct {
	Principal   string
	Role        string
	ObjectRef   string
	ObjectOwner string
	Action      string
	IsOwner     bool
	IsAdmin     bool
}

// Expr is a parsed rule expression, safe for repeated evaluation.
type Expr struct {
	root node
	text string
}

// Parse compiles rule text into an expression AST.
func Parse(text string) (*Expr, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty rule", ErrInvalidExpression)
	}

	tokens, err := lex(text)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q after expression", ErrInvalidExpression, p.peek().text)
	}

	return &Expr{root: root, text: text}, nil
}

// String returns the original rule text.
func (e *Expr) String() string {
	return e.text
}

// Eval evaluates the expression against the given variables. The result
// of the top-level expression must be boolean.
func (e *Expr) Eval(vars *Vars) (bool, error) {
	if vars == nil {
		return false, fmt.Errorf("%w: nil variables", ErrInvalidExpression)
	}
	v, err := e.root.eval(vars)
	if err != nil {
		return false, err
	}
	if v.kind != kindBool {
		return false, fmt.Errorf("%w: expression does not yield a boolean", ErrInvalidExpression)
	}
	return v.b, nil
}

// --- values ---

type valueKind int

const (
	kindBool valueKind = iota
	kindString
)

type value struct {
	kind valueKind
	b    bool
	s    string
}

// --- AST ---

type node interface {
	eval(vars *Vars) (value, error)
}

type literalNode struct {
	val value
}

func (n literalNode) eval(*Vars) (value, error) {
	return n.val, nil
}

type identNode struct {
	name string
}

func (n identNode) eval(vars *Vars) (value, error) {
	switch n.name {
	case "principal":
		return value{kind: kindString, s: vars.Principal}, nil
	case "role":
		return value{kind: kindString, s: vars.Role}, nil
	case "objectRef":
		return value{kind: kindString, s: vars.ObjectRef}, nil
	case "objectOwner":
		return value{kind: kindString, s: vars.ObjectOwner}, nil
	case "action":
		return value{kind: kindString, s: vars.Action}, nil
	case "isOwner":
		return value{kind: kindBool, b: vars.IsOwner}, nil
	case "isAdmin":
		return value{kind: kindBool, b: vars.IsAdmin}, nil
	default:
		return value{}, fmt.Errorf("%w: unknown identifier %q", ErrInvalidExpression, n.name)
	}
}

type compareNode struct {
	left, right node
	negate      bool
}

func (n compareNode) eval(vars *Vars) (value, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(vars)
	if err != nil {
		return value{}, err
	}
	if l.kind != r.kind {
		return value{}, fmt.Errorf("%w: cannot compare string with boolean", ErrInvalidExpression)
	}

	var equal bool
	if l.kind == kindString {
		equal = l.s == r.s
	} else {
		equal = l.b == r.b
	}
	return value{kind: kindBool, b: equal != n.negate}, nil
}

type notNode struct {
	inner node
}

func (n notNode) eval(vars *Vars) (value, error) {
	v, err := n.inner.eval(vars)
	if err != nil {
		return value{}, err
	}
	if v.kind != kindBool {
		return value{}, fmt.Errorf("%w: 'not' requires a boolean operand", ErrInvalidExpression)
	}
	return value{kind: kindBool, b: !v.b}, nil
}

type binaryNode struct {
	left, right node
	isOr        bool
}

func (n binaryNode) eval(vars *Vars) (value, error) {
	l, err := n.left.eval(vars)
	if err != nil {
		return value{}, err
	}
	if l.kind != kindBool {
		return value{}, fmt.Errorf("%w: logical operands must be boolean", ErrInvalidExpression)
	}
	// Short-circuit.
	if n.isOr && l.b {
		return l, nil
	}
	if !n.isOr && !l.b {
		return l, nil
	}

	r, err := n.right.eval(vars)
	if err != nil {
		return value{}, err
	}
	if r.kind != kindBool {
		return value{}, fmt.Errorf("%w: logical operands must be boolean", ErrInvalidExpression)
	}
	return r, nil
}

// --- lexer ---

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokTrue
	tokFalse
	tokEq
	tokNeq
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		c := runes[i]
		switch {
		case unicode.IsSpace(c):
			i++

		case c == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++

		case c == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++

		case c == '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokEq, "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("%w: single '=' (use '==')", ErrInvalidExpression)
			}

		case c == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokNeq, "!="})
				i += 2
			} else {
				tokens = append(tokens, token{tokNot, "!"})
				i++
			}

		case c == '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				tokens = append(tokens, token{tokAnd, "&&"})
				i += 2
			} else {
				return nil, fmt.Errorf("%w: single '&' (use '&&' or 'and')", ErrInvalidExpression)
			}

		case c == '|':
			if i+1 < len(runes) && runes[i+1] == '|' {
				tokens = append(tokens, token{tokOr, "||"})
				i += 2
			} else {
				return nil, fmt.Errorf("%w: single '|' (use '||' or 'or')", ErrInvalidExpression)
			}

		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j == len(runes) {
				return nil, fmt.Errorf("%w: unterminated string literal", ErrInvalidExpression)
			}
			tokens = append(tokens, token{tokString, string(runes[i+1 : j])})
			i = j + 1

		case unicode.IsLetter(c) || c == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			switch word {
			case "and":
				tokens = append(tokens, token{tokAnd, word})
			case "or":
				tokens = append(tokens, token{tokOr, word})
			case "not":
				tokens = append(tokens, token{tokNot, word})
			case "true":
				tokens = append(tokens, token{tokTrue, word})
			case "false":
				tokens = append(tokens, token{tokFalse, word})
			default:
				tokens = append(tokens, token{tokIdent, word})
			}
			i = j

		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrInvalidExpression, string(c))
		}
	}

	tokens = append(tokens, token{tokEOF, ""})
	return tokens, nil
}

// --- parser ---

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = binaryNode{left: left, right: right, isOr: true}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokAnd {
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{left: left, right: right, isOr: false}
	}
	return left, nil
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().kind == tokNot {
		p.next()
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return notNode{inner: inner}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	if p.peek().kind == tokLParen {
		p.next()
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, fmt.Errorf("%w: missing closing parenthesis", ErrInvalidExpression)
		}
		p.next()
		return inner, nil
	}

	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	switch p.peek().kind {
	case tokEq, tokNeq:
		op := p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		return compareNode{left: left, right: right, negate: op.kind == tokNeq}, nil
	default:
		return left, nil
	}
}

func (p *parser) parseTerm() (node, error) {
	t := p.next()
	switch t.kind {
	case tokIdent:
		return identNode{name: t.text}, nil
	case tokString:
		return literalNode{val: value{kind: kindString, s: t.text}}, nil
	case tokTrue:
		return literalNode{val: value{kind: kindBool, b: true}}, nil
	case tokFalse:
		return literalNode{val: value{kind: kindBool, b: false}}, nil
	case tokEOF:
		return nil, fmt.Errorf("%w: unexpected end of expression", ErrInvalidExpression)
	default:
		return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidExpression, t.text)
	}
}
