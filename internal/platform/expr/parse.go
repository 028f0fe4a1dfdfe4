package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseError describes a rejected expression with its source position.
type ParseError struct {
	Src string
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at offset %d: %s", e.Src, e.Pos, e.Msg)
}

// builtins is the closed set of callable predicates. Anything else is
// rejected at parse time.
var builtins = map[string]bool{
	"has_condition":  true,
	"has_medication": true,
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case c == '(':
			l.emit(tokLParen, "(")
		case c == ')':
			l.emit(tokRParen, ")")
		case c == ',':
			l.emit(tokComma, ",")
		case c == '\'' || c == '"':
			if err := l.lexString(c); err != nil {
				return nil, err
			}
		case c >= '0' && c <= '9' || c == '.':
			l.lexNumber()
		case isIdentStart(rune(c)):
			l.lexIdent()
		default:
			if err := l.lexOperator(); err != nil {
				return nil, err
			}
		}
	}
	l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
	return l.toks, nil
}

func (l *lexer) emit(k tokenKind, text string) {
	l.toks = append(l.toks, token{kind: k, text: text, pos: l.pos})
	l.pos += len(text)
}

func (l *lexer) lexString(quote byte) error {
	start := l.pos
	l.pos++
	for l.pos < len(l.src) {
		if l.src[l.pos] == quote {
			l.toks = append(l.toks, token{kind: tokString, text: l.src[start+1 : l.pos], pos: start})
			l.pos++
			return nil
		}
		l.pos++
	}
	return &ParseError{Src: l.src, Pos: start, Msg: "unterminated string"}
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.src) && (l.src[l.pos] >= '0' && l.src[l.pos] <= '9' || l.src[l.pos] == '.') {
		l.pos++
	}
	l.toks = append(l.toks, token{kind: tokNumber, text: l.src[start:l.pos], pos: start})
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || r == '_'
}

func isIdentPart(r rune) bool {
	// Dots join nested field paths (labs.glucose).
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.'
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) && isIdentPart(rune(l.src[l.pos])) {
		l.pos++
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexOperator() error {
	two := ""
	if l.pos+1 < len(l.src) {
		two = l.src[l.pos : l.pos+2]
	}
	switch two {
	case "==", "!=", "<=", ">=":
		l.emit(tokOp, two)
		return nil
	}
	switch c := l.src[l.pos]; c {
	case '<', '>', '+', '-', '*', '/':
		l.emit(tokOp, string(c))
		return nil
	case '=':
		return &ParseError{Src: l.src, Pos: l.pos, Msg: "unknown operator \"=\" (use \"==\")"}
	}
	return &ParseError{Src: l.src, Pos: l.pos, Msg: fmt.Sprintf("unexpected character %q", l.src[l.pos])}
}

// Parse converts an expression string into an AST. Syntax errors, unknown
// operators, and unknown builtin names are rejected here so templates fail
// fast at load rather than mid-generation.
func Parse(src string) (Expr, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, &ParseError{Src: src, Pos: 0, Msg: "empty expression"}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{src: src, toks: toks}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, p.errorf("unexpected %q", p.peek().text)
	}
	return e, nil
}

type parser struct {
	src  string
	toks []token
	i    int
}

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return &ParseError{Src: p.src, Pos: p.peek().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokIdent && p.peek().text == "or" {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpOr, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokIdent && p.peek().text == "and" {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: OpAnd, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().kind == tokIdent && p.peek().text == "not" {
		p.next()
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNot, X: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]Op{
	"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}
	if p.peek().kind == tokOp {
		if op, ok := comparisonOps[p.peek().text]; ok {
			p.next()
			right, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, L: left, R: right}, nil
		}
	}
	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "+" || p.peek().text == "-") {
		op := OpAdd
		if p.next().text == "-" {
			op = OpSub
		}
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseTerm() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for p.peek().kind == tokOp && (p.peek().text == "*" || p.peek().text == "/") {
		op := OpMul
		if p.next().text == "/" {
			op = OpDiv
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: op, L: left, R: right}
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	if p.peek().kind == tokOp && p.peek().text == "-" {
		p.next()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: OpNeg, X: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.next()
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, &ParseError{Src: p.src, Pos: t.pos, Msg: fmt.Sprintf("invalid number %q", t.text)}
		}
		return &Literal{Val: Num(n)}, nil
	case tokString:
		p.next()
		return &Literal{Val: Str(t.text)}, nil
	case tokLParen:
		p.next()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.peek().kind != tokRParen {
			return nil, p.errorf("expected \")\"")
		}
		p.next()
		return e, nil
	case tokIdent:
		switch t.text {
		case "true":
			p.next()
			return &Literal{Val: BoolVal(true)}, nil
		case "false":
			p.next()
			return &Literal{Val: BoolVal(false)}, nil
		case "and", "or", "not":
			return nil, p.errorf("unexpected keyword %q", t.text)
		}
		p.next()
		if p.peek().kind == tokLParen {
			return p.parseCall(t)
		}
		return &FieldRef{Path: t.text}, nil
	}
	return nil, p.errorf("unexpected %q", t.text)
}

func (p *parser) parseCall(name token) (Expr, error) {
	if !builtins[name.text] {
		return nil, &ParseError{Src: p.src, Pos: name.pos, Msg: fmt.Sprintf("unknown builtin %q", name.text)}
	}
	p.next() // consume "("
	var args []Expr
	if p.peek().kind != tokRParen {
		for {
			a, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if p.peek().kind != tokRParen {
		return nil, p.errorf("expected \")\" after arguments")
	}
	p.next()
	return &Call{Fn: name.text, Args: args}, nil
}
