package reward

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidFormula = errors.New("invalid reward formula")
	ErrDivideByZero   = errors.New("division by zero in reward formula")
)

// Formula is a compiled arithmetic expression over the deposit amount.
// The grammar is numbers, the identifier `amount`, + - * /, parentheses and unary minus.
type Formula struct {
	src  string
	root node
}

type node interface {
	eval(amount decimal.Decimal) (decimal.Decimal, error)
}

type numberNode struct{ v decimal.Decimal }

type amountNode struct{}

type negNode struct{ x node }

type binaryNode struct {
	op   byte
	l, r node
}

func (n numberNode) eval(decimal.Decimal) (decimal.Decimal, error) { return n.v, nil }

func (amountNode) eval(amount decimal.Decimal) (decimal.Decimal, error) { return amount, nil }

func (n negNode) eval(amount decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.x.eval(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

func (n binaryNode) eval(amount decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.l.eval(amount)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.r.eval(amount)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case '+':
		return l.Add(r), nil
	case '-':
		return l.Sub(r), nil
	case '*':
		return l.Mul(r), nil
	default:
		if r.IsZero() {
			return decimal.Zero, ErrDivideByZero
		}
		return l.Div(r), nil
	}
}

// Compile parses expr. Anything outside the grammar is rejected.
func Compile(expr string) (*Formula, error) {
	toks, err := tokenize(expr)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	root, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.peek().kind != tokEOF {
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidFormula, p.peek().text, p.peek().pos)
	}
	return &Formula{src: expr, root: root}, nil
}

// Eval computes the raw formula value for amount.
func (f *Formula) Eval(amount decimal.Decimal) (decimal.Decimal, error) {
	return f.root.eval(amount)
}

// Reward is the payable reward: never negative, rounded to 2 places.
func (f *Formula) Reward(amount decimal.Decimal) (decimal.Decimal, error) {
	v, err := f.Eval(amount)
	if err != nil {
		return decimal.Zero, err
	}
	if v.IsNegative() {
		return decimal.Zero, nil
	}
	return v.Round(2), nil
}

func (f *Formula) String() string { return f.src }

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokAmount
	tokOp
	tokLParen
	tokRParen
)

type token struct {
	kind tokKind
	text string
	pos  int
	num  decimal.Decimal
}

func tokenize(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '+' || c == '-' || c == '*' || c == '/':
			toks = append(toks, token{kind: tokOp, text: string(c), pos: i})
			i++
		case c == '(':
			toks = append(toks, token{kind: tokLParen, text: "(", pos: i})
			i++
		case c == ')':
			toks = append(toks, token{kind: tokRParen, text: ")", pos: i})
			i++
		case (c >= '0' && c <= '9') || c == '.':
			start := i
			dots := 0
			for i < len(s) && ((s[i] >= '0' && s[i] <= '9') || s[i] == '.') {
				if s[i] == '.' {
					dots++
				}
				i++
			}
			text := s[start:i]
			if dots > 1 || text == "." {
				return nil, fmt.Errorf("%w: bad number %q at %d", ErrInvalidFormula, text, start)
			}
			v, err := decimal.NewFromString(text)
			if err != nil {
				return nil, fmt.Errorf("%w: bad number %q at %d", ErrInvalidFormula, text, start)
			}
			toks = append(toks, token{kind: tokNumber, text: text, pos: start, num: v})
		case isLetter(c):
			start := i
			for i < len(s) && (isLetter(s[i]) || (s[i] >= '0' && s[i] <= '9')) {
				i++
			}
			word := s[start:i]
			if !strings.EqualFold(word, "amount") {
				return nil, fmt.Errorf("%w: unknown identifier %q at %d", ErrInvalidFormula, word, start)
			}
			toks = append(toks, token{kind: tokAmount, text: word, pos: start})
		default:
			return nil, fmt.Errorf("%w: unexpected character %q at %d", ErrInvalidFormula, c, i)
		}
	}
	toks = append(toks, token{kind: tokEOF, text: "end of input", pos: len(s)})
	return toks, nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

type parser struct {
	toks  []token
	i     int
	depth int
}

const maxDepth = 64

func (p *parser) peek() token { return p.toks[p.i] }

func (p *parser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

// expr := term (('+' | '-') term)*
func (p *parser) expr() (node, error) {
	l, err := p.term()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.text == "+" || t.text == "-"); t = p.peek() {
		p.next()
		r, err := p.term()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: t.text[0], l: l, r: r}
	}
	return l, nil
}

// term := unary (('*' | '/') unary)*
func (p *parser) term() (node, error) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for t := p.peek(); t.kind == tokOp && (t.text == "*" || t.text == "/"); t = p.peek() {
		p.next()
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = binaryNode{op: t.text[0], l: l, r: r}
	}
	return l, nil
}

// unary := ('-' | '+') unary | primary
func (p *parser) unary() (node, error) {
	p.depth++
	defer func() { p.depth-- }()
	if p.depth > maxDepth {
		return nil, fmt.Errorf("%w: expression nested too deeply", ErrInvalidFormula)
	}

	t := p.peek()
	if t.kind == tokOp && (t.text == "-" || t.text == "+") {
		p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		if t.text == "-" {
			return negNode{x: x}, nil
		}
		return x, nil
	}
	return p.primary()
}

// primary := number | amount | '(' expr ')'
func (p *parser) primary() (node, error) {
	t := p.next()
	switch t.kind {
	case tokNumber:
		return numberNode{v: t.num}, nil
	case tokAmount:
		return amountNode{}, nil
	case tokLParen:
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if closing := p.next(); closing.kind != tokRParen {
			return nil, fmt.Errorf("%w: expected ) at %d", ErrInvalidFormula, closing.pos)
		}
		return inner, nil
	default:
		return nil, fmt.Errorf("%w: unexpected %q at %d", ErrInvalidFormula, t.text, t.pos)
	}
}
