package datalog

import (
	"fmt"
	"strings"
	"unicode"
)

// Term is a variable or a constant.
type Term struct {
	Var  bool
	Name string
}

func (t Term) String() string { return t.Name }

// Literal is a possibly negated atom in a rule body.
type Literal struct {
	Neg   bool
	Pred  string
	Terms []Term
}

func (l Literal) String() string {
	var b strings.Builder
	if l.Neg {
		b.WriteString("not ")
	}
	b.WriteString(l.Pred)
	if len(l.Terms) > 0 {
		b.WriteByte('(')
		for i, t := range l.Terms {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.Name)
		}
		b.WriteByte(')')
	}
	return b.String()
}

func (l Literal) key() string { return relKey(l.Pred, len(l.Terms)) }

// Rule is head :- body. Facts have an empty body.
type Rule struct {
	Head Literal
	Body []Literal
	// Source is the statement the rule came from.
	Source string
	Line   int
}

func (r Rule) String() string {
	if len(r.Body) == 0 {
		return r.Head.String() + "."
	}
	parts := make([]string, len(r.Body))
	for i, l := range r.Body {
		parts[i] = l.String()
	}
	return r.Head.String() + " :- " + strings.Join(parts, ", ") + "."
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokVar
	tokString
	tokLParen
	tokRParen
	tokComma
	tokDot
	tokIf
)

type token struct {
	kind tokenKind
	text string
	line int
}

func lex(src string) ([]token, error) {
	var toks []token
	line := 1
	rs := []rune(src)
	for i := 0; i < len(rs); {
		r := rs[i]
		switch {
		case r == '\n':
			line++
			i++
		case unicode.IsSpace(r):
			i++
		case r == '%':
			for i < len(rs) && rs[i] != '\n' {
				i++
			}
		case r == '(':
			toks = append(toks, token{tokLParen, "(", line})
			i++
		case r == ')':
			toks = append(toks, token{tokRParen, ")", line})
			i++
		case r == ',':
			toks = append(toks, token{tokComma, ",", line})
			i++
		case r == '.':
			toks = append(toks, token{tokDot, ".", line})
			i++
		case r == ':':
			if i+1 < len(rs) && rs[i+1] == '-' {
				toks = append(toks, token{tokIf, ":-", line})
				i += 2
				continue
			}
			return nil, fmt.Errorf("line %d: unexpected ':'", line)
		case r == '"':
			j := i + 1
			for j < len(rs) && rs[j] != '"' {
				if rs[j] == '\n' {
					return nil, fmt.Errorf("line %d: newline in string", line)
				}
				j++
			}
			if j >= len(rs) {
				return nil, fmt.Errorf("line %d: unterminated string", line)
			}
			toks = append(toks, token{tokString, string(rs[i : j+1]), line})
			i = j + 1
		case isIdentStart(r):
			j := i + 1
			for j < len(rs) && isIdentPart(rs[j]) {
				j++
			}
			text := string(rs[i:j])
			kind := tokIdent
			if unicode.IsUpper(r) || r == '_' {
				kind = tokVar
			}
			toks = append(toks, token{kind, text, line})
			i = j
		default:
			return nil, fmt.Errorf("line %d: unexpected character %q", line, r)
		}
	}
	toks = append(toks, token{tokEOF, "", line})
	return toks, nil
}

func isIdentStart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

func isIdentPart(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}

type parser struct {
	toks   []token
	pos    int
	source string
	anon   int
}

// Parse reads the rules of one statement.
func Parse(source, src string) ([]Rule, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks, source: source}
	var rules []Rule
	for p.peek().kind != tokEOF {
		r, err := p.rule()
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

func (p *parser) peek() token { return p.toks[p.pos] }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) expect(kind tokenKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, fmt.Errorf("line %d: expected %s, got %q", t.line, what, t.text)
	}
	return t, nil
}

func (p *parser) rule() (Rule, error) {
	line := p.peek().line
	head, err := p.literal(false)
	if err != nil {
		return Rule{}, err
	}
	r := Rule{Head: head, Source: p.source, Line: line}
	if p.peek().kind == tokIf {
		p.next()
		for {
			lit, err := p.literal(true)
			if err != nil {
				return Rule{}, err
			}
			r.Body = append(r.Body, lit)
			if p.peek().kind != tokComma {
				break
			}
			p.next()
		}
	}
	if _, err := p.expect(tokDot, "'.'"); err != nil {
		return Rule{}, err
	}
	return r, nil
}

func (p *parser) literal(allowNeg bool) (Literal, error) {
	t := p.next()
	if t.kind != tokIdent {
		return Literal{}, fmt.Errorf("line %d: expected predicate, got %q", t.line, t.text)
	}
	var lit Literal
	if t.text == "not" && allowNeg && p.peek().kind == tokIdent {
		lit.Neg = true
		t = p.next()
	}
	if !unicode.IsLower([]rune(t.text)[0]) {
		return Literal{}, fmt.Errorf("line %d: predicate %q must start with a lower-case letter", t.line, t.text)
	}
	lit.Pred = t.text
	if p.peek().kind != tokLParen {
		return lit, nil
	}
	p.next()
	for {
		a := p.next()
		switch a.kind {
		case tokVar:
			name := a.text
			if name == "_" {
				p.anon++
				name = fmt.Sprintf("_%d", p.anon)
			}
			lit.Terms = append(lit.Terms, Term{Var: true, Name: name})
		case tokIdent, tokString:
			lit.Terms = append(lit.Terms, Term{Name: a.text})
		default:
			return Literal{}, fmt.Errorf("line %d: expected argument, got %q", a.line, a.text)
		}
		sep := p.next()
		if sep.kind == tokRParen {
			break
		}
		if sep.kind != tokComma {
			return Literal{}, fmt.Errorf("line %d: expected ',' or ')', got %q", sep.line, sep.text)
		}
	}
	return lit, nil
}

func relKey(pred string, arity int) string {
	return fmt.Sprintf("%s/%d", pred, arity)
}
