// Package expr evaluates boolean condition expressions against a typed
// context map. The grammar is deliberately small: literals, dotted
// identifiers, comparison operators, && || and !, with parentheses. There is
// no function call, no assignment and no host access, so attacker-influenced
// condition strings can not execute code.
package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Eval parses and evaluates expression against ctx. Identifiers are resolved
// as dotted paths into ctx; an unknown identifier resolves to nil.
func Eval(expression string, ctx map[string]any) (bool, error) {
	p := &parser{tokens: nil, pos: 0}
	tokens, err := tokenize(expression)
	if err != nil {
		return false, err
	}
	p.tokens = tokens
	v, err := p.parseOr(ctx)
	if err != nil {
		return false, err
	}
	if p.pos != len(p.tokens) {
		return false, fmt.Errorf("unexpected token %q", p.tokens[p.pos].text)
	}
	return truthy(v), nil
}

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
}

var operators = []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "(", ")"}

func tokenize(s string) ([]token, error) {
	var tokens []token
	i := 0
outer:
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
			continue
		case c == '\'' || c == '"':
			quote := c
			j := i + 1
			for j < len(s) && s[j] != quote {
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{tokString, s[i+1 : j]})
			i = j + 1
			continue
		case unicode.IsDigit(rune(c)) || (c == '-' && i+1 < len(s) && unicode.IsDigit(rune(s[i+1])) && startsValue(tokens)):
			j := i + 1
			for j < len(s) && (unicode.IsDigit(rune(s[j])) || s[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, s[i:j]})
			i = j
			continue
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])) || s[j] == '_' || s[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokIdent, s[i:j]})
			i = j
			continue
		}
		for _, op := range operators {
			if strings.HasPrefix(s[i:], op) {
				tokens = append(tokens, token{tokOp, op})
				i += len(op)
				continue outer
			}
		}
		return nil, fmt.Errorf("unexpected character %q", s[i])
	}
	return tokens, nil
}

func startsValue(tokens []token) bool {
	if len(tokens) == 0 {
		return true
	}
	last := tokens[len(tokens)-1]
	return last.kind == tokOp && last.text != ")"
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() (token, bool) {
	if p.pos >= len(p.tokens) {
		return token{}, false
	}
	return p.tokens[p.pos], true
}

func (p *parser) accept(text string) bool {
	if t, ok := p.peek(); ok && t.kind == tokOp && t.text == text {
		p.pos++
		return true
	}
	return false
}

func (p *parser) parseOr(ctx map[string]any) (any, error) {
	left, err := p.parseAnd(ctx)
	if err != nil {
		return nil, err
	}
	for p.accept("||") {
		right, err := p.parseAnd(ctx)
		if err != nil {
			return nil, err
		}
		left = truthy(left) || truthy(right)
	}
	return left, nil
}

func (p *parser) parseAnd(ctx map[string]any) (any, error) {
	left, err := p.parseComparison(ctx)
	if err != nil {
		return nil, err
	}
	for p.accept("&&") {
		right, err := p.parseComparison(ctx)
		if err != nil {
			return nil, err
		}
		left = truthy(left) && truthy(right)
	}
	return left, nil
}

func (p *parser) parseComparison(ctx map[string]any) (any, error) {
	left, err := p.parseUnary(ctx)
	if err != nil {
		return nil, err
	}
	for _, op := range []string{"==", "!=", "<=", ">=", "<", ">"} {
		if p.accept(op) {
			right, err := p.parseUnary(ctx)
			if err != nil {
				return nil, err
			}
			return compare(op, left, right)
		}
	}
	return left, nil
}

func (p *parser) parseUnary(ctx map[string]any) (any, error) {
	if p.accept("!") {
		v, err := p.parseUnary(ctx)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil
	}
	return p.parsePrimary(ctx)
}

func (p *parser) parsePrimary(ctx map[string]any) (any, error) {
	if p.accept("(") {
		v, err := p.parseOr(ctx)
		if err != nil {
			return nil, err
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		return v, nil
	}
	t, ok := p.peek()
	if !ok {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	switch t.kind {
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return n, nil
	case tokString:
		return t.text, nil
	case tokIdent:
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "nil":
			return nil, nil
		}
		return Lookup(ctx, t.text), nil
	}
	return nil, fmt.Errorf("unexpected token %q", t.text)
}

// Lookup resolves a dotted path against nested map[string]any values.
// Missing segments resolve to nil.
func Lookup(ctx map[string]any, path string) any {
	var cur any = ctx
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

func compare(op string, left, right any) (any, error) {
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if lok && rok {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	ls := fmt.Sprintf("%v", left)
	rs := fmt.Sprintf("%v", right)
	switch op {
	case "==":
		return ls == rs, nil
	case "!=":
		return ls != rs, nil
	case "<":
		return ls < rs, nil
	case "<=":
		return ls <= rs, nil
	case ">":
		return ls > rs, nil
	case ">=":
		return ls >= rs, nil
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return true
	}
}
