package autotile

import (
	"fmt"
	"strings"
)

type Kind uint8

const (
	KindLiteral Kind = iota + 1
	KindNot
	KindAnd
	KindOr
	KindContains
	KindAny
	KindSelf
)

// Expr is a compiled neighbor pattern.
//
// Grammar, loosest binding first:
//
//	a&b&c   all hold
//	a|b     any holds
//	!p      p does not hold
//	?sub    neighbor name contains sub
//	Any     always
//	Self    neighbor has the rule's tile name
//	Name    neighbor name equals Name
//
// & binds looser than |, so "A|B&!C" is (A|B) and (not C).
type Expr struct {
	Kind Kind
	Text string
	Sub  []Expr
}

func Parse(pattern string) (Expr, error) {
	p := strings.TrimSpace(pattern)
	if p == "" {
		return Expr{}, fmt.Errorf("empty pattern")
	}
	if strings.Contains(p, "&") {
		return parseList(KindAnd, p, "&")
	}
	if strings.Contains(p, "|") {
		return parseList(KindOr, p, "|")
	}
	if rest, ok := strings.CutPrefix(p, "!"); ok {
		inner, err := Parse(rest)
		if err != nil {
			return Expr{}, fmt.Errorf("%q: %w", pattern, err)
		}
		return Expr{Kind: KindNot, Sub: []Expr{inner}}, nil
	}
	if rest, ok := strings.CutPrefix(p, "?"); ok {
		if rest == "" {
			return Expr{}, fmt.Errorf("%q: empty contains operand", pattern)
		}
		return Expr{Kind: KindContains, Text: rest}, nil
	}
	switch p {
	case "Any":
		return Expr{Kind: KindAny}, nil
	case "Self":
		return Expr{Kind: KindSelf}, nil
	}
	return Expr{Kind: KindLiteral, Text: p}, nil
}

func MustParse(pattern string) Expr {
	e, err := Parse(pattern)
	if err != nil {
		panic(err)
	}
	return e
}

func parseList(kind Kind, p, sep string) (Expr, error) {
	parts := strings.Split(p, sep)
	e := Expr{Kind: kind, Sub: make([]Expr, 0, len(parts))}
	for _, part := range parts {
		if strings.TrimSpace(part) == "" {
			return Expr{}, fmt.Errorf("%q: empty operand", p)
		}
		sub, err := Parse(part)
		if err != nil {
			return Expr{}, err
		}
		e.Sub = append(e.Sub, sub)
	}
	return e, nil
}

// Eval reports whether a neighbor named neighbor satisfies e inside the rule
// for tile self.
func (e Expr) Eval(self, neighbor string) bool {
	switch e.Kind {
	case KindAnd:
		for _, s := range e.Sub {
			if !s.Eval(self, neighbor) {
				return false
			}
		}
		return true
	case KindOr:
		for _, s := range e.Sub {
			if s.Eval(self, neighbor) {
				return true
			}
		}
		return false
	case KindNot:
		return !e.Sub[0].Eval(self, neighbor)
	case KindContains:
		return strings.Contains(neighbor, e.Text)
	case KindAny:
		return true
	case KindSelf:
		return neighbor == self
	default:
		return neighbor == e.Text
	}
}

func (e Expr) String() string {
	switch e.Kind {
	case KindAnd, KindOr:
		sep := "&"
		if e.Kind == KindOr {
			sep = "|"
		}
		parts := make([]string, len(e.Sub))
		for i, s := range e.Sub {
			parts[i] = s.String()
		}
		return strings.Join(parts, sep)
	case KindNot:
		return "!" + e.Sub[0].String()
	case KindContains:
		return "?" + e.Text
	case KindAny:
		return "Any"
	case KindSelf:
		return "Self"
	default:
		return e.Text
	}
}
