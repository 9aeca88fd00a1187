package ptree

import (
	"strings"

	"github.com/logflow/pmcore/pkg/errors"
)

var operatorSymbols = map[Operator]string{
	OpSequence: "->",
	OpXor:      "X",
	OpParallel: "+",
	OpLoop:     "*",
	OpOr:       "O",
}

// String renders the tree in the textual form ->( 'a', X( 'b', tau ) ).
func (t *Tree) String() string {
	var sb strings.Builder
	t.write(&sb)
	return sb.String()
}

func (t *Tree) write(sb *strings.Builder) {
	if t.IsLeaf() {
		if t.IsTau() {
			sb.WriteString("tau")
			return
		}
		sb.WriteByte('\'')
		sb.WriteString(strings.ReplaceAll(strings.ReplaceAll(t.Label, `\`, `\\`), `'`, `\'`))
		sb.WriteByte('\'')
		return
	}
	sb.WriteString(operatorSymbols[t.Operator])
	sb.WriteString("( ")
	for i, c := range t.Children {
		if i > 0 {
			sb.WriteString(", ")
		}
		c.write(sb)
	}
	sb.WriteString(" )")
}

// Parse reads the textual form produced by String. A loop written with more
// than two children keeps the first as body and wraps the rest in an XOR
// redo part.
func Parse(s string) (*Tree, error) {
	p := &parser{src: s}
	t, err := p.tree()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.fail("trailing input")
	}
	return t, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) fail(msg string) error {
	return errors.New(errors.CodeMalformedTree, msg).WithContext("offset", p.pos)
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && strings.IndexByte(" \t\r\n", p.src[p.pos]) >= 0 {
		p.pos++
	}
}

func (p *parser) tree() (*Tree, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.fail("unexpected end of input")
	}
	if p.src[p.pos] == '\'' {
		return p.quoted()
	}
	if strings.HasPrefix(p.src[p.pos:], "tau") {
		p.pos += 3
		return Tau(), nil
	}
	var op Operator
	for o, sym := range operatorSymbols {
		if strings.HasPrefix(p.src[p.pos:], sym) {
			op = o
			p.pos += len(sym)
			break
		}
	}
	if op == OpNone {
		return nil, p.fail("expected operator, label or tau")
	}
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != '(' {
		return nil, p.fail("expected '('")
	}
	p.pos++

	var children []*Tree
	for {
		c, err := p.tree()
		if err != nil {
			return nil, err
		}
		children = append(children, c)
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, p.fail("unterminated operator")
		}
		if p.src[p.pos] == ',' {
			p.pos++
			continue
		}
		if p.src[p.pos] == ')' {
			p.pos++
			break
		}
		return nil, p.fail("expected ',' or ')'")
	}
	if op == OpLoop {
		switch len(children) {
		case 1:
			return Loop(children[0], Tau()), nil
		case 2:
			return Loop(children[0], children[1]), nil
		default:
			return Loop(children[0], Xor(children[1:]...)), nil
		}
	}
	return &Tree{Operator: op, Children: children}, nil
}

func (p *parser) quoted() (*Tree, error) {
	p.pos++
	var sb strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch c {
		case '\\':
			if p.pos+1 >= len(p.src) {
				return nil, p.fail("dangling escape")
			}
			sb.WriteByte(p.src[p.pos+1])
			p.pos += 2
		case '\'':
			p.pos++
			if sb.Len() == 0 {
				return nil, p.fail("empty label")
			}
			return Leaf(sb.String()), nil
		default:
			sb.WriteByte(c)
			p.pos++
		}
	}
	return nil, p.fail("unterminated label")
}

// Validate checks structural well-formedness: operators have children,
// loops have exactly two, leaves have none.
func Validate(t *Tree) error {
	var err error
	Walk(t, func(n *Tree) bool {
		if err != nil {
			return false
		}
		switch {
		case n.IsLeaf() && len(n.Children) > 0:
			err = errors.New(errors.CodeMalformedTree, "leaf with children").WithContext("label", n.Label)
		case !n.IsLeaf() && len(n.Children) == 0:
			err = errors.New(errors.CodeMalformedTree, "operator without children").WithContext("operator", n.Operator.String())
		case n.Operator == OpLoop && len(n.Children) != 2:
			err = errors.New(errors.CodeMalformedTree, "loop must have do and redo children").WithContext("children", len(n.Children))
		}
		return err == nil
	})
	return err
}
