package track

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrSyntax is matched by every *SyntaxError.
var ErrSyntax = errors.New("syntax error")

// SyntaxError tells where parsing stopped and what was expected there. Pos is
// a byte offset into the text given to Parse.
type SyntaxError struct {
	Pos      int
	Expected string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at %d: expected %s", e.Pos, e.Expected)
}

func (e *SyntaxError) Is(target error) bool { return target == ErrSyntax }

// maxDepth bounds the nesting of sections.
const maxDepth = 64

type parser struct {
	src   string
	pos   int
	depth int
}

// Parse parses notation into a track. Whitespace is insignificant and text
// between a pair of # characters is a comment. Either the whole text parses
// or an error is returned; there are no partial results.
//
// Layer groups are separated with % or &.
func Parse(text string) (*Track, error) {
	p := &parser{src: text}
	t := &Track{}
	p.skip()
	for p.pos < len(p.src) {
		bar, err := p.bar()
		if err != nil {
			return nil, err
		}
		t.Bars = append(t.Bars, bar)
		p.skip()
	}
	if len(t.Bars) == 0 {
		return nil, p.expected("( or {")
	}
	return t, nil
}

func (p *parser) bar() (Section, error) {
	switch p.peek() {
	case '(':
		return p.group()
	case '{':
		return p.layers()
	}
	return Section{}, p.expected("( or {")
}

// group parses a parenthesized sequence.
func (p *parser) group() (Section, error) {
	if err := p.enter(); err != nil {
		return Section{}, err
	}
	defer p.leave()
	p.pos++ // (
	children, err := p.sequence()
	if err != nil {
		return Section{}, err
	}
	if err := p.consume(')', "/, ~, < or )"); err != nil {
		return Section{}, err
	}
	return Section{Kind: Division, Weight: 1, Children: children}, nil
}

func (p *parser) layers() (Section, error) {
	if err := p.enter(); err != nil {
		return Section{}, err
	}
	defer p.leave()
	p.pos++ // {
	s := Section{Kind: Layers, Weight: 1}
	for {
		children, err := p.sequence()
		if err != nil {
			return Section{}, err
		}
		s.Children = append(s.Children, Section{Kind: Division, Weight: 1, Children: children})
		p.skip()
		switch p.peek() {
		case '%', '&':
			p.pos++
			continue
		case '}':
			p.pos++
			return s, nil
		}
		return Section{}, p.expected("/, ~, <, % or }")
	}
}

// sequence parses items joined by separators, each separator optionally
// surrounded by nudges.
func (p *parser) sequence() ([]Section, error) {
	var ret []Section
	for {
		s, err := p.item()
		if err != nil {
			return nil, err
		}
		p.skip()
		before, hasBefore, err := p.nudge()
		if err != nil {
			return nil, err
		}
		p.skip()
		switch p.peek() {
		case '/':
		case '~':
			s.Tied = true
		default:
			if hasBefore {
				return nil, p.expected("/ or ~")
			}
			return append(ret, s), nil
		}
		p.pos++
		p.skip()
		after, _, err := p.nudge()
		if err != nil {
			return nil, err
		}
		s.NudgeBefore, s.NudgeAfter = before, after
		ret = append(ret, s)
	}
}

// item parses a rest, a note, a nested group or a layer group, followed by
// its weight asterisks.
func (p *parser) item() (Section, error) {
	p.skip()
	var s Section
	var err error
	switch c := p.peek(); {
	case c == '(':
		s, err = p.group()
	case c == '{':
		s, err = p.layers()
	case c == '_':
		p.pos++
		s = Section{Kind: Rest}
	case c == '-' || isDigit(c):
		s, err = p.note()
	default:
		return Section{}, p.expected("degree, _, ( or {")
	}
	if err != nil {
		return Section{}, err
	}
	s.Weight = 1
	for p.skip(); p.peek() == '*'; p.skip() {
		s.Weight++
		p.pos++
	}
	return s, nil
}

func (p *parser) note() (Section, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	digits := p.pos
	for isDigit(p.peek()) {
		p.pos++
	}
	if p.pos == digits {
		return Section{}, p.expected("digit")
	}
	degree, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil {
		return Section{}, &SyntaxError{Pos: start, Expected: "degree in range"}
	}
	s := Section{Kind: Note, Degree: degree}
	switch p.peek() {
	case '+':
		s.Shift = 1
		p.pos++
	case '-':
		s.Shift = -1
		p.pos++
	}
	return s, nil
}

// nudge parses an optional <N>.
func (p *parser) nudge() (int, bool, error) {
	if p.peek() != '<' {
		return 0, false, nil
	}
	p.pos++
	p.skip()
	start := p.pos
	for isDigit(p.peek()) {
		p.pos++
	}
	if p.pos == start {
		return 0, false, p.expected("nudge percentage")
	}
	v, err := strconv.Atoi(p.src[start:p.pos])
	if err != nil || v > MaxNudge {
		return 0, false, &SyntaxError{Pos: start, Expected: "nudge between 0 and 100"}
	}
	p.skip()
	if err := p.consume('>', ">"); err != nil {
		return 0, false, err
	}
	return v, true, nil
}

func (p *parser) consume(c byte, expected string) error {
	p.skip()
	if p.peek() != c {
		return p.expected(expected)
	}
	p.pos++
	return nil
}

// skip moves past whitespace and comments. An unterminated comment runs to the
// end of the text.
func (p *parser) skip() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r':
			p.pos++
		case '#':
			p.pos++
			for p.pos < len(p.src) && p.src[p.pos] != '#' {
				p.pos++
			}
			if p.pos < len(p.src) {
				p.pos++
			}
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	if p.pos >= len(p.src) {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) enter() error {
	if p.depth >= maxDepth {
		return p.expected("shallower nesting")
	}
	p.depth++
	return nil
}

func (p *parser) leave() { p.depth-- }

func (p *parser) expected(what string) *SyntaxError {
	return &SyntaxError{Pos: p.pos, Expected: what}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
