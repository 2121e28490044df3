package selector

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is the sentinel matched by every *ParseError.
var ErrParse = errors.New("selector: parse error")

// MaxIdentifiers bounds how many identifiers one selector may expand to,
// counting duplicates. Wider ranges and larger products are parse errors.
const MaxIdentifiers = 1 << 20

// ParseError reports malformed selector text.
type ParseError struct {
	Input  string
	Offset int // byte offset of the offending token
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("selector: %s at offset %d in %q", e.Msg, e.Offset, e.Input)
}

// Is makes errors.Is(err, ErrParse) true for any *ParseError.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// level is one resolved token of an identifier.
type level struct {
	isInt bool
	s     string
	i     int
}

func (l level) String() string {
	if l.isInt {
		return "[" + strconv.Itoa(l.i) + "]"
	}
	return "/" + l.s
}

// path holds the alternatives of every level of one unexpanded path.
type path [][]level

// size returns the number of identifiers p expands to, saturating just above
// MaxIdentifiers.
func (p path) size() int {
	n := 1
	for _, alts := range p {
		n *= len(alts)
		if n > MaxIdentifiers {
			return MaxIdentifiers + 1
		}
	}
	return n
}

// expand returns the cartesian product of the level alternatives, leftmost
// level varying slowest.
func (p path) expand() []string {
	out := []string{""}
	for _, alts := range p {
		next := make([]string, 0, len(out)*len(alts))
		for _, prefix := range out {
			for _, l := range alts {
				next = append(next, prefix+l.String())
			}
		}
		out = next
	}
	return out
}

type parser struct {
	in  string
	pos int
}

func (p *parser) errorf(offset int, format string, args ...any) error {
	return &ParseError{Input: p.in, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

func parse(s string) ([]path, error) {
	p := &parser{in: s}
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var paths []path
	total := 0
	for {
		start := p.pos
		pt, err := p.path()
		if err != nil {
			return nil, err
		}
		total += pt.size()
		if total > MaxIdentifiers {
			return nil, p.errorf(start, "selector expands to more than %d identifiers", MaxIdentifiers)
		}
		paths = append(paths, pt)
		p.skipSpace()
		if p.pos >= len(p.in) {
			return paths, nil
		}
		switch p.in[p.pos] {
		case ',':
			p.pos++
		case ']':
			return nil, p.errorf(p.pos, "unbalanced ']'")
		default:
			return nil, p.errorf(p.pos, "unexpected %q", p.in[p.pos])
		}
	}
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) && (p.in[p.pos] == ' ' || p.in[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) path() (path, error) {
	var pt path
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		switch c {
		case '/':
			p.pos++
			if p.pos < len(p.in) && p.in[p.pos] == '[' {
				continue
			}
			name, off := p.name()
			if name == "" {
				return nil, p.errorf(off, "empty level")
			}
			pt = append(pt, []level{{s: name}})
		case '[':
			open := p.pos
			alts, err := p.bracket()
			if err != nil {
				return nil, err
			}
			pt = append(pt, alts)
			if pt.size() > MaxIdentifiers {
				return nil, p.errorf(open, "path expands to more than %d identifiers", MaxIdentifiers)
			}
		case ',', ' ', '\t':
			if len(pt) == 0 {
				return nil, p.errorf(start, "empty path")
			}
			return pt, nil
		case ']':
			return nil, p.errorf(p.pos, "unbalanced ']'")
		default:
			if len(pt) == 0 {
				return nil, p.errorf(p.pos, "path must start with '/' or '['")
			}
			return nil, p.errorf(p.pos, "unexpected %q", c)
		}
	}
	if len(pt) == 0 {
		return nil, p.errorf(start, "empty path")
	}
	return pt, nil
}

// name reads a literal level up to the next delimiter.
func (p *parser) name() (string, int) {
	start := p.pos
	for p.pos < len(p.in) && !strings.ContainsRune("/[],", rune(p.in[p.pos])) {
		p.pos++
	}
	return strings.TrimSpace(p.in[start:p.pos]), start
}

func (p *parser) bracket() ([]level, error) {
	open := p.pos
	p.pos++
	end := -1
	for i := p.pos; i < len(p.in); i++ {
		if p.in[i] == '[' {
			return nil, p.errorf(i, "nested '['")
		}
		if p.in[i] == ']' {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, p.errorf(open, "unbalanced '['")
	}
	body := p.in[p.pos:end]
	var alts []level
	offset := p.pos
	for _, item := range strings.Split(body, ",") {
		got, err := p.item(strings.TrimSpace(item), offset)
		if err != nil {
			return nil, err
		}
		alts = append(alts, got...)
		if len(alts) > MaxIdentifiers {
			return nil, p.errorf(offset, "bracket expands to more than %d items", MaxIdentifiers)
		}
		offset += len(item) + 1
	}
	p.pos = end + 1
	return alts, nil
}

func (p *parser) item(item string, offset int) ([]level, error) {
	if item == "" {
		return nil, p.errorf(offset, "empty bracket item")
	}
	if lo, hi, ok := strings.Cut(item, ":"); ok {
		start, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, p.errorf(offset, "bad range start %q", lo)
		}
		stop, err := strconv.Atoi(strings.TrimSpace(hi))
		if err != nil {
			return nil, p.errorf(offset, "bad range stop %q", hi)
		}
		if stop <= start {
			return nil, p.errorf(offset, "empty range %d:%d", start, stop)
		}
		// stop-start wraps negative when the true width exceeds MaxInt.
		if width := stop - start; width < 0 || width > MaxIdentifiers {
			return nil, p.errorf(offset, "range %d:%d wider than %d", start, stop, MaxIdentifiers)
		}
		levels := make([]level, 0, stop-start)
		for i := start; i < stop; i++ {
			levels = append(levels, level{isInt: true, i: i})
		}
		return levels, nil
	}
	if i, err := strconv.Atoi(item); err == nil {
		return []level{{isInt: true, i: i}}, nil
	}
	if strings.ContainsAny(item, "/") {
		return nil, p.errorf(offset, "'/' inside brackets")
	}
	return []level{{s: item}}, nil
}
