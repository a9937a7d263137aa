package zfs

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// maxClassRunes bounds how many characters a bracket range may expand to
const maxClassRunes = 4096

// compileGlob compiles a shell style pattern. Only "*", "?" and "[...]" are
// special; braces and backslashes are literal and a "[" without a closing "]"
// matches itself. No separators are given, so "*" also matches "/".
func compileGlob(pattern string) (glob.Glob, error) {
	translated, never, err := translateGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("%w: bad glob %q: %v", ErrPrecondition, pattern, err)
	}
	if never {
		return neverGlob{}, nil
	}
	g, err := glob.Compile(translated)
	if err != nil {
		return nil, fmt.Errorf("%w: bad glob %q: %v", ErrPrecondition, pattern, err)
	}
	return g, nil
}

// neverGlob stands in for patterns holding an empty character class
type neverGlob struct{}

func (neverGlob) Match(string) bool { return false }

// translateGlob rewrites a shell pattern into gobwas syntax. never is set
// when the pattern contains a class that cannot match any character.
func translateGlob(pattern string) (out string, never bool, err error) {
	p := []rune(pattern)
	var b, lit strings.Builder
	flush := func() {
		b.WriteString(glob.QuoteMeta(lit.String()))
		lit.Reset()
	}

	for i := 0; i < len(p); i++ {
		switch p[i] {
		case '*', '?':
			flush()
			b.WriteRune(p[i])
		case '[':
			end := classEnd(p, i)
			if end < 0 {
				lit.WriteRune('[')
				continue
			}
			flush()
			class, empty, err := translateClass(p[i+1 : end])
			if err != nil {
				return "", false, err
			}
			if empty {
				return "", true, nil
			}
			b.WriteString(class)
			i = end
		default:
			lit.WriteRune(p[i])
		}
	}
	flush()
	return b.String(), false, nil
}

// classEnd returns the index of the "]" closing the class opened at start, or -1.
// A "]" right after "[" or "[!" belongs to the class.
func classEnd(p []rune, start int) int {
	j := start + 1
	if j < len(p) && p[j] == '!' {
		j++
	}
	if j < len(p) && p[j] == ']' {
		j++
	}
	for ; j < len(p); j++ {
		if p[j] == ']' {
			return j
		}
	}
	return -1
}

// translateClass expands the body of a bracket expression into an explicit
// gobwas character list. empty reports a non-negated class with no characters.
func translateClass(body []rune) (class string, empty bool, err error) {
	negate := len(body) > 0 && body[0] == '!'
	if negate {
		body = body[1:]
	}

	var chars []rune
	seen := map[rune]bool{}
	add := func(r rune) error {
		if seen[r] {
			return nil
		}
		if len(chars) >= maxClassRunes {
			return fmt.Errorf("character class expands to more than %d characters", maxClassRunes)
		}
		seen[r] = true
		chars = append(chars, r)
		return nil
	}
	for k := 0; k < len(body); k++ {
		if k+2 < len(body) && body[k+1] == '-' {
			for r := body[k]; r <= body[k+2]; r++ {
				if err := add(r); err != nil {
					return "", false, err
				}
			}
			k += 2
			continue
		}
		if err := add(body[k]); err != nil {
			return "", false, err
		}
	}

	if len(chars) == 0 {
		if negate {
			return "?", false, nil
		}
		return "", true, nil
	}

	var b strings.Builder
	b.WriteByte('[')
	if negate {
		b.WriteByte('!')
	}
	// "-" goes last and unescaped so the lexer never reads a range
	dash := false
	for _, r := range chars {
		if r == '-' {
			dash = true
			continue
		}
		b.WriteByte('\\')
		b.WriteRune(r)
	}
	if dash {
		b.WriteByte('-')
	}
	b.WriteByte(']')
	return b.String(), false, nil
}

// globSet matches if any of its patterns match
type globSet []glob.Glob

func compileGlobs(patterns []string) (globSet, error) {
	if patterns == nil {
		return nil, nil
	}
	set := make(globSet, 0, len(patterns))
	for _, p := range patterns {
		g, err := compileGlob(p)
		if err != nil {
			return nil, err
		}
		set = append(set, g)
	}
	return set, nil
}

func (gs globSet) match(paths ...string) bool {
	for _, g := range gs {
		for _, p := range paths {
			if g.Match(p) {
				return true
			}
		}
	}
	return false
}
