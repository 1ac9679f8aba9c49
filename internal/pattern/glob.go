// Package pattern compiles file globs and classifies changed paths against pattern rules.
package pattern

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher is a compiled glob. It is safe for concurrent use.
type Matcher struct {
	glob string
	re   *regexp.Regexp
}

// Compile turns a glob into a Matcher anchored over the full slash-separated path.
//
//	**   any number of path segments (`**/` also matches zero directories)
//	*    any run of characters within one segment
//	?    one character within a segment
//	{a,b} alternation
func Compile(glob string) (*Matcher, error) {
	expr, err := translate(glob)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile glob %q: %w", glob, err)
	}
	return &Matcher{glob: glob, re: re}, nil
}

// MustCompile is like Compile but panics on an invalid glob.
func MustCompile(glob string) *Matcher {
	m, err := Compile(glob)
	if err != nil {
		panic(err)
	}
	return m
}

// Match reports whether path matches. Backslashes and a leading "./" are normalized away.
func (m *Matcher) Match(path string) bool {
	return m.re.MatchString(Normalize(path))
}

func (m *Matcher) String() string {
	return m.glob
}

// MatchesPattern is the one-shot form of Compile + Match. Invalid globs never match.
func MatchesPattern(path, glob string) bool {
	m, err := Compile(glob)
	if err != nil {
		return false
	}
	return m.Match(path)
}

// Normalize converts path into the slash-separated relative form globs are matched against.
func Normalize(path string) string {
	p := filepath.ToSlash(path)
	for strings.HasPrefix(p, "./") {
		p = p[2:]
	}
	return p
}

func translate(glob string) (string, error) {
	var b strings.Builder
	b.WriteString("^")

	depth := 0
	runes := []rune(Normalize(glob))
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		switch c {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				if i+1 < len(runes) && runes[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '{':
			depth++
			b.WriteString("(?:")
		case '}':
			if depth == 0 {
				return "", fmt.Errorf("glob %q: unmatched '}'", glob)
			}
			depth--
			b.WriteString(")")
		case ',':
			if depth > 0 {
				b.WriteString("|")
			} else {
				b.WriteString(",")
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	if depth != 0 {
		return "", fmt.Errorf("glob %q: unmatched '{'", glob)
	}

	b.WriteString("$")
	return b.String(), nil
}
