// Package keypath parses and evaluates record accessor expressions such as
// $log, $kubernetes['labels']['app'] or $items[0]. The leading $ is optional.
package keypath

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
	"github.com/pkg/errors"
)

var (
	pathLexer = lexer.Must(lexer.Regexp(`(\s+)` +
		`|(?P<Dollar>\$)` +
		`|(?P<String>"([^\\"]|\\.)*"|'([^\\']|\\.)*')` +
		`|(?P<Int>\d+)` +
		`|(?P<Punct>[\[\]])` +
		`|(?P<Ident>[^\s\$\[\]'"]+)`,
	))
	parser = participle.MustBuild(
		&expression{},
		participle.Lexer(pathLexer),
		participle.Unquote("String"),
	)

	bareKey = regexp.MustCompile(`^[^\s\$\[\]'"\d][^\s\$\[\]'"]*$`)
	quoter  = strings.NewReplacer(`\`, `\\`, `'`, `\'`)
)

type (
	expression struct {
		Dollar    bool         `[ @"$" ]`
		Root      string       `@(Ident | String | Int)`
		Subscript []*subscript `{ "[" @@ "]" }`
	}

	subscript struct {
		Key   *string `  @String`
		Index *int    `| @Int`
	}
)

// Keyed is implemented by map values a Path can descend into.
type Keyed interface {
	Get(key string) (interface{}, bool)
}

type segment struct {
	key     string
	index   int
	isIndex bool
}

// Path is a parsed accessor. It is immutable and safe for concurrent use.
type Path struct {
	segments []segment
}

// Parse compiles s into a Path.
func Parse(s string) (*Path, error) {
	if strings.TrimSpace(s) == "" {
		return nil, errors.New("empty key path")
	}

	exp := &expression{}
	if err := parser.ParseString(s, exp); err != nil {
		return nil, errors.Wrapf(err, "invalid key path %q", s)
	}

	p := &Path{segments: make([]segment, 0, 1+len(exp.Subscript))}
	p.segments = append(p.segments, segment{key: exp.Root})
	for _, sub := range exp.Subscript {
		switch {
		case sub.Key != nil:
			p.segments = append(p.segments, segment{key: *sub.Key})
		case sub.Index != nil:
			p.segments = append(p.segments, segment{index: *sub.Index, isIndex: true})
		}
	}
	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Lookup resolves the path against root. Map segments match the first key
// with that name; index segments only apply to []interface{} values.
func (p *Path) Lookup(root Keyed) (interface{}, bool) {
	var cur interface{} = root
	for _, s := range p.segments {
		if s.isIndex {
			arr, ok := cur.([]interface{})
			if !ok || s.index < 0 || s.index >= len(arr) {
				return nil, false
			}
			cur = arr[s.index]
			continue
		}

		k, ok := cur.(Keyed)
		if !ok {
			return nil, false
		}
		if cur, ok = k.Get(s.key); !ok {
			return nil, false
		}
	}
	return cur, true
}

// String returns the canonical form of the path, e.g. $a['b'][0]. The
// result parses back to an equal Path.
func (p *Path) String() string {
	if p == nil || len(p.segments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("$")
	if root := p.segments[0].key; bareKey.MatchString(root) {
		b.WriteString(root)
	} else {
		b.WriteString(quote(root))
	}
	for _, s := range p.segments[1:] {
		if s.isIndex {
			b.WriteString("[" + strconv.Itoa(s.index) + "]")
		} else {
			b.WriteString("[" + quote(s.key) + "]")
		}
	}
	return b.String()
}

func quote(key string) string {
	return "'" + quoter.Replace(key) + "'"
}
