package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_Match(t *testing.T) {
	tests := []struct {
		name string
		glob string
		path string
		want bool
	}{
		{"double star deep", "src/**/*.{tsx,ts}", "src/components/foo/Bar.tsx", true},
		{"double star zero dirs", "src/**/*.{tsx,ts}", "src/x.ts", true},
		{"other tree", "src/**/*.{tsx,ts}", "docs/readme.md", false},
		{"wrong extension", "src/**/*.{tsx,ts}", "src/x.js", false},
		{"star single segment", "*.md", "README.md", true},
		{"star does not cross separator", "*.md", "docs/README.md", false},
		{"literal dot escaped", "package.json", "packageXjson", false},
		{"literal file", "package.json", "package.json", true},
		{"question mark", "v?.txt", "v1.txt", true},
		{"question mark no separator", "a?b", "a/b", false},
		{"leading dot slash", "src/*.ts", "./src/a.ts", true},
		{"trailing double star", "node_modules/**", "node_modules/react/index.js", true},
		{"anchored prefix", "src/*.ts", "lib/src/a.ts", false},
		{"regexp metachars", "a+b(c).ts", "a+b(c).ts", true},
		{"alternation of dirs", "{src,lib}/**/*.css", "lib/ui/button.css", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Compile(tt.glob)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.path), "glob %q path %q", tt.glob, tt.path)
		})
	}
}

func TestCompile_UnbalancedBraces(t *testing.T) {
	_, err := Compile("src/*.{ts,tsx")
	assert.Error(t, err)

	_, err = Compile("src/*.ts}")
	assert.Error(t, err)
}

func TestMatchesPattern(t *testing.T) {
	assert.True(t, MatchesPattern(`src\components\App.tsx`, "src/**/*.tsx"))
	assert.False(t, MatchesPattern("src/a.ts", "src/{a"))
}

func TestMustCompile_Panics(t *testing.T) {
	assert.Panics(t, func() { MustCompile("{") })
}
