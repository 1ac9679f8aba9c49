package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/autopilot/internal/model"
)

func testRules() []model.PatternRule {
	return []model.PatternRule{
		{ID: "tests", Patterns: []string{"**/*.test.{ts,tsx}"}, Commands: []string{"npm test"}, Priority: 0},
		{ID: "typescript", Patterns: []string{"src/**/*.{ts,tsx}"}, Commands: []string{"npm run type-check"}, Priority: 1},
		{ID: "docs", Patterns: []string{"docs/**/*.md", "*.md"}, Commands: []string{"npm run docs"}, Priority: 3},
	}
}

func TestClassifier_FirstMatchWins(t *testing.T) {
	c, err := NewClassifier(testRules())
	require.NoError(t, err)

	rule, ok := c.AnalyzeContext("src/components/Button.test.tsx", model.ChangeModify)
	require.True(t, ok)
	assert.Equal(t, "tests", rule.ID)

	rule, ok = c.AnalyzeContext("src/components/Button.tsx", model.ChangeModify)
	require.True(t, ok)
	assert.Equal(t, "typescript", rule.ID)

	rule, ok = c.AnalyzeContext("README.md", model.ChangeAdd)
	require.True(t, ok)
	assert.Equal(t, "docs", rule.ID)
}

func TestClassifier_NoMatch(t *testing.T) {
	c, err := NewClassifier(testRules())
	require.NoError(t, err)

	_, ok := c.AnalyzeContext("public/logo.svg", model.ChangeModify)
	assert.False(t, ok)
}

func TestNewClassifier_InvalidGlob(t *testing.T) {
	_, err := NewClassifier([]model.PatternRule{{ID: "bad", Patterns: []string{"src/{a,b"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule bad")
}

func TestClassifier_Rules(t *testing.T) {
	c, err := NewClassifier(testRules())
	require.NoError(t, err)
	ids := []string{}
	for _, r := range c.Rules() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"tests", "typescript", "docs"}, ids)
}
