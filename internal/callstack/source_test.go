package callstack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodeContext(t *testing.T) {
	src := filepath.Join(t.TempDir(), "main.go")
	require.NoError(t, os.WriteFile(src, []byte(`package main

func main() {
	x := compute(1, ")")
	report.Log(map[string]int{
		"a": 1,
	}) // done
	if err := run(x); err != nil {
		return
	}
}
`), 0644))

	tests := []struct {
		name     string
		line     int
		expected string
	}{
		{"single line", 4, `x := compute(1, ")")`},
		{"multi line call", 5, "report.Log(map[string]int{\n\t\"a\": 1,\n}) // done"},
		{"block is not followed", 8, "if err := run(x); err != nil {"},
		{"line zero", 0, ""},
		{"past end", 100, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CodeContext(src, tt.line))
		})
	}
}

func TestCodeContextMissingFile(t *testing.T) {
	assert.Equal(t, "", CodeContext(filepath.Join(t.TempDir(), "absent.go"), 1))
}

func TestBrackets(t *testing.T) {
	assert.Empty(t, brackets(`f("(", ')')`, nil))
	assert.Equal(t, []byte("("), brackets(`f(a, // (`, nil))
	assert.Equal(t, []byte("({"), brackets("f(`{`, g{", nil))
	assert.Empty(t, brackets(")", nil))
}
