package callstack

import (
	"bufio"
	"os"
	"strings"
	"sync"
)

// maxContextLines bounds how far a multi-line call is followed.
const maxContextLines = 20

var sources = &sourceCache{files: make(map[string][]string)}

// sourceCache keeps the lines of every source file read for code context.
// A nil entry records a file that could not be read.
type sourceCache struct {
	mu    sync.Mutex
	files map[string][]string
}

func (c *sourceCache) lines(file string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if lines, ok := c.files[file]; ok {
		return lines
	}
	lines := readLines(file)
	c.files[file] = lines
	return lines
}

func readLines(file string) []string {
	f, err := os.Open(file)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if scanner.Err() != nil {
		return nil
	}
	return lines
}

// CodeContext returns the source text of the statement starting at line.
// A call spanning several lines is returned whole, dedented. Missing
// sources yield "".
func CodeContext(file string, line int) string {
	lines := sources.lines(file)
	if line < 1 || line > len(lines) {
		return ""
	}

	end := line
	open := brackets(lines[line-1], nil)
	for len(open) > 0 && open[0] == '(' && end < len(lines) && end-line < maxContextLines {
		open = brackets(lines[end], open)
		end++
	}
	if end == line {
		return strings.TrimSpace(lines[line-1])
	}
	return strings.TrimSpace(dedent(lines[line-1 : end]))
}

// brackets pushes the openers of s onto open and pops their closers,
// ignoring string and rune literals and line comments. A statement is
// followed onto later lines only while its outermost opener is a call paren.
func brackets(s string, open []byte) []byte {
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '{', '[':
			open = append(open, c)
		case ')', '}', ']':
			if len(open) > 0 {
				open = open[:len(open)-1]
			}
		case '/':
			if i+1 < len(s) && s[i+1] == '/' {
				return open
			}
		}
	}
	return open
}

func dedent(lines []string) string {
	prefix := ""
	first := true
	for _, l := range lines {
		if strings.TrimSpace(l) == "" {
			continue
		}
		indent := l[:len(l)-len(strings.TrimLeft(l, " \t"))]
		if first {
			prefix = indent
			first = false
			continue
		}
		for !strings.HasPrefix(indent, prefix) {
			prefix = prefix[:len(prefix)-1]
		}
	}

	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimPrefix(l, prefix)
	}
	return strings.Join(out, "\n")
}
