package table

import (
	"strings"
)

// DefaultColumnPrefix marks per-CPU columns in /proc/softirqs and /proc/interrupts headers.
const DefaultColumnPrefix = "CPU"

// Snapshot is one read of a counter table. Line 0 is the header.
type Snapshot struct {
	Rows    int
	Columns int
	Tokens  [][]string
}

// Line returns the tokens of line i, or nil when i is out of range.
func (s *Snapshot) Line(i int) []string {
	if i < 0 || i >= len(s.Tokens) {
		return nil
	}

	return s.Tokens[i]
}

// Header returns the tokens of the header line.
func (s *Snapshot) Header() []string {
	return s.Line(0)
}

// Parse tokenizes a counter table. Lines are separated by '\n', tokens by
// spaces and tabs. A trailing newline does not produce an extra line; blank
// lines inside the table are kept so row positions stay stable.
func Parse(data []byte, columnPrefix string) *Snapshot {
	text := string(data)
	text = strings.TrimSuffix(text, "\n")

	if text == "" {
		return &Snapshot{}
	}

	lines := strings.Split(text, "\n")
	tokens := make([][]string, len(lines))

	for i, line := range lines {
		tokens[i] = Tokenize(line)
	}

	return &Snapshot{
		Rows:    len(lines),
		Columns: CountColumns(tokens[0], columnPrefix),
		Tokens:  tokens,
	}
}

// Tokenize splits a single line on spaces, tabs and carriage returns.
func Tokenize(line string) []string {
	return strings.FieldsFunc(line, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r'
	})
}

// CountColumns counts header tokens that start with prefix. An empty prefix
// counts every token.
func CountColumns(header []string, prefix string) int {
	if prefix == "" {
		return len(header)
	}

	n := 0

	for _, word := range header {
		if strings.HasPrefix(word, prefix) {
			n++
		}
	}

	return n
}
