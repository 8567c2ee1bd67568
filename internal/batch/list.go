package batch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineLength bounds a single list line. Longer lines fail the whole read.
const maxLineLength = 1 << 20

// ParseList reads one identifier per line. A line whose first character is
// '#' is a comment; an indented '#' is not. Surrounding whitespace is trimmed
// and blank lines are skipped. Order and duplicates are preserved.
func ParseList(r io.Reader) ([]string, error) {
	var ids []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		if strings.HasPrefix(raw, "#") {
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading identifier list after line %d: %w", lineNo, err)
	}
	return ids, nil
}
