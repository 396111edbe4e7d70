package evaluation

import "strings"

// Selection is a 0-based, inclusive line range. Start == End with Cursor set
// means "the block around this line".
type Selection struct {
	Start  int
	End    int
	Cursor bool
}

// Cursor returns the selection for a caret on line.
func Cursor(line int) Selection {
	return Selection{Start: line, End: line, Cursor: true}
}

// Lines returns an explicit selection of lines start..end.
func Lines(start, end int) Selection {
	return Selection{Start: start, End: end}
}

// IsCursor reports whether the block has to be resolved.
func (s Selection) IsCursor() bool {
	return s.Cursor
}

// ResolveBlock finds the statement block containing line: upwards to the
// nearest line starting at column 0 that opens a statement, downwards to the
// line before the first empty line (or the end of the document). Clauses
// such as else or except belong to the statement above them, and decorators
// to the definition below them.
func ResolveBlock(lines []string, line int) (start, end int) {
	if len(lines) == 0 {
		return 0, -1
	}
	if line < 0 {
		line = 0
	}
	if line >= len(lines) {
		line = len(lines) - 1
	}

	if strings.TrimSpace(lines[line]) == "" {
		return line, line
	}

	start = line
	for start > 0 && lines[start-1] != "" {
		if indented(lines[start]) || continuesStatement(lines[start]) || decorator(lines[start-1]) {
			start--
			continue
		}
		break
	}

	end = line
	for end+1 < len(lines) && lines[end+1] != "" {
		end++
	}
	return start, end
}

func indented(line string) bool {
	return strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")
}

var clauses = []string{"else", "elif", "except", "finally"}

// continuesStatement reports whether a column-0 line is a clause of the
// compound statement above it.
func continuesStatement(line string) bool {
	for _, kw := range clauses {
		rest, ok := strings.CutPrefix(line, kw)
		if ok && (rest == "" || strings.ContainsAny(rest[:1], ": (*")) {
			return true
		}
	}
	return false
}

func decorator(line string) bool {
	return strings.HasPrefix(line, "@")
}

func isBlank(lines []string) bool {
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}
