package outbound

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
)

// Split breaks text into non-blank lines no longer than limit bytes.
func Split(text string, limit int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, carve(line, limit)...)
	}
	return out
}

func carve(line string, limit int) []string {
	var parts []string
	for len(line) > limit {
		cut := splitPoint(line, limit)
		if part := strings.TrimSpace(line[:cut]); part != "" {
			parts = append(parts, part)
		}
		line = strings.TrimLeftFunc(line[cut:], unicode.IsSpace)
	}
	if line != "" {
		parts = append(parts, line)
	}
	return parts
}

// splitPoint prefers the last whitespace whose trimmed prefix fills at least
// three quarters of the limit, and otherwise cuts at a grapheme boundary.
func splitPoint(line string, limit int) int {
	minFill := limit * 3 / 4
	best := 0
	for i, r := range line {
		if i > limit {
			break
		}
		if unicode.IsSpace(r) && len(strings.TrimRightFunc(line[:i], unicode.IsSpace)) >= minFill {
			best = i
		}
	}
	if best > 0 {
		return best
	}
	return boundaryCut(line, limit)
}

// boundaryCut returns the largest grapheme cluster boundary within limit, or a
// rune boundary when the first cluster alone is too long.
func boundaryCut(line string, limit int) int {
	pos := 0
	rest := line
	state := -1
	for rest != "" {
		var cluster string
		cluster, rest, _, state = uniseg.FirstGraphemeClusterInString(rest, state)
		if pos+len(cluster) > limit {
			break
		}
		pos += len(cluster)
	}
	if pos > 0 {
		return pos
	}

	cut := 0
	for cut < len(line) {
		_, size := utf8.DecodeRuneInString(line[cut:])
		if cut+size > limit {
			break
		}
		cut += size
	}
	return max(cut, 1)
}
