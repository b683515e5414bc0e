package gate

import (
	"strings"
	"unicode"
)

// FilterTrace removes stack-trace lines that start with any ignored prefix,
// keeps the first maxLines survivors in order, and trims trailing whitespace
// from the joined result. maxLines <= 0 keeps nothing.
func FilterTrace(trace string, ignored []string, maxLines int) string {
	if maxLines <= 0 {
		return ""
	}

	kept := make([]string, 0, min(maxLines, 32))
	for _, line := range strings.Split(trace, "\n") {
		if len(kept) == maxLines {
			break
		}
		if hasAnyPrefix(line, ignored) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimRightFunc(strings.Join(kept, "\n"), unicode.IsSpace)
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}
	return false
}
