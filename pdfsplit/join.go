package pdfsplit

import (
	"regexp"
	"strings"
)

// bulletRe marks lines that must keep their own line when wrapped text
// is re-joined: list markers, numbered items, bracketed tags.
var bulletRe = regexp.MustCompile(`^\s*(?:[-*•⦁●∙·‣▪►☐・]|\d{1,3}\.|\(\d{1,3}\)|\[[^\]]+\])`)

// JoinLines undoes PDF line wrapping inside a section: consecutive text
// lines merge with a space, blank lines become paragraph breaks, bullet
// and numbered lines keep their own line, and table marker regions pass
// through byte for byte.
func JoinLines(text string) string {
	lines := strings.Split(text, "\n")
	var out []string
	var para []string

	flush := func() {
		if len(para) > 0 {
			out = append(out, strings.Join(para, " "))
			para = nil
		}
	}

	inTable := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case inTable:
			out = append(out, line)
			if tableEndRe.MatchString(trimmed) {
				inTable = false
			}
		case tableStartRe.MatchString(trimmed):
			flush()
			out = append(out, line)
			inTable = true
		case trimmed == "":
			flush()
			if len(out) > 0 && out[len(out)-1] != "" {
				out = append(out, "")
			}
		case bulletRe.MatchString(trimmed):
			flush()
			out = append(out, trimmed)
		default:
			para = append(para, trimmed)
		}
	}
	flush()
	return strings.Join(out, "\n")
}
