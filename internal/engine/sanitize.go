package engine

import (
	"strings"
)

// maxInputLength bounds what a single message can put into the session
// store or the logs.
const maxInputLength = 500

// dangerous covers markup-significant and injection-prone characters.
const dangerous = "<>{}[]`$\\|;"

// Normalize trims, strips control and markup characters, collapses
// runs of whitespace, and caps the length of inbound text. Case is
// preserved; keyword matching lowercases its own copy so names and
// emails survive intact.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	lastSpace := false
	for _, r := range text {
		if b.Len() >= maxInputLength {
			break
		}
		if r < 32 || r == 127 {
			r = ' '
		}
		if strings.ContainsRune(dangerous, r) {
			continue
		}
		if r == ' ' {
			if lastSpace {
				continue
			}
			lastSpace = true
		} else {
			lastSpace = false
		}
		b.WriteRune(r)
	}

	return strings.TrimSpace(b.String())
}
