package wbformat

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText returns the text content of formatted HTML, for terminal output
func PlainText(fragment string) string {
	z := html.NewTokenizer(strings.NewReader(fragment))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}
