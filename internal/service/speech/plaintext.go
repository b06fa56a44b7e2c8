package speech

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/russross/blackfriday/v2"
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	spaceRun    = regexp.MustCompile(`\s+`)
)

// PlainText renders markdown and strips every tag so the synthesizer does not
// read out asterisks, links or code fences.
func PlainText(markdown string) string {
	if strings.TrimSpace(markdown) == "" {
		return ""
	}
	rendered := blackfriday.Run([]byte(markdown), blackfriday.WithExtensions(blackfriday.CommonExtensions))
	stripped := stripPolicy.SanitizeBytes(rendered)
	text := html.UnescapeString(string(stripped))
	return strings.TrimSpace(spaceRun.ReplaceAllString(text, " "))
}
