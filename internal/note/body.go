package note

import (
	"html"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/microcosm-cc/bluemonday"
)

var stripPolicy = bluemonday.StrictPolicy()

// RenderBody renders the message body in the requested format. Each
// format falls back to the other body when its preferred one is empty.
func RenderBody(text, htmlBody string, format BodyFormat) string {
	var out string

	switch format {
	case BodyText:
		out = text
		if out == "" {
			out = StripHTML(htmlBody)
		}
	case BodyRaw:
		out = htmlBody
		if out == "" {
			out = text
		}
	default:
		out = text
		if htmlBody != "" {
			if md, err := htmltomarkdown.ConvertString(htmlBody); err == nil {
				out = strings.TrimSpace(md)
			} else if out == "" {
				out = StripHTML(htmlBody)
			}
		}
	}

	return strings.ReplaceAll(out, "\r\n", "\n")
}

// StripHTML removes all markup and decodes entities.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(html.UnescapeString(stripPolicy.Sanitize(s)))
}
