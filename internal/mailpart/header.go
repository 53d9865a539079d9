package mailpart

import "strings"

// Header is a single message header field.
type Header struct {
	Name  string
	Value string
}

// HeaderValue returns the value of the first header named name, matched
// case-insensitively, or "" when absent.
func HeaderValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
