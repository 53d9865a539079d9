// Package note turns a fetched message into note text: it resolves the
// user's template, binds message fields to tokens and renders the result.
package note

import (
	"context"
	"fmt"
	"regexp"

	"github.com/nhle/mailnote/internal/vault"
)

// BodyFormat selects how the message body is rendered into ${Body}.
type BodyFormat string

const (
	// BodyHTMLMarkdown converts the HTML body to Markdown.
	BodyHTMLMarkdown BodyFormat = "htmlmd"
	// BodyText uses the plain text body.
	BodyText BodyFormat = "text"
	// BodyRaw inserts the HTML body untouched.
	BodyRaw BodyFormat = "raw"
)

// DefaultTemplate is used when no template file is configured.
const DefaultTemplate = "${Body}"

// DefaultLabelFormat renders labels as tags. "{}" is replaced by the
// label's display name.
const DefaultLabelFormat = "#{}"

var labelOptions = map[string]string{
	"tag":  "#{}",
	"link": "[[{}]]",
}

var bodyOptions = map[string]BodyFormat{
	"htmlmd": BodyHTMLMarkdown,
	"text":   BodyText,
	"raw":    BodyRaw,
}

var (
	labelsDirective = regexp.MustCompile(`\$\{Labels(?:\|([^}]*))?\}`)
	bodyDirective   = regexp.MustCompile(`\$\{Body(?:\|([^}]*))?\}`)
)

// Template is a note template with its inline options extracted.
type Template struct {
	// Text is the template with ${Labels|...} and ${Body|...} reduced to
	// ${Labels} and ${Body}.
	Text string

	LabelFormat string
	BodyFormat  BodyFormat

	// Warnings lists options that were not recognized and replaced by
	// their defaults.
	Warnings []string
}

// ResolveTemplate extracts the label and body options from raw. Options are
// read from the first occurrence of each directive; unknown options fall
// back to the defaults and are reported in Warnings.
func ResolveTemplate(raw string) Template {
	if raw == "" {
		raw = DefaultTemplate
	}

	t := Template{
		LabelFormat: DefaultLabelFormat,
		BodyFormat:  BodyHTMLMarkdown,
	}

	if m := labelsDirective.FindStringSubmatch(raw); m != nil && m[1] != "" {
		if f, ok := labelOptions[m[1]]; ok {
			t.LabelFormat = f
		} else {
			t.Warnings = append(t.Warnings,
				fmt.Sprintf("unknown Labels option %q, using tag", m[1]))
		}
	}

	if m := bodyDirective.FindStringSubmatch(raw); m != nil && m[1] != "" {
		if f, ok := bodyOptions[m[1]]; ok {
			t.BodyFormat = f
		} else {
			t.Warnings = append(t.Warnings,
				fmt.Sprintf("unknown Body option %q, using htmlmd", m[1]))
		}
	}

	text := labelsDirective.ReplaceAllLiteralString(raw, Token(FieldLabels))
	t.Text = bodyDirective.ReplaceAllLiteralString(text, Token(FieldBody))

	return t
}

// LoadTemplate reads the template at path from the vault and resolves it.
// An empty path selects DefaultTemplate.
func LoadTemplate(ctx context.Context, store vault.Store, path string) (Template, error) {
	if path == "" {
		return ResolveTemplate(""), nil
	}

	raw, err := store.ReadRaw(ctx, path)
	if err != nil {
		return Template{}, fmt.Errorf("loading template: %w", err)
	}
	return ResolveTemplate(raw), nil
}
