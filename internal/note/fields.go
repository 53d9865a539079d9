package note

import (
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/nhle/mailnote/internal/mailpart"
)

// Field names bound by BindFields in addition to the message headers.
const (
	FieldDate       = "Date"
	FieldSubject    = "Subject"
	FieldLabels     = "Labels"
	FieldBody       = "Body"
	FieldLink       = "Link"
	FieldAttachment = "Attachment"
)

// InvalidDate is bound to ${Date} when the header cannot be parsed.
const InvalidDate = "Invalid Date"

// untitled names notes whose name template renders empty.
const untitled = "Untitled"

const maxTitleRunes = 100

var tokenPattern = regexp.MustCompile(`\$\{[^}]*\}`)

// Fields maps tokens, delimiters included, to their values.
type Fields map[string]string

// Token returns the placeholder for the field name.
func Token(name string) string {
	return "${" + name + "}"
}

// Set binds value to the field name.
func (f Fields) Set(name, value string) {
	f[Token(name)] = value
}

// Get returns the value bound to the field name.
func (f Fields) Get(name string) string {
	return f[Token(name)]
}

// Input is everything a note is built from.
type Input struct {
	// Headers are the headers of the thread's first message.
	Headers []mailpart.Header

	// LabelIDs are the label ids on the thread's first message.
	LabelIDs []string

	// LabelNames maps label ids to display names.
	LabelNames map[string]string

	// Body is the already rendered message body.
	Body string

	// Link points back at the thread in the provider's web UI.
	Link string

	// Attachments are the vault paths of extracted attachments.
	Attachments []string
}

// BindFields builds the field set for one message.
func BindFields(in Input, labelFormat string) Fields {
	f := make(Fields, len(in.Headers)+5)
	for _, h := range in.Headers {
		f.Set(h.Name, h.Value)
	}

	f.Set(FieldDate, FormatDate(f.Get(FieldDate)))
	f.Set(FieldLabels, FormatLabels(in.LabelIDs, in.LabelNames, labelFormat))
	f.Set(FieldBody, in.Body)
	f.Set(FieldLink, in.Link)
	f.Set(FieldAttachment, AttachmentEmbeds(in.Attachments))

	return f
}

// Render substitutes every ${...} token in text. Tokens without a bound
// value render as the empty string.
func Render(text string, f Fields) string {
	return tokenPattern.ReplaceAllStringFunc(text, func(tok string) string {
		return f[tok]
	})
}

// NoteName renders the note name template. ${Subject} is passed through
// FormatTitle first. The result is not yet sanitized for the file system.
func NoteName(nameTemplate string, f Fields) string {
	named := make(Fields, len(f))
	for k, v := range f {
		named[k] = v
	}
	named.Set(FieldSubject, FormatTitle(f.Get(FieldSubject)))

	name := strings.TrimSpace(Render(nameTemplate, named))
	if name == "" {
		return untitled
	}
	return name
}

// FormatDate reduces an RFC 5322 or ISO-8601 timestamp to its UTC
// YYYY-MM-DD date, or InvalidDate.
func FormatDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := mail.ParseDate(s); err == nil {
		return t.UTC().Format(time.DateOnly)
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.DateOnly)
		}
	}
	return InvalidDate
}

// FormatLabels renders each label id through format and joins them with
// ", ". Ids missing from names render with an empty name.
func FormatLabels(ids []string, names map[string]string, format string) string {
	rendered := make([]string, 0, len(ids))
	for _, id := range ids {
		rendered = append(rendered, strings.Replace(format, "{}", names[id], 1))
	}
	return strings.Join(rendered, ", ")
}

// FormatTitle turns a subject into a single-line note title.
func FormatTitle(subject string) string {
	title := strings.Join(strings.Fields(subject), " ")
	if r := []rune(title); len(r) > maxTitleRunes {
		title = strings.TrimSpace(string(r[:maxTitleRunes]))
	}
	return title
}

// AttachmentEmbeds returns one ![[path]] embed per line.
func AttachmentEmbeds(paths []string) string {
	embeds := make([]string, len(paths))
	for i, p := range paths {
		embeds[i] = "![[" + p + "]]"
	}
	return strings.Join(embeds, "\n")
}
