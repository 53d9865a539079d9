package note

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/nhle/mailnote/internal/mailpart"
	"github.com/nhle/mailnote/internal/vault"
)

func TestResolveTemplate(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantText    string
		wantLabel   string
		wantBody    BodyFormat
		wantWarning bool
	}{
		{
			name:      "empty uses default",
			raw:       "",
			wantText:  "${Body}",
			wantLabel: "#{}",
			wantBody:  BodyHTMLMarkdown,
		},
		{
			name:      "link labels",
			raw:       "tags: ${Labels|link}\n${Body}",
			wantText:  "tags: ${Labels}\n${Body}",
			wantLabel: "[[{}]]",
			wantBody:  BodyHTMLMarkdown,
		},
		{
			name:      "text body",
			raw:       "# ${Subject}\n${Body|text}",
			wantText:  "# ${Subject}\n${Body}",
			wantLabel: "#{}",
			wantBody:  BodyText,
		},
		{
			name:      "no body token",
			raw:       "${Subject} ${Labels|tag}",
			wantText:  "${Subject} ${Labels}",
			wantLabel: "#{}",
			wantBody:  BodyHTMLMarkdown,
		},
		{
			name:      "raw body and repeated directives",
			raw:       "${Body|raw}\n---\n${Body|text}",
			wantText:  "${Body}\n---\n${Body}",
			wantLabel: "#{}",
			wantBody:  BodyRaw,
		},
		{
			name:        "unknown options fall back",
			raw:         "${Labels|chips} ${Body|pdf}",
			wantText:    "${Labels} ${Body}",
			wantLabel:   "#{}",
			wantBody:    BodyHTMLMarkdown,
			wantWarning: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTemplate(tt.raw)
			if got.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", got.Text, tt.wantText)
			}
			if got.LabelFormat != tt.wantLabel {
				t.Errorf("LabelFormat = %q, want %q", got.LabelFormat, tt.wantLabel)
			}
			if got.BodyFormat != tt.wantBody {
				t.Errorf("BodyFormat = %q, want %q", got.BodyFormat, tt.wantBody)
			}
			if (len(got.Warnings) > 0) != tt.wantWarning {
				t.Errorf("Warnings = %v, want warning=%v", got.Warnings, tt.wantWarning)
			}
		})
	}
}

func TestLoadTemplate(t *testing.T) {
	ctx := context.Background()
	store := vault.NewFS(afero.NewMemMapFs())
	if err := store.CreateText(ctx, "Templates/mail.md", "${Labels|link}\n${Body|raw}"); err != nil {
		t.Fatalf("CreateText: %v", err)
	}

	tpl, err := LoadTemplate(ctx, store, "Templates/mail.md")
	if err != nil {
		t.Fatalf("LoadTemplate: %v", err)
	}
	if tpl.LabelFormat != "[[{}]]" || tpl.BodyFormat != BodyRaw {
		t.Errorf("got %+v", tpl)
	}

	if _, err := LoadTemplate(ctx, store, "missing.md"); err == nil {
		t.Error("expected error for missing template")
	}
}

func TestRenderIsTotal(t *testing.T) {
	f := Fields{}
	f.Set("Subject", "Hi")

	templates := []string{
		"${Subject} ${Unknown}",
		"${}${Body}${Labels}",
		"${with space} and ${Sub-ject}",
		"${${Subject}}",
		"no tokens at all",
	}
	for _, tpl := range templates {
		out := Render(tpl, f)
		if tokenPattern.MatchString(out) {
			t.Errorf("Render(%q) = %q still contains a token", tpl, out)
		}
	}

	if got := Render("${Subject} ${Unknown}!", f); got != "Hi !" {
		t.Errorf("Render = %q, want %q", got, "Hi !")
	}
}

func TestFormatDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Tue, 01 Jul 2025 10:00:00 +0000", "2025-07-01"},
		{"Tue, 01 Jul 2025 23:30:00 -0700", "2025-07-02"},
		{"Wed, 2 Jul 2025 08:15:00 +0000 (UTC)", "2025-07-02"},
		{"2025-03-04T05:06:07Z", "2025-03-04"},
		{"2025-03-04", "2025-03-04"},
		{"", InvalidDate},
		{"yesterday-ish", InvalidDate},
	}
	for _, tt := range tests {
		if got := FormatDate(tt.in); got != tt.want {
			t.Errorf("FormatDate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatLabels(t *testing.T) {
	names := map[string]string{"L1": "work", "L2": "receipts"}

	if got := FormatLabels([]string{"L1", "L2"}, names, "#{}"); got != "#work, #receipts" {
		t.Errorf("tag format = %q", got)
	}
	if got := FormatLabels([]string{"L2", "GONE"}, names, "[[{}]]"); got != "[[receipts]], [[]]" {
		t.Errorf("link format = %q", got)
	}
	if got := FormatLabels(nil, names, "#{}"); got != "" {
		t.Errorf("no labels = %q", got)
	}
}

func TestBindFields(t *testing.T) {
	in := Input{
		Headers: []mailpart.Header{
			{Name: "Subject", Value: "Quarterly report"},
			{Name: "From", Value: "Ann <ann@example.com>"},
			{Name: "Date", Value: "Mon, 07 Apr 2025 09:00:00 +0200"},
		},
		LabelIDs:    []string{"INBOX", "Label_7"},
		LabelNames:  map[string]string{"INBOX": "INBOX", "Label_7": "finance"},
		Body:        "the body",
		Link:        "https://mail.google.com/mail/#all/t1",
		Attachments: []string{"Mail/attachments/a.pdf", "Mail/attachments/b.png"},
	}

	f := BindFields(in, "#{}")

	want := map[string]string{
		"${Subject}":    "Quarterly report",
		"${From}":       "Ann <ann@example.com>",
		"${Date}":       "2025-04-07",
		"${Labels}":     "#INBOX, #finance",
		"${Body}":       "the body",
		"${Link}":       "https://mail.google.com/mail/#all/t1",
		"${Attachment}": "![[Mail/attachments/a.pdf]]\n![[Mail/attachments/b.png]]",
	}
	for k, v := range want {
		if f[k] != v {
			t.Errorf("%s = %q, want %q", k, f[k], v)
		}
	}

	empty := BindFields(Input{}, "#{}")
	if empty.Get(FieldAttachment) != "" {
		t.Errorf("Attachment without files = %q, want empty", empty.Get(FieldAttachment))
	}
	if empty.Get(FieldDate) != InvalidDate {
		t.Errorf("Date without header = %q, want %q", empty.Get(FieldDate), InvalidDate)
	}
}

func TestNoteName(t *testing.T) {
	f := Fields{}
	f.Set("Subject", "  Re:\tyour   order\n#42 ")
	f.Set("Date", "2025-01-02")

	if got := NoteName("${Date} ${Subject}", f); got != "2025-01-02 Re: your order #42" {
		t.Errorf("NoteName = %q", got)
	}
	if f.Get("Subject") != "  Re:\tyour   order\n#42 " {
		t.Error("NoteName modified the field set")
	}
	if got := NoteName("${Nothing}", f); got != "Untitled" {
		t.Errorf("empty name = %q, want Untitled", got)
	}
}

func TestFormatTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 150)
	if got := FormatTitle(long); len(got) != maxTitleRunes {
		t.Errorf("len = %d, want %d", len(got), maxTitleRunes)
	}
}

func TestRenderBody(t *testing.T) {
	const (
		text = "Hello\r\nworld"
		html = "<p>Hello <strong>world</strong></p>"
	)

	if got := RenderBody(text, html, BodyText); got != "Hello\nworld" {
		t.Errorf("text = %q", got)
	}
	if got := RenderBody(text, html, BodyRaw); got != html {
		t.Errorf("raw = %q", got)
	}
	if got := RenderBody(text, html, BodyHTMLMarkdown); got != "Hello **world**" {
		t.Errorf("htmlmd = %q", got)
	}

	if got := RenderBody("", html, BodyText); got != "Hello world" {
		t.Errorf("text fallback = %q", got)
	}
	if got := RenderBody(text, "", BodyRaw); got != "Hello\nworld" {
		t.Errorf("raw fallback = %q", got)
	}
	if got := RenderBody(text, "", BodyHTMLMarkdown); got != "Hello\nworld" {
		t.Errorf("htmlmd fallback = %q", got)
	}
}

func TestStripHTML(t *testing.T) {
	if got := StripHTML("<div>Fish &amp; chips</div>"); got != "Fish & chips" {
		t.Errorf("StripHTML = %q", got)
	}
}
