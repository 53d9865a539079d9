// Package setup implements the interactive configuration of mailnote:
// the settings form, the IMAP password prompt and the Gmail consent flow.
package setup

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/mailnote/internal/model"
)

const formWidth = 72

// Values are the form fields. huh binds to them by pointer, so numbers are
// kept as strings until Apply.
type Values struct {
	Provider string

	FromLabel        string
	ToLabel          string
	VaultPath        string
	MailFolder       string
	AttachmentFolder string
	FetchAmount      string
	Template         string
	NoteName         string

	DestroyOnFetch  bool
	FetchAttachment bool

	ClientID     string
	ClientSecret string

	IMAPHost     string
	IMAPPort     string
	IMAPUsername string
	IMAPPassword string
	IMAPTLS      bool
}

// ValuesFrom pre-fills the form from the current configuration.
func ValuesFrom(cfg *model.AppConfig) Values {
	return Values{
		Provider:         cfg.Provider,
		FromLabel:        cfg.FromLabel,
		ToLabel:          cfg.ToLabel,
		VaultPath:        cfg.VaultPath,
		MailFolder:       cfg.MailFolder,
		AttachmentFolder: cfg.AttachmentFolder,
		FetchAmount:      strconv.Itoa(cfg.FetchAmount),
		Template:         cfg.Template,
		NoteName:         cfg.NoteName,
		DestroyOnFetch:   cfg.DestroyOnFetch,
		FetchAttachment:  cfg.FetchAttachment,
		ClientID:         cfg.Gmail.ClientID,
		ClientSecret:     cfg.Gmail.ClientSecret,
		IMAPHost:         cfg.IMAP.Host,
		IMAPPort:         strconv.Itoa(cfg.IMAP.Port),
		IMAPUsername:     cfg.IMAP.Username,
		IMAPTLS:          cfg.IMAP.TLS,
	}
}

// Apply copies the values into cfg. The IMAP password is not part of the
// configuration and is left to the caller.
func (v Values) Apply(cfg *model.AppConfig) error {
	amount, err := strconv.Atoi(strings.TrimSpace(v.FetchAmount))
	if err != nil {
		return fmt.Errorf("fetch amount: %w", err)
	}

	cfg.Provider = v.Provider
	cfg.FromLabel = strings.TrimSpace(v.FromLabel)
	cfg.ToLabel = strings.TrimSpace(v.ToLabel)
	cfg.VaultPath = model.ExpandHome(strings.TrimSpace(v.VaultPath))
	cfg.MailFolder = strings.TrimSpace(v.MailFolder)
	cfg.AttachmentFolder = strings.TrimSpace(v.AttachmentFolder)
	cfg.FetchAmount = amount
	cfg.Template = strings.TrimSpace(v.Template)
	cfg.NoteName = v.NoteName
	cfg.DestroyOnFetch = v.DestroyOnFetch
	cfg.FetchAttachment = v.FetchAttachment

	switch v.Provider {
	case model.ProviderGmail:
		cfg.Gmail.ClientID = strings.TrimSpace(v.ClientID)
		cfg.Gmail.ClientSecret = strings.TrimSpace(v.ClientSecret)
	case model.ProviderIMAP:
		port, err := strconv.Atoi(strings.TrimSpace(v.IMAPPort))
		if err != nil {
			return fmt.Errorf("imap port: %w", err)
		}
		cfg.IMAP.Host = strings.TrimSpace(v.IMAPHost)
		cfg.IMAP.Port = port
		cfg.IMAP.Username = strings.TrimSpace(v.IMAPUsername)
		cfg.IMAP.TLS = v.IMAPTLS
	}
	return cfg.Validate()
}

// NewForm builds the settings form. The provider-specific group shown
// depends on the provider picked in the first group.
func NewForm(v *Values) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Mail provider").
				Options(
					huh.NewOption("Gmail - REST API with OAuth", model.ProviderGmail),
					huh.NewOption("IMAP - any IMAP server", model.ProviderIMAP),
				).
				Value(&v.Provider),
			huh.NewInput().
				Title("Vault path").
				Description("Folder the notes are written into").
				Placeholder("~/Notes").
				Value(&v.VaultPath).
				Validate(validateRequired("Vault path")),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Client ID").
				Description("OAuth client of a Google Cloud project with the Gmail API enabled").
				Value(&v.ClientID).
				Validate(validateRequired("Client ID")),
			huh.NewInput().
				Title("Client secret").
				EchoMode(huh.EchoModePassword).
				Value(&v.ClientSecret).
				Validate(validateRequired("Client secret")),
		).WithHideFunc(func() bool { return v.Provider != model.ProviderGmail }),

		huh.NewGroup(
			huh.NewInput().
				Title("IMAP host").
				Placeholder("imap.example.com").
				Value(&v.IMAPHost).
				Validate(validateRequired("IMAP host")),
			huh.NewInput().
				Title("IMAP port").
				Placeholder("993").
				Value(&v.IMAPPort).
				Validate(validatePort),
			huh.NewInput().
				Title("Username").
				Placeholder("user@example.com").
				Value(&v.IMAPUsername).
				Validate(validateRequired("Username")),
			huh.NewInput().
				Title("Password").
				Description("Stored in the system keyring. Leave empty to keep the saved one").
				EchoMode(huh.EchoModePassword).
				Value(&v.IMAPPassword),
			huh.NewConfirm().
				Title("Use TLS").
				Affirmative("Yes").
				Negative("No (STARTTLS)").
				Value(&v.IMAPTLS),
		).WithHideFunc(func() bool { return v.Provider != model.ProviderIMAP }),

		huh.NewGroup(
			huh.NewInput().
				Title("From label").
				Description("Threads carrying this label are imported").
				Placeholder("INBOX").
				Value(&v.FromLabel).
				Validate(validateRequired("From label")),
			huh.NewInput().
				Title("To label").
				Description("Added to imported threads. Optional").
				Value(&v.ToLabel).
				Validate(validateDistinct(&v.FromLabel)),
			huh.NewInput().
				Title("Fetch amount").
				Description("Maximum threads per run").
				Value(&v.FetchAmount).
				Validate(validatePositive("Fetch amount")),
		),

		huh.NewGroup(
			huh.NewInput().
				Title("Mail folder").
				Description("Vault folder for the notes").
				Value(&v.MailFolder),
			huh.NewInput().
				Title("Attachment folder").
				Value(&v.AttachmentFolder),
			huh.NewInput().
				Title("Template").
				Description("Vault path of the note template. Empty uses the body only").
				Value(&v.Template),
			huh.NewInput().
				Title("Note name").
				Placeholder("${Subject}").
				Value(&v.NoteName).
				Validate(validateRequired("Note name")),
			huh.NewConfirm().
				Title("Save attachments").
				Value(&v.FetchAttachment),
			huh.NewConfirm().
				Title("Trash threads after import").
				Affirmative("Yes").
				Negative("No").
				Value(&v.DestroyOnFetch),
		),
	).WithWidth(formWidth)
}

// NewAuthForm asks for the authorization code after the user opened the
// consent page at authURL.
func NewAuthForm(authURL string, code *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewNote().
				Title("Authorize Gmail access").
				Description("Open this page, allow access and paste the code or the\n"+
					"address you were redirected to:\n\n"+authURL),
			huh.NewInput().
				Title("Authorization code").
				Value(code).
				Validate(validateRequired("Authorization code")),
		),
	).WithWidth(formWidth)
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validatePort(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("port must be a number")
	}
	if n <= 0 || n > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	return nil
}

func validatePositive(fieldName string) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive number", fieldName)
		}
		return nil
	}
}

// validateDistinct rejects a value equal to *other.
func validateDistinct(other *string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s != "" && s == strings.TrimSpace(*other) {
			return fmt.Errorf("to label must differ from the from label")
		}
		return nil
	}
}
