package notify

import (
	"embed"
	"fmt"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/goliatone/go-identity"
)

//go:embed templates/*.txt
var templatesFS embed.FS

var subjects = map[identity.OTPPurpose]string{
	identity.OTPPurposeVerification:  "Verify your account",
	identity.OTPPurposePasswordReset: "Reset your password",
}

var templateFiles = map[identity.OTPPurpose]string{
	identity.OTPPurposeVerification:  "templates/verification.txt",
	identity.OTPPurposePasswordReset: "templates/password_reset.txt",
}

// Message is a rendered notification
type Message struct {
	To      string
	Subject string
	Body    string
}

// Renderer turns an OTP into a human readable message
type Renderer struct {
	templates map[identity.OTPPurpose]*pongo2.Template
	ttl       time.Duration
}

// NewRenderer compiles the embedded templates. ttl is shown to the reader.
func NewRenderer(ttl time.Duration) (*Renderer, error) {
	if ttl <= 0 {
		ttl = identity.DefaultOTPTTL
	}

	r := &Renderer{
		templates: make(map[identity.OTPPurpose]*pongo2.Template, len(templateFiles)),
		ttl:       ttl,
	}
	for purpose, file := range templateFiles {
		raw, err := templatesFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read template %s: %w", file, err)
		}
		tpl, err := pongo2.FromString(string(raw))
		if err != nil {
			return nil, fmt.Errorf("compile template %s: %w", file, err)
		}
		r.templates[purpose] = tpl
	}
	return r, nil
}

// Render builds the message for dest
func (r *Renderer) Render(dest identity.Destination, code string, purpose identity.OTPPurpose) (Message, error) {
	tpl, ok := r.templates[purpose]
	if !ok {
		return Message{}, fmt.Errorf("no template for purpose %q", purpose)
	}

	body, err := tpl.Execute(pongo2.Context{
		"name":        dest.Name,
		"code":        code,
		"ttl_minutes": int(r.ttl.Minutes()),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render %s: %w", purpose, err)
	}

	return Message{
		To:      dest.Email,
		Subject: subjects[purpose],
		Body:    body,
	}, nil
}
