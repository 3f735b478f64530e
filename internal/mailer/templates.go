package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"text/template"

	"github.com/shaiso/quizflow/internal/domain"
)

// ErrUnknownTemplate — у письма неизвестный template_id.
var ErrUnknownTemplate = errors.New("unknown email template")

// Email — готовое к отправке письмо.
type Email struct {
	To      string
	Subject string
	Body    string
}

var bodies = template.Must(template.New("email").Option("missingkey=zero").Parse(`
{{- define "greeting"}}Hello{{with .recipient_name}}, {{.}}{{end}}!{{end}}

{{- define "quiz-published"}}{{template "greeting" .}}

A new quiz "{{.quiz_title}}" has been published.
{{with .available_from}}It opens {{.}}.{{end}}
{{end}}

{{- define "quiz-started"}}{{template "greeting" .}}

Quiz "{{.quiz_title}}" is now open.
{{with .available_to}}Submit your answers before {{.}}.{{end}}
{{end}}

{{- define "quiz-ended"}}{{template "greeting" .}}

Quiz "{{.quiz_title}}" has ended and no longer accepts submissions.
{{end}}

{{- define "quiz-results-released"}}{{template "greeting" .}}

Results for quiz "{{.quiz_title}}" are now available.
{{end}}`))

// Render собирает письмо по шаблону сообщения.
func Render(m domain.EmailMessage) (Email, error) {
	tmpl := bodies.Lookup(m.TemplateID)
	if tmpl == nil || m.TemplateID == "greeting" {
		return Email{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, m.TemplateID)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, m.Variables); err != nil {
		return Email{}, fmt.Errorf("render %s: %w", m.TemplateID, err)
	}

	subject := m.Subject
	if subject == "" {
		subject = "quizflow: " + m.Variables["quiz_title"]
	}
	return Email{To: m.To, Subject: subject, Body: buf.String()}, nil
}
