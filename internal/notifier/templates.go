package notifier

import (
	"bytes"
	"embed"
	htmltemplate "html/template"
	"text/template"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

//go:embed templates/*
var templateFS embed.FS

// Templates holds parsed email templates.
type Templates struct {
	html  *htmltemplate.Template
	plain *template.Template
}

// TemplateData contains data for template rendering.
type TemplateData struct {
	Recipient string
	Message   string
	Type      string
	Color     string
	Timestamp string
}

// LoadTemplates loads embedded email templates.
func LoadTemplates() (*Templates, error) {
	htmlTmpl, err := htmltemplate.ParseFS(templateFS, "templates/notification.html")
	if err != nil {
		return nil, err
	}

	plainTmpl, err := template.ParseFS(templateFS, "templates/notification.txt")
	if err != nil {
		return nil, err
	}

	return &Templates{
		html:  htmlTmpl,
		plain: plainTmpl,
	}, nil
}

// RenderHTML renders the HTML email body.
func (t *Templates) RenderHTML(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.html.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderPlain renders the plain text email body.
func (t *Templates) RenderPlain(data *TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := t.plain.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// typeColor returns the accent color for a notification type.
func typeColor(t models.NotificationType) string {
	switch t {
	case models.NotificationSuccess:
		return "#388e3c" // green
	case models.NotificationInviteDeclined:
		return "#d32f2f" // red
	case models.NotificationInvite:
		return "#1976d2" // blue
	default:
		return "#757575" // gray
	}
}

// NotificationToTemplateData converts a notification to template data.
func NotificationToTemplateData(n *models.Notification, recipient string) TemplateData {
	return TemplateData{
		Recipient: recipient,
		Message:   n.Message,
		Type:      string(n.Type),
		Color:     typeColor(n.Type),
		Timestamp: n.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST"),
	}
}
