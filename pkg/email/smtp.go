package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"match-service/config"
)

type SMTPClient struct {
	config *config.SMTPConfig
}

func NewSMTPClient(cfg *config.SMTPConfig) *SMTPClient {
	return &SMTPClient{
		config: cfg,
	}
}

type EmailData struct {
	To      string
	Subject string
	Body    string
}

func (c *SMTPClient) SendEmail(data EmailData) error {
	var auth smtp.Auth
	if c.config.Username != "" || c.config.Password != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	msg := c.buildMessage(data)

	addr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	err := smtp.SendMail(addr, auth, c.config.From, []string{data.To}, []byte(msg))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

func (c *SMTPClient) buildMessage(data EmailData) string {
	msg := fmt.Sprintf("From: %s\r\n", c.config.From)
	msg += fmt.Sprintf("To: %s\r\n", data.To)
	msg += fmt.Sprintf("Subject: %s\r\n", data.Subject)
	msg += "MIME-Version: 1.0\r\n"
	msg += "Content-Type: text/html; charset=UTF-8\r\n"
	msg += "\r\n"
	msg += data.Body

	return msg
}

func (c *SMTPClient) SendResumeLink(email, institutionName, resumeURL string) error {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #007bff; color: #fff; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>{{.InstitutionName}} - Pick Up Where You Left Off</h2>
        <p>Your Program Match session is saved. Use the link below to resume at any time within the next 7 days.</p>
        <a class="button" href="{{.ResumeURL}}">Resume My Program Match</a>
        <p>Or copy this link into your browser:</p>
        <p>{{.ResumeURL}}</p>
        <div class="footer">
            <p>If you didn't start a Program Match quiz, please ignore this email.</p>
        </div>
    </div>
</body>
</html>
`

	t, err := template.New("resume_link").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var body bytes.Buffer
	data := map[string]string{
		"InstitutionName": institutionName,
		"ResumeURL":       resumeURL,
	}
	if err := t.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return c.SendEmail(EmailData{
		To:      email,
		Subject: fmt.Sprintf("%s - Resume your Program Match", institutionName),
		Body:    body.String(),
	})
}

func (c *SMTPClient) SendOutcomeReady(email, institutionName, resumeURL string) error {
	tmpl := `
<!DOCTYPE html>
<html>
<head>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .highlight { color: #007bff; font-weight: bold; }
        .footer { margin-top: 30px; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="container">
        <h2>{{.InstitutionName}} - Your Program Matches Are Ready</h2>
        <p>We've matched you with programs based on your answers. View your ranked results any time:</p>
        <p><a href="{{.ResumeURL}}">{{.ResumeURL}}</a></p>
        <div class="footer">
            <p>This is an automated message from {{.InstitutionName}}.</p>
        </div>
    </div>
</body>
</html>
`

	t, err := template.New("outcome_ready").Parse(tmpl)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	var body bytes.Buffer
	data := map[string]string{
		"InstitutionName": institutionName,
		"ResumeURL":       resumeURL,
	}
	if err := t.Execute(&body, data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	return c.SendEmail(EmailData{
		To:      email,
		Subject: fmt.Sprintf("%s - Your Program Matches", institutionName),
		Body:    body.String(),
	})
}
