package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"match-service/internal/models"
	"match-service/pkg/email"
)

// Notifier drains the lead email queue and delivers resume-link and
// outcome-ready emails over SMTP.
type Notifier struct {
	smtpClient *email.SMTPClient
}

func NewNotifier(smtpClient *email.SMTPClient) *Notifier {
	return &Notifier{
		smtpClient: smtpClient,
	}
}

func (n *Notifier) HandleLeadEmail(ctx context.Context, data []byte) error {
	var msg models.LeadEmailMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal lead email message: %w", err)
	}

	log.Printf("Sending %s email to %s", msg.Kind, msg.Email)

	switch msg.Kind {
	case "resume_link":
		return n.smtpClient.SendResumeLink(msg.Email, msg.InstitutionName, msg.ResumeURL)
	case "outcome_ready":
		return n.smtpClient.SendOutcomeReady(msg.Email, msg.InstitutionName, msg.ResumeURL)
	default:
		return fmt.Errorf("unknown lead email kind %q", msg.Kind)
	}
}
