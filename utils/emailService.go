package utils

import (
	"context"
	"fmt"
	"html"

	"rewardsvault/logger"
	"rewardsvault/models"
	"rewardsvault/services/withdrawal"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MailSender is the part of the SendGrid client the notifier needs.
type MailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// EmailNotifier sends withdrawal decision emails through SendGrid.
type EmailNotifier struct {
	db     *gorm.DB
	sender MailSender
	from   *mail.Email
}

// NewEmailNotifier returns nil when apiKey is empty, which disables email.
func NewEmailNotifier(db *gorm.DB, apiKey, fromAddress string) *EmailNotifier {
	if apiKey == "" {
		logger.Log.Info("SENDGRID_API_KEY not set; withdrawal emails disabled")
		return nil
	}
	return NewEmailNotifierWithSender(db, sendgrid.NewSendClient(apiKey), fromAddress)
}

func NewEmailNotifierWithSender(db *gorm.DB, sender MailSender, fromAddress string) *EmailNotifier {
	return &EmailNotifier{db: db, sender: sender, from: mail.NewEmail("Rewards Vault", fromAddress)}
}

// WithdrawalDecided implements withdrawal.Notifier.
func (n *EmailNotifier) WithdrawalDecided(ctx context.Context, req *models.WithdrawalRequest, action withdrawal.Action) error {
	if n == nil {
		return nil
	}

	var user models.User
	if err := n.db.WithContext(ctx).Select("id", "name", "email").First(&user, req.UserID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", req.UserID, err)
	}
	if user.Email == "" {
		return nil
	}

	subject, title, body := withdrawalEmail(user.Name, req, action)
	msg := mail.NewSingleEmail(n.from, subject, mail.NewEmail(user.Name, user.Email), title, getEmailTemplate(title, body))

	resp, err := n.sender.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d: %s", resp.StatusCode, resp.Body)
	}
	logger.Log.Debug("withdrawal email sent", zap.Uint("request_id", req.ID), zap.String("action", string(action)))
	return nil
}

func withdrawalEmail(name string, req *models.WithdrawalRequest, action withdrawal.Action) (subject, title, body string) {
	amount := req.Amount.StringFixed(2)
	name = html.EscapeString(name)

	switch action {
	case withdrawal.ActionApprove:
		return "Withdrawal Approved", "Withdrawal Approved", fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your withdrawal of <strong>%s %s</strong> has been approved and will be paid out shortly.</p>
	`, name, req.Currency, amount)

	case withdrawal.ActionReject:
		reason := "No reason given"
		if req.RejectionReason != nil && *req.RejectionReason != "" {
			reason = *req.RejectionReason
		}
		return "Withdrawal Rejected", "Withdrawal Rejected", fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your withdrawal of <strong>%s %s</strong> was rejected. The amount has been returned to your wallet.</p>
		<div class="info-box">Reason: %s</div>
	`, name, req.Currency, amount, html.EscapeString(reason))

	case withdrawal.ActionComplete:
		return "Withdrawal Paid", "Withdrawal Completed", fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your withdrawal of <strong>%s %s</strong> has been paid to your account.</p>
	`, name, req.Currency, amount)

	case withdrawal.ActionFail:
		return "Withdrawal Failed", "Withdrawal Failed", fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>We could not pay out your withdrawal of <strong>%s %s</strong>. The amount has been returned to your wallet.</p>
	`, name, req.Currency, amount)
	}

	return "Withdrawal Update", "Withdrawal Update", fmt.Sprintf(`
		<p>Dear %s,</p>
		<p>Your withdrawal of <strong>%s %s</strong> is now <strong>%s</strong>.</p>
	`, name, req.Currency, amount, req.Status)
}

func getEmailTemplate(title string, bodyContent string) string {
	return fmt.Sprintf(`
	<!DOCTYPE html>
	<html>
	<head>
		<style>
			body { font-family: 'Helvetica Neue', Helvetica, Arial, sans-serif; background-color: #F6F6F6; margin: 0; padding: 0; }
			.container { max-width: 600px; margin: 40px auto; background: #FFFFFF; border-radius: 8px; overflow: hidden; }
			.header { background-color: #00004D; padding: 30px; text-align: center; }
			.header h1 { color: #FFFFFF; margin: 0; font-size: 24px; letter-spacing: 1px; }
			.content { padding: 40px 30px; color: #00004D; line-height: 1.6; }
			.footer { background-color: #F6F6F6; padding: 20px; text-align: center; font-size: 12px; color: #666666; }
			.info-box { background: #E8F0FE; padding: 15px; border-radius: 4px; border-left: 4px solid #d7b56d; margin: 20px 0; }
		</style>
	</head>
	<body>
		<div class="container">
			<div class="header"><h1>REWARDS VAULT</h1></div>
			<div class="content">
				<h2>%s</h2>
				%s
			</div>
			<div class="footer">This is an automated message about your wallet.</div>
		</div>
	</body>
	</html>
	`, title, bodyContent)
}
