package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	send   SendFunc
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, send: smtp.SendMail, logger: logger}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, email, jobID, videoName, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)
	msg := n.failureMessage(email, jobID, videoName, errorMsg)

	if err := n.send(addr, nil, n.from, []string{email}, []byte(msg)); err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", email),
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", email),
		zap.String("job_id", jobID),
	)
	return nil
}

func (n *SMTPNotifier) failureMessage(to, jobID, videoName, errorMsg string) string {
	subject := fmt.Sprintf("Human detection failed [Job %s]", jobID)
	body := strings.Join([]string{
		"Hello,",
		"",
		"We could not finish human detection for your video after all retry attempts.",
		"",
		"Job ID: " + jobID,
		"Video: " + videoName,
		"Error: " + errorMsg,
		"",
		"Please upload the video again or contact support.",
		"",
		"-- Human Detection Service",
	}, "\r\n")

	return fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", n.from, to, subject, body)
}
