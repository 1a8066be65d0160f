// Package email tells the uploader when a comparison has permanently
// failed. Plain SMTP, no auth: the relay is an internal mailhog or
// equivalent.
package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	addr   string
	from   string
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{
		addr:   fmt.Sprintf("%s:%d", host, port),
		from:   from,
		logger: logger,
	}
}

func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, runID, videoKey, errorMsg string) error {
	msg := buildFailureMail(n.from, userEmail, runID, videoKey, errorMsg)

	if err := smtp.SendMail(n.addr, nil, n.from, []string{userEmail}, msg); err != nil {
		n.logger.Error("failure notification not delivered",
			zap.String("to", userEmail),
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification sent",
		zap.String("to", userEmail),
		zap.String("run_id", runID),
	)
	return nil
}

func buildFailureMail(from, to, runID, videoKey, errorMsg string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: MotionLab - Movement Comparison Failed [Run %s]\r\n", runID)
	b.WriteString("\r\n")
	b.WriteString("Hello,\r\n\r\n")
	b.WriteString("Your movement comparison could not be completed.\r\n\r\n")
	fmt.Fprintf(&b, "Run ID: %s\r\n", runID)
	fmt.Fprintf(&b, "Video: %s\r\n", videoKey)
	fmt.Fprintf(&b, "Error: %s\r\n\r\n", errorMsg)
	b.WriteString("Please check the video and try uploading it again, or contact support.\r\n\r\n")
	b.WriteString("-- MotionLab Movement Analyzer\r\n")
	return []byte(b.String())
}
