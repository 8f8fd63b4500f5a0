package mailer

import "log/slog"

// LogMailer satisfies the Mailer interfaces of the user and project packages
// without delivering anything. Real delivery is handled outside this service.
type LogMailer struct {
	Logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{Logger: logger}
}

func (m *LogMailer) Send(to, subject, body string) error {
	m.Logger.Info("mail (not delivered)", "to", to, "subject", subject, "body", body)
	return nil
}
