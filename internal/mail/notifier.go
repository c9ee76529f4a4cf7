package mail

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"

	"go.uber.org/zap"

	"github.com/ovaphlow/splashops/service-core/pkg/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Notifier renders account emails and hands them to a Sender.
type Notifier struct {
	sender  Sender
	appName string
	logger  *zap.SugaredLogger
}

func NewNotifier(sender Sender, appName string, logger *zap.SugaredLogger) *Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Notifier{sender: sender, appName: appName, logger: logger}
}

// FromConfig picks the SMTP sender when configured, otherwise a sender that
// only logs.
func FromConfig(cfg Config, logger *zap.SugaredLogger) (*Notifier, error) {
	if !cfg.Enabled() {
		return NewNotifier(logSender{logger: logger}, cfg.AppName, logger), nil
	}
	s, err := NewSMTPSender(cfg)
	if err != nil {
		return nil, err
	}
	return NewNotifier(s, cfg.AppName, logger), nil
}

type templateData struct {
	AppName string
	Name    string
	Code    string
	Token   string
	Minutes int
	Hours   int
}

func (n *Notifier) SendVerificationCode(ctx context.Context, to, name, code string) error {
	return n.send(ctx, "verification", to, "Verify your email address", templateData{Name: name, Code: code, Minutes: 15})
}

func (n *Notifier) SendPasswordReset(ctx context.Context, to, name, token string) error {
	return n.send(ctx, "reset", to, "Reset your password", templateData{Name: name, Token: token, Hours: 24})
}

func (n *Notifier) SendWelcome(ctx context.Context, to, name string) error {
	return n.send(ctx, "welcome", to, "Welcome to "+n.appName, templateData{Name: name})
}

func (n *Notifier) send(ctx context.Context, kind, to, subject string, data templateData) error {
	data.AppName = n.appName
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, kind+".html", data); err != nil {
		metrics.EmailDeliveries.WithLabelValues(kind, "render_error").Inc()
		return fmt.Errorf("render %s email: %w", kind, err)
	}
	if err := n.sender.Send(ctx, to, subject, buf.String()); err != nil {
		metrics.EmailDeliveries.WithLabelValues(kind, "error").Inc()
		return fmt.Errorf("send %s email: %w", kind, err)
	}
	metrics.EmailDeliveries.WithLabelValues(kind, "sent").Inc()
	n.logger.Debugw("email sent", "kind", kind, "to", to)
	return nil
}
