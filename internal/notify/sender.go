package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/maruonline/leadgen/pkg/resend"
)

// SenderConfig selects and configures the delivery provider.
type SenderConfig struct {
	ResendAPIKey string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPass     string
	FromAddress  string
	FromName     string
}

// NewSender picks Resend when an API key is present, then SMTP when
// credentials are present, and simulates delivery otherwise.
func NewSender(cfg SenderConfig) Sender {
	if cfg.FromName == "" {
		cfg.FromName = "Maru Online"
	}
	switch {
	case cfg.ResendAPIKey != "":
		from := cfg.FromAddress
		if from == "" {
			from = "noreply@maruonline.com"
		}
		return &ResendSender{client: resend.NewClient(cfg.ResendAPIKey), from: cfg.FromName + " <" + from + ">"}
	case cfg.SMTPUser != "" && cfg.SMTPPass != "":
		return NewSMTPSender(cfg)
	default:
		zap.L().Warn("notify: no email provider configured, deliveries are simulated")
		return SimulatedSender{}
	}
}

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client resend.Client
	from   string
}

// NewResendSender wraps an existing Resend client.
func NewResendSender(client resend.Client, from string) *ResendSender {
	return &ResendSender{client: client, from: from}
}

func (s *ResendSender) Name() string { return "resend" }

func (s *ResendSender) Send(ctx context.Context, msg Message) error {
	_, err := s.client.Send(ctx, resend.SendRequest{
		From:    s.from,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		ReplyTo: msg.ReplyTo,
	})
	return err
}

// SMTPSender delivers through an SMTP relay.
type SMTPSender struct {
	host     string
	port     int
	user     string
	pass     string
	from     string
	fromName string
	timeout  time.Duration
}

// NewSMTPSender creates an SMTPSender. Port 465 uses implicit TLS, any other
// port upgrades with STARTTLS when offered.
func NewSMTPSender(cfg SenderConfig) *SMTPSender {
	s := &SMTPSender{
		host:     cfg.SMTPHost,
		port:     cfg.SMTPPort,
		user:     cfg.SMTPUser,
		pass:     cfg.SMTPPass,
		from:     cfg.FromAddress,
		fromName: cfg.FromName,
		timeout:  15 * time.Second,
	}
	if s.host == "" {
		s.host = "smtp.gmail.com"
	}
	if s.port == 0 {
		s.port = 587
	}
	if s.from == "" {
		s.from = s.user
	}
	return s
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) message(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.from); err != nil {
		return nil, eris.Wrap(err, "smtp: from address")
	}
	if err := m.To(msg.To...); err != nil {
		return nil, eris.Wrap(err, "smtp: to address")
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, eris.Wrap(err, "smtp: reply-to address")
		}
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.message(msg)
	if err != nil {
		return err
	}

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.user),
		mail.WithPassword(s.pass),
		mail.WithTimeout(s.timeout),
	}
	if s.port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	client, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return eris.Wrap(err, "smtp: create client")
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return eris.Wrapf(err, "smtp: send via %s", s.host)
	}
	return nil
}

// SimulatedSender accepts every message without delivering it. It keeps
// local development working when no provider is configured.
type SimulatedSender struct{}

func (SimulatedSender) Name() string { return "simulated" }

func (SimulatedSender) Send(_ context.Context, msg Message) error {
	zap.L().Warn("notify: email provider not configured, send simulated",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return nil
}
