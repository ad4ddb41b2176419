package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	mail "github.com/wneessen/go-mail"

	"github.com/knpiano/knbatch/pkg/logger"
)

// SMTPConfig holds the mail server connection settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// TLS is one of "mandatory", "opportunistic" or "none"
	TLS     string
	Timeout time.Duration

	// The breaker opens after FailureThreshold consecutive failures and
	// half-opens again after OpenTimeout
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// SMTPSender sends notifications over SMTP. A circuit breaker stops a dead
// mail server from adding a connect timeout to every run.
type SMTPSender struct {
	breaker *gobreaker.CircuitBreaker
	send    func(ctx context.Context, msg *mail.Msg) error
	logger  *logger.Logger
}

// NewSMTPSender creates a sender for cfg
func NewSMTPSender(cfg SMTPConfig, log *logger.Logger) (*SMTPSender, error) {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithTLSPolicy(tlsPolicy(cfg.TLS)),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, mail.WithTimeout(cfg.Timeout))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	s := &SMTPSender{
		send: func(ctx context.Context, msg *mail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
		logger: log.WithComponent("smtp"),
	}
	s.breaker = newBreaker(cfg, s.logger)
	return s, nil
}

func newBreaker(cfg SMTPConfig, log *logger.Logger) *gobreaker.CircuitBreaker {
	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 3
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = time.Minute
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Mail circuit breaker changed state")
		},
	})
}

// Send delivers n
func (s *SMTPSender) Send(ctx context.Context, n Notification) error {
	msg, err := buildMessage(n)
	if err != nil {
		return err
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.send(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to send mail for job %s: %w", n.JobID, err)
	}
	return nil
}

func buildMessage(n Notification) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(n.From); err != nil {
		return nil, fmt.Errorf("invalid sender address %q: %w", n.From, err)
	}

	to := make([]string, 0, len(n.To))
	for _, addr := range n.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, addr)
		}
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("invalid recipient list %v: %w", to, err)
	}

	msg.Subject(n.Subject)
	msg.SetBodyString(mail.TypeTextPlain, n.Body)
	return msg, nil
}

func tlsPolicy(s string) mail.TLSPolicy {
	switch strings.ToLower(s) {
	case "mandatory":
		return mail.TLSMandatory
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSOpportunistic
	}
}
