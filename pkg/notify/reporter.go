package notify

import (
	"context"
	"strings"
	"time"

	"github.com/knpiano/knbatch/pkg/logger"
	"github.com/knpiano/knbatch/pkg/metrics"
	"github.com/knpiano/knbatch/pkg/models"
)

// MailConfigStore looks up per-job notification addresses
type MailConfigStore interface {
	// FindMailConfig returns nil when the job has no row of its own
	FindMailConfig(ctx context.Context, jobID string) (*models.MailConfig, error)
}

// Config controls when and to whom run reports are sent
type Config struct {
	From          string
	Maintainers   []string
	SendOnSuccess bool
	SendOnFailure bool

	// Environment tags subjects unless it equals ProductionEnvironment
	Environment           string
	ProductionEnvironment string
}

// Reporter turns finished runs into mails for maintainers and, when
// configured, the job's end users. Delivery problems are logged and counted,
// never returned.
type Reporter struct {
	cfg     Config
	sender  Sender
	store   MailConfigStore
	metrics metrics.Sink
	logger  *logger.Logger
	clock   func() time.Time
}

// NewReporter creates a reporter. store may be nil, in which case every job
// uses the defaults from cfg.
func NewReporter(cfg Config, sender Sender, store MailConfigStore, sink metrics.Sink, log *logger.Logger) *Reporter {
	if sink == nil {
		sink = metrics.NewNoopSink()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Reporter{
		cfg:     cfg,
		sender:  sender,
		store:   store,
		metrics: sink,
		logger:  log.WithComponent("reporter"),
		clock:   time.Now,
	}
}

// Report sends the notifications for one run
func (r *Reporter) Report(ctx context.Context, jobID, description string, success bool, logText string) {
	log := r.logger.With().Str("job_id", jobID).Bool("success", success).Logger()

	if !r.shouldSend(success) {
		log.Info().Str("action", "notification_skipped").Msg("Notification disabled for this outcome")
		r.metrics.Notification(metrics.ChannelMaintainer, metrics.NotificationSkipped)
		return
	}

	mc := r.mailConfig(ctx, jobID)
	now := r.clock()
	subj := subject(jobID, success, r.envTag())

	r.deliver(ctx, Notification{
		JobID:       jobID,
		Description: description,
		Success:     success,
		Channel:     metrics.ChannelMaintainer,
		From:        mc.From,
		To:          mc.Maintainers,
		Subject:     subj,
		Body:        body(jobID, description, success, r.environment(), logText, now),
	})

	if len(mc.Users) == 0 {
		return
	}

	userBody := mc.UserContent
	if strings.TrimSpace(userBody) == "" {
		userBody = body(jobID, description, success, r.environment(), logText, now)
	}
	r.deliver(ctx, Notification{
		JobID:       jobID,
		Description: description,
		Success:     success,
		Channel:     metrics.ChannelUser,
		From:        mc.From,
		To:          mc.Users,
		Subject:     subj,
		Body:        userBody,
	})
}

func (r *Reporter) shouldSend(success bool) bool {
	return (success && r.cfg.SendOnSuccess) || (!success && r.cfg.SendOnFailure)
}

// mailConfig merges the job's own row over the configured defaults
func (r *Reporter) mailConfig(ctx context.Context, jobID string) models.MailConfig {
	mc := models.MailConfig{
		JobID:       jobID,
		From:        r.cfg.From,
		Maintainers: r.cfg.Maintainers,
	}
	if r.store == nil {
		return mc
	}

	row, err := r.store.FindMailConfig(ctx, jobID)
	if err != nil {
		r.logger.Warn().
			Err(err).
			Str("job_id", jobID).
			Str("action", "mail_config_lookup_failed").
			Msg("Failed to load mail configuration, using defaults")
		return mc
	}
	if row == nil {
		return mc
	}

	if strings.TrimSpace(row.From) != "" {
		mc.From = row.From
	}
	if len(row.Maintainers) > 0 {
		mc.Maintainers = row.Maintainers
	}
	mc.Users = row.Users
	mc.UserContent = row.UserContent
	return mc
}

func (r *Reporter) deliver(ctx context.Context, n Notification) {
	log := r.logger.With().
		Str("job_id", n.JobID).
		Str("channel", n.Channel).
		Logger()

	if strings.TrimSpace(n.From) == "" || len(n.To) == 0 {
		log.Warn().
			Str("action", "notification_incomplete").
			Msg("Mail configuration incomplete, skipping notification")
		r.metrics.Notification(n.Channel, metrics.NotificationSkipped)
		return
	}
	if r.sender == nil {
		log.Warn().Str("action", "notification_no_sender").Msg("No mail sender configured, skipping notification")
		r.metrics.Notification(n.Channel, metrics.NotificationSkipped)
		return
	}

	if err := r.sender.Send(ctx, n); err != nil {
		log.Error().
			Err(err).
			Str("action", "notification_failed").
			Strs("recipients", n.To).
			Msg("Failed to send notification")
		r.metrics.Notification(n.Channel, metrics.NotificationFailed)
		return
	}

	log.Info().
		Str("action", "notification_sent").
		Strs("recipients", n.To).
		Str("subject", n.Subject).
		Msg("Notification sent")
	r.metrics.Notification(n.Channel, metrics.NotificationSent)
}

func (r *Reporter) envTag() string {
	env := strings.TrimSpace(r.cfg.Environment)
	prod := r.cfg.ProductionEnvironment
	if prod == "" {
		prod = "prod"
	}
	if env == "" || strings.EqualFold(env, prod) {
		return ""
	}
	return env
}

func (r *Reporter) environment() string {
	if r.cfg.Environment == "" {
		return "unknown"
	}
	return r.cfg.Environment
}

// NopReporter is used when mail is disabled
type NopReporter struct {
	logger *logger.Logger
}

// NewNopReporter creates a reporter that only logs
func NewNopReporter(log *logger.Logger) *NopReporter {
	if log == nil {
		log = logger.Nop()
	}
	return &NopReporter{logger: log.WithComponent("reporter")}
}

func (r *NopReporter) Report(_ context.Context, jobID, _ string, success bool, _ string) {
	r.logger.Debug().
		Str("job_id", jobID).
		Bool("success", success).
		Str("action", "notification_disabled").
		Msg("Mail disabled, not sending notification")
}
