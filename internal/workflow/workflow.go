package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"

	"lino-backend/internal/ai"
	"lino-backend/internal/config"
	"lino-backend/internal/models"
	"lino-backend/internal/notifications"
)

// Terminal, user-visible failures. Each aborts the submission with no
// partial state. Audio and notification failures are never surfaced here.
var (
	ErrSenderNotFound      = errors.New("sender not found")
	ErrTeamNotFound        = errors.New("receiver does not belong to any team")
	ErrReceiverNotFound    = errors.New("receiver not found")
	ErrSummarizationFailed = errors.New("summarization failed")
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "feedback",
		Name:      "submissions_total",
		Help:      "Feedback submissions by outcome",
	}, []string{"outcome"})

	swallowedFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "feedback",
		Name:      "swallowed_failures_total",
		Help:      "Best-effort steps that failed without affecting the submission",
	}, []string{"step"})
)

const (
	summarizeTimeout = 30 * time.Second
	deliveryTimeout  = 15 * time.Second
)

// SubmitRequest carries one raw feedback submission.
type SubmitRequest struct {
	// Nil or empty means the sender opted out of attribution.
	SenderID   *string
	ReceiverID string
	RawMessage string
	// Summarized marks text accepted in the review flow. It is stored as-is
	// instead of going through the summarizer a second time.
	Summarized bool
}

// Controller orchestrates validation, summarization, persistence and
// delivery for one feedback submission.
type Controller struct {
	db          *gorm.DB
	summarizer  ai.Summarizer
	synthesizer ai.Synthesizer
	notifier    notifications.Notifier
	cfg         *config.Config
	logger      echo.Logger
}

func New(db *gorm.DB, cfg *config.Config, summarizer ai.Summarizer, synthesizer ai.Synthesizer, notifier notifications.Notifier, logger echo.Logger) *Controller {
	return &Controller{
		db:          db,
		summarizer:  summarizer,
		synthesizer: synthesizer,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

// Submit runs the full workflow: validate sender and receiver, summarize,
// persist, then best-effort audio rendering and leader notification.
// Once the record is persisted the caller always gets it back, regardless
// of delivery outcome.
func (c *Controller) Submit(ctx context.Context, req SubmitRequest) (*models.Feedback, error) {
	senderID := models.AnonymousSender
	if req.SenderID != nil && *req.SenderID != "" && *req.SenderID != models.AnonymousSender {
		sender, err := models.GetUserByID(c.db, *req.SenderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				submissionsTotal.WithLabelValues("sender_not_found").Inc()
				return nil, ErrSenderNotFound
			}
			return nil, err
		}
		senderID = sender.ID
	}

	team, err := models.GetTeamByMemberID(c.db, req.ReceiverID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			submissionsTotal.WithLabelValues("team_not_found").Inc()
			return nil, ErrTeamNotFound
		}
		return nil, err
	}

	leader, err := models.GetUserByID(c.db, team.LeaderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			submissionsTotal.WithLabelValues("receiver_not_found").Inc()
			return nil, ErrReceiverNotFound
		}
		return nil, err
	}

	message := req.RawMessage
	if !req.Summarized {
		summarizeCtx, cancel := context.WithTimeout(ctx, summarizeTimeout)
		summary, err := c.summarizer.Summarize(summarizeCtx, req.RawMessage)
		cancel()
		if err != nil {
			submissionsTotal.WithLabelValues("summarization_failed").Inc()
			return nil, fmt.Errorf("%w: %v", ErrSummarizationFailed, err)
		}
		message = summary
	}

	feedback := &models.Feedback{
		ReceiverUserID: leader.ID,
		SenderUserID:   senderID,
		Message:        message,
	}
	if err := c.db.Create(feedback).Error; err != nil {
		submissionsTotal.WithLabelValues("persistence_failed").Inc()
		return nil, fmt.Errorf("failed to create feedback: %w", err)
	}
	submissionsTotal.WithLabelValues("ok").Inc()

	// Everything past this point is best-effort. The record is durable and
	// is returned as success regardless of delivery outcome.
	audioPath := c.renderAudio(ctx, message)
	c.deliver(ctx, message, audioPath)
	if audioPath != "" {
		if err := os.Remove(audioPath); err != nil {
			c.logger.Warnf("Failed to remove audio artifact %s: %v", audioPath, err)
		}
	}

	return feedback, nil
}

// renderAudio synthesizes the summary to a transient file when voice
// delivery is enabled. Returns "" on any failure.
func (c *Controller) renderAudio(ctx context.Context, message string) string {
	if !c.cfg.VoiceDelivery || c.synthesizer == nil {
		return ""
	}

	synthCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	audio, err := c.synthesizer.Synthesize(synthCtx, message)
	if err != nil {
		swallowedFailures.WithLabelValues("synthesis").Inc()
		c.logger.Errorf("Audio synthesis failed: %v", err)
		return ""
	}

	f, err := os.CreateTemp("", "lino-summary-*.mp3")
	if err != nil {
		swallowedFailures.WithLabelValues("synthesis").Inc()
		c.logger.Errorf("Failed to create audio artifact: %v", err)
		return ""
	}
	defer f.Close()

	if _, err := f.Write(audio); err != nil {
		swallowedFailures.WithLabelValues("synthesis").Inc()
		c.logger.Errorf("Failed to write audio artifact: %v", err)
		os.Remove(f.Name())
		return ""
	}

	return f.Name()
}

func (c *Controller) deliver(ctx context.Context, message, audioPath string) {
	if c.notifier == nil {
		return
	}

	deliverCtx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	if err := c.notifier.DeliverSummary(deliverCtx, message, audioPath); err != nil {
		swallowedFailures.WithLabelValues("notification").Inc()
		c.logger.Errorf("Leader notification failed: %v", err)
		_ = notifications.SendTelegramNotification(
			fmt.Sprintf("Leader notification failed: %v", err), c.cfg)
	}
}
