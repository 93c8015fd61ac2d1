// Package worker processes background jobs from the Redis queue.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pulse-live/backend/internal/identity"
	"github.com/pulse-live/backend/pkg/mailer"
	"github.com/pulse-live/backend/pkg/queue"
)

// SummaryProcessor processes session summary jobs: resolve host emails via
// the identity service and send a wrap-up email per host.
type SummaryProcessor struct {
	identity *identity.Client
	mailer   *mailer.Mailer
	queue    *queue.Queue
	logger   *zap.Logger
}

// NewSummaryProcessor creates a session summary processor.
func NewSummaryProcessor(ic *identity.Client, m *mailer.Mailer, q *queue.Queue, logger *zap.Logger) *SummaryProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SummaryProcessor{identity: ic, mailer: m, queue: q, logger: logger}
}

// Process executes one session summary job.
func (p *SummaryProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionSummary {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.SessionSummaryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	if !p.mailer.Enabled() {
		p.logger.Info("smtp not configured, skipping summary",
			zap.String("activity_id", payload.ActivityID))
		return nil
	}
	if !p.identity.Enabled() {
		p.logger.Info("identity service not configured, skipping summary",
			zap.String("activity_id", payload.ActivityID))
		return nil
	}

	var recipients []string
	for _, hostID := range payload.HostIDs {
		u, err := p.identity.UserByID(ctx, hostID)
		if err != nil {
			p.logger.Warn("host lookup failed", zap.String("host_id", hostID), zap.Error(err))
			continue
		}
		if u.Email != "" {
			recipients = append(recipients, u.Email)
		}
	}
	if len(recipients) == 0 {
		p.logger.Warn("no resolvable host emails", zap.String("activity_id", payload.ActivityID))
		return nil
	}

	subject := fmt.Sprintf("Session summary: %s", payload.Title)
	body := summaryBody(payload)
	if err := p.mailer.Send(recipients, subject, body); err != nil {
		return fmt.Errorf("send summary: %w", err)
	}
	p.logger.Info("session summary sent",
		zap.String("activity_id", payload.ActivityID),
		zap.Int("recipients", len(recipients)))
	return nil
}

func summaryBody(payload queue.SessionSummaryPayload) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your live session %q has ended.\n\n", payload.Title)
	fmt.Fprintf(&b, "Ended at: %s\n", payload.StoppedAt.Format(time.RFC1123))
	fmt.Fprintf(&b, "Participants: %d\n", payload.TotalParticipants)
	fmt.Fprintf(&b, "Responses: %d\n", payload.TotalResponses)
	b.WriteString("\nThe full report is available from the session export.\n")
	return b.String()
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *SummaryProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("summary worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			p.logger.Warn("dequeue error", zap.Error(err))
			time.Sleep(queue.RetryBackoff)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			time.Sleep(queue.RetryBackoff)
			continue
		}
	}
}
