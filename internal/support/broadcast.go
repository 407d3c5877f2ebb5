package support

import (
	"context"
	"strings"

	"helpdesk/backend/internal/dashboard"
	"helpdesk/backend/internal/models"

	errors "github.com/Laisky/errors/v2"
	"github.com/lib/pq"
	"golang.org/x/time/rate"
)

// Broadcast sends text to known users, at most Options.Broadcast.Limit of them
// (0 means all). Every recipient is re-checked against the membership gate right
// before sending. Delivery is paced by a token bucket. The tally is stored even
// when ctx is cancelled part way.
func (s *Service) Broadcast(ctx context.Context, staffID int64, text string) (*models.Broadcast, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.Wrap(ErrEmptyText, "broadcast")
	}

	ids, err := s.store.ListUserIDs(ctx, s.opts.Broadcast.Limit)
	if err != nil {
		return nil, err
	}

	b := &models.Broadcast{
		StaffID:       staffID,
		Text:          text,
		StartedAt:     s.opts.Now().UTC(),
		FailedChatIDs: pq.Int64Array{},
	}
	limiter := rate.NewLimiter(rate.Limit(s.opts.Broadcast.Rate), s.opts.Broadcast.Burst)
	msg := s.format.BroadcastMessage(text)
	s.log.Info("broadcast started", "staff_id", staffID, "recipients", len(ids))

	var runErr error
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			runErr = errors.Wrap(err, "broadcast interrupted")
			break
		}
		if !s.gate.IsEligible(ctx, id) {
			b.Skipped++
			s.countBroadcast("skipped")
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			runErr = errors.Wrap(err, "broadcast interrupted")
			break
		}
		if err := s.notifier.Notify(ctx, id, msg); err != nil {
			s.log.Debug("broadcast delivery failed", "user_id", id, "error", err)
			b.Failed++
			b.FailedChatIDs = append(b.FailedChatIDs, id)
			s.countBroadcast("failed")
			continue
		}
		b.Sent++
		s.countBroadcast("sent")
	}
	b.FinishedAt = s.opts.Now().UTC()

	if err := s.store.SaveBroadcast(context.WithoutCancel(ctx), b); err != nil {
		s.log.Warn("broadcast audit not saved", "staff_id", staffID, "error", err)
	}
	s.log.Info("broadcast finished", "staff_id", staffID, "sent", b.Sent, "failed", b.Failed, "skipped", b.Skipped)
	s.events.Publish(dashboard.Event{
		Type:    dashboard.EventBroadcastDone,
		StaffID: staffID,
		Data: map[string]interface{}{
			"sent":    b.Sent,
			"failed":  b.Failed,
			"skipped": b.Skipped,
		},
	})
	return b, runErr
}

func (s *Service) countBroadcast(result string) {
	if s.metrics != nil {
		s.metrics.BroadcastSends.WithLabelValues(result).Inc()
	}
}
