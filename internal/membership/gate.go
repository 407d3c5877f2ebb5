// Package membership decides whether a user may use the bot: they must belong to
// every required channel. The check fails closed.
package membership

import (
	"context"

	"helpdesk/backend/internal/logger"
	"helpdesk/backend/internal/metrics"
)

// Directory looks up a user's status in a channel ("member", "left", "kicked", ...).
type Directory interface {
	MemberStatus(ctx context.Context, channel string, userID int64) (string, error)
}

// Checker is what the rest of the bot depends on.
type Checker interface {
	IsEligible(ctx context.Context, userID int64) bool
}

type Gate struct {
	dir      Directory
	ownerID  int64
	channels []string
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// NewGate builds a gate over channels, checked in the given order. m may be nil.
func NewGate(dir Directory, ownerID int64, channels []string, log *logger.Logger, m *metrics.Metrics) *Gate {
	return &Gate{
		dir:      dir,
		ownerID:  ownerID,
		channels: append([]string(nil), channels...),
		log:      log.With("service", "membership"),
		metrics:  m,
	}
}

func (g *Gate) Channels() []string {
	return append([]string(nil), g.channels...)
}

// IsEligible never queries the directory for the owner. For everyone else the first
// channel that is not joined, or that cannot be checked, decides the answer.
func (g *Gate) IsEligible(ctx context.Context, userID int64) bool {
	if userID == g.ownerID {
		return true
	}
	for _, ch := range g.channels {
		status, err := g.dir.MemberStatus(ctx, ch, userID)
		if err != nil {
			g.log.Warn("membership check failed", "user_id", userID, "channel", ch, "error", err)
			g.count("error")
			return false
		}
		if !isMemberStatus(status) {
			g.log.Debug("user is not a member", "user_id", userID, "channel", ch, "status", status)
			g.count("not_member")
			return false
		}
	}
	g.count("eligible")
	return true
}

func (g *Gate) count(outcome string) {
	if g.metrics != nil {
		g.metrics.GateChecks.WithLabelValues(outcome).Inc()
	}
}

func isMemberStatus(status string) bool {
	switch status {
	case "member", "administrator", "creator":
		return true
	}
	return false
}
