package handler

import (
	"context"
	"net/http"
	"time"

	"helpdesk/backend/internal/logger"

	errors "github.com/Laisky/errors/v2"
)

// Pinger periodically requests URL so that free hosting tiers do not put the
// process to sleep.
type Pinger struct {
	URL      string
	Interval time.Duration
	client   *http.Client
	log      *logger.Logger
}

func NewPinger(url string, interval time.Duration, log *logger.Logger) *Pinger {
	return &Pinger{
		URL:      url,
		Interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
		log:      log.With("service", "keep_alive"),
	}
}

// Run pings immediately and then every Interval until ctx is done.
// It returns at once when no URL is configured.
func (p *Pinger) Run(ctx context.Context) {
	if p.URL == "" {
		p.log.Warn("KEEP_ALIVE_URL is not set, keep-alive disabled")
		return
	}
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for {
		if code, err := p.Ping(ctx); err != nil {
			p.log.Error("keep-alive ping failed", "url", p.URL, "error", err)
		} else {
			p.log.Debug("keep-alive ping", "url", p.URL, "status", code)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Ping sends one GET request and returns the status code.
func (p *Pinger) Ping(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return 0, errors.Wrap(err, "build keep-alive request")
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "get %s", p.URL)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
