package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Probe makes fast plain-HTTP fetches through Colly. Pages the probe
// serves clean never consume a browser session; anything the
// classifier flags, or that lacks its readiness content, is promoted
// to the browser path by the pool.
type Probe struct {
	base    *colly.Collector
	timeout time.Duration
}

// NewProbe builds a probe fetcher.
func NewProbe(userAgent string, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := colly.NewCollector(
		colly.UserAgent(userAgent),
		colly.AllowURLRevisit(),
	)
	c.IgnoreRobotsTxt = true
	return &Probe{
		base:    c,
		timeout: timeout,
	}
}

// Fetch executes a single HTTP GET and returns the status and body.
func (p *Probe) Fetch(ctx context.Context, url string) (int, []byte, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	collector := p.base.Clone()
	collector.SetRequestTimeout(p.timeout)

	var (
		status   int
		body     []byte
		fetchErr error
	)
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := collector.Visit(url); err != nil {
		return status, nil, fmt.Errorf("probe visit %s: %w", url, err)
	}
	if fetchErr != nil {
		return status, nil, fmt.Errorf("probe fetch %s: %w", url, fetchErr)
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, body, nil
}
