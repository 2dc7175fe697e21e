package purge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/archiveworks/mailarch/config"
	"github.com/archiveworks/mailarch/internal/logger"
)

// Purger evicts stale pages from the frontend HTTP cache after new
// mail lands. Purging is best effort: a cache serving stale pages
// for a while beats a failed load, so errors are logged and
// swallowed.
type Purger struct {
	cfg    *config.PurgeConfig
	log    logger.Logger
	client *http.Client
}

func NewPurger(cfg *config.PurgeConfig, log logger.Logger) *Purger {
	return &Purger{
		cfg:    cfg,
		log:    log,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Purge sends the accumulated keys as ban expressions in a single
// form POST. Month pages are matched on the x-archive-lm response
// marker, thread pages on x-archive-thread. With no configured
// endpoint the call is a no-op.
func (p *Purger) Purge(ctx context.Context, set *Set) {
	if p.cfg.URL == "" || set.Empty() {
		return
	}

	var exprs []string
	for _, lm := range set.ListMonths() {
		exprs = append(exprs, fmt.Sprintf("obj.http.x-archive-lm ~ :%d/%d/%d:", lm.ListID, lm.Year, lm.Month))
	}
	for _, t := range set.Threads() {
		exprs = append(exprs, fmt.Sprintf("obj.http.x-archive-thread ~ :%d:", t))
	}

	form := url.Values{}
	form.Set("n", strconv.Itoa(len(exprs)))
	for i, e := range exprs {
		form.Set(fmt.Sprintf("p%d", i), e)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.URL, strings.NewReader(form.Encode()))
	if err != nil {
		p.log.Errorf("error building purge request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if p.cfg.HostHeader != "" {
		req.Host = p.cfg.HostHeader
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Errorf("error purging %d keys: %v", len(exprs), err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		p.log.Errorf("error purging %d keys: status %d", len(exprs), resp.StatusCode)
		return
	}
	p.log.Debugf("purged %d cache keys", len(exprs))
}
