package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// eventPage is the body of GET /v1/events
type eventPage struct {
	Events  []Event `json:"events"`
	LastSeq uint64  `json:"last_seq"`
}

// Backfiller pulls missed events from the API event log
type Backfiller struct {
	baseURL  string
	client   *http.Client
	pageSize int
	maxWait  time.Duration
}

// NewBackfiller reads from the API at baseURL, e.g. http://localhost:8080
func NewBackfiller(baseURL string, client *http.Client) *Backfiller {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Backfiller{
		baseURL:  baseURL,
		client:   client,
		pageSize: MaxQueryLimit,
		maxWait:  time.Minute,
	}
}

func (b *Backfiller) fetch(ctx context.Context, after uint64) (*eventPage, error) {
	u, err := url.Parse(b.baseURL + "/v1/events")
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	q := u.Query()
	q.Set("after", strconv.FormatUint(after, 10))
	q.Set("limit", strconv.Itoa(b.pageSize))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("event log returned %s", resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("event log returned %s", resp.Status))
	}

	var page eventPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decode event page: %w", err))
	}
	return &page, nil
}

// Run applies every event after the indexer cursor and returns how many
// were applied. Transient HTTP failures are retried with backoff.
func (b *Backfiller) Run(ctx context.Context, ix *Indexer) (int, error) {
	total := 0
	for {
		last, err := ix.Store().LastSeq(ctx)
		if err != nil {
			return total, err
		}

		var page *eventPage
		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = b.maxWait
		err = backoff.Retry(func() error {
			var ferr error
			page, ferr = b.fetch(ctx, last)
			return ferr
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			return total, fmt.Errorf("backfill after %d: %w", last, err)
		}
		if len(page.Events) == 0 {
			return total, nil
		}
		if page.Events[0].Seq != last+1 {
			return total, fmt.Errorf("event log gap: have %d, next available %d", last, page.Events[0].Seq)
		}

		applied, err := ix.ApplyAll(ctx, page.Events)
		total += applied
		if err != nil {
			return total, err
		}
		if applied == 0 {
			return total, nil
		}
		ix.logger.Info("backfilled events", "from", page.Events[0].Seq, "to", page.Events[len(page.Events)-1].Seq)
	}
}
