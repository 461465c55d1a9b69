package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"depthfeed/internal/model"

	"github.com/cenkalti/backoff/v4"
)

const snapshotTimeout = 10 * time.Second

// restSnapshot matches the shape of the Binance-style depth REST response.
type restSnapshot struct {
	LastUpdateID uint64     `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// RESTFetcher fetches the one-shot REST snapshot named in spec §4.2: GET
// {rest_url}?symbol={SYMBOL}&limit=1000, 10s timeout, up to 3 attempts
// (2 retries) with a constant 2s pause between them, cancellable via ctx.
type RESTFetcher struct {
	Client  *http.Client
	RESTURL string
	Symbol  string
}

// NewRESTFetcher builds a fetcher with a timeout-scoped http.Client.
func NewRESTFetcher(restURL, symbol string) *RESTFetcher {
	return &RESTFetcher{
		Client:  &http.Client{Timeout: snapshotTimeout},
		RESTURL: restURL,
		Symbol:  symbol,
	}
}

// FetchSnapshot implements the Manager's snapshot dependency. Retries are
// driven by a constant 2s backoff capped at 2 retries (3 attempts total),
// matching spec §4.2; cancellation of ctx aborts the in-flight attempt and
// the retry loop.
func (f *RESTFetcher) FetchSnapshot(ctx context.Context) (model.Snapshot, error) {
	var snap model.Snapshot

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(2*time.Second), 2), ctx)

	op := func() error {
		s, err := f.fetchOnce(ctx)
		if err != nil {
			return err
		}
		snap = s
		return nil
	}

	if err := backoff.Retry(op, policy); err != nil {
		return model.Snapshot{}, fmt.Errorf("sequence: snapshot fetch failed: %w", err)
	}
	return snap, nil
}

func (f *RESTFetcher) fetchOnce(ctx context.Context) (model.Snapshot, error) {
	u, err := url.Parse(f.RESTURL)
	if err != nil {
		return model.Snapshot{}, backoff.Permanent(err)
	}
	q := u.Query()
	q.Set("symbol", f.Symbol)
	q.Set("limit", "1000")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Snapshot{}, backoff.Permanent(err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return model.Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Snapshot{}, fmt.Errorf("sequence: snapshot fetch: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Snapshot{}, err
	}

	var raw restSnapshot
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Snapshot{}, fmt.Errorf("sequence: snapshot decode: %w", err)
	}
	if raw.LastUpdateID == 0 {
		return model.Snapshot{}, fmt.Errorf("sequence: snapshot shape invalid: missing lastUpdateId")
	}

	return model.Snapshot{
		LastUpdateID: raw.LastUpdateID,
		Bids:         raw.Bids,
		Asks:         raw.Asks,
	}, nil
}
