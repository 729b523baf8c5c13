package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/roach88/dendrite/internal/metrics"
)

const slackPermalinkURL = "https://slack.com/api/chat.getPermalink"

// PermalinkResolver resolves a message permalink through the chat
// platform's API, degrading to a deterministic locally built URL on any
// failure. Resolution never blocks ingestion beyond the configured timeout
// and never surfaces an error.
type PermalinkResolver struct {
	token   string
	baseURL string
	client  *http.Client
}

// NewPermalinkResolver creates a resolver with the given bearer token and
// per-lookup timeout.
func NewPermalinkResolver(token string, timeout time.Duration) *PermalinkResolver {
	return &PermalinkResolver{
		token:   token,
		baseURL: slackPermalinkURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve returns the permalink for a message, falling back to
// FallbackPermalink on any network, timeout, status, or decode failure.
func (r *PermalinkResolver) Resolve(ctx context.Context, channel, ts string) string {
	link, err := r.lookup(ctx, channel, ts)
	if err != nil {
		slog.Debug("permalink lookup failed, using fallback",
			"channel", channel, "ts", ts, "error", err)
		metrics.PermalinkFallbacks.Inc()
		return FallbackPermalink(channel, ts)
	}
	return link
}

func (r *PermalinkResolver) lookup(ctx context.Context, channel, ts string) (string, error) {
	query := url.Values{}
	query.Set("channel", channel)
	query.Set("message_ts", ts)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("build permalink request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+r.token)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("permalink request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("permalink request: status %d", resp.StatusCode)
	}

	var body struct {
		OK        bool   `json:"ok"`
		Permalink string `json:"permalink"`
		Error     string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode permalink response: %w", err)
	}
	if !body.OK || body.Permalink == "" {
		return "", fmt.Errorf("permalink api error: %s", body.Error)
	}
	return body.Permalink, nil
}

// FallbackPermalink builds the deterministic archive URL from channel id
// and timestamp, matching Slack's archive link shape.
func FallbackPermalink(channel, ts string) string {
	return fmt.Sprintf("https://slack.com/archives/%s/p%s", channel, strings.ReplaceAll(ts, ".", ""))
}
