package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := "8f742231b10e8888abcd99yyyzzz85a5"
	now := time.Unix(1726000000, 0)
	ts := strconv.FormatInt(now.Unix(), 10)
	body := []byte(`{"type":"event_callback"}`)

	tests := []struct {
		name      string
		signature string
		timestamp string
		body      []byte
		now       time.Time
		wantErr   string
	}{
		{
			name:      "valid",
			signature: sign(secret, ts, body),
			timestamp: ts,
			body:      body,
			now:       now,
		},
		{
			name:      "slightly stale but inside window",
			signature: sign(secret, ts, body),
			timestamp: ts,
			body:      body,
			now:       now.Add(4 * time.Minute),
		},
		{
			name:      "missing signature",
			timestamp: ts,
			body:      body,
			now:       now,
			wantErr:   "missing signature headers",
		},
		{
			name:      "missing timestamp",
			signature: sign(secret, ts, body),
			body:      body,
			now:       now,
			wantErr:   "missing signature headers",
		},
		{
			name:      "non-numeric timestamp",
			signature: sign(secret, "yesterday", body),
			timestamp: "yesterday",
			body:      body,
			now:       now,
			wantErr:   "invalid request timestamp",
		},
		{
			name:      "outside replay window",
			signature: sign(secret, ts, body),
			timestamp: ts,
			body:      body,
			now:       now.Add(6 * time.Minute),
			wantErr:   "outside replay window",
		},
		{
			name:      "future timestamp outside window",
			signature: sign(secret, ts, body),
			timestamp: ts,
			body:      body,
			now:       now.Add(-6 * time.Minute),
			wantErr:   "outside replay window",
		},
		{
			name:      "wrong secret",
			signature: sign("other-secret", ts, body),
			timestamp: ts,
			body:      body,
			now:       now,
			wantErr:   "signature mismatch",
		},
		{
			name:      "tampered body",
			signature: sign(secret, ts, body),
			timestamp: ts,
			body:      []byte(`{"type":"tampered"}`),
			now:       now,
			wantErr:   "signature mismatch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifySignature(secret, tt.signature, tt.timestamp, tt.body, tt.now)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
