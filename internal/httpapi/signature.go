package httpapi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Slack request-signing headers.
const (
	HeaderSignature = "X-Slack-Signature"
	HeaderTimestamp = "X-Slack-Request-Timestamp"
)

// signatureVersion is the prefix Slack puts on its v0 signatures.
const signatureVersion = "v0"

// replayWindow bounds how stale a signed request may be in either
// direction.
const replayWindow = 5 * time.Minute

// VerifySignature checks a Slack request signature: HMAC-SHA256 of
// "v0:<timestamp>:<raw body>" keyed by the signing secret, compared in
// constant time, with the timestamp constrained to a 5-minute window around
// now. Returns an error describing the first failed check; any failure
// rejects the whole request before it can change state.
func VerifySignature(secret, signature, timestamp string, body []byte, now time.Time) error {
	if signature == "" || timestamp == "" {
		return fmt.Errorf("missing signature headers")
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid request timestamp")
	}
	delta := now.Sub(time.Unix(ts, 0))
	if delta < 0 {
		delta = -delta
	}
	if delta > replayWindow {
		return fmt.Errorf("request timestamp outside replay window")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s:", signatureVersion, timestamp)
	mac.Write(body)
	expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
