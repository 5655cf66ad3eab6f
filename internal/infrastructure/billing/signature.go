package billing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "captionly/internal/shared/errors"
)

// signatureTolerance bounds how old a signed webhook timestamp may be,
// limiting replay of captured deliveries.
const signatureTolerance = 5 * time.Minute

// VerifyWebhookSignature checks a `t=<unix>,v1=<hex>` signature header over
// the raw request body. The signed message is "<t>.<body>" and the MAC is
// HMAC-SHA256 with the shared webhook secret, compared in constant time.
func (c *Client) VerifyWebhookSignature(payload []byte, signatureHeader string) error {
	return verifySignature(payload, signatureHeader, c.webhookSecret, time.Now())
}

func verifySignature(payload []byte, signatureHeader, secret string, now time.Time) error {
	if secret == "" {
		return apperrors.NewInternalError("webhook secret is not configured")
	}
	if signatureHeader == "" {
		return apperrors.NewExternalServiceError("missing webhook signature header")
	}

	var timestamp int64
	var signatures []string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			ts, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return apperrors.NewExternalServiceError("invalid webhook signature timestamp")
			}
			timestamp = ts
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if timestamp == 0 || len(signatures) == 0 {
		return apperrors.NewExternalServiceError("malformed webhook signature header")
	}

	age := now.Sub(time.Unix(timestamp, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return apperrors.NewExternalServiceError("webhook signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range signatures {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}

	return apperrors.NewExternalServiceError("webhook signature mismatch")
}

// SignPayload computes a signature header for a payload. Used by tests and
// local tooling that replays webhook deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
