package application

import (
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/certregistry/internal/domain/signing"
)

// DefaultTimestampWindow is the maximum allowed distance between a signed
// request's timestamp and server time, in either direction.
const DefaultTimestampWindow = 300 * time.Second

const bearerPrefix = "Bearer "

// SignatureVerifier authenticates privileged requests: a static API key in
// the Authorization header plus an HMAC over the timestamped canonical
// payload. It holds no mutable state and is safe for concurrent use.
type SignatureVerifier struct {
	apiKey string
	secret []byte
	window time.Duration
	now    func() time.Time
}

// NewSignatureVerifier creates a verifier for the given API key and HMAC
// secret. A non-positive window falls back to DefaultTimestampWindow.
func NewSignatureVerifier(apiKey, hmacSecret string, window time.Duration) *SignatureVerifier {
	if window <= 0 {
		window = DefaultTimestampWindow
	}
	return &SignatureVerifier{
		apiKey: apiKey,
		secret: []byte(hmacSecret),
		window: window,
		now:    time.Now,
	}
}

// Verify checks a request in order: authorization header, API key,
// timestamp format, freshness, signature. The first failure is returned.
// payload must be exactly what the handler will act on.
func (v *SignatureVerifier) Verify(payload map[string]string, signature, timestamp, authorization string) error {
	token, ok := strings.CutPrefix(authorization, bearerPrefix)
	if !ok {
		return ErrMissingAuthorization
	}
	if !signing.Equal(token, v.apiKey) {
		return ErrInvalidAPIKey
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return ErrInvalidTimestamp
	}

	// now-ts can overflow int64, so compare against the window bounds.
	nowSec, w := v.now().Unix(), int64(v.window/time.Second)
	if ts < nowSec-w || ts > nowSec+w {
		return ErrTimestampOutOfRange
	}

	expected := signing.Sign(v.secret, signing.Message(timestamp, payload))
	if !signing.Equal(expected, signature) {
		return ErrInvalidSignature
	}

	return nil
}

// CheckAPIKey compares key to the configured API key in constant time.
func (v *SignatureVerifier) CheckAPIKey(key string) bool {
	return signing.Equal(key, v.apiKey)
}

// BearerHeader returns the Authorization header value for the configured key.
func (v *SignatureVerifier) BearerHeader() string {
	return bearerPrefix + v.apiKey
}

// SignatureFor returns the timestamp and signature a client must send for
// payload at the given unix time.
func (v *SignatureVerifier) SignatureFor(payload map[string]string, unix int64) (timestamp, signature string) {
	return signing.SignRequest(v.secret, unix, payload)
}
