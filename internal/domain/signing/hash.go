package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
)

// Sign returns the lowercase hex HMAC-SHA256 of message under secret.
func Sign(secret, message []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Digest returns the lowercase hex SHA-256 of s.
func Digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Equal reports whether a and b are identical without leaking the position
// of the first differing byte.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Message builds the signed message for a request: the timestamp exactly as
// the caller sent it, a dot, then the canonical payload.
func Message(timestamp string, payload map[string]string) []byte {
	canonical := Canonicalize(payload)
	msg := make([]byte, 0, len(timestamp)+1+len(canonical))
	msg = append(msg, timestamp...)
	msg = append(msg, '.')
	return append(msg, canonical...)
}

// SignRequest computes the signature a client must send for payload at the
// given unix timestamp.
func SignRequest(secret []byte, unix int64, payload map[string]string) (timestamp, signature string) {
	timestamp = strconv.FormatInt(unix, 10)
	return timestamp, Sign(secret, Message(timestamp, payload))
}
