package application

import (
	"encoding/hex"
	"fmt"
	"math"
	"math/rand/v2"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/certregistry/internal/domain/signing"
)

const (
	testAPIKey = "test-api-key"
	testSecret = "test-hmac-secret"
)

var verifierNow = time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

func newTestVerifier() *SignatureVerifier {
	v := NewSignatureVerifier(testAPIKey, testSecret, 0)
	v.now = func() time.Time { return verifierNow }
	return v
}

func samplePayload() map[string]string {
	return map[string]string{
		"firstname": "Lina",
		"lastname":  "Haddad",
		"birthdate": "2001-04-09",
	}
}

func TestSignatureVerifier_Verify(t *testing.T) {
	payload := samplePayload()
	ts, sig := signing.SignRequest([]byte(testSecret), verifierNow.Unix(), payload)

	tampered := sig[:63] + "0"
	if sig[63] == '0' {
		tampered = sig[:63] + "1"
	}

	tests := []struct {
		name          string
		signature     string
		timestamp     string
		authorization string
		wantErr       error
	}{
		{
			name:          "valid request",
			signature:     sig,
			timestamp:     ts,
			authorization: "Bearer " + testAPIKey,
		},
		{
			name:          "missing authorization",
			signature:     sig,
			timestamp:     ts,
			authorization: "",
			wantErr:       ErrMissingAuthorization,
		},
		{
			name:          "wrong scheme",
			signature:     sig,
			timestamp:     ts,
			authorization: "Basic " + testAPIKey,
			wantErr:       ErrMissingAuthorization,
		},
		{
			name:          "wrong api key",
			signature:     sig,
			timestamp:     ts,
			authorization: "Bearer nope",
			wantErr:       ErrInvalidAPIKey,
		},
		{
			name:          "empty bearer token",
			signature:     sig,
			timestamp:     ts,
			authorization: "Bearer ",
			wantErr:       ErrInvalidAPIKey,
		},
		{
			name:          "non-numeric timestamp",
			signature:     sig,
			timestamp:     "yesterday",
			authorization: "Bearer " + testAPIKey,
			wantErr:       ErrInvalidTimestamp,
		},
		{
			name:          "missing timestamp",
			signature:     sig,
			timestamp:     "",
			authorization: "Bearer " + testAPIKey,
			wantErr:       ErrInvalidTimestamp,
		},
		{
			name:          "stale timestamp",
			signature:     sig,
			timestamp:     strconv.FormatInt(verifierNow.Unix()-3600, 10),
			authorization: "Bearer " + testAPIKey,
			wantErr:       ErrTimestampOutOfRange,
		},
		{
			name:          "tampered signature",
			signature:     tampered,
			timestamp:     ts,
			authorization: "Bearer " + testAPIKey,
			wantErr:       ErrInvalidSignature,
		},
		{
			name:          "missing signature",
			signature:     "",
			timestamp:     ts,
			authorization: "Bearer " + testAPIKey,
			wantErr:       ErrInvalidSignature,
		},
		{
			name:          "api key is checked before timestamp",
			signature:     sig,
			timestamp:     "garbage",
			authorization: "Bearer nope",
			wantErr:       ErrInvalidAPIKey,
		},
	}

	v := newTestVerifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(payload, tt.signature, tt.timestamp, tt.authorization)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, IsAuthError(err))
		})
	}
}

func TestSignatureVerifier_FreshnessBoundary(t *testing.T) {
	v := newTestVerifier()
	payload := samplePayload()
	now := verifierNow.Unix()

	tests := []struct {
		offset int64
		ok     bool
	}{
		{offset: -300, ok: true},
		{offset: 300, ok: true},
		{offset: 0, ok: true},
		{offset: -301, ok: false},
		{offset: 301, ok: false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("offset %+d", tt.offset), func(t *testing.T) {
			ts, sig := signing.SignRequest([]byte(testSecret), now+tt.offset, payload)
			err := v.Verify(payload, sig, ts, "Bearer "+testAPIKey)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrTimestampOutOfRange)
			}
		})
	}
}

func TestSignatureVerifier_FreshnessExtremes(t *testing.T) {
	v := newTestVerifier()
	payload := map[string]string{"a": "b"}
	now := verifierNow.Unix()

	for _, unix := range []int64{math.MinInt64 + now, math.MinInt64, math.MaxInt64, math.MaxInt64 - now + 1} {
		t.Run(strconv.FormatInt(unix, 10), func(t *testing.T) {
			ts, sig := signing.SignRequest([]byte(testSecret), unix, payload)
			assert.ErrorIs(t, v.Verify(payload, sig, ts, "Bearer "+testAPIKey), ErrTimestampOutOfRange)
		})
	}
}

func TestSignatureVerifier_SoundAndComplete(t *testing.T) {
	v := newTestVerifier()
	rng := rand.New(rand.NewPCG(7, 11))
	fields := []string{"firstname", "lastname", "birthdate", "gender", "cert_name", "cert_serial_sn", "cert_random_code"}

	for i := 0; i < 25; i++ {
		payload := make(map[string]string)
		for _, f := range fields {
			if rng.IntN(3) == 0 {
				continue
			}
			payload[f] = fmt.Sprintf("%s-%d", f, rng.IntN(100000))
		}
		unix := verifierNow.Unix() + int64(rng.IntN(601)-300)
		ts, sig := signing.SignRequest([]byte(testSecret), unix, payload)

		require.NoError(t, v.Verify(payload, sig, ts, "Bearer "+testAPIKey), "payload %v", payload)

		raw, err := hex.DecodeString(sig)
		require.NoError(t, err)
		for bit := 0; bit < len(raw)*8; bit += 13 {
			flipped := append([]byte(nil), raw...)
			flipped[bit/8] ^= 1 << (bit % 8)
			err := v.Verify(payload, hex.EncodeToString(flipped), ts, "Bearer "+testAPIKey)
			assert.ErrorIs(t, err, ErrInvalidSignature, "bit %d", bit)
		}
	}
}

func TestSignatureVerifier_PayloadMustMatch(t *testing.T) {
	v := newTestVerifier()
	payload := samplePayload()
	ts, sig := signing.SignRequest([]byte(testSecret), verifierNow.Unix(), payload)

	altered := samplePayload()
	altered["lastname"] = "Haddad "

	assert.ErrorIs(t, v.Verify(altered, sig, ts, "Bearer "+testAPIKey), ErrInvalidSignature)

	extra := samplePayload()
	extra["gender"] = ""
	assert.ErrorIs(t, v.Verify(extra, sig, ts, "Bearer "+testAPIKey), ErrInvalidSignature)
}

func TestSignatureVerifier_TimestampIsSignedVerbatim(t *testing.T) {
	v := newTestVerifier()
	payload := samplePayload()
	ts, sig := signing.SignRequest([]byte(testSecret), verifierNow.Unix(), payload)

	// Same instant, different spelling: the signature covers the string sent.
	assert.ErrorIs(t, v.Verify(payload, sig, "+"+ts, "Bearer "+testAPIKey), ErrInvalidSignature)
}

func TestSignatureVerifier_Helpers(t *testing.T) {
	v := newTestVerifier()
	assert.True(t, v.CheckAPIKey(testAPIKey))
	assert.False(t, v.CheckAPIKey(testAPIKey+"x"))
	assert.Equal(t, "Bearer "+testAPIKey, v.BearerHeader())
}

func TestSignatureVerifier_SignatureFor(t *testing.T) {
	v := newTestVerifier()
	payload := samplePayload()

	ts, sig := v.SignatureFor(payload, verifierNow.Unix())
	assert.Equal(t, strconv.FormatInt(verifierNow.Unix(), 10), ts)
	assert.NoError(t, v.Verify(payload, sig, ts, v.BearerHeader()))
}
