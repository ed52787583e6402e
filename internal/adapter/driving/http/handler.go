package httphandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/certregistry/internal/application"
)

const (
	signatureHeader = "X-Signature"
	timestampHeader = "X-Timestamp"
	maxBodyBytes    = 64 << 10
)

// Field sets of the signed request bodies. Only these fields are read from
// the body and they are exactly what the signature covers.
var (
	studentFields  = []string{"firstname", "lastname", "birthdate", "gender", "cert_name", "cert_serial_sn", "cert_random_code"}
	identityFields = []string{"firstname", "lastname", "birthdate"}
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	certs       *application.CertificateService
	guard       *application.LockoutGuard
	verifier    *application.SignatureVerifier
	limiter     *RateLimiter
	metrics     *Metrics
	sanitizer   *bluemonday.Policy
	corsOrigins []string
	logger      *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. limiter and
// metrics may be nil.
func NewHandler(
	certs *application.CertificateService,
	guard *application.LockoutGuard,
	verifier *application.SignatureVerifier,
	limiter *RateLimiter,
	metrics *Metrics,
	corsOrigins []string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		certs:       certs,
		guard:       guard,
		verifier:    verifier,
		limiter:     limiter,
		metrics:     metrics,
		sanitizer:   bluemonday.StrictPolicy(),
		corsOrigins: corsOrigins,
		logger:      logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with request ID, CORS, logging, metrics and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("POST /add", h.AddCertificate)
	mux.HandleFunc("POST /update", h.UpdateCertificate)
	mux.HandleFunc("POST /delete", h.DeleteCertificates)
	mux.HandleFunc("POST /search", h.SearchCertificate)
	mux.HandleFunc("GET /verify", h.VerifyCertificate)
	mux.HandleFunc("GET /public/lookup", h.limiter.middleware(h.metrics, h.PublicLookup))
	mux.HandleFunc("POST /password/check", h.CheckPassword)
	mux.HandleFunc("POST /password/change", h.ChangePassword)
	mux.HandleFunc("POST /password/status", h.PasswordStatus)
	mux.HandleFunc("POST /stats", h.Stats)
	mux.Handle("GET /metrics", h.metrics.Handler())

	// Recovery innermost so panics are caught before logging. Metrics sits
	// directly outside it so it sees the request the mux annotates.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = h.metrics.middleware(wrapped)
	wrapped = loggingMiddleware(logger, wrapped)
	wrapped = corsMiddleware(h.corsOrigins, wrapped)
	wrapped = requestIDMiddleware(wrapped)

	return wrapped
}

// Root answers the wake-up ping.
func (h *Handler) Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{Status: "ok", Service: "certregistry"})
}

// decodePayload reads a JSON object body and extracts the named fields,
// each of which must be present and a string. Other fields are ignored.
// An empty body is accepted when no fields are required.
func decodePayload(w http.ResponseWriter, r *http.Request, fields []string) (map[string]string, error) {
	var raw map[string]json.RawMessage

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&raw); err != nil {
		if !errors.Is(err, io.EOF) || len(fields) > 0 {
			return nil, errors.New("invalid request body")
		}
	}

	payload := make(map[string]string, len(fields))
	for _, field := range fields {
		value, ok := raw[field]
		if !ok || string(value) == "null" {
			return nil, fmt.Errorf("missing field %q", field)
		}
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, fmt.Errorf("field %q must be a string", field)
		}
		payload[field] = s
	}
	return payload, nil
}

// signedPayload decodes the body and authenticates it against the
// signature headers. On failure the response has been written and ok is false.
func (h *Handler) signedPayload(w http.ResponseWriter, r *http.Request, fields []string) (map[string]string, bool) {
	payload, err := decodePayload(w, r, fields)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	err = h.verifier.Verify(
		payload,
		r.Header.Get(signatureHeader),
		r.Header.Get(timestampHeader),
		r.Header.Get("Authorization"),
	)
	if err != nil {
		h.rejectAuth(w, r, err)
		return nil, false
	}
	return payload, true
}

func (h *Handler) rejectAuth(w http.ResponseWriter, r *http.Request, err error) {
	h.metrics.authFailure(err)
	h.logger.Warn("request authentication failed",
		"path", r.URL.Path,
		"reason", err,
		"request_id", requestIDFromContext(r.Context()),
	)
	writeError(w, authStatus(err), err.Error())
}

// authStatus maps a verifier failure to its HTTP status: malformed or stale
// timestamps are client errors, everything else is unauthorized.
func authStatus(err error) int {
	if errors.Is(err, application.ErrInvalidTimestamp) || errors.Is(err, application.ErrTimestampOutOfRange) {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.Error(msg, "error", err, "request_id", requestIDFromContext(r.Context()))
	writeError(w, http.StatusInternalServerError, "internal server error")
}
