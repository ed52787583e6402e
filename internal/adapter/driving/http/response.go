package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is the body of the root wake-up endpoint.
type StatusResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// CertificateResponse is the JSON representation of a certificate record.
type CertificateResponse struct {
	ID             int64  `json:"id"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	BirthDate      string `json:"birthdate"`
	Gender         string `json:"gender"`
	CertName       string `json:"cert_name"`
	CertSerialSN   string `json:"cert_serial_sn"`
	CertRandomCode string `json:"cert_random_code"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// UpsertResponse is returned by the add and update endpoints.
type UpsertResponse struct {
	Result    string `json:"result"`
	Status    string `json:"status"`
	StudentID int64  `json:"student_id"`
}

// DeleteResponse is returned by the delete endpoint.
type DeleteResponse struct {
	Result  string `json:"result"`
	Deleted int64  `json:"deleted"`
}

// SearchResponse is returned by the search and verify endpoints.
type SearchResponse struct {
	Found   bool                 `json:"found"`
	Student *CertificateResponse `json:"student,omitempty"`
}

// PublicCertificateResponse is the subset of a record the public lookup reveals.
type PublicCertificateResponse struct {
	FirstName    string `json:"firstname"`
	LastName     string `json:"lastname"`
	CertName     string `json:"cert_name"`
	CertSerialSN string `json:"cert_serial_sn"`
	IssuedAt     string `json:"issued_at"`
}

// PublicLookupResponse is returned by the public lookup endpoint.
type PublicLookupResponse struct {
	Found       bool                       `json:"found"`
	Certificate *PublicCertificateResponse `json:"certificate,omitempty"`
}

// StatsResponse is returned by the stats endpoint.
type StatsResponse struct {
	Records int64 `json:"records"`
}

// PasswordOKResponse is returned when a password check or change succeeds.
type PasswordOKResponse struct {
	OK bool `json:"ok"`
}

// PasswordErrorResponse is returned when the password gate rejects a request.
type PasswordErrorResponse struct {
	Error      string `json:"error"`
	Locked     bool   `json:"locked"`
	RetryAfter int    `json:"retry_after,omitempty"`
	Attempts   int    `json:"attempts,omitempty"`
	Remaining  int    `json:"remaining,omitempty"`
}

// PasswordStatusResponse is returned by the password status endpoint.
type PasswordStatusResponse struct {
	AppID          string `json:"app_id"`
	FailedAttempts int    `json:"failed_attempts"`
	Locked         bool   `json:"locked"`
	RetryAfter     int    `json:"retry_after"`
}

// toCertificateResponse converts a domain Certificate to its JSON representation.
func toCertificateResponse(c model.Certificate) CertificateResponse {
	return CertificateResponse{
		ID:             c.ID,
		FirstName:      c.FirstName,
		LastName:       c.LastName,
		BirthDate:      c.BirthDate,
		Gender:         c.Gender,
		CertName:       c.CertName,
		CertSerialSN:   c.CertSerialSN,
		CertRandomCode: c.CertRandomCode,
		CreatedAt:      c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      c.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
