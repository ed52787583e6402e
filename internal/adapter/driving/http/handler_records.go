package httphandler

import (
	"errors"
	"net/http"

	"github.com/ericfisherdev/certregistry/internal/application"
	"github.com/ericfisherdev/certregistry/internal/domain/model"
)

// AddCertificate upserts a certificate record.
func (h *Handler) AddCertificate(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, "added")
}

// UpdateCertificate upserts a certificate record. It behaves exactly like
// AddCertificate apart from the result label.
func (h *Handler) UpdateCertificate(w http.ResponseWriter, r *http.Request) {
	h.upsert(w, r, "updated")
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request, label string) {
	payload, ok := h.signedPayload(w, r, studentFields)
	if !ok {
		return
	}

	res, err := h.certs.Upsert(r.Context(), certificateFromPayload(payload))
	if errors.Is(err, application.ErrIncompleteCertificate) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to upsert certificate", err)
		return
	}

	writeJSON(w, http.StatusOK, UpsertResponse{
		Result:    label,
		Status:    string(res.Status),
		StudentID: res.ID,
	})
}

// DeleteCertificates removes every record of the person in the body. The
// body carries a full record, which is what the signature covers, but only
// the identity fields select rows.
func (h *Handler) DeleteCertificates(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.signedPayload(w, r, studentFields)
	if !ok {
		return
	}

	n, err := h.certs.Delete(r.Context(), identityFromPayload(payload))
	if errors.Is(err, application.ErrIncompleteIdentity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to delete certificates", err)
		return
	}

	writeJSON(w, http.StatusOK, DeleteResponse{Result: "deleted", Deleted: n})
}

// SearchCertificate looks up a person's record by identity.
func (h *Handler) SearchCertificate(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.signedPayload(w, r, identityFields)
	if !ok {
		return
	}
	h.search(w, r, identityFromPayload(payload))
}

// VerifyCertificate is the query-string variant of search used by the
// verification page. The API key arrives in its own header and the
// signature covers the three query parameters.
func (h *Handler) VerifyCertificate(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get("X-API-Key")
	if key == "" {
		key = r.Header.Get("X-Abi-Key")
	}
	if !h.verifier.CheckAPIKey(key) {
		h.rejectAuth(w, r, application.ErrInvalidAPIKey)
		return
	}

	q := r.URL.Query()
	payload := make(map[string]string, len(identityFields))
	for _, field := range identityFields {
		if !q.Has(field) {
			writeError(w, http.StatusBadRequest, "missing query parameter "+field)
			return
		}
		payload[field] = q.Get(field)
	}

	err := h.verifier.Verify(
		payload,
		r.Header.Get(signatureHeader),
		r.Header.Get(timestampHeader),
		h.verifier.BearerHeader(),
	)
	if err != nil {
		h.rejectAuth(w, r, err)
		return
	}

	h.search(w, r, identityFromPayload(payload))
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request, identity model.Identity) {
	cert, err := h.certs.Search(r.Context(), identity)
	if errors.Is(err, application.ErrIncompleteIdentity) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to search certificates", err)
		return
	}

	if cert == nil {
		writeJSON(w, http.StatusOK, SearchResponse{Found: false})
		return
	}

	resp := toCertificateResponse(*cert)
	writeJSON(w, http.StatusOK, SearchResponse{Found: true, Student: &resp})
}

// PublicLookup lets anyone confirm a certificate from the serial number and
// random code printed on it. Only non-sensitive fields are returned, with
// any markup stripped.
func (h *Handler) PublicLookup(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cert, err := h.certs.PublicLookup(r.Context(), q.Get("cert_serial_sn"), q.Get("cert_random_code"))
	if errors.Is(err, application.ErrIncompleteLookup) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, "failed to look up certificate", err)
		return
	}

	if cert == nil {
		writeJSON(w, http.StatusOK, PublicLookupResponse{Found: false})
		return
	}

	writeJSON(w, http.StatusOK, PublicLookupResponse{
		Found: true,
		Certificate: &PublicCertificateResponse{
			FirstName:    h.sanitizer.Sanitize(cert.FirstName),
			LastName:     h.sanitizer.Sanitize(cert.LastName),
			CertName:     h.sanitizer.Sanitize(cert.CertName),
			CertSerialSN: h.sanitizer.Sanitize(cert.CertSerialSN),
			IssuedAt:     toCertificateResponse(*cert).CreatedAt,
		},
	})
}

// Stats reports the number of stored records. The signed body is empty.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.signedPayload(w, r, nil); !ok {
		return
	}

	n, err := h.certs.Count(r.Context())
	if err != nil {
		h.internalError(w, r, "failed to count certificates", err)
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{Records: n})
}

func certificateFromPayload(p map[string]string) model.Certificate {
	return model.Certificate{
		FirstName:      p["firstname"],
		LastName:       p["lastname"],
		BirthDate:      p["birthdate"],
		Gender:         p["gender"],
		CertName:       p["cert_name"],
		CertSerialSN:   p["cert_serial_sn"],
		CertRandomCode: p["cert_random_code"],
	}
}

func identityFromPayload(p map[string]string) model.Identity {
	return model.Identity{
		FirstName: p["firstname"],
		LastName:  p["lastname"],
		BirthDate: p["birthdate"],
	}
}
