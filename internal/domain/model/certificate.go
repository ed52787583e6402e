package model

import "time"

// Certificate is an issued certificate record for one person. A person may
// hold several certificates; a record is identified by the person's
// Identity plus CertName and CertSerialSN.
type Certificate struct {
	ID             int64
	FirstName      string
	LastName       string
	BirthDate      string
	Gender         string
	CertName       string
	CertSerialSN   string
	CertRandomCode string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Identity is the person-level lookup key used by search and delete.
type Identity struct {
	FirstName string
	LastName  string
	BirthDate string
}

// CertificateKey is the exact-match key used to decide whether an upsert
// updates an existing record or inserts a new one. CertRandomCode is not
// part of the key.
type CertificateKey struct {
	Identity
	CertName     string
	CertSerialSN string
}

// Identity returns the person-level key for the certificate.
func (c Certificate) Identity() Identity {
	return Identity{FirstName: c.FirstName, LastName: c.LastName, BirthDate: c.BirthDate}
}

// Key returns the upsert match key for the certificate.
func (c Certificate) Key() CertificateKey {
	return CertificateKey{Identity: c.Identity(), CertName: c.CertName, CertSerialSN: c.CertSerialSN}
}
