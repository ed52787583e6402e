// Package signing holds the primitives shared by request authentication and
// password storage: the canonical payload encoding and the hex-encoded
// SHA-256 based hashes computed over it.
package signing
