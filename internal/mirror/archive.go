package mirror

import (
	"io"
	"time"
)

// Archive stores raw fetched payloads outside the relational store:
// content-addressed blobs plus an append-only event trail. It exists so a
// remote document can be re-examined (or re-ingested after an extractor
// fix) without another platform round trip.
type Archive interface {
	// PutPayload stores a raw payload under its content hash.
	// Idempotent: storing the same hash twice is safe.
	PutPayload(hash string, r io.Reader, size int64) error

	// GetPayload retrieves a payload by content hash and writes it to w.
	GetPayload(hash string, w io.Writer) error

	// AppendEvent records one fetch event under a domain (e.g.
	// "remote_doc"), bucketed by day.
	AppendEvent(domain string, e *ArchiveEvent) error

	// ValidateSetup verifies the archive backend is accessible.
	ValidateSetup() error
}

// ArchiveEvent is one recorded fetch.
type ArchiveEvent struct {
	RunID       string    `json:"run_id"`
	SourceID    string    `json:"source_id"`
	ContentHash string    `json:"content_hash"`
	FetchedAt   time.Time `json:"fetched_at"`
	EntryType   string    `json:"entry_type,omitempty"`
	EntryToken  string    `json:"entry_token,omitempty"`
}

// Encryptor encrypts archived payloads at rest.
type Encryptor interface {
	// Setup generates and stores the key material, protecting the
	// private half with the passphrase.
	Setup(passphrase string) error

	// Encrypt reads plaintext from r and writes ciphertext to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock makes decryption available for the lifetime of the
	// returned context.
	Unlock(passphrase string) (DecryptionContext, error)
}

// DecryptionContext decrypts payloads using unlocked key material.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
