// Package mailbox implements Message, a seekable byte buffer backed by one
// subject (identifier) in a mail store, plus the flush protocol that keeps
// a subject's mail messages consistent under "append then delete".
package mailbox

import "context"

// Store is everything a Message needs from the underlying mail server.
// internal/mailstore.Client implements this against a real IMAP server;
// tests implement it against an in-memory fake.
type Store interface {
	// UIDForSubject returns the newest UID currently bearing subject, or
	// ok=false if none exists.
	UIDForSubject(ctx context.Context, subject string) (uid uint32, ok bool, err error)

	// GetMessage fetches and decrypts the body stored under uid.
	GetMessage(ctx context.Context, uid uint32) ([]byte, error)

	// PutMessage encrypts and appends plaintext under subject, returning
	// the UID the server assigned.
	PutMessage(ctx context.Context, subject string, plaintext []byte) (uid uint32, err error)

	// DeleteMessage flags uid \Deleted.
	DeleteMessage(ctx context.Context, uid uint32) error

	// InvalidateSubject drops subject's cached UID, if any.
	InvalidateSubject(subject string)
}
