package mailbox

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/waweber/imapfs/internal/logger"
)

// Message behaves as a seekable byte buffer bound to one subject. It is a
// thin write-through cache over Store: every Flush re-encrypts the whole
// buffer and appends it under the same subject, deleting whichever UID was
// previously live.
//
// External synchronization is required; imapfs serializes all node access
// behind a single filesystem-wide lock (see internal/imapfs).
type Message struct {
	store   Store
	subject string

	data  []byte
	pos   int64
	uid   uint32
	hasUID bool
	dirty bool
}

// Create returns a brand new, empty, dirty Message under a freshly
// generated random subject. Nothing is written to the store until Flush.
func Create(store Store) *Message {
	return CreateWithSubject(store, uuid.New().String())
}

// CreateWithSubject is like Create but binds the message to a caller-chosen
// subject rather than a random one. Used to seed the root directory, whose
// identifier is the fixed all-zero value rather than a generated one.
func CreateWithSubject(store Store, subject string) *Message {
	return &Message{
		store:   store,
		subject: subject,
		dirty:   true,
	}
}

// Open fetches the message currently stored under subject. It fails if no
// UID is known for subject, or the fetch returns nothing.
func Open(ctx context.Context, store Store, subject string) (*Message, error) {
	uid, ok, err := store.UIDForSubject(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("mailbox: open %s: %w", subject, err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	data, err := store.GetMessage(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("mailbox: open %s: %w", subject, err)
	}
	if data == nil {
		return nil, ErrNotFound
	}

	return &Message{
		store:   store,
		subject: subject,
		data:    data,
		uid:     uid,
		hasUID:  true,
	}, nil
}

// Unlink deletes whatever is currently stored under subject, if anything.
// It is idempotent: a missing subject is not an error.
func Unlink(ctx context.Context, store Store, subject string) error {
	uid, ok, err := store.UIDForSubject(ctx, subject)
	if err != nil {
		return fmt.Errorf("mailbox: unlink %s: %w", subject, err)
	}
	if !ok {
		return nil
	}
	if err := store.DeleteMessage(ctx, uid); err != nil {
		return err
	}
	store.InvalidateSubject(subject)
	return nil
}

// Subject returns the identifier this message is bound to.
func (m *Message) Subject() string { return m.subject }

// Len returns the current buffer length.
func (m *Message) Len() int { return len(m.data) }

// Bytes returns a copy of the full buffer without disturbing the cursor.
func (m *Message) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Seek whence constants, matching io.Seeker's.
const (
	SeekSet = io.SeekStart
	SeekCur = io.SeekCurrent
	SeekEnd = io.SeekEnd
)

// Seek repositions the cursor. SEEK_END is computed as size - offset,
// matching the original implementation exactly (not size + offset).
func (m *Message) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case SeekSet:
		newPos = offset
	case SeekCur:
		newPos = m.pos + offset
	case SeekEnd:
		newPos = int64(len(m.data)) - offset
	default:
		return 0, fmt.Errorf("mailbox: invalid whence %d", whence)
	}
	if newPos < 0 {
		newPos = 0
	}
	m.pos = newPos
	return m.pos, nil
}

// Read returns up to n bytes starting at the cursor, advancing it. A nil
// n reads everything remaining.
func (m *Message) Read(n *int) []byte {
	remaining := int64(len(m.data)) - m.pos
	if remaining < 0 {
		remaining = 0
	}

	size := remaining
	if n != nil && int64(*n) < size {
		size = int64(*n)
	}

	out := make([]byte, size)
	copy(out, m.data[m.pos:m.pos+size])
	m.pos += size
	return out
}

// Write writes buf at the cursor, growing the buffer if necessary, and
// advances the cursor. Growth beyond the prior length pads with '.'.
func (m *Message) Write(buf []byte) {
	end := m.pos + int64(len(buf))
	if end > int64(len(m.data)) {
		m.growTo(end)
	}

	copy(m.data[m.pos:end], buf)
	m.pos = end
	m.dirty = true
}

// Truncate shrinks or grows the buffer to exactly size bytes. Shrinking
// drops the tail and clamps the cursor; growing pads with '.' bytes (this
// file model is never sparse).
func (m *Message) Truncate(size int64) {
	if size < int64(len(m.data)) {
		m.data = m.data[:size]
		if m.pos > size {
			m.pos = size
		}
	} else if size > int64(len(m.data)) {
		m.growTo(size)
	}
	m.dirty = true
}

func (m *Message) growTo(size int64) {
	grown := make([]byte, size)
	copy(grown, m.data)
	for i := len(m.data); i < len(grown); i++ {
		grown[i] = '.'
	}
	m.data = grown
}

// Flush writes the buffer back to the store if dirty. The new copy is
// appended before the old UID (if any) is deleted: a crash between the two
// steps leaves a duplicate, never zero copies. The next reader resolves the
// duplicate by taking the newest UID.
func (m *Message) Flush(ctx context.Context) error {
	if !m.dirty {
		return nil
	}

	oldUID, hadUID := m.uid, m.hasUID

	newUID, err := m.store.PutMessage(ctx, m.subject, m.data)
	if err != nil {
		return fmt.Errorf("mailbox: flush %s: %w", m.subject, err)
	}

	if hadUID {
		if err := m.store.DeleteMessage(ctx, oldUID); err != nil {
			logger.Warnf("mailbox: flush %s: delete stale uid %d: %v", m.subject, oldUID, err)
		}
	}
	// PutMessage above already invalidated and reseeded the subject cache
	// with newUID, so there is nothing left to invalidate here.

	m.uid = newUID
	m.hasUID = true
	m.dirty = false
	return nil
}

// Close flushes then releases the message. The Message must not be used
// afterward.
func (m *Message) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

// Delete removes whatever copy of this message currently exists in the
// store: by UID if one is already known, else by re-resolving the subject.
// It is safe to call on a message that was never flushed.
func (m *Message) Delete(ctx context.Context) error {
	if m.hasUID {
		if err := m.store.DeleteMessage(ctx, m.uid); err != nil {
			return err
		}
		m.store.InvalidateSubject(m.subject)
		return nil
	}
	return Unlink(ctx, m.store, m.subject)
}
