// Package testmail provides an in-memory double for internal/mailbox.Store,
// standing in for a real IMAP server in tests the way fake-gcs-server
// stands in for GCS in the teacher's integration tests.
package testmail

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type storedMessage struct {
	subject string
	data    []byte
	deleted bool
}

// Fake is a minimal in-memory mailbox: subjects may have multiple live
// messages (simulating the append-before-delete flush protocol), UIDs are
// assigned monotonically, and deleted messages are hidden from search and
// fetch but not removed, matching real IMAP \Deleted-without-expunge
// semantics.
type Fake struct {
	mu       sync.Mutex
	messages map[uint32]*storedMessage
	nextUID  uint32

	// Fail, when set, causes every operation to return this error so
	// callers can test the error path of flush/open without needing a
	// real dropped connection.
	Fail error
}

// New returns an empty fake mail store.
func New() *Fake {
	return &Fake{
		messages: make(map[uint32]*storedMessage),
		nextUID:  1,
	}
}

func (f *Fake) UIDForSubject(ctx context.Context, subject string) (uint32, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return 0, false, f.Fail
	}

	var uids []uint32
	for uid, msg := range f.messages {
		if msg.subject == subject && !msg.deleted {
			uids = append(uids, uid)
		}
	}
	if len(uids) == 0 {
		return 0, false, nil
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids[len(uids)-1], true, nil
}

func (f *Fake) GetMessage(ctx context.Context, uid uint32) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return nil, f.Fail
	}

	msg, ok := f.messages[uid]
	if !ok || msg.deleted {
		return nil, fmt.Errorf("testmail: uid %d not found", uid)
	}

	out := make([]byte, len(msg.data))
	copy(out, msg.data)
	return out, nil
}

func (f *Fake) PutMessage(ctx context.Context, subject string, plaintext []byte) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return 0, f.Fail
	}

	data := make([]byte, len(plaintext))
	copy(data, plaintext)

	uid := f.nextUID
	f.nextUID++
	f.messages[uid] = &storedMessage{subject: subject, data: data}
	return uid, nil
}

func (f *Fake) DeleteMessage(ctx context.Context, uid uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Fail != nil {
		return f.Fail
	}

	if msg, ok := f.messages[uid]; ok {
		msg.deleted = true
	}
	return nil
}

// InvalidateSubject is a no-op: Fake has no subject->UID cache to drop from,
// it rescans f.messages on every UIDForSubject call.
func (f *Fake) InvalidateSubject(subject string) {}

// LiveCount returns the number of non-deleted messages currently stored
// under subject. Tests use this to assert the append-then-delete protocol
// never leaves more than the expected number of live copies.
func (f *Fake) LiveCount(subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, msg := range f.messages {
		if msg.subject == subject && !msg.deleted {
			n++
		}
	}
	return n
}
