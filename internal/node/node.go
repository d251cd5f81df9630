// Package node implements the two on-mailstore node kinds, File and
// Directory, and the dispatch that tells them apart: the first byte of a
// node's decrypted body is 'f' or 'd', per the tagged-union design the
// format was built around.
package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jacobsa/timeutil"

	"github.com/waweber/imapfs/internal/mailbox"
)

// Clock supplies the ctime/mtime stamped on nodes. Tests may swap it for a
// fake to get deterministic timestamps; production leaves it as the real
// clock.
var Clock timeutil.Clock = timeutil.RealClock()

// RootID is the fixed, all-zero identifier for the filesystem root
// directory. Every other identifier is randomly generated.
const RootID = "00000000-0000-0000-0000-000000000000"

// ErrCorrupt is returned when a node's decrypted body does not begin with
// a recognized type byte. The caller almost certainly used the wrong key.
var ErrCorrupt = errors.New("node: corrupt body")

// NewID returns a freshly generated random node identifier.
func NewID() string { return uuid.New().String() }

// Attr is the subset of node metadata the filesystem core needs to answer
// getattr; File and Dir each fill in what applies to them.
type Attr struct {
	IsDir bool
	Size  int64
}

// Node is a live, in-memory filesystem entity backed by a descriptor
// Message: either a File or a Directory.
type Node interface {
	ID() string
	IsDir() bool
	Attr() Attr
	Touch()
	Flush(ctx context.Context) error
	Close(ctx context.Context) error
	Delete(ctx context.Context) error
}

// Open fetches and decodes the node stored under id.
func Open(ctx context.Context, store mailbox.Store, id string) (Node, error) {
	msg, err := mailbox.Open(ctx, store, id)
	if err != nil {
		return nil, err
	}
	return parse(store, msg)
}

// InitRoot creates a fresh, empty root directory: used the first time a
// mailbox is mounted, when no message yet exists under RootID.
func InitRoot(store mailbox.Store) *Dir {
	return newDir(mailbox.CreateWithSubject(store, RootID))
}

func parse(store mailbox.Store, msg *mailbox.Message) (Node, error) {
	data := msg.Bytes()
	if len(data) == 0 {
		return nil, ErrCorrupt
	}
	switch data[0] {
	case 'f':
		return decodeFile(store, msg, data)
	case 'd':
		return decodeDir(msg, data)
	default:
		return nil, ErrCorrupt
	}
}

func invalidBody(kind byte, reason string) error {
	return fmt.Errorf("node: %w: %c body %s", ErrCorrupt, kind, reason)
}
