package mailbox_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waweber/imapfs/internal/mailbox"
	"github.com/waweber/imapfs/internal/testmail"
)

func TestCreateIsDirtyAndEmpty(t *testing.T) {
	store := testmail.New()
	msg := mailbox.Create(store)

	assert.Equal(t, 0, msg.Len())
	assert.NotEmpty(t, msg.Subject())

	// Dirty: flushing without any write still stores one copy.
	require.NoError(t, msg.Flush(context.Background()))
	assert.Equal(t, 1, store.LiveCount(msg.Subject()))
}

func TestOpenUnknownSubjectFails(t *testing.T) {
	store := testmail.New()
	_, err := mailbox.Open(context.Background(), store, "nope")
	assert.ErrorIs(t, err, mailbox.ErrNotFound)
}

func TestFlushThenOpenRoundTrips(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()

	msg := mailbox.Create(store)
	subject := msg.Subject()
	msg.Write([]byte("hello world"))
	require.NoError(t, msg.Flush(ctx))

	reopened, err := mailbox.Open(ctx, store, subject)
	require.NoError(t, err)

	data := reopened.Read(nil)
	assert.Equal(t, []byte("hello world"), data)
}

func TestWriteAdvancesCursorAndGrowsBuffer(t *testing.T) {
	msg := mailbox.Create(testmail.New())
	msg.Write([]byte("abc"))
	assert.Equal(t, 3, msg.Len())

	pos, err := msg.Seek(0, mailbox.SeekCur)
	require.NoError(t, err)
	assert.Equal(t, int64(3), pos)
}

func TestSeekEndSubtractsOffset(t *testing.T) {
	msg := mailbox.Create(testmail.New())
	msg.Write([]byte("0123456789"))

	pos, err := msg.Seek(3, mailbox.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos) // size(10) - offset(3), not size+offset

	three := 3
	data := msg.Read(&three)
	assert.Equal(t, []byte("789"), data)
}

func TestTruncateGrowPadsWithDots(t *testing.T) {
	msg := mailbox.Create(testmail.New())
	msg.Write([]byte("ab"))
	msg.Truncate(5)

	_, err := msg.Seek(0, mailbox.SeekSet)
	require.NoError(t, err)
	data := msg.Read(nil)
	assert.Equal(t, []byte("ab..."), data)
}

func TestTruncateShrinkClampsCursor(t *testing.T) {
	msg := mailbox.Create(testmail.New())
	msg.Write([]byte("0123456789"))
	_, _ = msg.Seek(8, mailbox.SeekSet)

	msg.Truncate(4)

	pos, err := msg.Seek(0, mailbox.SeekCur)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos)
}

func TestFlushAppendsBeforeDeletingOldCopy(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()

	msg := mailbox.Create(store)
	subject := msg.Subject()
	msg.Write([]byte("v1"))
	require.NoError(t, msg.Flush(ctx))
	assert.Equal(t, 1, store.LiveCount(subject))

	msg.Write([]byte("v2-longer"))
	require.NoError(t, msg.Flush(ctx))

	assert.Equal(t, 1, store.LiveCount(subject), "flush must leave exactly one live copy, the newest")
}

func TestUnlinkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()

	assert.NoError(t, mailbox.Unlink(ctx, store, "never-existed"))

	msg := mailbox.Create(store)
	subject := msg.Subject()
	msg.Write([]byte("x"))
	require.NoError(t, msg.Flush(ctx))

	require.NoError(t, mailbox.Unlink(ctx, store, subject))
	assert.Equal(t, 0, store.LiveCount(subject))
	assert.NoError(t, mailbox.Unlink(ctx, store, subject))
}

func TestFlushIsNoOpWhenNotDirty(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()

	msg := mailbox.Create(store)
	subject := msg.Subject()
	msg.Write([]byte("x"))
	require.NoError(t, msg.Flush(ctx))
	require.NoError(t, msg.Flush(ctx))

	assert.Equal(t, 1, store.LiveCount(subject))
}

func TestReadClampsToRemainingLength(t *testing.T) {
	msg := mailbox.Create(testmail.New())
	msg.Write([]byte("abc"))
	_, _ = msg.Seek(0, mailbox.SeekSet)

	big := 100
	data := msg.Read(&big)
	assert.True(t, bytes.Equal(data, []byte("abc")))
}
