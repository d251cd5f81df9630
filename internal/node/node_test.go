package node_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waweber/imapfs/internal/mailbox"
	"github.com/waweber/imapfs/internal/node"
	"github.com/waweber/imapfs/internal/testmail"
)

func TestInitRootUsesFixedIdentifier(t *testing.T) {
	root := node.InitRoot(testmail.New())
	assert.Equal(t, node.RootID, root.ID())
	assert.True(t, root.Empty())
}

func TestDirRoundTripsThroughFlushAndOpen(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()

	d := node.NewDir(store)
	childID := node.NewID()
	d.AddChild(childID, "x")
	require.NoError(t, d.Flush(ctx))

	reopened, err := node.Open(ctx, store, d.ID())
	require.NoError(t, err)
	require.True(t, reopened.IsDir())

	dir := reopened.(*node.Dir)
	got, ok := dir.ChildByName("x")
	require.True(t, ok)
	assert.Equal(t, childID, got)
}

func TestDirRemoveChildIsNoOpWhenAbsent(t *testing.T) {
	d := node.NewDir(testmail.New())
	d.RemoveChild("nonexistent")
	assert.True(t, d.Empty())
}

func TestOpenUnrecognizedPrefixIsCorrupt(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()

	msg := mailbox.CreateWithSubject(store, "garbage")
	msg.Write([]byte("garbage body"))
	require.NoError(t, msg.Flush(ctx))

	_, err := node.Open(ctx, store, "garbage")
	assert.ErrorIs(t, err, node.ErrCorrupt)
}

func TestMknodThenGetattrReportsEmptyFile(t *testing.T) {
	f := node.NewFile(testmail.New())
	attr := f.Attr()
	assert.False(t, attr.IsDir)
	assert.Equal(t, int64(0), attr.Size)
}

func TestWriteThenReadAtSameOffsetRoundTrips(t *testing.T) {
	ctx := context.Background()
	f := node.NewFile(testmail.New())

	require.NoError(t, f.Write(ctx, []byte("hello")))
	_, err := f.Seek(ctx, 0, mailbox.SeekSet)
	require.NoError(t, err)

	five := 5
	data, err := f.Read(ctx, &five)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, int64(5), f.Size())
}

func TestWriteGapReadsBackPlaceholderBytes(t *testing.T) {
	ctx := context.Background()
	f := node.NewFile(testmail.New())

	_, err := f.Seek(ctx, 10, mailbox.SeekSet)
	require.NoError(t, err)
	require.NoError(t, f.Write(ctx, []byte("abc")))

	_, err = f.Seek(ctx, 0, mailbox.SeekSet)
	require.NoError(t, err)
	n := 13
	data, err := f.Read(ctx, &n)
	require.NoError(t, err)

	assert.Equal(t, bytes.Repeat([]byte{'.'}, 10), data[:10])
	assert.Equal(t, []byte("abc"), data[10:])
}

func TestWriteAcrossBlockBoundaryAllocatesTwoBlocks(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()
	f := node.NewFile(store)

	buf := bytes.Repeat([]byte{0x41}, 300000)
	require.NoError(t, f.Write(ctx, buf))
	assert.Equal(t, int64(300000), f.Size())
	assert.Len(t, descriptorBlocks(t, ctx, store, f), 2)

	_, err := f.Seek(ctx, 262140, mailbox.SeekSet)
	require.NoError(t, err)
	n := 10
	data, err := f.Read(ctx, &n)
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{0x41}, 10), data)
}

func TestSeekEndSubtractsOffsetAtFileLevel(t *testing.T) {
	ctx := context.Background()
	f := node.NewFile(testmail.New())
	require.NoError(t, f.Write(ctx, []byte("0123456789")))

	pos, err := f.Seek(ctx, 3, mailbox.SeekEnd)
	require.NoError(t, err)
	assert.Equal(t, int64(7), pos)
}

func TestTruncateSetsSizeAndReadsEmptyPastIt(t *testing.T) {
	ctx := context.Background()
	f := node.NewFile(testmail.New())
	require.NoError(t, f.Write(ctx, []byte("0123456789")))

	require.NoError(t, f.Truncate(ctx, 4))
	assert.Equal(t, int64(4), f.Size())

	_, err := f.Seek(ctx, 4, mailbox.SeekSet)
	require.NoError(t, err)
	data, err := f.Read(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestTruncateShrinkDeletesBlocksBeyondNewSize(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()
	f := node.NewFile(store)

	buf := bytes.Repeat([]byte{0x41}, 300000)
	require.NoError(t, f.Write(ctx, buf))
	require.NoError(t, f.Flush(ctx))
	upperBlock := descriptorBlocks(t, ctx, store, f)["1"]
	require.NotEmpty(t, upperBlock)

	require.NoError(t, f.Truncate(ctx, 10))
	require.NoError(t, f.Flush(ctx))

	// only block 0's descriptor entry should remain referenced; block 1
	// should have been unlinked and is thus unreadable from the store.
	blocks := descriptorBlocks(t, ctx, store, f)
	assert.Len(t, blocks, 1)
	assert.Contains(t, blocks, "0")
	assert.Equal(t, 0, store.LiveCount(upperBlock))

	reopened, err := node.Open(ctx, store, f.ID())
	require.NoError(t, err)
	rf := reopened.(*node.File)
	assert.Equal(t, int64(10), rf.Size())
}

func TestUnlinkReleasesAllBlocks(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()
	f := node.NewFile(store)

	buf := bytes.Repeat([]byte{0x41}, 300000)
	require.NoError(t, f.Write(ctx, buf))
	require.NoError(t, f.Flush(ctx))
	blocks := descriptorBlocks(t, ctx, store, f)
	require.Len(t, blocks, 2)

	require.NoError(t, f.Delete(ctx))

	_, err := node.Open(ctx, store, f.ID())
	assert.ErrorIs(t, err, mailbox.ErrNotFound)
	for _, subject := range blocks {
		assert.Equal(t, 0, store.LiveCount(subject))
	}
}

// descriptorBlocks flushes f and returns the block index -> block subject
// entries listed in its descriptor as stored in the mail store.
func descriptorBlocks(t *testing.T, ctx context.Context, store *testmail.Fake, f *node.File) map[string]string {
	t.Helper()
	require.NoError(t, f.Flush(ctx))
	msg, err := mailbox.Open(ctx, store, f.ID())
	require.NoError(t, err)

	blocks := make(map[string]string)
	lines := strings.Split(string(msg.Bytes()), "\r\n")
	for _, line := range lines[2:] {
		if parts := strings.SplitN(line, "\t", 2); len(parts) == 2 {
			blocks[parts[0]] = parts[1]
		}
	}
	return blocks
}
