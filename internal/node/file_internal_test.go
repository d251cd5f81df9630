package node

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waweber/imapfs/internal/testmail"
)

func TestDeleteUnlinksEveryBlockSubject(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()
	f := NewFile(store)

	require.NoError(t, f.Write(ctx, bytes.Repeat([]byte{0x41}, 300000)))
	require.NoError(t, f.Flush(ctx))
	require.Len(t, f.blocks, 2)

	blockSubjects := make([]string, 0, len(f.blocks))
	for _, id := range f.blocks {
		blockSubjects = append(blockSubjects, id)
	}

	require.NoError(t, f.Delete(ctx))

	for _, subject := range blockSubjects {
		assert.Equal(t, 0, store.LiveCount(subject))
	}
}

func TestTruncateShrinkActuallyUnlinksUpperBlock(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()
	f := NewFile(store)

	require.NoError(t, f.Write(ctx, bytes.Repeat([]byte{0x41}, 300000)))
	require.NoError(t, f.Flush(ctx))
	require.Len(t, f.blocks, 2)

	upperBlockSubject := f.blocks[1]

	require.NoError(t, f.Truncate(ctx, 10))
	require.NoError(t, f.Flush(ctx))

	assert.Len(t, f.blocks, 1)
	assert.Equal(t, 0, store.LiveCount(upperBlockSubject))
}

func TestOpenBlockCachesResidentMessage(t *testing.T) {
	ctx := context.Background()
	f := NewFile(testmail.New())

	msg1, err := f.openBlock(ctx, 0)
	require.NoError(t, err)
	msg2, err := f.openBlock(ctx, 0)
	require.NoError(t, err)
	assert.Same(t, msg1, msg2)
}

func TestEvictBlockClosesAndForgets(t *testing.T) {
	ctx := context.Background()
	store := testmail.New()
	f := NewFile(store)

	_, err := f.openBlock(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, f.evictBlock(ctx, 0))

	_, stillOpen := f.openBlocks[0]
	assert.False(t, stillOpen)
}
