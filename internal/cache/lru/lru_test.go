package lru_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waweber/imapfs/internal/cache/lru"
)

type testData struct {
	value int64
	size  uint64
}

func (td testData) Size() uint64 { return td.size }

func TestLookUpInEmptyCache(t *testing.T) {
	c := lru.New(50)
	assert.Nil(t, c.LookUp("taco"))
}

func TestInsertNilValue(t *testing.T) {
	c := lru.New(50)
	evicted, err := c.Insert("taco", nil)
	require.EqualError(t, err, lru.InvalidEntryErrorMsg)
	assert.Empty(t, evicted)
}

func TestFillUpToCapacity(t *testing.T) {
	c := lru.New(50)
	_, err := c.Insert("burrito", testData{value: 23, size: 4})
	require.NoError(t, err)
	_, err = c.Insert("taco", testData{value: 26, size: 20})
	require.NoError(t, err)
	_, err = c.Insert("enchilada", testData{value: 28, size: 26})
	require.NoError(t, err)

	assert.Equal(t, int64(23), c.LookUp("burrito").(testData).value)
	assert.Equal(t, int64(26), c.LookUp("taco").(testData).value)
	assert.Equal(t, int64(28), c.LookUp("enchilada").(testData).value)
}

func TestExpiresLeastRecentlyUsed(t *testing.T) {
	c := lru.New(50)
	mustInsert(t, &c, "burrito", testData{value: 23, size: 4})
	mustInsert(t, &c, "taco", testData{value: 26, size: 20})
	mustInsert(t, &c, "enchilada", testData{value: 28, size: 26})

	require.Equal(t, int64(23), c.LookUp("burrito").(testData).value)

	evicted, err := c.Insert("queso", testData{value: 34, size: 5})
	require.NoError(t, err)
	require.Len(t, evicted, 1)
	assert.Equal(t, int64(26), evicted[0].(testData).value)

	assert.Nil(t, c.LookUp("taco"))
	assert.Equal(t, int64(23), c.LookUp("burrito").(testData).value)
	assert.Equal(t, int64(34), c.LookUp("queso").(testData).value)
}

func TestEntryLargerThanCacheIsRejected(t *testing.T) {
	c := lru.New(50)
	mustInsert(t, &c, "burrito", testData{value: 23, size: 4})

	_, err := c.Insert("taco", testData{value: 26, size: 51})
	require.EqualError(t, err, lru.InvalidEntrySizeErrorMsg)
	assert.Equal(t, int64(23), c.LookUp("burrito").(testData).value)
}

func TestEraseRemovesEntry(t *testing.T) {
	c := lru.New(50)
	mustInsert(t, &c, "burrito", testData{value: 23, size: 4})

	deleted := c.Erase("burrito")
	require.NotNil(t, deleted)
	assert.Equal(t, int64(23), deleted.(testData).value)
	assert.Nil(t, c.LookUp("burrito"))
}

func TestEraseWhenKeyNotPresentIsANoOp(t *testing.T) {
	c := lru.New(50)
	mustInsert(t, &c, "burrito", testData{value: 23, size: 4})

	assert.Nil(t, c.Erase("taco"))
	c.CheckInvariants()
}

func mustInsert(t *testing.T, c *lru.Cache, key string, value lru.ValueType) {
	t.Helper()
	_, err := c.Insert(key, value)
	require.NoError(t, err)
	c.CheckInvariants()
}
