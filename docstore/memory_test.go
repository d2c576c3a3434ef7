package docstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rukun/jimpitan-engine/docstore"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testDoc struct {
	Name  string `json:"name"`
	Owner string `json:"owner"`
	Count int    `json:"count"`
}

// =============================================================================
// CRUD TESTS
// =============================================================================

func TestMemory_SetGetRoundTrip(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	in := testDoc{Name: "pos-1", Owner: "rt-02", Count: 3}
	require.NoError(t, store.Set(ctx, "posts/pos-1", in))

	var out testDoc
	require.NoError(t, store.Get(ctx, "posts/pos-1", &out))
	assert.Equal(t, in, out)
}

func TestMemory_GetMissing_NotFound(t *testing.T) {
	store := docstore.NewMemory()

	var out testDoc
	err := store.Get(context.Background(), "posts/nope", &out)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMemory_Update_MergesTopLevelFields(t *testing.T) {
	// GIVEN: A stored document
	// WHEN: A single top-level field is updated
	// THEN: That field changes; the others are untouched

	store := docstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "posts/pos-1", testDoc{Name: "pos-1", Owner: "rt-02", Count: 3}))
	require.NoError(t, store.Update(ctx, "posts/pos-1", map[string]any{"count": 9}))

	var out testDoc
	require.NoError(t, store.Get(ctx, "posts/pos-1", &out))
	assert.Equal(t, 9, out.Count)
	assert.Equal(t, "rt-02", out.Owner)
}

func TestMemory_UpdateMissing_NotFound(t *testing.T) {
	store := docstore.NewMemory()
	err := store.Update(context.Background(), "posts/nope", map[string]any{"count": 1})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestMemory_DeleteMissing_NoOp(t *testing.T) {
	store := docstore.NewMemory()
	assert.NoError(t, store.Delete(context.Background(), "posts/nope"))
}

// =============================================================================
// QUERY AND LIST TESTS
// =============================================================================

func TestMemory_QueryEq_MatchesTopLevelField(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "posts/a", testDoc{Name: "a", Owner: "rt-02"}))
	require.NoError(t, store.Set(ctx, "posts/b", testDoc{Name: "b", Owner: "rt-05"}))
	require.NoError(t, store.Set(ctx, "posts/c", testDoc{Name: "c", Owner: "rt-02"}))

	raws, err := store.QueryEq(ctx, "posts", "owner", "rt-02")
	require.NoError(t, err)

	docs, err := docstore.DecodeAll[testDoc](raws)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
	for _, d := range docs {
		assert.Equal(t, "rt-02", d.Owner)
	}
}

func TestMemory_List_DirectMembersOnly(t *testing.T) {
	// GIVEN: Documents in a collection and in one of its subcollections
	// WHEN: Listing the parent collection
	// THEN: Subcollection documents are not included

	store := docstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "timelines/t1", testDoc{Name: "t1"}))
	require.NoError(t, store.Set(ctx, "timelines/t1/payments/p1", testDoc{Name: "p1"}))

	raws, err := store.List(ctx, "timelines")
	require.NoError(t, err)
	require.Len(t, raws, 1)

	nested, err := store.List(ctx, "timelines/t1/payments")
	require.NoError(t, err)
	assert.Len(t, nested, 1)
}

// =============================================================================
// BATCH ATOMICITY TESTS
// =============================================================================

func TestMemory_BatchWrite_AllOrNothing(t *testing.T) {
	// GIVEN: A batch whose final op updates a missing document
	// WHEN: The batch is applied
	// THEN: It fails, and the earlier set is rolled back

	store := docstore.NewMemory()
	ctx := context.Background()

	err := store.BatchWrite(ctx, []docstore.Op{
		docstore.SetOp("posts/a", testDoc{Name: "a"}),
		docstore.UpdateOp("posts/missing", map[string]any{"count": 1}),
	})
	require.ErrorIs(t, err, docstore.ErrNotFound)

	var out testDoc
	assert.ErrorIs(t, store.Get(ctx, "posts/a", &out), docstore.ErrNotFound,
		"set from the failed batch must not persist")
	assert.Equal(t, 0, store.Len())
}

func TestMemory_BatchWrite_MixedOps(t *testing.T) {
	store := docstore.NewMemory()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "posts/old", testDoc{Name: "old"}))
	require.NoError(t, store.Set(ctx, "posts/keep", testDoc{Name: "keep", Count: 1}))

	err := store.BatchWrite(ctx, []docstore.Op{
		docstore.SetOp("posts/new", testDoc{Name: "new"}),
		docstore.UpdateOp("posts/keep", map[string]any{"count": 2}),
		docstore.DeleteOp("posts/old"),
	})
	require.NoError(t, err)

	var out testDoc
	assert.NoError(t, store.Get(ctx, "posts/new", &out))
	assert.ErrorIs(t, store.Get(ctx, "posts/old", &out), docstore.ErrNotFound)
	require.NoError(t, store.Get(ctx, "posts/keep", &out))
	assert.Equal(t, 2, out.Count)
}

// =============================================================================
// PATH HELPER TESTS
// =============================================================================

func TestSplitPath(t *testing.T) {
	coll, id, err := docstore.SplitPath("timelines/t1/payments/r1_period_2")
	require.NoError(t, err)
	assert.Equal(t, "timelines/t1/payments", coll)
	assert.Equal(t, "r1_period_2", id)

	for _, bad := range []string{"", "noslash", "/leading", "trailing/"} {
		_, _, err := docstore.SplitPath(bad)
		assert.ErrorIs(t, err, docstore.ErrInvalidPath, "path %q", bad)
	}
}
