package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
)

func sampleData() model.ReceiptData {
	return model.ReceiptData{
		Date:       "2021-03-26",
		Currency:   "USD",
		VendorName: "STOP&SHOP",
		Items: []model.ReceiptItem{
			{Name: "HALLMARK CARD", Quantity: 1, Cost: 2.00},
			{Name: "HALLMARK CARD", Quantity: 1, Cost: 3.79},
		},
		Tax:   0.42,
		Total: 17.17,
	}
}

// storeContract runs the same lifecycle checks against any ExtractionStore.
func storeContract(t *testing.T, store ports.ExtractionStore, newID func() string) {
	ctx := context.Background()

	t.Run("create and scoped get", func(t *testing.T) {
		id := newID()
		e := &model.Extraction{ID: id, UserID: "alice", Filename: "r.jpg", ObjectKey: "receipts/alice/" + id + "-r.jpg", ImageURL: "http://img"}
		require.NoError(t, store.Create(ctx, e))
		assert.Equal(t, model.StatusSubmitting, e.Status)

		got, err := store.Get(ctx, id, "alice")
		require.NoError(t, err)
		assert.Equal(t, "r.jpg", got.Filename)
		assert.Equal(t, model.StatusSubmitting, got.Status)
		assert.Nil(t, got.Total)
		assert.Nil(t, got.FailureReason)

		_, err = store.Get(ctx, id, "bob")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("happy path", func(t *testing.T) {
		id := newID()
		require.NoError(t, store.Create(ctx, &model.Extraction{ID: id, UserID: "alice", Filename: "r.jpg", ObjectKey: "k", ImageURL: "u"}))

		e, err := store.MarkExtracting(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, model.StatusExtracting, e.Status)

		e, err = store.MarkExtracted(ctx, id, sampleData())
		require.NoError(t, err)
		assert.Equal(t, model.StatusExtracted, e.Status)
		require.NotNil(t, e.Date)
		assert.Equal(t, "2021-03-26", *e.Date)
		assert.InDelta(t, 17.17, *e.Total, 0.001)
		assert.Len(t, e.Items, 2)
		assert.Nil(t, e.FailureReason)

		_, err = store.MarkFailed(ctx, id, "late failure")
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
		_, err = store.MarkExtracting(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})

	t.Run("failed can be retried to success", func(t *testing.T) {
		id := newID()
		require.NoError(t, store.Create(ctx, &model.Extraction{ID: id, UserID: "alice", Filename: "r.jpg", ObjectKey: "k", ImageURL: "u"}))
		_, err := store.MarkExtracting(ctx, id)
		require.NoError(t, err)

		e, err := store.MarkFailed(ctx, id, "model timeout")
		require.NoError(t, err)
		assert.Equal(t, "model timeout", *e.FailureReason)

		e, err = store.MarkFailed(ctx, id, "model timeout again")
		require.NoError(t, err)
		assert.Equal(t, "model timeout again", *e.FailureReason)

		_, err = store.MarkExtracting(ctx, id)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)

		e, err = store.MarkExtracted(ctx, id, sampleData())
		require.NoError(t, err)
		assert.Equal(t, model.StatusExtracted, e.Status)
		assert.Nil(t, e.FailureReason)
	})

	t.Run("invalid is terminal", func(t *testing.T) {
		id := newID()
		require.NoError(t, store.Create(ctx, &model.Extraction{ID: id, UserID: "alice", Filename: "r.jpg", ObjectKey: "k", ImageURL: "u"}))
		e, err := store.MarkInvalid(ctx, id, "Image unreadable")
		require.NoError(t, err)
		assert.Equal(t, model.StatusInvalid, e.Status)

		_, err = store.MarkExtracted(ctx, id, sampleData())
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})

	t.Run("updates to a deleted id are no-ops", func(t *testing.T) {
		id := newID()
		require.NoError(t, store.Create(ctx, &model.Extraction{ID: id, UserID: "alice", Filename: "r.jpg", ObjectKey: "k", ImageURL: "u"}))

		ok, err := store.Delete(ctx, id, "bob")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.Delete(ctx, id, "alice")
		require.NoError(t, err)
		assert.True(t, ok)

		_, err = store.MarkFailed(ctx, id, "boom")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		_, err = store.Get(ctx, id, "alice")
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		ok, err = store.Delete(ctx, id, "alice")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	n := 0
	storeContract(t, NewMemoryStore(), func() string {
		n++
		return "ext-" + string(rune('a'+n))
	})
}

func TestMemoryStore_ListNewestFirstAndScoped(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	store.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, id := range []string{"first", "second", "third"} {
		require.NoError(t, store.Create(ctx, &model.Extraction{ID: id, UserID: "alice"}))
	}
	require.NoError(t, store.Create(ctx, &model.Extraction{ID: "other", UserID: "bob"}))

	list, err := store.List(ctx, "alice")
	require.NoError(t, err)
	ids := make([]string, 0, len(list))
	for _, e := range list {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"third", "second", "first"}, ids)

	empty, err := store.List(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := &model.Extraction{ID: "x", UserID: "alice", Filename: "a.jpg"}
	require.NoError(t, store.Create(ctx, e))
	e.Filename = "mutated"

	got, err := store.Get(ctx, "x", "alice")
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", got.Filename)
}
