package extraction

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/mock/gomock"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/mocks"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/processing"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
	"github.com/dharsanguruparan/ReceiptDrop/internal/repository"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)

// inlineDispatcher runs the hand-off on the caller's goroutine.
type inlineDispatcher struct {
	err error
}

func (d inlineDispatcher) Submit(job processing.Job) error {
	if d.err != nil {
		return d.err
	}
	_ = job.Run(context.Background())
	return nil
}

type recordingNotifier struct {
	mu      sync.Mutex
	updates []*model.Extraction
}

func (n *recordingNotifier) EmitUpdate(_ context.Context, e *model.Extraction) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, e.Clone())
}

func (n *recordingNotifier) statuses() []model.Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]model.Status, 0, len(n.updates))
	for _, u := range n.updates {
		out = append(out, u.Status)
	}
	return out
}

type fixture struct {
	svc      *Service
	store    *repository.MemoryStore
	objects  *mocks.MockObjectStore
	cache    *mocks.MockImageCache
	jobs     *mocks.MockJobQueue
	notifier *recordingNotifier
}

func newFixture(t *testing.T, dispatcher Dispatcher) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{
		store:    repository.NewMemoryStore(),
		objects:  mocks.NewMockObjectStore(ctrl),
		cache:    mocks.NewMockImageCache(ctrl),
		jobs:     mocks.NewMockJobQueue(ctrl),
		notifier: &recordingNotifier{},
	}
	if dispatcher == nil {
		dispatcher = inlineDispatcher{}
	}
	seq := 0
	f.svc = NewService(Deps{
		Store:      f.store,
		Objects:    f.objects,
		Cache:      f.cache,
		Jobs:       f.jobs,
		Notifier:   f.notifier,
		Dispatcher: dispatcher,
		NewID: func() string {
			seq++
			return fmt.Sprintf("ext-%d", seq)
		},
	}, Options{MaxBytes: 1024, KeyPrefix: "receipts"})
	return f
}

func TestCreate_HandsOffAndReturnsExtracting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	key := "receipts/alice/ext-1-receipt.png"
	f.objects.EXPECT().Upload(gomock.Any(), key, pngBytes, "image/png").Return(nil)
	f.objects.EXPECT().PresignURL(gomock.Any(), key).Return("https://signed/1", nil)
	f.cache.EXPECT().Set(gomock.Any(), "ext-1", pngBytes)
	f.jobs.EXPECT().
		Enqueue(gomock.Any(), queue.Payload{ExtractionID: "ext-1", Filename: "receipt.png", UserID: "alice"}).
		Return("ext-1", nil)

	out, err := f.svc.Create(ctx, Upload{UserID: "alice", Filename: "receipt.png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, &Created{ID: "ext-1", ImageURL: "https://signed/1", Filename: "receipt.png", Status: model.StatusExtracting}, out)

	rec, err := f.store.Get(ctx, "ext-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracting, rec.Status)
	assert.Equal(t, key, rec.ObjectKey)
	assert.Equal(t, []model.Status{model.StatusExtracting}, f.notifier.statuses())

	_, err = f.store.Get(ctx, "ext-1", "bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCreate_RejectsBeforePersisting(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	cases := []struct {
		name string
		up   Upload
		kind error
	}{
		{"no user", Upload{Filename: "a.png", Data: pngBytes}, apperr.ErrValidation},
		{"empty file", Upload{UserID: "alice", Filename: "a.png"}, apperr.ErrValidation},
		{"not an image", Upload{UserID: "alice", Filename: "a.pdf", Data: []byte("%PDF-1.7 hello")}, apperr.ErrValidation},
		{"too large", Upload{UserID: "alice", Filename: "a.png", Data: append(pngBytes, make([]byte, 2048)...)}, apperr.ErrTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.up)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)
		})
	}

	recs, err := f.store.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCreate_UploadFailurePersistsNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.objects.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(apperr.Storage("upload object", errors.New("connection refused")))

	_, err := f.svc.Create(context.Background(), Upload{UserID: "alice", Filename: "r.png", Data: pngBytes})
	assert.ErrorIs(t, err, apperr.ErrStorage)

	recs, _ := f.store.List(context.Background(), "alice")
	assert.Empty(t, recs)
}

func TestCreate_EnqueueFailureRecordsFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.objects.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.objects.EXPECT().PresignURL(gomock.Any(), gomock.Any()).Return("https://signed/1", nil)
	f.cache.EXPECT().Set(gomock.Any(), "ext-1", gomock.Any())
	f.jobs.EXPECT().Enqueue(gomock.Any(), gomock.Any()).Return("", errors.New("redis down"))

	out, err := f.svc.Create(context.Background(), Upload{UserID: "alice", Filename: "r.png", Data: pngBytes})
	require.NoError(t, err)
	assert.Equal(t, model.StatusExtracting, out.Status)

	rec, err := f.store.Get(context.Background(), "ext-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	require.NotNil(t, rec.FailureReason)
	assert.Equal(t, "enqueue failed: redis down", *rec.FailureReason)
	assert.Equal(t, []model.Status{model.StatusFailed}, f.notifier.statuses())
}

func TestCreate_FullDispatcherRecordsFailed(t *testing.T) {
	f := newFixture(t, inlineDispatcher{err: processing.ErrQueueFull})
	f.objects.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.objects.EXPECT().PresignURL(gomock.Any(), gomock.Any()).Return("https://signed/1", nil)

	_, err := f.svc.Create(context.Background(), Upload{UserID: "alice", Filename: "r.png", Data: pngBytes})
	require.NoError(t, err)

	rec, err := f.store.Get(context.Background(), "ext-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, rec.Status)
	assert.Equal(t, "processing queue full", *rec.FailureReason)
}

func TestCreate_WorkerFinishedBeforeHandOffIsKept(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.objects.EXPECT().Upload(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.objects.EXPECT().PresignURL(gomock.Any(), gomock.Any()).Return("https://signed/1", nil)
	f.cache.EXPECT().Set(gomock.Any(), "ext-1", gomock.Any())
	f.jobs.EXPECT().Enqueue(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, p queue.Payload) (string, error) {
		_, err := f.store.MarkInvalid(ctx, p.ExtractionID, "not a receipt")
		return p.ExtractionID, err
	})

	_, err := f.svc.Create(ctx, Upload{UserID: "alice", Filename: "r.png", Data: pngBytes})
	require.NoError(t, err)

	rec, err := f.store.Get(ctx, "ext-1", "alice")
	require.NoError(t, err)
	assert.Equal(t, model.StatusInvalid, rec.Status)
	assert.Empty(t, f.notifier.statuses())
}

func TestListAndGet_ResignURLs(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, f.store.Create(ctx, &model.Extraction{ID: id, UserID: "alice", ObjectKey: "receipts/alice/" + id, ImageURL: "stale"}))
	}
	f.objects.EXPECT().PresignURL(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, key string) (string, error) {
		return "https://fresh/" + key, nil
	}).Times(3)

	recs, err := f.svc.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	for _, rec := range recs {
		assert.Equal(t, "https://fresh/"+rec.ObjectKey, rec.ImageURL)
	}

	rec, err := f.svc.Get(ctx, "a", "alice")
	require.NoError(t, err)
	assert.Equal(t, "https://fresh/receipts/alice/a", rec.ImageURL)

	_, err = f.svc.Get(ctx, "a", "bob")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete_CancelsActiveJobAndRemovesEverything(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &model.Extraction{ID: "x1", UserID: "alice", ObjectKey: "receipts/alice/x1-r.png"}))
	_, err := f.store.MarkExtracting(ctx, "x1")
	require.NoError(t, err)

	gomock.InOrder(
		f.jobs.EXPECT().Cancel(gomock.Any(), "x1").
			Return(&queue.Located{Partition: queue.PartitionActive, Queue: "extractions", TaskID: "x1"}, nil),
		f.objects.EXPECT().Delete(gomock.Any(), "receipts/alice/x1-r.png").Return(nil),
		f.cache.EXPECT().Delete(gomock.Any(), "x1"),
	)

	require.NoError(t, f.svc.Delete(ctx, "x1", "alice"))

	_, err = f.svc.Get(ctx, "x1", "alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete_BestEffortCleanup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &model.Extraction{ID: "x1", UserID: "alice", ObjectKey: "k"}))

	f.jobs.EXPECT().Cancel(gomock.Any(), "x1").Return(nil, errors.New("inspector down"))
	f.objects.EXPECT().Delete(gomock.Any(), "k").Return(apperr.Storage("delete object", errors.New("timeout")))
	f.cache.EXPECT().Delete(gomock.Any(), "x1")

	require.NoError(t, f.svc.Delete(ctx, "x1", "alice"))
	_, err := f.store.Get(ctx, "x1", "alice")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete_MissingOrForeignIsNoop(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &model.Extraction{ID: "x1", UserID: "alice", ObjectKey: "k"}))

	require.NoError(t, f.svc.Delete(ctx, "missing", "alice"))
	require.NoError(t, f.svc.Delete(ctx, "x1", "bob"))

	_, err := f.store.Get(ctx, "x1", "alice")
	assert.NoError(t, err)
}

func TestExport_WritesExtractedReceipts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.store.Create(ctx, &model.Extraction{ID: "done", UserID: "alice", Filename: "stop.jpg"}))
	require.NoError(t, f.store.Create(ctx, &model.Extraction{ID: "pending", UserID: "alice", Filename: "p.jpg"}))
	_, err := f.store.MarkExtracted(ctx, "done", model.ReceiptData{
		Date: "2021-03-26", Currency: "USD", VendorName: "STOP&SHOP",
		Items: []model.ReceiptItem{{Name: "BANANAS", Quantity: 2, Cost: 0.5}, {Name: "MILK", Quantity: 1, Cost: 3.49}},
		Tax:   0.42, Total: 17.17,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := f.svc.Export(ctx, "alice", &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	rows, err := wb.GetRows(receiptsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "ID", rows[0][0])
	assert.Equal(t, []string{"done", "stop.jpg", "2021-03-26", "STOP&SHOP", "USD", "2", "0.42", "17.17"}, rows[1][:8])

	items, err := wb.GetRows(itemsSheet)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "BANANAS", items[1][2])
	assert.Equal(t, "2", items[1][3])
	assert.Equal(t, "MILK", items[2][2])
}
