// Package extraction accepts receipt uploads and owns their lifecycle up to
// the point where the worker takes over.
package extraction

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
	"github.com/dharsanguruparan/ReceiptDrop/internal/processing"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
	"github.com/dharsanguruparan/ReceiptDrop/internal/s3storage"
)

const signConcurrency = 8

// Dispatcher runs hand-off jobs off the request path.
type Dispatcher interface {
	Submit(job processing.Job) error
}

// Upload is one file received from a client.
type Upload struct {
	UserID   string
	Filename string
	Data     []byte
}

// Created is returned to the uploader before the hand-off completes.
type Created struct {
	ID       string       `json:"id"`
	ImageURL string       `json:"imageUrl"`
	Filename string       `json:"filename"`
	Status   model.Status `json:"status"`
}

// Deps are the collaborators of Service. NewID defaults to uuid v4.
type Deps struct {
	Store      ports.ExtractionStore
	Objects    ports.ObjectStore
	Cache      ports.ImageCache
	Jobs       ports.JobQueue
	Notifier   ports.Notifier
	Dispatcher Dispatcher
	NewID      func() string
	Logger     *slog.Logger
}

// Options bound what Create accepts and where images are stored.
type Options struct {
	MaxBytes     int64
	AllowedTypes []string
	KeyPrefix    string
}

type Service struct {
	store      ports.ExtractionStore
	objects    ports.ObjectStore
	cache      ports.ImageCache
	jobs       ports.JobQueue
	notifier   ports.Notifier
	dispatcher Dispatcher
	newID      func() string
	opts       Options
	log        *slog.Logger
}

func NewService(deps Deps, opts Options) *Service {
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if len(opts.AllowedTypes) == 0 {
		opts.AllowedTypes = []string{"image/jpeg", "image/png", "image/webp"}
	}
	return &Service{
		store:      deps.Store,
		objects:    deps.Objects,
		cache:      deps.Cache,
		jobs:       deps.Jobs,
		notifier:   deps.Notifier,
		dispatcher: deps.Dispatcher,
		newID:      deps.NewID,
		opts:       opts,
		log:        deps.Logger,
	}
}

// Create stores the image, records the extraction as SUBMITTING and hands
// the rest to the dispatcher. The caller sees EXTRACTING immediately.
func (s *Service) Create(ctx context.Context, up Upload) (*Created, error) {
	contentType, err := s.validate(up)
	if err != nil {
		return nil, err
	}

	id := s.newID()
	key := s3storage.ObjectKey(s.opts.KeyPrefix, up.UserID, id, up.Filename)
	if err := s.objects.Upload(ctx, key, up.Data, contentType); err != nil {
		return nil, err
	}
	url, err := s.objects.PresignURL(ctx, key)
	if err != nil {
		s.removeObject(ctx, id, key)
		return nil, err
	}

	rec := &model.Extraction{
		ID:        id,
		UserID:    up.UserID,
		Filename:  up.Filename,
		ObjectKey: key,
		ImageURL:  url,
		Status:    model.StatusSubmitting,
	}
	if err := s.store.Create(ctx, rec); err != nil {
		s.removeObject(ctx, id, key)
		return nil, err
	}
	s.log.Info("extraction.created", "extraction_id", id, "user_id", up.UserID, "bytes", len(up.Data), "content_type", contentType)

	payload := queue.Payload{ExtractionID: id, Filename: up.Filename, UserID: up.UserID}
	job := processing.Job{
		Key: id,
		Run: func(ctx context.Context) error { return s.handOff(ctx, payload, up.Data) },
	}
	if err := s.dispatcher.Submit(job); err != nil {
		reason := "processing queue full"
		if errors.Is(err, processing.ErrStopped) {
			reason = "processing stopped"
		}
		s.fail(ctx, id, reason)
	}

	return &Created{
		ID:       id,
		ImageURL: url,
		Filename: up.Filename,
		Status:   model.StatusExtracting,
	}, nil
}

func (s *Service) validate(up Upload) (string, error) {
	if up.UserID == "" {
		return "", apperr.Validation("user id is required")
	}
	if len(up.Data) == 0 {
		return "", apperr.Validation("file is required")
	}
	if s.opts.MaxBytes > 0 && int64(len(up.Data)) > s.opts.MaxBytes {
		return "", apperr.TooLarge(s.opts.MaxBytes)
	}
	contentType := http.DetectContentType(up.Data)
	if !slices.Contains(s.opts.AllowedTypes, contentType) {
		return "", apperr.Validation("unsupported file type: " + contentType)
	}
	return contentType, nil
}

// handOff caches the bytes for the worker, enqueues the job and only then
// moves the record to EXTRACTING.
func (s *Service) handOff(ctx context.Context, payload queue.Payload, data []byte) error {
	id := payload.ExtractionID
	s.cache.Set(ctx, id, data)

	taskID, err := s.jobs.Enqueue(ctx, payload)
	if err != nil {
		s.fail(ctx, id, "enqueue failed: "+err.Error())
		return err
	}

	rec, err := s.store.MarkExtracting(ctx, id)
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrInvalidTransition):
		// Deleted meanwhile, or the worker already finished.
		s.log.Debug("extraction.handoff.skipped", "extraction_id", id, "reason", err)
		return nil
	case err != nil:
		return err
	}
	s.log.Info("extraction.enqueued", "extraction_id", id, "task_id", taskID)
	s.notifier.EmitUpdate(ctx, rec)
	return nil
}

func (s *Service) fail(ctx context.Context, id, reason string) {
	ctx = context.WithoutCancel(ctx)
	rec, err := s.store.MarkFailed(ctx, id, reason)
	if err != nil {
		s.log.Error("extraction.mark_failed_error", "extraction_id", id, "reason", reason, "error", err)
		return
	}
	s.log.Warn("extraction.failed", "extraction_id", id, "reason", reason)
	s.notifier.EmitUpdate(ctx, rec)
}

func (s *Service) removeObject(ctx context.Context, id, key string) {
	if err := s.objects.Delete(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn("extraction.object_cleanup_failed", "extraction_id", id, "key", key, "error", err)
	}
}

// List returns the user's extractions newest first with fresh image URLs.
func (s *Service) List(ctx context.Context, userID string) ([]*model.Extraction, error) {
	recs, err := s.store.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(signConcurrency)
	for _, rec := range recs {
		g.Go(func() error {
			s.resign(gctx, rec)
			return nil
		})
	}
	_ = g.Wait()
	return recs, nil
}

// Get returns one extraction owned by userID.
func (s *Service) Get(ctx context.Context, id, userID string) (*model.Extraction, error) {
	rec, err := s.store.Get(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	s.resign(ctx, rec)
	return rec, nil
}

// resign keeps the stored URL when signing fails.
func (s *Service) resign(ctx context.Context, rec *model.Extraction) {
	if rec.ObjectKey == "" {
		return
	}
	url, err := s.objects.PresignURL(ctx, rec.ObjectKey)
	if err != nil {
		s.log.Warn("extraction.presign_failed", "extraction_id", rec.ID, "error", err)
		return
	}
	rec.ImageURL = url
}

// Delete removes an extraction and everything hanging off it. Unknown or
// foreign ids are a no-op.
func (s *Service) Delete(ctx context.Context, id, userID string) error {
	rec, err := s.store.Get(ctx, id, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	loc, err := s.jobs.Cancel(ctx, id)
	if err != nil {
		s.log.Warn("extraction.delete.cancel_failed", "extraction_id", id, "error", err)
	} else if loc != nil {
		s.log.Info("extraction.delete.job_removed", "extraction_id", id, "partition", loc.Partition.String(), "task_id", loc.TaskID)
	}

	if rec.ObjectKey != "" {
		s.removeObject(ctx, id, rec.ObjectKey)
	}
	s.cache.Delete(ctx, id)

	if _, err := s.store.Delete(ctx, id, userID); err != nil {
		return err
	}
	s.log.Info("extraction.deleted", "extraction_id", id, "user_id", userID, "status", string(rec.Status))
	return nil
}
