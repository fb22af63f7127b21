// Package worker runs the extraction pipeline for one queued job.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/ReceiptDrop/internal/apperr"
	"github.com/dharsanguruparan/ReceiptDrop/internal/model"
	"github.com/dharsanguruparan/ReceiptDrop/internal/ports"
	"github.com/dharsanguruparan/ReceiptDrop/internal/queue"
	"github.com/dharsanguruparan/ReceiptDrop/internal/receipt"
)

// Deps are the collaborators of Processor.
type Deps struct {
	Store     ports.ExtractionStore
	Objects   ports.ObjectStore
	Cache     ports.ImageCache
	Extractor ports.Extractor
	Notifier  ports.Notifier
	Logger    *slog.Logger
}

// Processor is plugged into the asynq worker loop.
type Processor struct {
	store     ports.ExtractionStore
	objects   ports.ObjectStore
	cache     ports.ImageCache
	extractor ports.Extractor
	notifier  ports.Notifier
	log       *slog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(deps Deps) *Processor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Processor{
		store:     deps.Store,
		objects:   deps.Objects,
		cache:     deps.Cache,
		extractor: deps.Extractor,
		notifier:  deps.Notifier,
		log:       deps.Logger,
	}
}

// Handler registers the process job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.ProcessReceiptTask, p.HandleProcess)
	return mux
}

// HandleProcess runs one attempt. A nil return acknowledges the task; an
// error wrapping asynq.SkipRetry archives it without further attempts. Jobs
// whose record is gone or already final are acknowledged so they leave the
// queue entirely.
func (p *Processor) HandleProcess(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.DecodePayload(task.Payload())
	if err != nil {
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	id := payload.ExtractionID
	attempt := attemptNumber(ctx)
	log := p.log.With("extraction_id", id, "user_id", payload.UserID, "attempt", attempt)

	rec, err := p.store.Get(ctx, id, payload.UserID)
	if errors.Is(err, apperr.ErrNotFound) {
		log.Info("worker.process.gone")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load extraction: %w", err)
	}

	start := time.Now()
	log.Info("worker.process.start")
	err = p.process(ctx, rec, log)
	if err == nil {
		log.Info("worker.process.done", "elapsed_ms", time.Since(start).Milliseconds())
		return nil
	}
	return p.failure(ctx, id, err, log)
}

func (p *Processor) process(ctx context.Context, rec *model.Extraction, log *slog.Logger) error {
	image, err := p.image(ctx, rec, log)
	if err != nil {
		return err
	}

	content, err := p.extractor.Extract(ctx, image)
	if err != nil {
		return err
	}

	result, err := receipt.Parse(content)
	if err != nil {
		return err
	}

	switch r := result.(type) {
	case receipt.Invalid:
		updated, err := p.store.MarkInvalid(ctx, rec.ID, r.Reason)
		if err != nil {
			return err
		}
		log.Info("worker.process.invalid", "reason", r.Reason)
		p.emit(ctx, updated, log)
		p.cache.Delete(ctx, rec.ID)
		return nil
	case receipt.Valid:
		data, err := receipt.Decode(r.Document)
		if err != nil {
			return err
		}
		updated, err := p.store.MarkExtracted(ctx, rec.ID, *data)
		if err != nil {
			return err
		}
		log.Info("worker.process.extracted", "vendor", data.VendorName, "items", len(data.Items), "total", data.Total)
		p.emit(ctx, updated, log)
		p.cache.Delete(ctx, rec.ID)
		return nil
	default:
		return apperr.Parse(fmt.Sprintf("unexpected parse result %T", result), nil)
	}
}

// emit pushes rec with a freshly signed image URL; the stored one may have
// expired while the job waited.
func (p *Processor) emit(ctx context.Context, rec *model.Extraction, log *slog.Logger) {
	if rec.ObjectKey != "" {
		url, err := p.objects.PresignURL(ctx, rec.ObjectKey)
		if err != nil {
			log.Warn("worker.presign_failed", "error", err)
		} else {
			rec.ImageURL = url
		}
	}
	p.notifier.EmitUpdate(ctx, rec)
}

// image reads the cache first and falls back to the object store.
func (p *Processor) image(ctx context.Context, rec *model.Extraction, log *slog.Logger) ([]byte, error) {
	if data, ok := p.cache.Get(ctx, rec.ID); ok {
		log.Debug("worker.image.cache_hit", "bytes", len(data))
		return data, nil
	}
	data, err := p.objects.Download(ctx, rec.ObjectKey)
	if err != nil {
		return nil, err
	}
	log.Debug("worker.image.cache_miss", "bytes", len(data))
	p.cache.Set(ctx, rec.ID, data)
	return data, nil
}

// failure records the attempt as FAILED and returns cause so asynq retries.
// A record that was deleted or already finished is left alone and the task
// is acknowledged.
func (p *Processor) failure(ctx context.Context, id string, cause error, log *slog.Logger) error {
	if settled(cause) {
		log.Info("worker.process.settled", "reason", cause)
		return nil
	}

	ctx = context.WithoutCancel(ctx)
	updated, err := p.store.MarkFailed(ctx, id, cause.Error())
	if err != nil {
		if settled(err) {
			log.Info("worker.process.settled", "reason", err)
			return nil
		}
		log.Error("worker.process.mark_failed_error", "error", err, "cause", cause)
		return fmt.Errorf("%w (mark failed: %v)", cause, err)
	}
	log.Warn("worker.process.failed", "error", cause)
	p.emit(ctx, updated, log)
	p.cache.Delete(ctx, id)
	return cause
}

// ErrorHandler logs every failed attempt and flags the ones that exhausted
// the retry budget.
func (p *Processor) ErrorHandler() asynq.ErrorHandler {
	return asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)
		taskID, _ := asynq.GetTaskID(ctx)
		if errors.Is(err, asynq.SkipRetry) || retried >= maxRetry {
			p.log.Error("worker.task.archived", "task_id", taskID, "type", task.Type(), "retried", retried, "error", err)
			return
		}
		p.log.Warn("worker.task.retry_scheduled", "task_id", taskID, "type", task.Type(), "retried", retried, "max_retry", maxRetry, "error", err)
	})
}

// settled reports whether err means the record is gone or already final. A
// missing stored object is a storage fault, not a missing record.
func settled(err error) bool {
	if errors.Is(err, apperr.ErrInvalidTransition) {
		return true
	}
	return errors.Is(err, apperr.ErrNotFound) && !errors.Is(err, apperr.ErrStorage)
}

func attemptNumber(ctx context.Context) int {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return 1
	}
	return retried + 1
}
