package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// ProcessReceiptTask is scheduled once per extraction after upload.
	ProcessReceiptTask = "receipt:process"
)

// Payload is serialized into the task payload so the worker knows which
// extraction and image to process.
type Payload struct {
	ExtractionID string `json:"extractionId"`
	Filename     string `json:"filename"`
	UserID       string `json:"userId"`
}

// DecodePayload reads a task payload.
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	if p.ExtractionID == "" {
		return Payload{}, fmt.Errorf("decode payload: missing extractionId")
	}
	return p, nil
}

// Options configures Client.
type Options struct {
	Queue     string
	MaxRetry  int
	Retention time.Duration
	// CancelWait bounds how long Cancel waits for a cancelled active job to
	// leave the worker before removing it.
	CancelWait time.Duration
	// CancelPoll is the interval between lookups while waiting.
	CancelPoll time.Duration
}

const (
	defaultCancelWait = 3 * time.Second
	defaultCancelPoll = 100 * time.Millisecond
)

// Client enqueues extraction jobs and finds them again for cancellation.
type Client struct {
	client    *asynq.Client
	inspector Inspector
	opts      Options
}

// NewClient wraps an asynq client and inspector. inspector may be nil when
// the caller never cancels.
func NewClient(client *asynq.Client, inspector Inspector, opts Options) *Client {
	if opts.Queue == "" {
		opts.Queue = "default"
	}
	if opts.CancelWait <= 0 {
		opts.CancelWait = defaultCancelWait
	}
	if opts.CancelPoll <= 0 {
		opts.CancelPoll = defaultCancelPoll
	}
	return &Client{client: client, inspector: inspector, opts: opts}
}

// Enqueue schedules one extraction job and returns its task id. The task id
// is the extraction id, so a second enqueue for the same extraction conflicts.
func (c *Client) Enqueue(ctx context.Context, payload Payload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(ProcessReceiptTask, data)
	opts := []asynq.Option{
		asynq.Queue(c.opts.Queue),
		asynq.MaxRetry(c.opts.MaxRetry),
		asynq.TaskID(payload.ExtractionID),
	}
	if c.opts.Retention > 0 {
		opts = append(opts, asynq.Retention(c.opts.Retention))
	}
	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return "", fmt.Errorf("enqueue process task: %w", err)
	}
	return info.ID, nil
}

// Cancel finds the job for extractionID and neutralizes it. A cancelled
// active job is followed until asynq parks it, then deleted, so it ends up
// in no listing. It returns nil when no job exists in any partition.
func (c *Client) Cancel(ctx context.Context, extractionID string) (*Located, error) {
	if c.inspector == nil {
		return nil, fmt.Errorf("cancel job: no inspector configured")
	}
	loc, err := Locate(ctx, c.inspector, c.opts.Queue, extractionID)
	if err != nil || loc == nil {
		return nil, err
	}
	if err := Neutralize(c.inspector, loc); err != nil {
		return loc, err
	}
	if loc.Partition == PartitionActive {
		if err := Settle(ctx, c.inspector, c.opts.Queue, extractionID, c.opts.CancelWait, c.opts.CancelPoll); err != nil {
			return loc, fmt.Errorf("settle cancelled task %s: %w", loc.TaskID, err)
		}
	}
	return loc, nil
}

// RetryDelay returns an exponential backoff func: base, 2*base, 4*base...
// asynq passes the number of retries already made, starting at 0.
func RetryDelay(base time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		if n < 0 {
			n = 0
		}
		if n > 16 {
			n = 16
		}
		return base << uint(n)
	}
}
