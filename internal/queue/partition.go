package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Partition names a slice of the queue a job can sit in. The order of the
// constants is the search rank: a running job is the most urgent to stop,
// a dead one the least.
type Partition int

const (
	PartitionActive Partition = iota + 1
	PartitionWaiting
	PartitionDelayed
	PartitionFailed
)

// Ranked is the order Locate searches in.
var Ranked = []Partition{PartitionActive, PartitionWaiting, PartitionDelayed, PartitionFailed}

func (p Partition) String() string {
	switch p {
	case PartitionActive:
		return "active"
	case PartitionWaiting:
		return "waiting"
	case PartitionDelayed:
		return "delayed"
	case PartitionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Inspector is the subset of *asynq.Inspector used for lookup and removal.
type Inspector interface {
	ListActiveTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListPendingTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListScheduledTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListRetryTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	ListArchivedTasks(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
	DeleteTask(queue, id string) error
	CancelProcessing(id string) error
}

var _ Inspector = (*asynq.Inspector)(nil)

// Located is a job found by Locate.
type Located struct {
	Partition Partition
	Queue     string
	TaskID    string
}

const pageSize = 100

type lister func(queue string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)

// listers maps a partition onto the asynq states it covers. Delayed spans
// both scheduled and retry-backoff tasks.
func listers(in Inspector, p Partition) []lister {
	switch p {
	case PartitionActive:
		return []lister{in.ListActiveTasks}
	case PartitionWaiting:
		return []lister{in.ListPendingTasks}
	case PartitionDelayed:
		return []lister{in.ListScheduledTasks, in.ListRetryTasks}
	case PartitionFailed:
		return []lister{in.ListArchivedTasks}
	default:
		return nil
	}
}

// Locate walks the partitions in Ranked order and returns the first job whose
// payload references extractionID, or nil if there is none. The listing is a
// snapshot; a job can move between partitions while it runs.
func Locate(ctx context.Context, in Inspector, queue, extractionID string) (*Located, error) {
	for _, p := range Ranked {
		for _, list := range listers(in, p) {
			id, err := scan(ctx, list, queue, extractionID)
			if err != nil {
				return nil, fmt.Errorf("list %s tasks: %w", p, err)
			}
			if id != "" {
				return &Located{Partition: p, Queue: queue, TaskID: id}, nil
			}
		}
	}
	return nil, nil
}

func scan(ctx context.Context, list lister, queue, extractionID string) (string, error) {
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		tasks, err := list(queue, asynq.PageSize(pageSize), asynq.Page(page))
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				return "", nil
			}
			return "", err
		}
		for _, t := range tasks {
			if t.Type != ProcessReceiptTask {
				continue
			}
			p, err := DecodePayload(t.Payload)
			if err != nil {
				continue
			}
			if p.ExtractionID == extractionID {
				return t.ID, nil
			}
		}
		if len(tasks) < pageSize {
			return "", nil
		}
	}
}

// Neutralize stops a located job. An active job gets the cancel signal; if
// that fails, or the job is in any other partition, it is deleted outright.
func Neutralize(in Inspector, loc *Located) error {
	if loc.Partition == PartitionActive {
		if err := in.CancelProcessing(loc.TaskID); err == nil {
			return nil
		}
	}
	if err := in.DeleteTask(loc.Queue, loc.TaskID); err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) {
			return nil
		}
		return fmt.Errorf("delete task %s: %w", loc.TaskID, err)
	}
	return nil
}

// Settle waits for a cancelled job to leave the active partition and deletes
// it from wherever asynq parked it. asynq moves a cancelled task to retry (or
// archives it on its last attempt) no matter what the handler returned. If
// the job is still active when wait runs out Settle gives up quietly; the
// next attempt finds no record and is acknowledged.
func Settle(ctx context.Context, in Inspector, queue, extractionID string, wait, every time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		loc, err := Locate(ctx, in, queue, extractionID)
		if err != nil {
			return err
		}
		if loc == nil {
			return nil
		}
		if loc.Partition != PartitionActive {
			if err := in.DeleteTask(loc.Queue, loc.TaskID); err != nil && !errors.Is(err, asynq.ErrTaskNotFound) {
				return fmt.Errorf("delete task %s: %w", loc.TaskID, err)
			}
			return nil
		}
		if !time.Now().Before(deadline) {
			return nil
		}
		t := time.NewTimer(every)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
