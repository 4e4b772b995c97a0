// Package sync provides the offline operation queue and sync engine.
//
// Mutations performed while offline are durably queued and replayed against
// the remote service in submission order once connectivity returns. Draining
// is best effort, fully observed: a failing operation never aborts the pass,
// it is retried on later passes up to a bound and then dead-lettered.
package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/duetlog/duet/backend/internal/api"
	"github.com/duetlog/duet/backend/internal/db"
	apperrors "github.com/duetlog/duet/backend/internal/errors"
	"github.com/duetlog/duet/backend/internal/logging"
	"github.com/duetlog/duet/backend/internal/models"
)

// DefaultMaxRetries bounds how many sync passes may fail an operation
// before it is dead-lettered. Keeps one poison operation from blocking the
// queue forever.
const DefaultMaxRetries = 5

// DefaultMaxQueueSize bounds the pending queue. An app left offline long
// enough to hit it is better served by an error than by unbounded growth.
const DefaultMaxQueueSize = 10000

// StatusHandler receives sync status events.
type StatusHandler func(models.SyncStatus)

// EngineConfig configures the sync engine.
type EngineConfig struct {
	// UserID is the single active session the queue drains for.
	UserID string
	// MaxRetries bounds retries per operation; 0 means DefaultMaxRetries.
	MaxRetries int
	// MaxQueueSize bounds pending operations; 0 means DefaultMaxQueueSize.
	MaxQueueSize int
}

// Engine drains the durable operation queue against the remote service.
type Engine struct {
	queue        *db.QueueStore
	client       api.Client
	prober       *api.Prober
	userID       string
	maxRetries   int
	maxQueueSize int

	// drainMu serializes "load snapshot, iterate, remove". Only one drain
	// may be in flight per process; a concurrent call is rejected.
	drainMu sync.Mutex

	handlerMu sync.RWMutex
	handlers  []StatusHandler
}

// NewEngine creates a sync engine over the queue store and remote client.
func NewEngine(queue *db.QueueStore, client api.Client, cfg EngineConfig) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	maxQueueSize := cfg.MaxQueueSize
	if maxQueueSize <= 0 {
		maxQueueSize = DefaultMaxQueueSize
	}
	return &Engine{
		queue:        queue,
		client:       client,
		prober:       api.NewProber(client),
		userID:       cfg.UserID,
		maxRetries:   maxRetries,
		maxQueueSize: maxQueueSize,
	}
}

// OnStatusChanged registers a handler for sync status events. Handlers are
// invoked synchronously from the draining goroutine.
func (e *Engine) OnStatusChanged(handler StatusHandler) {
	e.handlerMu.Lock()
	defer e.handlerMu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// IsOnline reports whether the remote service is reachable. Never errors.
func (e *Engine) IsOnline(ctx context.Context) bool {
	return e.prober.IsOnline(ctx)
}

// QueueOperation durably records a mutation for later replay. The payload is
// opaque to the engine. Fails only if the type is unknown or the store is
// unavailable.
func (e *Engine) QueueOperation(ctx context.Context, opType models.OperationType, payload json.RawMessage) error {
	if !opType.IsValid() {
		return apperrors.New(apperrors.ErrValidation,
			fmt.Sprintf("unknown operation type %q", opType))
	}

	count, err := e.queue.CountPending(ctx, e.userID)
	if err != nil {
		return err
	}
	if count >= e.maxQueueSize {
		return apperrors.New(apperrors.ErrQueueFull,
			fmt.Sprintf("offline queue is full (%d operations)", count))
	}

	op := &models.QueuedOperation{
		UserID:  e.userID,
		Type:    opType,
		Payload: payload,
	}
	if err := e.queue.Insert(ctx, op); err != nil {
		return err
	}

	logging.Debug("queued offline operation", logging.Fields{
		"operation_id": string(op.ID),
		"type":         string(opType),
	})
	return nil
}

// PendingOperationCount returns how many operations await replay. Used by
// the UI to size a sync badge without triggering a sync.
func (e *Engine) PendingOperationCount(ctx context.Context) (int, error) {
	return e.queue.CountPending(ctx, e.userID)
}

// SyncPendingOperations drains the queue against the remote service.
//
// If offline it returns immediately with Success=false and zero counts; that
// is a no-op, not an error. Online, it works off a snapshot of the pending
// queue taken at the start, in creation order: each success removes the
// operation, each failure increments its retry count and leaves it queued,
// and an operation pushed over the retry bound is dead-lettered and reported
// as a permanent failure. Operations enqueued during the pass are picked up
// by the next one.
//
// Storage failures abort the drain and propagate; per-operation remote
// failures never do.
func (e *Engine) SyncPendingOperations(ctx context.Context) (*models.SyncResult, error) {
	if !e.drainMu.TryLock() {
		return nil, apperrors.New(apperrors.ErrSyncInProgress, "a sync pass is already running")
	}
	defer e.drainMu.Unlock()

	if !e.prober.IsOnline(ctx) {
		logging.Debug("skipping sync, offline")
		return &models.SyncResult{Success: false}, nil
	}

	ops, err := e.queue.ListPending(ctx, e.userID)
	if err != nil {
		return nil, err
	}

	total := len(ops)
	e.emit(models.SyncStatus{IsSyncing: true, Total: total})

	result := &models.SyncResult{}
	for _, op := range ops {
		e.emit(models.SyncStatus{
			IsSyncing:        true,
			Total:            total,
			Completed:        result.SuccessfulOperations,
			CurrentOperation: string(op.Type),
		})

		if err := api.Dispatch(ctx, e.client, op); err != nil {
			if storeErr := e.recordFailure(ctx, op, err, result); storeErr != nil {
				return nil, storeErr
			}
			continue
		}

		if err := e.queue.Delete(ctx, op.ID); err != nil {
			return nil, err
		}
		result.SuccessfulOperations++
	}

	result.Success = result.FailedOperations == 0
	e.emit(models.SyncStatus{
		IsSyncing: false,
		Total:     total,
		Completed: total - result.FailedOperations,
	})

	logging.Info("sync pass finished", logging.Fields{
		"total":     total,
		"succeeded": result.SuccessfulOperations,
		"failed":    result.FailedOperations,
	})
	return result, nil
}

// recordFailure absorbs a per-operation failure into the result and either
// schedules a retry or dead-letters the operation. Returns an error only for
// storage failures, which are fatal for the drain.
func (e *Engine) recordFailure(ctx context.Context, op *models.QueuedOperation, cause error, result *models.SyncResult) error {
	result.FailedOperations++

	if op.RetryCount+1 >= e.maxRetries {
		desc := fmt.Sprintf("%s %s permanently failed after %d attempts: %v",
			op.Type, op.ID, op.RetryCount+1, cause)
		result.Errors = append(result.Errors, desc)

		logging.Error("operation dead-lettered", cause, logging.Fields{
			"operation_id": string(op.ID),
			"type":         string(op.Type),
			"retries":      op.RetryCount + 1,
		})
		return e.queue.MarkDead(ctx, op.ID, cause.Error())
	}

	desc := fmt.Sprintf("%s %s failed: %v", op.Type, op.ID, cause)
	result.Errors = append(result.Errors, desc)

	logging.Warn("operation failed, will retry", logging.Fields{
		"operation_id": string(op.ID),
		"type":         string(op.Type),
		"retry":        op.RetryCount + 1,
		"max_retries":  e.maxRetries,
	})
	return e.queue.IncrementRetry(ctx, op.ID, cause.Error())
}

func (e *Engine) emit(status models.SyncStatus) {
	e.handlerMu.RLock()
	handlers := e.handlers
	e.handlerMu.RUnlock()

	for _, handler := range handlers {
		handler(status)
	}
}
