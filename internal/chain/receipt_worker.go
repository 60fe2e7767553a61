package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"hashscope/internal/models"
	"hashscope/internal/queue"
	"hashscope/internal/utils"
)

// StatusChecker resolves a transaction hash to its settlement state.
// *Client satisfies it.
type StatusChecker interface {
	TransactionStatus(ctx context.Context, txHash string) (models.TxStatus, error)
}

// TransactionStore is the slice of the transaction repository the receipt
// worker needs.
type TransactionStore interface {
	UpdateStatus(ctx context.Context, txHash string, status models.TxStatus) error
	ListPending(ctx context.Context, limit, offset int) ([]*models.Transaction, error)
}

// receiptTask is one queued receipt lookup. Attempts counts RPC failures,
// not pending polls; a transaction may legitimately stay pending for many
// rounds without burning retries.
type receiptTask struct {
	TxHash   string `json:"tx_hash"`
	Attempts int    `json:"attempts"`
}

// ReceiptWorker drives pending transactions to a terminal status by polling
// the chain for receipts. Hashes are queued at submission time and re-queued
// while still pending; on startup any pending rows left over from a previous
// run are re-adopted from the database.
type ReceiptWorker struct {
	queue       queue.Queue
	dlq         queue.DeadLetterQueue
	checker     StatusChecker
	store       TransactionStore
	config      *queue.Config
	interval    time.Duration
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewReceiptWorker creates a receipt polling worker. interval is the delay
// before a still-pending hash is checked again.
func NewReceiptWorker(q queue.Queue, dlq queue.DeadLetterQueue, checker StatusChecker, store TransactionStore, config *queue.Config, interval time.Duration) *ReceiptWorker {
	if config == nil {
		config = queue.DefaultConfig("receipts")
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}

	return &ReceiptWorker{
		queue:       q,
		dlq:         dlq,
		checker:     checker,
		store:       store,
		config:      config,
		interval:    interval,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the worker goroutine.
func (w *ReceiptWorker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop gracefully stops the worker.
func (w *ReceiptWorker) Stop() error {
	close(w.stopChan)
	<-w.stoppedChan
	return nil
}

// Track queues a freshly submitted transaction hash for receipt polling.
func (w *ReceiptWorker) Track(ctx context.Context, txHash string) error {
	return w.queue.Enqueue(ctx, &receiptTask{TxHash: txHash})
}

// AdoptPending re-queues pending transactions found in the database, paging
// until none remain. Called once at startup so submissions from a previous
// process are not orphaned.
func (w *ReceiptWorker) AdoptPending(ctx context.Context) error {
	for offset := 0; ; offset += w.config.BatchSize {
		pending, err := w.store.ListPending(ctx, w.config.BatchSize, offset)
		if err != nil {
			return fmt.Errorf("list pending transactions: %w", err)
		}
		for _, tx := range pending {
			if err := w.Track(ctx, tx.TxHash); err != nil {
				return fmt.Errorf("adopt %s: %w", tx.TxHash, err)
			}
		}
		if len(pending) < w.config.BatchSize {
			return nil
		}
	}
}

// run is the main worker loop.
func (w *ReceiptWorker) run(ctx context.Context) {
	defer close(w.stoppedChan)

	logger := utils.NewLogger("receipt-worker")

	for {
		select {
		case <-w.stopChan:
			logger.Info("Receipt worker stopping")
			return
		case <-ctx.Done():
			logger.Info("Receipt worker context cancelled")
			return
		default:
			w.processBatch(ctx, logger)
		}
	}
}

// processBatch drains a batch of queued receipt lookups. Every hash in the
// batch is checked before any waiting happens; the still-pending ones are
// re-queued together and the worker sleeps one poll interval per round, so a
// slow confirmation never delays the hashes queued behind it.
func (w *ReceiptWorker) processBatch(ctx context.Context, logger *utils.Logger) {
	items, err := w.queue.DequeueWithTimeout(ctx, w.config.BatchSize, w.config.BatchTimeout)
	if err != nil {
		logger.Error("Failed to dequeue receipt tasks", "error", err)
		time.Sleep(1 * time.Second) // Back off on error
		return
	}

	if len(items) == 0 {
		return
	}

	logger.Debug("Polling receipts", "count", len(items))

	var stillPending []*receiptTask
	for _, item := range items {
		var task receiptTask
		if err := w.unmarshalItem(item, &task); err != nil {
			logger.Error("Failed to unmarshal receipt task", "error", err)
			continue
		}
		if w.processTask(ctx, &task, logger) {
			stillPending = append(stillPending, &task)
		}
	}

	if len(stillPending) == 0 {
		return
	}

	// Re-queued before the wait so a stop during the sleep cannot lose
	// them. The pending poll does not count as a retry.
	for _, task := range stillPending {
		w.requeue(ctx, task, logger)
	}
	select {
	case <-time.After(w.interval):
	case <-ctx.Done():
	case <-w.stopChan:
	}
}

// processTask checks one hash and either finalizes the row, re-queues the
// task after an RPC failure, or retires it to the DLQ once retries are
// exhausted. Returns true when the hash is still pending and should be
// polled again next round.
func (w *ReceiptWorker) processTask(ctx context.Context, task *receiptTask, logger *utils.Logger) bool {
	status, err := w.checker.TransactionStatus(ctx, task.TxHash)
	if err != nil {
		task.Attempts++
		logger.Error("Receipt lookup failed", "tx_hash", task.TxHash, "attempt", task.Attempts, "error", err)
		if task.Attempts > w.config.MaxRetries {
			w.retire(ctx, task, err, logger)
			return false
		}
		w.requeue(ctx, task, logger)
		return false
	}

	if !status.Terminal() {
		return true
	}

	if err := w.store.UpdateStatus(ctx, task.TxHash, status); err != nil {
		task.Attempts++
		logger.Error("Failed to record settlement status", "tx_hash", task.TxHash, "status", status, "error", err)
		if task.Attempts > w.config.MaxRetries {
			w.retire(ctx, task, err, logger)
			return false
		}
		w.requeue(ctx, task, logger)
		return false
	}

	logger.Info("Settlement finalized", "tx_hash", task.TxHash, "status", status)
	return false
}

func (w *ReceiptWorker) requeue(ctx context.Context, task *receiptTask, logger *utils.Logger) {
	if err := w.queue.Enqueue(ctx, task); err != nil {
		logger.Error("Failed to re-queue receipt task", "tx_hash", task.TxHash, "error", err)
	}
}

func (w *ReceiptWorker) retire(ctx context.Context, task *receiptTask, cause error, logger *utils.Logger) {
	if w.dlq == nil {
		return
	}
	if err := w.dlq.Add(ctx, task, cause); err != nil {
		logger.Error("Failed to add receipt task to dead letter queue", "error", err)
		return
	}
	logger.Warn("Receipt task moved to DLQ", "tx_hash", task.TxHash, "error", cause)
}

// unmarshalItem unmarshals a queue item into a receiptTask.
func (w *ReceiptWorker) unmarshalItem(item interface{}, task *receiptTask) error {
	switch v := item.(type) {
	case *receiptTask:
		*task = *v
		return nil
	case receiptTask:
		*task = v
		return nil
	case []byte:
		return json.Unmarshal(v, task)
	case json.RawMessage:
		return json.Unmarshal(v, task)
	default:
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to marshal item: %w", err)
		}
		return json.Unmarshal(data, task)
	}
}

// QueueLength returns the number of hashes awaiting a receipt check.
func (w *ReceiptWorker) QueueLength(ctx context.Context) (int, error) {
	return w.queue.Length(ctx)
}
