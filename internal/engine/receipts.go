package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/entity"
	"chatsync/pkg/metrics"
)

// StatusWriter commits a message status transition to the store.
type StatusWriter interface {
	UpdateStatus(ctx context.Context, chatId, messageId, status string) error
}

// ReceiptMachine drives the sent/delivered/read progression. A message
// transitions to read exactly when it is rendered to a participant who is
// not its sender and is not already read. The store write runs off the
// rendering path; on failure the status stays unchanged locally and the
// next render retries.
type ReceiptMachine struct {
	viewerId string
	writer   StatusWriter
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewReceiptMachine(viewerId string, writer StatusWriter, log *zap.SugaredLogger, m *metrics.Metrics) *ReceiptMachine {
	return &ReceiptMachine{
		viewerId: viewerId,
		writer:   writer,
		log:      log,
		metrics:  m,
		inflight: make(map[string]struct{}),
	}
}

// OnRender is called every time msg is rendered to the machine's viewer.
// Idempotent: re-rendering an already-read message, or one whose read
// write is still in flight, does nothing.
func (r *ReceiptMachine) OnRender(ctx context.Context, msg entity.Message) {
	if msg.SenderId == r.viewerId {
		return
	}
	if entity.StatusRank(msg.Status) >= entity.StatusRank(entity.StatusRead) {
		return
	}

	r.mu.Lock()
	if _, pending := r.inflight[msg.Id]; pending {
		r.mu.Unlock()
		return
	}
	r.inflight[msg.Id] = struct{}{}
	r.mu.Unlock()

	go func() {
		err := r.writer.UpdateStatus(ctx, msg.ChatId, msg.Id, entity.StatusRead)
		if err != nil {
			// Leave the message eligible for retry on the next render.
			r.mu.Lock()
			delete(r.inflight, msg.Id)
			r.mu.Unlock()

			r.log.Warnw("read receipt write failed", "chatId", msg.ChatId, "messageId", msg.Id, "error", err)
			r.metrics.WriteFailure("mark_read")
			return
		}
		r.metrics.ReadReceipt()
	}()
}
