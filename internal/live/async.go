package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/metrics"
	"github.com/langchou/buskru/internal/models"
)

// Async 即发即弃的写入队列
// 写入按提交顺序由单个协程执行，失败只记日志不重试
// 队列满时普通写入被丢弃，初始化、状态和清除会挤掉排队中的普通写入
type Async struct {
	next    Channel
	logger  *zap.Logger
	metrics *metrics.Collector

	mu     sync.RWMutex
	closed bool
	queue  chan asyncOp
	done   chan struct{}
}

type asyncOp struct {
	name   string
	tripID int64
	fn     func(ctx context.Context) error
}

// NewAsync 创建并启动写入队列
func NewAsync(next Channel, size int, logger *zap.Logger, m *metrics.Collector) *Async {
	if size <= 0 {
		size = 64
	}
	a := &Async{
		next:    next,
		logger:  logger,
		metrics: m,
		queue:   make(chan asyncOp, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	ctx := context.Background()
	for op := range a.queue {
		err := op.fn(ctx)
		a.metrics.LiveResult(op.name, err)
		if err != nil {
			a.logger.Warn("Live record write failed",
				zap.String("op", op.name),
				zap.Int64("trip_id", op.tripID),
				zap.Error(err))
		}
	}
}

// mustDeliver 初始化、状态和清除不能因队列满而丢失
func mustDeliver(name string) bool {
	switch name {
	case OpInitialize, OpStatus, OpClear:
		return true
	}
	return false
}

func (a *Async) enqueue(name string, tripID int64, fn func(ctx context.Context) error) {
	op := asyncOp{name: name, tripID: tripID, fn: fn}

	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		a.metrics.LiveDrop()
		a.logger.Debug("Live queue closed, dropping write", zap.String("op", name), zap.Int64("trip_id", tripID))
		return
	}
	select {
	case a.queue <- op:
		a.mu.RUnlock()
		return
	default:
	}
	a.mu.RUnlock()

	if !mustDeliver(name) {
		a.metrics.LiveDrop()
		a.logger.Warn("Live queue full, dropping write", zap.String("op", name), zap.Int64("trip_id", tripID))
		return
	}
	a.enqueueReserved(op)
}

// enqueueReserved 队列满时丢弃排队中的普通写入，保留必达写入的顺序后再入队
// 普通写入都携带字段完整值，被丢弃的会被后续写入或清除覆盖
func (a *Async) enqueueReserved(op asyncOp) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		a.metrics.LiveDrop()
		a.logger.Warn("Live queue closed, dropping write", zap.String("op", op.name), zap.Int64("trip_id", op.tripID))
		return
	}

	var kept []asyncOp
	discarded := 0
	for drained := false; !drained; {
		select {
		case pending := <-a.queue:
			if mustDeliver(pending.name) {
				kept = append(kept, pending)
				continue
			}
			discarded++
			a.metrics.LiveDrop()
		default:
			drained = true
		}
	}

	a.logger.Warn("Live queue full, discarded pending writes",
		zap.String("op", op.name),
		zap.Int64("trip_id", op.tripID),
		zap.Int("discarded", discarded))

	// 工作协程不需要锁，阻塞发送最终会被消费
	for _, pending := range append(kept, op) {
		a.queue <- pending
	}
}

// Close 停止接收新写入并等待队列排空
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}

func (a *Async) Initialize(tripID int64, meta models.LiveMeta, at time.Time) {
	a.enqueue(OpInitialize, tripID, func(ctx context.Context) error {
		return a.next.Initialize(ctx, tripID, meta, at)
	})
}

// PublishPosition trail 会被复制，调用方可继续修改原切片
func (a *Async) PublishPosition(tripID int64, pos models.Position, totalDistanceKm float64, trail models.Trail) {
	snapshot := make(models.Trail, len(trail))
	copy(snapshot, trail)
	a.enqueue(OpPosition, tripID, func(ctx context.Context) error {
		return a.next.PublishPosition(ctx, tripID, pos, totalDistanceKm, snapshot)
	})
}

func (a *Async) PublishETA(tripID int64, eta models.ETA) {
	a.enqueue(OpETA, tripID, func(ctx context.Context) error {
		return a.next.PublishETA(ctx, tripID, eta)
	})
}

func (a *Async) PublishPassengerCount(tripID int64, count int) {
	a.enqueue(OpPassengers, tripID, func(ctx context.Context) error {
		return a.next.PublishPassengerCount(ctx, tripID, count)
	})
}

func (a *Async) PublishCondition(tripID int64, condition models.Condition, at time.Time) {
	a.enqueue(OpCondition, tripID, func(ctx context.Context) error {
		return a.next.PublishCondition(ctx, tripID, condition, at)
	})
}

func (a *Async) PublishStatus(tripID int64, status string) {
	a.enqueue(OpStatus, tripID, func(ctx context.Context) error {
		return a.next.PublishStatus(ctx, tripID, status)
	})
}

func (a *Async) Clear(tripID int64) {
	a.enqueue(OpClear, tripID, func(ctx context.Context) error {
		return a.next.Clear(ctx, tripID)
	})
}
