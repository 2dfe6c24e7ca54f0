// Package livetest 提供记录所有写入的内存通道，供测试使用。
package livetest

import (
	"context"
	"sync"
	"time"

	"github.com/langchou/buskru/internal/models"
)

// Call 一次写入
type Call struct {
	Op            string
	TripID        int64
	Meta          models.LiveMeta
	Position      models.Position
	TotalDistance float64
	Trail         models.Trail
	ETA           models.ETA
	Passengers    int
	Condition     models.Condition
	Status        string
	At            time.Time
}

// Recorder 记录写入的内存通道，Err 非空时所有写入返回该错误
type Recorder struct {
	mu    sync.Mutex
	calls []Call
	Err   error
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
	return r.Err
}

// Calls 所有写入的副本
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Ops 写入操作名序列
func (r *Recorder) Ops() []string {
	calls := r.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// Filter 指定操作的写入
func (r *Recorder) Filter(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

func (r *Recorder) Initialize(_ context.Context, tripID int64, meta models.LiveMeta, at time.Time) error {
	return r.record(Call{Op: "initialize", TripID: tripID, Meta: meta, At: at})
}

func (r *Recorder) PublishPosition(_ context.Context, tripID int64, pos models.Position, totalDistanceKm float64, trail models.Trail) error {
	return r.record(Call{Op: "position", TripID: tripID, Position: pos, TotalDistance: totalDistanceKm, Trail: trail})
}

func (r *Recorder) PublishETA(_ context.Context, tripID int64, eta models.ETA) error {
	return r.record(Call{Op: "eta", TripID: tripID, ETA: eta})
}

func (r *Recorder) PublishPassengerCount(_ context.Context, tripID int64, count int) error {
	return r.record(Call{Op: "passengers", TripID: tripID, Passengers: count})
}

func (r *Recorder) PublishCondition(_ context.Context, tripID int64, condition models.Condition, at time.Time) error {
	return r.record(Call{Op: "condition", TripID: tripID, Condition: condition, At: at})
}

func (r *Recorder) PublishStatus(_ context.Context, tripID int64, status string) error {
	return r.record(Call{Op: "status", TripID: tripID, Status: status})
}

func (r *Recorder) Clear(_ context.Context, tripID int64) error {
	return r.record(Call{Op: "clear", TripID: tripID})
}
