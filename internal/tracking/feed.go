package tracking

import (
	"github.com/langchou/buskru/internal/models"
)

// Stream 定位样本流
type Stream interface {
	Samples() <-chan models.LocationSample
	// Errors 定位源故障，收到后会话自行停止
	Errors() <-chan error
}

// Feed 进程内样本流，容量有限，满时拒绝而不是排队
type Feed struct {
	samples chan models.LocationSample
	errs    chan error
}

// NewFeed 创建样本流
func NewFeed(size int) *Feed {
	if size <= 0 {
		size = 1
	}
	return &Feed{
		samples: make(chan models.LocationSample, size),
		errs:    make(chan error, 1),
	}
}

func (f *Feed) Samples() <-chan models.LocationSample { return f.samples }

func (f *Feed) Errors() <-chan error { return f.errs }

// Push 推入一个样本
func (f *Feed) Push(sample models.LocationSample) error {
	select {
	case f.samples <- sample:
		return nil
	default:
		return ErrFeedFull
	}
}

// Fail 注入定位源故障，只保留第一个
func (f *Feed) Fail(err error) {
	select {
	case f.errs <- err:
	default:
	}
}
