package tracking

import "errors"

var (
	// ErrInvalidTripGeometry 路线几何无法解析或为空，会话保持 idle
	ErrInvalidTripGeometry = errors.New("invalid trip geometry")
	// ErrCapacityExceeded 乘客数超过车辆容量
	ErrCapacityExceeded = errors.New("passenger capacity exceeded")
	// ErrUnderflow 乘客数不能小于 0
	ErrUnderflow = errors.New("passenger count underflow")
	// ErrInvalidDelta 乘客数每次只能加一或减一
	ErrInvalidDelta = errors.New("passenger delta must be +1 or -1")
	// ErrInvalidCondition 未知路况
	ErrInvalidCondition = errors.New("invalid condition")
	// ErrNotActive 会话不处于 active 状态
	ErrNotActive = errors.New("session not active")
	// ErrAlreadyStarted 会话已启动过
	ErrAlreadyStarted = errors.New("session already started")
	// ErrFeedFull 上一个样本尚未处理完
	ErrFeedFull = errors.New("sample feed full")
)

// 会话结束原因
const (
	ReasonUser     = "user"
	ReasonFault    = "fault"
	ReasonReplaced = "replaced"
	ReasonShutdown = "shutdown"
)
