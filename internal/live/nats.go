package live

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/langchou/buskru/internal/models"
)

// Publisher NATS 发布接口，*nats.Conn 满足该接口
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSChannel 把实时更新推送到 NATS，供外部看板订阅
// 主题格式: <prefix>.bus_<tripID>.<op>
type NATSChannel struct {
	pub    Publisher
	conn   *nats.Conn
	prefix string
}

// NATSMessage 推送消息体
type NATSMessage struct {
	TripID             int64            `json:"tripId"`
	Op                 string           `json:"op"`
	Meta               *models.LiveMeta `json:"meta,omitempty"`
	Position           *models.Position `json:"position,omitempty"`
	Trail              models.Trail     `json:"trail,omitempty"`
	TotalDistance      *float64         `json:"totalDistance,omitempty"`
	ETA                *models.ETA      `json:"eta,omitempty"`
	Passengers         *int             `json:"passengers,omitempty"`
	Condition          models.Condition `json:"condition,omitempty"`
	ConditionUpdatedAt string           `json:"conditionUpdatedAt,omitempty"`
	Status             string           `json:"status,omitempty"`
	Timestamp          string           `json:"timestamp"`
}

// NewNATSChannel 连接 NATS
func NewNATSChannel(url, prefix string, logger *zap.Logger) (*NATSChannel, error) {
	nc, err := nats.Connect(url,
		nats.Name("buskru-tracker"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	ch := NewNATSChannelWithPublisher(nc, prefix)
	ch.conn = nc
	return ch, nil
}

// NewNATSChannelWithPublisher 使用已有发布者创建通道
func NewNATSChannelWithPublisher(pub Publisher, prefix string) *NATSChannel {
	if prefix == "" {
		prefix = "buses"
	}
	return &NATSChannel{pub: pub, prefix: subjectToken(prefix)}
}

// Close 关闭连接
func (c *NATSChannel) Close() {
	if c.conn != nil {
		_ = c.conn.Drain()
		c.conn.Close()
	}
}

// Subject 主题名
func (c *NATSChannel) Subject(tripID int64, op string) string {
	return fmt.Sprintf("%s.bus_%d.%s", c.prefix, tripID, op)
}

func (c *NATSChannel) Initialize(ctx context.Context, tripID int64, meta models.LiveMeta, at time.Time) error {
	zero := 0
	distance := 0.0
	return c.publish(NATSMessage{
		TripID:             tripID,
		Op:                 OpInitialize,
		Meta:               &meta,
		Position:           &models.Position{LastUpdate: models.FormatTimestamp(at)},
		Trail:              models.Trail{},
		TotalDistance:      &distance,
		ETA:                &models.ETA{},
		Passengers:         &zero,
		Condition:          models.ConditionSmooth,
		ConditionUpdatedAt: models.FormatTimestamp(at),
		Status:             models.StatusActive,
		Timestamp:          models.FormatTimestamp(at),
	})
}

func (c *NATSChannel) PublishPosition(ctx context.Context, tripID int64, pos models.Position, totalDistanceKm float64, trail models.Trail) error {
	return c.publish(NATSMessage{
		TripID:        tripID,
		Op:            OpPosition,
		Position:      &pos,
		Trail:         trail,
		TotalDistance: &totalDistanceKm,
		Timestamp:     pos.LastUpdate,
	})
}

func (c *NATSChannel) PublishETA(ctx context.Context, tripID int64, eta models.ETA) error {
	return c.publish(NATSMessage{TripID: tripID, Op: OpETA, ETA: &eta, Timestamp: now()})
}

func (c *NATSChannel) PublishPassengerCount(ctx context.Context, tripID int64, count int) error {
	return c.publish(NATSMessage{TripID: tripID, Op: OpPassengers, Passengers: &count, Timestamp: now()})
}

func (c *NATSChannel) PublishCondition(ctx context.Context, tripID int64, condition models.Condition, at time.Time) error {
	ts := models.FormatTimestamp(at)
	return c.publish(NATSMessage{TripID: tripID, Op: OpCondition, Condition: condition, ConditionUpdatedAt: ts, Timestamp: ts})
}

func (c *NATSChannel) PublishStatus(ctx context.Context, tripID int64, status string) error {
	return c.publish(NATSMessage{TripID: tripID, Op: OpStatus, Status: status, Timestamp: now()})
}

func (c *NATSChannel) Clear(ctx context.Context, tripID int64) error {
	return c.publish(NATSMessage{TripID: tripID, Op: OpClear, Timestamp: now()})
}

func (c *NATSChannel) publish(msg NATSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal nats message: %w", err)
	}
	subject := c.Subject(msg.TripID, msg.Op)
	if err := c.pub.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

func now() string {
	return models.FormatTimestamp(time.Now())
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_", ":", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
