package live

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/buskru/internal/models"
)

type published struct {
	subject string
	data    []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *fakePublisher) Publish(subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{subject: subject, data: data})
	return nil
}

func (p *fakePublisher) last(t *testing.T) (string, NATSMessage) {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.msgs)
	m := p.msgs[len(p.msgs)-1]
	var msg NATSMessage
	require.NoError(t, json.Unmarshal(m.data, &msg))
	return m.subject, msg
}

func TestNATSSubjects(t *testing.T) {
	ch := NewNATSChannelWithPublisher(&fakePublisher{}, "")
	assert.Equal(t, "buses.bus_7.position", ch.Subject(7, OpPosition))

	ch = NewNATSChannelWithPublisher(&fakePublisher{}, "fleet live.*")
	assert.Equal(t, "fleet_live__.bus_7.eta", ch.Subject(7, OpETA))
}

func TestNATSInitializeMessage(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewNATSChannelWithPublisher(pub, "buses")
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, ch.Initialize(context.Background(), 3, testMeta, at))

	subject, msg := pub.last(t)
	assert.Equal(t, "buses.bus_3.initialize", subject)
	assert.Equal(t, int64(3), msg.TripID)
	require.NotNil(t, msg.Meta)
	assert.Equal(t, testMeta, *msg.Meta)
	require.NotNil(t, msg.Passengers)
	assert.Equal(t, 0, *msg.Passengers)
	assert.Equal(t, models.ConditionSmooth, msg.Condition)
	assert.Equal(t, models.StatusActive, msg.Status)
	assert.Equal(t, "2024-05-01T08:00:00Z", msg.ConditionUpdatedAt)
}

func TestNATSPositionMessage(t *testing.T) {
	pub := &fakePublisher{}
	ch := NewNATSChannelWithPublisher(pub, "buses")

	pos := models.Position{Lat: -7.25, Lng: 112.75, Speed: 40, LastUpdate: "2024-05-01T08:00:10Z"}
	trail := models.Trail{{Lat: -7.25, Lng: 112.75}}
	require.NoError(t, ch.PublishPosition(context.Background(), 3, pos, 2.25, trail))

	subject, msg := pub.last(t)
	assert.Equal(t, "buses.bus_3.position", subject)
	require.NotNil(t, msg.Position)
	assert.Equal(t, pos, *msg.Position)
	assert.Equal(t, trail, msg.Trail)
	require.NotNil(t, msg.TotalDistance)
	assert.InDelta(t, 2.25, *msg.TotalDistance, 1e-9)
	assert.Equal(t, pos.LastUpdate, msg.Timestamp)
}

func TestNATSPublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection closed")}
	ch := NewNATSChannelWithPublisher(pub, "buses")

	err := ch.PublishStatus(context.Background(), 1, models.StatusCompleted)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "buses.bus_1.status")
	assert.ErrorIs(t, err, pub.err)
}
