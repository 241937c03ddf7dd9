package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

type stubPublisher struct {
	mu    sync.Mutex
	calls []publishCall
	err   error
}

type publishCall struct {
	topic string
	key   string
	value any
}

func (s *stubPublisher) PublishJSON(_ context.Context, topic, key string, value any) (int32, int64, error) {
	s.mu.Lock()
	s.calls = append(s.calls, publishCall{topic: topic, key: key, value: value})
	s.mu.Unlock()
	return 0, 0, s.err
}

func (s *stubPublisher) Close() error { return nil }

func sampleEvent() domain.MarketEvent {
	return domain.MarketEvent{
		ID:          "0xabc-0",
		Name:        domain.EventOrderCreated,
		Contract:    common.HexToAddress("0xc0"),
		OrderID:     3,
		CommittedAt: time.Unix(1_700_000_000, 0),
	}
}

func TestDLQPublisherPublishesOnError(t *testing.T) {
	primary := &stubPublisher{err: errors.New("publish failed")}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "dead_letter", slog.Default())

	_, _, err := publisher.PublishJSON(context.Background(), "nftmarket.events", "order-1", map[string]string{"id": "1"})
	require.Error(t, err)
	require.Len(t, dlq.calls, 1)
	assert.Equal(t, "dead_letter", dlq.calls[0].topic)
	payload, ok := dlq.calls[0].value.(DLQPublishPayload)
	require.True(t, ok)
	assert.Equal(t, "nftmarket.events", payload.OriginalTopic)
	assert.Equal(t, "publish failed", payload.Error)
}

func TestDLQPublisherSkipsOnSuccess(t *testing.T) {
	primary := &stubPublisher{}
	dlq := &stubPublisher{}
	publisher := NewDLQPublisher(primary, dlq, "dead_letter", nil)

	_, _, err := publisher.PublishJSON(context.Background(), "t", "k", 1)
	require.NoError(t, err)
	assert.Empty(t, dlq.calls)
}

func TestEnvelope(t *testing.T) {
	ev := sampleEvent()
	env, err := NewEnvelope(ev)
	require.NoError(t, err)
	assert.Equal(t, domain.EventOrderCreated, env.EventType)
	assert.Equal(t, DeterministicEventID(ev), env.EventID)
	assert.Equal(t, ev.Contract.Hex(), PartitionKey(ev))

	again, err := NewEnvelope(ev)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, again.EventID, "ids are stable across redelivery")

	sale := domain.MarketEvent{Name: domain.EventNFTTransferred, Contract: ev.Contract}
	assert.Equal(t, PartitionKey(ev), PartitionKey(sale), "a sale shares its listing's key")

	_, err = NewEnvelope(domain.MarketEvent{ID: "x"})
	require.Error(t, err)
}

func TestExporterThroughSaramaMock(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env Envelope
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.Event.OrderID != 3 {
			return errors.New("unexpected order id")
		}
		return nil
	})
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	registry := prometheus.NewRegistry()
	pm := NewProducerMetrics(registry)
	exp := NewExporter(WrapSyncProducer(mock, nil, pm), "nftmarket.events")

	require.NoError(t, exp.Export(context.Background(), sampleEvent()))
	require.Error(t, exp.Export(context.Background(), sampleEvent()))

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.PublishTotal.WithLabelValues("nftmarket.events", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.PublishTotal.WithLabelValues("nftmarket.events", "error")))
	require.NoError(t, exp.Close())
}
