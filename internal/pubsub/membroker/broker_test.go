package membroker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-fleet/orchestrator/internal/pubsub"
)

func recv(t *testing.T, ch <-chan pubsub.Message) pubsub.Message {
	t.Helper()
	select {
	case m := <-ch:
		return m
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
		return pubsub.Message{}
	}
}

func TestBroker_SubscribeExactTopic(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "aegis:city1:telemetry:AMB-001")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "aegis:city1:telemetry:AMB-001", []byte("payload")))
	msg := recv(t, sub.C())
	assert.Equal(t, "aegis:city1:telemetry:AMB-001", msg.Topic)
	assert.Equal(t, []byte("payload"), msg.Payload)
}

func TestBroker_SubscribeExactTopicIgnoresOthers(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "aegis:city1:telemetry:AMB-001")
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "aegis:city1:telemetry:AMB-002", []byte("other")))
	select {
	case <-sub.C():
		t.Fatal("unexpected delivery for non-matching topic")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_PSubscribePattern(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	sub, err := b.PSubscribe(context.Background(), pubsub.PatternTelemetry)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "aegis:city1:telemetry:AMB-001", []byte("a")))
	require.NoError(t, b.Publish(context.Background(), "aegis:city1:alerts:AMB-001", []byte("b")))

	msg := recv(t, sub.C())
	assert.Equal(t, "aegis:city1:telemetry:AMB-001", msg.Topic)

	select {
	case m := <-sub.C():
		t.Fatalf("unexpected second delivery: %v", m)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroker_UnsubscribeClosesChannelAndStopsDelivery(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	sub, err := b.Subscribe(context.Background(), "aegis:city1:telemetry:AMB-001")
	require.NoError(t, err)

	require.NoError(t, sub.Unsubscribe())
	require.NoError(t, sub.Unsubscribe()) // idempotent

	_, ok := <-sub.C()
	assert.False(t, ok)

	require.NoError(t, b.Publish(context.Background(), "aegis:city1:telemetry:AMB-001", []byte("ignored")))
}

func TestBroker_CloseClosesAllSubscriptions(t *testing.T) {
	b := New(zerolog.Nop())

	sub1, err := b.Subscribe(context.Background(), "topic-a")
	require.NoError(t, err)
	sub2, err := b.PSubscribe(context.Background(), pubsub.PatternAlerts)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close()) // idempotent

	_, ok1 := <-sub1.C()
	_, ok2 := <-sub2.C()
	assert.False(t, ok1)
	assert.False(t, ok2)
}

func TestBroker_SubscribeAfterCloseReturnsClosedChannel(t *testing.T) {
	b := New(zerolog.Nop())
	require.NoError(t, b.Close())

	sub, err := b.Subscribe(context.Background(), "topic-a")
	require.NoError(t, err)
	_, ok := <-sub.C()
	assert.False(t, ok)
}

func TestBroker_ConcurrentPublishAndUnsubscribeDoesNotPanic(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	const topic = "aegis:city1:telemetry:AMB-001"
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = b.Publish(context.Background(), topic, []byte("x"))
		}
	}()

	for i := 0; i < 200; i++ {
		sub, err := b.Subscribe(context.Background(), topic)
		require.NoError(t, err)
		require.NoError(t, sub.Unsubscribe())
	}
	<-done
}

func TestBroker_MultipleSubscribersReceiveIndependently(t *testing.T) {
	b := New(zerolog.Nop())
	defer b.Close()

	sub1, err := b.Subscribe(context.Background(), "aegis:emergencies:new")
	require.NoError(t, err)
	defer sub1.Unsubscribe()
	sub2, err := b.Subscribe(context.Background(), "aegis:emergencies:new")
	require.NoError(t, err)
	defer sub2.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), "aegis:emergencies:new", []byte("em")))
	assert.Equal(t, []byte("em"), recv(t, sub1.C()).Payload)
	assert.Equal(t, []byte("em"), recv(t, sub2.C()).Payload)
}
