// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"errors"
	"testing"

	"datagate/internal/notify"
	"datagate/pkg/services"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
)

func queueDescriptor() *services.Descriptor {
	return &services.Descriptor{
		Name:      "svc/queue",
		Mechanism: services.MechanismQueue,
		Target: services.Target{
			Brokers: []string{"broker-1:9092"},
			Topic:   "transform-requests",
		},
	}
}

func TestQueueInvokerPublishes(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndSucceed()

	inv := NewQueueInvoker(func([]string) (sarama.SyncProducer, error) {
		return producer, nil
	})

	sink := &captureSink{}
	ctx := newTestContext(granuleOperation(2), queueDescriptor(), sink)

	if err := inv.Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	// A confirmed publish is not itself a completion; the downstream
	// consumer delivers that later.
	if got := sink.all(); len(got) != 0 {
		t.Errorf("caller received %d notifications, want 0 after confirmed publish", len(got))
	}
}

func TestQueueInvokerPublishRejected(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	inv := NewQueueInvoker(func([]string) (sarama.SyncProducer, error) {
		return producer, nil
	})

	sink := &captureSink{}
	ctx := newTestContext(granuleOperation(1), queueDescriptor(), sink)

	if err := inv.Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := sink.all()
	if len(got) != 1 || got[0].Status != notify.StatusFailed {
		t.Fatalf("caller notifications = %+v, want exactly one failure", got)
	}
}

func TestQueueInvokerBrokerConnectFailure(t *testing.T) {
	inv := NewQueueInvoker(func([]string) (sarama.SyncProducer, error) {
		return nil, errors.New("no reachable brokers")
	})

	sink := &captureSink{}
	ctx := newTestContext(granuleOperation(1), queueDescriptor(), sink)

	if err := inv.Submit(ctx); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got := sink.all()
	if len(got) != 1 || got[0].Status != notify.StatusFailed {
		t.Fatalf("caller notifications = %+v, want exactly one failure", got)
	}
}
