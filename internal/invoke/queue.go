// SPDX-License-Identifier: MPL-2.0

package invoke

import (
	"fmt"
	"log/slog"

	"github.com/Shopify/sarama"
)

// QueueInvoker serializes the operation and publishes it to the service's
// message topic for out-of-process pickup. A rejected publish is a terminal
// failure notification; a confirmed publish is not itself a completion — a
// downstream consumer delivers that later to the operation's completion
// address.
type QueueInvoker struct {
	newProducer ProducerFactory
}

// NewQueueInvoker creates the queue-publish invoker.
func NewQueueInvoker(newProducer ProducerFactory) *QueueInvoker {
	if newProducer == nil {
		newProducer = defaultProducerFactory
	}
	return &QueueInvoker{newProducer: newProducer}
}

// Name returns the invoker name.
func (i *QueueInvoker) Name() string { return "queue" }

// Submit publishes the operation, keyed by operation ID so all messages for
// one operation land on the same partition.
func (i *QueueInvoker) Submit(ctx *InvokeContext) error {
	if err := ctx.validate(); err != nil {
		return err
	}
	op, desc := ctx.Operation, ctx.Descriptor

	payload, err := op.Marshal()
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op, err.Error())
	}

	producer, err := i.newProducer(desc.Target.Brokers)
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to connect to brokers for service %s: %v", desc.Name, err))
	}
	defer closeProducer(producer, ctx.Logger)

	partition, offset, err := producer.SendMessage(&sarama.ProducerMessage{
		Topic: desc.Target.Topic,
		Key:   sarama.StringEncoder(op.ID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		return ctx.Router.Fail(ctx.Context, op,
			fmt.Sprintf("failed to publish to service %s: %v", desc.Name, err))
	}

	ctx.Logger.Debug("operation published",
		"service", desc.Name, "operation", op.ID, "topic", desc.Target.Topic,
		"partition", partition, "offset", offset)
	return nil
}

func closeProducer(p sarama.SyncProducer, logger *slog.Logger) {
	if err := p.Close(); err != nil {
		logger.Warn("queue producer close failed", "error", err)
	}
}
