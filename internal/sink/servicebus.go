package sink

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"

	"github.com/katasec/dstream-rowwatch/internal/logging"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// ServiceBusPublisher sends events to a queue in as few batches as the size limit allows.
type ServiceBusPublisher struct {
	client *azservicebus.Client
	sender *azservicebus.Sender
	queue  string
}

// NewServiceBusPublisher opens a sender on queue.
func NewServiceBusPublisher(connectionString, queue string) (*ServiceBusPublisher, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		client.Close(context.Background())
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}
	return &ServiceBusPublisher{client: client, sender: sender, queue: queue}, nil
}

func (p *ServiceBusPublisher) PublishChanges(ctx context.Context, events []cdc.ChangeEvent) error {
	log := logging.GetLogger()

	batch, err := p.sender.NewMessageBatch(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to create message batch: %w", err)
	}

	for _, evt := range events {
		msg, err := serviceBusMessage(evt)
		if err != nil {
			return err
		}

		err = batch.AddMessage(msg, nil)
		if errors.Is(err, azservicebus.ErrMessageTooLarge) {
			if batch.NumMessages() == 0 {
				return fmt.Errorf("change event %s exceeds the maximum message size", evt.ID)
			}
			if err := p.send(ctx, batch); err != nil {
				return err
			}
			log.Debug("Sent full batch", "queue", p.queue, "messages", batch.NumMessages())
			if batch, err = p.sender.NewMessageBatch(ctx, nil); err != nil {
				return fmt.Errorf("failed to create message batch: %w", err)
			}
			err = batch.AddMessage(msg, nil)
		}
		if err != nil {
			return fmt.Errorf("failed to add change event %s to batch: %w", evt.ID, err)
		}
	}

	if batch.NumMessages() > 0 {
		return p.send(ctx, batch)
	}
	return nil
}

func (p *ServiceBusPublisher) send(ctx context.Context, batch *azservicebus.MessageBatch) error {
	if err := p.sender.SendMessageBatch(ctx, batch, nil); err != nil {
		return fmt.Errorf("failed to send batch to %s: %w", p.queue, err)
	}
	return nil
}

func serviceBusMessage(evt cdc.ChangeEvent) (*azservicebus.Message, error) {
	data, err := Encode(evt)
	if err != nil {
		return nil, err
	}
	return &azservicebus.Message{
		MessageID:   to.Ptr(evt.ID),
		ContentType: to.Ptr("application/json"),
		Subject:     to.Ptr(evt.Watcher),
		ApplicationProperties: map[string]any{
			"change_type": string(evt.ChangeType),
			"identity":    int64(evt.Identity),
		},
		Body: data,
	}, nil
}

func (p *ServiceBusPublisher) Close() error {
	ctx := context.Background()
	err := p.sender.Close(ctx)
	if cerr := p.client.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
