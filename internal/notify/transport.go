package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/hashicorp/go-hclog"
	"github.com/nats-io/nats.go"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Message is one rendered notification.
type Message struct {
	ID        string         `json:"id"`
	Watcher   string         `json:"watcher"`
	Change    cdc.ChangeType `json:"change_type"`
	Identity  cdc.Identity   `json:"identity"`
	To        string         `json:"to"`
	Body      string         `json:"body"`
	CreatedAt string         `json:"created_at"`
}

// Transport delivers messages to the outside world.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// LogTransport writes messages to the logger. It is the transport for dry runs.
type LogTransport struct {
	Log hclog.Logger
}

func (t LogTransport) Send(_ context.Context, msg Message) error {
	t.Log.Info("Notification", "to", msg.To, "watcher", msg.Watcher, "change", msg.Change, "body", msg.Body)
	return nil
}

func (t LogTransport) Close() error { return nil }

// natsConn is the part of *nats.Conn the transport uses.
type natsConn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSTransport publishes messages as JSON on a core NATS subject.
type NATSTransport struct {
	conn    natsConn
	subject string
}

// NewNATSTransport connects to url and publishes on subject.
func NewNATSTransport(url, subject string) (*NATSTransport, error) {
	nc, err := nats.Connect(url, nats.Name("rowwatch-notifier"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return newNATSTransport(nc, subject), nil
}

func newNATSTransport(conn natsConn, subject string) *NATSTransport {
	if subject == "" {
		subject = "rowwatch.notifications"
	}
	return &NATSTransport{conn: conn, subject: subject}
}

func (t *NATSTransport) Send(_ context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := t.conn.Publish(t.subject, data); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	return nil
}

func (t *NATSTransport) Close() error {
	return t.conn.Drain()
}

// messageSender is the part of *azservicebus.Sender the transport uses.
type messageSender interface {
	SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error
	Close(ctx context.Context) error
}

// ServiceBusTransport sends each message to an Azure Service Bus queue.
type ServiceBusTransport struct {
	client *azservicebus.Client
	sender messageSender
}

// NewServiceBusTransport opens a sender on queue.
func NewServiceBusTransport(connectionString, queue string) (*ServiceBusTransport, error) {
	client, err := azservicebus.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}
	sender, err := client.NewSender(queue, nil)
	if err != nil {
		client.Close(context.Background())
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}
	return &ServiceBusTransport{client: client, sender: sender}, nil
}

func (t *ServiceBusTransport) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	err = t.sender.SendMessage(ctx, &azservicebus.Message{
		MessageID:   to.Ptr(msg.ID),
		ContentType: to.Ptr("application/json"),
		Subject:     to.Ptr(msg.To),
		Body:        data,
	}, nil)
	if err != nil {
		return fmt.Errorf("failed to send notification: %w", err)
	}
	return nil
}

func (t *ServiceBusTransport) Close() error {
	ctx := context.Background()
	err := t.sender.Close(ctx)
	if t.client != nil {
		if cerr := t.client.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
