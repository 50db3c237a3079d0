package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

const (
	DefaultStream  = "ROWWATCH"
	DefaultSubject = "rowwatch.changes"
)

// jetStreamNew is swapped in tests.
var jetStreamNew = func(nc *nats.Conn) (jetstream.JetStream, error) {
	return jetstream.New(nc)
}

// NATSPublisher publishes events to JetStream on <subject>.<watcher>.<change_type>.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// NewNATSPublisher connects to url and makes sure the stream exists.
func NewNATSPublisher(ctx context.Context, url, stream, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("rowwatch"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetStreamNew(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to open JetStream: %w", err)
	}
	p := newNATSPublisher(js, subject)
	p.nc = nc
	if err := p.ensureStream(ctx, stream); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func newNATSPublisher(js jetstream.JetStream, subject string) *NATSPublisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATSPublisher{js: js, subject: subject}
}

func (p *NATSPublisher) ensureStream(ctx context.Context, stream string) error {
	if stream == "" {
		stream = DefaultStream
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := p.js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     stream,
		Subjects: []string{p.subject + ".>"},
	})
	if err != nil {
		return fmt.Errorf("failed to ensure stream %s: %w", stream, err)
	}
	return nil
}

func (p *NATSPublisher) PublishChanges(ctx context.Context, events []cdc.ChangeEvent) error {
	for _, evt := range events {
		data, err := Encode(evt)
		if err != nil {
			return err
		}
		subject := fmt.Sprintf("%s.%s.%s", p.subject, evt.Watcher, evt.ChangeType)
		if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(evt.ID)); err != nil {
			return fmt.Errorf("failed to publish change event to %s: %w", subject, err)
		}
	}
	return nil
}

func (p *NATSPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
