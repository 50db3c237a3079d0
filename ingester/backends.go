package ingester

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/katasec/dstream-rowwatch/internal/config"
	"github.com/katasec/dstream-rowwatch/internal/notify"
	"github.com/katasec/dstream-rowwatch/internal/sink"
	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// NewPublisher opens the change-event publisher described by cfg.
func NewPublisher(ctx context.Context, cfg config.PublisherConfig) (cdc.ChangePublisher, error) {
	switch cfg.Type {
	case "stdout":
		return sink.NewStdoutPublisher(nil), nil
	case "nats":
		p, err := sink.NewNATSPublisher(ctx, cfg.URL, cfg.Stream, cfg.Subject)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "servicebus":
		p, err := sink.NewServiceBusPublisher(cfg.ConnectionString, cfg.Queue)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported publisher type: %s", cfg.Type)
	}
}

// NewTransport opens the notification transport described by cfg.
func NewTransport(cfg config.NotifierConfig, log hclog.Logger) (notify.Transport, error) {
	switch cfg.Type {
	case "log":
		return notify.LogTransport{Log: log}, nil
	case "nats":
		t, err := notify.NewNATSTransport(cfg.URL, cfg.Subject)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "servicebus":
		t, err := notify.NewServiceBusTransport(cfg.ConnectionString, cfg.Queue)
		if err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %s", cfg.Type)
	}
}
