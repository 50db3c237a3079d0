// Package sink streams change events to downstream systems: stdout, NATS JetStream
// or an Azure Service Bus queue. Events are encoded as protobuf Struct JSON so every
// transport carries the same bytes.
package sink

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Encode renders one event as JSON.
func Encode(evt cdc.ChangeEvent) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"id":          evt.ID,
		"watcher":     evt.Watcher,
		"change_type": string(evt.ChangeType),
		"identity":    int64(evt.Identity),
		"timestamp":   evt.Timestamp,
		"data":        plainRow(evt.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode change event %s: %w", evt.ID, err)
	}
	return protojson.MarshalOptions{UseProtoNames: true}.Marshal(s)
}

// plainRow maps driver values onto the types a protobuf Struct accepts.
func plainRow(row cdc.Row) map[string]any {
	if row == nil {
		return nil
	}
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch x := v.(type) {
		case nil, bool, string, int, int8, int16, int32, int64,
			uint, uint8, uint16, uint32, uint64, float32, float64:
			out[k] = x
		case []byte:
			out[k] = base64.StdEncoding.EncodeToString(x)
		case time.Time:
			out[k] = x.UTC().Format(time.RFC3339Nano)
		case fmt.Stringer:
			out[k] = x.String()
		default:
			out[k] = fmt.Sprintf("%v", x)
		}
	}
	return out
}

// Events builds change events for a batch of rows.
func Events(watcher, idField string, change cdc.ChangeType, rows []cdc.Row) []cdc.ChangeEvent {
	ts := time.Now().UTC().Format(time.RFC3339Nano)
	out := make([]cdc.ChangeEvent, 0, len(rows))
	for _, row := range rows {
		id, _ := cdc.IdentityOf(row, idField)
		out = append(out, cdc.ChangeEvent{
			ID:         uuid.NewString(),
			Watcher:    watcher,
			ChangeType: change,
			Identity:   id,
			Data:       row,
			Timestamp:  ts,
		})
	}
	return out
}

// Handlers returns change handlers that publish every change of the named watcher.
func Handlers(watcher, idField string, pub cdc.ChangePublisher) cdc.Handlers {
	return cdc.Handlers{
		OnNew: func(ctx context.Context, rows []cdc.Row) error {
			return pub.PublishChanges(ctx, Events(watcher, idField, cdc.Insert, rows))
		},
		OnUpdate: func(ctx context.Context, rows []cdc.Row) error {
			return pub.PublishChanges(ctx, Events(watcher, idField, cdc.Update, rows))
		},
		OnDelete: func(ctx context.Context, ids []cdc.Identity) error {
			rows := make([]cdc.Row, len(ids))
			for i, id := range ids {
				rows[i] = cdc.Row{idField: int64(id)}
			}
			return pub.PublishChanges(ctx, Events(watcher, idField, cdc.Delete, rows))
		},
	}
}
