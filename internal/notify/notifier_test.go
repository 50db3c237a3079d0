package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

// Test Plan for Notifier:
// - One message per matching row, rendered from row and reference data
// - CEL filters drop rows that do not match
// - Consecutive messages are spaced by the configured delay
// - Send failures do not stop the batch and are returned joined
// - Deleted identities are rendered through the id field
// - Invalid templates and filters are rejected at construction

type fakeTransport struct {
	mu     sync.Mutex
	sent   []Message
	at     []time.Time
	failTo string
}

func (f *fakeTransport) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if msg.To == f.failTo {
		return errors.New("unreachable")
	}
	f.sent = append(f.sent, msg)
	f.at = append(f.at, time.Now())
	return nil
}

func (f *fakeTransport) Close() error { return nil }

type staticRefs map[string]cdc.Row

func (s staticRefs) Get(_ context.Context, name string) (cdc.Row, error) {
	return s[name], nil
}

func mustRoute(t *testing.T, cfg RouteConfig) *Route {
	t.Helper()
	r, err := NewRoute(cfg)
	require.NoError(t, err)
	return r
}

func TestNotifier_SendsRenderedMessages(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	n := New(transport,
		WithLogger(hclog.NewNullLogger()),
		WithReferences(staticRefs{"company": {"CompanyEngName": "Acme Clinic"}}))

	route := mustRoute(t, RouteConfig{
		Change:    cdc.Insert,
		To:        "966{{ .Row.Number }}",
		Message:   "Welcome {{ .Row.Name | title }}, file {{ .ID }} at {{ .Ref.CompanyEngName }}",
		Reference: "company",
		When:      "row.Number != ''",
	})

	h := n.Handlers("patients", "PatientID", []*Route{route})
	require.NotNil(t, h.OnNew)
	assert.Nil(t, h.OnUpdate)
	assert.Nil(t, h.OnDelete)

	err := h.OnNew(context.Background(), []cdc.Row{
		{"PatientID": int64(10), "Name": "sara", "Number": "501234567"},
		{"PatientID": int64(11), "Name": "omar", "Number": ""},
	})
	require.NoError(t, err)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "966501234567", msg.To)
	assert.Equal(t, "Welcome Sara, file 10 at Acme Clinic", msg.Body)
	assert.Equal(t, cdc.Identity(10), msg.Identity)
	assert.Equal(t, "patients", msg.Watcher)
	assert.Equal(t, cdc.Insert, msg.Change)
	assert.NotEmpty(t, msg.ID)
}

func TestNotifier_DelayBetweenMessages(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	n := New(transport, WithLogger(hclog.NewNullLogger()), WithDelay(20*time.Millisecond))
	route := mustRoute(t, RouteConfig{Change: cdc.Insert, To: "{{ .Row.n }}", Message: "hi"})

	rows := []cdc.Row{{"id": 1, "n": "a"}, {"id": 2, "n": "b"}, {"id": 3, "n": "c"}}
	start := time.Now()
	require.NoError(t, n.Handlers("w", "id", []*Route{route}).OnNew(context.Background(), rows))

	require.Len(t, transport.sent, 3)
	assert.Less(t, transport.at[0].Sub(start), 20*time.Millisecond)
	assert.GreaterOrEqual(t, transport.at[2].Sub(transport.at[0]), 40*time.Millisecond)
}

func TestNotifier_DelayHonoursContext(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	n := New(transport, WithLogger(hclog.NewNullLogger()), WithDelay(time.Hour))
	route := mustRoute(t, RouteConfig{Change: cdc.Insert, To: "x", Message: "hi"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := n.Handlers("w", "id", []*Route{route}).OnNew(ctx, []cdc.Row{{"id": 1}, {"id": 2}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Len(t, transport.sent, 1)
}

func TestNotifier_FailuresDoNotStopBatch(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{failTo: "bad"}
	n := New(transport, WithLogger(hclog.NewNullLogger()))
	route := mustRoute(t, RouteConfig{Change: cdc.Update, To: "{{ .Row.to }}", Message: "changed"})

	err := n.Handlers("w", "id", []*Route{route}).OnUpdate(context.Background(), []cdc.Row{
		{"id": 1, "to": "bad"},
		{"id": 2, "to": "good"},
		{"id": 3},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "unreachable")
	assert.ErrorContains(t, err, "row 3")
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "good", transport.sent[0].To)
}

func TestNotifier_DeleteRoutes(t *testing.T) {
	t.Parallel()

	transport := &fakeTransport{}
	n := New(transport, WithLogger(hclog.NewNullLogger()))
	route := mustRoute(t, RouteConfig{
		Change:  cdc.Delete,
		To:      "audit",
		Message: "row {{ .ID }} removed",
		When:    "id > 1",
	})

	err := n.Handlers("w", "OrderID", []*Route{route}).OnDelete(context.Background(), []cdc.Identity{1, 2})
	require.NoError(t, err)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "row 2 removed", transport.sent[0].Body)
}

func TestNewRoute_Invalid(t *testing.T) {
	t.Parallel()

	cases := []RouteConfig{
		{Change: "upsert", To: "x", Message: "y"},
		{Change: cdc.Insert, To: "", Message: "y"},
		{Change: cdc.Insert, To: "{{ .Row.x", Message: "y"},
		{Change: cdc.Insert, To: "x", Message: "y", When: "row.x ==="},
	}
	for _, cfg := range cases {
		_, err := NewRoute(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestRoute_NonBoolFilter(t *testing.T) {
	t.Parallel()

	route := mustRoute(t, RouteConfig{Change: cdc.Insert, To: "x", Message: "y", When: "row.name"})
	_, err := route.Match(TemplateData{Row: cdc.Row{"name": "ada"}})
	assert.ErrorContains(t, err, "want bool")
}
