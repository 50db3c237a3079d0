package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/katasec/dstream-rowwatch/pkg/cdc"
)

type mockNATSConn struct {
	mock.Mock
}

func (m *mockNATSConn) Publish(subject string, data []byte) error {
	return m.Called(subject, data).Error(0)
}

func (m *mockNATSConn) Drain() error {
	return m.Called().Error(0)
}

type mockSender struct {
	mock.Mock
}

func (m *mockSender) SendMessage(ctx context.Context, message *azservicebus.Message, options *azservicebus.SendMessageOptions) error {
	return m.Called(ctx, message, options).Error(0)
}

func (m *mockSender) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func TestNATSTransport_Send(t *testing.T) {
	t.Parallel()

	conn := &mockNATSConn{}
	conn.On("Publish", "rowwatch.notifications", mock.MatchedBy(func(data []byte) bool {
		var msg Message
		return json.Unmarshal(data, &msg) == nil && msg.To == "966500" && msg.Change == cdc.Insert
	})).Return(nil)
	conn.On("Drain").Return(nil)

	transport := newNATSTransport(conn, "")
	require.NoError(t, transport.Send(context.Background(), Message{ID: "1", To: "966500", Change: cdc.Insert}))
	require.NoError(t, transport.Close())
	conn.AssertExpectations(t)
}

func TestServiceBusTransport_Send(t *testing.T) {
	t.Parallel()

	sender := &mockSender{}
	sender.On("SendMessage", mock.Anything, mock.MatchedBy(func(m *azservicebus.Message) bool {
		return *m.MessageID == "abc" && *m.Subject == "966500" && *m.ContentType == "application/json"
	}), (*azservicebus.SendMessageOptions)(nil)).Return(nil)
	sender.On("Close", mock.Anything).Return(nil)

	transport := &ServiceBusTransport{sender: sender}
	require.NoError(t, transport.Send(context.Background(), Message{ID: "abc", To: "966500"}))
	assert.NoError(t, transport.Close())
	sender.AssertExpectations(t)
}
