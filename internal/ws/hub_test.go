package ws

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"cmc-connect/internal/identity"
	"cmc-connect/internal/mocks"
	"cmc-connect/internal/models"
	"cmc-connect/internal/presence"
)

type fakeConn struct {
	frames [][]byte
	writes []models.ServerEvent
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	if len(f.frames) == 0 {
		return 0, nil, errors.New("connection closed")
	}
	frame := f.frames[0]
	f.frames = f.frames[1:]
	return 1, frame, nil
}

func (f *fakeConn) WriteJSON(v interface{}) error {
	f.writes = append(f.writes, v.(models.ServerEvent))
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

type recordingClient struct {
	events []models.ServerEvent
}

func (r *recordingClient) TrySend(ev models.ServerEvent) bool {
	r.events = append(r.events, ev)
	return true
}

type notification struct {
	receiverID int
	senderName string
	text       string
}

type fakeNotifier struct {
	sent chan notification
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{sent: make(chan notification, 16)}
}

func (f *fakeNotifier) NotifyNewMessage(_ context.Context, receiverID int, senderName, text string) {
	f.sent <- notification{receiverID: receiverID, senderName: senderName, text: text}
}

func newTestHub(t *testing.T, notifier *fakeNotifier) (*Hub, *presence.Registry) {
	t.Helper()
	users := new(mocks.UserRepositoryMock)
	users.On("Get", mock.Anything, mock.Anything).Return(models.User{ID: 1, FirstName: "Ann", LastName: "Lee"}, nil).Maybe()

	registry := presence.NewRegistry()
	hub := NewHub(registry, identity.NewDirectory(context.Background(), users), notifier)
	return hub, registry
}

func drain(c *Client) []models.ServerEvent {
	var events []models.ServerEvent
	for {
		select {
		case ev := <-c.send:
			events = append(events, ev)
		default:
			return events
		}
	}
}

func TestConnectBroadcastsDeltaAndSendsSnapshot(t *testing.T) {
	hub, _ := newTestHub(t, newFakeNotifier())

	first := NewClient(1, "c1", &fakeConn{})
	hub.Connect(first)
	drain(first)

	second := NewClient(2, "c2", &fakeConn{})
	hub.Connect(second)

	firstEvents := drain(first)
	require.Len(t, firstEvents, 1)
	require.Equal(t, models.EventPresence, firstEvents[0].Type)
	require.Equal(t, 2, firstEvents[0].UserID)
	require.True(t, firstEvents[0].Online)

	secondEvents := drain(second)
	require.Len(t, secondEvents, 1)
	require.Equal(t, models.EventPresenceState, secondEvents[0].Type)
	require.ElementsMatch(t, []int{1, 2}, secondEvents[0].Users)
}

func TestSecondConnectionDoesNotRepeatDelta(t *testing.T) {
	hub, _ := newTestHub(t, newFakeNotifier())

	observer := NewClient(1, "c1", &fakeConn{})
	hub.Connect(observer)
	drain(observer)

	phone := NewClient(2, "c2", &fakeConn{})
	laptop := NewClient(2, "c3", &fakeConn{})
	hub.Connect(phone)
	drain(observer)
	hub.Connect(laptop)

	require.Empty(t, drain(observer), "second connection of an online user must not broadcast")
}

func TestDisconnectBroadcastsOfflineOnLastConnection(t *testing.T) {
	hub, _ := newTestHub(t, newFakeNotifier())

	observer := NewClient(1, "c1", &fakeConn{})
	hub.Connect(observer)

	phone := NewClient(2, "c2", &fakeConn{})
	laptop := NewClient(2, "c3", &fakeConn{})
	hub.Connect(phone)
	hub.Connect(laptop)
	drain(observer)

	hub.Disconnect(phone)
	require.Empty(t, drain(observer), "user still online on another connection")

	hub.Disconnect(laptop)
	events := drain(observer)
	require.Len(t, events, 1)
	require.Equal(t, models.EventPresence, events[0].Type)
	require.Equal(t, 2, events[0].UserID)
	require.False(t, events[0].Online)
}

func TestDispatchSendForwardsAndNotifies(t *testing.T) {
	notifier := newFakeNotifier()
	hub, registry := newTestHub(t, notifier)

	bob := &recordingClient{}
	registry.Register(2, bob)

	hub.Dispatch(1, models.ClientEvent{
		Type:           models.EventSend,
		ConversationID: 10,
		MessageID:      42,
		Text:           "hello",
		Receivers:      []int{1, 2, 3},
	})

	require.Len(t, bob.events, 1)
	ev := bob.events[0]
	require.Equal(t, models.EventMessage, ev.Type)
	require.Equal(t, 10, ev.ConversationID)
	require.Equal(t, 42, ev.MessageID)
	require.Equal(t, 1, ev.SenderID)
	require.Equal(t, "hello", ev.Text)
	require.False(t, ev.CreatedAt.IsZero())

	// Both receivers get a push, live connection or not; the sender never does.
	got := map[int]notification{}
	for i := 0; i < 2; i++ {
		select {
		case n := <-notifier.sent:
			got[n.receiverID] = n
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for push notifications")
		}
	}
	require.Contains(t, got, 2)
	require.Contains(t, got, 3)
	require.NotContains(t, got, 1)
	require.Equal(t, "Ann Lee", got[2].senderName)
	require.Equal(t, "hello", got[2].text)
}

func TestDispatchEditAndDeleteForwardLiveOnly(t *testing.T) {
	hub, registry := newTestHub(t, newFakeNotifier())

	bob := &recordingClient{}
	registry.Register(2, bob)

	hub.Dispatch(1, models.ClientEvent{
		Type:           models.EventEdit,
		ConversationID: 10,
		MessageID:      42,
		Text:           "fixed",
		Receivers:      []int{2, 9},
	})
	hub.Dispatch(1, models.ClientEvent{
		Type:           models.EventDelete,
		ConversationID: 10,
		MessageID:      42,
		Receivers:      []int{2, 9},
	})

	require.Len(t, bob.events, 2)
	require.Equal(t, models.EventMessageEdited, bob.events[0].Type)
	require.Equal(t, "fixed", bob.events[0].Text)
	require.Equal(t, models.EventMessageDeleted, bob.events[1].Type)
	require.Equal(t, 42, bob.events[1].MessageID)
}

func TestDispatchMarkReadCarriesReader(t *testing.T) {
	hub, registry := newTestHub(t, newFakeNotifier())

	bob := &recordingClient{}
	registry.Register(2, bob)

	hub.Dispatch(7, models.ClientEvent{
		Type:           models.EventMarkRead,
		ConversationID: 10,
		Receivers:      []int{2},
	})

	require.Len(t, bob.events, 1)
	require.Equal(t, models.EventMessageRead, bob.events[0].Type)
	require.Equal(t, 7, bob.events[0].ReaderID)
}

func TestDispatchUnknownTypeIsDropped(t *testing.T) {
	hub, registry := newTestHub(t, newFakeNotifier())

	bob := &recordingClient{}
	registry.Register(2, bob)

	hub.Dispatch(1, models.ClientEvent{Type: "selfdestruct", Receivers: []int{2}})
	require.Empty(t, bob.events)
}

func TestTrySendDropsWhenBufferFull(t *testing.T) {
	client := NewClient(1, "c1", &fakeConn{})

	for i := 0; i < sendBufferSize; i++ {
		require.True(t, client.TrySend(models.ServerEvent{Type: models.EventMessage}))
	}
	require.False(t, client.TrySend(models.ServerEvent{Type: models.EventMessage}))
}

func TestReadPumpSkipsMalformedFrames(t *testing.T) {
	conn := &fakeConn{frames: [][]byte{
		[]byte("{not json"),
		[]byte(`{"type":"send","conversation_id":1,"text":"hi","receivers":[2]}`),
	}}
	client := NewClient(1, "c1", conn)

	var dispatched []models.ClientEvent
	err := client.ReadPump(func(ev models.ClientEvent) {
		dispatched = append(dispatched, ev)
	})

	require.Error(t, err)
	require.Len(t, dispatched, 1)
	require.Equal(t, models.EventSend, dispatched[0].Type)
	require.Equal(t, "hi", dispatched[0].Text)
}
