package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"relay-service/internal/mocks"
	"relay-service/internal/models"
)

type relayFixture struct {
	registry *Registry
	rooms    *Rooms
	messages *mocks.MessageRepositoryMock
	users    *mocks.UserRepositoryMock
	convs    *mocks.ConversationRepositoryMock
	relay    *MessageRelay
}

func newRelayFixture() *relayFixture {
	f := &relayFixture{
		registry: NewRegistry(),
		rooms:    NewRooms(),
		messages: new(mocks.MessageRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
		convs:    new(mocks.ConversationRepositoryMock),
	}
	f.relay = NewMessageRelay(f.registry, f.rooms, f.messages, f.users, f.convs)
	return f
}

func TestHandleCreateBroadcastsToRoom(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	peer := newTestClient("b", 2, "bob")
	f.rooms.Join("7", sender)
	f.rooms.Join("7", peer)

	stored := models.Message{
		ID: 10, ConversationID: 7, SenderID: 1, SenderUsername: "alice",
		Content: "hello", CreatedAt: time.Now(),
	}
	f.messages.On("CreateMessage", mock.Anything, 7, 1, "hello", (*int)(nil)).Return(stored, nil).Once()

	f.relay.HandleCreate(context.Background(), sender, json.RawMessage(`{"conversation_id":7,"sender_id":1,"content":"hello"}`))

	for _, c := range []*Client{sender, peer} {
		env := receiveFrame(t, c)
		require.Equal(t, models.EventMessage, env.Event)
		var event models.MessageEvent
		require.NoError(t, json.Unmarshal(env.Data, &event))
		assert.Equal(t, 10, event.ID)
		assert.Equal(t, "alice", event.SenderUsername)
		assert.False(t, event.IsDeleted)
		assert.Nil(t, event.ReadAt)
	}
	f.messages.AssertExpectations(t)
}

func TestHandleCreateAttachesReplyPreview(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	f.rooms.Join("7", sender)

	repliedTo := 9
	stored := models.Message{
		ID: 10, ConversationID: 7, SenderID: 1, SenderUsername: "alice",
		Content: "agreed", RepliedToID: &repliedTo,
	}
	replied := models.Message{
		ID: 9, ConversationID: 7, SenderID: 2, SenderUsername: "bob",
		Content: "original", IsDeleted: true,
	}
	f.messages.On("CreateMessage", mock.Anything, 7, 1, "agreed", &repliedTo).Return(stored, nil).Once()
	f.messages.On("GetMessage", mock.Anything, 9).Return(replied, nil).Once()

	f.relay.HandleCreate(context.Background(), sender, json.RawMessage(`{"conversation_id":7,"sender_id":1,"content":"agreed","replied_to_id":9}`))

	env := receiveFrame(t, sender)
	var event models.MessageEvent
	require.NoError(t, json.Unmarshal(env.Data, &event))
	require.NotNil(t, event.RepliedToContent)
	assert.Equal(t, models.DeletedMarker, *event.RepliedToContent)
	require.NotNil(t, event.RepliedToUsername)
	assert.Equal(t, "bob", *event.RepliedToUsername)
	f.messages.AssertExpectations(t)
}

func TestHandleCreateDropsSenderMismatch(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	f.rooms.Join("7", sender)

	f.relay.HandleCreate(context.Background(), sender, json.RawMessage(`{"conversation_id":7,"sender_id":2,"content":"spoofed"}`))

	requireNoFrame(t, sender)
	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleCreateDropsEmptyContent(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")

	f.relay.HandleCreate(context.Background(), sender, json.RawMessage(`{"conversation_id":7,"sender_id":1,"content":"   "}`))

	f.messages.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEditBroadcastsNewContent(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	f.rooms.Join("7", sender)

	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ConversationID: 7, SenderID: 1, Content: "old"}, nil).Once()
	f.messages.On("UpdateContent", mock.Anything, 10, "new").Return(nil).Once()

	f.relay.HandleEdit(context.Background(), sender, json.RawMessage(`{"message_id":10,"content":"new"}`))

	env := receiveFrame(t, sender)
	require.Equal(t, models.EventMessageEdited, env.Event)
	var event models.MessageEditedEvent
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.Equal(t, "new", event.Content)
	assert.Equal(t, 7, event.ConversationID)
	f.messages.AssertExpectations(t)
}

func TestHandleEditUnchangedContentIsNoOp(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	f.rooms.Join("7", sender)

	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ConversationID: 7, SenderID: 1, Content: "same"}, nil).Once()

	f.relay.HandleEdit(context.Background(), sender, json.RawMessage(`{"message_id":10,"content":"same"}`))

	requireNoFrame(t, sender)
	f.messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEditDropsNonSender(t *testing.T) {
	f := newRelayFixture()
	intruder := newTestClient("a", 3, "carol")

	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ConversationID: 7, SenderID: 1, Content: "old"}, nil).Once()

	f.relay.HandleEdit(context.Background(), intruder, json.RawMessage(`{"message_id":10,"content":"hijack"}`))

	f.messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleEditDropsDeletedMessage(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")

	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ConversationID: 7, SenderID: 1, Content: "old", IsDeleted: true}, nil).Once()

	f.relay.HandleEdit(context.Background(), sender, json.RawMessage(`{"message_id":10,"content":"new"}`))

	f.messages.AssertNotCalled(t, "UpdateContent", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDeleteBroadcastsDeletion(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	peer := newTestClient("b", 2, "bob")
	f.rooms.Join("7", sender)
	f.rooms.Join("7", peer)

	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ConversationID: 7, SenderID: 1, Content: "secret"}, nil).Once()
	f.messages.On("MarkDeleted", mock.Anything, 10).Return(nil).Once()

	f.relay.HandleDelete(context.Background(), sender, json.RawMessage(`{"message_id":10}`))

	env := receiveFrame(t, peer)
	require.Equal(t, models.EventMessageDeleted, env.Event)
	var event models.MessageDeletedEvent
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.Equal(t, 10, event.MessageID)
	f.messages.AssertExpectations(t)
}

func TestHandleDeleteIsIdempotent(t *testing.T) {
	f := newRelayFixture()
	sender := newTestClient("a", 1, "alice")
	f.rooms.Join("7", sender)

	f.messages.On("GetMessage", mock.Anything, 10).
		Return(models.Message{ID: 10, ConversationID: 7, SenderID: 1, IsDeleted: true}, nil).Once()

	f.relay.HandleDelete(context.Background(), sender, json.RawMessage(`{"message_id":10}`))

	requireNoFrame(t, sender)
	f.messages.AssertNotCalled(t, "MarkDeleted", mock.Anything, mock.Anything)
}

func TestMarkReadSendsReceiptsToSendersOnly(t *testing.T) {
	f := newRelayFixture()
	senderConn := newTestClient("a", 2, "bob")
	readerConn := newTestClient("b", 1, "alice")
	_, _ = f.registry.Register(senderConn)
	_, _ = f.registry.Register(readerConn)

	f.convs.On("SetLastRead", mock.Anything, 7, 1, mock.Anything).Return(nil).Once()
	f.messages.On("MarkRead", mock.Anything, 7, 1, mock.Anything).
		Return(map[int][]int{2: {10, 11}}, nil).Once()

	count, err := f.relay.MarkRead(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	env := receiveFrame(t, senderConn)
	require.Equal(t, models.EventMessagesRead, env.Event)
	var event models.MessagesReadEvent
	require.NoError(t, json.Unmarshal(env.Data, &event))
	assert.ElementsMatch(t, []int{10, 11}, event.MessageIDs)

	// The reader gets no receipt for its own action.
	requireNoFrame(t, readerConn)
	f.convs.AssertExpectations(t)
	f.messages.AssertExpectations(t)
}

func TestMarkReadNothingUnread(t *testing.T) {
	f := newRelayFixture()

	f.convs.On("SetLastRead", mock.Anything, 7, 1, mock.Anything).Return(nil).Once()
	f.messages.On("MarkRead", mock.Anything, 7, 1, mock.Anything).
		Return(map[int][]int{}, nil).Once()

	count, err := f.relay.MarkRead(context.Background(), 1, 7)
	require.NoError(t, err)
	assert.Zero(t, count)
}
