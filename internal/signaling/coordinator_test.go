package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	store    *store.MemoryStore
	registry *Registry
	coord    *Coordinator
	users    map[string]models.User
	peers    map[string]*recorder
	callID   string
}

// newFixture creates connected users with the given names and one empty call.
func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{
		store: store.NewMemoryStore(),
		users: make(map[string]models.User),
		peers: make(map[string]*recorder),
	}
	f.registry = NewRegistry(discardLogger())
	f.coord = NewCoordinator(f.store, f.registry, discardLogger())

	for _, name := range names {
		u, err := f.store.CreateUser(ctx, name)
		require.NoError(t, err)
		f.users[name] = *u
		f.peers[name] = &recorder{}
		f.registry.Register(u.ID, f.peers[name])
	}

	call, err := f.store.CreateCall(ctx)
	require.NoError(t, err)
	f.callID = call.ID
	return f
}

func (f *fixture) do(t *testing.T, who string, event models.Event, payload any) error {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	h, ok := f.coord.Handlers()[event]
	require.True(t, ok, "no handler for %s", event)
	return h(context.Background(), f.users[who], raw)
}

func (f *fixture) mustDo(t *testing.T, who string, event models.Event, payload any) {
	t.Helper()
	require.NoError(t, f.do(t, who, event, payload))
}

func (f *fixture) reset() {
	for _, p := range f.peers {
		p.mu.Lock()
		p.frames = nil
		p.mu.Unlock()
	}
}

func decodeAs[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func TestCoordinator_HandlersCoverVocabulary(t *testing.T) {
	f := newFixture(t)
	want := []models.Event{
		models.EventCallJoin, models.EventCallLeave, models.EventCallPCOffer,
		models.EventCallPCAnswer, models.EventCallPCCandidate,
		models.EventCallMessage, models.EventCallMessages,
	}
	assert.Len(t, f.coord.Handlers(), len(want))
	for _, e := range want {
		assert.Contains(t, f.coord.Handlers(), e)
	}
}

func TestJoin_NotifiesOthersAndSendsRosterToJoiner(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")

	f.mustDo(t, "bob", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.mustDo(t, "carol", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.reset()

	f.mustDo(t, "alice", models.EventCallJoin, models.CallRef{ID: f.callID})

	for _, other := range []string{"bob", "carol"} {
		got := f.peers[other].of(models.EventCallUserJoined)
		require.Len(t, got, 1, other)
		ev := decodeAs[models.MemberEvent](t, got[0].Payload)
		assert.Equal(t, f.callID, ev.ID)
		assert.Equal(t, f.users["alice"], ev.User)
		assert.Empty(t, f.peers[other].of(models.EventCallJoined))
	}

	assert.Empty(t, f.peers["alice"].of(models.EventCallUserJoined))
	joined := f.peers["alice"].of(models.EventCallJoined)
	require.Len(t, joined, 1)
	roster := decodeAs[models.RosterEvent](t, joined[0].Payload)
	assert.Equal(t, f.callID, roster.ID)
	assert.Equal(t, []models.User{f.users["bob"], f.users["carol"], f.users["alice"]}, roster.Users)
}

func TestJoin_RepeatedJoinDeliversOncePerPeer(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	f.mustDo(t, "alice", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.mustDo(t, "alice", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.reset()

	f.mustDo(t, "bob", models.EventCallJoin, models.CallRef{ID: f.callID})

	// The roster holds alice twice; she still receives a single notification
	// and appears once in bob's roster.
	assert.Len(t, f.peers["alice"].of(models.EventCallUserJoined), 1)
	roster := decodeAs[models.RosterEvent](t, f.peers["bob"].of(models.EventCallJoined)[0].Payload)
	assert.Len(t, roster.Users, 2)
}

func TestJoin_UnknownCallSendsNothing(t *testing.T) {
	f := newFixture(t, "alice")

	err := f.do(t, "alice", models.EventCallJoin, models.CallRef{ID: "missing"})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.peers["alice"].all())
}

func TestJoin_MissingCallID(t *testing.T) {
	f := newFixture(t, "alice")
	assert.ErrorIs(t, f.do(t, "alice", models.EventCallJoin, map[string]any{}), ErrMalformedPayload)
	assert.ErrorIs(t, f.do(t, "alice", models.EventCallJoin, nil), ErrMalformedPayload)
}

func TestLeave_NotifiesRemainingOnly(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	for _, who := range []string{"alice", "bob", "carol"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.reset()

	f.mustDo(t, "alice", models.EventCallLeave, models.CallRef{ID: f.callID})

	assert.Empty(t, f.peers["alice"].all())
	for _, other := range []string{"bob", "carol"} {
		got := f.peers[other].of(models.EventCallUserLeft)
		require.Len(t, got, 1)
		assert.Equal(t, f.users["alice"], decodeAs[models.MemberEvent](t, got[0].Payload).User)
	}

	call, err := f.store.GetCall(context.Background(), f.callID)
	require.NoError(t, err)
	assert.NotContains(t, call.Users, f.users["alice"].ID)
}

func TestPCOffer_BroadcastsToOthersWithoutTarget(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol", "dave")
	for _, who := range []string{"alice", "bob", "carol"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.reset()

	f.mustDo(t, "alice", models.EventCallPCOffer, map[string]any{
		"id":    f.callID,
		"offer": map[string]string{"type": "offer", "sdp": "v=0"},
	})

	assert.Empty(t, f.peers["alice"].all())
	assert.Empty(t, f.peers["dave"].all(), "non-members never receive the offer")
	for _, other := range []string{"bob", "carol"} {
		got := f.peers[other].of(models.EventCallPCOffer)
		require.Len(t, got, 1)
		body := decodeAs[map[string]json.RawMessage](t, got[0].Payload)
		assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(body["offer"]))
		assert.Equal(t, f.users["alice"], decodeAs[models.User](t, body["user"]))
	}
}

func TestPCOffer_ExplicitTarget(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	for _, who := range []string{"alice", "bob", "carol"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.reset()

	f.mustDo(t, "alice", models.EventCallPCOffer, map[string]any{
		"id":         f.callID,
		"to_user_id": f.users["carol"].ID,
	})

	assert.Empty(t, f.peers["bob"].all())
	assert.Len(t, f.peers["carol"].of(models.EventCallPCOffer), 1)
}

func TestPCOffer_UnknownCall(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	err := f.do(t, "alice", models.EventCallPCOffer, map[string]any{"id": "missing", "to_user_id": f.users["bob"].ID})
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.peers["bob"].all())
}

func TestPCAnswer_PointToPoint(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	for _, who := range []string{"alice", "bob", "carol"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.reset()

	f.mustDo(t, "bob", models.EventCallPCAnswer, map[string]any{
		"id":         f.callID,
		"to_user_id": f.users["alice"].ID,
		"answer":     map[string]string{"type": "answer", "sdp": "v=0"},
	})

	got := f.peers["alice"].of(models.EventCallPCAnswer)
	require.Len(t, got, 1)
	body := decodeAs[map[string]json.RawMessage](t, got[0].Payload)
	assert.Equal(t, f.users["bob"], decodeAs[models.User](t, body["user"]))
	assert.Empty(t, f.peers["bob"].all())
	assert.Empty(t, f.peers["carol"].all())
}

func TestPCAnswer_NoRosterLookup(t *testing.T) {
	f := newFixture(t, "alice", "bob")

	// The call id is never checked for answers.
	f.mustDo(t, "bob", models.EventCallPCAnswer, map[string]any{"id": "not-a-call", "to_user_id": f.users["alice"].ID})
	assert.Len(t, f.peers["alice"].of(models.EventCallPCAnswer), 1)
}

func TestPCAnswer_MissingTarget(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	assert.ErrorIs(t, f.do(t, "bob", models.EventCallPCAnswer, map[string]any{"id": f.callID}), ErrMissingTarget)
	assert.Empty(t, f.peers["alice"].all())
}

func TestPCIceCandidate_IgnoresExplicitTarget(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	for _, who := range []string{"alice", "bob", "carol"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.reset()

	f.mustDo(t, "alice", models.EventCallPCCandidate, map[string]any{
		"id":         f.callID,
		"to_user_id": f.users["bob"].ID,
		"candidate":  map[string]any{"candidate": "candidate:1 1 udp 1 10.0.0.1 9 typ host", "sdpMid": "0"},
	})

	assert.Empty(t, f.peers["alice"].all())
	assert.Len(t, f.peers["bob"].of(models.EventCallPCCandidate), 1)
	assert.Len(t, f.peers["carol"].of(models.EventCallPCCandidate), 1)
}

func TestMessage_PersistsAndBroadcastsToEveryoneIncludingSender(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	for _, who := range []string{"alice", "bob"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.reset()

	f.mustDo(t, "alice", models.EventCallMessage, models.ChatRequest{ID: f.callID, Text: "hi"})

	for _, who := range []string{"alice", "bob"} {
		got := f.peers[who].of(models.EventCallMessage)
		require.Len(t, got, 1, who)
		ev := decodeAs[models.ChatEvent](t, got[0].Payload)
		assert.Equal(t, f.callID, ev.ID)
		assert.Equal(t, "hi", ev.Message.Text)
		assert.Equal(t, "alice", ev.Message.UserName)
		assert.Equal(t, f.users["alice"].ID, ev.Message.UserID)
		assert.False(t, ev.Message.CreatedAt.IsZero())
	}
	assert.Empty(t, f.peers["carol"].all())
}

func TestMessage_EmptyTextRejected(t *testing.T) {
	f := newFixture(t, "alice")
	f.mustDo(t, "alice", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.reset()

	assert.ErrorIs(t, f.do(t, "alice", models.EventCallMessage, models.ChatRequest{ID: f.callID, Text: "  "}), ErrMalformedPayload)
	assert.Empty(t, f.peers["alice"].all())

	msgs, err := f.store.GetMessages(context.Background(), f.callID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessages_HistoryToRequesterOnly(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	for _, who := range []string{"alice", "bob"} {
		f.mustDo(t, who, models.EventCallJoin, models.CallRef{ID: f.callID})
	}
	f.mustDo(t, "alice", models.EventCallMessage, models.ChatRequest{ID: f.callID, Text: "hi"})
	f.mustDo(t, "bob", models.EventCallMessage, models.ChatRequest{ID: f.callID, Text: "hey"})
	f.reset()

	f.mustDo(t, "bob", models.EventCallMessages, models.CallRef{ID: f.callID})

	assert.Empty(t, f.peers["alice"].all())
	got := f.peers["bob"].of(models.EventCallMessages)
	require.Len(t, got, 1)
	hist := decodeAs[models.HistoryEvent](t, got[0].Payload)
	assert.Equal(t, f.callID, hist.ID)
	require.Len(t, hist.Messages, 2)
	assert.Equal(t, "hi", hist.Messages[0].Text)
	assert.Equal(t, "alice", hist.Messages[0].UserName)
	assert.Equal(t, "bob", hist.Messages[1].UserName)
	assert.False(t, hist.Messages[1].CreatedAt.Before(hist.Messages[0].CreatedAt))
}

func TestMessages_EmptyHistoryIsEmptyList(t *testing.T) {
	f := newFixture(t, "alice")
	f.mustDo(t, "alice", models.EventCallMessages, models.CallRef{ID: f.callID})

	got := f.peers["alice"].of(models.EventCallMessages)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":"`+f.callID+`","messages":[]}`, string(got[0].Payload))
}

func TestDisconnect_CleansEveryCall(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	second, err := f.store.CreateCall(ctx)
	require.NoError(t, err)

	f.mustDo(t, "alice", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.mustDo(t, "bob", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.mustDo(t, "alice", models.EventCallJoin, models.CallRef{ID: second.ID})
	f.mustDo(t, "carol", models.EventCallJoin, models.CallRef{ID: second.ID})
	f.reset()

	require.NoError(t, f.coord.Disconnect(ctx, f.users["alice"]))

	for who, callID := range map[string]string{"bob": f.callID, "carol": second.ID} {
		got := f.peers[who].of(models.EventCallUserDisconnected)
		require.Len(t, got, 1, who)
		ev := decodeAs[models.MemberEvent](t, got[0].Payload)
		assert.Equal(t, callID, ev.ID)
		assert.Equal(t, f.users["alice"], ev.User)
	}

	for _, id := range []string{f.callID, second.ID} {
		call, err := f.store.GetCall(ctx, id)
		require.NoError(t, err)
		assert.NotContains(t, call.Users, f.users["alice"].ID)
	}
	assert.Empty(t, f.peers["alice"].all())
}

// failingCalls fails roster and user reads while writes still succeed.
type failingCalls struct {
	store.CallStore
	err error
}

func (f failingCalls) GetUsers(context.Context, []string) ([]models.User, error) {
	return nil, f.err
}

func (f failingCalls) GetCall(context.Context, string) (*models.Call, error) {
	return nil, f.err
}

func TestStorageFailure_NoPartialBroadcast(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	f.mustDo(t, "bob", models.EventCallJoin, models.CallRef{ID: f.callID})
	f.reset()

	boom := errors.New("db down")
	coord := NewCoordinator(failingCalls{CallStore: f.store, err: boom}, f.registry, discardLogger())

	raw, _ := json.Marshal(models.CallRef{ID: f.callID})
	err := coord.Handlers()[models.EventCallJoin](context.Background(), f.users["alice"], raw)
	assert.ErrorIs(t, err, boom)

	raw, _ = json.Marshal(models.ChatRequest{ID: f.callID, Text: "hi"})
	err = coord.Handlers()[models.EventCallMessage](context.Background(), f.users["alice"], raw)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, f.peers["alice"].all())
	assert.Empty(t, f.peers["bob"].all())
}

func TestInRosterOrder(t *testing.T) {
	users := []models.User{{ID: "c", Name: "carol"}, {ID: "a", Name: "alice"}, {ID: "b", Name: "bob"}}
	got := inRosterOrder([]string{"a", "b", "a", "ghost", "c"}, users)
	assert.Equal(t, []models.User{{ID: "a", Name: "alice"}, {ID: "b", Name: "bob"}, {ID: "c", Name: "carol"}}, got)
}
