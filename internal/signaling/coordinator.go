package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mossy-p/call-signaling/internal/models"
	"github.com/mossy-p/call-signaling/internal/store"
)

// ErrMissingTarget is returned for an answer without to_user_id.
var ErrMissingTarget = errors.New("missing to_user_id")

// Sender delivers an event to connected users.
type Sender interface {
	Send(ids []string, event models.Event, payload any) int
}

// Coordinator implements the call event handlers. Rosters are always read
// back from the store; nothing about call membership is cached here.
type Coordinator struct {
	calls    store.CallStore
	out      Sender
	log      *slog.Logger
	handlers Handlers
}

func NewCoordinator(calls store.CallStore, out Sender, log *slog.Logger) *Coordinator {
	c := &Coordinator{
		calls: calls,
		out:   out,
		log:   log.With("component", "coordinator"),
	}
	c.handlers = Handlers{
		models.EventCallJoin:        c.join,
		models.EventCallLeave:       c.leave,
		models.EventCallPCOffer:     c.pcOffer,
		models.EventCallPCAnswer:    c.pcAnswer,
		models.EventCallPCCandidate: c.pcIceCandidate,
		models.EventCallMessage:     c.message,
		models.EventCallMessages:    c.messages,
	}
	return c
}

// Handlers returns the inbound vocabulary bound on every connection.
func (c *Coordinator) Handlers() Handlers {
	return c.handlers
}

func callRef(payload json.RawMessage) (string, error) {
	var ref models.CallRef
	if err := decodePayload(payload, &ref); err != nil {
		return "", err
	}
	if ref.ID == "" {
		return "", fmt.Errorf("%w: missing call id", ErrMalformedPayload)
	}
	return ref.ID, nil
}

func (c *Coordinator) join(ctx context.Context, user models.User, payload json.RawMessage) error {
	callID, err := callRef(payload)
	if err != nil {
		return err
	}

	call, err := c.calls.AppendMember(ctx, callID, user.ID)
	if err != nil {
		return fmt.Errorf("append member: %w", err)
	}

	users, err := c.calls.GetUsers(ctx, call.Users)
	if err != nil {
		return fmt.Errorf("get users: %w", err)
	}

	c.out.Send(call.Others(user.ID), models.EventCallUserJoined, models.MemberEvent{ID: callID, User: user})
	c.out.Send([]string{user.ID}, models.EventCallJoined, models.RosterEvent{ID: callID, Users: inRosterOrder(call.Users, users)})
	return nil
}

func (c *Coordinator) leave(ctx context.Context, user models.User, payload json.RawMessage) error {
	callID, err := callRef(payload)
	if err != nil {
		return err
	}

	call, err := c.calls.RemoveMember(ctx, callID, user.ID)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}

	c.out.Send(call.Others(user.ID), models.EventCallUserLeft, models.MemberEvent{ID: callID, User: user})
	return nil
}

// pcOffer goes to the explicit to_user_id when given, otherwise to the rest
// of the call.
func (c *Coordinator) pcOffer(ctx context.Context, user models.User, payload json.RawMessage) error {
	return c.relayToCall(ctx, user, payload, models.EventCallPCOffer, true)
}

func (c *Coordinator) pcIceCandidate(ctx context.Context, user models.User, payload json.RawMessage) error {
	return c.relayToCall(ctx, user, payload, models.EventCallPCCandidate, false)
}

func (c *Coordinator) relayToCall(ctx context.Context, user models.User, payload json.RawMessage, event models.Event, allowTarget bool) error {
	r, err := decodeRelay(payload)
	if err != nil {
		return err
	}
	if r.ID == "" {
		return fmt.Errorf("%w: missing call id", ErrMalformedPayload)
	}

	call, err := c.calls.GetCall(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("get call: %w", err)
	}

	to := call.Others(user.ID)
	if allowTarget && len(r.ToUserID) > 0 {
		to = r.ToUserID
	}

	out, err := r.withSender(user)
	if err != nil {
		return err
	}
	c.out.Send(to, event, out)
	return nil
}

// pcAnswer is point-to-point and never consults the roster.
func (c *Coordinator) pcAnswer(_ context.Context, user models.User, payload json.RawMessage) error {
	r, err := decodeRelay(payload)
	if err != nil {
		return err
	}
	if len(r.ToUserID) == 0 {
		return ErrMissingTarget
	}

	out, err := r.withSender(user)
	if err != nil {
		return err
	}
	c.out.Send(r.ToUserID, models.EventCallPCAnswer, out)
	return nil
}

func (c *Coordinator) message(ctx context.Context, user models.User, payload json.RawMessage) error {
	var req models.ChatRequest
	if err := decodePayload(payload, &req); err != nil {
		return err
	}
	if req.ID == "" {
		return fmt.Errorf("%w: missing call id", ErrMalformedPayload)
	}
	if strings.TrimSpace(req.Text) == "" {
		return fmt.Errorf("%w: empty text", ErrMalformedPayload)
	}

	msg, err := c.calls.InsertMessage(ctx, req.Text, user.ID, req.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	call, err := c.calls.GetCall(ctx, req.ID)
	if err != nil {
		return fmt.Errorf("get call: %w", err)
	}

	msg.UserName = user.Name
	c.out.Send(call.Users, models.EventCallMessage, models.ChatEvent{ID: req.ID, Message: *msg})
	return nil
}

func (c *Coordinator) messages(ctx context.Context, user models.User, payload json.RawMessage) error {
	callID, err := callRef(payload)
	if err != nil {
		return err
	}

	msgs, err := c.calls.GetMessages(ctx, callID)
	if err != nil {
		return fmt.Errorf("get messages: %w", err)
	}

	c.out.Send([]string{user.ID}, models.EventCallMessages, models.HistoryEvent{ID: callID, Messages: msgs})
	return nil
}

// Disconnect removes user from every call it is still in and tells the
// remaining members of each.
func (c *Coordinator) Disconnect(ctx context.Context, user models.User) error {
	calls, err := c.calls.RemoveMemberFromAllCalls(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("remove from calls: %w", err)
	}

	for _, call := range calls {
		c.out.Send(call.Others(user.ID), models.EventCallUserDisconnected, models.MemberEvent{ID: call.ID, User: user})
	}

	if len(calls) > 0 {
		c.log.Debug("removed disconnected user from calls", "user_id", user.ID, "calls", len(calls))
	}
	return nil
}

// inRosterOrder orders users to match roster, listing each user once.
func inRosterOrder(roster []string, users []models.User) []models.User {
	byID := make(map[string]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := make([]models.User, 0, len(users))
	for _, id := range roster {
		u, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, u)
		delete(byID, id)
	}
	return out
}
