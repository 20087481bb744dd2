// Package signaling implements the live side of the call server: the
// registry of connected users, per-user event bindings, and the handlers that
// turn inbound call events into roster changes and relayed frames.
package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mossy-p/call-signaling/internal/models"
)

var (
	// ErrMalformedFrame is returned for frames that are not a two-element
	// [event, payload] array with a string event.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrMalformedPayload is returned by handlers whose payload lacks a
	// required field or has the wrong shape.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Encode serializes an outbound [event, payload] envelope. Timestamps in the
// payload come out as RFC 3339 strings.
func Encode(event models.Event, payload any) ([]byte, error) {
	return json.Marshal([2]any{event, payload})
}

// Decode splits an inbound envelope into its event name and raw payload.
func Decode(frame []byte) (models.Event, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(frame, &parts); err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("%w: want 2 elements, got %d", ErrMalformedFrame, len(parts))
	}

	var event string
	if err := json.Unmarshal(parts[0], &event); err != nil {
		return "", nil, fmt.Errorf("%w: event name: %v", ErrMalformedFrame, err)
	}

	return models.Event(event), parts[1], nil
}

// Targets is a to_user_id value: either one user id or a list of them.
type Targets []string

func (t *Targets) UnmarshalJSON(b []byte) error {
	var single string
	if err := json.Unmarshal(b, &single); err == nil {
		if single == "" {
			*t = nil
		} else {
			*t = Targets{single}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*t = many
	return nil
}

// relay is an inbound signaling payload kept verbatim for forwarding.
type relay struct {
	ID       string
	ToUserID Targets
	fields   map[string]json.RawMessage
}

func decodeRelay(payload json.RawMessage) (*relay, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	r := &relay{fields: fields}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &r.ID); err != nil {
			return nil, fmt.Errorf("%w: id: %v", ErrMalformedPayload, err)
		}
	}
	if raw, ok := fields["to_user_id"]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &r.ToUserID); err != nil {
			return nil, fmt.Errorf("%w: to_user_id: %v", ErrMalformedPayload, err)
		}
	}
	return r, nil
}

// withSender returns the original payload with "user" set to the sender.
func (r *relay) withSender(user models.User) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(r.fields)+1)
	for k, v := range r.fields {
		out[k] = v
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}
	out["user"] = raw
	return out, nil
}

func decodePayload(payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
