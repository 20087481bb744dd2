package models

import "time"

// Call is a persisted call and its ordered roster of user ids.
type Call struct {
	ID        string    `json:"id"`
	Users     []string  `json:"users"`
	CreatedAt time.Time `json:"created_at"`
}

// Others returns the roster without userID, keeping roster order.
func (c *Call) Others(userID string) []string {
	out := make([]string, 0, len(c.Users))
	for _, id := range c.Users {
		if id != userID {
			out = append(out, id)
		}
	}
	return out
}

// Message is a chat line posted to a call. UserName is only populated when
// the message is read back joined with its sender.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"user_id"`
	CallID    string    `json:"call_id"`
	UserName  string    `json:"user_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
