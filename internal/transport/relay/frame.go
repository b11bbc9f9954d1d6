package relay

import "tradebot/internal/model"

const (
	frameMessage       = "message"
	frameRoster        = "roster"
	frameReply         = "reply"
	frameRosterRequest = "roster_request"
)

// Frame is the single JSON envelope exchanged with the relay.
type Frame struct {
	Type           string    `json:"type"`
	ID             string    `json:"id,omitempty"`
	RequestID      string    `json:"request_id,omitempty"`
	ConversationID int64     `json:"conversation_id"`
	MessageID      int64     `json:"message_id,omitempty"`
	SenderID       int64     `json:"sender_id,omitempty"`
	Text           string    `json:"text,omitempty"`
	Profiles       []Profile `json:"profiles,omitempty"`
}

type Profile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (f Frame) update() model.Update {
	return model.Update{
		ID:             f.MessageID,
		ConversationID: f.ConversationID,
		SenderID:       f.SenderID,
		Text:           f.Text,
	}
}

func (f Frame) profiles() []model.Profile {
	out := make([]model.Profile, 0, len(f.Profiles))
	for _, p := range f.Profiles {
		out = append(out, model.Profile{ExternalID: p.ID, FirstName: p.FirstName, LastName: p.LastName})
	}
	return out
}
