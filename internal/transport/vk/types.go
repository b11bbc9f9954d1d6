package vk

import (
	"strconv"
	"strings"

	"github.com/bytedance/sonic"

	"tradebot/internal/model"
)

type Response[T any] struct {
	Response T         `json:"response"`
	Error    *APIError `json:"error"`
}

type APIError struct {
	Code    int    `json:"error_code"`
	Message string `json:"error_msg"`
}

// Timestamp accepts the long poll "ts" as either a JSON string or number.
type Timestamp string

func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := sonic.ConfigFastest.Unmarshal(data, &s); err != nil {
			return err
		}
		*ts = Timestamp(s)
		return nil
	}
	if raw == "null" {
		return nil
	}
	if _, err := strconv.ParseInt(raw, 10, 64); err != nil {
		return err
	}
	*ts = Timestamp(raw)
	return nil
}

type LongPollServer struct {
	Key    string    `json:"key"`
	Server string    `json:"server"`
	TS     Timestamp `json:"ts"`
}

type LongPollResponse struct {
	TS      Timestamp       `json:"ts"`
	Updates []LongPollEvent `json:"updates"`
	Failed  int             `json:"failed"`
}

type LongPollEvent struct {
	Type   string `json:"type"`
	Object struct {
		Message Message `json:"message"`
	} `json:"object"`
}

type Message struct {
	ID     int64  `json:"id"`
	FromID int64  `json:"from_id"`
	PeerID int64  `json:"peer_id"`
	Text   string `json:"text"`
}

func (m Message) toUpdate() model.Update {
	return model.Update{
		ID:             m.ID,
		ConversationID: m.PeerID,
		SenderID:       m.FromID,
		Text:           m.Text,
	}
}

type ConversationMembers struct {
	Profiles []Profile `json:"profiles"`
}

type Profile struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (p Profile) toModel() model.Profile {
	return model.Profile{ExternalID: p.ID, FirstName: p.FirstName, LastName: p.LastName}
}
