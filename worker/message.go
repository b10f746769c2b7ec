package worker

import (
	"encoding/json"
	"fmt"
)

// Envelope sources of the Ably queue rules.
const (
	SourcePresence = "channel.presence"
	SourceMessage  = "channel.message"
)

type QueueMessage struct {
	Source  string `json:"source"`
	AppId   string `json:"appId"`
	Channel string `json:"channel"`
	Site    string `json:"site"`
	RuleId  string `json:"ruleId"`
}

type PresenceMessage struct {
	*QueueMessage
	Presence []Presence `json:"presence"`
}

type Presence struct {
	Id           string `json:"id"`
	ClientId     string `json:"clientId"`
	ConnectionId string `json:"connectionId"`
	Timestamp    int64  `json:"timestamp"`
	Action       int    `json:"action"`
	Data         string `json:"data"`
}

func unmarshalEnvelope(payload []byte) (*QueueMessage, error) {
	msg := &QueueMessage{}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("error unmarshalling queue message: %w", err)
	}
	return msg, nil
}

func unmarshalPresence(payload []byte) (*PresenceMessage, error) {
	msg := &PresenceMessage{}
	if err := json.Unmarshal(payload, msg); err != nil {
		return nil, fmt.Errorf("error unmarshalling presence message: %w", err)
	}
	return msg, nil
}
