package websocket

import (
	"encoding/json"

	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string      `json:"action"`
	Payload interface{} `json:"payload"`
}

// Topics clients can subscribe to.
const (
	TopicGlobal = "global" // receives every message
	TopicJobs   = "jobs"
)

// Actions sent to clients.
const (
	ActionJobUpdate = "job_update"
)

func encode(msg Message) []byte {
	b, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("action", msg.Action).Msg("Error marshalling websocket message")
		return nil
	}
	return b
}
