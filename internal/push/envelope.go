package push

import (
	"encoding/json"
	"fmt"
)

// Envelope types delivered by the push server.
const (
	TypeMessageNew         = "message.new"
	TypeMessageDeleted     = "message.deleted"
	TypeTransactionUpdate  = "transaction.update"
	TypeInteractionUpdated = "interaction.updated"
)

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type MessageDeletedPayload struct {
	MessageId     string `json:"message_id"`
	InteractionId string `json:"interaction_id"`
}

func decodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("invalid push envelope: %w", err)
	}
	if env.Type == "" {
		return env, fmt.Errorf("push envelope without type")
	}
	return env, nil
}
