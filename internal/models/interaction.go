package models

import "time"

// Interaction represents a conversation between entities
type Interaction struct {
	Id                  string              `json:"id"`
	Name                string              `json:"name,omitempty"`
	IsGroup             bool                `json:"is_group"`
	CreatedByEntityId   string              `json:"created_by_entity_id,omitempty"`
	IsActive            bool                `json:"is_active"`
	LastMessageSnippet  string              `json:"last_message_snippet,omitempty"`
	LastMessageAt       time.Time           `json:"last_message_at"`
	LastMessageSenderId string              `json:"last_message_sender_entity_id,omitempty"`
	UnreadCount         int                 `json:"unread_count"`
	Metadata            map[string]any      `json:"metadata,omitempty"`
	Members             []InteractionMember `json:"members,omitempty"`
	UpdatedAt           time.Time           `json:"updated_at"`
}

func (i Interaction) RecordId() string { return i.Id }

// InteractionMember is one entity's participation in an interaction
type InteractionMember struct {
	InteractionId string    `json:"interaction_id"`
	EntityId      string    `json:"entity_id"`
	Role          string    `json:"role,omitempty"`
	DisplayName   string    `json:"display_name,omitempty"`
	AvatarURL     string    `json:"avatar_url,omitempty"`
	JoinedAt      time.Time `json:"joined_at"`
	LastReadAt    time.Time `json:"last_read_at"`
}

// Message represents a chat message inside an interaction
type Message struct {
	Id             string         `json:"id"`
	InteractionId  string         `json:"interaction_id"`
	SenderEntityId string         `json:"sender_entity_id"`
	Content        string         `json:"content"`
	MessageType    string         `json:"message_type"`
	Status         string         `json:"status,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (m Message) RecordId() string { return m.Id }

// IsOptimistic reports whether the message is a provisional local copy.
func (m Message) IsOptimistic() bool {
	v, ok := m.Metadata["is_optimistic"].(bool)
	return ok && v
}
