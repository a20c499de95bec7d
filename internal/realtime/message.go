package realtime

import (
	"github.com/google/uuid"

	"github.com/yungbote/neurobridge-sync/internal/domain"
)

// Message routes one envelope to every client subscribed to Channel.
type Message struct {
	Channel  string          `json:"channel"`
	Envelope domain.Envelope `json:"envelope"`
}

// UserChannel is the channel every stream of a user joins.
func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

func ForUser(env domain.Envelope) Message {
	return Message{Channel: UserChannel(env.UserID), Envelope: env}
}
