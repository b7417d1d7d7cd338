package chatapi

import (
	"huddle/cmd/identity"
	v1 "huddle/contracts/realtime/v1"
)

type createChatRequest struct {
	Name           *string  `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
}

type chatEnvelope struct {
	Chat v1.ChatPayload `json:"chat"`
}

type chatsEnvelope struct {
	Chats []v1.ChatPayload `json:"chats"`
}

type usersEnvelope struct {
	Users []identity.PublicUser `json:"users"`
}
