package domain

import "github.com/google/uuid"

// ActorType distinguishes who performed an action on a lead. The audit
// trail and status history record it on every mutation.
type ActorType string

const (
	ActorSystem         ActorType = "system"
	ActorAutomatedAgent ActorType = "automated_agent"
	ActorHuman          ActorType = "human"
)

// Actor identifies the originator of a lead mutation. UserID is set only
// for human actors.
type Actor struct {
	Type   ActorType
	UserID *uuid.UUID
}

func SystemActor() Actor {
	return Actor{Type: ActorSystem}
}

func AgentActor() Actor {
	return Actor{Type: ActorAutomatedAgent}
}

func HumanActor(userID uuid.UUID) Actor {
	return Actor{Type: ActorHuman, UserID: &userID}
}

func (a Actor) String() string {
	if a.Type == ActorHuman && a.UserID != nil {
		return string(a.Type) + ":" + a.UserID.String()
	}
	return string(a.Type)
}
