package domain

import "time"

// EventKind est l'enum partagé par le publisher et le hub (plus de noms d'événements en chaîne libre).
type EventKind string

const (
	FollowChanged   EventKind = "FollowChanged"
	UnfollowChanged EventKind = "UnfollowChanged"
	LikeChanged     EventKind = "LikeChanged"
)

func (k EventKind) Valid() bool {
	switch k {
	case FollowChanged, UnfollowChanged, LikeChanged:
		return true
	}
	return false
}

// EventState porte l'état résultant ; seuls les champs du kind concerné sont remplis.
type EventState struct {
	Following *bool `json:"following,omitempty"`
	Liked     *bool `json:"liked,omitempty"`
	LikeCount *int  `json:"likeCount,omitempty"`
}

// ChangeEvent est immuable une fois construit : on le passe par valeur.
type ChangeEvent struct {
	Kind             EventKind  `json:"kind"`
	SubjectAccountID string     `json:"subjectAccountId"`
	TargetID         string     `json:"targetId"`
	OwnerID          string     `json:"ownerId,omitempty"`
	ResultingState   EventState `json:"resultingState"`
	OccurredAt       time.Time  `json:"occurredAt"`
}

func NewEdgeEvent(edge EdgeState) ChangeEvent {
	kind := FollowChanged
	if !edge.Following {
		kind = UnfollowChanged
	}
	following := edge.Following
	return ChangeEvent{
		Kind:             kind,
		SubjectAccountID: edge.ActorID,
		TargetID:         edge.TargetID,
		ResultingState:   EventState{Following: &following},
		OccurredAt:       time.Now().UTC(),
	}
}

func NewLikeEvent(actorID string, like LikeState) ChangeEvent {
	liked, count := like.Liked, like.Count
	return ChangeEvent{
		Kind:             LikeChanged,
		SubjectAccountID: actorID,
		TargetID:         like.ContentID,
		OwnerID:          like.OwnerID,
		ResultingState:   EventState{Liked: &liked, LikeCount: &count},
		OccurredAt:       time.Now().UTC(),
	}
}

// Recipients renvoie les comptes à notifier, sans doublon.
// Follow/Unfollow : acteur et cible. Like : propriétaire du contenu.
func (e ChangeEvent) Recipients() []string {
	switch e.Kind {
	case FollowChanged, UnfollowChanged:
		if e.SubjectAccountID == e.TargetID {
			return []string{e.SubjectAccountID}
		}
		return []string{e.SubjectAccountID, e.TargetID}
	case LikeChanged:
		if e.OwnerID == "" {
			return nil
		}
		return []string{e.OwnerID}
	default:
		return nil
	}
}
