package domain

// EdgeState est l'état résultant d'un follow / unfollow (ActorID -> TargetID).
// Changed est faux quand l'opération était déjà appliquée (retry client, doublon).
type EdgeState struct {
	ActorID   string
	TargetID  string
	Following bool
	Changed   bool
}

// Relations regroupe les deux côtés du graphe pour un compte.
type Relations struct {
	Followers []string
	Following []string
}

// EdgeOp distingue les deux mutations du graphe.
type EdgeOp int

const (
	EdgeFollow EdgeOp = iota + 1
	EdgeUnfollow
)

func (op EdgeOp) String() string {
	switch op {
	case EdgeFollow:
		return "follow"
	case EdgeUnfollow:
		return "unfollow"
	default:
		return "unknown"
	}
}
