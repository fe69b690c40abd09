package http

import (
	"time"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// --- REQUÊTES ---
// Le validator filtre la forme ; les règles métier restent dans le domaine.

type registerRequest struct {
	Handle   string `json:"handle" validate:"required,min=3,max=30"`
	Contact  string `json:"contact" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Identifier string `json:"identifier" validate:"required,max=254"`
	Password   string `json:"password" validate:"required,max=128"`
}

type createContentRequest struct {
	MediaURL string `json:"mediaUrl" validate:"required,url,max=2048"`
	Caption  string `json:"caption" validate:"max=8800"`
}

// --- RÉPONSES ---

type accountView struct {
	ID             string    `json:"id"`
	Handle         string    `json:"handle"`
	Contact        string    `json:"contact,omitempty"` // Uniquement pour /v1/me
	Followers      []string  `json:"followers"`
	Following      []string  `json:"following"`
	FollowerCount  int       `json:"followerCount"`
	FollowingCount int       `json:"followingCount"`
	CreatedAt      time.Time `json:"createdAt"`
}

type authView struct {
	Account   accountView `json:"account"`
	Token     string      `json:"token"`
	ExpiresIn int64       `json:"expiresIn"` // Secondes
	ExpiresAt time.Time   `json:"expiresAt"`
}

type edgeView struct {
	ActorID   string `json:"actorId"`
	TargetID  string `json:"targetId"`
	Following bool   `json:"following"`
	Changed   bool   `json:"changed"`
}

type contentView struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	MediaURL  string    `json:"mediaUrl"`
	Caption   string    `json:"caption"`
	LikedBy   []string  `json:"likedBy"`
	LikeCount int       `json:"likeCount"`
	CreatedAt time.Time `json:"createdAt"`
}

type likeView struct {
	ContentID string `json:"contentId"`
	Liked     bool   `json:"liked"`
	Count     int    `json:"count"`
}

// --- MAPPERS ---

func toAccountView(a *domain.Account, withContact bool) accountView {
	v := accountView{
		ID:             a.ID,
		Handle:         a.Handle,
		Followers:      nonNil(a.Followers),
		Following:      nonNil(a.Following),
		FollowerCount:  len(a.Followers),
		FollowingCount: len(a.Following),
		CreatedAt:      a.CreatedAt,
	}
	if withContact {
		v.Contact = a.Contact
	}
	return v
}

func toAuthView(resp *ports.AuthResponse) authView {
	return authView{
		Account:   toAccountView(resp.Account, true),
		Token:     resp.Token,
		ExpiresIn: int64(resp.ExpiresIn.Seconds()),
		ExpiresAt: resp.ExpiresAt,
	}
}

func toEdgeView(e domain.EdgeState) edgeView {
	return edgeView{ActorID: e.ActorID, TargetID: e.TargetID, Following: e.Following, Changed: e.Changed}
}

func toContentView(c *domain.ContentItem) contentView {
	return contentView{
		ID:        c.ID,
		OwnerID:   c.OwnerID,
		MediaURL:  c.MediaURL,
		Caption:   c.Caption,
		LikedBy:   nonNil(c.LikedBy),
		LikeCount: c.LikeCount(),
		CreatedAt: c.CreatedAt,
	}
}

func toLikeView(s domain.LikeState) likeView {
	return likeView{ContentID: s.ContentID, Liked: s.Liked, Count: s.Count}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
