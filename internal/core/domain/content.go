package domain

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxCaptionLength = 2200

// ContentItem est un post vidéo. LikeCount n'est jamais stocké : il dérive de LikedBy.
type ContentItem struct {
	ID        string
	OwnerID   string
	MediaURL  string // Référence stable renvoyée par le stockage média externe
	Caption   string
	LikedBy   []string
	CreatedAt time.Time
}

func NewContentItem(ownerID, mediaURL, caption string) (*ContentItem, error) {
	u, err := url.Parse(strings.TrimSpace(mediaURL))
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ErrInvalidMediaURL
	}
	caption = strings.TrimSpace(caption)
	if len([]rune(caption)) > MaxCaptionLength {
		caption = string([]rune(caption)[:MaxCaptionLength])
	}
	return &ContentItem{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		MediaURL:  u.String(),
		Caption:   caption,
		LikedBy:   []string{},
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (c *ContentItem) LikeCount() int { return len(c.LikedBy) }

func (c *ContentItem) IsLikedBy(accountID string) bool { return slices.Contains(c.LikedBy, accountID) }

func (c *ContentItem) Clone() *ContentItem {
	cp := *c
	cp.LikedBy = slices.Clone(c.LikedBy)
	if cp.LikedBy == nil {
		cp.LikedBy = []string{}
	}
	return &cp
}

// LikeState est le résultat autoritaire d'un toggle (membership + count recalculé).
type LikeState struct {
	ContentID string
	OwnerID   string
	Liked     bool
	Count     int
}
