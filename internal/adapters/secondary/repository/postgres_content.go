package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

func (r *PostgresStore) CreateContent(ctx context.Context, item *domain.ContentItem) error {
	query := `
		INSERT INTO content_items (id, owner_id, media_url, caption, liked_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.Exec(ctx, query,
		item.ID,
		item.OwnerID,
		item.MediaURL,
		item.Caption,
		nonNil(item.LikedBy),
		item.CreatedAt,
	)
	if err != nil {
		return r.handleError(err)
	}
	return nil
}

func (r *PostgresStore) ContentByID(ctx context.Context, id string) (*domain.ContentItem, error) {
	query := `SELECT id, owner_id, media_url, caption, liked_by, created_at FROM content_items WHERE id = $1`

	var c domain.ContentItem
	err := r.db.QueryRow(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.MediaURL, &c.Caption, &c.LikedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContentNotFound
		}
		return nil, fmt.Errorf("db: content by id: %w", err)
	}
	c.LikedBy = nonNil(c.LikedBy)
	return &c, nil
}

// ToggleLike : test, mutation et recomptage en UN seul UPDATE.
// En READ COMMITTED, un UPDATE concurrent sur la même ligne attend puis réévalue
// le CASE sur la version commitée : aucune mise à jour perdue.
func (r *PostgresStore) ToggleLike(ctx context.Context, contentID, actorID string) (domain.LikeState, error) {
	query := `
		UPDATE content_items
		SET liked_by = CASE
			WHEN $2 = ANY(liked_by) THEN array_remove(liked_by, $2)
			ELSE array_append(liked_by, $2)
		END
		WHERE id = $1
		RETURNING owner_id, $2 = ANY(liked_by), cardinality(liked_by)
	`
	state := domain.LikeState{ContentID: contentID}
	err := r.db.QueryRow(ctx, query, contentID, actorID).Scan(&state.OwnerID, &state.Liked, &state.Count)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LikeState{}, domain.ErrContentNotFound
		}
		return domain.LikeState{}, r.handleError(err)
	}
	return state, nil
}

func (r *PostgresStore) LikedBy(ctx context.Context, contentID string) ([]string, error) {
	var likedBy []string
	err := r.db.QueryRow(ctx, `SELECT liked_by FROM content_items WHERE id = $1`, contentID).Scan(&likedBy)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrContentNotFound
		}
		return nil, fmt.Errorf("db: liked by: %w", err)
	}
	return nonNil(likedBy), nil
}
