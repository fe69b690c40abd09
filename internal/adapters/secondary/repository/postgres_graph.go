package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
)

// ApplyEdge modifie following de l'acteur et followers de la cible dans UNE transaction.
// Les deux lignes sont verrouillées par ordre d'ID : deux follows croisés (A->B, B->A)
// ne peuvent pas s'interbloquer.
func (r *PostgresStore) ApplyEdge(ctx context.Context, op domain.EdgeOp, actorID, targetID string) (domain.EdgeState, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return domain.EdgeState{}, fmt.Errorf("db: begin: %w", err)
	}
	// No-op après Commit
	defer func() { _ = tx.Rollback(ctx) }()

	// Un verrou trop long remonte en 55P03 -> ErrStorageConflict -> retry côté service
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds())); err != nil {
		return domain.EdgeState{}, r.handleError(err)
	}

	rows, err := tx.Query(ctx, `SELECT id FROM accounts WHERE id = ANY($1) ORDER BY id FOR UPDATE`, []string{actorID, targetID})
	if err != nil {
		return domain.EdgeState{}, r.handleError(err)
	}
	locked, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return domain.EdgeState{}, r.handleError(err)
	}
	if len(locked) != 2 {
		return domain.EdgeState{}, domain.ErrAccountNotFound
	}

	var qFollowing, qFollowers string
	switch op {
	case domain.EdgeFollow:
		qFollowing = `UPDATE accounts SET following = array_append(following, $2), updated_at = now()
			WHERE id = $1 AND NOT ($2 = ANY(following))`
		qFollowers = `UPDATE accounts SET followers = array_append(followers, $2), updated_at = now()
			WHERE id = $1 AND NOT ($2 = ANY(followers))`
	case domain.EdgeUnfollow:
		qFollowing = `UPDATE accounts SET following = array_remove(following, $2), updated_at = now()
			WHERE id = $1 AND $2 = ANY(following)`
		qFollowers = `UPDATE accounts SET followers = array_remove(followers, $2), updated_at = now()
			WHERE id = $1 AND $2 = ANY(followers)`
	default:
		return domain.EdgeState{}, fmt.Errorf("db: unknown edge op %d", op)
	}

	tagA, err := tx.Exec(ctx, qFollowing, actorID, targetID)
	if err != nil {
		return domain.EdgeState{}, r.handleError(err)
	}
	tagB, err := tx.Exec(ctx, qFollowers, targetID, actorID)
	if err != nil {
		return domain.EdgeState{}, r.handleError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.EdgeState{}, r.handleError(err)
	}

	return domain.EdgeState{
		ActorID:   actorID,
		TargetID:  targetID,
		Following: op == domain.EdgeFollow,
		Changed:   tagA.RowsAffected()+tagB.RowsAffected() > 0,
	}, nil
}

func (r *PostgresStore) Relations(ctx context.Context, accountID string) (domain.Relations, error) {
	var rel domain.Relations
	err := r.db.QueryRow(ctx, `SELECT followers, following FROM accounts WHERE id = $1`, accountID).
		Scan(&rel.Followers, &rel.Following)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Relations{}, domain.ErrAccountNotFound
		}
		return domain.Relations{}, fmt.Errorf("db: relations: %w", err)
	}
	rel.Followers, rel.Following = nonNil(rel.Followers), nonNil(rel.Following)
	return rel, nil
}
