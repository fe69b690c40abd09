package repository

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// toggleScript s'exécute atomiquement côté Redis : SISMEMBER, mutation et SCARD
// ne peuvent pas être entrelacés avec un autre toggle.
var toggleScript = redis.NewScript(`
local liked = 0
if redis.call('SISMEMBER', KEYS[1], ARGV[1]) == 1 then
	redis.call('SREM', KEYS[1], ARGV[1])
else
	redis.call('SADD', KEYS[1], ARGV[1])
	liked = 1
end
return {liked, redis.call('SCARD', KEYS[1])}
`)

// RedisLikes garde l'ensemble des likers dans un SET Redis par contenu.
// L'existence et le propriétaire du contenu viennent du ContentRepository.
type RedisLikes struct {
	client  redis.UniversalClient
	content ports.ContentRepository
}

func NewRedisLikes(client redis.UniversalClient, content ports.ContentRepository) *RedisLikes {
	return &RedisLikes{client: client, content: content}
}

func likesKey(contentID string) string {
	return fmt.Sprintf("likes:%s", contentID)
}

func (r *RedisLikes) ToggleLike(ctx context.Context, contentID, actorID string) (domain.LikeState, error) {
	item, err := r.content.ContentByID(ctx, contentID)
	if err != nil {
		return domain.LikeState{}, err
	}

	res, err := toggleScript.Run(ctx, r.client, []string{likesKey(contentID)}, actorID).Int64Slice()
	if err != nil {
		return domain.LikeState{}, fmt.Errorf("redis: toggle like: %w", err)
	}
	if len(res) != 2 {
		return domain.LikeState{}, fmt.Errorf("redis: toggle like: unexpected reply %v", res)
	}

	return domain.LikeState{
		ContentID: contentID,
		OwnerID:   item.OwnerID,
		Liked:     res[0] == 1,
		Count:     int(res[1]),
	}, nil
}

func (r *RedisLikes) LikedBy(ctx context.Context, contentID string) ([]string, error) {
	if _, err := r.content.ContentByID(ctx, contentID); err != nil {
		return nil, err
	}
	members, err := r.client.SMembers(ctx, likesKey(contentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: liked by: %w", err)
	}
	// Ordre stable (un SET Redis n'en a pas)
	slices.Sort(members)
	return members, nil
}
