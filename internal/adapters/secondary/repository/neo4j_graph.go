package repository

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/domain"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
)

// Neo4jGraph stocke les arêtes FOLLOWS dans Neo4j. Une relation orientée porte
// les deux côtés à la fois : followers et following sont deux lectures du même fait.
// Les comptes eux-mêmes restent dans l'AccountRepository (vérification d'existence).
type Neo4jGraph struct {
	driver   neo4j.DriverWithContext
	accounts ports.AccountRepository
}

func NewNeo4jGraph(driver neo4j.DriverWithContext, accounts ports.AccountRepository) *Neo4jGraph {
	return &Neo4jGraph{driver: driver, accounts: accounts}
}

// EnsureSchema crée les index pour que les lookups par ID soient O(1)
func (r *Neo4jGraph) EnsureSchema(ctx context.Context) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `CREATE CONSTRAINT account_id_unique IF NOT EXISTS FOR (a:Account) REQUIRE a.id IS UNIQUE`
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	return err
}

const (
	cypherFollow = `
		MERGE (a:Account {id: $actorId})
		MERGE (b:Account {id: $targetId})
		MERGE (a)-[r:FOLLOWS]->(b)
		ON CREATE SET r.created_at = datetime()
	`
	cypherUnfollow = `
		MATCH (a:Account {id: $actorId})-[r:FOLLOWS]->(b:Account {id: $targetId})
		DELETE r
	`
)

func (r *Neo4jGraph) ApplyEdge(ctx context.Context, op domain.EdgeOp, actorID, targetID string) (domain.EdgeState, error) {
	for _, id := range []string{actorID, targetID} {
		if _, err := r.accounts.AccountByID(ctx, id); err != nil {
			return domain.EdgeState{}, err
		}
	}

	var query string
	switch op {
	case domain.EdgeFollow:
		query = cypherFollow
	case domain.EdgeUnfollow:
		query = cypherUnfollow
	default:
		return domain.EdgeState{}, fmt.Errorf("neo4j: unknown edge op %d", op)
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	changed, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"actorId": actorID, "targetId": targetID})
		if err != nil {
			return false, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return false, err
		}
		c := summary.Counters()
		return c.RelationshipsCreated()+c.RelationshipsDeleted() > 0, nil
	})
	if err != nil {
		return domain.EdgeState{}, mapNeo4jError(err)
	}

	return domain.EdgeState{
		ActorID:   actorID,
		TargetID:  targetID,
		Following: op == domain.EdgeFollow,
		Changed:   changed.(bool),
	}, nil
}

func (r *Neo4jGraph) Relations(ctx context.Context, accountID string) (domain.Relations, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Une seule requête pour les deux sens
		query := `
			OPTIONAL MATCH (f:Account)-[:FOLLOWS]->(:Account {id: $id})
			WITH collect(f.id) AS followers
			OPTIONAL MATCH (:Account {id: $id})-[:FOLLOWS]->(t:Account)
			RETURN followers, collect(t.id) AS following
		`
		res, err := tx.Run(ctx, query, map[string]any{"id": accountID})
		if err != nil {
			return nil, err
		}
		rec, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		followers, _ := rec.Get("followers")
		following, _ := rec.Get("following")
		return domain.Relations{Followers: toStrings(followers), Following: toStrings(following)}, nil
	})
	if err != nil {
		return domain.Relations{}, mapNeo4jError(err)
	}
	return result.(domain.Relations), nil
}

// --- HELPERS ---

// Les erreurs transitoires (deadlock, leader switch) épuisent les retries internes
// du driver : on les remonte en conflit pour que le service retente à son tour.
func mapNeo4jError(err error) error {
	if neo4j.IsRetryable(err) {
		return fmt.Errorf("%w: %v", domain.ErrStorageConflict, err)
	}
	return fmt.Errorf("neo4j: %w", err)
}

func toStrings(v any) []string {
	list, _ := v.([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
