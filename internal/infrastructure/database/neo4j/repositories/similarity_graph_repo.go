// Package repositories persists the chemical-space similarity network:
// one node per registered molecule and a SIMILAR_TO edge for every pair
// whose Tanimoto score clears the configured threshold.
package repositories

import (
	"context"
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/turtacn/ChemScreen/internal/config"
	driver "github.com/turtacn/ChemScreen/internal/infrastructure/database/neo4j"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

const (
	defaultEdgeThreshold = 0.70
	defaultNeighborLimit = 25
	maxPathHops          = 6
)

// MoleculeNode is the graph projection of a registered molecule.
type MoleculeNode struct {
	ID       string
	InChIKey string
	SMILES   string
}

// SimilarityEdge is a candidate link between two molecules.
type SimilarityEdge struct {
	AKey  string
	BKey  string
	Score float64
}

// SimilarNeighbor is one hop in the similarity network.
type SimilarNeighbor struct {
	InChIKey string  `json:"inchi_key"`
	SMILES   string  `json:"smiles"`
	Score    float64 `json:"score"`
}

// HubMolecule is a molecule ranked by similarity degree.
type HubMolecule struct {
	InChIKey string `json:"inchi_key"`
	SMILES   string `json:"smiles"`
	Degree   int64  `json:"degree"`
}

// GraphStats summarizes the stored network.
type GraphStats struct {
	Molecules int64 `json:"molecules"`
	Edges     int64 `json:"edges"`
}

type SimilarityGraphRepo struct {
	driver    driver.DriverInterface
	threshold float64
	log       logging.Logger
}

func NewSimilarityGraphRepo(d driver.DriverInterface, cfg config.Neo4jConfig, log logging.Logger) *SimilarityGraphRepo {
	threshold := cfg.EdgeThreshold
	if threshold <= 0 || threshold > 1 {
		threshold = defaultEdgeThreshold
	}
	return &SimilarityGraphRepo{
		driver:    d,
		threshold: threshold,
		log:       log.Named("similarity_graph"),
	}
}

// Threshold is the minimum Tanimoto score at which edges are created.
func (r *SimilarityGraphRepo) Threshold() float64 {
	return r.threshold
}

// EnsureSchema creates the uniqueness constraint the MERGE queries rely on.
func (r *SimilarityGraphRepo) EnsureSchema(ctx context.Context) error {
	query := `CREATE CONSTRAINT molecule_inchi_key IF NOT EXISTS
		FOR (m:Molecule) REQUIRE m.inchi_key IS UNIQUE`
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, nil)
		return nil, err
	})
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

func (r *SimilarityGraphRepo) UpsertMolecule(ctx context.Context, node MoleculeNode) error {
	if node.InChIKey == "" {
		return errors.New(errors.ErrCodeValidation, "inchi key is required")
	}
	query := `
		MERGE (m:Molecule {inchi_key: $inchiKey})
		ON CREATE SET m.id = $id, m.smiles = $smiles, m.created_at = datetime()
		ON MATCH SET m.smiles = $smiles
	`
	params := map[string]any{
		"inchiKey": node.InChIKey,
		"id":       node.ID,
		"smiles":   node.SMILES,
	}
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	return err
}

func (r *SimilarityGraphRepo) BatchUpsertMolecules(ctx context.Context, nodes []MoleculeNode) error {
	if len(nodes) == 0 {
		return nil
	}
	query := `
		UNWIND $batch AS row
		MERGE (m:Molecule {inchi_key: row.inchi_key})
		ON CREATE SET m.id = row.id, m.smiles = row.smiles, m.created_at = datetime()
		ON MATCH SET m.smiles = row.smiles
	`
	batch := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n.InChIKey == "" {
			return errors.New(errors.ErrCodeValidation, "inchi key is required")
		}
		batch = append(batch, map[string]any{
			"inchi_key": n.InChIKey,
			"id":        n.ID,
			"smiles":    n.SMILES,
		})
	}
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"batch": batch})
		return nil, err
	})
	return err
}

// LinkSimilar records one similarity edge. Pairs below the threshold are
// skipped and reported as not linked. Edges are stored once, from the
// lexicographically smaller key, so undirected MERGE stays idempotent.
func (r *SimilarityGraphRepo) LinkSimilar(ctx context.Context, aKey, bKey string, score float64) (bool, error) {
	if aKey == "" || bKey == "" {
		return false, errors.New(errors.ErrCodeValidation, "both inchi keys are required")
	}
	if aKey == bKey {
		return false, errors.New(errors.ErrCodeValidation, "cannot link a molecule to itself")
	}
	if score < r.threshold {
		return false, nil
	}
	if bKey < aKey {
		aKey, bKey = bKey, aKey
	}

	query := `
		MATCH (a:Molecule {inchi_key: $aKey}), (b:Molecule {inchi_key: $bKey})
		MERGE (a)-[r:SIMILAR_TO]->(b)
		SET r.tanimoto = $score, r.updated_at = datetime()
	`
	params := map[string]any{"aKey": aKey, "bKey": bKey, "score": score}
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

// BatchLinkSimilar filters below-threshold pairs client side and merges the
// rest in one transaction. It returns the number of pairs written.
func (r *SimilarityGraphRepo) BatchLinkSimilar(ctx context.Context, edges []SimilarityEdge) (int, error) {
	batch := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e.Score < r.threshold || e.AKey == "" || e.BKey == "" || e.AKey == e.BKey {
			continue
		}
		a, b := e.AKey, e.BKey
		if b < a {
			a, b = b, a
		}
		batch = append(batch, map[string]any{"a": a, "b": b, "score": e.Score})
	}
	if len(batch) == 0 {
		return 0, nil
	}

	query := `
		UNWIND $batch AS row
		MATCH (a:Molecule {inchi_key: row.a}), (b:Molecule {inchi_key: row.b})
		MERGE (a)-[r:SIMILAR_TO]->(b)
		SET r.tanimoto = row.score, r.updated_at = datetime()
	`
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"batch": batch})
		return nil, err
	})
	if err != nil {
		return 0, err
	}
	return len(batch), nil
}

func (r *SimilarityGraphRepo) RemoveMolecule(ctx context.Context, inchiKey string) error {
	if inchiKey == "" {
		return errors.New(errors.ErrCodeValidation, "inchi key is required")
	}
	query := `MATCH (m:Molecule {inchi_key: $inchiKey}) DETACH DELETE m`
	_, err := r.driver.ExecuteWrite(ctx, func(tx driver.Transaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"inchiKey": inchiKey})
		return nil, err
	})
	return err
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Neighbors returns molecules directly linked to the given one, strongest
// first. The relationship is matched undirected since edges are stored once.
func (r *SimilarityGraphRepo) Neighbors(ctx context.Context, inchiKey string, minScore float64, limit int) ([]SimilarNeighbor, error) {
	if inchiKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "inchi key is required")
	}
	if limit <= 0 {
		limit = defaultNeighborLimit
	}
	if minScore < r.threshold {
		minScore = r.threshold
	}

	query := `
		MATCH (m:Molecule {inchi_key: $inchiKey})-[rel:SIMILAR_TO]-(n:Molecule)
		WHERE rel.tanimoto >= $minScore
		RETURN n.inchi_key AS inchi_key, n.smiles AS smiles, rel.tanimoto AS score
		ORDER BY score DESC
		LIMIT $limit
	`
	params := map[string]any{"inchiKey": inchiKey, "minScore": minScore, "limit": limit}

	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, result, mapNeighbor)
	})
	if err != nil {
		return nil, err
	}
	neighbors, _ := out.([]SimilarNeighbor)
	return neighbors, nil
}

// SimilarityPath finds the shortest chain of similarity edges between two
// molecules, up to maxHops. An empty slice means no path exists.
func (r *SimilarityGraphRepo) SimilarityPath(ctx context.Context, fromKey, toKey string, maxHops int) ([]string, error) {
	if fromKey == "" || toKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "both inchi keys are required")
	}
	if maxHops <= 0 || maxHops > maxPathHops {
		maxHops = maxPathHops
	}

	// Path length bounds cannot be parameterized in Cypher.
	query := `
		MATCH (a:Molecule {inchi_key: $fromKey}), (b:Molecule {inchi_key: $toKey}),
			p = shortestPath((a)-[:SIMILAR_TO*..` + strconv.Itoa(maxHops) + `]-(b))
		RETURN [n IN nodes(p) | n.inchi_key] AS keys
	`
	params := map[string]any{"fromKey": fromKey, "toKey": toKey}

	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return []string{}, result.Err()
		}
		raw, _ := result.Record().Get("keys")
		items, ok := raw.([]any)
		if !ok {
			return nil, errors.New(errors.ErrCodeInternal, "unexpected path result shape")
		}
		keys := make([]string, 0, len(items))
		for _, item := range items {
			key, _ := item.(string)
			keys = append(keys, key)
		}
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	keys, _ := out.([]string)
	return keys, nil
}

// MostConnected ranks molecules by their similarity degree, surfacing the
// densest regions of the registered chemical space.
func (r *SimilarityGraphRepo) MostConnected(ctx context.Context, limit int) ([]HubMolecule, error) {
	if limit <= 0 {
		limit = defaultNeighborLimit
	}
	query := `
		MATCH (m:Molecule)-[rel:SIMILAR_TO]-()
		RETURN m.inchi_key AS inchi_key, m.smiles AS smiles, count(rel) AS degree
		ORDER BY degree DESC
		LIMIT $limit
	`
	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"limit": limit})
		if err != nil {
			return nil, err
		}
		return driver.CollectRecords(ctx, result, mapHub)
	})
	if err != nil {
		return nil, err
	}
	hubs, _ := out.([]HubMolecule)
	return hubs, nil
}

func (r *SimilarityGraphRepo) Stats(ctx context.Context) (GraphStats, error) {
	query := `
		MATCH (m:Molecule)
		OPTIONAL MATCH (:Molecule)-[rel:SIMILAR_TO]->(:Molecule)
		RETURN count(DISTINCT m) AS molecules, count(DISTINCT rel) AS edges
	`
	out, err := r.driver.ExecuteRead(ctx, func(tx driver.Transaction) (any, error) {
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}
		return driver.ExtractSingleRecord(ctx, result, func(rec *neo4j.Record) (GraphStats, error) {
			return GraphStats{
				Molecules: asInt64(rec, "molecules"),
				Edges:     asInt64(rec, "edges"),
			}, nil
		})
	})
	if err != nil {
		return GraphStats{}, err
	}
	stats, _ := out.(GraphStats)
	return stats, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Record mappers
// ─────────────────────────────────────────────────────────────────────────────

func mapNeighbor(rec *neo4j.Record) (SimilarNeighbor, error) {
	return SimilarNeighbor{
		InChIKey: asString(rec, "inchi_key"),
		SMILES:   asString(rec, "smiles"),
		Score:    asFloat64(rec, "score"),
	}, nil
}

func mapHub(rec *neo4j.Record) (HubMolecule, error) {
	return HubMolecule{
		InChIKey: asString(rec, "inchi_key"),
		SMILES:   asString(rec, "smiles"),
		Degree:   asInt64(rec, "degree"),
	}, nil
}

func asString(rec *neo4j.Record, key string) string {
	raw, _ := rec.Get(key)
	s, _ := raw.(string)
	return s
}

func asFloat64(rec *neo4j.Record, key string) float64 {
	raw, _ := rec.Get(key)
	switch v := raw.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}

func asInt64(rec *neo4j.Record, key string) int64 {
	raw, _ := rec.Get(key)
	switch v := raw.(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}
