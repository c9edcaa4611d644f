package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	searchTimeout   = 10 * time.Second
)

// NameHit is one molecule matched by name or synonym.
type NameHit struct {
	InChIKey string  `json:"inchi_key"`
	SMILES   string  `json:"smiles"`
	Name     string  `json:"name"`
	Score    float64 `json:"score"`
}

// NameSearchResult carries one page of name matches.
type NameSearchResult struct {
	Total  int64     `json:"total"`
	Hits   []NameHit `json:"hits"`
	TookMs int64     `json:"took_ms"`
}

// Searcher answers name and synonym queries over the molecule index.
type Searcher struct {
	client *Client
	logger logging.Logger
}

func NewSearcher(client *Client, logger logging.Logger) *Searcher {
	return &Searcher{
		client: client,
		logger: logger.Named("os_searcher"),
	}
}

// SearchByName matches the query against name and synonyms, names weighted
// double. Fuzziness is automatic so common misspellings still resolve.
func (s *Searcher) SearchByName(ctx context.Context, query string, offset, limit int) (*NameSearchResult, error) {
	if query == "" {
		return nil, errors.New(errors.ErrCodeValidation, "query is required")
	}
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	dsl := map[string]interface{}{
		"from": offset,
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^2", "synonyms"},
				"fuzziness": "AUTO",
			},
		},
	}
	return s.run(ctx, dsl)
}

// Autocomplete matches a name prefix for typeahead lookups.
func (s *Searcher) Autocomplete(ctx context.Context, prefix string, limit int) (*NameSearchResult, error) {
	if prefix == "" {
		return nil, errors.New(errors.ErrCodeValidation, "prefix is required")
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 10
	}

	dsl := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"match_phrase_prefix": map[string]interface{}{
				"name": map[string]interface{}{"query": prefix},
			},
		},
	}
	return s.run(ctx, dsl)
}

// GetByInChIKey fetches a single indexed document.
func (s *Searcher) GetByInChIKey(ctx context.Context, inchiKey string) (*MoleculeDoc, error) {
	if inchiKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "inchi key is required")
	}

	req := opensearchapi.GetRequest{
		Index:      s.client.MoleculeIndex(),
		DocumentID: inchiKey,
	}
	resp, err := req.Do(ctx, s.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "get document failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return nil, ErrDocumentNotFound
	}
	if resp.IsError() {
		return nil, handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "get document failed"))
	}

	var envelope struct {
		Source MoleculeDoc `json:"_source"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode document")
	}
	return &envelope.Source, nil
}

func (s *Searcher) run(ctx context.Context, dsl map[string]interface{}) (*NameSearchResult, error) {
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query")
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	req := opensearchapi.SearchRequest{
		Index: []string{s.client.MoleculeIndex()},
		Body:  bytes.NewReader(body),
	}

	start := time.Now()
	resp, err := req.Do(ctx, s.client.GetClient())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "search request failed")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "search failed"))
	}

	result, err := parseSearchResponse(resp)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("name search executed",
		logging.Int64("total", result.Total),
		logging.Duration("latency", time.Since(start)))

	return result, nil
}

func parseSearchResponse(resp *opensearchapi.Response) (*NameSearchResult, error) {
	var raw struct {
		Took int64 `json:"took"`
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Score  float64     `json:"_score"`
				Source MoleculeDoc `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &NameSearchResult{
		Total:  raw.Hits.Total.Value,
		TookMs: raw.Took,
		Hits:   make([]NameHit, 0, len(raw.Hits.Hits)),
	}
	for _, h := range raw.Hits.Hits {
		result.Hits = append(result.Hits, NameHit{
			InChIKey: h.Source.InChIKey,
			SMILES:   h.Source.SMILES,
			Name:     h.Source.Name,
			Score:    h.Score,
		})
	}
	return result, nil
}
