package milvus

import (
	"context"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"golang.org/x/sync/errgroup"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

const (
	defaultNProbe = 16
	searchTimeout = 10 * time.Second
	maxTopK       = 16384
)

// Neighbor is one approximate nearest neighbor of a query fingerprint.
type Neighbor struct {
	ID         string
	InChIKey   string
	SMILES     string
	Similarity float64
}

// Searcher runs Tanimoto nearest-neighbor queries against the fingerprint
// collection.
type Searcher struct {
	client *Client
	index  *FingerprintIndex
	logger logging.Logger
	nprobe int
}

func NewSearcher(client *Client, index *FingerprintIndex, log logging.Logger) *Searcher {
	return &Searcher{
		client: client,
		index:  index,
		logger: log.Named("fingerprint_search"),
		nprobe: defaultNProbe,
	}
}

// SearchNearest returns up to topK indexed molecules ranked by Tanimoto
// similarity to the query fingerprint. Milvus reports JACCARD distance,
// which converts as similarity = 1 - distance.
func (s *Searcher) SearchNearest(ctx context.Context, fingerprint []byte, topK int) ([]Neighbor, error) {
	wantBytes := s.client.cfg.FingerprintBits / 8
	if len(fingerprint) != wantBytes {
		return nil, errors.Newf(errors.ErrCodeValidation,
			"query fingerprint must be %d bytes, got %d", wantBytes, len(fingerprint))
	}
	if topK <= 0 {
		topK = s.client.cfg.DefaultTopK
	}
	if topK <= 0 {
		topK = 50
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	sp, err := entity.NewIndexBinIvfFlatSearchParam(s.nprobe)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to build search params")
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	start := time.Now()
	results, err := s.client.raw().Search(searchCtx,
		s.index.CollectionName(),
		nil,
		"",
		[]string{fieldInChIKey, fieldSMILES},
		[]entity.Vector{entity.BinaryVector(fingerprint)},
		fieldFingerprint,
		entity.JACCARD,
		topK,
		sp,
		client.WithSearchQueryConsistencyLevel(entity.ClBounded),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "fingerprint search failed")
	}
	if len(results) == 0 {
		return nil, nil
	}

	neighbors := s.convert(results[0])
	s.logger.Debug("fingerprint search executed",
		logging.Int("hits", len(neighbors)),
		logging.Duration("took", time.Since(start)))
	return neighbors, nil
}

// BatchSearch runs one query per fingerprint concurrently. The result slice
// is aligned with the input order.
func (s *Searcher) BatchSearch(ctx context.Context, fingerprints [][]byte, topK int) ([][]Neighbor, error) {
	out := make([][]Neighbor, len(fingerprints))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, fp := range fingerprints {
		i, fp := i, fp
		g.Go(func() error {
			neighbors, err := s.SearchNearest(gctx, fp, topK)
			if err != nil {
				return err
			}
			out[i] = neighbors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Searcher) convert(res client.SearchResult) []Neighbor {
	keyCol, _ := res.Fields.GetColumn(fieldInChIKey).(*entity.ColumnVarChar)
	smilesCol, _ := res.Fields.GetColumn(fieldSMILES).(*entity.ColumnVarChar)

	neighbors := make([]Neighbor, 0, res.ResultCount)
	for i := 0; i < res.ResultCount; i++ {
		id, err := res.IDs.GetAsString(i)
		if err != nil {
			continue
		}
		sim := 1 - float64(res.Scores[i])
		if sim < 0 {
			sim = 0
		}
		n := Neighbor{ID: id, Similarity: sim}
		if keyCol != nil && i < keyCol.Len() {
			n.InChIKey = keyCol.Data()[i]
		}
		if smilesCol != nil && i < smilesCol.Len() {
			n.SMILES = smilesCol.Data()[i]
		}
		neighbors = append(neighbors, n)
	}
	return neighbors
}
