package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

var (
	ErrDocumentNotFound = errors.New(errors.ErrCodeNotFound, "document not found")
	ErrIndexFailed      = errors.New(errors.ErrCodeInternal, "document index failed")
)

const bulkBatchSize = 500

// MoleculeDoc is the searchable projection of a registered molecule.
// The document ID is the InChIKey, so re-registration overwrites in place.
type MoleculeDoc struct {
	InChIKey         string    `json:"inchi_key"`
	SMILES           string    `json:"smiles"`
	Name             string    `json:"name,omitempty"`
	Synonyms         []string  `json:"synonyms,omitempty"`
	MolecularFormula string    `json:"molecular_formula,omitempty"`
	MolecularWeight  float64   `json:"molecular_weight,omitempty"`
	RegisteredAt     time.Time `json:"registered_at"`
}

// BulkResult reports the outcome of a bulk ingestion.
type BulkResult struct {
	Succeeded int
	Failed    int
	Errors    []BulkItemError
}

type BulkItemError struct {
	DocID     string
	ErrorType string
	Reason    string
}

// Indexer manages the molecule index and document ingestion.
type Indexer struct {
	client  *Client
	logger  logging.Logger
	refresh string
}

func NewIndexer(client *Client, logger logging.Logger) *Indexer {
	return &Indexer{
		client:  client,
		logger:  logger.Named("os_indexer"),
		refresh: "false",
	}
}

func moleculeMapping() map[string]interface{} {
	return map[string]interface{}{
		"settings": map[string]interface{}{
			"number_of_shards":   1,
			"number_of_replicas": 1,
		},
		"mappings": map[string]interface{}{
			"properties": map[string]interface{}{
				"inchi_key":         map[string]interface{}{"type": "keyword"},
				"smiles":            map[string]interface{}{"type": "keyword"},
				"name":              map[string]interface{}{"type": "text"},
				"synonyms":          map[string]interface{}{"type": "text"},
				"molecular_formula": map[string]interface{}{"type": "keyword"},
				"molecular_weight":  map[string]interface{}{"type": "float"},
				"registered_at":     map[string]interface{}{"type": "date"},
			},
		},
	}
}

// EnsureIndex creates the molecule index if it does not exist yet.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	index := i.client.MoleculeIndex()

	exists, err := i.indexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(moleculeMapping())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}

	req := opensearchapi.IndicesCreateRequest{
		Index: index,
		Body:  bytes.NewReader(body),
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create index")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "index creation failed"))
	}

	i.logger.Info("molecule index created", logging.String("index", index))
	return nil
}

func (i *Indexer) indexExists(ctx context.Context, index string) (bool, error) {
	req := opensearchapi.IndicesExistsRequest{Index: []string{index}}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeInternal, "failed to check index existence")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case 200:
		return true, nil
	case 404:
		return false, nil
	}
	return false, handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "index existence check failed"))
}

// IndexMolecule writes a single document keyed by InChIKey.
func (i *Indexer) IndexMolecule(ctx context.Context, doc MoleculeDoc) error {
	if doc.InChIKey == "" {
		return errors.New(errors.ErrCodeValidation, "inchi key is required")
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal molecule document")
	}

	req := opensearchapi.IndexRequest{
		Index:      i.client.MoleculeIndex(),
		DocumentID: doc.InChIKey,
		Body:       bytes.NewReader(body),
		Refresh:    i.refresh,
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to index molecule")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return handleErrorResponse(resp, ErrIndexFailed)
	}
	return nil
}

// BulkIndex ingests documents in NDJSON batches, collecting per-document
// failures instead of aborting the corpus load.
func (i *Indexer) BulkIndex(ctx context.Context, docs []MoleculeDoc) (*BulkResult, error) {
	result := &BulkResult{}
	if len(docs) == 0 {
		return result, nil
	}
	index := i.client.MoleculeIndex()

	for start := 0; start < len(docs); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		batch := docs[start:end]

		var buf bytes.Buffer
		for _, doc := range batch {
			if doc.InChIKey == "" {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					ErrorType: "validation_error",
					Reason:    "missing inchi key",
				})
				continue
			}
			docBytes, err := json.Marshal(doc)
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     doc.InChIKey,
					ErrorType: "serialization_error",
					Reason:    err.Error(),
				})
				continue
			}
			fmt.Fprintf(&buf, `{"index":{"_index":%q,"_id":%q}}`+"\n", index, doc.InChIKey)
			buf.Write(docBytes)
			buf.WriteString("\n")
		}
		if buf.Len() == 0 {
			continue
		}

		req := opensearchapi.BulkRequest{
			Body:    bytes.NewReader(buf.Bytes()),
			Refresh: i.refresh,
		}
		resp, err := req.Do(ctx, i.client.GetClient())
		if err != nil {
			return result, errors.Wrap(err, errors.ErrCodeInternal, "bulk request failed")
		}

		err = i.collectBulkOutcome(resp, result)
		resp.Body.Close()
		if err != nil {
			return result, err
		}
	}

	i.logger.Info("bulk index completed",
		logging.Int("total", len(docs)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))

	return result, nil
}

func (i *Indexer) collectBulkOutcome(resp *opensearchapi.Response, result *BulkResult) error {
	if resp.IsError() {
		err := handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "bulk batch failed"))
		result.Failed++
		result.Errors = append(result.Errors, BulkItemError{
			ErrorType: "http_error",
			Reason:    err.Error(),
		})
		return nil
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			ID     string `json:"_id"`
			Status int    `json:"status"`
			Error  struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error,omitempty"`
		} `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode bulk response")
	}

	for _, item := range bulkResp.Items {
		for _, info := range item {
			if info.Status >= 200 && info.Status < 300 {
				result.Succeeded++
			} else {
				result.Failed++
				result.Errors = append(result.Errors, BulkItemError{
					DocID:     info.ID,
					ErrorType: info.Error.Type,
					Reason:    info.Error.Reason,
				})
			}
			break
		}
	}
	return nil
}

// DeleteMolecule removes a document by InChIKey.
func (i *Indexer) DeleteMolecule(ctx context.Context, inchiKey string) error {
	if inchiKey == "" {
		return errors.New(errors.ErrCodeValidation, "inchi key is required")
	}

	req := opensearchapi.DeleteRequest{
		Index:      i.client.MoleculeIndex(),
		DocumentID: inchiKey,
		Refresh:    i.refresh,
	}
	resp, err := req.Do(ctx, i.client.GetClient())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to delete molecule document")
	}
	defer resp.Body.Close()

	if resp.StatusCode == 404 {
		return ErrDocumentNotFound
	}
	if resp.IsError() {
		return handleErrorResponse(resp, errors.New(errors.ErrCodeInternal, "delete document failed"))
	}
	return nil
}

func handleErrorResponse(resp *opensearchapi.Response, defaultErr error) error {
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	bodyBytes, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Wrap(defaultErr, errors.ErrCodeInternal,
			fmt.Sprintf("opensearch error: %s: %s", errResp.Error.Type, errResp.Error.Reason))
	}
	return errors.Wrap(defaultErr, errors.ErrCodeInternal,
		fmt.Sprintf("opensearch error status: %d", resp.StatusCode))
}
