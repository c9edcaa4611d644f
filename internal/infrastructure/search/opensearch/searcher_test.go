package opensearch

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

const searchFixture = `{
	"took": 4,
	"hits": {
		"total": {"value": 2},
		"hits": [
			{"_score": 7.5, "_source": {
				"inchi_key": "BSYNRYMUTXBXSQ-UHFFFAOYSA-N",
				"smiles": "CC(=O)Oc1ccccc1C(=O)O",
				"name": "aspirin"
			}},
			{"_score": 3.1, "_source": {
				"inchi_key": "RZVAJINKPMORJF-UHFFFAOYSA-N",
				"smiles": "CC(=O)Nc1ccc(O)cc1",
				"name": "paracetamol"
			}}
		]
	}
}`

func newTestSearcher(t *testing.T, handler http.HandlerFunc) *Searcher {
	t.Helper()
	client, _ := newTestCluster(t, handler)
	return NewSearcher(client, logging.NewNopLogger())
}

func TestSearchByName(t *testing.T) {
	var path, body string
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	})

	result, err := searcher.SearchByName(context.Background(), "aspirin", 0, 20)
	require.NoError(t, err)

	assert.Equal(t, "/test-molecules/_search", path)
	assert.Contains(t, body, `"multi_match"`)
	assert.Contains(t, body, `"name^2"`)
	assert.Contains(t, body, `"fuzziness":"AUTO"`)

	assert.Equal(t, int64(2), result.Total)
	assert.Equal(t, int64(4), result.TookMs)
	require.Len(t, result.Hits, 2)
	assert.Equal(t, "BSYNRYMUTXBXSQ-UHFFFAOYSA-N", result.Hits[0].InChIKey)
	assert.Equal(t, "aspirin", result.Hits[0].Name)
	assert.InDelta(t, 7.5, result.Hits[0].Score, 1e-9)
}

func TestSearchByNameValidation(t *testing.T) {
	searcher := newTestSearcher(t, nil)
	_, err := searcher.SearchByName(context.Background(), "", 0, 20)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
}

func TestSearchByNameClampsPaging(t *testing.T) {
	var body string
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"took":1,"hits":{"total":{"value":0},"hits":[]}}`))
	})

	_, err := searcher.SearchByName(context.Background(), "caffeine", -5, 5000)
	require.NoError(t, err)
	assert.Contains(t, body, `"from":0`)
	assert.Contains(t, body, `"size":100`)
}

func TestAutocomplete(t *testing.T) {
	var body string
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body = string(raw)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(searchFixture))
	})

	result, err := searcher.Autocomplete(context.Background(), "asp", 0)
	require.NoError(t, err)
	assert.Contains(t, body, `"match_phrase_prefix"`)
	assert.Contains(t, body, `"size":10`)
	assert.Equal(t, int64(2), result.Total)
}

func TestGetByInChIKey(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/test-molecules/_doc/BSYNRYMUTXBXSQ-UHFFFAOYSA-N", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"_source": {"inchi_key": "BSYNRYMUTXBXSQ-UHFFFAOYSA-N", "name": "aspirin"}}`))
	})

	doc, err := searcher.GetByInChIKey(context.Background(), "BSYNRYMUTXBXSQ-UHFFFAOYSA-N")
	require.NoError(t, err)
	assert.Equal(t, "aspirin", doc.Name)
}

func TestGetByInChIKeyNotFound(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := searcher.GetByInChIKey(context.Background(), "MISSING")
	assert.True(t, stderrors.Is(err, ErrDocumentNotFound))
}

func TestSearchSurfacesClusterError(t *testing.T) {
	searcher := newTestSearcher(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"type": "parsing_exception", "reason": "unknown field"}}`))
	})

	_, err := searcher.SearchByName(context.Background(), "aspirin", 0, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing_exception")
}
