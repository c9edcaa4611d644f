package client

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const benzeneInChIKey = "UHOVQNZJYSORNB-UHFFFAOYSA-N"

// ---------------------------------------------------------------------------
// Register / Get / List / Delete
// ---------------------------------------------------------------------------

func TestMolecules_Register(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/molecules", r.URL.Path)

		var req RegisterMoleculeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "c1ccccc1", req.SMILES)
		assert.Equal(t, "benzene", req.Name)

		writeData(t, w, http.StatusCreated, map[string]interface{}{
			"molecule": map[string]interface{}{
				"smiles":    "c1ccccc1",
				"inchi_key": benzeneInChIKey,
				"name":      "benzene",
			},
			"created": true,
		})
	})

	result, err := c.Molecules().Register(context.Background(), RegisterMoleculeRequest{
		SMILES: "c1ccccc1",
		Name:   "benzene",
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, benzeneInChIKey, result.Molecule.InChIKey)
}

func TestMolecules_RegisterRequiresSMILES(t *testing.T) {
	c, err := NewClient("http://api.example.com")
	require.NoError(t, err)

	_, err = c.Molecules().Register(context.Background(), RegisterMoleculeRequest{})
	assert.ErrorContains(t, err, "smiles is required")
}

func TestMolecules_Get(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/molecules/"+benzeneInChIKey, r.URL.Path)
		writeData(t, w, http.StatusOK, map[string]interface{}{
			"smiles":    "c1ccccc1",
			"inchi_key": benzeneInChIKey,
			"descriptors": map[string]interface{}{
				"molecular_weight": 78.11,
				"aromatic_rings":   1,
			},
		})
	})

	dto, err := c.Molecules().Get(context.Background(), benzeneInChIKey)
	require.NoError(t, err)
	assert.Equal(t, "c1ccccc1", dto.SMILES)
	assert.InDelta(t, 78.11, dto.Descriptors.MolecularWeight, 0.01)
}

func TestMolecules_GetRejectsMalformedKey(t *testing.T) {
	c, err := NewClient("http://api.example.com")
	require.NoError(t, err)

	_, err = c.Molecules().Get(context.Background(), "not-an-inchikey")
	assert.ErrorContains(t, err, "invalid InChIKey")
}

func TestMolecules_List(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/molecules", r.URL.Path)
		assert.Equal(t, "aspirin", r.URL.Query().Get("name"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"data": {"molecules": [{"smiles": "CC(=O)Oc1ccccc1C(=O)O"}]},
			"pagination": {"page": 2, "page_size": 20, "total": 41},
			"timestamp": "2025-01-01T00:00:00Z"
		}`))
	})

	mols, page, err := c.Molecules().List(context.Background(), ListMoleculesRequest{Name: "aspirin", Page: 2})
	require.NoError(t, err)
	require.Len(t, mols, 1)
	assert.Equal(t, "CC(=O)Oc1ccccc1C(=O)O", mols[0].SMILES)
	require.NotNil(t, page)
	assert.Equal(t, int64(41), page.Total)
	assert.Equal(t, 2, page.Page)
}

func TestMolecules_Delete(t *testing.T) {
	var called bool
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/api/v1/molecules/"+benzeneInChIKey, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.Molecules().Delete(context.Background(), benzeneInChIKey))
	assert.True(t, called)
}

// ---------------------------------------------------------------------------
// Properties / Similar / Neighbors
// ---------------------------------------------------------------------------

func TestMolecules_Properties(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/molecules/properties", r.URL.Path)
		writeData(t, w, http.StatusOK, map[string]interface{}{
			"smiles":      "c1ccccc1",
			"inchi_key":   benzeneInChIKey,
			"descriptors": map[string]interface{}{"molecular_weight": 78.11},
			"lipinski":    map[string]interface{}{"passed": true, "failures": 0},
		})
	})

	props, err := c.Molecules().Properties(context.Background(), "c1ccccc1")
	require.NoError(t, err)
	assert.True(t, props.Lipinski.Passed)
	assert.InDelta(t, 78.11, props.Descriptors.MolecularWeight, 0.01)
}

func TestMolecules_Similar(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/molecules/similar", r.URL.Path)

		var req struct {
			SMILES string `json:"smiles"`
			TopK   int    `json:"top_k"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 5, req.TopK)

		writeData(t, w, http.StatusOK, map[string]interface{}{
			"hits": []map[string]interface{}{
				{"inchi_key": benzeneInChIKey, "smiles": "c1ccccc1", "similarity": 0.91},
			},
			"count": 1,
		})
	})

	hits, err := c.Molecules().Similar(context.Background(), "Cc1ccccc1", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 0.91, hits[0].Similarity, 1e-9)
}

func TestMolecules_Neighbors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/molecules/"+benzeneInChIKey+"/neighbors", r.URL.Path)
		assert.Equal(t, "0.8", r.URL.Query().Get("min_score"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))

		writeData(t, w, http.StatusOK, map[string]interface{}{
			"neighbors": []map[string]interface{}{
				{"inchi_key": "YXFVVABEGXRONW-UHFFFAOYSA-N", "smiles": "Cc1ccccc1", "score": 0.85},
			},
			"count": 1,
		})
	})

	neighbors, err := c.Molecules().Neighbors(context.Background(), benzeneInChIKey, 0.8, 10)
	require.NoError(t, err)
	require.Len(t, neighbors, 1)
	assert.Equal(t, "Cc1ccccc1", neighbors[0].SMILES)
	assert.InDelta(t, 0.85, neighbors[0].Score, 1e-9)
}
