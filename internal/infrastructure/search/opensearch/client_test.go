package opensearch

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
)

// newTestCluster stands up an httptest server and a connected client.
// The handler sees every request except the constructor ping.
func newTestCluster(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && r.URL.Path == "/" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if handler != nil {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(config.OpenSearchConfig{
		Addresses:   []string{server.URL},
		IndexPrefix: "test",
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return client, server
}

func TestNewClientRequiresAddresses(t *testing.T) {
	_, err := NewClient(config.OpenSearchConfig{}, logging.NewNopLogger())
	assert.True(t, stderrors.Is(err, ErrInvalidConfig))
}

func TestNewClientPingsOnConstruct(t *testing.T) {
	client, _ := newTestCluster(t, nil)
	assert.True(t, client.IsHealthy())
	assert.NotNil(t, client.GetClient())
}

func TestNewClientConnectionFailed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewClient(config.OpenSearchConfig{
		Addresses: []string{server.URL},
	}, logging.NewNopLogger())
	assert.True(t, stderrors.Is(err, ErrConnectionFailed))
}

func TestPingTogglesHealth(t *testing.T) {
	failing := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewClient(config.OpenSearchConfig{
		Addresses: []string{server.URL},
	}, logging.NewNopLogger())
	require.NoError(t, err)
	defer client.Close()
	assert.True(t, client.IsHealthy())

	failing = true
	err = client.Ping(context.Background())
	assert.Error(t, err)
	assert.False(t, client.IsHealthy())

	failing = false
	require.NoError(t, client.Ping(context.Background()))
	assert.True(t, client.IsHealthy())
}

func TestMoleculeIndexName(t *testing.T) {
	client, _ := newTestCluster(t, nil)
	assert.Equal(t, "test-molecules", client.MoleculeIndex())

	bare := &Client{cfg: config.OpenSearchConfig{}}
	assert.Equal(t, "chemscreen-molecules", bare.MoleculeIndex())
}

func TestCloseIdempotent(t *testing.T) {
	client, _ := newTestCluster(t, nil)
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())
}
