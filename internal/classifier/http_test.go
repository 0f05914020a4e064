package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersieve/ledgersieve/internal/common"
	"github.com/ledgersieve/ledgersieve/internal/model"
)

func testRequest() Request {
	txn := model.Transaction{
		Date:        time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		Merchant:    "Blue Bottle",
		Description: "BLUE BOTTLE #7",
		Amount:      6.50,
	}
	txn.GenerateID()
	return Request{Transaction: txn}
}

func TestHTTPClientClassify(t *testing.T) {
	ctx := context.Background()

	t.Run("parses a categorize answer", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
			_, _ = w.Write([]byte(`{"content":[{"text":"ACTION: categorize\nNODE: n1\nCONFIDENCE: 0.9\nREASONING: coffee"}]}`))
		}))
		defer server.Close()

		client, err := NewHTTPClient(HTTPConfig{Endpoint: server.URL, APIKey: "test-key"})
		require.NoError(t, err)

		outcome, err := client.Classify(ctx, testRequest())
		require.NoError(t, err)
		assert.Equal(t, ActionCategorize, outcome.Action)
		assert.Equal(t, "n1", outcome.NodeID)
	})

	t.Run("server errors are transient", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client, err := NewHTTPClient(HTTPConfig{Endpoint: server.URL})
		require.NoError(t, err)

		_, err = client.Classify(ctx, testRequest())
		require.Error(t, err)
		assert.False(t, errors.Is(err, common.ErrMalformedResponse))
	})

	t.Run("429 maps to the rate limit sentinel", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "slow down", http.StatusTooManyRequests)
		}))
		defer server.Close()

		client, err := NewHTTPClient(HTTPConfig{Endpoint: server.URL})
		require.NoError(t, err)

		_, err = client.Classify(ctx, testRequest())
		assert.ErrorIs(t, err, common.ErrRateLimit)
	})

	t.Run("unparseable body is malformed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"content":[{"text":"I am not sure what to do here."}]}`))
		}))
		defer server.Close()

		client, err := NewHTTPClient(HTTPConfig{Endpoint: server.URL})
		require.NoError(t, err)

		_, err = client.Classify(ctx, testRequest())
		require.Error(t, err)
		assert.True(t, errors.Is(err, common.ErrMalformedResponse))
	})

	t.Run("endpoint is required", func(t *testing.T) {
		_, err := NewHTTPClient(HTTPConfig{})
		assert.ErrorIs(t, err, common.ErrInvalidConfig)
	})
}

func TestBuildPrompt(t *testing.T) {
	req := testRequest()
	req.Taxonomy = []model.TaxonomyNode{
		{ID: model.RootNodeID, Name: "root"},
		{ID: "n1", Name: "Coffee Shops", Description: "Cafes and espresso bars"},
	}
	req.Exemplars = []Exemplar{
		{Merchant: "Blue Bottle", Description: "BLUE BOTTLE #9", NodeID: "n1", NodeName: "Coffee Shops", Score: 0.95},
	}

	prompt := BuildPrompt(req)
	assert.Contains(t, prompt, "Blue Bottle")
	assert.Contains(t, prompt, "n1: Coffee Shops")
	assert.Contains(t, prompt, "BLUE BOTTLE #9")
	assert.Contains(t, prompt, "ACTION:")
	assert.NotContains(t, prompt, "root: root", "the synthetic root is not offered as a target")
}
