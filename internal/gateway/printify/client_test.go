package printify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/printloom/go-services/internal/gateway"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{BaseURL: srv.URL, Token: "test-token", ShopID: "shop-42"})
}

func TestCreateProduct(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "prod-77"})
	})

	ref, err := c.CreateProduct(context.Background(), gateway.ProductSpec{
		Title:           "Tokyo Neon",
		BlueprintID:     6,
		PrintProviderID: 29,
		Variants:        []gateway.Variant{{ID: 4011, Price: 2499, IsEnabled: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, "prod-77", ref.ID)
	assert.Equal(t, "shop-42", ref.ShopID)
	assert.Equal(t, "/shops/shop-42/products.json", gotPath)
	assert.Equal(t, "Bearer test-token", gotAuth)
	assert.Equal(t, "Tokyo Neon", gotBody["title"])
	assert.EqualValues(t, 6, gotBody["blueprint_id"])
}

func TestCreateProductMissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	})
	_, err := c.CreateProduct(context.Background(), gateway.ProductSpec{})
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindServerError, ge.Kind)
}

func TestPublishProduct(t *testing.T) {
	var gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	})
	err := c.PublishProduct(context.Background(), "", "prod-77", gateway.DefaultPublishDetails())
	require.NoError(t, err)
	// empty shop id falls back to the configured shop
	assert.Equal(t, "/shops/shop-42/products/prod-77/publish.json", gotPath)
}

func TestUploadArt(t *testing.T) {
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/uploads/images.json", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "img-5"})
	})
	id, err := c.UploadArt(context.Background(), "fuji.png", "https://cdn.example.com/fuji.png")
	require.NoError(t, err)
	assert.Equal(t, "img-5", id)
	assert.Equal(t, "fuji.png", gotBody["file_name"])
	assert.Equal(t, "https://cdn.example.com/fuji.png", gotBody["url"])
}

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		name      string
		status    int
		wantKind  gateway.Kind
		retryable bool
	}{
		{"bad request", http.StatusBadRequest, gateway.KindValidation, false},
		{"unprocessable", http.StatusUnprocessableEntity, gateway.KindValidation, false},
		{"server error", http.StatusInternalServerError, gateway.KindServerError, true},
		{"bad gateway", http.StatusBadGateway, gateway.KindServerError, true},
		{"rate limited", http.StatusTooManyRequests, gateway.KindRateLimited, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
			})
			_, err := c.CreateProduct(context.Background(), gateway.ProductSpec{})
			var ge *gateway.Error
			require.True(t, errors.As(err, &ge))
			assert.Equal(t, tc.wantKind, ge.Kind)
			assert.Equal(t, tc.retryable, ge.Retryable())
		})
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "17")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := c.CreateProduct(context.Background(), gateway.ProductSpec{})
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindRateLimited, ge.Kind)
	assert.Equal(t, 17*time.Second, ge.RetryAfter)
}

func TestTransportFailureIsNetwork(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // connection refused from here on
	c := NewClient(Config{BaseURL: srv.URL, Token: "t", ShopID: "s"})
	_, err := c.CreateProduct(context.Background(), gateway.ProductSpec{})
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindNetwork, ge.Kind)
	assert.True(t, ge.Retryable())
}
