package shopify

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

func TestUploadImages(t *testing.T) {
	var paths []string
	var tokens []string
	var srcs []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		tokens = append(tokens, r.Header.Get("X-Shopify-Access-Token"))
		var req struct {
			Image struct {
				Src string `json:"src"`
			} `json:"image"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		srcs = append(srcs, req.Image.Src)
		_, _ = w.Write([]byte(`{"image":{"id":9001,"src":"` + req.Image.Src + `"}}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClientAt(srv.URL, "shpat-test")

	uploaded, err := c.UploadImages(context.Background(), "sf-1", []string{"a.png", "b.png"})
	require.NoError(t, err)
	require.Len(t, uploaded, 2)
	assert.Equal(t, "9001", uploaded[0].ID)
	assert.Equal(t, "a.png", uploaded[0].Src)
	assert.Equal(t, []string{"/products/sf-1/images.json", "/products/sf-1/images.json"}, paths)
	assert.Equal(t, []string{"shpat-test", "shpat-test"}, tokens)
	assert.Equal(t, []string{"a.png", "b.png"}, srcs)
}

func TestUploadImagesReturnsPartialProgress(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"image":{"id":1,"src":"a.png"}}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClientAt(srv.URL, "shpat-test")

	uploaded, err := c.UploadImages(context.Background(), "sf-1", []string{"a.png", "b.png", "c.png"})
	require.Error(t, err)
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindServerError, ge.Kind)

	// the first image landed and is reported so the caller can resume
	require.Len(t, uploaded, 1)
	assert.Equal(t, "a.png", uploaded[0].Src)
	assert.Equal(t, 2, calls)
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "4")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	c := NewClientAt(srv.URL, "shpat-test")

	_, err := c.UploadImages(context.Background(), "sf-1", []string{"a.png"})
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindRateLimited, ge.Kind)
	assert.Equal(t, 4*time.Second, ge.RetryAfter)
	assert.True(t, ge.Retryable())
}

func TestClientErrorIsValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":"image src invalid"}`, http.StatusUnprocessableEntity)
	}))
	t.Cleanup(srv.Close)
	c := NewClientAt(srv.URL, "shpat-test")

	_, err := c.UploadImages(context.Background(), "sf-1", []string{"bad"})
	var ge *gateway.Error
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, gateway.KindValidation, ge.Kind)
	assert.False(t, ge.Retryable())
}

func TestGetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/products/sf-1.json", r.URL.Path)
		_, _ = w.Write([]byte(`{"product":{"id":42,"title":"Mount Fuji Sunrise","images":[{"id":9001,"src":"a.png"},{"id":9002,"src":"b.png"}]}}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClientAt(srv.URL, "shpat-test")

	product, err := c.GetProduct(context.Background(), "sf-1")
	require.NoError(t, err)
	assert.Equal(t, "42", product.ID)
	assert.Equal(t, "Mount Fuji Sunrise", product.Title)
	require.Len(t, product.Images, 2)
	assert.Equal(t, "9001", product.Images[0].ID)
	assert.Equal(t, "b.png", product.Images[1].Src)
}

func TestBaseURLFromConfig(t *testing.T) {
	c := NewClient(Config{StoreDomain: "example.myshopify.com"})
	assert.Equal(t, "https://example.myshopify.com/admin/api/2024-10", c.base)
}
