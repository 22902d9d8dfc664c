package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/printloom/go-services/internal/gateway"
)

const maxResponseSize = 4 * 1024 * 1024

type Config struct {
	// StoreDomain is the myshopify host, e.g. example.myshopify.com
	StoreDomain string
	AdminToken  string
	APIVersion  string
	Timeout     time.Duration
	RPS         float64
	Burst       int
}

// Client is the Shopify admin REST adapter implementing
// gateway.ShopifyGateway.
type Client struct {
	base    string
	token   string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	version := cfg.APIVersion
	if version == "" {
		version = "2024-10"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		// Shopify admin REST allows 2 requests/second per store
		rps = 2
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 4
	}
	return &Client{
		base:    fmt.Sprintf("https://%s/admin/api/%s", cfg.StoreDomain, version),
		token:   cfg.AdminToken,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// NewClientAt builds a client against an explicit base URL. Used by tests.
func NewClientAt(baseURL, token string) *Client {
	return &Client{
		base:    baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
	}
}

type imageRequest struct {
	Image struct {
		Src string `json:"src"`
	} `json:"image"`
}

type imageResponse struct {
	Image struct {
		ID  int64  `json:"id"`
		Src string `json:"src"`
	} `json:"image"`
}

// UploadImages attaches each mockup ref to the storefront product, one call
// per image. On failure the images uploaded so far are returned alongside the
// error so the caller can record partial progress and resume later.
func (c *Client) UploadImages(ctx context.Context, productID string, imageRefs []string) ([]gateway.UploadedImage, error) {
	uploaded := make([]gateway.UploadedImage, 0, len(imageRefs))
	for _, ref := range imageRefs {
		var req imageRequest
		req.Image.Src = ref
		var resp imageResponse
		path := fmt.Sprintf("/products/%s/images.json", productID)
		if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
			return uploaded, err
		}
		uploaded = append(uploaded, gateway.UploadedImage{
			ID:  strconv.FormatInt(resp.Image.ID, 10),
			Src: ref,
		})
	}
	return uploaded, nil
}

type productResponse struct {
	Product struct {
		ID     int64  `json:"id"`
		Title  string `json:"title"`
		Images []struct {
			ID  int64  `json:"id"`
			Src string `json:"src"`
		} `json:"images"`
	} `json:"product"`
}

// GetProduct fetches the live storefront product, including its images.
func (c *Client) GetProduct(ctx context.Context, productID string) (gateway.StorefrontProduct, error) {
	var resp productResponse
	path := fmt.Sprintf("/products/%s.json", productID)
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return gateway.StorefrontProduct{}, err
	}
	out := gateway.StorefrontProduct{
		ID:    strconv.FormatInt(resp.Product.ID, 10),
		Title: resp.Product.Title,
	}
	for _, img := range resp.Product.Images {
		out.Images = append(out.Images, gateway.UploadedImage{
			ID:  strconv.FormatInt(img.ID, 10),
			Src: img.Src,
		})
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return gateway.Errf(gateway.KindNetwork, "throttle wait: %v", err)
	}
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return gateway.Errf(gateway.KindValidation, "encode request: %v", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return gateway.Errf(gateway.KindValidation, "build request: %v", err)
	}
	req.Header.Set("X-Shopify-Access-Token", c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return gateway.Errf(gateway.KindNetwork, "%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return gateway.Errf(gateway.KindNetwork, "read response: %v", err)
	}
	if err := classifyStatus(resp, raw); err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return gateway.Errf(gateway.KindServerError, "decode response: %v", err)
		}
	}
	return nil
}

func classifyStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		ge := gateway.Errf(gateway.KindRateLimited, "shopify rate limited: %s", snippet(body))
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			ge.RetryAfter = time.Duration(secs) * time.Second
		}
		return ge
	case code >= 500:
		return gateway.Errf(gateway.KindServerError, "shopify %d: %s", code, snippet(body))
	default:
		return gateway.Errf(gateway.KindValidation, "shopify %d: %s", code, snippet(body))
	}
}

func snippet(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
