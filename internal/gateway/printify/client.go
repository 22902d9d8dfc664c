package printify

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

const (
	defaultBaseURL = "https://api.printify.com/v1"
	// maxResponseSize bounds response bodies to avoid memory exhaustion on
	// a misbehaving upstream
	maxResponseSize = 4 * 1024 * 1024
)

type Config struct {
	BaseURL string
	Token   string
	ShopID  string
	Timeout time.Duration
	// outbound throttling; Printify enforces 600 requests/minute
	RPS   float64
	Burst int
}

// Client is the Printify v1 REST adapter. It implements
// gateway.PrintifyGateway and gateway-typed errors only cross its boundary.
type Client struct {
	baseURL string
	token   string
	shopID  string
	http    *http.Client
	limiter *rate.Limiter
}

func NewClient(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	rps := cfg.RPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 10
	}
	return &Client{
		baseURL: base,
		token:   cfg.Token,
		shopID:  cfg.ShopID,
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

type productResponse struct {
	ID string `json:"id"`
}

// CreateProduct creates a draft product in the configured shop.
func (c *Client) CreateProduct(ctx context.Context, spec gateway.ProductSpec) (gateway.ProductRef, error) {
	var resp productResponse
	path := fmt.Sprintf("/shops/%s/products.json", c.shopID)
	if err := c.do(ctx, http.MethodPost, path, spec, &resp); err != nil {
		return gateway.ProductRef{}, err
	}
	if resp.ID == "" {
		return gateway.ProductRef{}, gateway.Errf(gateway.KindServerError, "create product returned no id")
	}
	return gateway.ProductRef{ID: resp.ID, ShopID: c.shopID}, nil
}

// PublishProduct publishes a draft product to the connected storefront.
func (c *Client) PublishProduct(ctx context.Context, shopID, productID string, details gateway.PublishDetails) error {
	if shopID == "" {
		shopID = c.shopID
	}
	path := fmt.Sprintf("/shops/%s/products/%s/publish.json", shopID, productID)
	return c.do(ctx, http.MethodPost, path, details, nil)
}

type uploadRequest struct {
	FileName string `json:"file_name"`
	URL      string `json:"url"`
}

type uploadResponse struct {
	ID string `json:"id"`
}

// UploadArt pushes an image into the Printify media library by URL and
// returns the library id for use in print area placeholders.
func (c *Client) UploadArt(ctx context.Context, fileName, srcURL string) (string, error) {
	var resp uploadResponse
	err := c.do(ctx, http.MethodPost, "/uploads/images.json", uploadRequest{FileName: fileName, URL: srcURL}, &resp)
	if err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", gateway.Errf(gateway.KindServerError, "image upload returned no id")
	}
	return resp.ID, nil
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
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return gateway.Errf(gateway.KindValidation, "build request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
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

// classifyStatus maps HTTP status codes onto the gateway error taxonomy.
func classifyStatus(resp *http.Response, body []byte) error {
	code := resp.StatusCode
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		ge := gateway.Errf(gateway.KindRateLimited, "printify rate limited: %s", snippet(body))
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			ge.RetryAfter = time.Duration(secs) * time.Second
		}
		return ge
	case code >= 500:
		return gateway.Errf(gateway.KindServerError, "printify %d: %s", code, snippet(body))
	default:
		return gateway.Errf(gateway.KindValidation, "printify %d: %s", code, snippet(body))
	}
}

func snippet(body []byte) string {
	const max = 512
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
