package kalshi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultProdBase = "https://api.elections.kalshi.com/trade-api/v2"
	defaultDemoBase = "https://demo-api.kalshi.co/trade-api/v2"

	// Rate limits al 80% del tier básico documentado:
	// lecturas 10/s, escrituras 5/s.
	readRatePerSec  = 8
	writeRatePerSec = 4

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// ErrRateLimited se devuelve cuando el exchange sigue respondiendo 429
// después de agotar los reintentos. El caller lo trata como presión de
// rate, no como fallo de la operación.
var ErrRateLimited = errors.New("kalshi: rate limited")

// Client es el HTTP client de Kalshi con firma de requests, rate limiting
// y retries. Todos los métodos del port Exchange viven sobre este client.
type Client struct {
	http         *http.Client
	base         string
	basePath     string // path del base URL, incluido en la firma
	signer       *Signer
	readLimiter  *rate.Limiter
	writeLimiter *rate.Limiter
}

// NewClient crea un Client contra el base URL dado con las credenciales
// dadas. Si base está vacío usa el URL de producción.
func NewClient(base string, signer *Signer) (*Client, error) {
	if base == "" {
		base = defaultProdBase
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("kalshi.NewClient: parse base URL %q: %w", base, err)
	}
	return &Client{
		http:         &http.Client{Timeout: 10 * time.Second},
		base:         strings.TrimRight(base, "/"),
		basePath:     strings.TrimRight(u.Path, "/"),
		signer:       signer,
		readLimiter:  rate.NewLimiter(readRatePerSec, 5),
		writeLimiter: rate.NewLimiter(writeRatePerSec, 2),
	}, nil
}

// get hace un GET firmado con rate limiting y retries.
func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, c.readLimiter, http.MethodGet, path, nil, out)
}

// post hace un POST JSON firmado. Las escrituras pasan por el limiter de
// escritura, más estricto.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("kalshi: marshal body: %w", err)
	}
	return c.doWithRetry(ctx, c.writeLimiter, http.MethodPost, path, b, out)
}

// del hace un DELETE firmado.
func (c *Client) del(ctx context.Context, path string, out any) error {
	return c.doWithRetry(ctx, c.writeLimiter, http.MethodDelete, path, nil, out)
}

// doWithRetry ejecuta la request con backoff exponencial y jitter.
// Reintenta 429 y 5xx; los 4xx restantes se devuelven tal cual.
func (c *Client) doWithRetry(ctx context.Context, limiter *rate.Limiter, method, path string, body []byte, out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("kalshi: rate limiter: %w", err)
		}

		resp, err := c.do(ctx, method, path, body)
		if err != nil {
			if attempt == maxRetries {
				return fmt.Errorf("kalshi: %s %s failed after %d retries: %w", method, path, maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("kalshi: %s %s: %w", method, path, ErrRateLimited)
			}
			slog.Warn("rate limited by exchange", "path", path, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("kalshi: %s %s: server error %d after %d retries", method, path, resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			errBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("kalshi: %s %s: client error %d: %s", method, path, resp.StatusCode, string(errBody))
		}

		if out == nil {
			resp.Body.Close()
			return nil
		}
		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("kalshi: %s %s: decode response: %w", method, path, err)
		}
		return nil
	}
	return fmt.Errorf("kalshi: exhausted %d retries", maxRetries)
}

// do construye, firma y envía una request individual. La firma cubre
// timestamp + método + path (sin query string), según el esquema del
// exchange.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.signer != nil {
		signPath := c.basePath + path
		if i := strings.IndexByte(signPath, '?'); i >= 0 {
			signPath = signPath[:i]
		}
		ts, sig, err := c.signer.Sign(method, signPath)
		if err != nil {
			return nil, fmt.Errorf("sign request: %w", err)
		}
		req.Header.Set("KALSHI-ACCESS-KEY", c.signer.KeyID)
		req.Header.Set("KALSHI-ACCESS-TIMESTAMP", ts)
		req.Header.Set("KALSHI-ACCESS-SIGNATURE", sig)
	}
	return c.http.Do(req)
}

// sleep espera con backoff exponencial, respetando el contexto.
func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}
