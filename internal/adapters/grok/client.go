package grok

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/alejandrodnm/kalshibot/internal/domain"
)

const (
	defaultBase  = "https://api.x.ai/v1"
	defaultModel = "grok-4"

	// Pricing por millón de tokens, para estimar el coste de cada llamada.
	inputPerMTok  = 3.0
	outputPerMTok = 15.0

	maxRetries    = 2
	baseRetryWait = time.Second

	analyzeMaxTokens    = 600
	quickCheckMaxTokens = 200
)

// Client es el gateway de forecast: llama al modelo, repara la respuesta
// a JSON y devuelve un Forecast tipado. Implementa ports.Forecaster.
type Client struct {
	http    *http.Client
	base    string
	model   string
	apiKey  string
	limiter *rate.Limiter
	budget  *Budget
	maxCost float64 // coste estimado máximo por decisión
}

// NewClient crea un Client. ratePerSec acota las llamadas al gateway;
// budget acota el gasto diario agregado entre todos los workers.
func NewClient(base, model, apiKey string, ratePerSec float64, budget *Budget, maxCostPerCall float64) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("grok.NewClient: empty API key")
	}
	if base == "" {
		base = defaultBase
	}
	if model == "" {
		model = defaultModel
	}
	return &Client{
		http:    &http.Client{Timeout: 60 * time.Second},
		base:    base,
		model:   model,
		apiKey:  apiKey,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), 1),
		budget:  budget,
		maxCost: maxCostPerCall,
	}, nil
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Analyze pide una estimación completa del mercado. Reserva presupuesto
// antes de llamar y registra el coste real después; devuelve
// ErrBudgetExhausted sin llamar si el presupuesto del día no alcanza.
func (c *Client) Analyze(ctx context.Context, m domain.Market) (domain.Forecast, error) {
	return c.forecast(ctx, analyzePrompt(m), analyzeMaxTokens)
}

// QuickCheck es la variante barata para mercados con odds extremas cerca
// de expiración: prompt corto, menos tokens de salida.
func (c *Client) QuickCheck(ctx context.Context, m domain.Market) (domain.Forecast, error) {
	return c.forecast(ctx, quickCheckPrompt(m), quickCheckMaxTokens)
}

func (c *Client) forecast(ctx context.Context, prompt string, maxTokens int) (domain.Forecast, error) {
	if err := c.budget.Reserve(c.maxCost); err != nil {
		return domain.Forecast{}, err
	}

	raw, usage, err := c.complete(ctx, prompt, maxTokens)
	if err != nil {
		return domain.Forecast{}, err
	}

	cost := callCost(usage.Usage.PromptTokens, usage.Usage.CompletionTokens)
	c.budget.Record(cost)

	f, err := parseForecast(raw)
	if err != nil {
		// El caller decide: abstención, análisis registrado como
		// unparseable. El raw viaja en el Forecast para el audit trail.
		return domain.Forecast{Raw: raw, CostUSD: cost, Model: c.model}, err
	}
	f.Raw = raw
	f.CostUSD = cost
	f.Model = c.model
	if err := f.Validate(); err != nil {
		return domain.Forecast{Raw: raw, CostUSD: cost, Model: c.model}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return f, nil
}

func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, chatResponse, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", chatResponse{}, fmt.Errorf("grok: marshal request: %w", err)
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", chatResponse{}, fmt.Errorf("grok: rate limiter: %w", err)
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return "", chatResponse{}, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			if attempt == maxRetries {
				return "", chatResponse{}, fmt.Errorf("grok: request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			if attempt == maxRetries {
				return "", chatResponse{}, fmt.Errorf("grok: status %d after %d retries", resp.StatusCode, maxRetries)
			}
			slog.Warn("forecast gateway retrying", "status", resp.StatusCode, "attempt", attempt+1)
			c.sleep(ctx, attempt)
			continue
		}

		if resp.StatusCode >= 400 {
			errBody, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return "", chatResponse{}, fmt.Errorf("grok: client error %d: %s", resp.StatusCode, string(errBody))
		}

		var parsed chatResponse
		err = json.NewDecoder(resp.Body).Decode(&parsed)
		resp.Body.Close()
		if err != nil {
			return "", chatResponse{}, fmt.Errorf("grok: decode response: %w", err)
		}
		if len(parsed.Choices) == 0 {
			return "", chatResponse{}, fmt.Errorf("grok: empty choices in response")
		}
		return parsed.Choices[0].Message.Content, parsed, nil
	}
	return "", chatResponse{}, fmt.Errorf("grok: exhausted %d retries", maxRetries)
}

func (c *Client) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * baseRetryWait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func callCost(promptTokens, completionTokens int) float64 {
	return float64(promptTokens)/1e6*inputPerMTok + float64(completionTokens)/1e6*outputPerMTok
}

const systemPrompt = `You are a forecasting analyst for binary prediction markets. ` +
	`Respond with a single JSON object: {"probability": <0..1 probability that the market resolves YES>, ` +
	`"confidence": <0..1 confidence in your estimate>, "rationale": "<one short paragraph>"}. ` +
	`No markdown, no text outside the JSON.`

func analyzePrompt(m domain.Market) string {
	return fmt.Sprintf(
		"Market: %s\nCategory: %s\nCurrent YES price: %.2f (bid %.2f / ask %.2f)\n"+
			"Volume: %.0f contracts\nExpires: %s\n\n"+
			"Estimate the probability that this market resolves YES.",
		m.Title, m.Category, m.ImpliedYes(), m.YesBid, m.YesAsk,
		m.Volume, m.ExpiresAt.UTC().Format(time.RFC3339))
}

func quickCheckPrompt(m domain.Market) string {
	return fmt.Sprintf(
		"Market: %s\nYES trades at %.2f and expires %s. "+
			"Is the market-implied probability roughly right? Answer with the JSON object only.",
		m.Title, m.ImpliedYes(), m.ExpiresAt.UTC().Format(time.RFC3339))
}
