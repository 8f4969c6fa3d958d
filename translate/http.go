package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	temperature = 0.3
	maxBodySize = 4 << 20
)

// ---------------------------------------------------------------------------
// Wire formats
// ---------------------------------------------------------------------------

// wire builds requests for one API family. Responses of every family are
// decoded by extractResponseText.
type wire interface {
	endpoint(cfg ProviderConfig) string
	authorize(h http.Header, key string)
	body(model, system, user string) ([]byte, error)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// openAIWire is POST {base}/chat/completions.
type openAIWire struct{}

func (openAIWire) endpoint(cfg ProviderConfig) string {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if strings.HasSuffix(base, "/chat/completions") {
		return base
	}
	return base + "/chat/completions"
}

func (openAIWire) authorize(h http.Header, key string) {
	h.Set("Authorization", "Bearer "+key)
}

func (openAIWire) body(model, system, user string) ([]byte, error) {
	return json.Marshal(struct {
		Model       string        `json:"model"`
		Messages    []chatMessage `json:"messages"`
		Temperature float64       `json:"temperature"`
		Stream      bool          `json:"stream"`
	}{
		Model:       model,
		Messages:    []chatMessage{{"system", system}, {"user", user}},
		Temperature: temperature,
	})
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

// geminiWire is POST {base}/v1beta/models/{model}:generateContent.
type geminiWire struct{}

func (geminiWire) endpoint(cfg ProviderConfig) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(cfg.BaseURL, "/"), cfg.Model)
}

func (geminiWire) authorize(h http.Header, key string) {
	h.Set("x-goog-api-key", key)
}

func (geminiWire) body(_, system, user string) ([]byte, error) {
	req := struct {
		Contents         []geminiContent `json:"contents"`
		GenerationConfig struct {
			Temperature float64 `json:"temperature"`
		} `json:"generationConfig"`
		SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	}{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{user}}}},
	}
	req.GenerationConfig.Temperature = temperature
	if system != "" {
		req.SystemInstruction = &geminiContent{Parts: []geminiPart{{system}}}
	}
	return json.Marshal(req)
}

func wireFor(id string) wire {
	if id == ProviderGoogle {
		return geminiWire{}
	}
	return openAIWire{}
}

// ---------------------------------------------------------------------------
// Responses
// ---------------------------------------------------------------------------

type apiResponse struct {
	Error   json.RawMessage `json:"error"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	// Response is the Ollama generate field.
	Response *string `json:"response"`
}

// extractResponseText returns the generated text from an OpenAI chat,
// Gemini or Ollama generate response.
func extractResponseText(body []byte) (string, error) {
	var r apiResponse
	if err := json.Unmarshal(body, &r); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if len(r.Error) > 0 && string(r.Error) != "null" {
		var e struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(r.Error, &e) == nil && e.Message != "" {
			return "", fmt.Errorf("API error: %s", e.Message)
		}
		return "", fmt.Errorf("API error: %s", r.Error)
	}

	switch {
	case len(r.Choices) > 0 && r.Choices[0].Message.Content != nil:
		return *r.Choices[0].Message.Content, nil
	case len(r.Candidates) > 0 && len(r.Candidates[0].Content.Parts) > 0 && r.Candidates[0].Content.Parts[0].Text != nil:
		return *r.Candidates[0].Content.Parts[0].Text, nil
	case r.Response != nil:
		return *r.Response, nil
	}
	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

var markdownCodeBlock = regexp.MustCompile("(?s)^```[a-z]*\\s*(.*?)\\s*```$")

// cleanResponse strips a markdown fence and, when the source was not
// quoted, the quotes some models wrap around a one-line answer.
func cleanResponse(source, text string) string {
	text = strings.TrimSpace(text)
	if m := markdownCodeBlock.FindStringSubmatch(text); m != nil {
		text = m[1]
	}
	if len(text) >= 2 && !strings.HasPrefix(strings.TrimSpace(source), `"`) &&
		strings.HasPrefix(text, `"`) && strings.HasSuffix(text, `"`) {
		text = text[1 : len(text)-1]
	}
	return text
}

// parseRetryDelay reads Google's RetryInfo detail from a 429 body and adds
// five seconds. Without one it returns 65s.
func parseRetryDelay(body []byte) time.Duration {
	const margin = 5 * time.Second
	var r struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &r) == nil {
		for _, d := range r.Error.Details {
			if !strings.HasSuffix(d.Type, "RetryInfo") {
				continue
			}
			if secs, err := strconv.ParseFloat(strings.TrimSuffix(d.RetryDelay, "s"), 64); err == nil {
				return time.Duration(secs*float64(time.Second)) + margin
			}
		}
	}
	return time.Minute + margin
}

// ---------------------------------------------------------------------------
// Pause gate
// ---------------------------------------------------------------------------

// pauseGate holds every caller of a provider until a rate-limit pause ends.
type pauseGate struct {
	mu    sync.Mutex
	until time.Time
}

func (g *pauseGate) pause(d time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if t := time.Now().Add(d); t.After(g.until) {
		g.until = t
	}
}

func (g *pauseGate) remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return time.Until(g.until)
}

func (g *pauseGate) paused() bool { return g.remaining() > 0 }

// wait returns once no pause is in effect, or with ctx's error.
func (g *pauseGate) wait(ctx context.Context) error {
	for {
		d := g.remaining()
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// ---------------------------------------------------------------------------
// HTTPProvider
// ---------------------------------------------------------------------------

// HTTPProvider sends one string per request to an OpenAI-compatible or
// Gemini endpoint. It does not retry; the Service does. A 429 response
// pauses every caller sharing the provider for the server's retry delay.
type HTTPProvider struct {
	cfg    ProviderConfig
	wire   wire
	client *http.Client
	gate   pauseGate
	logger *zap.Logger
}

func newHTTPClient(proxy string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = http.ProxyFromEnvironment
	if proxy != "" {
		if u, err := url.Parse(proxy); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// NewHTTPProvider validates cfg and builds a provider.
func NewHTTPProvider(cfg ProviderConfig, logger *zap.Logger) (*HTTPProvider, error) {
	switch {
	case cfg.BaseURL == "":
		return nil, fmt.Errorf("provider %s: base URL is required", cfg.ID)
	case cfg.Model == "":
		return nil, fmt.Errorf("provider %s: model is required", cfg.ID)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPProvider{
		cfg:    cfg,
		wire:   wireFor(cfg.ID),
		client: newHTTPClient(cfg.Proxy, cfg.Timeout),
		logger: logger.With(zap.String("provider", cfg.Name)),
	}, nil
}

// Config returns the provider configuration.
func (p *HTTPProvider) Config() ProviderConfig { return p.cfg }

// Translate implements Provider.
func (p *HTTPProvider) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	if err := p.gate.wait(ctx); err != nil {
		return "", err
	}

	body, err := p.wire.body(p.cfg.Model, resolvedPrompt(p.cfg.SystemPrompt, sourceLang, targetLang), text)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	endpoint := p.wire.endpoint(p.cfg)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		p.wire.authorize(req.Header, p.cfg.APIKey)
	}

	p.logger.Debug("provider request", zap.String("endpoint", endpoint), zap.Int("chars", len(text)))
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		delay := parseRetryDelay(respBody)
		p.logger.Warn("rate limited", zap.Duration("wait", delay))
		p.gate.pause(delay)
		return "", fmt.Errorf("rate limited: retry after %v", delay)
	default:
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	out, err := extractResponseText(respBody)
	if err != nil {
		return "", err
	}
	return cleanResponse(text, out), nil
}
