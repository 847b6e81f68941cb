// Package engines provides clients for the analytic engine services.
package engines

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkaragian/verdict/internal/domain"
)

// HTTPProvider is an engine client over HTTP. Each engine service exposes
// GET /analyze?symbol=X returning an engine result.
type HTTPProvider struct {
	kind    domain.EngineKind
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPProvider creates an engine client for one engine service
func NewHTTPProvider(kind domain.EngineKind, baseURL string, timeout time.Duration, log zerolog.Logger) *HTTPProvider {
	return &HTTPProvider{
		kind:    kind,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "engine_client").Str("engine", string(kind)).Logger(),
	}
}

// Kind returns the engine this provider speaks for
func (p *HTTPProvider) Kind() domain.EngineKind {
	return p.kind
}

// Analyze requests an opinion for a symbol. The result is validated against
// the engine contract before it is returned; a malformed result is an error,
// never a silently clamped value.
func (p *HTTPProvider) Analyze(ctx context.Context, symbol string) (domain.EngineResult, error) {
	endpoint := fmt.Sprintf("%s/analyze?symbol=%s", p.baseURL, url.QueryEscape(symbol))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.EngineResult{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.EngineResult{}, fmt.Errorf("engine %s request: %w", p.kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.EngineResult{}, fmt.Errorf("engine %s returned status %d: %s", p.kind, resp.StatusCode, string(body))
	}

	var result domain.EngineResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return domain.EngineResult{}, fmt.Errorf("decoding engine %s response: %w", p.kind, err)
	}

	if result.Engine == "" {
		result.Engine = p.kind
	}
	if result.Engine != p.kind {
		return domain.EngineResult{}, fmt.Errorf("engine %s responded as %s", p.kind, result.Engine)
	}
	if err := result.Validate(); err != nil {
		return domain.EngineResult{}, fmt.Errorf("engine %s contract violation: %w", p.kind, err)
	}

	return result, nil
}

// BuildProviders constructs a provider per configured engine URL
func BuildProviders(urls map[domain.EngineKind]string, timeout time.Duration, log zerolog.Logger) []domain.EngineProvider {
	providers := make([]domain.EngineProvider, 0, len(urls))
	for _, kind := range domain.AllEngineKinds {
		base, ok := urls[kind]
		if !ok || base == "" {
			log.Warn().Str("engine", string(kind)).Msg("Engine URL not configured, skipping")
			continue
		}
		providers = append(providers, NewHTTPProvider(kind, base, timeout, log))
	}
	return providers
}
