package engines

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkaragian/verdict/internal/domain"
)

func TestHTTPProviderAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"engine":"technical","signal":"buy","confidence":0.8,"detail":{"rsi":30.1}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(domain.EngineTechnical, srv.URL, time.Second, zerolog.Nop())
	result, err := p.Analyze(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Equal(t, domain.SignalBuy, result.Signal)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)

	detail, ok := result.Detail.(domain.TechnicalDetail)
	require.True(t, ok)
	require.NotNil(t, detail.RSI)
}

func TestHTTPProviderRejectsContractViolations(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"confidence above one", `{"engine":"technical","signal":"buy","confidence":1.4}`},
		{"unknown signal", `{"engine":"technical","signal":"yolo","confidence":0.5}`},
		{"wrong engine", `{"engine":"sentiment","signal":"buy","confidence":0.5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := NewHTTPProvider(domain.EngineTechnical, srv.URL, time.Second, zerolog.Nop())
			_, err := p.Analyze(context.Background(), "AAPL")
			assert.Error(t, err)
		})
	}
}

func TestHTTPProviderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	p := NewHTTPProvider(domain.EngineQuantitative, srv.URL, time.Second, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Analyze(ctx, "AAPL")
	assert.Error(t, err)
}

func TestBuildProvidersSkipsMissing(t *testing.T) {
	urls := map[domain.EngineKind]string{
		domain.EngineTechnical: "http://localhost:9101",
		domain.EngineSentiment: "http://localhost:9104",
	}
	providers := BuildProviders(urls, time.Second, zerolog.Nop())
	require.Len(t, providers, 2)
	assert.Equal(t, domain.EngineTechnical, providers[0].Kind())
	assert.Equal(t, domain.EngineSentiment, providers[1].Kind())
}
