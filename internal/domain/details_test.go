package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineResultUnmarshalTypedDetail(t *testing.T) {
	raw := []byte(`{
		"engine": "technical",
		"signal": "buy",
		"confidence": 0.72,
		"detail": {"rsi": 28.5, "sma_trend": "up"}
	}`)

	var r EngineResult
	require.NoError(t, json.Unmarshal(raw, &r))
	assert.Equal(t, EngineTechnical, r.Engine)
	assert.Equal(t, SignalBuy, r.Signal)
	assert.InDelta(t, 0.72, r.Confidence, 1e-9)

	detail, ok := r.Detail.(TechnicalDetail)
	require.True(t, ok)
	require.NotNil(t, detail.RSI)
	assert.InDelta(t, 28.5, *detail.RSI, 1e-9)
	assert.Equal(t, "up", detail.SMATrend)
}

func TestEngineResultUnmarshalNoDetail(t *testing.T) {
	raw := []byte(`{"engine": "sentiment", "signal": "hold", "confidence": 0.5}`)

	var r EngineResult
	require.NoError(t, json.Unmarshal(raw, &r))
	assert.Nil(t, r.Detail)
	assert.NoError(t, r.Validate())
}

func TestEngineResultUnmarshalUnknownEngine(t *testing.T) {
	raw := []byte(`{"engine": "astrology", "signal": "buy", "confidence": 0.9, "detail": {}}`)

	var r EngineResult
	assert.Error(t, json.Unmarshal(raw, &r))
}

func TestEngineResultRoundTrip(t *testing.T) {
	z := 1.8
	orig := EngineResult{
		Engine:     EngineQuantitative,
		Signal:     SignalStrongBuy,
		Confidence: 0.91,
		Detail:     QuantDetail{ModelName: "meanrev-v2", ZScore: &z, Horizon: "5d"},
	}

	data, err := json.Marshal(orig)
	require.NoError(t, err)

	var decoded EngineResult
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, orig.Engine, decoded.Engine)
	assert.Equal(t, orig.Signal, decoded.Signal)

	detail, ok := decoded.Detail.(QuantDetail)
	require.True(t, ok)
	assert.Equal(t, "meanrev-v2", detail.ModelName)
	require.NotNil(t, detail.ZScore)
	assert.InDelta(t, 1.8, *detail.ZScore, 1e-9)
}
