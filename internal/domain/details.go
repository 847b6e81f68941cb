package domain

import (
	"encoding/json"
	"fmt"
)

// EngineDetail is the engine-specific payload attached to an EngineResult.
// The set of implementations is closed; each variant carries the breakdown
// fields its engine produces.
type EngineDetail interface {
	EngineKind() EngineKind
}

// TechnicalDetail carries indicator readings behind a technical opinion
type TechnicalDetail struct {
	RSI        *float64 `json:"rsi,omitempty"`
	MACDSignal *float64 `json:"macd_signal,omitempty"`
	SMATrend   string   `json:"sma_trend,omitempty"`
	ATR        *float64 `json:"atr,omitempty"`
}

func (TechnicalDetail) EngineKind() EngineKind { return EngineTechnical }

// FundamentalDetail carries valuation metrics behind a fundamental opinion
type FundamentalDetail struct {
	PERatio       *float64 `json:"pe_ratio,omitempty"`
	PBRatio       *float64 `json:"pb_ratio,omitempty"`
	DebtToEquity  *float64 `json:"debt_to_equity,omitempty"`
	EarningsTrend string   `json:"earnings_trend,omitempty"`
}

func (FundamentalDetail) EngineKind() EngineKind { return EngineFundamental }

// QuantDetail carries model outputs behind a quantitative opinion
type QuantDetail struct {
	ModelName    string   `json:"model_name,omitempty"`
	ZScore       *float64 `json:"z_score,omitempty"`
	ExpectedMove *float64 `json:"expected_move,omitempty"`
	Horizon      string   `json:"horizon,omitempty"`
}

func (QuantDetail) EngineKind() EngineKind { return EngineQuantitative }

// SentimentDetail carries aggregate sentiment behind a sentiment opinion
type SentimentDetail struct {
	NewsScore    *float64 `json:"news_score,omitempty"`
	SocialScore  *float64 `json:"social_score,omitempty"`
	ArticleCount int      `json:"article_count,omitempty"`
}

func (SentimentDetail) EngineKind() EngineKind { return EngineSentiment }

// engineResultWire is the JSON shape of EngineResult with the detail held as
// a raw message until the engine kind is known
type engineResultWire struct {
	Engine     EngineKind      `json:"engine"`
	Signal     Signal          `json:"signal"`
	Confidence float64         `json:"confidence"`
	Detail     json.RawMessage `json:"detail,omitempty"`
}

// UnmarshalJSON decodes the detail payload into the variant matching the
// engine kind
func (r *EngineResult) UnmarshalJSON(data []byte) error {
	var wire engineResultWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Engine = wire.Engine
	r.Signal = wire.Signal
	r.Confidence = wire.Confidence
	r.Detail = nil
	if len(wire.Detail) == 0 || string(wire.Detail) == "null" {
		return nil
	}
	detail, err := decodeDetail(wire.Engine, wire.Detail)
	if err != nil {
		return err
	}
	r.Detail = detail
	return nil
}

func decodeDetail(kind EngineKind, data json.RawMessage) (EngineDetail, error) {
	switch kind {
	case EngineTechnical:
		var d TechnicalDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case EngineFundamental:
		var d FundamentalDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case EngineQuantitative:
		var d QuantDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	case EngineSentiment:
		var d SentimentDetail
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unknown engine kind %q", kind)
	}
}
