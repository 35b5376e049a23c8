package decision

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

// rawDecision is the wire shape expected inside the model's reply. Field
// names follow what the prompt asks the model to emit; everything is
// re-validated before it becomes a typed Decision.
type rawDecision struct {
	Instrument string  `json:"instrument"`
	Action     string  `json:"action"`
	Size       float64 `json:"size_contracts,omitempty"`
	Leverage   int     `json:"leverage,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Rationale  string  `json:"rationale,omitempty"`
}

// Parse extracts and validates a single decision from free-form model
// output. The output is untrusted: it may wrap the JSON in prose or fenced
// code blocks, omit fields, or propose nonsense values. Parse either
// returns a fully validated Decision or an error wrapping
// ports.ErrDecisionParse; the executor never sees unvalidated fields.
func Parse(raw string, instrument string) (*domain.Decision, error) {
	jsonBlob, err := extractJSONObject(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrDecisionParse, err)
	}

	var rd rawDecision
	dec := json.NewDecoder(strings.NewReader(jsonBlob))
	if err := dec.Decode(&rd); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ports.ErrDecisionParse, err)
	}

	action := domain.Action(strings.ToUpper(strings.TrimSpace(rd.Action)))
	if !action.IsValid() {
		return nil, fmt.Errorf("%w: unknown action %q", ports.ErrDecisionParse, rd.Action)
	}

	for name, v := range map[string]float64{
		"size_contracts": rd.Size,
		"stop_loss":      rd.StopLoss,
		"take_profit":    rd.TakeProfit,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return nil, fmt.Errorf("%w: field %s is not a usable number (%v)", ports.ErrDecisionParse, name, v)
		}
	}
	if rd.Leverage < 0 {
		return nil, fmt.Errorf("%w: negative leverage %d", ports.ErrDecisionParse, rd.Leverage)
	}

	// The cycle owns the instrument: the snapshot, sizing inputs, and
	// daily cap were all built for it. A reply naming a different
	// instrument must not redirect the order there.
	if inst := strings.TrimSpace(rd.Instrument); inst != "" && inst != instrument {
		return nil, fmt.Errorf("%w: decision names instrument %q, cycle is for %q", ports.ErrDecisionParse, inst, instrument)
	}

	return &domain.Decision{
		Instrument:         instrument,
		Action:             action,
		ProposedSize:       rd.Size,
		ProposedLeverage:   rd.Leverage,
		ProposedStopLoss:   rd.StopLoss,
		ProposedTakeProfit: rd.TakeProfit,
		Rationale:          rd.Rationale,
	}, nil
}

// extractJSONObject finds the first balanced JSON object in the text,
// tolerating markdown code fences and leading/trailing prose.
func extractJSONObject(text string) (string, error) {
	// Strip fenced code blocks down to their content first.
	if idx := strings.Index(text, "```"); idx >= 0 {
		rest := text[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			text = rest[:end]
		} else {
			text = rest
		}
	}

	start := strings.Index(text, "{")
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("unbalanced JSON object in response")
}
