package okx

import (
	"fmt"

	"llmTraderBot/internal/ports"
)

// apiResponse is the uniform OKX v5 envelope. OKX reports failures with
// HTTP 200 and a non-zero code in the body.
type apiResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

type serverTimeData struct {
	TS string `json:"ts"` // Unix milliseconds
}

type instrumentData struct {
	InstID string `json:"instId"`
	LotSz  string `json:"lotSz"`
	CtVal  string `json:"ctVal"`
	State  string `json:"state"`
}

type tickerData struct {
	InstID string `json:"instId"`
	Last   string `json:"last"`
}

type balanceData struct {
	TotalEq string `json:"totalEq"`
	Details []struct {
		Ccy     string `json:"ccy"`
		AvailEq string `json:"availEq"`
	} `json:"details"`
}

type positionData struct {
	InstID   string `json:"instId"`
	PosSide  string `json:"posSide"`
	Pos      string `json:"pos"`
	AvgPx    string `json:"avgPx"`
	Margin   string `json:"margin"`
	Lever    string `json:"lever"`
	MgnMode  string `json:"mgnMode"`
	BePx     string `json:"bePx"`
	UplRatio string `json:"uplRatio"`
}

type orderData struct {
	OrdID   string `json:"ordId"`
	ClOrdID string `json:"clOrdId"`
	SCode   string `json:"sCode"`
	SMsg    string `json:"sMsg"`
}

type algoOrderResult struct {
	AlgoID string `json:"algoId"`
	SCode  string `json:"sCode"`
	SMsg   string `json:"sMsg"`
}

type pendingAlgoData struct {
	AlgoID      string `json:"algoId"`
	InstID      string `json:"instId"`
	PosSide     string `json:"posSide"`
	SlTriggerPx string `json:"slTriggerPx"`
	TpTriggerPx string `json:"tpTriggerPx"`
	OrdType     string `json:"ordType"`
	State       string `json:"state"`
}

type placeOrderRequest struct {
	InstID     string             `json:"instId"`
	TdMode     string             `json:"tdMode"`
	ClOrdID    string             `json:"clOrdId,omitempty"`
	Side       string             `json:"side"`
	PosSide    string             `json:"posSide"`
	OrdType    string             `json:"ordType"`
	Sz         string             `json:"sz"`
	ReduceOnly bool               `json:"reduceOnly,omitempty"`
	Attach     []attachedAlgoSpec `json:"attachAlgoOrds,omitempty"`
}

type attachedAlgoSpec struct {
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"` // "-1" = market on trigger
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
	TpOrdPx     string `json:"tpOrdPx,omitempty"`
}

type placeAlgoRequest struct {
	InstID      string `json:"instId"`
	TdMode      string `json:"tdMode"`
	Side        string `json:"side"`
	PosSide     string `json:"posSide"`
	OrdType     string `json:"ordType"`
	CloseFrac   string `json:"closeFraction,omitempty"`
	SlTriggerPx string `json:"slTriggerPx,omitempty"`
	SlOrdPx     string `json:"slOrdPx,omitempty"`
	TpTriggerPx string `json:"tpTriggerPx,omitempty"`
	TpOrdPx     string `json:"tpOrdPx,omitempty"`
}

type cancelAlgoRequest struct {
	AlgoID string `json:"algoId"`
	InstID string `json:"instId"`
}

type setLeverageRequest struct {
	InstID  string `json:"instId"`
	Lever   string `json:"lever"`
	MgnMode string `json:"mgnMode"`
	PosSide string `json:"posSide"`
}

type closePositionRequest struct {
	InstID  string `json:"instId"`
	MgnMode string `json:"mgnMode"`
	PosSide string `json:"posSide"`
}

// mapError maps an OKX error code onto the error taxonomy. Unmapped codes
// become ErrOrderRejected carrying the venue's code and message.
// https://www.okx.com/docs-v5/en/#error-code-details
func mapError(code, msg string) error {
	switch code {
	case "0":
		return nil
	case "51008": // Order failed: insufficient margin
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrMarginInsufficient)
	case "51023", "51169": // Position does not exist
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrPositionNotFound)
	case "51400", "51401", "51603": // Order does not exist / already canceled
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrOrderNotFound)
	case "50011", "50014": // Rate limit
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrRateLimited)
	case "50005", "50013": // Auth failed / invalid signature
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrAuthenticationFailed)
	case "50001", "50026": // Service temporarily unavailable
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrExchangeUnavailable)
	default:
		return fmt.Errorf("okx code %s: %s: %w", code, msg, ports.ErrOrderRejected)
	}
}
