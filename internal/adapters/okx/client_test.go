package okx

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"llmTraderBot/internal/domain"
	"llmTraderBot/internal/ports"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, error, string, ...map[string]interface{}) {}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "phrase",
		BaseURL:    server.URL,
		Logger:     nopLogger{},
	})
	require.NoError(t, err)
	return client
}

func TestSignRequest_Headers(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
	})

	err := client.SetLeverage(context.Background(), "ETH-USDT-SWAP", 10, domain.PositionLong)
	require.NoError(t, err)

	assert.Equal(t, "key", gotHeaders.Get("OK-ACCESS-KEY"))
	assert.Equal(t, "phrase", gotHeaders.Get("OK-ACCESS-PASSPHRASE"))
	assert.NotEmpty(t, gotHeaders.Get("OK-ACCESS-TIMESTAMP"))

	// Recompute the signature over what the server actually saw.
	message := gotHeaders.Get("OK-ACCESS-TIMESTAMP") + "POST" + "/api/v5/account/set-leverage" + string(gotBody)
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write([]byte(message))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, gotHeaders.Get("OK-ACCESS-SIGN"))
}

func TestMapError_Taxonomy(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"51008", ports.ErrMarginInsufficient},
		{"51023", ports.ErrPositionNotFound},
		{"51169", ports.ErrPositionNotFound},
		{"51401", ports.ErrOrderNotFound},
		{"50014", ports.ErrRateLimited},
		{"50005", ports.ErrAuthenticationFailed},
		{"50001", ports.ErrExchangeUnavailable},
		{"59999", ports.ErrOrderRejected},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := mapError(tt.code, "msg")
			assert.True(t, errors.Is(err, tt.want), "code %s should map to %v, got %v", tt.code, tt.want, err)
		})
	}
	assert.NoError(t, mapError("0", ""))
}

func TestPlaceMarketOrder_MarginRejectionFromSCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"1","msg":"Operation failed","data":[{"ordId":"","sCode":"51008","sMsg":"insufficient margin"}]}`))
	})

	_, err := client.PlaceMarketOrder(context.Background(), "ETH-USDT-SWAP", domain.OrderSideBuy, domain.PositionLong, false, "1.00", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrMarginInsufficient))
}

func TestPlaceMarketOrder_AttachesProtection(t *testing.T) {
	var gotReq placeOrderRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReq))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"ordId":"123","sCode":"0"}]}`))
	})

	resp, err := client.PlaceMarketOrder(context.Background(), "ETH-USDT-SWAP", domain.OrderSideBuy, domain.PositionLong, false, "1.00",
		&ports.AttachedProtection{StopLoss: 2900, TakeProfit: 3300})
	require.NoError(t, err)
	assert.Equal(t, "123", resp.OrderID)
	assert.Len(t, resp.ClientOrderID, 32)

	assert.Equal(t, "buy", gotReq.Side)
	assert.Equal(t, "long", gotReq.PosSide)
	require.Len(t, gotReq.Attach, 1)
	assert.Equal(t, "2900", gotReq.Attach[0].SlTriggerPx)
	assert.Equal(t, "-1", gotReq.Attach[0].SlOrdPx)
	assert.Equal(t, "3300", gotReq.Attach[0].TpTriggerPx)
}

func TestGetPosition_ResolvesProtection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v5/account/positions":
			w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"ETH-USDT-SWAP","posSide":"long","pos":"2","avgPx":"3000","margin":"60","lever":"10","bePx":"3003"}]}`))
		case "/api/v5/trade/orders-algo-pending":
			w.Write([]byte(`{"code":"0","msg":"","data":[{"algoId":"a1","instId":"ETH-USDT-SWAP","posSide":"long","slTriggerPx":"2900","ordType":"conditional","state":"live"}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	pos, err := client.GetPosition(context.Background(), "ETH-USDT-SWAP")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, domain.PositionLong, pos.Side)
	assert.Equal(t, 2.0, pos.SizeContracts)
	assert.Equal(t, 3000.0, pos.EntryPrice)
	assert.Equal(t, 10, pos.Leverage)
	assert.Equal(t, 2900.0, pos.StopLoss)
	assert.Zero(t, pos.TakeProfit)
}

func TestGetPosition_NoPosition(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"0","msg":"","data":[]}`))
	})

	pos, err := client.GetPosition(context.Background(), "ETH-USDT-SWAP")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestCancelAlgoOrders_DeduplicatesIDs(t *testing.T) {
	var gotReqs []cancelAlgoRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotReqs))
		w.Write([]byte(`{"code":"0","msg":"","data":[{"algoId":"a1","sCode":"0"}]}`))
	})

	err := client.CancelAlgoOrders(context.Background(), "ETH-USDT-SWAP", []string{"a1", "a1", "a2"})
	require.NoError(t, err)
	require.Len(t, gotReqs, 2)
	assert.Equal(t, "a1", gotReqs[0].AlgoID)
	assert.Equal(t, "a2", gotReqs[1].AlgoID)
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Config{Logger: nopLogger{}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ports.ErrInvalidAPIKeys))

	_, err = NewClient(Config{APIKey: "k", SecretKey: "s", Passphrase: "p", BaseURL: "http://example.com", Logger: nopLogger{}})
	require.Error(t, err, "plain http to a remote host is refused")
}
