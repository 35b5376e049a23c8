package okx

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"time"
)

// signer adds OKX v5 authentication headers to a request. The signature
// covers timestamp + method + requestPath(+query) + body, HMAC-SHA256 over
// the API secret, base64 encoded.
type signer struct {
	apiKey     string
	secretKey  string
	passphrase string
	simulated  bool
	now        func() time.Time
}

func newSigner(apiKey, secretKey, passphrase string, simulated bool) *signer {
	return &signer{
		apiKey:     apiKey,
		secretKey:  secretKey,
		passphrase: passphrase,
		simulated:  simulated,
		now:        time.Now,
	}
}

func (s *signer) sign(req *http.Request, body string) {
	// Timestamp: ISO 8601, e.g. 2020-12-08T09:08:57.715Z
	timestamp := s.now().UTC().Format("2006-01-02T15:04:05.000Z")
	path := req.URL.Path
	if req.URL.RawQuery != "" {
		path += "?" + req.URL.RawQuery
	}

	message := timestamp + req.Method + path + body

	mac := hmac.New(sha256.New, []byte(s.secretKey))
	mac.Write([]byte(message))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	req.Header.Set("OK-ACCESS-KEY", s.apiKey)
	req.Header.Set("OK-ACCESS-SIGN", signature)
	req.Header.Set("OK-ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("OK-ACCESS-PASSPHRASE", s.passphrase)
	req.Header.Set("Content-Type", "application/json")
	if s.simulated {
		req.Header.Set("x-simulated-trading", "1")
	}
}
