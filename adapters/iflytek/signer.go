package iflytek

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// BuildWSURL assembles the signed upstream connect URL. The signature
// base string is the literal header block the recognizer verifies:
//
//	host: {host}
//	date: {date}
//	GET {path} HTTP/1.1
//
// HMAC-SHA256 signed with the API secret, base64-encoded, wrapped in
// an authorization header string which is itself base64-encoded and
// appended as a query parameter alongside date and host.
func BuildWSURL(host, path, apiKey, apiSecret string, now time.Time) string {
	date := now.UTC().Format(http.TimeFormat)
	requestLine := fmt.Sprintf("GET %s HTTP/1.1", path)
	signatureOrigin := fmt.Sprintf("host: %s\ndate: %s\n%s", host, date, requestLine)

	mac := hmac.New(sha256.New, []byte(apiSecret))
	mac.Write([]byte(signatureOrigin))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	authOrigin := fmt.Sprintf(
		`api_key="%s", algorithm="hmac-sha256", headers="host date request-line", signature="%s"`,
		apiKey, signature,
	)
	authorization := base64.StdEncoding.EncodeToString([]byte(authOrigin))

	params := url.Values{}
	params.Set("authorization", authorization)
	params.Set("date", date)
	params.Set("host", host)
	return fmt.Sprintf("wss://%s%s?%s", host, path, params.Encode())
}
