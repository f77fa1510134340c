package iflytek

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"testing"
	"time"
)

func TestBuildWSURL(t *testing.T) {
	now := time.Date(2024, time.March, 5, 12, 30, 0, 0, time.UTC)
	raw := BuildWSURL("iat-api.xfyun.cn", "/v2/iat", "key123", "secret456", now)

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("BuildWSURL returned an unparseable URL: %v", err)
	}
	if parsed.Scheme != "wss" {
		t.Errorf("Expected wss scheme, got %s", parsed.Scheme)
	}
	if parsed.Host != "iat-api.xfyun.cn" {
		t.Errorf("Expected host iat-api.xfyun.cn, got %s", parsed.Host)
	}
	if parsed.Path != "/v2/iat" {
		t.Errorf("Expected path /v2/iat, got %s", parsed.Path)
	}

	query := parsed.Query()
	if got := query.Get("host"); got != "iat-api.xfyun.cn" {
		t.Errorf("Expected host query param iat-api.xfyun.cn, got %s", got)
	}
	if got := query.Get("date"); got != "Tue, 05 Mar 2024 12:30:00 GMT" {
		t.Errorf("Unexpected date query param %q", got)
	}

	authBytes, err := base64.StdEncoding.DecodeString(query.Get("authorization"))
	if err != nil {
		t.Fatalf("authorization is not valid base64: %v", err)
	}
	auth := string(authBytes)
	if !strings.Contains(auth, `api_key="key123"`) {
		t.Errorf("authorization missing api_key: %s", auth)
	}
	if !strings.Contains(auth, `algorithm="hmac-sha256"`) {
		t.Errorf("authorization missing algorithm: %s", auth)
	}
	if !strings.Contains(auth, `headers="host date request-line"`) {
		t.Errorf("authorization missing signed headers: %s", auth)
	}

	origin := fmt.Sprintf("host: %s\ndate: %s\nGET %s HTTP/1.1",
		"iat-api.xfyun.cn", query.Get("date"), "/v2/iat")
	mac := hmac.New(sha256.New, []byte("secret456"))
	mac.Write([]byte(origin))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	if !strings.Contains(auth, fmt.Sprintf(`signature="%s"`, want)) {
		t.Errorf("signature does not verify against the secret: %s", auth)
	}
}

func TestBuildWSURL_DateTracksClock(t *testing.T) {
	a := BuildWSURL("h", "/p", "k", "s", time.Unix(1000, 0))
	b := BuildWSURL("h", "/p", "k", "s", time.Unix(2000, 0))
	if a == b {
		t.Error("Expected different URLs for different signing times")
	}
}
