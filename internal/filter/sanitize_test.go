package filter

import (
	"encoding/json"
	"net/http"
	"testing"
)

var testCfg = SanitizeConfig{
	Headers:     []string{"Authorization", "X-Api-Key", "Set-Cookie"},
	BodyFields:  []string{"token", "password", "image"},
	Replacement: "***REDACTED***",
}

func TestSanitizeHeaders(t *testing.T) {
	s := NewSanitizer(testCfg)
	h := http.Header{}
	h.Set("Authorization", "Bearer abc")
	h.Set("X-API-Key", "k")
	h.Add("Accept", "application/json")
	h.Add("Accept", "text/plain")

	got := s.Headers(h)
	if got["Authorization"] != testCfg.Replacement {
		t.Fatalf("expected authorization redacted")
	}
	if got["X-Api-Key"] != testCfg.Replacement {
		t.Fatalf("expected x-api-key redacted")
	}
	if got["Accept"] != "application/json, text/plain" {
		t.Fatalf("expected accept unchanged, got %q", got["Accept"])
	}
}

func TestSanitizeBodyNested(t *testing.T) {
	s := NewSanitizer(testCfg)
	body := `{"message":"pitch","image":"data:image/png;base64,AAAA","user":{"password":"p","profile":{"token":"t","age":30}},"items":[{"token":"s1"},{"name":"n"}]}`

	var got map[string]interface{}
	if err := json.Unmarshal([]byte(s.Body(body)), &got); err != nil {
		t.Fatalf("unexpected json error: %v", err)
	}
	if got["image"] != testCfg.Replacement {
		t.Fatalf("expected image payload redacted")
	}
	if got["message"] != "pitch" {
		t.Fatalf("expected message kept")
	}
	user := got["user"].(map[string]interface{})
	if user["password"] != testCfg.Replacement {
		t.Fatalf("expected nested password redacted")
	}
	profile := user["profile"].(map[string]interface{})
	if profile["token"] != testCfg.Replacement {
		t.Fatalf("expected nested token redacted")
	}
	items := got["items"].([]interface{})
	if items[0].(map[string]interface{})["token"] != testCfg.Replacement {
		t.Fatalf("expected token in array redacted")
	}
}

func TestSanitizeNonJSONBody(t *testing.T) {
	s := NewSanitizer(testCfg)
	if got := s.Body("not-json"); got != "not-json" {
		t.Fatalf("expected non-json body unchanged")
	}
}

func TestMask(t *testing.T) {
	if got := Mask("AIzaSyD-1234567890wxyz", 4); got != "AIza**************wxyz" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := Mask("short", 4); got != "*****" {
		t.Fatalf("unexpected short mask %q", got)
	}
}
