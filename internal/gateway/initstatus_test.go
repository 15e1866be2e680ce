package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"testing"
)

func TestInitStatusHandleUnconfigured(t *testing.T) {
	os.Unsetenv("API_KEY")
	os.Unsetenv("LEGACY_USE_URL")

	h := NewInitStatus("anthropic")
	w := doRequest(h.Handle, http.MethodGet, "/api/init-status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["requires_api_key"] != false {
		t.Errorf("requires_api_key = %v, want false when LEGACY_USE_URL is unset", body["requires_api_key"])
	}
	if body["is_configured"] != false {
		t.Errorf("is_configured = %v, want false", body["is_configured"])
	}
	if _, present := body["default_api_key"]; present {
		t.Error("default_api_key should be absent when no API_KEY is set")
	}
}

func TestInitStatusHandleConfigured(t *testing.T) {
	os.Setenv("API_KEY", "sk-legacyuse-1234567890abcdef")
	os.Setenv("LEGACY_USE_URL", "https://legacy-use.example.com")
	defer func() {
		os.Unsetenv("API_KEY")
		os.Unsetenv("LEGACY_USE_URL")
	}()

	h := NewInitStatus("openai")
	w := doRequest(h.Handle, http.MethodGet, "/api/init-status", nil)

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["requires_api_key"] != true {
		t.Errorf("requires_api_key = %v, want true", body["requires_api_key"])
	}
	if body["is_configured"] != true {
		t.Errorf("is_configured = %v, want true", body["is_configured"])
	}
	if body["current_provider"] != "openai" {
		t.Errorf("current_provider = %v, want openai", body["current_provider"])
	}
	key, _ := body["default_api_key"].(string)
	if key == "" || key == "sk-legacyuse-1234567890abcdef" {
		t.Errorf("default_api_key = %q, want a redacted, non-empty hint", key)
	}
}
