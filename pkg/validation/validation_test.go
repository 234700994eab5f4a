package validation

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConfigValidatorCollectsAllErrors(t *testing.T) {
	cv := NewConfigValidator("store").
		Required("uri", "").
		Positive("max_connections", 0).
		RangeInt("fetch_size", 5, 1, 4).
		MinDuration("query_timeout", time.Millisecond, 10*time.Millisecond).
		OneOf("backend", "sqlite", []string{"embedded", "neo4j"})

	if len(cv.Errors()) != 5 {
		t.Fatalf("Expected 5 errors, got %d: %v", len(cv.Errors()), cv.Errors())
	}
	err := cv.Validate()
	if err == nil {
		t.Fatal("Expected error")
	}
	for _, want := range []string{"store.uri", "store.max_connections", "store.fetch_size", "store.query_timeout", "store.backend"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestConfigValidatorValid(t *testing.T) {
	cv := NewConfigValidator("server").
		Required("listen", "0.0.0.0:3001").
		Positive("workers", 4).
		OneOf("backend", "neo4j", []string{"embedded", "neo4j"})
	if cv.HasErrors() {
		t.Errorf("Expected no errors, got %v", cv.Errors())
	}
	if err := cv.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestConfigValidatorWhenAndCustom(t *testing.T) {
	sentinel := errors.New("bad uri")
	cv := NewConfigValidator("store").
		When(false, func(cv *ConfigValidator) { cv.Required("uri", "") }).
		When(true, func(cv *ConfigValidator) {
			cv.Custom("uri", func() error { return sentinel })
		})

	if len(cv.Errors()) != 1 {
		t.Fatalf("Expected 1 error, got %d", len(cv.Errors()))
	}
	if !errors.Is(cv.Validate(), sentinel) {
		t.Error("Custom error should be wrapped")
	}
}

func TestDefaults(t *testing.T) {
	if got := DefaultOr("", "neo4j"); got != "neo4j" {
		t.Errorf("DefaultOr = %q", got)
	}
	if got := DefaultOr(7, 10); got != 7 {
		t.Errorf("DefaultOr = %d", got)
	}
	if got := DefaultOrDuration(-time.Second, 5*time.Second); got != 5*time.Second {
		t.Errorf("DefaultOrDuration = %v", got)
	}
}

func TestValidateRequest(t *testing.T) {
	tests := []struct {
		name    string
		req     any
		wantErr string
	}{
		{"valid project", &CreateProjectRequest{User: "alice", Name: "Alpha"}, ""},
		{"empty project name passes through", &CreateProjectRequest{User: "alice"}, ""},
		{"missing user", &CreateProjectRequest{Name: "Alpha"}, "user: field is required"},
		{"padded name", &CreateProjectRequest{User: "alice", Name: " Alpha"}, "name:"},
		{"control character", &VendorRequest{User: "alice", Vendor: "Ac\x00me", Project: "Alpha"}, "vendor:"},
		{"too long", &VendorRequest{User: strings.Repeat("a", MaxNameLength+1)}, "user: must not exceed 256"},
		{"empty vendor passes through", &VendorRequest{User: "alice", Project: "Alpha"}, ""},
		{"unicode", &VendorRequest{User: "zoë", Vendor: "Ünïcode GmbH", Project: "Ω"}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRequestNil(t *testing.T) {
	if err := ValidateRequest(nil); err == nil {
		t.Error("Expected error for nil request")
	}
}
