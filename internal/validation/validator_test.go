// Indexsync - Primary Store to Search Index Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/indexsync

package validation

import (
	"strings"
	"testing"
)

type entityRequest struct {
	ID       string `json:"id" validate:"entity_id"`
	Approach string `json:"approach" validate:"required,approach"`
	Name     string `json:"name" validate:"omitempty,max=10"`
	Version  int64  `json:"version" validate:"gte=0"`
}

type serverSection struct {
	Port  int    `koanf:"port" validate:"min=1,max=65535"`
	Mode  string `koanf:"mode" validate:"oneof=nats memory"`
	NoTag int    `validate:"lt=5"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input interface{}
	}{
		{"entity request", &entityRequest{ID: "doc-1", Approach: "queue_versioned", Version: 3}},
		{"cdc approach", &entityRequest{ID: "doc-1", Approach: "cdc"}},
		{"config section", &serverSection{Port: 8080, Mode: "nats"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateStruct(tt.input); err != nil {
				t.Errorf("ValidateStruct() = %v, want nil", err)
			}
		})
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     interface{}
		wantField string
		wantTag   string
		wantMsg   string
	}{
		{
			name:      "unknown approach",
			input:     &entityRequest{ID: "doc-1", Approach: "batch"},
			wantField: "approach",
			wantTag:   "approach",
			wantMsg:   "approach must be one of",
		},
		{
			name:      "missing approach",
			input:     &entityRequest{ID: "doc-1"},
			wantField: "approach",
			wantTag:   "required",
			wantMsg:   "approach is required",
		},
		{
			name:      "id with whitespace",
			input:     &entityRequest{ID: "doc 1", Approach: "direct"},
			wantField: "id",
			wantTag:   "entity_id",
		},
		{
			name:      "empty id",
			input:     &entityRequest{Approach: "direct"},
			wantField: "id",
			wantTag:   "entity_id",
		},
		{
			name:      "name too long",
			input:     &entityRequest{ID: "a", Approach: "direct", Name: "abcdefghijk"},
			wantField: "name",
			wantTag:   "max",
			wantMsg:   "name must be at most 10 characters",
		},
		{
			name:      "negative version",
			input:     &entityRequest{ID: "a", Approach: "direct", Version: -1},
			wantField: "version",
			wantTag:   "gte",
			wantMsg:   "version must be greater than or equal to 0",
		},
		{
			name:      "koanf tag name",
			input:     &serverSection{Port: 0, Mode: "memory"},
			wantField: "port",
			wantTag:   "min",
			wantMsg:   "port must be at least 1",
		},
		{
			name:      "oneof",
			input:     &serverSection{Port: 1, Mode: "kafka"},
			wantField: "mode",
			wantTag:   "oneof",
			wantMsg:   "mode must be one of: nats memory",
		},
		{
			name:      "go field name without tags",
			input:     &serverSection{Port: 1, Mode: "nats", NoTag: 9},
			wantField: "NoTag",
			wantTag:   "lt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(tt.input)
			if verr == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			errs := verr.Errors()
			if len(errs) != 1 {
				t.Fatalf("got %d errors, want 1: %v", len(errs), verr)
			}
			if errs[0].Field() != tt.wantField {
				t.Errorf("Field() = %q, want %q", errs[0].Field(), tt.wantField)
			}
			if errs[0].Tag() != tt.wantTag {
				t.Errorf("Tag() = %q, want %q", errs[0].Tag(), tt.wantTag)
			}
			if tt.wantMsg != "" && !strings.Contains(errs[0].Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want it to contain %q", errs[0].Error(), tt.wantMsg)
			}
		})
	}
}

func TestValidEntityID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"doc-1", true},
		{"user:42/profile", true},
		{"ünïcode", true},
		{"", false},
		{"has space", false},
		{"tab\there", false},
		{"nul\x00", false},
		{strings.Repeat("x", MaxEntityIDLength), true},
		{strings.Repeat("x", MaxEntityIDLength+1), false},
	}
	for _, tt := range tests {
		if got := ValidEntityID(tt.id); got != tt.want {
			t.Errorf("ValidEntityID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

func TestToAPIError(t *testing.T) {
	t.Run("single error", func(t *testing.T) {
		verr := ValidateStruct(&entityRequest{ID: "a", Approach: "nope"})
		if verr == nil {
			t.Fatal("expected error")
		}
		apiErr := verr.ToAPIError()
		if apiErr.Code != "VALIDATION_ERROR" {
			t.Errorf("Code = %q", apiErr.Code)
		}
		if apiErr.Details["field"] != "approach" {
			t.Errorf("Details[field] = %v", apiErr.Details["field"])
		}
	})

	t.Run("multiple errors", func(t *testing.T) {
		verr := ValidateStruct(&entityRequest{Version: -1})
		if verr == nil {
			t.Fatal("expected error")
		}
		if len(verr.Errors()) != 3 {
			t.Fatalf("got %d errors, want 3: %v", len(verr.Errors()), verr)
		}
		apiErr := verr.ToAPIError()
		fields, ok := apiErr.Details["fields"].([]map[string]interface{})
		if !ok || len(fields) != 3 {
			t.Fatalf("Details[fields] = %v", apiErr.Details["fields"])
		}
		for _, name := range []string{"id:", "approach:", "version:"} {
			if !strings.Contains(apiErr.Message, name) {
				t.Errorf("Message %q missing %q", apiErr.Message, name)
			}
		}
	})

	t.Run("empty", func(t *testing.T) {
		apiErr := (&RequestValidationError{}).ToAPIError()
		if apiErr.Message != "Validation failed" {
			t.Errorf("Message = %q", apiErr.Message)
		}
	})
}
