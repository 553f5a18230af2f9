package infra

import (
	"strings"
	"testing"
)

func TestExtractMarker(t *testing.T) {
	query := "--sql 2f1d9c39-8d54-4e0f-9b93-1a2b3c4d5e6f\nSELECT 1"
	marker, trimmed, err := extractMarker(query)
	if err != nil {
		t.Fatalf("extractMarker returned error: %v", err)
	}
	if marker != "2f1d9c39-8d54-4e0f-9b93-1a2b3c4d5e6f" {
		t.Fatalf("marker mismatch: got %q", marker)
	}
	if strings.TrimSpace(trimmed) != "SELECT 1" {
		t.Fatalf("trimmed query mismatch: got %q", trimmed)
	}
}

func TestExtractMarkerRejectsUnmarkedQueries(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "no marker", query: "SELECT 1"},
		{name: "malformed uuid", query: "--sql not-a-uuid\nSELECT 1"},
		{name: "uppercase uuid", query: "--sql 2F1D9C39-8D54-4E0F-9B93-1A2B3C4D5E6F\nSELECT 1"},
		{name: "empty", query: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := extractMarker(tt.query); err == nil {
				t.Fatalf("extractMarker accepted %q", tt.query)
			}
		})
	}
}
