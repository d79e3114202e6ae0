package utils

import (
	"testing"

	"lpr-service/internal/domain/lpr"
)

func TestNormalizePlate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "with spaces",
			input:    "12 가 3456",
			expected: "12가3456",
		},
		{
			name:     "with dashes",
			input:    "34-나-1234",
			expected: "34나1234",
		},
		{
			name:     "tabs and newlines",
			input:    "123\t가\n4567",
			expected: "123가4567",
		},
		{
			name:     "already normalized",
			input:    "12가3456",
			expected: "12가3456",
		},
		{
			name:     "with leading/trailing spaces",
			input:    "  12가3456  ",
			expected: "12가3456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizePlate(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizePlate(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMatchPlate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{name: "two digit prefix", input: "12가3456", want: "12가3456", wantOK: true},
		{name: "three digit prefix", input: "123가4567", want: "123가4567", wantOK: true},
		{name: "spaces and hyphens", input: "34-나-1234", want: "34나1234", wantOK: true},
		{name: "surrounding noise", input: "서울12가3456xyz", want: "12가3456", wantOK: true},
		{name: "first match wins", input: "12가3456 78나9012", want: "12가3456", wantOK: true},
		{name: "longer digit run", input: "9912가3456", want: "912가3456", wantOK: true},
		{name: "latin text", input: "ABC123", wantOK: false},
		{name: "two syllables", input: "12가나3456", wantOK: false},
		{name: "latin letter in place of syllable", input: "12A3456", wantOK: false},
		{name: "too few trailing digits", input: "12가345", wantOK: false},
		{name: "jamo is not a syllable", input: "12ㄱ3456", wantOK: false},
		{name: "empty", input: "", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchPlate(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("MatchPlate(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("MatchPlate(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestJoinTokens(t *testing.T) {
	tokens := []lpr.Token{{Text: "12 가"}, {Text: "3456"}}

	raw := JoinTokens(tokens)
	if raw != "12 가3456" {
		t.Fatalf("JoinTokens() = %q", raw)
	}

	plate, ok := MatchPlate(raw)
	if !ok || plate != "12가3456" {
		t.Errorf("MatchPlate(JoinTokens()) = %q, %v", plate, ok)
	}

	if JoinTokens(nil) != "" {
		t.Error("JoinTokens(nil) should be empty")
	}
}
