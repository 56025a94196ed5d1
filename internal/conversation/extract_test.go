// ABOUTME: Tests for free-text metadata extraction
// ABOUTME: Covers subject/contact line parsing, capitalization, and previews

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractSubject(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantOK  bool
	}{
		{"simple", "Subject: Visit\nHello", "Visit", true},
		{"case insensitive", "SUBJECT: Pricing question", "Pricing question", true},
		{"mid body", "Hello\nSubject: Follow-up\nBye", "Follow-up", true},
		{"leading spaces", "  Subject:   Rental   \nmore", "Rental", true},
		{"absent", "Just a plain message", "", false},
		{"not a line prefix", "Re: Subject matters", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractSubject(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractContactName(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		want   string
		wantOK bool
	}{
		{"simple", "Contact: Maria\nHello", "Maria", true},
		{"capitalized", "contact: joao SILVA", "Joao silva", true},
		{"trimmed", "Contact:    Ana Paula   ", "Ana paula", true},
		{"absent", "Hello there", "", false},
		{"blank name", "Contact:   \nHello", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractContactName(tt.body)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Joao silva", Capitalize("joao SILVA"))
	assert.Equal(t, "Maria", Capitalize("maria"))
	assert.Equal(t, "Ágata", Capitalize("áGATA"))
	assert.Equal(t, "", Capitalize(""))
}

func TestPreview(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"metadata stripped",
			"Subject: Visit\nI'd like to schedule a visit.\n---\nContact: Joao Silva\nE-mail: joao@example.com",
			"I'd like to schedule a visit.",
		},
		{"plain", "Hello, is the apartment still available?", "Hello, is the apartment still available?"},
		{"blank lines skipped", "\n\n  \nActual content", "Actual content"},
		{"phone line skipped", "Phone: +55 11 99999\nCall me back", "Call me back"},
		{"only metadata", "Subject: Visit\nContact: Ana\n---", "No message"},
		{"empty", "", "No message"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Preview(tt.body))
		})
	}
}
