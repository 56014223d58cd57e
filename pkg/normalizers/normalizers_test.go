package normalizers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Maria.Lopez@Example.COM", "maria.lopez@example.com"},
		{"trims whitespace", "  cats@rescue.org  ", "cats@rescue.org"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Email(tt.input))
		})
	}
}

func TestPhone(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"strips formatting", "(707) 555-1234", "7075551234"},
		{"strips leading country code", "1-707-555-1234", "7075551234"},
		{"plus one prefix", "+1 707 555 1234", "7075551234"},
		{"keeps 10 digits untouched", "7075551234", "7075551234"},
		{"eleven digits not starting with 1", "27075551234", "27075551234"},
		{"seven digit local number kept", "555-1234", "5551234"},
		{"too short rejected", "911", ""},
		{"letters only rejected", "no phone", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Phone(tt.input))
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases and collapses spaces", "Maria   Lopez", "maria lopez"},
		{"strips suffix", "John Smith Jr.", "john smith"},
		{"strips veterinary suffix", "Alice Chen DVM", "alice chen"},
		{"strips stacked suffixes", "John Smith Jr. Sr.", "john smith"},
		{"strips doctorate behind suffix", "Alice Chen MD PhD", "alice chen"},
		{"hyphen becomes space", "Mary-Anne O'Brien", "mary anne o brien"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Name(tt.input))
		})
	}
}

func TestAddressKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"casefolds and collapses", "890  Rockwell   Rd", "890 rockwell rd"},
		{"abbreviates street type", "1200 Main Street, Santa Rosa", "1200 main st santa rosa"},
		{"abbreviates trailing street type", "1200 Main Avenue", "1200 main ave"},
		{"drops punctuation", "890 Rockwell Rd. #4, Windsor", "890 rockwell rd 4 windsor"},
		{"equal keys for format variants", "1200 main st santa rosa", AddressKey("1200 Main Street, Santa Rosa")},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, AddressKey(tt.input))
		})
	}
}

// Every normalizer must be a fixed point on its own output. Resolution runs
// records through normalization more than once on re-ingest, so drift here
// would split identities.
func TestIdempotence(t *testing.T) {
	inputs := []string{
		"Maria.Lopez@Example.COM",
		"1-707-555-1234",
		"(707) 555-1234",
		"John Smith Jr.",
		"John Smith Jr Sr",
		"1200 Main Street, Santa Rosa",
		"890 Rockwell Rd. #4",
		"CHIP-985112001234567",
		"",
	}

	for name := range registry {
		fn, ok := Get(name)
		assert.True(t, ok)
		for _, input := range inputs {
			once := fn(input)
			twice := fn(once)
			assert.Equal(t, once, twice, "normalizer %q not idempotent on %q", name, input)
		}
	}
}

func TestForIdentifierType(t *testing.T) {
	assert.Equal(t, "maria@example.com", ForIdentifierType("email", " Maria@Example.com "))
	assert.Equal(t, "7075551234", ForIdentifierType("phone", "1 (707) 555-1234"))
	assert.Equal(t, "985112001234567", ForIdentifierType("microchip", "985-112-001-234-567"))
	assert.Equal(t, "A42", ForIdentifierType("ear_tag", "a-42"))
	assert.Equal(t, "raw value", ForIdentifierType("unknown", " raw value "))
}
