package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whiskertrace/trapper/pkg/models"
)

func TestEvaluate(t *testing.T) {
	g := New([]string{"forgottenfelines.example"})

	tests := []struct {
		name       string
		input      Input
		admitted   bool
		reason     string
	}{
		{
			name:     "plain person admitted",
			input:    Input{Email: "maria@example.com", FirstName: "Maria", DisplayName: "Maria Lopez"},
			admitted: true,
		},
		{
			name:     "phone only admitted",
			input:    Input{Phone: "7075551234", FirstName: "Maria", DisplayName: "Maria Lopez"},
			admitted: true,
		},
		{
			name:   "organization's own domain",
			input:  Input{Email: "staff@forgottenfelines.example", FirstName: "Maria", DisplayName: "Maria Lopez"},
			reason: ReasonOrganizationalEmail,
		},
		{
			name:   "generic info prefix",
			input:  Input{Email: "info@vetclinic.example", FirstName: "Maria", DisplayName: "Maria Lopez"},
			reason: ReasonGenericEmailPrefix,
		},
		{
			name:   "no contact info",
			input:  Input{FirstName: "Maria", DisplayName: "Maria Lopez"},
			reason: ReasonMissingContactInfo,
		},
		{
			name:   "no first name",
			input:  Input{Email: "maria@example.com", DisplayName: "Maria Lopez"},
			reason: ReasonMissingFirstName,
		},
		{
			name:   "organization name",
			input:  Input{Email: "someone@example.com", FirstName: "Forgotten", DisplayName: "Forgotten Felines Foster"},
			reason: ReasonNonPersonName,
		},
		{
			name:   "garbage name",
			input:  Input{Email: "someone@example.com", FirstName: "N/A", DisplayName: "N/A"},
			reason: ReasonNonPersonName,
		},
		{
			name:     "site names pass the gate",
			input:    Input{Email: "someone@example.com", FirstName: "FFSC", DisplayName: "FFSC Foster"},
			admitted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			admitted, reason := g.Evaluate(tt.input)
			assert.Equal(t, tt.admitted, admitted)
			assert.Equal(t, tt.reason, reason)
		})
	}
}

func TestEvaluateBlacklist(t *testing.T) {
	g := New(nil)

	entry := &models.BlacklistEntry{
		IDType:                 models.IdentifierTypePhone,
		ValueNormalized:        "7075550000",
		RequiredNameSimilarity: 0.85,
	}

	t.Run("insufficient name similarity rejected", func(t *testing.T) {
		admitted, reason := g.Evaluate(Input{
			Phone:           "7075550000",
			FirstName:       "Maria",
			DisplayName:     "Maria Lopez",
			BlacklistChecks: []BlacklistCheck{{Entry: entry, NameSimilarity: 0.3}},
		})
		assert.False(t, admitted)
		assert.Equal(t, ReasonBlacklisted, reason)
	})

	t.Run("sufficient name similarity admitted", func(t *testing.T) {
		admitted, reason := g.Evaluate(Input{
			Phone:           "7075550000",
			FirstName:       "Maria",
			DisplayName:     "Maria Lopez",
			BlacklistChecks: []BlacklistCheck{{Entry: entry, NameSimilarity: 0.95}},
		})
		assert.True(t, admitted)
		assert.Empty(t, reason)
	})

	t.Run("organizational email outranks blacklist", func(t *testing.T) {
		g := New([]string{"rescue.example"})
		admitted, reason := g.Evaluate(Input{
			Email:           "staff@rescue.example",
			FirstName:       "Maria",
			DisplayName:     "Maria Lopez",
			BlacklistChecks: []BlacklistCheck{{Entry: entry, NameSimilarity: 0.1}},
		})
		assert.False(t, admitted)
		assert.Equal(t, ReasonOrganizationalEmail, reason)
	})
}
