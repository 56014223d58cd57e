package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapLegacyRelationshipType(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected RelationshipType
		wantErr  bool
	}{
		{"current label passes through", "resident_of", RelationResidentOf, false},
		{"legacy owner", "owner", RelationOwnerOf, false},
		{"legacy owns", "owns", RelationOwnerOf, false},
		{"legacy guardian", "guardian", RelationOwnerOf, false},
		{"legacy fostering", "fostering", RelationFosterOf, false},
		{"legacy trapped_by", "trapped_by", RelationTrapperOf, false},
		{"legacy resides_at", "resides_at", RelationResidentOf, false},
		{"legacy colony_site", "colony_site", RelationSeenAt, false},
		{"legacy location", "location", RelationSeenAt, false},
		// lives_at appears both as legacy label and current enum
		{"lives_at", "lives_at", RelationLivesAt, false},
		{"unknown label", "best_friend", "", true},
		{"empty label", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MapLegacyRelationshipType(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestEdgeKindFor(t *testing.T) {
	tests := []struct {
		relType  RelationshipType
		expected EdgeKind
	}{
		{RelationResidentOf, EdgeKindPersonPlace},
		{RelationCaretakerAt, EdgeKindPersonPlace},
		{RelationOwnerOf, EdgeKindPersonAnimal},
		{RelationFosterOf, EdgeKindPersonAnimal},
		{RelationTrapperOf, EdgeKindPersonAnimal},
		{RelationSeenAt, EdgeKindAnimalPlace},
		{RelationLivesAt, EdgeKindAnimalPlace},
	}

	for _, tt := range tests {
		t.Run(string(tt.relType), func(t *testing.T) {
			kind, ok := EdgeKindFor(tt.relType)
			require.True(t, ok)
			assert.Equal(t, tt.expected, kind)
		})
	}

	t.Run("unknown type", func(t *testing.T) {
		_, ok := EdgeKindFor("confidant_of")
		assert.False(t, ok)
	})
}

func TestValidateEdgeTables(t *testing.T) {
	assert.NoError(t, ValidateEdgeTables())
}

func TestConfidenceForTier(t *testing.T) {
	tests := []struct {
		tier       ConfidenceTier
		confidence float64
		known      bool
	}{
		{TierHigh, 0.9, true},
		{TierMedium, 0.7, true},
		{TierLow, 0.5, true},
		{TierVeryLow, 0.3, true},
		{ConfidenceTier("certain"), 0, false},
		{ConfidenceTier(""), 0, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			confidence, ok := ConfidenceForTier(tt.tier)
			assert.Equal(t, tt.known, ok)
			assert.Equal(t, tt.confidence, confidence)
		})
	}
}

func TestEdgeKindEndpoints(t *testing.T) {
	a, b := EdgeKindPersonPlace.Endpoints()
	assert.Equal(t, EntityKindPerson, a)
	assert.Equal(t, EntityKindPlace, b)

	a, b = EdgeKindPersonAnimal.Endpoints()
	assert.Equal(t, EntityKindPerson, a)
	assert.Equal(t, EntityKindAnimal, b)

	a, b = EdgeKindAnimalPlace.Endpoints()
	assert.Equal(t, EntityKindAnimal, a)
	assert.Equal(t, EntityKindPlace, b)

	a, b = EdgeKind("nope").Endpoints()
	assert.Empty(t, a)
	assert.Empty(t, b)
}
