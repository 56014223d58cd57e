package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/whiskertrace/trapper/pkg/models"
)

func TestRelationshipLabel(t *testing.T) {
	tests := []struct {
		name     string
		relType  models.RelationshipType
		expected string
	}{
		{"plain type", models.RelationResidentOf, "RESIDENT_OF"},
		{"seen at", models.RelationSeenAt, "SEEN_AT"},
		{"strips punctuation", models.RelationshipType("seen-at!"), "SEENAT"},
		{"keeps digits", models.RelationshipType("tier2_link"), "TIER2_LINK"},
		{"empty falls back", models.RelationshipType(""), "RELATED_TO"},
		{"punctuation only falls back", models.RelationshipType("--"), "RELATED_TO"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, relationshipLabel(tt.relType))
		})
	}
}

func TestKindLabelsCoverEveryEntityKind(t *testing.T) {
	for _, kind := range []models.EntityKind{models.EntityKindPerson, models.EntityKindAnimal, models.EntityKindPlace} {
		assert.NotEmpty(t, kindLabels[kind], "entity kind %s has no node label", kind)
	}
}
