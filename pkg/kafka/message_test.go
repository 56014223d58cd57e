package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whiskertrace/trapper/pkg/models"
)

func TestParseObservation(t *testing.T) {
	t.Run("valid person observation", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{
			"kind": "person_observation",
			"source_system": "clinic",
			"person": {"first_name": "Maria", "last_name": "Lopez", "email": "maria@example.com"}
		}`)}

		obs, err := msg.ParseObservation()
		require.NoError(t, err)
		assert.Equal(t, models.ObservationPerson, obs.Kind)
		assert.Equal(t, "clinic", obs.SourceSystem)
		require.NotNil(t, obs.Person)
		assert.Equal(t, "Maria", obs.Person.FirstName)
	})

	t.Run("valid visit observation", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{
			"kind": "visit",
			"source_system": "clinic",
			"visit": {"address_text": "890 Rockwell Rd"}
		}`)}

		obs, err := msg.ParseObservation()
		require.NoError(t, err)
		assert.Equal(t, models.ObservationVisit, obs.Kind)
		require.NotNil(t, obs.Visit)
	})

	t.Run("malformed json", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"kind":`)}
		_, err := msg.ParseObservation()
		assert.ErrorContains(t, err, "failed to decode")
	})

	t.Run("missing kind", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"source_system": "clinic"}`)}
		_, err := msg.ParseObservation()
		assert.ErrorContains(t, err, "invalid observation")
	})

	t.Run("missing source system", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"kind": "visit", "visit": {}}`)}
		_, err := msg.ParseObservation()
		assert.ErrorContains(t, err, "invalid observation")
	})

	t.Run("kind without payload", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{
			"kind": "animal_observation",
			"source_system": "clinic",
			"person": {"first_name": "Maria"}
		}`)}
		_, err := msg.ParseObservation()
		assert.ErrorContains(t, err, "no animal payload")
	})

	t.Run("unknown kind", func(t *testing.T) {
		msg := &IncomingMessage{Value: []byte(`{"kind": "sighting", "source_system": "clinic"}`)}
		_, err := msg.ParseObservation()
		assert.ErrorContains(t, err, "unknown observation kind")
	})
}
