package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/whiskertrace/trapper/pkg/models"
)

var validate = validator.New()

// IncomingMessage wraps a raw Kafka message with parsed headers
type IncomingMessage struct {
	Key       string
	Value     []byte
	Headers   map[string]string
	Partition int
	Offset    int64
	Timestamp time.Time
	Topic     string

	// Trace context (extracted from Kafka headers)
	TraceParent string
	TraceState  string
}

// ParseObservation decodes and validates the observation envelope. A message
// that fails here is malformed and will never succeed on retry.
func (m *IncomingMessage) ParseObservation() (*models.Observation, error) {
	var obs models.Observation
	if err := json.Unmarshal(m.Value, &obs); err != nil {
		return nil, fmt.Errorf("failed to decode observation: %w", err)
	}

	if err := validate.Struct(&obs); err != nil {
		return nil, fmt.Errorf("invalid observation: %w", err)
	}

	if err := obs.Validate(); err != nil {
		return nil, err
	}

	return &obs, nil
}
