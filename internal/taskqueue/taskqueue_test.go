package taskqueue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessVideoPayloadRoundTrip(t *testing.T) {
	id := uuid.New()
	payload, err := json.Marshal(ProcessVideoPayload{VideoID: id})
	require.NoError(t, err)

	var decoded ProcessVideoPayload
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, id, decoded.VideoID)
}

func TestEnrollFacePayloadRoundTrip(t *testing.T) {
	id := uuid.New()
	payload, err := json.Marshal(EnrollFacePayload{PersonID: id})
	require.NoError(t, err)

	var decoded EnrollFacePayload
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, id, decoded.PersonID)
}
