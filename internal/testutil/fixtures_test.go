package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qcompat/internal/question"
)

func TestWriteQuestions(t *testing.T) {
	path := WriteQuestions(t, "1.0.0", "2.0.0")

	recorded, err := question.ReadAll(path)
	require.NoError(t, err)
	require.Len(t, recorded, 2)
	assert.Equal(t, "1.0.0", recorded[0].ProducerVersion)
	assert.Equal(t, UUID(1), recorded[0].UUID())
	assert.Equal(t, UUID(2), recorded[1].UUID())
	require.NoError(t, recorded[1].Validate())
}

func TestUUID(t *testing.T) {
	for _, n := range []int{0, 1, 42, 999999} {
		_, err := uuid.Parse(UUID(n))
		assert.NoError(t, err, n)
	}
	assert.NotEqual(t, UUID(1), UUID(2))
}
