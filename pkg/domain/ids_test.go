package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "villageops/pkg/domain-errors"
)

// TestParseID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs".
func TestParseID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseEntityID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseEntityID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseCommunityID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeBadRequest))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParseEntityID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, EntityID(valid), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between ID
// kinds. If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	entityID := EntityID(uuid.New())
	communityID := CommunityID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ EntityID = communityID   // compile error
	// var _ CommunityID = entityID   // compile error

	assert.NotEqual(t, uuid.UUID(entityID), uuid.UUID(communityID))
}

func TestRoundTrip(t *testing.T) {
	id := NewBatchID()
	parsed, err := ParseBatchID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
}
