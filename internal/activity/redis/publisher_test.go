package redis

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commonpurse/commonpurse/internal/treasury"
)

func TestStreamValues(t *testing.T) {
	a := &treasury.Activity{
		ID:          uuid.New(),
		CommunityID: uuid.New(),
		Kind:        treasury.KindCommunityCreated,
		Actor:       "L1",
	}

	values, err := streamValues(a)
	require.NoError(t, err)

	assert.Equal(t, "community_created", values["kind"])
	assert.Equal(t, a.CommunityID.String(), values["community_id"])
	assert.Contains(t, values["payload"], a.ID.String())
}

func TestNewPublisher_BadURL(t *testing.T) {
	_, err := NewPublisher("not a url", "stream")
	assert.Error(t, err)

	p, err := NewPublisher("redis://localhost:6379/0", "treasury.activity")
	require.NoError(t, err)
	assert.NoError(t, p.Close())
}
