package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-tools-server/internal/models"
)

func TestFlightGuardBlocksSameOwnerAndKind(t *testing.T) {
	guard := newFlightGuard()

	require.NoError(t, guard.begin("guest_abc", models.KindChat))

	err := guard.begin("guest_abc", models.KindChat)
	assert.ErrorIs(t, err, models.ErrGenerationInFlight)

	guard.end("guest_abc", models.KindChat)
	assert.NoError(t, guard.begin("guest_abc", models.KindChat))
}

func TestFlightGuardAllowsDifferentKinds(t *testing.T) {
	guard := newFlightGuard()

	require.NoError(t, guard.begin("guest_abc", models.KindChat))
	assert.NoError(t, guard.begin("guest_abc", models.KindImage))
	assert.NoError(t, guard.begin("guest_abc", models.KindVision))
}

func TestFlightGuardIsolatesOwners(t *testing.T) {
	guard := newFlightGuard()

	require.NoError(t, guard.begin("guest_abc", models.KindChat))
	assert.NoError(t, guard.begin("guest_xyz", models.KindChat))
}
