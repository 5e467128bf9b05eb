package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMirrorStatusAdvancesOver(t *testing.T) {
	cases := []struct {
		next, prev MirrorStatus
		want       bool
	}{
		{MirrorMirroring, MirrorPending, true},
		{MirrorCompleted, MirrorPending, true},
		{MirrorCompleted, MirrorMirroring, true},
		{MirrorFailed, MirrorMirroring, true},

		{MirrorPending, MirrorMirroring, false},
		{MirrorPending, MirrorCompleted, false},
		{MirrorMirroring, MirrorCompleted, false},
		{MirrorMirroring, MirrorFailed, false},

		// Repeats and terminal flips never advance.
		{MirrorPending, MirrorPending, false},
		{MirrorCompleted, MirrorCompleted, false},
		{MirrorFailed, MirrorCompleted, false},
		{MirrorCompleted, MirrorFailed, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.next.AdvancesOver(tc.prev),
			"%s over %s", tc.next, tc.prev)
	}
}

func TestMirrorStatusTerminal(t *testing.T) {
	assert.False(t, MirrorPending.Terminal())
	assert.False(t, MirrorMirroring.Terminal())
	assert.True(t, MirrorCompleted.Terminal())
	assert.True(t, MirrorFailed.Terminal())
}

func TestEntityTypeValid(t *testing.T) {
	assert.True(t, EntityIncident.Valid())
	assert.True(t, EntityTask.Valid())
	assert.True(t, EntityProject.Valid())
	assert.False(t, EntityType("USER").Valid())
}

func TestTargetRefKey(t *testing.T) {
	ref := TargetRef{Type: EntityIncident, EntityID: "INC-1"}
	assert.Equal(t, "INC-1/INCIDENT", ref.Key())
}
