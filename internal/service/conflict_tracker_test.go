package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-match-api/internal/models"
)

func TestCheckAndCommitDetectsConflict(t *testing.T) {
	tracker := NewConflictTracker(nil)

	_, ok := tracker.CheckAndCommit("s1", window(1, 600, 720), "g1")
	require.True(t, ok)

	conflicts, ok := tracker.CheckAndCommit("s1", window(1, 660, 780), "g2")
	assert.False(t, ok)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "g1", conflicts[0].GroupID)
	assert.Equal(t, window(1, 600, 720), conflicts[0].Window)

	// The rejected window was not recorded.
	_, ok = tracker.CheckAndCommit("s2", window(1, 660, 780), "g2")
	assert.True(t, ok)
	assert.Len(t, tracker.Registry()["s1"], 1)
}

func TestCheckAndCommitAdjacentWindows(t *testing.T) {
	tracker := NewConflictTracker(nil)

	_, ok := tracker.CheckAndCommit("s1", window(1, 540, 600), "g1")
	require.True(t, ok)
	_, ok = tracker.CheckAndCommit("s1", window(1, 600, 660), "g2")
	assert.True(t, ok)
}

func TestCommitGroupIsAtomic(t *testing.T) {
	prior := models.NewSlotRegistry()
	prior.Add("s2", window(1, 600, 720))
	tracker := NewConflictTracker(prior)

	blocked, ok := tracker.CommitGroup([]string{"s1", "s2", "s3"}, window(1, 660, 780), "g1")
	require.False(t, ok)
	require.Len(t, blocked, 1)
	require.Len(t, blocked["s2"], 1)
	assert.Equal(t, window(1, 600, 720), blocked["s2"][0].Window)

	// No member picked up a slot from the failed commit.
	registry := tracker.Registry()
	assert.Empty(t, registry["s1"])
	assert.Empty(t, registry["s3"])
	assert.Len(t, registry["s2"], 1)
}

func TestCommitGroupSuccess(t *testing.T) {
	tracker := NewConflictTracker(nil)

	blocked, ok := tracker.CommitGroup([]string{"s1", "s2"}, window(2, 540, 660), "g1")
	require.True(t, ok)
	assert.Empty(t, blocked)

	registry := tracker.Registry()
	assert.Equal(t, []models.AvailabilityWindow{window(2, 540, 660)}, registry["s1"])
	assert.Equal(t, []models.AvailabilityWindow{window(2, 540, 660)}, registry["s2"])
}

func TestReleaseDropsCommitments(t *testing.T) {
	tracker := NewConflictTracker(nil)
	_, ok := tracker.CheckAndCommit("s1", window(1, 540, 600), "g1")
	require.True(t, ok)

	tracker.Release("s1")

	_, ok = tracker.CheckAndCommit("s1", window(1, 540, 600), "g2")
	assert.True(t, ok)
}

func TestRegistryRoundTrip(t *testing.T) {
	prior := models.NewSlotRegistry()
	prior.Add("s1", window(1, 540, 600))
	prior.Add("s1", window(2, 540, 600))

	tracker := NewConflictTracker(prior)
	exported := tracker.Registry()

	assert.Equal(t, prior, exported)

	// The tracker holds its own copy of the seed.
	prior.Add("s1", window(3, 540, 600))
	assert.Len(t, tracker.Registry()["s1"], 2)
}
