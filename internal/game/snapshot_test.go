package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	engine := newTestEngine(t, Options{}, standardFront...)

	snap, err := engine.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 0, snap.Turn)
	assert.Equal(t, 8, snap.Clues)
	assert.Equal(t, 40, snap.DeckSize)
	assert.Equal(t, 25, snap.MaxScore)
	assert.Equal(t, "LowRisk", snap.PaceRisk)
	assert.Equal(t, "RUNNING", snap.Status)
	assert.Equal(t, "inProgress", snap.EndCondition)
	assert.Equal(t, -1, snap.TurnsLeft)
	assert.Len(t, snap.StackTops, 5)
	assert.NotEmpty(t, snap.Checksum)
}

func TestDiffAfterClue(t *testing.T) {
	engine := newTestEngine(t, Options{}, standardFront...)
	before, err := engine.Snapshot()
	require.NoError(t, err)

	_, err = engine.Apply(0, ClueMove{Target: 1, Clue: Clue{Type: ClueTypeRank, Value: 1}})
	require.NoError(t, err)
	after, err := engine.Snapshot()
	require.NoError(t, err)

	delta, err := Diff(before, after)
	require.NoError(t, err)
	assert.Equal(t, 0, delta.FromTurn)
	assert.Equal(t, 1, delta.ToTurn)

	changed := make(map[string]any)
	for _, change := range delta.Changes {
		changed[change.Path[0]] = change.To
	}
	assert.Equal(t, 7, changed["clues"])
	assert.Equal(t, 1, changed["turn"])
	assert.Equal(t, 1, changed["currentPlayerIndex"])
	assert.Contains(t, changed, "checksum")
	assert.NotContains(t, changed, "score")
	assert.NotContains(t, changed, "stackTops")
}

func TestDiffIdentical(t *testing.T) {
	engine := newTestEngine(t, Options{}, standardFront...)
	snap, err := engine.Snapshot()
	require.NoError(t, err)

	delta, err := Diff(snap, snap)
	require.NoError(t, err)
	assert.Empty(t, delta.Changes)
}
