package dice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRoller(serverSeed string) *Roller {
	return NewRollerFromSeed(serverSeed)
}

func TestRoller_SequenceIsDeterministic(t *testing.T) {
	r := fixedRoller("a1b2c3")
	require.NoError(t, r.SetClientSeed("p1", "player-seed"))

	first := []Roll{r.Roll("p1"), r.Roll("p1"), r.Roll("p1")}

	replay := fixedRoller("a1b2c3")
	require.NoError(t, replay.SetClientSeed("p1", "player-seed"))
	for i, want := range first {
		got := replay.Roll("p1")
		assert.Equal(t, want, got, "roll %d", i)
	}
}

func TestRoller_ValuesAreDiceFaces(t *testing.T) {
	r, err := NewRoller()
	require.NoError(t, err)
	for i := 0; i < 200; i++ {
		roll := r.Roll("p1")
		assert.GreaterOrEqual(t, roll.Value, 1)
		assert.LessOrEqual(t, roll.Value, 6)
		assert.Equal(t, uint64(i+1), roll.Nonce, "nonce increments by one per roll")
		assert.Len(t, roll.Proof, 16)
	}
}

func TestRoller_NonceIsSharedAcrossPlayers(t *testing.T) {
	r, err := NewRoller()
	require.NoError(t, err)

	assert.Equal(t, uint64(1), r.Roll("p1").Nonce)
	assert.Equal(t, uint64(2), r.Roll("p2").Nonce)
	assert.Equal(t, uint64(3), r.Roll("p1").Nonce)
}

func TestRoller_ClientSeedLocksAfterFirstRoll(t *testing.T) {
	r, err := NewRoller()
	require.NoError(t, err)

	require.NoError(t, r.SetClientSeed("p1", "lucky"))
	r.Roll("p1")
	assert.Error(t, r.SetClientSeed("p1", "luckier"))
	require.NoError(t, r.SetClientSeed("p2", "other"), "other players remain free to set theirs")
}

func TestVerify_ReplaysRevealedSequence(t *testing.T) {
	r, err := NewRoller()
	require.NoError(t, err)
	require.NoError(t, r.SetClientSeed("p1", "lucky"))
	commitment := r.Commitment()

	rolls := []Roll{r.Roll("p1"), r.Roll("p2"), r.Roll("p1"), r.Roll("p2")}
	bundle := r.VerificationData()
	assert.Equal(t, commitment, bundle.ServerSeedHash)
	assert.Equal(t, uint64(4), bundle.TotalRolls)

	require.NoError(t, Verify(bundle.ServerSeed, commitment, rolls))

	// A tampered value must fail replay.
	rolls[2].Value = rolls[2].Value%6 + 1
	assert.Error(t, Verify(bundle.ServerSeed, commitment, rolls))
}

func TestVerify_RejectsWrongSeed(t *testing.T) {
	r, err := NewRoller()
	require.NoError(t, err)
	commitment := r.Commitment()
	rolls := []Roll{r.Roll("p1")}

	assert.Error(t, Verify("not-the-seed", commitment, rolls))
}
