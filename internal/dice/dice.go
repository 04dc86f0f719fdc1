// Package dice implements the provably fair dice channel used by game
// sessions. The server commits to a secret seed before play, every roll is a
// deterministic function of (server_seed, client_seed, nonce), and revealing
// the seed after the match lets any player replay and verify the sequence.
package dice

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"

	"github.com/kompite/arena/internal/domain"
)

// Roll is one verifiable dice outcome.
type Roll struct {
	Value  int    `json:"value"`
	Nonce  uint64 `json:"nonce"`
	Proof  string `json:"hash_proof"`
	Client string `json:"client_seed"`
}

// Roller produces the roll sequence for one match session. Each player may
// contribute a client seed; the nonce is shared across all players and
// increases by one per roll.
type Roller struct {
	mu          sync.Mutex
	serverSeed  string
	clientSeeds map[string]string
	rolled      map[string]bool
	nonce       uint64
	revealed    bool
}

// NewRoller generates a fresh server seed from the system CSPRNG.
func NewRoller() (*Roller, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, domain.ErrInternal("generating server seed", err)
	}
	return &Roller{
		serverSeed:  hex.EncodeToString(b),
		clientSeeds: make(map[string]string),
		rolled:      make(map[string]bool),
	}, nil
}

// NewRollerFromSeed builds a roller over a known server seed. Used to replay
// a finished session from its verification bundle.
func NewRollerFromSeed(serverSeed string) *Roller {
	return &Roller{
		serverSeed:  serverSeed,
		clientSeeds: make(map[string]string),
		rolled:      make(map[string]bool),
	}
}

// Commitment returns the published hash of the hidden server seed.
func (r *Roller) Commitment() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return hashSeed(r.serverSeed)
}

// SetClientSeed registers a player's seed contribution. Allowed only before
// that player's first roll, so nobody can steer an in-flight sequence.
func (r *Roller) SetClientSeed(playerID, seed string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rolled[playerID] {
		return domain.ErrConflict("client seed is locked once the player has rolled")
	}
	if seed == "" {
		return domain.ErrValidation("client seed must not be empty")
	}
	r.clientSeeds[playerID] = seed
	return nil
}

// Roll produces the next value in the session sequence for a player.
func (r *Roller) Roll(playerID string) Roll {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nonce++
	r.rolled[playerID] = true
	client := r.clientSeeds[playerID]
	if client == "" {
		client = "default"
	}
	value, proof := derive(r.serverSeed, client, r.nonce)
	return Roll{Value: value, Nonce: r.nonce, Proof: proof, Client: client}
}

// Reveal discloses the server seed. Call only after the match is decided.
func (r *Roller) Reveal() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revealed = true
	return r.serverSeed
}

// Revealed reports whether the seed has been disclosed.
func (r *Roller) Revealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revealed
}

// VerificationBundle is the post-game disclosure players use to audit the
// session.
type VerificationBundle struct {
	ServerSeed     string            `json:"server_seed"`
	ServerSeedHash string            `json:"server_seed_hash"`
	ClientSeeds    map[string]string `json:"client_seeds"`
	TotalRolls     uint64            `json:"total_rolls"`
}

// VerificationData reveals the seed and returns the full audit bundle.
func (r *Roller) VerificationData() VerificationBundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revealed = true
	seeds := make(map[string]string, len(r.clientSeeds))
	for k, v := range r.clientSeeds {
		seeds[k] = v
	}
	return VerificationBundle{
		ServerSeed:     r.serverSeed,
		ServerSeedHash: hashSeed(r.serverSeed),
		ClientSeeds:    seeds,
		TotalRolls:     r.nonce,
	}
}

// derive maps (server, client, nonce) onto a die face and a short proof.
// digest = SHA256("server:client:nonce"); the first 8 hex digits select the
// face, the first 16 are kept as the audit proof.
func derive(serverSeed, clientSeed string, nonce uint64) (int, string) {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s:%s:%d", serverSeed, clientSeed, nonce)))
	digest := hex.EncodeToString(sum[:])
	n, _ := strconv.ParseUint(digest[:8], 16, 64)
	return int(n%6) + 1, digest[:16]
}

func hashSeed(seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:])
}

// Verify replays a published sequence against a revealed seed. Each roll
// carries the client seed it was derived from.
func Verify(serverSeed, serverSeedHash string, rolls []Roll) error {
	if hashSeed(serverSeed) != serverSeedHash {
		return domain.ErrValidation("revealed seed does not match the commitment")
	}
	for i, roll := range rolls {
		client := roll.Client
		if client == "" {
			client = "default"
		}
		value, proof := derive(serverSeed, client, roll.Nonce)
		if value != roll.Value || proof != roll.Proof {
			return domain.ErrValidation(fmt.Sprintf("roll %d does not replay: got %d/%s", i, value, proof))
		}
	}
	return nil
}
