package game

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// SeedBytes is the entropy drawn for every server seed (256 bits).
const SeedBytes = 32

type Commitment struct {
	ServerSeed string `json:"server_seed"`
	CommitHash string `json:"commit_hash"`
}

// Committer produces the seed and commitment for a new round.
type Committer func(roundID string) (Commitment, error)

var seedSource io.Reader = rand.Reader

func GenerateCommitment(roundID string) (Commitment, error) {
	buf := make([]byte, SeedBytes)
	if _, err := io.ReadFull(seedSource, buf); err != nil {
		return Commitment{}, fmt.Errorf("read server seed entropy: %w", err)
	}
	seed := hex.EncodeToString(buf)
	return Commitment{ServerSeed: seed, CommitHash: CommitHash(seed, roundID)}, nil
}

// FixedCommitter always commits to the given seed. Used for replays and tests.
func FixedCommitter(seed string) Committer {
	return func(roundID string) (Commitment, error) {
		return Commitment{ServerSeed: seed, CommitHash: CommitHash(seed, roundID)}, nil
	}
}

// CommitHash is hex(SHA256(serverSeed || roundID)).
func CommitHash(serverSeed, roundID string) string {
	sum := drawHash(serverSeed, roundID)
	return hex.EncodeToString(sum[:])
}

func VerifyCommitment(serverSeed, roundID, commitHash string) bool {
	want := CommitHash(serverSeed, roundID)
	got := strings.ToLower(strings.TrimSpace(commitHash))
	return subtle.ConstantTimeCompare([]byte(want), []byte(got)) == 1
}

func drawHash(serverSeed, roundID string) [32]byte {
	return sha256.Sum256([]byte(serverSeed + roundID))
}
