package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// SerializationChecksum is a deterministic fingerprint of a game state.
// Clients and replays compare it to detect divergent states.
type SerializationChecksum struct {
	Hash      string // SHA-256 hash of deterministic serialization
	Timestamp string // ISO timestamp when checksum was computed
	Version   int    // Serialization version
}

// ComputeChecksum hashes the parts of the state that define the game
// position, including the identity of every drawn card. It stays on the
// server. The log and move history are derived data and are left out.
func (g *GameState) ComputeChecksum() (*SerializationChecksum, error) {
	return g.checksum(false)
}

// PublicChecksum hashes the position without the identity of cards that are
// still in a hand. It is what clients receive.
func (g *GameState) PublicChecksum() (*SerializationChecksum, error) {
	return g.checksum(true)
}

func (g *GameState) checksum(public bool) (*SerializationChecksum, error) {
	hash := sha256.New()
	if _, err := hash.Write([]byte(g.buildDeterministicRepresentation(public))); err != nil {
		return nil, fmt.Errorf("failed to compute hash: %w", err)
	}

	return &SerializationChecksum{
		Hash:      hex.EncodeToString(hash.Sum(nil)),
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Version:   1,
	}, nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ",")
}

func joinBools(values []bool) string {
	var b strings.Builder
	for _, v := range values {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

func (g *GameState) buildDeterministicRepresentation(public bool) string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "GAME:%s|%s|%d|%d|%d|%d|%d|%d\n",
		g.Options.VariantName,
		g.Status,
		g.EndCondition,
		g.Turns.Turn,
		g.Turns.Current,
		g.Turns.EndTurn,
		g.Clues,
		g.DeckIndex,
	)
	fmt.Fprintf(&buf, "SCORE:%d|%d\n", g.Score, g.MaxScore)

	for i, name := range g.Players {
		fmt.Fprintf(&buf, "PLAYER:%d|%s|%s\n", i, name, joinInts(g.Hands[i]))
	}
	for i, stack := range g.Stacks {
		fmt.Fprintf(&buf, "STACK:%d|%s\n", i, joinInts(stack))
	}
	buf.WriteString("DISCARD:")
	buf.WriteString(joinInts(g.Discard))
	buf.WriteString("\n")

	for _, strike := range g.Strikes {
		fmt.Fprintf(&buf, "STRIKE:%d|%d\n", strike.Order, strike.Turn)
	}

	// Cards still in the deck have no knowledge to record.
	for _, card := range g.Deck[:g.DeckIndex] {
		suit, rank := card.SuitIndex, card.Rank
		if public && card.Location == LocationHand {
			suit, rank = Hidden, Hidden
		}
		fmt.Fprintf(&buf, "CARD:%d|%d|%d|%d|%s|%s|%t\n",
			card.Order,
			suit,
			rank,
			card.Location,
			joinBools(card.PossibleSuits),
			joinBools(card.PossibleRanks),
			card.Clued,
		)
	}

	return buf.String()
}

// VerifyChecksum reports whether the state matches a previously computed checksum.
func (g *GameState) VerifyChecksum(expected *SerializationChecksum) (bool, error) {
	computed, err := g.ComputeChecksum()
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return computed.Hash == expected.Hash, nil
}
