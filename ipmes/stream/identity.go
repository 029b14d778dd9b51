package stream

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"
)

// MatchID is a deterministic, content-addressed identifier for a full
// PatternMatch. Unlike a randomly generated identifier, two runs over the
// same input that produce "the same" match (same pattern, same event ids)
// derive the same MatchID, which is what an external deduplication
// collaborator needs to key on across runs.
type MatchID struct {
	hash [20]byte
	hex  string
}

// NewMatchID derives a MatchID from a pattern id and the sorted set of input
// event ids bound to the match. eventIDs is not mutated.
func NewMatchID(patternID int, eventIDs []uint64) MatchID {
	sorted := append([]uint64(nil), eventIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	h := sha1.New()
	h.Write([]byte(strconv.Itoa(patternID)))
	for _, id := range sorted {
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatUint(id, 10)))
	}

	var sum [20]byte
	copy(sum[:], h.Sum(nil))
	return MatchID{hash: sum, hex: hex.EncodeToString(sum[:])}
}

// String returns the hex digest of the match id.
func (m MatchID) String() string {
	return m.hex
}

// Equal reports whether two match ids were derived from the same inputs.
func (m MatchID) Equal(other MatchID) bool {
	return m.hash == other.hash
}
