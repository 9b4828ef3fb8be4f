package snapshot

import (
	"encoding/hex"

	"github.com/milk9111/sfmmaps/levels"
	"github.com/zeebo/blake3"
)

// Hash is a 32-byte BLAKE3 digest.
type Hash [32]byte

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// levelDomainKey is "sfmmaps.level" zero-padded to the 32 bytes BLAKE3
// keyed mode requires. Changing it invalidates every stored fingerprint.
var levelDomainKey = [32]byte{
	's', 'f', 'm', 'm', 'a', 'p', 's', '.', 'l', 'e', 'v', 'e', 'l',
}

// Fingerprint hashes the canonical encoding of l. Two structurally equal
// levels have the same fingerprint regardless of how their XML was laid
// out or what object counts it claimed.
func Fingerprint(l *levels.Level) (Hash, error) {
	raw, err := canonical(l)
	if err != nil {
		return Hash{}, err
	}
	hasher, err := blake3.NewKeyed(levelDomainKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(raw)
	var h Hash
	copy(h[:], hasher.Sum(nil))
	return h, nil
}
