// Package hash fingerprints evaluation results so two runs can be compared
// for bit-identical output.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
	"slices"
)

// Metrics fingerprints a metric map over its sorted keys and the exact bit
// patterns of its values. Two maps hash equal only if every value is
// bit-identical, NaN payloads included.
func Metrics(m map[string]float64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	h := sha256.New()
	var buf [8]byte
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m[k]))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Short abbreviates a fingerprint for display.
func Short(fingerprint string, n int) string {
	if n <= 0 || n >= len(fingerprint) {
		return fingerprint
	}
	return fingerprint[:n]
}
