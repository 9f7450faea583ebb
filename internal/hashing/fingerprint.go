// Package hashing implements fingerprinting and string interning (spec §4.A).
// Identifier comparisons dominate the resolver and cache-key hot paths, so
// interning turns them into word-width pointer compares, and fingerprinting
// gives every cache layer a fixed-size, collision-resistant key regardless
// of input size.
package hashing

import (
	"crypto/md5" //nolint:gosec // used only as a non-adversarial fixed-width mixer, see package doc
	"encoding/hex"
	"hash/fnv"
)

// smallInputThreshold is the size at or below which the cheap FNV-1a path is used.
// Above it we fall back to MD5, which is already a fixed 16-byte digest and
// mixes large inputs more thoroughly than padding a 64-bit FNV hash would.
const smallInputThreshold = 32

// Fingerprint derives a 16-byte identifier from data. Callers never observe
// which underlying algorithm produced it: for inputs of at most
// smallInputThreshold bytes a 64-bit FNV-1a hash is computed and left-padded to 16
// bytes; for larger inputs MD5 is used directly. Neither choice claims
// cryptographic security — this is a cache/identity key, not a signature.
func Fingerprint(data []byte) [16]byte {
	if len(data) <= smallInputThreshold {
		return fnv16(data)
	}
	return md5.Sum(data) //nolint:gosec
}

func fnv16(data []byte) [16]byte {
	h := fnv.New64a()
	_, _ = h.Write(data) // hash.Hash.Write never errors
	sum := h.Sum64()
	var out [16]byte
	for i := 0; i < 8; i++ {
		out[15-i] = byte(sum >> (8 * i))
	}
	return out
}

// Hex renders a fingerprint as a lowercase hex string, the form used for
// on-disk names (store_root/packages/<hex>, environments/<hex>/...).
func Hex(fp [16]byte) string {
	return hex.EncodeToString(fp[:])
}

// FingerprintString is a convenience wrapper for the common case of
// fingerprinting a UTF-8 string (package identity keys, manifest paths).
func FingerprintString(s string) [16]byte {
	return Fingerprint([]byte(s))
}

// FingerprintHex fingerprints data and renders it as hex in one call.
func FingerprintHex(data []byte) string {
	return Hex(Fingerprint(data))
}
