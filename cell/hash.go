// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package cell

import (
	"encoding/base64"
	"encoding/hex"
)

// Hash is a 32-byte SHA-256 digest: a cell's representation hash at some
// level, or (at index 0) its content address.
type Hash [32]byte

// Hex returns the lower-case hex encoding of the hash.
func (h Hash) Hex() string {
	return hex.EncodeToString(h[:])
}

// Base64URL returns the URL-safe, unpadded base64 encoding of the hash,
// the canonical textual form for a cell identifier.
func (h Hash) Base64URL() string {
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

// Bytes returns a copy of the underlying 32 bytes.
func (h Hash) Bytes() []byte {
	out := make([]byte, 32)
	copy(out, h[:])
	return out
}
