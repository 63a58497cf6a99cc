// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package cell

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func TestFinalizeEmptyCellHash(t *testing.T) {
	c, err := Finalize(nil, 0, nil, false)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	want := "96a296d224f285c67bee93c30f8a309157f0daa35dc5b87e410b78630a09cfc7"
	if got := c.Hash(0).Hex(); got != want {
		t.Fatalf("hash[0] = %s, want %s", got, want)
	}
	if c.HashCount() != 1 {
		t.Fatalf("HashCount() = %d, want 1", c.HashCount())
	}
	if c.Depth(0) != 0 {
		t.Fatalf("Depth(0) = %d, want 0", c.Depth(0))
	}
}

func TestFinalizeSingleByteCell(t *testing.T) {
	c, err := NewBuilder().StoreUint(8, 0x0A).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if c.BitLen() != 8 {
		t.Fatalf("BitLen() = %d, want 8", c.BitLen())
	}
	if !hexEqual(c.Data(), "0a") {
		t.Fatalf("Data() = %x, want 0a", c.Data())
	}

	repr := append([]byte{0x00, 0x02}, c.Data()...)
	wantHash := sha256Hex(repr)
	if got := c.Hash(0).Hex(); got != wantHash {
		t.Fatalf("hash[0] = %s, want %s (repr=%x)", got, wantHash, repr)
	}
}

func TestFinalizeRejectsOversizedData(t *testing.T) {
	if _, err := Finalize(make([]byte, 200), 1024, nil, false); err == nil {
		t.Fatal("expected error for bit_len > 1023")
	}
}

func TestFinalizeRejectsTooManyRefs(t *testing.T) {
	leaf, err := Finalize(nil, 0, nil, false)
	if err != nil {
		t.Fatalf("Finalize leaf: %v", err)
	}
	refs := []*Cell{leaf, leaf, leaf, leaf, leaf}
	if _, err := Finalize(nil, 0, refs, false); err == nil {
		t.Fatal("expected error for more than 4 references")
	}
}

func TestMerkleProofHashDepthMismatch(t *testing.T) {
	child, err := NewBuilder().StoreUint(8, 0x0A).Build()
	if err != nil {
		t.Fatalf("Build child: %v", err)
	}
	data := make([]byte, 35)
	data[0] = 3 // MerkleProof tag
	// deliberately wrong hash bytes
	if _, err := Finalize(data, 35*8, []*Cell{child}, true); err == nil {
		t.Fatal("expected hash mismatch error")
	}
}

func TestPrunedBranchHashSlots(t *testing.T) {
	// A level-1 pruned branch: tag, mask, one stored hash, one stored
	// depth. Hash(0)/Depth(0) must come from the stored data (the
	// elided subtree's identity); the top slot is the branch's own
	// representation hash over the full data with the unadjusted mask.
	data := make([]byte, 36)
	data[0] = 1 // pruned branch tag
	data[1] = 1 // level mask
	for i := 0; i < 32; i++ {
		data[2+i] = 0xAB
	}
	data[34], data[35] = 0x01, 0x02 // stored depth 258

	c, err := Finalize(data, 36*8, nil, true)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if c.Type() != PrunedBranch {
		t.Fatalf("Type() = %v, want PrunedBranch", c.Type())
	}
	if c.HashCount() != 2 {
		t.Fatalf("HashCount() = %d, want 2", c.HashCount())
	}
	var storedHash Hash
	copy(storedHash[:], data[2:34])
	if c.Hash(0) != storedHash {
		t.Fatalf("Hash(0) = %s, want the stored subtree hash %s", c.Hash(0), storedHash)
	}
	if c.Depth(0) != 258 {
		t.Fatalf("Depth(0) = %d, want 258", c.Depth(0))
	}

	repr := append([]byte{0x28, 0x48}, data...) // d1 = 8 | 1<<5, d2 = 2*36
	if got, want := c.Hash(1).Hex(), sha256Hex(repr); got != want {
		t.Fatalf("Hash(1) = %s, want own repr hash %s", got, want)
	}
	if c.Depth(1) != 0 {
		t.Fatalf("Depth(1) = %d, want 0", c.Depth(1))
	}
	// Levels above the branch's own map onto the top slot.
	if c.Hash(3) != c.Hash(1) {
		t.Fatal("Hash(3) should resolve to the branch's own hash slot")
	}
}

func TestLevelAndSignificantLevels(t *testing.T) {
	c := &Cell{levelMask: 0b101}
	if got := c.Level(); got != 2 {
		t.Fatalf("Level() = %d, want 2", got)
	}
	levels := significantLevels(c.levelMask)
	want := []int{0, 1, 3}
	if len(levels) != len(want) {
		t.Fatalf("significantLevels() = %v, want %v", levels, want)
	}
	for i := range want {
		if levels[i] != want[i] {
			t.Fatalf("significantLevels() = %v, want %v", levels, want)
		}
	}
}

func hexEqual(b []byte, want string) bool {
	return hex.EncodeToString(b) == want
}
