// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
// Package cell implements TON's Bag-of-Cells data model: immutable,
// content-addressed cells forming a DAG, their level-indexed
// representation hashes, and a fluent Builder for constructing them
// programmatically.
//
// Types stay small and dependency-light with named accessors,
// bit-accurate round-tripping, and errors surfaced through the shared
// tonerr taxonomy rather than panics.
package cell

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"math/bits"

	"github.com/nkrasko/tonboc/bitio"
	"github.com/nkrasko/tonboc/tonerr"
)

// Type identifies a cell's exotic kind.
type Type int

const (
	Ordinary Type = iota
	PrunedBranch
	Library
	MerkleProof
	MerkleUpdate
)

func (t Type) String() string {
	switch t {
	case Ordinary:
		return "Ordinary"
	case PrunedBranch:
		return "PrunedBranch"
	case Library:
		return "Library"
	case MerkleProof:
		return "MerkleProof"
	case MerkleUpdate:
		return "MerkleUpdate"
	default:
		return "Unknown"
	}
}

const (
	MaxDataBits = 1023
	MaxRefs     = 4
)

// Cell is an immutable node of TON's Bag-of-Cells DAG. It is built either
// by Builder.Build or by the boc package while parsing a serialized
// envelope; in both cases construction funnels through Finalize, which
// computes the cell's level-indexed hash/depth vectors.
type Cell struct {
	data      []byte
	bitLen    int
	refs      []*Cell
	typ       Type
	levelMask uint8
	hashes    []Hash
	depths    []uint16
}

// BitLen returns the exact number of significant data bits.
func (c *Cell) BitLen() int { return c.bitLen }

// Data returns the cell's raw data buffer (length ceil(bitLen/8); unused
// low bits of the final byte are zero).
func (c *Cell) Data() []byte { return c.data }

// RefsCount returns the number of child references (0-4).
func (c *Cell) RefsCount() int { return len(c.refs) }

// Reference returns the idx'th child, or tonerr.InvalidIndex if out of
// range.
func (c *Cell) Reference(idx int) (*Cell, error) {
	if idx < 0 || idx >= len(c.refs) {
		return nil, tonerr.NewInvalidIndex(idx, len(c.refs))
	}
	return c.refs[idx], nil
}

// Type reports the cell's exotic kind.
func (c *Cell) Type() Type { return c.typ }

// IsExotic reports whether the cell is anything other than Ordinary.
func (c *Cell) IsExotic() bool { return c.typ != Ordinary }

// LevelMask returns the cell's 3-bit level mask.
func (c *Cell) LevelMask() uint8 { return c.levelMask }

// Level returns popcount(level_mask).
func (c *Cell) Level() int { return bits.OnesCount8(c.levelMask) }

// HashCount returns the number of significant levels this cell carries
// a hash/depth for (Level()+1).
func (c *Cell) HashCount() int { return len(c.hashes) }

// hashIndexForLevel maps an absolute level li (0..3) to this cell's own
// hash/depth slice index, following real TON's LevelMask::apply(level)
// semantics: count how many of this cell's mask bits lie below li.
func (c *Cell) hashIndexForLevel(li int) int {
	if li <= 0 {
		return 0
	}
	if li > 3 {
		li = 3
	}
	idx := bits.OnesCount8(c.levelMask & uint8((1<<uint(li))-1))
	if idx >= len(c.hashes) {
		idx = len(c.hashes) - 1
	}
	return idx
}

// Hash returns the cell's hash at the given absolute level (0..3),
// mapped down to the appropriate significant-level slot.
func (c *Cell) Hash(level int) Hash {
	return c.hashes[c.hashIndexForLevel(level)]
}

// Depth returns the cell's depth at the given absolute level.
func (c *Cell) Depth(level int) uint16 {
	return c.depths[c.hashIndexForLevel(level)]
}

// CellHash returns hash[0], the cell's content address.
func (c *Cell) CellHash() Hash { return c.hashes[0] }

// Reader returns a fresh bit cursor over the cell's data, for typed
// reads layered on top in package tlb.
func (c *Cell) Reader() *bitio.Reader {
	return bitio.NewReader(c.data, c.bitLen)
}

func resolveType(isExotic bool, data []byte) Type {
	if !isExotic || len(data) == 0 {
		return Ordinary
	}
	switch data[0] {
	case 1:
		return PrunedBranch
	case 2:
		return Library
	case 3:
		return MerkleProof
	case 4:
		return MerkleUpdate
	default:
		return Ordinary
	}
}

func paddedData(data []byte, bitLen int) []byte {
	rest := bitLen % 8
	if rest == 0 {
		return data
	}
	out := make([]byte, len(data))
	copy(out, data)
	out[len(out)-1] |= 1 << uint(8-rest-1)
	return out
}

func bitsDescriptor(bitLen int) byte {
	dataLen := (bitLen + 7) / 8
	d2 := dataLen * 2
	if bitLen%8 != 0 {
		d2--
	}
	return byte(d2)
}

// Finalize builds an immutable, hashed Cell from raw parts: the data
// buffer, its exact bit length, already-finalized children, and whether
// the descriptor byte marked the cell exotic. This is the single funnel
// both the boc decoder and Builder.Build use for the cell finalizer and
// hashing step.
func Finalize(data []byte, bitLen int, refs []*Cell, isExotic bool) (*Cell, error) {
	if bitLen < 0 || bitLen > MaxDataBits {
		return nil, tonerr.NewCellBuilderError("bit_len out of range [0,1023]")
	}
	if len(refs) > MaxRefs {
		return nil, tonerr.NewCellBuilderError("cell cannot hold more than 4 references")
	}
	typ := resolveType(isExotic, data)
	c := &Cell{data: data, bitLen: bitLen, refs: refs, typ: typ}

	switch typ {
	case Ordinary:
		var mask uint8
		for _, r := range refs {
			mask |= r.levelMask
		}
		c.levelMask = mask
	case Library:
		if len(refs) != 0 {
			return nil, tonerr.NewCellParserError("library cell must not have references")
		}
		c.levelMask = 0
	case PrunedBranch:
		if len(refs) != 0 {
			return nil, tonerr.NewCellParserError("pruned branch cell must not have references")
		}
		if len(data) < 2 {
			return nil, tonerr.NewCellParserError("pruned branch cell data too short")
		}
		mask := data[1]
		if mask == 0 || mask&^uint8(7) != 0 {
			return nil, tonerr.NewCellParserError("pruned branch cell has invalid level mask")
		}
		c.levelMask = mask
	case MerkleProof:
		if len(refs) != 1 {
			return nil, tonerr.NewCellParserError("merkle proof cell must have exactly one reference")
		}
		if len(data) < 1+32+2 {
			return nil, tonerr.NewCellParserError("merkle proof cell data too short")
		}
		child := refs[0]
		childHash := child.Hash(0)
		if !bytes.Equal(data[1:33], childHash[:]) {
			return nil, tonerr.NewBocDeserializationError("Hash mismatch in merkle proof cell")
		}
		wantDepth := binary.BigEndian.Uint16(data[33:35])
		if wantDepth != child.Depth(0) {
			return nil, tonerr.NewBocDeserializationError("Depth mismatch in merkle proof cell")
		}
		c.levelMask = child.levelMask >> 1
	case MerkleUpdate:
		if len(refs) != 2 {
			return nil, tonerr.NewCellParserError("merkle update cell must have exactly two references")
		}
		if len(data) < 1+2*(32+2) {
			return nil, tonerr.NewCellParserError("merkle update cell data too short")
		}
		for i, child := range refs {
			off := 1 + i*32
			if !bytes.Equal(data[off:off+32], child.Hash(0).Bytes()) {
				return nil, tonerr.NewBocDeserializationError("Hash mismatch in merkle update cell")
			}
		}
		depthOff := 1 + 2*32
		for i, child := range refs {
			off := depthOff + i*2
			wantDepth := binary.BigEndian.Uint16(data[off : off+2])
			if wantDepth != child.Depth(0) {
				return nil, tonerr.NewBocDeserializationError("Depth mismatch in merkle update cell")
			}
		}
		c.levelMask = (refs[0].levelMask | refs[1].levelMask) >> 1
	}

	hashCount := c.Level() + 1
	c.hashes = make([]Hash, hashCount)
	c.depths = make([]uint16, hashCount)

	if typ == PrunedBranch {
		// A pruned branch carries the elided subtree's hashes and depths
		// in its own data; those fill the lower slots, so Hash(0) stays
		// the original subtree's content address. The top slot is the
		// branch's own representation hash, computed over the full data
		// with the unadjusted level mask in d1.
		hashesOff := 2
		depthsOff := 2 + (hashCount-1)*32
		if len(data) < depthsOff+(hashCount-1)*2 {
			return nil, tonerr.NewCellParserError("pruned branch cell missing stored hashes/depths")
		}
		for i := 0; i < hashCount-1; i++ {
			var h Hash
			copy(h[:], data[hashesOff+i*32:hashesOff+(i+1)*32])
			c.hashes[i] = h
			c.depths[i] = binary.BigEndian.Uint16(data[depthsOff+i*2 : depthsOff+(i+1)*2])
		}
		depth, hash, err := computeRepr(c, bits.Len8(c.levelMask), 0)
		if err != nil {
			return nil, err
		}
		c.depths[hashCount-1] = depth
		c.hashes[hashCount-1] = hash
	} else {
		sig := significantLevels(c.levelMask)
		for idx, li := range sig {
			depth, hash, err := computeRepr(c, li, idx)
			if err != nil {
				return nil, err
			}
			c.depths[idx] = depth
			c.hashes[idx] = hash
		}
	}
	return c, nil
}

// significantLevels returns the ordered set of absolute levels a cell
// with the given mask carries a hash for: level 0 always, plus level
// i>0 whenever bit i-1 of the mask is set.
func significantLevels(mask uint8) []int {
	levels := []int{0}
	for i := 1; i <= 3; i++ {
		if mask&(1<<uint(i-1)) != 0 {
			levels = append(levels, i)
		}
	}
	return levels
}

// computeRepr builds the representation for absolute level li (stored
// at hash/depth slot idx) and hashes it.
func computeRepr(c *Cell, li, idx int) (uint16, Hash, error) {
	adjustedMask := c.levelMask & uint8((1<<uint(li))-1)
	d1 := byte(len(c.refs))
	if c.typ != Ordinary {
		d1 |= 8
	}
	d1 |= adjustedMask << 5
	d2 := bitsDescriptor(c.bitLen)

	var buf bytes.Buffer
	buf.WriteByte(d1)
	buf.WriteByte(d2)
	if idx == 0 {
		buf.Write(paddedData(c.data, c.bitLen))
	} else {
		buf.Write(c.hashes[idx-1][:])
	}

	childLevel := li
	if c.typ == MerkleProof || c.typ == MerkleUpdate {
		childLevel++
	}

	maxDepth := 0
	depthBytes := make([]byte, 0, len(c.refs)*2)
	hashBytes := make([]byte, 0, len(c.refs)*32)
	for _, child := range c.refs {
		d := child.Depth(childLevel)
		if int(d) > maxDepth {
			maxDepth = int(d)
		}
		var db [2]byte
		binary.BigEndian.PutUint16(db[:], d)
		depthBytes = append(depthBytes, db[:]...)
		h := child.Hash(childLevel)
		hashBytes = append(hashBytes, h[:]...)
	}
	if len(c.refs) > 0 {
		maxDepth++
	}
	if maxDepth >= 1024 {
		return 0, Hash{}, tonerr.NewCellParserError("cell depth must be < 1024")
	}
	buf.Write(depthBytes)
	buf.Write(hashBytes)

	return uint16(maxDepth), Hash(sha256.Sum256(buf.Bytes())), nil
}
