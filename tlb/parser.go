// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
// Package tlb layers TON's TL-B schema reads on top of package cell: a
// stateful bit cursor plus reference cursor (Parser), the HashmapE /
// HashmapAugE dictionary walker, and typed readers for the block
// header, block extra, masterchain shard configuration, validator
// sets, and transaction records that make up a signed proof object.
//
// Data bits are read via named Load* methods; references are walked by
// a separate monotonic index, layered on top of bitio.Reader and the
// tonerr error taxonomy.
package tlb

import (
	"math/big"
	"math/bits"

	"github.com/pkg/errors"

	"github.com/nkrasko/tonboc/bitio"
	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tonerr"
)

// Parser is a single-traversal cursor over one cell: a bit reader plus
// a monotonic reference index. It does not retain the cell beyond the
// call, matching the borrow-for-one-traversal discipline laid out for
// this core.
type Parser struct {
	c      *cell.Cell
	r      *bitio.Reader
	refIdx int
}

// NewParser returns a Parser positioned at the start of c's data and
// reference list.
func NewParser(c *cell.Cell) *Parser {
	return &Parser{c: c, r: c.Reader()}
}

// Cell returns the cell this Parser is reading.
func (p *Parser) Cell() *cell.Cell { return p.c }

// RemainingBits reports how many data bits are left unread.
func (p *Parser) RemainingBits() int { return p.r.RemainingBits() }

// RefsRemaining reports how many child references have not yet been
// consumed by NextReference.
func (p *Parser) RefsRemaining() int { return p.c.RefsCount() - p.refIdx }

// EnsureEmpty fails with tonerr.NonEmptyReader if any data bits remain.
func (p *Parser) EnsureEmpty() error {
	if rem := p.r.RemainingBits(); rem != 0 {
		return tonerr.NewNonEmptyReader(rem)
	}
	return nil
}

// NextReference returns the next unread child reference and advances
// the reference cursor.
func (p *Parser) NextReference() (*cell.Cell, error) {
	c, err := p.c.Reference(p.refIdx)
	if err != nil {
		return nil, err
	}
	p.refIdx++
	return c, nil
}

// LoadBit reads a single bit.
func (p *Parser) LoadBit() (bool, error) {
	b, err := p.r.LoadBit()
	if err != nil {
		return false, tonerr.NewCellParserError(err.Error())
	}
	return b, nil
}

// LoadUint reads an unsigned integer of width bits (0..64).
func (p *Parser) LoadUint(bitsWidth int) (uint64, error) {
	v, err := p.r.LoadUint64(bitsWidth)
	if err != nil {
		return 0, tonerr.NewCellParserError(err.Error())
	}
	return v, nil
}

// LoadInt reads a two's-complement signed integer of width bits
// (1..64).
func (p *Parser) LoadInt(bitsWidth int) (int64, error) {
	v, err := p.r.LoadInt64(bitsWidth)
	if err != nil {
		return 0, tonerr.NewCellParserError(err.Error())
	}
	return v, nil
}

// LoadBigUint reads an arbitrary-width (0..1023) unsigned big integer.
func (p *Parser) LoadBigUint(bitsWidth int) (*big.Int, error) {
	v, err := p.r.LoadUint(bitsWidth)
	if err != nil {
		return nil, tonerr.NewCellParserError(err.Error())
	}
	return v, nil
}

// LoadBigInt reads an arbitrary-width (1..1023) signed big integer.
func (p *Parser) LoadBigInt(bitsWidth int) (*big.Int, error) {
	v, err := p.r.LoadInt(bitsWidth)
	if err != nil {
		return nil, tonerr.NewCellParserError(err.Error())
	}
	return v, nil
}

// LoadBits reads numBits raw bits into a byte-aligned, left-justified
// buffer.
func (p *Parser) LoadBits(numBits int) ([]byte, error) {
	b, err := p.r.LoadBits(numBits)
	if err != nil {
		return nil, tonerr.NewCellParserError(err.Error())
	}
	return b, nil
}

// LoadHash256 reads a fixed 32-byte field.
func (p *Parser) LoadHash256() ([32]byte, error) {
	var out [32]byte
	b, err := p.LoadBits(256)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// SkipBits advances the cursor by n bits without returning them.
func (p *Parser) SkipBits(n int) error {
	if err := p.r.SkipBits(n); err != nil {
		return tonerr.NewCellParserError(err.Error())
	}
	return nil
}

// ExpectMagic reads a magic field of the given bit width and fails
// with a CellParserError naming what, unless it equals want.
func (p *Parser) ExpectMagic(bitsWidth int, want uint64, what string) error {
	got, err := p.LoadUint(bitsWidth)
	if err != nil {
		return errors.Wrapf(err, "reading %s magic", what)
	}
	if got != want {
		return tonerr.NewCellParserErrorf("not a %s: magic %#x", what, got)
	}
	return nil
}

// LoadUnaryLength counts leading 1 bits and consumes the terminating 0.
func (p *Parser) LoadUnaryLength() (int, error) {
	n := 0
	for {
		b, err := p.LoadBit()
		if err != nil {
			return 0, err
		}
		if !b {
			return n, nil
		}
		n++
	}
}

// uintLeWidth returns the bit width load_uint_le(m) reads: the number
// of bits needed to represent m itself (bits.Len), i.e.
// ceil(log2(m+1)).
func uintLeWidth(m int) int {
	if m <= 0 {
		return 0
	}
	return bits.Len(uint(m))
}

// LoadUintLe reads ceil(log2(m+1)) bits and returns them as a big
// integer (spec: load_uint_le(m)).
func (p *Parser) LoadUintLe(m int) (*big.Int, error) {
	return p.LoadBigUint(uintLeWidth(m))
}

// LoadUintLess reads ceil(log2(m)) bits (spec: load_uint_less(m) =
// load_uint_le(m-1)).
func (p *Parser) LoadUintLess(m int) (*big.Int, error) {
	return p.LoadUintLe(m - 1)
}

// LoadCoins reads a 4-bit length prefix k followed by 8k bits as a
// BigUint (k=0 means zero).
func (p *Parser) LoadCoins() (*big.Int, error) {
	k, err := p.LoadUint(4)
	if err != nil {
		return nil, err
	}
	if k == 0 {
		return new(big.Int), nil
	}
	return p.LoadBigUint(int(k) * 8)
}

// LoadVarUInteger reads load_uint_less(bound) as a byte count k, then
// 8k bits as a BigUint, returning (k, value).
func (p *Parser) LoadVarUInteger(bound int) (int, *big.Int, error) {
	kBig, err := p.LoadUintLess(bound)
	if err != nil {
		return 0, nil, err
	}
	k := int(kBig.Int64())
	if k == 0 {
		return 0, new(big.Int), nil
	}
	v, err := p.LoadBigUint(k * 8)
	if err != nil {
		return 0, nil, err
	}
	return k, v, nil
}

// Label is the decoded result of load_label: the bit-string value and
// its length.
type Label struct {
	Value   *big.Int
	BitsLen int
}

// LoadLabel decodes a HashmapE key-chunk label. max is one more than the
// number of key bits still unresolved at this node, so the long/same
// forms store their bit-count in uint_le(max-1) bits:
//   - 0              -> short: unary-counted raw bits
//   - 10             -> long:  bit-count, then that many raw bits
//   - 11             -> same:  bit, then a bit-count => k copies of bit
func (p *Parser) LoadLabel(max int) (Label, error) {
	b0, err := p.LoadBit()
	if err != nil {
		return Label{}, err
	}
	if !b0 {
		n, err := p.LoadUnaryLength()
		if err != nil {
			return Label{}, err
		}
		if n == 0 {
			return Label{Value: new(big.Int), BitsLen: 0}, nil
		}
		v, err := p.LoadBigUint(n)
		if err != nil {
			return Label{}, err
		}
		return Label{Value: v, BitsLen: n}, nil
	}

	b1, err := p.LoadBit()
	if err != nil {
		return Label{}, err
	}
	if !b1 {
		nBig, err := p.LoadUintLess(max)
		if err != nil {
			return Label{}, err
		}
		n := int(nBig.Int64())
		v, err := p.LoadBigUint(n)
		if err != nil {
			return Label{}, err
		}
		return Label{Value: v, BitsLen: n}, nil
	}

	bit, err := p.LoadBit()
	if err != nil {
		return Label{}, err
	}
	nBig, err := p.LoadUintLess(max)
	if err != nil {
		return Label{}, err
	}
	n := int(nBig.Int64())
	v := new(big.Int)
	if bit {
		v.Sub(new(big.Int).Lsh(big.NewInt(1), uint(n)), big.NewInt(1))
	}
	return Label{Value: v, BitsLen: n}, nil
}
