// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package cell

import (
	"math/big"

	"github.com/nkrasko/tonboc/bitio"
	"github.com/nkrasko/tonboc/tonerr"
)

// Builder accumulates bits and child references for a single cell under
// construction, then funnels through Finalize on Build. Fields are
// stored bit-granular and read back out through package tlb.
type Builder struct {
	w    *bitio.Writer
	refs []*Cell
	err  error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{w: bitio.NewWriter()}
}

func (b *Builder) fail(err error) *Builder {
	if b.err == nil {
		b.err = err
	}
	return b
}

func (b *Builder) checkRoom(bits int) error {
	if b.err != nil {
		return b.err
	}
	if b.w.Len()+bits > MaxDataBits {
		return tonerr.NewCellBuilderError("builder cannot hold more than 1023 data bits")
	}
	return nil
}

// StoreBit appends a single bit.
func (b *Builder) StoreBit(v bool) *Builder {
	if err := b.checkRoom(1); err != nil {
		return b.fail(err)
	}
	if err := b.w.WriteBit(v); err != nil {
		return b.fail(err)
	}
	return b
}

// StoreUint appends the low `bits` bits (0..64) of v.
func (b *Builder) StoreUint(bits int, v uint64) *Builder {
	if err := b.checkRoom(bits); err != nil {
		return b.fail(err)
	}
	if err := b.w.WriteUint64(bits, v); err != nil {
		return b.fail(err)
	}
	return b
}

// StoreInt appends a two's-complement signed integer of the given width.
func (b *Builder) StoreInt(bits int, v int64) *Builder {
	if err := b.checkRoom(bits); err != nil {
		return b.fail(err)
	}
	if err := b.w.WriteInt64(bits, v); err != nil {
		return b.fail(err)
	}
	return b
}

// StoreBigUint appends an arbitrary-width unsigned big integer.
func (b *Builder) StoreBigUint(bits int, v *big.Int) *Builder {
	if err := b.checkRoom(bits); err != nil {
		return b.fail(err)
	}
	if err := b.w.WriteUint(bits, v); err != nil {
		return b.fail(err)
	}
	return b
}

// StoreBigInt appends an arbitrary-width signed big integer,
// two's-complement.
func (b *Builder) StoreBigInt(bits int, v *big.Int) *Builder {
	if b.err != nil {
		return b
	}
	if v.Sign() >= 0 {
		return b.StoreBigUint(bits, v)
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bits))
	return b.StoreBigUint(bits, mod.Add(mod, v))
}

// StoreCoins appends a VarUInteger 16 encoding of an amount in nanotons:
// a 4-bit length prefix (bytes needed), followed by that many bytes of
// big-endian value.
func (b *Builder) StoreCoins(v *big.Int) *Builder {
	if b.err != nil {
		return b
	}
	if v.Sign() < 0 {
		return b.fail(tonerr.NewCellBuilderError("coins amount must not be negative"))
	}
	numBytes := (v.BitLen() + 7) / 8
	if numBytes > 15 {
		return b.fail(tonerr.NewCellBuilderError("coins amount exceeds VarUInteger16 capacity"))
	}
	b.StoreUint(4, uint64(numBytes))
	return b.StoreBigUint(numBytes*8, v)
}

// StoreRawAddress appends an addr_std: tag 0b10, anycast
// bit 0, 8-bit signed workchain, 256-bit account id.
func (b *Builder) StoreRawAddress(workchain int8, account [32]byte) *Builder {
	b.StoreUint(2, 0b10)
	b.StoreBit(false)
	b.StoreInt(8, int64(workchain))
	acc := new(big.Int).SetBytes(account[:])
	return b.StoreBigUint(256, acc)
}

// StoreReference appends a reference to an already-finalized cell (up
// to 4 per cell).
func (b *Builder) StoreReference(child *Cell) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.refs) >= MaxRefs {
		return b.fail(tonerr.NewCellBuilderError("cell cannot hold more than 4 references"))
	}
	b.refs = append(b.refs, child)
	return b
}

// StoreChild builds a child cell in place: fn receives a fresh Builder,
// fills it, and whatever it returns is finalized and appended as a
// reference via StoreReference. Any error from the child build (or a
// nil Builder from fn) fails this Builder too.
func (b *Builder) StoreChild(fn func(*Builder) *Builder) *Builder {
	if b.err != nil {
		return b
	}
	child := fn(NewBuilder())
	if child == nil {
		return b.fail(tonerr.NewCellBuilderError("StoreChild: builder function returned nil"))
	}
	c, err := child.Build()
	if err != nil {
		return b.fail(err)
	}
	return b.StoreReference(c)
}

// Build finalizes the accumulated bits and references into an Ordinary
// cell.
func (b *Builder) Build() (*Cell, error) {
	if b.err != nil {
		return nil, b.err
	}
	bitLen := b.w.BitLen()
	if err := b.w.PadZeroToByte(); err != nil {
		return nil, err
	}
	data, err := b.w.Bytes()
	if err != nil {
		return nil, err
	}
	return Finalize(data, bitLen, b.refs, false)
}
