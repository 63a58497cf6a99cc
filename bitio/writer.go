// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package bitio

import (
	"math/big"

	"github.com/pkg/errors"
)

// Writer accumulates bits big-endian, MSB-first, growing its backing
// buffer as needed. It is the mirror image of Reader.
type Writer struct {
	data []byte
	bits int // total bits written
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Len reports the number of bits written so far.
func (w *Writer) Len() int {
	return w.bits
}

func (w *Writer) ensureByte() {
	if w.bits/8 >= len(w.data) {
		w.data = append(w.data, 0)
	}
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(b bool) error {
	w.ensureByte()
	if b {
		w.data[w.bits/8] |= 1 << (7 - uint(w.bits%8))
	}
	w.bits++
	return nil
}

// WriteUint64 appends the low `bits` bits (0..64) of v, big-endian.
func (w *Writer) WriteUint64(bits int, v uint64) error {
	if bits < 0 || bits > 64 {
		return errors.Errorf("bitio: bit width %d out of range [0,64]", bits)
	}
	for i := bits - 1; i >= 0; i-- {
		if err := w.WriteBit((v>>uint(i))&1 == 1); err != nil {
			return err
		}
	}
	return nil
}

// WriteInt64 appends a two's-complement signed integer of the given bit
// width.
func (w *Writer) WriteInt64(bits int, v int64) error {
	if bits < 1 || bits > 64 {
		return errors.Errorf("bitio: bit width %d out of range [1,64]", bits)
	}
	mask := uint64(1)<<uint(bits) - 1
	return w.WriteUint64(bits, uint64(v)&mask)
}

// WriteUint appends an arbitrary-width (0..1023) unsigned big integer,
// most-significant bit first, zero-extending if it is narrower than
// bits.
func (w *Writer) WriteUint(bits int, v *big.Int) error {
	if bits < 0 {
		return errors.New("bitio: negative bit width")
	}
	if v.Sign() < 0 {
		return errors.New("bitio: WriteUint called with a negative value")
	}
	if v.BitLen() > bits {
		return errors.Errorf("bitio: value needs %d bits, only %d available", v.BitLen(), bits)
	}
	for i := bits - 1; i >= 0; i-- {
		if err := w.WriteBit(v.Bit(i) == 1); err != nil {
			return err
		}
	}
	return nil
}

// WriteBytes appends whole bytes.
func (w *Writer) WriteBytes(b []byte) error {
	for _, by := range b {
		if err := w.WriteUint64(8, uint64(by)); err != nil {
			return err
		}
	}
	return nil
}

// WriteBits appends numBits bits taken from a byte-aligned, left-aligned
// buffer (the mirror image of Reader.LoadBits' output shape).
func (w *Writer) WriteBits(numBits int, data []byte) error {
	if numBits < 0 || (numBits+7)/8 > len(data) {
		return errors.New("bitio: not enough source bytes for requested bit count")
	}
	full := numBits / 8
	for i := 0; i < full; i++ {
		if err := w.WriteUint64(8, uint64(data[i])); err != nil {
			return err
		}
	}
	if rem := numBits % 8; rem != 0 {
		v := data[full] >> uint(8-rem)
		if err := w.WriteUint64(rem, uint64(v)); err != nil {
			return err
		}
	}
	return nil
}

// PadZeroToByte zero-pads to the next byte boundary without setting a
// top-up marker bit, matching how a Cell's own data buffer is stored:
// its unused low bits must be zero.
func (w *Writer) PadZeroToByte() error {
	for w.bits%8 != 0 {
		if err := w.WriteBit(false); err != nil {
			return err
		}
	}
	return nil
}

// TopUp applies TON's "top-upped" padding: append a 1 bit, then zero-pad
// to the next byte boundary. A no-op if already byte-aligned.
func (w *Writer) TopUp() error {
	if w.bits%8 == 0 {
		return nil
	}
	if err := w.WriteBit(true); err != nil {
		return err
	}
	for w.bits%8 != 0 {
		if err := w.WriteBit(false); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the accumulated bytes, requiring the writer to already be
// byte-aligned (callers needing padding should call TopUp or
// PadZeroToByte first).
func (w *Writer) Bytes() ([]byte, error) {
	if w.bits%8 != 0 {
		return nil, errors.New("bitio: stream is not byte-aligned")
	}
	return w.data, nil
}

// BitLen reports the number of significant bits written (for callers
// that need bit_len rather than a rounded-up byte count).
func (w *Writer) BitLen() int {
	return w.bits
}

// RawBytes returns the backing buffer regardless of alignment (the final
// partial byte, if any, is zero-padded in its low bits). Used by callers
// (cell.Builder) that track bit_len separately from the byte buffer.
func (w *Writer) RawBytes() []byte {
	return w.data
}
