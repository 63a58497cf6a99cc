// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package tlb

import (
	"math/big"
	"testing"

	"github.com/nkrasko/tonboc/cell"
)

func TestLoadUintIntRoundTrip(t *testing.T) {
	c, err := cell.NewBuilder().StoreUint(32, 0xDEADBEEF).StoreInt(8, -5).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(c)
	u, err := p.LoadUint(32)
	if err != nil {
		t.Fatalf("LoadUint: %v", err)
	}
	if u != 0xDEADBEEF {
		t.Fatalf("LoadUint() = %#x, want 0xDEADBEEF", u)
	}
	i, err := p.LoadInt(8)
	if err != nil {
		t.Fatalf("LoadInt: %v", err)
	}
	if i != -5 {
		t.Fatalf("LoadInt() = %d, want -5", i)
	}
	if err := p.EnsureEmpty(); err != nil {
		t.Fatalf("EnsureEmpty: %v", err)
	}
}

func TestExpectMagicMismatch(t *testing.T) {
	c, err := cell.NewBuilder().StoreUint(32, 0x11111111).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(c)
	if err := p.ExpectMagic(32, 0x22222222, "Thing"); err == nil {
		t.Fatal("expected magic mismatch error")
	}
}

func TestLoadCoinsAndVarUInteger(t *testing.T) {
	amount := big.NewInt(123456789)
	c, err := cell.NewBuilder().StoreCoins(amount).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(c)
	got, err := p.LoadCoins()
	if err != nil {
		t.Fatalf("LoadCoins: %v", err)
	}
	if got.Cmp(amount) != 0 {
		t.Fatalf("LoadCoins() = %s, want %s", got, amount)
	}

	// Coins is VarUInteger 16: a 4-bit byte count (4 here), then the value.
	k, v, err := NewParser(c).LoadVarUInteger(16)
	if err != nil {
		t.Fatalf("LoadVarUInteger: %v", err)
	}
	if k != 4 || v.Cmp(amount) != 0 {
		t.Fatalf("LoadVarUInteger(16) = (%d, %s), want (4, %s)", k, v, amount)
	}
}

func TestLoadCoinsZero(t *testing.T) {
	c, err := cell.NewBuilder().StoreCoins(big.NewInt(0)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(c)
	got, err := p.LoadCoins()
	if err != nil {
		t.Fatalf("LoadCoins: %v", err)
	}
	if got.Sign() != 0 {
		t.Fatalf("LoadCoins() = %s, want 0", got)
	}
}

func TestNextReferenceOutOfRange(t *testing.T) {
	c, err := cell.NewBuilder().Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(c)
	if _, err := p.NextReference(); err == nil {
		t.Fatal("expected error reading a reference from a childless cell")
	}
}

func TestLoadLabelShortForm(t *testing.T) {
	// short label: 0, then unary(n=4), then 4 raw bits (0b1010)
	w, err := cell.NewBuilder().
		StoreBit(false).
		StoreBit(true).StoreBit(true).StoreBit(true).StoreBit(true).StoreBit(false).
		StoreUint(4, 0b1010).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(w)
	label, err := p.LoadLabel(9)
	if err != nil {
		t.Fatalf("LoadLabel: %v", err)
	}
	if label.BitsLen != 4 {
		t.Fatalf("BitsLen = %d, want 4", label.BitsLen)
	}
	if label.Value.Uint64() != 0b1010 {
		t.Fatalf("Value = %d, want %d", label.Value.Uint64(), 0b1010)
	}
}

func TestLoadLabelSameForm(t *testing.T) {
	// same label: 11, then a repeated bit (1), then uint_le(max) bit count
	max := 8
	w := cell.NewBuilder().
		StoreBit(true).StoreBit(true).
		StoreBit(true)
	width := 0
	for n := max; n > 0; n >>= 1 {
		width++
	}
	w.StoreUint(width, 5) // 5 copies of the repeated bit
	c, err := w.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	p := NewParser(c)
	label, err := p.LoadLabel(max + 1)
	if err != nil {
		t.Fatalf("LoadLabel: %v", err)
	}
	if label.BitsLen != 5 {
		t.Fatalf("BitsLen = %d, want 5", label.BitsLen)
	}
	want := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 5), big.NewInt(1))
	if label.Value.Cmp(want) != 0 {
		t.Fatalf("Value = %s, want %s (all-ones)", label.Value, want)
	}
}
