// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package tlb

import (
	"testing"

	"github.com/nkrasko/tonboc/cell"
)

func TestLoadAddressNull(t *testing.T) {
	c, err := cell.NewBuilder().StoreUint(2, 0b00).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	addr, err := NewParser(c).LoadAddress()
	if err != nil {
		t.Fatalf("LoadAddress: %v", err)
	}
	if addr.Type != AddrNone {
		t.Fatalf("Type = %v, want AddrNone", addr.Type)
	}
}

func TestLoadAddressStd(t *testing.T) {
	var account [32]byte
	for i := range account {
		account[i] = byte(i + 1)
	}
	c, err := cell.NewBuilder().StoreRawAddress(-1, account).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	addr, err := NewParser(c).LoadAddress()
	if err != nil {
		t.Fatalf("LoadAddress: %v", err)
	}
	if addr.Type != AddrStd {
		t.Fatalf("Type = %v, want AddrStd", addr.Type)
	}
	if addr.Workchain != -1 {
		t.Fatalf("Workchain = %d, want -1", addr.Workchain)
	}
	if addr.Account != account {
		t.Fatalf("Account = %x, want %x", addr.Account, account)
	}
}

func TestStoreAddressRoundTrip(t *testing.T) {
	var account [32]byte
	account[31] = 0x7E
	for _, want := range []MsgAddress{
		{Type: AddrNone},
		{Type: AddrStd, Workchain: 0, Account: account},
	} {
		c, err := StoreAddress(cell.NewBuilder(), want).Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		got, err := NewParser(c).LoadAddress()
		if err != nil {
			t.Fatalf("LoadAddress: %v", err)
		}
		if got != want {
			t.Fatalf("round-trip = %+v, want %+v", got, want)
		}
	}
}

func TestLoadAddressInvalidTag(t *testing.T) {
	c, err := cell.NewBuilder().StoreUint(2, 0b01).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, err := NewParser(c).LoadAddress(); err == nil {
		t.Fatal("expected InvalidAddressType error")
	}
}
