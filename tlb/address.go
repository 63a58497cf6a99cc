// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package tlb

import (
	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tonerr"
)

// AddressType discriminates MsgAddress's two schema-level variants;
// anycast addresses are not modeled since the core's cell reader never
// needs to resolve them.
type AddressType int

const (
	AddrNone AddressType = iota
	AddrStd
)

// MsgAddress is the MsgAddress(Int|None) TL-B union:
// either the null address or a workchain/account-id pair.
type MsgAddress struct {
	Type      AddressType
	Workchain int8
	Account   [32]byte
}

// LoadAddress decodes a 2-bit tag: 00 -> null address; 10 -> one
// reserved bit, 8-bit signed workchain, 256-bit account hash; any other
// tag fails with InvalidAddressType.
func (p *Parser) LoadAddress() (MsgAddress, error) {
	tag, err := p.LoadUint(2)
	if err != nil {
		return MsgAddress{}, err
	}
	switch tag {
	case 0b00:
		return MsgAddress{Type: AddrNone}, nil
	case 0b10:
		if _, err := p.LoadBit(); err != nil {
			return MsgAddress{}, err
		}
		wc, err := p.LoadInt(8)
		if err != nil {
			return MsgAddress{}, err
		}
		account, err := p.LoadHash256()
		if err != nil {
			return MsgAddress{}, err
		}
		return MsgAddress{Type: AddrStd, Workchain: int8(wc), Account: account}, nil
	default:
		return MsgAddress{}, tonerr.NewInvalidAddressType(byte(tag))
	}
}

// StoreAddress appends a MsgAddress to a builder: the null tag for
// AddrNone, or addr_std via Builder.StoreRawAddress.
func StoreAddress(b *cell.Builder, a MsgAddress) *cell.Builder {
	if a.Type == AddrNone {
		return b.StoreUint(2, 0b00)
	}
	return b.StoreRawAddress(a.Workchain, a.Account)
}
