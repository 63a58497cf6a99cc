// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package tlb

import (
	"fmt"
	"math/big"

	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tonerr"
)

// ValueDecoder decodes one dictionary leaf value from a Parser
// positioned at the start of the value's bits (for the augmented
// variants, after the leaf's own extra has been consumed).
type ValueDecoder func(p *Parser) (interface{}, error)

// ExtraDecoder decodes a HashmapAug(E) aggregated extra value, present
// on every node (leaf or fork) and once at the dictionary's top level.
// The walker consumes every extra unconditionally; callers that don't
// need them may discard the result.
type ExtraDecoder func(p *Parser) (interface{}, error)

// Dict is the result of walking a dictionary: a flat key->value map
// keyed by the zero-padded hex encoding of the n-bit key, plus any
// pruned-branch prefixes the walk could not descend into (TON proofs
// elide subtrees this way).
type Dict struct {
	KeyBits int
	Entries map[string]interface{}
	Extras  map[string]interface{}
	// RootExtra is the top-level aggregated extra of a HashmapAugE,
	// present whether or not the map itself is empty; nil for the
	// plain variants.
	RootExtra interface{}
	Pruned    []string
}

func newDict(keyBits int, aug bool) *Dict {
	d := &Dict{KeyBits: keyBits, Entries: map[string]interface{}{}}
	if aug {
		d.Extras = map[string]interface{}{}
	}
	return d
}

func formatKey(keyBits int, v *big.Int) string {
	hexDigits := (keyBits + 3) / 4
	return fmt.Sprintf("%0*x", hexDigits, v)
}

// LoadHashmapE decodes a HashmapE: a leading "maybe" bit, 0 for empty,
// 1 for a reference to the root of a Patricia trie with keyBits-wide
// keys.
func (p *Parser) LoadHashmapE(keyBits int, decode ValueDecoder) (*Dict, error) {
	has, err := p.LoadBit()
	if err != nil {
		return nil, err
	}
	d := newDict(keyBits, false)
	if !has {
		return d, nil
	}
	root, err := p.NextReference()
	if err != nil {
		return nil, err
	}
	if err := walkHashmapCell(root, new(big.Int), keyBits, decode, d); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadHashmapRoot decodes a bare Hashmap whose root node fills the
// given cell (no leading maybe bit). Used where the enclosing schema
// stores the dictionary behind a plain reference, e.g. the masterchain
// configuration's parameter table.
func LoadHashmapRoot(root *cell.Cell, keyBits int, decode ValueDecoder) (*Dict, error) {
	d := newDict(keyBits, false)
	if err := walkHashmapCell(root, new(big.Int), keyBits, decode, d); err != nil {
		return nil, err
	}
	return d, nil
}

// walkHashmapCell descends into one trie cell, short-circuiting on a
// pruned branch: its key prefix is recorded and the elided subtree is
// left alone.
func walkHashmapCell(c *cell.Cell, prefix *big.Int, remaining int, decode ValueDecoder, d *Dict) error {
	if c.Type() == cell.PrunedBranch {
		d.Pruned = append(d.Pruned, formatKey(d.KeyBits, prefix))
		return nil
	}
	return walkHashmapNode(NewParser(c), prefix, remaining, decode, d)
}

// walkHashmapNode reads one trie node starting at the parser's current
// position: a label, then either the leaf value (when the label
// completes the key) or a two-way fork whose children sit in the next
// two references.
func walkHashmapNode(p *Parser, prefix *big.Int, remaining int, decode ValueDecoder, d *Dict) error {
	label, err := p.LoadLabel(remaining + 1)
	if err != nil {
		return err
	}
	key := new(big.Int).Lsh(prefix, uint(label.BitsLen))
	key.Or(key, label.Value)

	if label.BitsLen == remaining {
		v, err := decode(p)
		if err != nil {
			return err
		}
		d.Entries[formatKey(d.KeyBits, key)] = v
		return nil
	}

	childRemaining := remaining - label.BitsLen - 1
	for bit := 0; bit < 2; bit++ {
		child, err := p.NextReference()
		if err != nil {
			return tonerr.NewCellParserError("hashmap fork cell must have two references")
		}
		childKey := new(big.Int).Lsh(key, 1)
		if bit == 1 {
			childKey.Or(childKey, big.NewInt(1))
		}
		if err := walkHashmapCell(child, childKey, childRemaining, decode, d); err != nil {
			return err
		}
	}
	return nil
}

// LoadHashmapAugE decodes a HashmapAugE: a leading "maybe" bit and (for
// a non-empty map) a reference to the trie root, followed either way by
// the dictionary's top-level aggregated extra inline. Each trie node
// then carries its own extra: forks after their child references,
// leaves ahead of the value itself.
func (p *Parser) LoadHashmapAugE(keyBits int, extraDecode ExtraDecoder, decode ValueDecoder) (*Dict, error) {
	has, err := p.LoadBit()
	if err != nil {
		return nil, err
	}
	d := newDict(keyBits, true)
	var root *cell.Cell
	if has {
		if root, err = p.NextReference(); err != nil {
			return nil, err
		}
	}
	if d.RootExtra, err = extraDecode(p); err != nil {
		return nil, err
	}
	if root == nil {
		return d, nil
	}
	if err := walkHashmapAugCell(root, new(big.Int), keyBits, extraDecode, decode, d); err != nil {
		return nil, err
	}
	return d, nil
}

// LoadHashmapAug decodes a bare HashmapAug whose root node starts at
// the parser's current position, inline in the enclosing cell (the
// shape AccountBlock uses for its per-LT transaction trie). Fork
// children and any references the decoders consume are taken from the
// same cell's reference list, in schema order.
func (p *Parser) LoadHashmapAug(keyBits int, extraDecode ExtraDecoder, decode ValueDecoder) (*Dict, error) {
	d := newDict(keyBits, true)
	if err := walkHashmapAugNode(p, new(big.Int), keyBits, extraDecode, decode, d); err != nil {
		return nil, err
	}
	return d, nil
}

func walkHashmapAugCell(c *cell.Cell, prefix *big.Int, remaining int, extraDecode ExtraDecoder, decode ValueDecoder, d *Dict) error {
	if c.Type() == cell.PrunedBranch {
		d.Pruned = append(d.Pruned, formatKey(d.KeyBits, prefix))
		return nil
	}
	return walkHashmapAugNode(NewParser(c), prefix, remaining, extraDecode, decode, d)
}

func walkHashmapAugNode(p *Parser, prefix *big.Int, remaining int, extraDecode ExtraDecoder, decode ValueDecoder, d *Dict) error {
	label, err := p.LoadLabel(remaining + 1)
	if err != nil {
		return err
	}
	key := new(big.Int).Lsh(prefix, uint(label.BitsLen))
	key.Or(key, label.Value)

	if label.BitsLen == remaining {
		extra, err := extraDecode(p)
		if err != nil {
			return err
		}
		v, err := decode(p)
		if err != nil {
			return err
		}
		keyStr := formatKey(d.KeyBits, key)
		d.Entries[keyStr] = v
		d.Extras[keyStr] = extra
		return nil
	}

	// Fork: both child references precede the fork's own aggregated
	// extra in schema order, so any references the extra decoder needs
	// resolve after them.
	var children [2]*cell.Cell
	for i := range children {
		if children[i], err = p.NextReference(); err != nil {
			return tonerr.NewCellParserError("hashmap fork cell must have two references")
		}
	}
	if _, err := extraDecode(p); err != nil {
		return err
	}
	childRemaining := remaining - label.BitsLen - 1
	for bit, child := range children {
		childKey := new(big.Int).Lsh(key, 1)
		if bit == 1 {
			childKey.Or(childKey, big.NewInt(1))
		}
		if err := walkHashmapAugCell(child, childKey, childRemaining, extraDecode, decode, d); err != nil {
			return err
		}
	}
	return nil
}
