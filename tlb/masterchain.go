// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package tlb

import (
	"math/big"

	"github.com/pkg/errors"

	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tonerr"
)

// ShardFeeCreated is the ShardFees aggregate: fees collected in a
// shard and funds created there, each the grams half of a
// CurrencyCollection.
type ShardFeeCreated struct {
	Fees   *big.Int
	Create *big.Int
}

// McBlockExtra is the masterchain-only tail of BlockExtra: the shard
// configuration tree, shard fees, previous-block signatures, and (on
// key blocks) the ConfigParams set.
type McBlockExtra struct {
	KeyBlock    bool
	ShardHashes *Dict // key: 32-bit workchain id, value: []ShardDescr
	// TotalFees aggregates the whole shard-fees dictionary; present
	// even when every shard entry is pruned out of a proof.
	TotalFees *ShardFeeCreated
	// PrevBlkSignatures is nil when the signatures sub-cell is pruned.
	PrevBlkSignatures *Dict // key: 16-bit slot, value: *CryptoSignaturePair
	HasConfig         bool
	Config            *ConfigParams
}

// LoadMcBlockExtra decodes a McBlockExtra cell.
func LoadMcBlockExtra(c *cell.Cell) (*McBlockExtra, error) {
	p := NewParser(c)
	if err := p.ExpectMagic(16, magicMcBlockExtra, "McBlockExtra"); err != nil {
		return nil, err
	}
	e := &McBlockExtra{}
	keyBlock, err := p.LoadBit()
	if err != nil {
		return nil, err
	}
	e.KeyBlock = keyBlock

	shardHashes, err := p.LoadHashmapE(32, decodeShardHashesLeaf)
	if err != nil {
		return nil, errors.Wrap(err, "loading McBlockExtra.shard_hashes")
	}
	e.ShardHashes = shardHashes

	fees, err := p.LoadHashmapAugE(96, decodeShardFeeCreatedExtra, decodeShardFeeCreatedExtra)
	if err != nil {
		return nil, errors.Wrap(err, "loading McBlockExtra.shard_fees")
	}
	e.TotalFees = fees.RootExtra.(*ShardFeeCreated)

	// signatures/recover/mint sub-cell: an unconditional ref, processed
	// only when ordinary (proofs prune it).
	sigRef, err := p.NextReference()
	if err != nil {
		return nil, err
	}
	if sigRef.Type() == cell.Ordinary {
		sigs, err := loadPrevBlkSignatures(sigRef)
		if err != nil {
			return nil, errors.Wrap(err, "loading McBlockExtra signatures")
		}
		e.PrevBlkSignatures = sigs
	}

	if e.KeyBlock {
		cfg, err := LoadConfigParams(p)
		if err != nil {
			return nil, errors.Wrap(err, "loading McBlockExtra.config")
		}
		e.HasConfig = true
		e.Config = cfg
	}
	return e, nil
}

func decodeShardFeeCreatedExtra(p *Parser) (interface{}, error) {
	fees, err := decodeCurrencyCollection(p)
	if err != nil {
		return nil, err
	}
	create, err := decodeCurrencyCollection(p)
	if err != nil {
		return nil, err
	}
	return &ShardFeeCreated{Fees: fees, Create: create}, nil
}

const tagCryptoSignatureSimple = 0x5

// CryptoSignaturePair is one prev_blk_signatures entry: the short node
// id and an ed25519 signature.
type CryptoSignaturePair struct {
	NodeIDShort [32]byte
	R           [32]byte
	S           [32]byte
}

// loadPrevBlkSignatures decodes the signatures sub-cell: the signature
// dictionary plus the recover_create/mint message slots, which are
// consumed (one reference each when present) without decoding.
func loadPrevBlkSignatures(c *cell.Cell) (*Dict, error) {
	p := NewParser(c)
	sigs, err := p.LoadHashmapE(16, decodeCryptoSignaturePair)
	if err != nil {
		return nil, err
	}
	for i := 0; i < 2; i++ {
		has, err := p.LoadBit()
		if err != nil {
			return nil, err
		}
		if has {
			if _, err := p.NextReference(); err != nil {
				return nil, err
			}
		}
	}
	return sigs, nil
}

func decodeCryptoSignaturePair(p *Parser) (interface{}, error) {
	var (
		sp  CryptoSignaturePair
		err error
	)
	if sp.NodeIDShort, err = p.LoadHash256(); err != nil {
		return nil, err
	}
	tag, err := p.LoadUint(4)
	if err != nil {
		return nil, err
	}
	if tag != tagCryptoSignatureSimple {
		return nil, tonerr.NewCellParserErrorf("not a CryptoSignatureSimple: tag %#x", tag)
	}
	if sp.R, err = p.LoadHash256(); err != nil {
		return nil, err
	}
	if sp.S, err = p.LoadHash256(); err != nil {
		return nil, err
	}
	return &sp, nil
}

// decodeShardHashesLeaf reads a ShardHashes value: a reference to a
// BinTree of ShardDescr, flattened into a slice. A pruned tree yields
// an empty slice.
func decodeShardHashesLeaf(p *Parser) (interface{}, error) {
	root, err := p.NextReference()
	if err != nil {
		return nil, err
	}
	var out []ShardDescr
	if err := walkBinTree(root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// walkBinTree implements BinTree's bit 0 (leaf) / bit 1 (fork with two
// references) control flow, flattening leaves into out. Pruned
// subtrees are skipped.
func walkBinTree(c *cell.Cell, out *[]ShardDescr) error {
	if c.Type() == cell.PrunedBranch {
		return nil
	}
	p := NewParser(c)
	isFork, err := p.LoadBit()
	if err != nil {
		return err
	}
	if !isFork {
		descr, err := loadShardDescr(p)
		if err != nil {
			return err
		}
		*out = append(*out, descr)
		return nil
	}
	left, err := p.NextReference()
	if err != nil {
		return err
	}
	right, err := p.NextReference()
	if err != nil {
		return err
	}
	if err := walkBinTree(left, out); err != nil {
		return err
	}
	return walkBinTree(right, out)
}

// ShardDescr describes one shard's state as of this masterchain block.
type ShardDescr struct {
	Tag                byte
	Seqno              uint32
	RegMcSeqno         uint32
	StartLT            uint64
	EndLT              uint64
	RootHash           [32]byte
	FileHash           [32]byte
	BeforeSplit        bool
	BeforeMerge        bool
	WantSplit          bool
	WantMerge          bool
	NXCCUpdated        bool
	CatchainSeqno      uint32
	NextValidatorShard uint64
	MinRefMcSeqno      uint32
	GenUtime           uint32
}

func loadShardDescr(p *Parser) (ShardDescr, error) {
	var d ShardDescr
	tag, err := p.LoadUint(4)
	if err != nil {
		return d, err
	}
	if tag != 0xA && tag != 0xB {
		return d, tonerr.NewCellParserErrorf("not a ShardDescr: tag %#x", tag)
	}
	d.Tag = byte(tag)

	seqno, err := p.LoadUint(32)
	if err != nil {
		return d, err
	}
	d.Seqno = uint32(seqno)
	v, err := p.LoadUint(32)
	if err != nil {
		return d, err
	}
	d.RegMcSeqno = uint32(v)
	if d.StartLT, err = p.LoadUint(64); err != nil {
		return d, err
	}
	if d.EndLT, err = p.LoadUint(64); err != nil {
		return d, err
	}
	if d.RootHash, err = p.LoadHash256(); err != nil {
		return d, err
	}
	if d.FileHash, err = p.LoadHash256(); err != nil {
		return d, err
	}

	if d.BeforeSplit, err = p.LoadBit(); err != nil {
		return d, err
	}
	if d.BeforeMerge, err = p.LoadBit(); err != nil {
		return d, err
	}
	if d.WantSplit, err = p.LoadBit(); err != nil {
		return d, err
	}
	if d.WantMerge, err = p.LoadBit(); err != nil {
		return d, err
	}
	if d.NXCCUpdated, err = p.LoadBit(); err != nil {
		return d, err
	}
	extraFlags, err := p.LoadUint(3)
	if err != nil {
		return d, err
	}
	if extraFlags != 0 {
		return d, tonerr.NewCellParserError("ShardDescr extra-flags field must be 0")
	}

	v, err = p.LoadUint(32)
	if err != nil {
		return d, err
	}
	d.CatchainSeqno = uint32(v)
	if d.NextValidatorShard, err = p.LoadUint(64); err != nil {
		return d, err
	}
	v, err = p.LoadUint(32)
	if err != nil {
		return d, err
	}
	d.MinRefMcSeqno = uint32(v)
	v, err = p.LoadUint(32)
	if err != nil {
		return d, err
	}
	d.GenUtime = uint32(v)
	return d, nil
}

// ConfigParams is the masterchain configuration dictionary: the config
// address plus a parameter-number-keyed map of parameter cells. Only
// parameters 32, 34, 36 are decoded, all as ValidatorSet.
type ConfigParams struct {
	ConfigAddr [32]byte
	Sets       map[int32]*ValidatorSet
}

var decodedConfigParams = map[int32]bool{32: true, 34: true, 36: true}

// LoadConfigParams decodes ConfigParams from the parser's current
// position: the 256-bit config address inline, then a reference to the
// bare parameter dictionary whose values are parameter cell references.
func LoadConfigParams(p *Parser) (*ConfigParams, error) {
	addr, err := p.LoadHash256()
	if err != nil {
		return nil, err
	}
	root, err := p.NextReference()
	if err != nil {
		return nil, err
	}
	cp := &ConfigParams{ConfigAddr: addr, Sets: map[int32]*ValidatorSet{}}
	if root.Type() == cell.PrunedBranch {
		return cp, nil
	}

	dict, err := LoadHashmapRoot(root, 32, func(p *Parser) (interface{}, error) {
		ref, err := p.NextReference()
		if err != nil {
			return nil, err
		}
		return ref, nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "loading ConfigParams dictionary")
	}
	for key, raw := range dict.Entries {
		num, err := parseHexKeyAsInt32(key)
		if err != nil {
			return nil, err
		}
		if !decodedConfigParams[num] {
			continue
		}
		paramCell := raw.(*cell.Cell)
		if paramCell.Type() == cell.PrunedBranch {
			continue
		}
		vs, err := LoadValidatorSet(paramCell)
		if err != nil {
			return nil, errors.Wrapf(err, "loading config param %d", num)
		}
		cp.Sets[num] = vs
	}
	return cp, nil
}

func parseHexKeyAsInt32(key string) (int32, error) {
	var n uint32
	for _, ch := range key {
		var d uint32
		switch {
		case ch >= '0' && ch <= '9':
			d = uint32(ch - '0')
		case ch >= 'a' && ch <= 'f':
			d = uint32(ch-'a') + 10
		default:
			return 0, tonerr.NewCellParserErrorf("malformed dictionary key %q", key)
		}
		n = n<<4 | d
	}
	return int32(n), nil
}

const (
	validatorSetTag    = 0x11
	validatorSetExtTag = 0x12
)

// ValidatorSet is the decoded form of param 32/34/36's payload.
type ValidatorSet struct {
	Ext         bool
	UtimeSince  uint32
	UtimeUntil  uint32
	Total       uint16
	Main        uint16
	TotalWeight uint64
	List        *Dict // key: 16-bit slot, value: *ValidatorDescr
}

// LoadValidatorSet decodes a ValidatorSet cell.
func LoadValidatorSet(c *cell.Cell) (*ValidatorSet, error) {
	p := NewParser(c)
	tag, err := p.LoadUint(8)
	if err != nil {
		return nil, err
	}
	if tag != validatorSetTag && tag != validatorSetExtTag {
		return nil, tonerr.NewCellParserErrorf("not a ValidatorSet: tag %#x", tag)
	}
	vs := &ValidatorSet{Ext: tag == validatorSetExtTag}

	v, err := p.LoadUint(32)
	if err != nil {
		return nil, err
	}
	vs.UtimeSince = uint32(v)
	v, err = p.LoadUint(32)
	if err != nil {
		return nil, err
	}
	vs.UtimeUntil = uint32(v)

	total, err := p.LoadUint(16)
	if err != nil {
		return nil, err
	}
	main, err := p.LoadUint(16)
	if err != nil {
		return nil, err
	}
	if main < 1 || main > total {
		return nil, tonerr.NewCellParserError("ValidatorSet requires total >= main >= 1")
	}
	vs.Total = uint16(total)
	vs.Main = uint16(main)

	if vs.Ext {
		if vs.TotalWeight, err = p.LoadUint(64); err != nil {
			return nil, err
		}
	}

	list, err := p.LoadHashmapE(16, decodeValidatorDescr)
	if err != nil {
		return nil, errors.Wrap(err, "loading ValidatorSet.list")
	}
	vs.List = list
	return vs, nil
}

// validatorDescrSimpleTag is the tag treated as the "simple" form (no
// adnl_addr field), per the conformance decision recorded for this
// core: tag 0x53 carries no adnl address, any other tag does.
const validatorDescrSimpleTag = 0x53

// ValidatorDescr is one validator slot entry.
type ValidatorDescr struct {
	Tag       byte
	PublicKey [32]byte
	Weight    uint64
	AdnlAddr  [32]byte
	HasAdnl   bool
}

func decodeValidatorDescr(p *Parser) (interface{}, error) {
	tag, err := p.LoadUint(8)
	if err != nil {
		return nil, err
	}
	d := &ValidatorDescr{Tag: byte(tag)}
	if err := p.ExpectMagic(32, magicSigPubKey, "SigPubKey"); err != nil {
		return nil, err
	}
	if d.PublicKey, err = p.LoadHash256(); err != nil {
		return nil, err
	}
	if d.Weight, err = p.LoadUint(64); err != nil {
		return nil, err
	}
	if tag != validatorDescrSimpleTag {
		d.HasAdnl = true
		if d.AdnlAddr, err = p.LoadHash256(); err != nil {
			return nil, err
		}
	}
	return d, nil
}
