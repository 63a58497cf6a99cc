// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package tlb

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nkrasko/tonboc/cell"
)

func buildShardDescrCell(t *testing.T, tag uint64) *cell.Cell {
	t.Helper()
	c, err := cell.NewBuilder().
		StoreUint(4, tag).
		StoreUint(32, 5).                // seqno
		StoreUint(32, 4).                // reg_mc_seqno
		StoreUint(64, 100).               // start_lt
		StoreUint(64, 200).               // end_lt
		StoreBigUint(256, new(big.Int)).  // root_hash
		StoreBigUint(256, new(big.Int)).  // file_hash
		StoreBit(false).StoreBit(false).StoreBit(false).StoreBit(false).StoreBit(false).
		StoreUint(3, 0).           // extra flags must be 0
		StoreUint(32, 9).          // catchain_seqno
		StoreUint(64, 0).          // next_validator_shard
		StoreUint(32, 0).          // min_ref_mc_seqno
		StoreUint(32, 1719688696). // gen_utime
		Build()
	require.NoError(t, err, "building ShardDescr cell")
	return c
}

func TestLoadShardDescr(t *testing.T) {
	c := buildShardDescrCell(t, 0xA)
	d, err := loadShardDescr(NewParser(c))
	require.NoError(t, err)
	require.Equal(t, uint32(5), d.Seqno)
	require.Equal(t, uint32(4), d.RegMcSeqno)
	require.Equal(t, uint32(1719688696), d.GenUtime)
}

func TestLoadShardDescrRejectsBadTag(t *testing.T) {
	c := buildShardDescrCell(t, 0x3)
	_, err := loadShardDescr(NewParser(c))
	require.Error(t, err)
}

func buildValidatorDescrCell(t *testing.T, simple bool) *cell.Cell {
	t.Helper()
	tag := uint64(0x53)
	if !simple {
		tag = 0x73
	}
	b := cell.NewBuilder().
		StoreUint(8, tag).
		StoreUint(32, magicSigPubKey).
		StoreBigUint(256, new(big.Int)).
		StoreUint(64, 17)
	if !simple {
		b = b.StoreBigUint(256, new(big.Int))
	}
	c, err := b.Build()
	require.NoError(t, err, "building ValidatorDescr cell")
	return c
}

func TestDecodeValidatorDescrSimple(t *testing.T) {
	c := buildValidatorDescrCell(t, true)
	raw, err := decodeValidatorDescr(NewParser(c))
	require.NoError(t, err)
	d := raw.(*ValidatorDescr)
	require.False(t, d.HasAdnl, "simple form must not have adnl_addr")
	require.Equal(t, uint64(17), d.Weight)
}

func TestDecodeValidatorDescrFull(t *testing.T) {
	c := buildValidatorDescrCell(t, false)
	raw, err := decodeValidatorDescr(NewParser(c))
	require.NoError(t, err)
	d := raw.(*ValidatorDescr)
	require.True(t, d.HasAdnl, "full form must carry adnl_addr")
}

// buildConfigDictCell wires up a single-entry bare parameter dictionary
// root (key -> a ValidatorSet cell reference), the cell ConfigParams
// points at.
func buildConfigDictCell(t *testing.T, key uint64, total, main uint16) *cell.Cell {
	t.Helper()
	vsCell, err := cell.NewBuilder().
		StoreUint(8, validatorSetTag).
		StoreUint(32, 1000). // utime_since
		StoreUint(32, 2000). // utime_until
		StoreUint(16, uint64(total)).
		StoreUint(16, uint64(main)).
		StoreBit(false). // empty validator list
		Build()
	require.NoError(t, err, "building ValidatorSet cell")

	dictRoot := cell.NewBuilder().StoreBit(false)
	for i := 0; i < 32; i++ {
		dictRoot.StoreBit(true)
	}
	dictRoot.StoreBit(false)
	dictRoot.StoreUint(32, key)
	dictRoot.StoreReference(vsCell)
	dictRootCell, err := dictRoot.Build()
	require.NoError(t, err, "building dict root cell")
	return dictRootCell
}

// buildConfigParamsWrapper embeds ConfigParams the way McBlockExtra
// carries it: the config address inline, then the dictionary reference.
func buildConfigParamsWrapper(t *testing.T, key uint64, total, main uint16) *cell.Cell {
	t.Helper()
	dictRoot := buildConfigDictCell(t, key, total, main)
	c, err := cell.NewBuilder().
		StoreBigUint(256, new(big.Int)).
		StoreReference(dictRoot).
		Build()
	require.NoError(t, err, "building ConfigParams wrapper cell")
	return c
}

func TestLoadConfigParamsKeyBlockParam34(t *testing.T) {
	cfgCell := buildConfigParamsWrapper(t, 34, 343, 300)
	cp, err := LoadConfigParams(NewParser(cfgCell))
	require.NoError(t, err)
	vs, ok := cp.Sets[34]
	require.True(t, ok, "missing param 34, got %v", cp.Sets)
	require.Equal(t, uint16(343), vs.Total)
	require.LessOrEqual(t, vs.Main, vs.Total)
}

func TestLoadConfigParamsIgnoresUndecodedParams(t *testing.T) {
	cfgCell := buildConfigParamsWrapper(t, 7, 1, 1)
	cp, err := LoadConfigParams(NewParser(cfgCell))
	require.NoError(t, err)
	require.Empty(t, cp.Sets, "param 7 is not decoded")
}
