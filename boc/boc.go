// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
// Package boc decodes and encodes the raw Bag-of-Cells envelope: the
// compact binary container that carries a topologically ordered cell
// DAG between nodes and wallets. It sits directly below package cell,
// assembling raw cell records bottom-up into finalized, hashed
// *cell.Cell values.
package boc

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"hash/crc32"
	"math/bits"
	"strings"

	"github.com/pkg/errors"

	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tonerr"
)

// Magic is the only supported BoC envelope variant.
const Magic uint32 = 0xB5EE9C72

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// BagOfCells is the result of decoding a BoC envelope: its finalized
// root cells in declaration order.
type BagOfCells struct {
	Roots []*cell.Cell
}

// Root returns the first root cell, the common case of a single-root
// envelope.
func (b *BagOfCells) Root() (*cell.Cell, error) {
	if len(b.Roots) == 0 {
		return nil, tonerr.NewBocDeserializationError("boc carries no root cells")
	}
	return b.Roots[0], nil
}

type header struct {
	hasIdx       bool
	hasCRC32C    bool
	hasCacheBits bool
	flags        int
	refSizeBytes int
	offBytes     int
	cellsNum     int
	rootsNum     int
	absentNum    int
	totCellsSize int
	roots        []int
	cellsData    []byte
}

func readUintN(buf []byte, n int) uint64 {
	var v uint64
	for i := 0; i < n; i++ {
		v = v<<8 | uint64(buf[i])
	}
	return v
}

func parseHeader(data []byte) (*header, error) {
	if len(data) < 4+1 {
		return nil, tonerr.NewBocDeserializationError("buffer too short for envelope header")
	}
	if binary.BigEndian.Uint32(data[0:4]) != Magic {
		return nil, tonerr.NewBocDeserializationError("unsupported magic prefix")
	}
	buf := data[4:]

	flagsByte := buf[0]
	h := &header{
		hasIdx:       flagsByte&0x80 != 0,
		hasCRC32C:    flagsByte&0x40 != 0,
		hasCacheBits: flagsByte&0x20 != 0,
		flags:        int(flagsByte>>3) & 0x3,
		refSizeBytes: int(flagsByte & 0x7),
	}
	buf = buf[1:]

	if len(buf) < 1 {
		return nil, tonerr.NewBocDeserializationError("buffer too short for off_bytes")
	}
	h.offBytes = int(buf[0])
	buf = buf[1:]

	need := 3*h.refSizeBytes + h.offBytes
	if len(buf) < need {
		return nil, tonerr.NewBocDeserializationError("buffer too short for cell counters")
	}
	h.cellsNum = int(readUintN(buf, h.refSizeBytes))
	buf = buf[h.refSizeBytes:]
	h.rootsNum = int(readUintN(buf, h.refSizeBytes))
	buf = buf[h.refSizeBytes:]
	h.absentNum = int(readUintN(buf, h.refSizeBytes))
	buf = buf[h.refSizeBytes:]
	h.totCellsSize = int(readUintN(buf, h.offBytes))
	buf = buf[h.offBytes:]

	if len(buf) < h.rootsNum*h.refSizeBytes {
		return nil, tonerr.NewBocDeserializationError("buffer too short for root index list")
	}
	h.roots = make([]int, h.rootsNum)
	for i := 0; i < h.rootsNum; i++ {
		h.roots[i] = int(readUintN(buf, h.refSizeBytes))
		buf = buf[h.refSizeBytes:]
	}

	if h.hasIdx {
		if len(buf) < h.cellsNum*h.offBytes {
			return nil, tonerr.NewBocDeserializationError("buffer too short for index table")
		}
		buf = buf[h.cellsNum*h.offBytes:]
	}

	if len(buf) < h.totCellsSize {
		return nil, tonerr.NewBocDeserializationError("buffer too short for packed cell records")
	}
	h.cellsData = buf[:h.totCellsSize]
	rest := buf[h.totCellsSize:]

	if h.hasCRC32C {
		if len(rest) < 4 {
			return nil, tonerr.NewBocDeserializationError("buffer too short for crc32c trailer")
		}
		want := binary.LittleEndian.Uint32(rest[:4])
		got := crc32.Checksum(data[:len(data)-len(rest)], crcTable)
		if want != got {
			return nil, tonerr.NewBocDeserializationError("crc32c checksum mismatch")
		}
		rest = rest[4:]
	}
	if len(rest) != 0 {
		return nil, tonerr.NewBocDeserializationError("trailing bytes after envelope")
	}
	return h, nil
}

type rawCell struct {
	data     []byte
	bitLen   int
	isExotic bool
	refs     []int
}

func parseRawCell(buf []byte, refSizeBytes int) (*rawCell, []byte, error) {
	if len(buf) < 2 {
		return nil, nil, tonerr.NewBocDeserializationError("cell record truncated before descriptor bytes")
	}
	d1, d2 := buf[0], buf[1]
	buf = buf[2:]

	refsCount := int(d1 & 0x7)
	isExotic := d1&0x08 != 0
	hasHashes := d1&0x10 != 0
	levelMask := d1 >> 5

	if hasHashes {
		skip := (bits.OnesCount8(levelMask) + 1) * (32 + 2)
		if len(buf) < skip {
			return nil, nil, tonerr.NewBocDeserializationError("cell record truncated before stored hash preamble")
		}
		buf = buf[skip:]
	}

	fullByte := d2%2 == 0
	dataLen := int(d2) / 2
	if !fullByte {
		dataLen = (int(d2) + 1) / 2
	}
	if len(buf) < dataLen+refsCount*refSizeBytes {
		return nil, nil, tonerr.NewBocDeserializationError("cell record truncated before data or refs")
	}
	data := make([]byte, dataLen)
	copy(data, buf[:dataLen])
	buf = buf[dataLen:]

	bitLen := dataLen * 8
	if !fullByte && dataLen > 0 {
		last := data[dataLen-1]
		if last == 0 {
			return nil, nil, tonerr.NewBocDeserializationError("partial final data byte is all-zero")
		}
		tz := bits.TrailingZeros8(last)
		bitLen = dataLen*8 - (tz + 1)
		data[dataLen-1] &^= byte(1<<uint(tz+1)) - 1
	}

	refs := make([]int, refsCount)
	for i := 0; i < refsCount; i++ {
		refs[i] = int(readUintN(buf, refSizeBytes))
		buf = buf[refSizeBytes:]
	}

	return &rawCell{data: data, bitLen: bitLen, isExotic: isExotic, refs: refs}, buf, nil
}

// Parse decodes a raw BoC envelope into a finalized cell DAG.
func Parse(data []byte) (*BagOfCells, error) {
	h, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	buf := h.cellsData
	raws := make([]*rawCell, h.cellsNum)
	for i := 0; i < h.cellsNum; i++ {
		rc, rest, err := parseRawCell(buf, h.refSizeBytes)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing cell %d", i)
		}
		raws[i] = rc
		buf = rest
	}
	if len(buf) != 0 {
		return nil, tonerr.NewBocDeserializationError("packed cell records longer than declared size")
	}

	cells := make([]*cell.Cell, h.cellsNum)
	for i := h.cellsNum - 1; i >= 0; i-- {
		rc := raws[i]
		children := make([]*cell.Cell, len(rc.refs))
		for ri, target := range rc.refs {
			if target == i {
				return nil, tonerr.NewBocDeserializationError("cell must not reference itself")
			}
			if target <= i {
				return nil, tonerr.NewBocDeserializationError("references to previous cells are not supported")
			}
			if target >= h.cellsNum {
				return nil, tonerr.NewInvalidIndex(target, h.cellsNum)
			}
			children[ri] = cells[target]
		}
		built, err := cell.Finalize(rc.data, rc.bitLen, children, rc.isExotic)
		if err != nil {
			return nil, errors.Wrapf(err, "finalizing cell %d", i)
		}
		cells[i] = built
	}

	roots := make([]*cell.Cell, h.rootsNum)
	for i, idx := range h.roots {
		if idx >= h.cellsNum {
			return nil, tonerr.NewInvalidIndex(idx, h.cellsNum)
		}
		roots[i] = cells[idx]
	}
	return &BagOfCells{Roots: roots}, nil
}

// ParseHex decodes a case-insensitive hex string (whitespace stripped)
// and parses the resulting bytes as a BoC envelope.
func ParseHex(s string) (*BagOfCells, error) {
	cleaned := strings.Join(strings.Fields(s), "")
	data, err := hex.DecodeString(cleaned)
	if err != nil {
		return nil, errors.Wrap(err, "decoding hex input")
	}
	return Parse(data)
}

// ParseBase64 decodes a standard base64 string and parses the result as
// a BoC envelope.
func ParseBase64(s string) (*BagOfCells, error) {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrap(err, "decoding base64 input")
	}
	return Parse(data)
}
