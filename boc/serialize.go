// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
package boc

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math/bits"

	"github.com/nkrasko/tonboc/cell"
	"github.com/nkrasko/tonboc/tonerr"
)

// Options controls which optional envelope sections Serialize emits.
type Options struct {
	HasIndex  bool
	HasCRC32C bool
}

func bytesNeeded(n int) int {
	bl := bits.Len(uint(n))
	by := (bl + 7) / 8
	if by < 1 {
		by = 1
	}
	return by
}

// topoSort orders a single-root cell DAG so every reference points
// forward: for each edge parent -> child, parent's index precedes
// child's. A plain DFS pre-order breaks this for shared children
// reached through more than one parent, so this walks post-order
// (append a cell only once all of its children are already placed)
// and reverses the result, which holds regardless of sharing.
func topoSort(root *cell.Cell) ([]*cell.Cell, map[*cell.Cell]int, error) {
	visited := make(map[*cell.Cell]bool)
	onStack := make(map[*cell.Cell]bool)
	var order []*cell.Cell

	var visit func(c *cell.Cell) error
	visit = func(c *cell.Cell) error {
		if onStack[c] {
			return tonerr.NewBocDeserializationError("cell graph contains a cycle")
		}
		if visited[c] {
			return nil
		}
		onStack[c] = true
		for i := 0; i < c.RefsCount(); i++ {
			child, err := c.Reference(i)
			if err != nil {
				return err
			}
			if err := visit(child); err != nil {
				return err
			}
		}
		onStack[c] = false
		visited[c] = true
		order = append(order, c)
		return nil
	}
	if err := visit(root); err != nil {
		return nil, nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	indexOf := make(map[*cell.Cell]int, len(order))
	for i, c := range order {
		indexOf[c] = i
	}
	return order, indexOf, nil
}

// topUppedData returns a cell's data bytes with the TON top-up marker
// bit set at bit_len (a 1 bit followed by zeros), the form the packed
// cell record stores so a parser can recover bit_len from padding
// alone.
func topUppedData(c *cell.Cell) []byte {
	data := c.Data()
	rest := c.BitLen() % 8
	if rest == 0 {
		return data
	}
	out := make([]byte, len(data))
	copy(out, data)
	out[len(out)-1] |= 1 << uint(8-rest-1)
	return out
}

func descriptorBytes(c *cell.Cell) (byte, byte) {
	d1 := byte(c.RefsCount())
	if c.IsExotic() {
		d1 |= 0x08
	}
	d1 |= c.LevelMask() << 5

	dataLen := (c.BitLen() + 7) / 8
	d2 := byte(dataLen * 2)
	if c.BitLen()%8 != 0 {
		d2--
	}
	return d1, d2
}

func cellRecord(c *cell.Cell, indexOf map[*cell.Cell]int, refSizeBytes int) []byte {
	var buf bytes.Buffer
	d1, d2 := descriptorBytes(c)
	buf.WriteByte(d1)
	buf.WriteByte(d2)
	buf.Write(topUppedData(c))
	for i := 0; i < c.RefsCount(); i++ {
		child, _ := c.Reference(i)
		idx := indexOf[child]
		b := make([]byte, refSizeBytes)
		v := uint64(idx)
		for j := refSizeBytes - 1; j >= 0; j-- {
			b[j] = byte(v)
			v >>= 8
		}
		buf.Write(b)
	}
	return buf.Bytes()
}

func writeUintN(buf *bytes.Buffer, n int, v uint64) {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	buf.Write(b)
}

// Serialize re-emits a cell DAG as a BoC envelope in the same
// topological order Parse expects: ref_size_bytes/off_bytes are
// recomputed from the graph's actual size, and the optional CRC-32C
// trailer is appended last.
func Serialize(root *cell.Cell, opts Options) ([]byte, error) {
	order, indexOf, err := topoSort(root)
	if err != nil {
		return nil, err
	}
	cellsNum := len(order)
	refSizeBytes := bytesNeeded(cellsNum)

	records := make([][]byte, cellsNum)
	totalSize := 0
	for i, c := range order {
		rec := cellRecord(c, indexOf, refSizeBytes)
		records[i] = rec
		totalSize += len(rec)
	}
	offBytes := bytesNeeded(totalSize)

	var buf bytes.Buffer
	var magicBuf [4]byte
	binary.BigEndian.PutUint32(magicBuf[:], Magic)
	buf.Write(magicBuf[:])

	var flagsByte byte
	if opts.HasIndex {
		flagsByte |= 0x80
	}
	if opts.HasCRC32C {
		flagsByte |= 0x40
	}
	flagsByte |= byte(refSizeBytes & 0x7)
	buf.WriteByte(flagsByte)

	buf.WriteByte(byte(offBytes))
	writeUintN(&buf, refSizeBytes, uint64(cellsNum))
	writeUintN(&buf, refSizeBytes, 1) // single root
	writeUintN(&buf, refSizeBytes, 0) // absent count
	writeUintN(&buf, offBytes, uint64(totalSize))
	writeUintN(&buf, refSizeBytes, 0) // root index 0

	if opts.HasIndex {
		running := 0
		for _, rec := range records {
			running += len(rec)
			writeUintN(&buf, offBytes, uint64(running))
		}
	}
	for _, rec := range records {
		buf.Write(rec)
	}

	out := buf.Bytes()
	if opts.HasCRC32C {
		sum := crc32.Checksum(out, crcTable)
		var sumBuf [4]byte
		binary.LittleEndian.PutUint32(sumBuf[:], sum)
		out = append(out, sumBuf[:]...)
	}
	return out, nil
}
