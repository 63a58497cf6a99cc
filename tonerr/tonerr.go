// Copyright (c) 2019-2020 The Zcash developers
// Distributed under the MIT software license, see the accompanying
// file COPYING or https://www.opensource.org/licenses/mit-license.php .
// Package tonerr defines the error taxonomy shared by the cell, boc, and
// tlb packages. Their fallible operations report these kinds, optionally
// wrapped with github.com/pkg/errors to attach traversal context: which
// cell, which field. Package bitio returns plain errors of its own, and
// the hex/base64 input decoders in boc wrap the decoding error as is.
package tonerr

import "fmt"

// BocDeserializationError reports a malformed BoC envelope: unsupported
// magic, truncated buffer, invalid top-level padding, or a forward
// reference violation.
type BocDeserializationError struct {
	Msg string
}

func (e *BocDeserializationError) Error() string {
	return fmt.Sprintf("boc deserialization: %s", e.Msg)
}

// NewBocDeserializationError builds a BocDeserializationError.
func NewBocDeserializationError(msg string) error {
	return &BocDeserializationError{Msg: msg}
}

// CellBuilderError reports a builder overflow (too many data bits or
// references) or a non-byte-aligned stream at serialize time.
type CellBuilderError struct {
	Msg string
}

func (e *CellBuilderError) Error() string {
	return fmt.Sprintf("cell builder: %s", e.Msg)
}

// NewCellBuilderError builds a CellBuilderError.
func NewCellBuilderError(msg string) error {
	return &CellBuilderError{Msg: msg}
}

// CellParserError reports an unexpected TL-B magic, an out-of-range
// field, a label decode failure, a size mismatch, or an arithmetic
// conversion failure encountered while reading a cell's bits.
type CellParserError struct {
	Msg string
}

func (e *CellParserError) Error() string {
	return fmt.Sprintf("cell parser: %s", e.Msg)
}

// NewCellParserError builds a CellParserError.
func NewCellParserError(msg string) error {
	return &CellParserError{Msg: msg}
}

// NewCellParserErrorf builds a CellParserError with a formatted message.
func NewCellParserErrorf(format string, args ...interface{}) error {
	return &CellParserError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidIndex reports a reference index out of bounds for a cell.
type InvalidIndex struct {
	Idx      int
	RefCount int
}

func (e *InvalidIndex) Error() string {
	return fmt.Sprintf("invalid reference index %d, cell has %d references", e.Idx, e.RefCount)
}

// NewInvalidIndex builds an InvalidIndex error.
func NewInvalidIndex(idx, refCount int) error {
	return &InvalidIndex{Idx: idx, RefCount: refCount}
}

// InvalidAddressType reports an address tag outside {0, 2}.
type InvalidAddressType struct {
	Tag byte
}

func (e *InvalidAddressType) Error() string {
	return fmt.Sprintf("invalid address type tag %d", e.Tag)
}

// NewInvalidAddressType builds an InvalidAddressType error.
func NewInvalidAddressType(tag byte) error {
	return &InvalidAddressType{Tag: tag}
}

// NonEmptyReader reports that a parser's EnsureEmpty check found unread
// bits left behind.
type NonEmptyReader struct {
	Bits int
}

func (e *NonEmptyReader) Error() string {
	return fmt.Sprintf("non-empty reader: %d bits left unread", e.Bits)
}

// NewNonEmptyReader builds a NonEmptyReader error.
func NewNonEmptyReader(bits int) error {
	return &NonEmptyReader{Bits: bits}
}
