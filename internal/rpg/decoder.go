// Package rpg decodes the proprietary binary files written by RPG microwave
// radiometers (HATPRO family): brightness temperatures (BRT), boundary-layer
// scans (BLB), infrared temperatures (IRT), meteorological sensors (MET) and
// housekeeping data (HKD). All files are little-endian and start with a 32-bit
// filecode identifying family and structure version.
package rpg

import (
	"encoding/binary"
	"fmt"
	"math"
)

// formatDesc carries the decode parameters attached to one known filecode.
type formatDesc struct {
	kind       Kind
	structVer  int
	angleVer   int  // angle encoding version, 0 when the family has no pointing
	angleIsInt bool // pointing stored as int32 instead of float32
}

// formatsByCode is the closed table of known filecodes.
var formatsByCode = map[int32]formatDesc{
	// BRT
	666666: {kind: KindBRT, structVer: 1, angleVer: 1},
	666667: {kind: KindBRT, structVer: 1, angleVer: 1},
	666000: {kind: KindBRT, structVer: 2, angleVer: 2, angleIsInt: true},
	667000: {kind: KindBRT, structVer: 2, angleVer: 2, angleIsInt: true},
	// BLB
	567845847: {kind: KindBLB, structVer: 1},
	567845848: {kind: KindBLB, structVer: 2},
	// IRT
	671112495: {kind: KindIRT, structVer: 1},
	671112496: {kind: KindIRT, structVer: 2, angleVer: 1},
	671112000: {kind: KindIRT, structVer: 2, angleVer: 2, angleIsInt: true},
	// MET
	599658943: {kind: KindMET, structVer: 1},
	599658944: {kind: KindMET, structVer: 2},
	// HKD
	837854832: {kind: KindHKD, structVer: 1},
}

// InterpretFilecode resolves a raw filecode against the known table and checks
// it belongs to the expected record family.
func InterpretFilecode(code int32, want Kind) (formatDesc, error) {
	desc, ok := formatsByCode[code]
	if !ok {
		return formatDesc{}, fmt.Errorf("%w: no decoder specified for filecode %d", ErrUnknownFileType, code)
	}
	if desc.kind != want {
		return formatDesc{}, fmt.Errorf("%w: filecode %d belongs to %s-files but decoding %s",
			ErrWrongFileType, code, desc.kind, want)
	}
	return desc, nil
}

// cursor walks a raw byte stream. Every read advances the offset; an underrun
// surfaces as ErrFileTooShort. The stream is never mutated.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int { return len(c.buf) - c.off }

func (c *cursor) need(n int) error {
	if c.remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d but only %d remain",
			ErrFileTooShort, n, c.off, c.remaining())
	}
	return nil
}

func (c *cursor) i32() (int32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(c.buf[c.off:]))
	c.off += 4
	return v, nil
}

func (c *cursor) f32() (float64, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := math.Float32frombits(binary.LittleEndian.Uint32(c.buf[c.off:]))
	c.off += 4
	return float64(v), nil
}

func (c *cursor) u8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

// f32s reads n consecutive float32 values.
func (c *cursor) f32s(n int) ([]float64, error) {
	out := make([]float64, n)
	for i := range out {
		v, err := c.f32()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// angle reads one packed pointing value in the representation declared by desc.
func (c *cursor) angle(desc formatDesc) (float64, error) {
	if desc.angleIsInt {
		v, err := c.i32()
		return float64(v), err
	}
	return c.f32()
}

type familyDecoder func(*cursor, formatDesc) (*Frame, error)

var decoders = map[Kind]familyDecoder{
	KindBRT: decodeBRT,
	KindBLB: decodeBLB,
	KindIRT: decodeIRT,
	KindMET: decodeMET,
	KindHKD: decodeHKD,
}

// Decode interprets one complete raw file of the given record family. Decoding
// is strictly sequential (filecode, header, samples), single-shot and without
// rollback: the first failure aborts the file. Trailing bytes after the last
// declared record are a corruption signal and fail with ErrFileTooLong.
func Decode(kind Kind, data []byte) (*Frame, error) {
	c := &cursor{buf: data}

	code, err := c.i32()
	if err != nil {
		return nil, fmt.Errorf("read filecode: %w", err)
	}
	desc, err := InterpretFilecode(code, kind)
	if err != nil {
		return nil, err
	}

	frame, err := decoders[kind](c, desc)
	if err != nil {
		return nil, err
	}
	if c.remaining() > 0 {
		return nil, fmt.Errorf("%w: interpreted %d bytes but stream contains %d",
			ErrFileTooLong, c.off, len(c.buf))
	}
	return frame, nil
}

// checkDeclaredLength verifies the header-declared record count against the
// bytes left in the stream, before any sample is read. Both directions are
// hard corruption signals.
func checkDeclaredLength(c *cursor, nRecords, recordSize int) error {
	want := nRecords * recordSize
	switch {
	case c.remaining() < want:
		return fmt.Errorf("%w: %d records of %d bytes declared but %d bytes remain",
			ErrFileTooShort, nRecords, recordSize, c.remaining())
	case c.remaining() > want:
		return fmt.Errorf("%w: %d records of %d bytes declared but %d bytes remain",
			ErrFileTooLong, nRecords, recordSize, c.remaining())
	}
	return nil
}

// nanZeros replaces exact zeros with NaN. Zero brightness temperatures mark
// unobserved channels in the vendor format.
func nanZeros(v Var) Var {
	for i, x := range v.Data {
		if x == 0 {
			v.Data[i] = math.NaN()
		}
	}
	return v
}
