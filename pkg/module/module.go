// Package module loads compiled ACS modules.
//
// A module blob has the following little-endian layout:
//
//	header:     magic "ACS\0" | infoTableOffset int32 | codeOffset int32
//	code:       instruction words starting at codeOffset
//	strings:    NUL-terminated string data
//	info table: scriptCount, scriptCount x {number, entry, argCount},
//	            stringCount, stringCount x offset
//
// All offsets are absolute byte offsets into the blob.
package module

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Magic is the marker at the start of every module.
const Magic = "ACS\x00"

// HeaderSize is the size of the module header in bytes.
const HeaderSize = 12

// OpenScriptBase is the default script number from which scripts start
// automatically when the map loads.
const OpenScriptBase = 1000

// Script describes one compiled script.
type Script struct {
	Number   int32
	Entry    int // absolute byte offset of the first instruction
	ArgCount int
	Open     bool // starts automatically on map load
}

// Module is an immutable, loaded ACS module.
type Module struct {
	data        []byte
	codeStart   int
	codeEnd     int
	scripts     []Script
	byNumber    map[int32]int
	strings     []string
	fingerprint uint32
}

type loadOptions struct {
	charset  encoding.Encoding
	openBase int32
}

// Option configures Load.
type Option func(*loadOptions)

// WithCharset sets the encoding used to decode the string table.
// The default is code page 437.
func WithCharset(enc encoding.Encoding) Option {
	return func(o *loadOptions) {
		o.charset = enc
	}
}

// WithOpenScriptBase overrides the open script threshold.
func WithOpenScriptBase(base int32) Option {
	return func(o *loadOptions) {
		o.openBase = base
	}
}

// Load parses a module blob. The blob is copied; the caller may reuse it.
func Load(blob []byte, opts ...Option) (*Module, error) {
	o := loadOptions{
		charset:  charmap.CodePage437,
		openBase: OpenScriptBase,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if len(blob) < HeaderSize {
		return nil, loadError(ErrUndersized, 0, "header needs %d bytes, have %d", HeaderSize, len(blob))
	}
	if string(blob[:4]) != Magic {
		return nil, loadError(ErrBadMagic, 0, "magic %q", blob[:4])
	}

	data := bytes.Clone(blob)
	r := reader{data: data}

	infoOffset := int(r.int32At(4))
	codeOffset := int(r.int32At(8))
	if codeOffset < HeaderSize || codeOffset >= len(data) {
		return nil, loadError(ErrBadOffset, 8, "code offset %d", codeOffset)
	}
	if infoOffset < HeaderSize || infoOffset > len(data)-4 {
		return nil, loadError(ErrBadOffset, 4, "info table offset %d", infoOffset)
	}

	m := &Module{
		data:        data,
		codeStart:   codeOffset,
		codeEnd:     len(data),
		byNumber:    make(map[int32]int),
		fingerprint: crc32.ChecksumIEEE(data),
	}
	if infoOffset > codeOffset {
		m.codeEnd = infoOffset
	}

	r.pos = infoOffset
	scriptCount, ok := r.next()
	if !ok {
		return nil, loadError(ErrUndersized, r.pos, "script count")
	}
	if scriptCount <= 0 {
		return nil, loadError(ErrNoScripts, infoOffset, "script count %d", scriptCount)
	}
	if int64(scriptCount)*12 > int64(len(data)-r.pos) {
		return nil, loadError(ErrUndersized, r.pos, "%d script entries", scriptCount)
	}

	m.scripts = make([]Script, 0, scriptCount)
	for i := 0; i < int(scriptCount); i++ {
		at := r.pos
		number, _ := r.next()
		entry, _ := r.next()
		argCount, _ := r.next()

		s := Script{
			Number:   number,
			Entry:    int(entry),
			ArgCount: int(argCount),
		}
		if number >= o.openBase {
			s.Number -= o.openBase
			s.Open = true
		}
		if s.Entry < m.codeStart || s.Entry > m.codeEnd-4 {
			return nil, loadError(ErrCodeRange, at+4, "script %d entry %d", s.Number, s.Entry)
		}
		if s.ArgCount < 0 {
			return nil, loadError(ErrBadOffset, at+8, "script %d argument count %d", s.Number, s.ArgCount)
		}
		if _, dup := m.byNumber[s.Number]; dup {
			return nil, loadError(ErrBadOffset, at, "script %d defined twice", s.Number)
		}
		m.byNumber[s.Number] = len(m.scripts)
		m.scripts = append(m.scripts, s)
	}

	stringCount, ok := r.next()
	if !ok {
		return nil, loadError(ErrUndersized, r.pos, "string count")
	}
	if stringCount < 0 || int64(stringCount)*4 > int64(len(data)-r.pos) {
		return nil, loadError(ErrUndersized, r.pos, "%d string offsets", stringCount)
	}

	dec := o.charset.NewDecoder()
	m.strings = make([]string, 0, stringCount)
	for i := 0; i < int(stringCount); i++ {
		at := r.pos
		off, _ := r.next()
		raw, err := cString(data, int(off))
		if err != nil {
			return nil, loadError(err, at, "string %d at %d", i, off)
		}
		s, err := dec.String(raw)
		if err != nil {
			return nil, loadError(err, int(off), "string %d", i)
		}
		m.strings = append(m.strings, s)
	}

	return m, nil
}

func cString(data []byte, off int) (string, error) {
	if off < 0 || off >= len(data) {
		return "", ErrBadOffset
	}
	end := bytes.IndexByte(data[off:], 0)
	if end < 0 {
		return "", ErrBadString
	}
	return string(data[off : off+end]), nil
}

// Scripts returns the script definitions in declaration order.
func (m *Module) Scripts() []Script {
	out := make([]Script, len(m.scripts))
	copy(out, m.scripts)
	return out
}

// Script looks up a script by number.
func (m *Module) Script(number int32) (Script, bool) {
	i, ok := m.byNumber[number]
	if !ok {
		return Script{}, false
	}
	return m.scripts[i], true
}

// NumStrings returns the size of the string table.
func (m *Module) NumStrings() int {
	return len(m.strings)
}

// String returns an entry of the string table.
func (m *Module) String(index int32) (string, bool) {
	if index < 0 || int(index) >= len(m.strings) {
		return "", false
	}
	return m.strings[index], true
}

// Word reads the instruction word at the absolute byte offset off.
// Reads outside the code region fail with ErrCodeRange.
func (m *Module) Word(off int) (int32, error) {
	if off < m.codeStart || off > m.codeEnd-4 {
		return 0, fmt.Errorf("read at %d: %w", off, ErrCodeRange)
	}
	return int32(binary.LittleEndian.Uint32(m.data[off:])), nil
}

// InCode reports whether off is a valid instruction address.
func (m *Module) InCode(off int) bool {
	return off >= m.codeStart && off <= m.codeEnd-4
}

// CodeRange returns the code region as [start, end).
func (m *Module) CodeRange() (start, end int) {
	return m.codeStart, m.codeEnd
}

// Fingerprint identifies the exact blob the module was loaded from.
func (m *Module) Fingerprint() uint32 {
	return m.fingerprint
}

// Size returns the blob size in bytes.
func (m *Module) Size() int {
	return len(m.data)
}

type reader struct {
	data []byte
	pos  int
}

func (r *reader) int32At(off int) int32 {
	return int32(binary.LittleEndian.Uint32(r.data[off:]))
}

func (r *reader) next() (int32, bool) {
	if r.pos < 0 || r.pos > len(r.data)-4 {
		return 0, false
	}
	v := r.int32At(r.pos)
	r.pos += 4
	return v, true
}
