package export

import (
	"encoding/binary"
	"errors"
)

// glyphSet holds the Basic Multilingual Plane runes a TrueType font maps to a
// real glyph.
type glyphSet map[rune]struct{}

func (g glyphSet) has(r rune) bool {
	_, ok := g[r]
	return ok
}

// firstMissing returns the first rune of s the font cannot draw.
func (g glyphSet) firstMissing(s string) (rune, bool) {
	for _, r := range s {
		if !g.has(r) {
			return r, true
		}
	}
	return 0, false
}

var errNoUnicodeCmap = errors.New("font has no format 4 unicode cmap")

// parseGlyphSet reads the Windows Unicode BMP (3,1) or Unicode (0,3) cmap
// subtable of a TrueType font.
func parseGlyphSet(font []byte) (glyphSet, error) {
	r := fontReader(font)
	numTables, ok := r.u16(4)
	if !ok {
		return nil, errNoUnicodeCmap
	}
	cmap := -1
	for i := range int(numTables) {
		rec := 12 + 16*i
		if rec+16 > len(font) {
			break
		}
		if string(font[rec:rec+4]) == "cmap" {
			off, _ := r.u32(rec + 8)
			cmap = int(off)
			break
		}
	}
	if cmap < 0 {
		return nil, errNoUnicodeCmap
	}

	count, ok := r.u16(cmap + 2)
	if !ok {
		return nil, errNoUnicodeCmap
	}
	sub := -1
	for i := range int(count) {
		rec := cmap + 4 + 8*i
		platform, ok1 := r.u16(rec)
		encoding, ok2 := r.u16(rec + 2)
		off, ok3 := r.u32(rec + 4)
		if !ok1 || !ok2 || !ok3 {
			break
		}
		if (platform == 3 && encoding == 1) || (platform == 0 && encoding == 3) {
			if format, _ := r.u16(cmap + int(off)); format == 4 {
				sub = cmap + int(off)
				break
			}
		}
	}
	if sub < 0 {
		return nil, errNoUnicodeCmap
	}
	return parseCmapFormat4(r, sub)
}

func parseCmapFormat4(r fontReader, sub int) (glyphSet, error) {
	segX2, ok := r.u16(sub + 6)
	if !ok {
		return nil, errNoUnicodeCmap
	}
	segs := int(segX2) / 2
	ends := sub + 14
	starts := ends + 2*segs + 2
	deltas := starts + 2*segs
	rangeOffsets := deltas + 2*segs

	set := make(glyphSet)
	for i := range segs {
		end, ok1 := r.u16(ends + 2*i)
		start, ok2 := r.u16(starts + 2*i)
		delta, ok3 := r.u16(deltas + 2*i)
		rangeOffset, ok4 := r.u16(rangeOffsets + 2*i)
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return nil, errNoUnicodeCmap
		}
		for c := int(start); c <= int(end) && c < 0xFFFF; c++ {
			var glyph uint16
			if rangeOffset == 0 {
				glyph = uint16(c) + delta
			} else {
				g, ok := r.u16(rangeOffsets + 2*i + int(rangeOffset) + 2*(c-int(start)))
				if !ok {
					continue
				}
				if g != 0 {
					glyph = g + delta
				}
			}
			if glyph != 0 {
				set[rune(c)] = struct{}{}
			}
		}
	}
	return set, nil
}

type fontReader []byte

func (f fontReader) u16(off int) (uint16, bool) {
	if off < 0 || off+2 > len(f) {
		return 0, false
	}
	return binary.BigEndian.Uint16(f[off:]), true
}

func (f fontReader) u32(off int) (uint32, bool) {
	if off < 0 || off+4 > len(f) {
		return 0, false
	}
	return binary.BigEndian.Uint32(f[off:]), true
}
