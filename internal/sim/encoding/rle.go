// Package encoding packs chunk tile ids for the wire.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

// TileRuns is the wire name of the run-length tile encoding: base64 of
// uvarint (palette id, run length) pairs over the chunk's ids, row-major.
const TileRuns = "PAL_RLE_U16"

var ErrBadRuns = errors.New("bad tile runs")

// EncodeTileRuns run-length encodes palette ids.
func EncodeTileRuns(ids []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for i := 0; i < len(ids); {
		id := ids[i]
		run := 1
		for i+run < len(ids) && ids[i+run] == id {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(id))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeTileRuns reverses EncodeTileRuns. The result must hold exactly want
// ids, so a truncated or padded payload is rejected rather than misdrawn.
func DecodeTileRuns(s string, want int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRuns, err)
	}
	out := make([]uint16, 0, want)
	for i := 0; i < len(raw); {
		id, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad id varint at %d", ErrBadRuns, i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad run varint at %d", ErrBadRuns, i)
		}
		i += n
		if id > 0xFFFF {
			return nil, fmt.Errorf("%w: id %d out of range", ErrBadRuns, id)
		}
		if run == 0 || run > uint64(want-len(out)) {
			return nil, fmt.Errorf("%w: run %d at %d overflows %d ids", ErrBadRuns, run, len(out), want)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(id))
		}
	}
	if len(out) != want {
		return nil, fmt.Errorf("%w: got %d ids want %d", ErrBadRuns, len(out), want)
	}
	return out, nil
}
