package sim

import (
	"encoding/binary"
	"math"
)

// AppendState appends a canonical little-endian encoding of every
// rollback-tracked field to dst. Players are written by handle, bombs and
// explosions by ascending ID, so equal worlds always encode to equal bytes.
func (w *World) AppendState(dst []byte) []byte {
	le := binary.LittleEndian

	dst = le.AppendUint64(dst, uint64(w.frame)) //nolint:gosec // frame is never negative
	dst = le.AppendUint32(dst, uint32(w.nextID))

	dst = le.AppendUint16(dst, uint16(len(w.players))) //nolint:gosec // at most MaxPlayers
	for i := range w.players {
		p := &w.players[i]
		dst = le.AppendUint16(dst, uint16(p.Handle)) //nolint:gosec // dense small handle
		dst = appendVec(dst, p.Pos)
		dst = appendBool(dst, p.FireHeld)
		for _, s := range p.Bag {
			dst = append(dst, byte(s.Kind))
			dst = le.AppendUint32(dst, uint32(s.Bomb))
			dst = le.AppendUint32(dst, s.Fuse)
		}
	}

	dst = le.AppendUint32(dst, uint32(len(w.bombs))) //nolint:gosec // bounded by players*capacity
	for _, b := range w.bombs {
		dst = le.AppendUint32(dst, uint32(b.ID))
		dst = le.AppendUint16(dst, uint16(b.Owner)) //nolint:gosec // dense small handle
		dst = append(dst, b.Slot)
		dst = appendVec(dst, b.Pos)
		dst = le.AppendUint64(dst, uint64(b.ArmedAt)) //nolint:gosec // tick is never negative
	}

	dst = le.AppendUint32(dst, uint32(len(w.explosions))) //nolint:gosec // bounded
	for _, e := range w.explosions {
		dst = le.AppendUint32(dst, uint32(e.ID))
		dst = appendVec(dst, e.Pos)
		dst = append(dst, e.Frame)
		dst = le.AppendUint64(dst, uint64(e.Elapsed))   //nolint:gosec // elapsed is never negative
		dst = le.AppendUint64(dst, uint64(e.SpawnedAt)) //nolint:gosec // tick is never negative
	}
	return dst
}

func appendVec(dst []byte, v Vec2) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.X))
	return binary.LittleEndian.AppendUint32(dst, math.Float32bits(v.Y))
}

func appendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}
