package model

import (
	"errors"
	"math"
)

// ErrMsgPackShort is returned by DecodeMsgPack when the buffer is
// truncated mid-field.
var ErrMsgPackShort = errors.New("model: msgpack buffer truncated")

// DecodeMsgPack is the exact inverse of AppendMsgPack. It exists so the
// wire format's round-trip law (spec §8) can be verified in tests; real
// consumers of this fabric are expected to be written in another
// language and decode independently.
func DecodeMsgPack(b []byte) (OrderbookSlice, error) {
	var s OrderbookSlice
	r := reader{buf: b}

	if _, err := r.expectArray(7); err != nil {
		return s, err
	}
	lastUpdateID, err := r.readInt64()
	if err != nil {
		return s, err
	}
	s.LastUpdateID = uint64(lastUpdateID)

	if s.TimestampMs, err = r.readInt64(); err != nil {
		return s, err
	}
	if s.Spread, err = r.readFloat64(); err != nil {
		return s, err
	}
	if s.SpreadPercent, err = r.readFloat64(); err != nil {
		return s, err
	}
	if s.Midpoint, err = r.readFloat64(); err != nil {
		return s, err
	}
	if s.Bids, err = r.readLevels(); err != nil {
		return s, err
	}
	if s.Asks, err = r.readLevels(); err != nil {
		return s, err
	}
	return s, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrMsgPackShort
	}
	return nil
}

func (r *reader) expectArray(n int) (int, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	tag := r.buf[r.pos]
	r.pos++
	count := int(tag &^ 0x90)
	if tag&0xf0 != 0x90 {
		return 0, errors.New("model: expected fixarray tag")
	}
	if n >= 0 && count != n {
		return 0, errors.New("model: unexpected array length")
	}
	return count, nil
}

func (r *reader) readArrayHeader() (int, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	tag := r.buf[r.pos]
	switch {
	case tag&0xf0 == 0x90:
		r.pos++
		return int(tag &^ 0x90), nil
	case tag == 0xdc:
		if err := r.need(3); err != nil {
			return 0, err
		}
		n := int(r.buf[r.pos+1])<<8 | int(r.buf[r.pos+2])
		r.pos += 3
		return n, nil
	default:
		return 0, errors.New("model: unsupported array tag")
	}
}

func (r *reader) readFloat64() (float64, error) {
	if err := r.need(9); err != nil {
		return 0, err
	}
	if r.buf[r.pos] != 0xcb {
		return 0, errors.New("model: expected float64 tag")
	}
	r.pos++
	bits := uint64(0)
	for i := 0; i < 8; i++ {
		bits = bits<<8 | uint64(r.buf[r.pos+i])
	}
	r.pos += 8
	return math.Float64frombits(bits), nil
}

func (r *reader) readInt64() (int64, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	tag := r.buf[r.pos]
	if tag <= 0x7f || tag >= 0xe0 {
		r.pos++
		return int64(int8(tag)), nil
	}
	if tag != 0xd3 {
		return 0, errors.New("model: expected int64 tag")
	}
	if err := r.need(9); err != nil {
		return 0, err
	}
	r.pos++
	v := int64(0)
	for i := 0; i < 8; i++ {
		v = v<<8 | int64(r.buf[r.pos+i])
	}
	r.pos += 8
	return v, nil
}

func (r *reader) readLevels() ([]PriceLevel, error) {
	n, err := r.readArrayHeader()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]PriceLevel, n)
	for i := 0; i < n; i++ {
		if _, err := r.expectArray(4); err != nil {
			return nil, err
		}
		if out[i].Price, err = r.readFloat64(); err != nil {
			return nil, err
		}
		if out[i].Size, err = r.readFloat64(); err != nil {
			return nil, err
		}
		if out[i].Cumulative, err = r.readFloat64(); err != nil {
			return nil, err
		}
		if out[i].DepthPercent, err = r.readFloat64(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
