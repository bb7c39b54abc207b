package server

import (
	"encoding/binary"
	"fmt"
	"math"

	"consensus-engine/control"
)

const (
	FrameMagic   = 0x4346 // little endian for 'F' 'C'
	FrameVersion = 1
	FrameHdrLen  = 16
	FrameWrapLen = FrameHdrLen + 2 // header plus crc16 trailer

	TypeSnapshot = 0x01
	TypeCommand  = 0x02

	FlagDefer    = 0x01
	FlagFailsafe = 0x02

	maxIDLen = math.MaxUint8
)

type FrameHeader struct {
	Magic   uint16
	Version uint8
	Type    uint8
	Tick    uint64
	BodyLen int
}

// ParseHeader parses and checks the frame header at the start of data.
func ParseHeader(data []byte) (*FrameHeader, error) {
	if len(data) < FrameHdrLen {
		return nil, fmt.Errorf("packet too short")
	}
	magic := binary.LittleEndian.Uint16(data[0:2])
	if magic != FrameMagic {
		return nil, fmt.Errorf("invalid magic: 0x%x", magic)
	}
	hdr := &FrameHeader{
		Magic:   magic,
		Version: data[2],
		Type:    data[3],
		Tick:    binary.LittleEndian.Uint64(data[4:12]),
		BodyLen: int(binary.LittleEndian.Uint32(data[12:16])),
	}
	if hdr.Version != FrameVersion {
		return nil, fmt.Errorf("unsupported version %d", hdr.Version)
	}
	return hdr, nil
}

// body returns the checked body of a frame of the given type.
func body(data []byte, typ uint8) (*FrameHeader, []byte, error) {
	hdr, err := ParseHeader(data)
	if err != nil {
		return nil, nil, err
	}
	if hdr.Type != typ {
		return nil, nil, fmt.Errorf("unexpected frame type 0x%02x", hdr.Type)
	}
	end := FrameHdrLen + hdr.BodyLen
	if end+2 > len(data) {
		return nil, nil, fmt.Errorf("frame body truncated")
	}
	if crc := binary.LittleEndian.Uint16(data[end : end+2]); crc != crc16(data[:end]) {
		return nil, nil, fmt.Errorf("crc mismatch")
	}
	return hdr, data[FrameHdrLen:end], nil
}

func wrap(typ uint8, tick uint64, b []byte) ([]byte, error) {
	if FrameWrapLen+len(b) > MaxPacketSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds %d", FrameWrapLen+len(b), MaxPacketSize)
	}
	out := make([]byte, FrameHdrLen, FrameWrapLen+len(b))
	binary.LittleEndian.PutUint16(out[0:], FrameMagic)
	out[2] = FrameVersion
	out[3] = typ
	binary.LittleEndian.PutUint64(out[4:], tick)
	binary.LittleEndian.PutUint32(out[12:], uint32(len(b)))
	out = append(out, b...)
	return binary.LittleEndian.AppendUint16(out, crc16(out)), nil
}

// EncodeSnapshot serializes a frame as a snapshot datagram.
func EncodeSnapshot(f *control.Frame) ([]byte, error) {
	if f.Len() > math.MaxUint16 {
		return nil, fmt.Errorf("too many vehicles: %d", f.Len())
	}
	b := binary.LittleEndian.AppendUint64(nil, math.Float64bits(f.TickDuration()))
	b = binary.LittleEndian.AppendUint16(b, uint16(f.Len()))
	var err error
	for _, v := range f.Vehicles() {
		if b, err = appendID(b, v.ID); err != nil {
			return nil, err
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(int32(v.Slot)))
		for _, x := range []float64{v.Speed, v.PrevSpeed, v.Position, v.Position2D[0], v.Position2D[1], v.Headway} {
			b = binary.LittleEndian.AppendUint64(b, math.Float64bits(x))
		}
		if b, err = appendID(b, v.Leader); err != nil {
			return nil, err
		}
	}
	return wrap(TypeSnapshot, f.Tick(), b)
}

// DecodeSnapshot parses a snapshot datagram into a frame. A negative slot
// means the simulator assigned none; it is derived from the id's numeric
// suffix when there is one.
func DecodeSnapshot(data []byte) (*control.Frame, error) {
	hdr, b, err := body(data, TypeSnapshot)
	if err != nil {
		return nil, err
	}
	r := &reader{b: b}
	dt := r.float()
	n := int(r.u16())
	snaps := make([]control.Snapshot, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		s := control.Snapshot{ID: r.id()}
		s.Slot = int(int32(r.u32()))
		if s.Slot < 0 {
			if slot, ok := control.SlotFromID(s.ID); ok {
				s.Slot = slot
			}
		}
		s.Speed = r.float()
		s.PrevSpeed = r.float()
		s.Position = r.float()
		s.Position2D = [2]float64{r.float(), r.float()}
		s.Headway = r.float()
		s.Leader = r.id()
		snaps = append(snaps, s)
	}
	if r.err != nil {
		return nil, fmt.Errorf("snapshot: %w", r.err)
	}
	return control.NewFrame(hdr.Tick, dt, snaps)
}

// EncodeCommands serializes the commands answering tick.
func EncodeCommands(tick uint64, cmds []control.Command) ([]byte, error) {
	if len(cmds) > math.MaxUint16 {
		return nil, fmt.Errorf("too many commands: %d", len(cmds))
	}
	b := binary.LittleEndian.AppendUint16(nil, uint16(len(cmds)))
	var err error
	for _, c := range cmds {
		if b, err = appendID(b, c.ID); err != nil {
			return nil, err
		}
		var flags uint8
		if c.Defer {
			flags |= FlagDefer
		}
		if c.Failsafe {
			flags |= FlagFailsafe
		}
		b = append(b, flags)
		b = binary.LittleEndian.AppendUint64(b, math.Float64bits(c.Accel))
	}
	return wrap(TypeCommand, tick, b)
}

// DecodeCommands parses a command datagram. Raw law outputs are not carried.
func DecodeCommands(data []byte) (uint64, []control.Command, error) {
	hdr, b, err := body(data, TypeCommand)
	if err != nil {
		return 0, nil, err
	}
	r := &reader{b: b}
	n := int(r.u16())
	cmds := make([]control.Command, 0, n)
	for i := 0; i < n && r.err == nil; i++ {
		c := control.Command{ID: r.id()}
		flags := r.u8()
		c.Defer = flags&FlagDefer != 0
		c.Failsafe = flags&FlagFailsafe != 0
		c.Accel = r.float()
		cmds = append(cmds, c)
	}
	if r.err != nil {
		return 0, nil, fmt.Errorf("commands: %w", r.err)
	}
	return hdr.Tick, cmds, nil
}

func appendID(b []byte, id string) ([]byte, error) {
	if len(id) > maxIDLen {
		return nil, fmt.Errorf("vehicle id %q longer than %d bytes", id, maxIDLen)
	}
	b = append(b, uint8(len(id)))
	return append(b, id...), nil
}

// reader decodes little endian fields and remembers the first short read.
type reader struct {
	b   []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.b) {
		r.err = fmt.Errorf("truncated at offset %d", r.off)
		return nil
	}
	p := r.b[r.off : r.off+n]
	r.off += n
	return p
}

func (r *reader) u8() uint8 {
	if p := r.take(1); p != nil {
		return p[0]
	}
	return 0
}

func (r *reader) u16() uint16 {
	if p := r.take(2); p != nil {
		return binary.LittleEndian.Uint16(p)
	}
	return 0
}

func (r *reader) u32() uint32 {
	if p := r.take(4); p != nil {
		return binary.LittleEndian.Uint32(p)
	}
	return 0
}

func (r *reader) float() float64 {
	if p := r.take(8); p != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(p))
	}
	return 0
}

func (r *reader) id() string {
	n := int(r.u8())
	return string(r.take(n))
}

// crc16 is CRC-16/XMODEM (poly 0x1021, init 0).
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = (crc << 1) ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
