// Package telemetry encodes simulation samples as CAN frames and streams
// them to a SocketCAN interface or a candump-style log.
package telemetry

import (
	"fmt"
	"math"
	"sort"

	"go.einride.tech/can"
)

// Signal is a little-endian scaled field of a frame. Key names the sample
// value it carries.
type Signal struct {
	Name   string
	Key    string
	Start  uint8
	Length uint8
	Signed bool
	Factor float64
	Offset float64
	Unit   string
}

type FrameDef struct {
	ID      uint32
	Name    string
	Length  uint8
	Signals []Signal
}

// Map is a set of frame definitions indexed by id and name.
type Map struct {
	byID   map[uint32]*FrameDef
	byName map[string]*FrameDef
}

func NewMap(frames ...FrameDef) (*Map, error) {
	m := &Map{byID: make(map[uint32]*FrameDef), byName: make(map[string]*FrameDef)}
	for i := range frames {
		fd := frames[i]
		if fd.Length == 0 || fd.Length > 8 {
			return nil, fmt.Errorf("telemetry: frame %s has invalid length %d", fd.Name, fd.Length)
		}
		if _, dup := m.byID[fd.ID]; dup {
			return nil, fmt.Errorf("telemetry: duplicate frame id 0x%X", fd.ID)
		}
		for _, s := range fd.Signals {
			if s.Length == 0 || s.Length > 64 || int(s.Start)+int(s.Length) > 8*int(fd.Length) {
				return nil, fmt.Errorf("telemetry: signal %s.%s does not fit the frame", fd.Name, s.Name)
			}
			if s.Factor == 0 {
				return nil, fmt.Errorf("telemetry: signal %s.%s has zero factor", fd.Name, s.Name)
			}
		}
		m.byID[fd.ID] = &fd
		m.byName[fd.Name] = &fd
	}
	return m, nil
}

func (m *Map) FrameByName(name string) (*FrameDef, error) {
	fd, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("telemetry: unknown frame %q", name)
	}
	return fd, nil
}

func (m *Map) FrameByID(id uint32) (*FrameDef, error) {
	fd, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("telemetry: unknown frame id 0x%X", id)
	}
	return fd, nil
}

// Frames lists the definitions ordered by id.
func (m *Map) Frames() []*FrameDef {
	out := make([]*FrameDef, 0, len(m.byID))
	for _, fd := range m.byID {
		out = append(out, fd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// rawRange is the representable raw interval of a signal.
func rawRange(s Signal) (lo, hi int64) {
	if s.Length >= 64 {
		if s.Signed {
			return math.MinInt64, math.MaxInt64
		}
		return 0, math.MaxInt64
	}
	if s.Signed {
		return -(1 << (s.Length - 1)), 1<<(s.Length-1) - 1
	}
	return 0, 1<<s.Length - 1
}

// Encode packs the sample values of one frame. Missing keys encode as the
// physical value zero; out-of-range values saturate.
func (fd *FrameDef) Encode(sample map[string]float64) can.Frame {
	f := can.Frame{ID: fd.ID, Length: fd.Length}
	for _, s := range fd.Signals {
		v := sample[s.Key]
		if math.IsNaN(v) {
			v = 0
		}
		lo, hi := rawRange(s)
		raw := math.Round((v - s.Offset) / s.Factor)
		r := int64(math.Max(float64(lo), math.Min(float64(hi), raw)))
		if s.Signed {
			f.Data.SetSignedBitsLittleEndian(s.Start, s.Length, r)
		} else {
			f.Data.SetUnsignedBitsLittleEndian(s.Start, s.Length, uint64(r))
		}
	}
	return f
}

// Decode returns the physical values of frame keyed by signal Key.
func (fd *FrameDef) Decode(frame can.Frame) (map[string]float64, error) {
	if frame.ID != fd.ID {
		return nil, fmt.Errorf("telemetry: frame 0x%X is not %s", frame.ID, fd.Name)
	}
	if frame.Length < fd.Length {
		return nil, fmt.Errorf("telemetry: frame %s expects length %d, got %d", fd.Name, fd.Length, frame.Length)
	}
	out := make(map[string]float64, len(fd.Signals))
	for _, s := range fd.Signals {
		var raw float64
		if s.Signed {
			raw = float64(frame.Data.SignedBitsLittleEndian(s.Start, s.Length))
		} else {
			raw = float64(frame.Data.UnsignedBitsLittleEndian(s.Start, s.Length))
		}
		out[s.Key] = raw*s.Factor + s.Offset
	}
	return out, nil
}

// Encode produces one frame per definition, in id order.
func (m *Map) Encode(sample map[string]float64) []can.Frame {
	frames := m.Frames()
	out := make([]can.Frame, len(frames))
	for i, fd := range frames {
		out[i] = fd.Encode(sample)
	}
	return out
}

func (m *Map) Decode(frame can.Frame) (map[string]float64, error) {
	fd, err := m.FrameByID(frame.ID)
	if err != nil {
		return nil, err
	}
	return fd.Decode(frame)
}
