package program

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrAddressNotMapped is returned for accesses outside of all segments.
	ErrAddressNotMapped = errors.New("address not mapped")
	// ErrSegmentOverlap is returned when a new segment overlaps a mapped one.
	ErrSegmentOverlap = errors.New("segment overlaps mapped memory")
	// ErrInvalidWidth is returned for memory reads with an unsupported width.
	ErrInvalidWidth = errors.New("invalid read width")
)

// Segment is a mapped memory region.
type Segment struct {
	Name       string
	Start      uint64
	Data       []byte
	ReadOnly   bool
	Executable bool
}

// End returns the first address after the segment.
func (s Segment) End() uint64 {
	return s.Start + uint64(len(s.Data))
}

func (s Segment) contains(address uint64) bool {
	return address >= s.Start && address < s.End()
}

// Range is an inclusive address range.
type Range struct {
	Start uint64
	End   uint64
}

// Contains returns whether the address is inside the range.
func (r Range) Contains(address uint64) bool {
	return address >= r.Start && address <= r.End
}

// AddSegment maps a memory segment.
func (p *Program) AddSegment(seg Segment) error {
	if len(seg.Data) == 0 {
		return nil
	}
	for _, s := range p.segments {
		if seg.Start < s.End() && s.Start < seg.End() {
			return fmt.Errorf("%w: %s [%#x, %#x) and %s", ErrSegmentOverlap, seg.Name, seg.Start, seg.End(), s.Name)
		}
	}
	p.segments = append(p.segments, seg)
	slices.SortFunc(p.segments, func(a, b Segment) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	return nil
}

// Segments returns all mapped segments sorted by start address.
func (p *Program) Segments() []Segment {
	return slices.Clone(p.segments)
}

// AddReadOnly marks an address range as read-only in addition to the
// read-only segments.
func (p *Program) AddReadOnly(r Range) {
	p.readOnly = append(p.readOnly, r)
}

func (p *Program) segment(address uint64) (Segment, bool) {
	i, found := slices.BinarySearchFunc(p.segments, address, func(s Segment, addr uint64) int {
		switch {
		case s.End() <= addr:
			return -1
		case s.Start > addr:
			return 1
		default:
			return 0
		}
	})
	if !found {
		return Segment{}, false
	}
	return p.segments[i], true
}

// IsMapped returns whether the address is inside a segment.
func (p *Program) IsMapped(address uint64) bool {
	_, ok := p.segment(address)
	return ok
}

// IsExecutable returns whether the address is inside an executable segment.
func (p *Program) IsExecutable(address uint64) bool {
	seg, ok := p.segment(address)
	return ok && seg.Executable
}

// ReadBytes returns up to n bytes starting at address. Fewer bytes are
// returned at the end of a segment.
func (p *Program) ReadBytes(address uint64, n int) ([]byte, error) {
	seg, ok := p.segment(address)
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrAddressNotMapped, address)
	}
	offset := address - seg.Start
	end := min(offset+uint64(n), uint64(len(seg.Data)))
	return seg.Data[offset:end], nil
}

// ReadMemory reads a value of width bytes in the byte order of the architecture.
func (p *Program) ReadMemory(address uint64, width int) (uint64, error) {
	b, err := p.ReadBytes(address, width)
	if err != nil {
		return 0, err
	}
	if len(b) < width {
		return 0, fmt.Errorf("%w: %#x", ErrAddressNotMapped, address+uint64(len(b)))
	}

	order := p.arch.ByteOrder()
	switch width {
	case 1:
		return uint64(b[0]), nil
	case 2:
		return uint64(order.Uint16(b)), nil
	case 4:
		return uint64(order.Uint32(b)), nil
	case 8:
		return order.Uint64(b), nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidWidth, width)
	}
}

// IsReadOnly returns whether all bytes of the range are mapped read-only.
func (p *Program) IsReadOnly(address uint64, width int) bool {
	for i := range uint64(width) {
		if !p.isReadOnly(address + i) {
			return false
		}
	}
	return true
}

func (p *Program) isReadOnly(address uint64) bool {
	for _, r := range p.readOnly {
		if r.Contains(address) {
			return true
		}
	}
	seg, ok := p.segment(address)
	return ok && seg.ReadOnly
}
