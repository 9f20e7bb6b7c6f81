package model

// Packet is an opaque payload. Only its size matters to the link models.
type Packet struct {
	ID      uint64
	Payload []byte
}

// NewPacket returns a zero-filled packet of size bytes.
func NewPacket(id uint64, size int) *Packet {
	if size < 0 {
		size = 0
	}
	return &Packet{ID: id, Payload: make([]byte, size)}
}

// Size returns the payload length in bytes.
func (p *Packet) Size() int {
	if p == nil {
		return 0
	}
	return len(p.Payload)
}

// Copy returns a deep copy.
func (p *Packet) Copy() *Packet {
	if p == nil {
		return nil
	}
	return &Packet{ID: p.ID, Payload: append([]byte(nil), p.Payload...)}
}
