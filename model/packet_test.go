package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPacketCopyIsIndependent(t *testing.T) {
	p := NewPacket(3, 1024)
	c := p.Copy()

	c.Payload[0] = 0xff
	assert.Equal(t, byte(0), p.Payload[0])
	assert.Equal(t, 1024, c.Size())
	assert.EqualValues(t, 3, c.ID)
}

func TestNilPacketSize(t *testing.T) {
	var p *Packet
	assert.Zero(t, p.Size())
	assert.Nil(t, p.Copy())
}
