package sfd

import (
	"github.com/dgryski/go-farm"
)

// MapBuff is one stored payload: a header map or a grid cell block.
// A nil Data marks a cell without content.
type MapBuff struct {
	ID   string
	Data []byte
	CRC  uint32
}

func NewMapBuff(id string, data []byte) MapBuff {
	return MapBuff{ID: id, Data: data, CRC: checksum(data)}
}

// Missing reports whether the buffer is a placeholder without content.
func (m MapBuff) Missing() bool {
	return m.Data == nil
}

// Equal compares buffers by content checksum.
func (m MapBuff) Equal(other MapBuff) bool {
	return m.Missing() == other.Missing() && m.CRC == other.CRC
}

func checksum(data []byte) uint32 {
	return farm.Fingerprint32(data)
}
