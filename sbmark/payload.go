package sbmark

import (
	"crypto/rand"
	"sync"
)

// MinPutPayloadSize is the smallest payload the PUT mode accepts.
const MinPutPayloadSize = 10

// Payload is the one body buffer shared by every PUT of the process. It is
// filled on first use and never written again, so it can be handed out by reference.
type Payload struct {
	size uint64
	once sync.Once
	buf  []byte
}

func NewPayload(size uint64) *Payload {
	return &Payload{size: size}
}

func (p *Payload) Size() uint64 {
	return p.size
}

func (p *Payload) Bytes() []byte {
	p.once.Do(func() {
		p.buf = make([]byte, p.size)
		// random content so that stores can't dedupe or compress the body away
		_, _ = rand.Read(p.buf)
	})
	return p.buf
}

// ValidateForPut rejects payloads too small to be a meaningful write.
func (p *Payload) ValidateForPut() error {
	if p == nil || p.size < MinPutPayloadSize {
		var size uint64
		if p != nil {
			size = p.size
		}
		return configErrorf("object size %d is below the minimum of %d bytes", size, MinPutPayloadSize)
	}
	return nil
}
