package sbmark

import (
	"fmt"
	"sync/atomic"

	uuid "github.com/satori/go.uuid"
)

const (
	BenchKeyPrefix  = "bench"
	SeedKeyPrefix   = "seed"
	ResultKeyPrefix = "result"
)

// KeyGenerator produces object keys that are never handed out twice.
type KeyGenerator interface {
	NewKey(prefix string) string
}

// UUIDKeys builds keys like "bench-<uuid v4>".
type UUIDKeys struct{}

func (UUIDKeys) NewKey(prefix string) string {
	return prefix + "-" + uuid.NewV4().String()
}

// SequentialKeys builds keys like "bench-000001". Safe for concurrent use.
type SequentialKeys struct {
	n uint64
}

func (k *SequentialKeys) NewKey(prefix string) string {
	return fmt.Sprintf("%s-%06d", prefix, atomic.AddUint64(&k.n, 1))
}
