package store

import (
	"hash/fnv"
	"sync"

	"github.com/causeway-data/causeway/stamp"
)

const lockStripes = 64

// keyLocks serializes writes to the same artifact key. Striping bounds the
// memory cost at a fixed number of mutexes; two distinct keys hashing to the
// same stripe merely wait on each other.
type keyLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyLocks) lock(obj Object, at stamp.Stamp) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(obj.TypeName))
	h.Write([]byte{0})
	h.Write([]byte(obj.LogicalID))
	h.Write([]byte{0})
	h.Write([]byte(at.String()))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
