package vulkan

import (
	"sync"

	"github.com/spaghettifunk/lumen/engine/core"
)

type LockGroup string

const (
	ResourceManagement   LockGroup = "resource_management"
	DescriptorManagement LockGroup = "descriptor_management"
	PipelineManagement   LockGroup = "pipeline_management"
	CommandManagement    LockGroup = "command_management"
)

// LockPool serializes access to Vulkan objects that must be externally
// synchronized: queues per family, and pools per group.
type LockPool struct {
	mu     sync.Mutex
	locks  map[LockGroup]*sync.Mutex
	queues map[uint32]*sync.Mutex
}

func NewLockPool() *LockPool {
	return &LockPool{
		locks:  make(map[LockGroup]*sync.Mutex),
		queues: make(map[uint32]*sync.Mutex),
	}
}

func (lp *LockPool) group(g LockGroup) *sync.Mutex {
	lp.mu.Lock()
	defer lp.mu.Unlock()
	l, ok := lp.locks[g]
	if !ok {
		l = &sync.Mutex{}
		lp.locks[g] = l
	}
	return l
}

func (lp *LockPool) SafeCall(g LockGroup, fn func() error) error {
	l := lp.group(g)
	l.Lock()
	defer l.Unlock()
	return fn()
}

// SafeQueueCall runs fn holding the lock of a queue family. Families that
// share a queue share the lock.
func (lp *LockPool) SafeQueueCall(family uint32, fn func() error) error {
	lp.mu.Lock()
	l, ok := lp.queues[family]
	if !ok {
		l = &sync.Mutex{}
		lp.queues[family] = l
	}
	lp.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn()
}

// table maps the opaque gpu handles the renderer sees to backend objects.
type table[T any] struct {
	mu  sync.RWMutex
	ids *core.Identifiers[T]
}

func newTable[T any](capacity int) *table[T] {
	return &table[T]{ids: core.NewIdentifiers[T](capacity)}
}

func (t *table[T]) add(v *T) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ids.Acquire(v)
}

func (t *table[T]) get(id uint64) *T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ids.Get(id)
}

func (t *table[T]) remove(id uint64) *T {
	t.mu.Lock()
	defer t.mu.Unlock()
	v := t.ids.Get(id)
	if v != nil {
		_ = t.ids.Release(id)
	}
	return v
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ids.Len()
}

// each visits a snapshot of the live entries so fn may remove them.
func (t *table[T]) each(fn func(id uint64, v *T)) {
	type entry struct {
		id uint64
		v  *T
	}
	var live []entry
	t.mu.RLock()
	t.ids.Each(func(id uint64, v *T) { live = append(live, entry{id, v}) })
	t.mu.RUnlock()
	for _, e := range live {
		fn(e.id, e.v)
	}
}
