package store

// SetWriteHook installs hook on a store created by NewMemory. It is a no-op
// for every other backend.
func SetWriteHook(s Store, hook WriteHook) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.hook = hook
	}
}

// Seed writes a document at an explicit version into a memory store,
// bypassing version checks and hooks.
func Seed(s Store, collection, ref string, version int, data []byte) {
	if mem, ok := s.(*memoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.collection(collection)[ref] = entry{version: version, data: clone(data)}
	}
}
