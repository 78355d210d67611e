package domain

// Hasher is the core port for any hashing strategy. The store watcher uses
// it to fingerprint file contents and suppress duplicate change events.
type Hasher interface {
	Hash(data []byte) string
}
