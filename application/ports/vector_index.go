package ports

import "unimem/domain/core/valueobjects"

// IndexEntry is one cached vector.
type IndexEntry struct {
	ID      string
	OwnerID string
	Vector  valueobjects.Vector
}

// VectorIndex is the in-memory read model used for similarity search.
// It is never authoritative: the durable stores are rebuilt into it at startup.
type VectorIndex interface {
	Insert(entry IndexEntry)
	Remove(id string)
	Get(id string) (IndexEntry, bool)
	Len() int

	// ScanOwner calls fn for each of ownerID's entries while holding the index lock.
	// fn must not call back into the index. Returning false stops the scan.
	ScanOwner(ownerID string, fn func(entry IndexEntry) bool)

	// OwnerIDs returns the cached memory ids belonging to ownerID.
	OwnerIDs(ownerID string) []string
}
