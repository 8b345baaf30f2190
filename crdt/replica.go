package crdt

import "github.com/google/uuid"

// NewReplicaID returns a random identifier suitable for a counter owner.
// Identifiers must be unique across replicas and stable for the lifetime of a
// replica; reusing an identifier of another replica breaks convergence.
func NewReplicaID() string {
	return uuid.NewString()
}
