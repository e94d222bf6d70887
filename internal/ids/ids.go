// Package ids generates identifiers for tasks, connections and
// bad-message snapshots. It replaces the teacher's crypto/rand+hex
// helper (internal/util/ids.go in the source repo) with a real UUID
// library.
package ids

import "github.com/hashicorp/go-uuid"

// New returns a random UUIDv4 string.
func New() (string, error) {
	return uuid.GenerateUUID()
}

// MustNew panics if UUID generation fails — acceptable only at process
// start-up or in tests, never on a hot path.
func MustNew() string {
	id, err := New()
	if err != nil {
		panic(err)
	}
	return id
}
