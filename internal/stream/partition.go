package stream

import (
	"hash/fnv"
)

// partition maps an account ID to a worker index by consistent hashing, so
// every event for a given account is handled by the same worker and window
// state needs no cross-worker locking.
func partition(accountID string, workerCount int) int {
	h := fnv.New32a()
	h.Write([]byte(accountID))
	return int(h.Sum32() % uint32(workerCount))
}
