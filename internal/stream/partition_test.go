package stream

import (
	"fmt"
	"testing"
)

func TestPartition_Stable(t *testing.T) {
	for i := 0; i < 100; i++ {
		accountID := fmt.Sprintf("acc-%d", i)
		first := partition(accountID, 3)
		for j := 0; j < 10; j++ {
			if got := partition(accountID, 3); got != first {
				t.Fatalf("partition for %s changed from %d to %d", accountID, first, got)
			}
		}
	}
}

func TestPartition_InRange(t *testing.T) {
	for workers := 1; workers <= 8; workers++ {
		for i := 0; i < 100; i++ {
			idx := partition(fmt.Sprintf("acc-%d", i), workers)
			if idx < 0 || idx >= workers {
				t.Fatalf("partition index %d out of range [0,%d)", idx, workers)
			}
		}
	}
}

func TestPartition_SpreadsAccounts(t *testing.T) {
	seen := make(map[int]bool)
	for i := 0; i < 1000; i++ {
		seen[partition(fmt.Sprintf("acc-%d", i), 3)] = true
	}
	if len(seen) != 3 {
		t.Errorf("expected 1000 accounts to touch all 3 workers, got %d", len(seen))
	}
}
