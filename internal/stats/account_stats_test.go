package stats

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/perchd/perchd/internal/types"
)

func TestRecordSuccess(t *testing.T) {
	r := NewRegistry()

	r.RecordSuccess("janedoe", 20, 2*time.Second)
	r.RecordSuccess("janedoe", 10, 4*time.Second)

	s, ok := r.Get("janedoe")
	if !ok {
		t.Fatal("Expected stats entry for janedoe")
	}
	if s.ScrapeCount != 2 || s.SuccessCount != 2 || s.ErrorCount != 0 {
		t.Errorf("Unexpected counts: %+v", s)
	}
	if s.AvgLatencyMs != 3000 {
		t.Errorf("Expected avg latency 3000ms, got %d", s.AvgLatencyMs)
	}
	if s.AvgPosts != 15 {
		t.Errorf("Expected avg 15 posts, got %d", s.AvgPosts)
	}
	if s.SuccessRate != 1.0 {
		t.Errorf("Expected success rate 1.0, got %f", s.SuccessRate)
	}
	if s.LastSuccessTime.IsZero() {
		t.Error("Expected last success time recorded")
	}
}

func TestRecordErrorClassification(t *testing.T) {
	r := NewRegistry()

	r.RecordError("a", types.NewRateLimitedError("a"), time.Second)
	r.RecordError("a", types.NewAuthWallError("a"), time.Second)
	r.RecordError("a", errors.New("generic failure"), time.Second)

	s, ok := r.Get("a")
	if !ok {
		t.Fatal("Expected stats entry")
	}
	if s.ErrorCount != 3 {
		t.Errorf("Expected 3 errors, got %d", s.ErrorCount)
	}
	if s.RateLimitCount != 1 {
		t.Errorf("Expected 1 rate limit, got %d", s.RateLimitCount)
	}
	if s.AuthWallCount != 1 {
		t.Errorf("Expected 1 auth wall, got %d", s.AuthWallCount)
	}
	if s.LastRateLimited.IsZero() {
		t.Error("Expected last rate limited time recorded")
	}
	if s.SuccessRate != 0 {
		t.Errorf("Expected zero success rate, got %f", s.SuccessRate)
	}
}

func TestGetUnknownAccount(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("nobody"); ok {
		t.Error("Expected no entry for untracked account")
	}
}

func TestSnapshot(t *testing.T) {
	r := NewRegistry()
	r.RecordSuccess("a", 1, time.Second)
	r.RecordSuccess("b", 2, time.Second)

	snap := r.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("Expected 2 accounts in snapshot, got %d", len(snap))
	}
	if snap["b"].AvgPosts != 2 {
		t.Errorf("Unexpected snapshot entry: %+v", snap["b"])
	}
}

func TestEviction(t *testing.T) {
	r := NewRegistry()

	for i := 0; i < maxAccounts; i++ {
		r.RecordSuccess(fmt.Sprintf("account-%d", i), 1, time.Millisecond)
	}
	if r.Len() != maxAccounts {
		t.Fatalf("Expected %d accounts, got %d", maxAccounts, r.Len())
	}

	// One more pushes past the cap and triggers a batch eviction.
	r.RecordSuccess("overflow", 1, time.Millisecond)
	if got := r.Len(); got != maxAccounts-evictionBatchSize+1 {
		t.Errorf("Expected %d accounts after eviction, got %d",
			maxAccounts-evictionBatchSize+1, got)
	}
	if _, ok := r.Get("overflow"); !ok {
		t.Error("Newly added account must survive eviction")
	}
}
