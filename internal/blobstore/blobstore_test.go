package blobstore

import (
	"testing"
	"time"
)

func TestPutThenGetHitsMemoryTier(t *testing.T) {
	s, err := New(t.TempDir(), 8, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Put("a1", KindThumbnail, []byte("blob-a1")); err != nil {
		t.Fatalf("put: %v", err)
	}
	blob, ok, err := s.Get("a1", KindThumbnail)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(blob) != "blob-a1" {
		t.Fatalf("expected a cache hit with the written blob, got ok=%v blob=%q", ok, blob)
	}
}

func TestGetMissReturnsFalseNotError(t *testing.T) {
	s, err := New(t.TempDir(), 8, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, ok, err := s.Get("missing", KindPreview)
	if err != nil {
		t.Fatalf("expected no error on a cache miss, got %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for a never-written key")
	}
}

func TestGetSurvivesMemoryEvictionViaDiskTier(t *testing.T) {
	s, err := New(t.TempDir(), 8, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Put("a1", KindThumbnail, []byte("on-disk-and-mem")); err != nil {
		t.Fatalf("put: %v", err)
	}
	s.ClearMemory()
	if got := s.MemoryLen(); got != 0 {
		t.Fatalf("expected ClearMemory to empty the in-memory tier, got len %d", got)
	}

	blob, ok, err := s.Get("a1", KindThumbnail)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok || string(blob) != "on-disk-and-mem" {
		t.Fatalf("expected the persistent tier to still serve the blob after a memory clear")
	}
}

func TestInvalidateRemovesBothTiers(t *testing.T) {
	s, err := New(t.TempDir(), 8, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Put("a1", KindPreview, []byte("x")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := s.Invalidate("a1", KindPreview); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, ok, _ := s.Get("a1", KindPreview); ok {
		t.Fatalf("expected a miss after invalidation")
	}
}

func TestInvalidateOfMissingKeyIsNotAnError(t *testing.T) {
	s, err := New(t.TempDir(), 8, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Invalidate("never-written", KindThumbnail); err != nil {
		t.Fatalf("expected invalidating an absent key to be a no-op, got %v", err)
	}
}

func TestPersistentEvictionRespectsByteBudget(t *testing.T) {
	s, err := New(t.TempDir(), 8, 10) // 10-byte persistent budget
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	if err := s.Put("old", KindThumbnail, []byte("0123456789")); err != nil {
		t.Fatalf("put old: %v", err)
	}
	time.Sleep(10 * time.Millisecond) // ensure distinct mtimes for the LRU sweep ordering
	if err := s.Put("new", KindThumbnail, []byte("abcdefghij")); err != nil {
		t.Fatalf("put new: %v", err)
	}
	s.ClearMemory() // force the next Get to consult the persistent tier, not the memory cache

	if _, ok, _ := s.Get("old", KindThumbnail); ok {
		t.Fatalf("expected the least-recently-accessed blob to be evicted once the budget is exceeded")
	}
	if _, ok, _ := s.Get("new", KindThumbnail); !ok {
		t.Fatalf("expected the most recently written blob to survive the eviction sweep")
	}
}

func TestThumbnailAndPreviewKindsAreIndependent(t *testing.T) {
	s, err := New(t.TempDir(), 8, 0)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Put("a1", KindThumbnail, []byte("thumb")); err != nil {
		t.Fatalf("put thumb: %v", err)
	}
	if _, ok, _ := s.Get("a1", KindPreview); ok {
		t.Fatalf("expected a thumbnail write not to satisfy a preview read for the same asset")
	}
}
