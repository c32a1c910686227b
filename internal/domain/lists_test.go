package domain

import (
	"reflect"
	"testing"
)

func completePage(t *testing.T, r *ListReconciler, key string, filters map[string]string, page int, ids []string, pg Pagination) {
	t.Helper()
	if !r.Begin(key, page) {
		t.Fatalf("expected Begin(%s, %d) to be accepted", key, page)
	}
	r.Complete(key, filters, page, ids, pg)
}

func TestListReconciler_PageOneReloadIsIdempotent(t *testing.T) {
	r := NewListReconciler(nil)
	ids := []string{"a", "b", "c"}

	completePage(t, r, "friends", nil, 1, ids, Pagination{Page: 1, TotalPages: 2})
	completePage(t, r, "friends", nil, 1, ids, Pagination{Page: 1, TotalPages: 2})

	got, loaded := r.Snapshot("friends")
	if !loaded {
		t.Fatalf("expected list loaded")
	}
	if !reflect.DeepEqual(got, ids) {
		t.Fatalf("expected identical sequence after reload, got %v", got)
	}
}

func TestListReconciler_LaterPagesAppendWithoutDuplicates(t *testing.T) {
	r := NewListReconciler(nil)

	completePage(t, r, "feed", nil, 1, []string{"a", "b", "c"}, Pagination{Page: 1, TotalPages: 2})
	// Overlap from shifted server-side pagination: c appears again on page 2.
	completePage(t, r, "feed", nil, 2, []string{"c", "d", "e"}, Pagination{Page: 2, TotalPages: 2})

	got, _ := r.Snapshot("feed")
	want := []string{"a", "b", "c", "d", "e"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if r.HasMore("feed") {
		t.Fatalf("expected no more pages")
	}
}

func TestListReconciler_FilterChangeReplacesSequence(t *testing.T) {
	r := NewListReconciler(nil)

	completePage(t, r, "search", map[string]string{"q": "ali"}, 1, []string{"a", "b"}, Pagination{Page: 1, TotalPages: 3})
	completePage(t, r, "search", map[string]string{"q": "ali"}, 2, []string{"c"}, Pagination{Page: 2, TotalPages: 3})
	// Same page number, different filter: must replace, not append.
	completePage(t, r, "search", map[string]string{"q": "bob"}, 2, []string{"x", "y"}, Pagination{Page: 2, TotalPages: 2})

	got, _ := r.Snapshot("search")
	want := []string{"x", "y"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected filter change to replace sequence, got %v", got)
	}
}

func TestListReconciler_BeginRejectsConcurrentLoads(t *testing.T) {
	r := NewListReconciler(nil)

	if !r.Begin("friends", 1) {
		t.Fatalf("expected first Begin accepted")
	}
	if r.Begin("friends", 2) {
		t.Fatalf("expected second Begin rejected while first in flight")
	}
	r.Abort("friends")
	if !r.Begin("friends", 2) {
		t.Fatalf("expected Begin accepted after abort")
	}
}

func TestListReconciler_ReleasedListDropsLateResults(t *testing.T) {
	r := NewListReconciler(nil)

	completePage(t, r, "search", nil, 1, []string{"a"}, Pagination{Page: 1, TotalPages: 2})
	if !r.Begin("search", 2) {
		t.Fatalf("expected Begin accepted")
	}
	r.Release("search")
	r.Complete("search", nil, 2, []string{"b"}, Pagination{Page: 2, TotalPages: 2})

	got, _ := r.Snapshot("search")
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Fatalf("expected released list untouched, got %v", got)
	}
}

func TestListReconciler_SnapshotDistinguishesEmptyFromUnloaded(t *testing.T) {
	r := NewListReconciler(nil)

	if _, loaded := r.Snapshot("friends"); loaded {
		t.Fatalf("expected unloaded list")
	}
	completePage(t, r, "friends", nil, 1, nil, Pagination{Page: 1, TotalPages: 1})
	got, loaded := r.Snapshot("friends")
	if !loaded {
		t.Fatalf("expected loaded after empty page")
	}
	if len(got) != 0 {
		t.Fatalf("expected empty sequence, got %v", got)
	}
}

func TestListReconciler_ResetReturnsToUnloaded(t *testing.T) {
	r := NewListReconciler(nil)

	completePage(t, r, "friends", nil, 1, []string{"a"}, Pagination{Page: 1, TotalPages: 1})
	r.Reset("friends")

	if _, loaded := r.Snapshot("friends"); loaded {
		t.Fatalf("expected reset list to report unloaded")
	}
}
