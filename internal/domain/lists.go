package domain

import (
	"log/slog"
	"sort"
	"strings"
	"sync"
)

// ListReconciler manages ordered, paginated id collections backed by the
// entity store. List state only holds ids; the records themselves live in the
// store, so two lists referencing the same entity can never disagree.
type ListReconciler struct {
	mu     sync.Mutex
	logger *slog.Logger
	lists  map[string]*listState
}

type listState struct {
	ids        []string
	members    map[string]struct{}
	page       int
	totalPages int
	loaded     bool
	filterSig  string
	inflight   int
	released   bool
}

func NewListReconciler(logger *slog.Logger) *ListReconciler {
	if logger == nil {
		logger = slog.Default().With("component", "lists")
	}

	return &ListReconciler{logger: logger, lists: make(map[string]*listState)}
}

// Begin marks a page load as in flight. It returns false while another page
// for the same key is already loading; callers must skip the fetch then.
func (r *ListReconciler) Begin(listKey string, page int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.ensure(listKey)
	if st.inflight != 0 {
		r.logger.Debug("page load ignored: another in flight", "list", listKey, "page", page, "inflight", st.inflight)

		return false
	}
	st.inflight = page

	return true
}

// Abort clears the in-flight marker after a failed fetch.
func (r *ListReconciler) Abort(listKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.lists[listKey]; ok {
		st.inflight = 0
	}
}

// Complete applies a fetched page. Page one, or any page after the filter
// signature changed, replaces the sequence; later pages append only ids not
// already present, preserving arrival order. Completing a released key clears
// the in-flight marker but leaves the list untouched: the entities were
// already merged into the store by the caller.
func (r *ListReconciler) Complete(listKey string, filters map[string]string, page int, ids []string, pg Pagination) {
	sig := filterSignature(filters)

	r.mu.Lock()
	defer r.mu.Unlock()

	st := r.ensure(listKey)
	st.inflight = 0
	if st.released {
		r.logger.Debug("page result dropped: list released", "list", listKey, "page", page)

		return
	}

	replace := page <= 1 || sig != st.filterSig
	if replace {
		st.ids = st.ids[:0]
		st.members = make(map[string]struct{})
	}
	for _, id := range ids {
		if _, seen := st.members[id]; seen {
			continue
		}
		st.members[id] = struct{}{}
		st.ids = append(st.ids, id)
	}
	st.loaded = true
	st.filterSig = sig
	st.page = pg.Page
	st.totalPages = pg.TotalPages
}

// Reset forgets the list entirely, returning it to the not-yet-loaded state.
func (r *ListReconciler) Reset(listKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.lists, listKey)
}

// ResetAll drops every list. Used on logout.
func (r *ListReconciler) ResetAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = make(map[string]*listState)
}

// Release marks the list's consumer as gone. In-flight results still merge
// into the entity store but no longer touch this list.
func (r *ListReconciler) Release(listKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st := r.ensure(listKey)
	st.released = true
}

// Snapshot returns the ordered ids and whether the list has ever completed a
// load. An empty loaded list is distinct from a list that was never fetched,
// so renderers can tell an empty state from a loading state.
func (r *ListReconciler) Snapshot(listKey string) ([]string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.lists[listKey]
	if !ok {
		return nil, false
	}

	return append([]string(nil), st.ids...), st.loaded
}

func (r *ListReconciler) HasMore(listKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.lists[listKey]
	if !ok {
		return false
	}

	return st.page < st.totalPages
}

func (r *ListReconciler) ensure(listKey string) *listState {
	st, ok := r.lists[listKey]
	if !ok {
		st = &listState{members: make(map[string]struct{})}
		r.lists[listKey] = st
	}

	return st
}

func filterSignature(filters map[string]string) string {
	if len(filters) == 0 {
		return ""
	}
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(filters[k])
		b.WriteByte('&')
	}

	return b.String()
}
