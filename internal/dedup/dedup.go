// Package dedup selects the not-yet-notified subset of a fetched timeline.
package dedup

import "toot2mail/internal/mastodon"

// SeenSet is the set of status identifiers already notified for one source.
type SeenSet map[string]struct{}

// Contains reports membership of a seen key.
func (s SeenSet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// SelectNew returns exactly the statuses whose seen key is absent from seen,
// preserving the relative input order. Duplicate identifiers within the
// batch are collapsed to their first occurrence. The input is never
// mutated, and absence of a previously seen status from the batch has no
// effect on the seen set.
func SelectNew(statuses []*mastodon.Status, seen SeenSet) []*mastodon.Status {
	var fresh []*mastodon.Status
	inBatch := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		key := status.SeenKey()
		if seen.Contains(key) {
			continue
		}
		if _, dup := inBatch[key]; dup {
			continue
		}
		inBatch[key] = struct{}{}
		fresh = append(fresh, status)
	}
	return fresh
}
