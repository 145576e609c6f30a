// Package reconcile merges optimistic local inserts with the authoritative
// room feed.
package reconcile

import (
	"sort"
)

// Entity is a record that round-trips through the server.
type Entity interface {
	// ServerID is the authoritative identifier; empty for values that are not
	// independently addressable.
	ServerID() string
	// MatchKey covers the fields that survive the round trip unchanged.
	MatchKey() string
	// ServerTime orders server records; it must increase monotonically.
	ServerTime() int64
}

// Status is the lifecycle state of an optimistic entity.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Optimistic is a locally inserted value awaiting confirmation.
type Optimistic[T Entity] struct {
	LocalID string
	Value   T
	Status  Status
	// Seq is the local insertion order.
	Seq int64
	// Watermark is the lowest ServerTime a confirming record may carry.
	Watermark int64
	Err       error
}

// Item is one row of a merged view. Server rows have an empty LocalID.
type Item[T Entity] struct {
	Value   T
	LocalID string
	Status  Status
}

// View is the merged, ordered list plus the local ids confirmed by it.
type View[T Entity] struct {
	Items     []Item[T]
	Confirmed []string
}

// Values returns the entity values in view order.
func (v View[T]) Values() []T {
	values := make([]T, 0, len(v.Items))
	for _, item := range v.Items {
		values = append(values, item.Value)
	}
	return values
}

// Reconcile is a pure merge: server rows sorted by (ServerTime, ServerID)
// and de-duplicated by ServerID, followed by unmatched optimistic rows in
// insertion order. Each pending row consumes at most one server row with an
// equal MatchKey and ServerTime >= Watermark.
func Reconcile[T Entity](snapshot []T, pending []Optimistic[T]) View[T] {
	server := sortedUnique(snapshot)
	locals := make([]Optimistic[T], len(pending))
	copy(locals, pending)
	sort.SliceStable(locals, func(i, j int) bool {
		if locals[i].Seq != locals[j].Seq {
			return locals[i].Seq < locals[j].Seq
		}
		return locals[i].LocalID < locals[j].LocalID
	})

	candidates := make(map[string][]int, len(server))
	for index, value := range server {
		key := value.MatchKey()
		candidates[key] = append(candidates[key], index)
	}

	view := View[T]{Items: make([]Item[T], 0, len(server)+len(locals))}
	for _, value := range server {
		view.Items = append(view.Items, Item[T]{Value: value, Status: StatusConfirmed})
	}
	for _, local := range locals {
		if local.Status == StatusPending && claim(candidates, server, local) {
			view.Confirmed = append(view.Confirmed, local.LocalID)
			continue
		}
		if local.Status == StatusConfirmed {
			continue
		}
		view.Items = append(view.Items, Item[T]{Value: local.Value, LocalID: local.LocalID, Status: local.Status})
	}
	return view
}

func claim[T Entity](candidates map[string][]int, server []T, local Optimistic[T]) bool {
	key := local.Value.MatchKey()
	indexes := candidates[key]
	for position, index := range indexes {
		if server[index].ServerTime() < local.Watermark {
			continue
		}
		candidates[key] = append(indexes[:position:position], indexes[position+1:]...)
		return true
	}
	return false
}

func sortedUnique[T Entity](snapshot []T) []T {
	seen := make(map[string]struct{}, len(snapshot))
	out := make([]T, 0, len(snapshot))
	for _, value := range snapshot {
		if id := value.ServerID(); id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		out = append(out, value)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ServerTime() != out[j].ServerTime() {
			return out[i].ServerTime() < out[j].ServerTime()
		}
		return out[i].ServerID() < out[j].ServerID()
	})
	return out
}
