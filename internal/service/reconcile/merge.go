// internal/service/reconcile/merge.go

package reconcile

import (
	"sort"

	"spotit/internal/domain/spot"
)

// Delivery tracks how far a local mutation has travelled to the store
type Delivery int

const (
	// Queued mutations are waiting to be sent on the next flush
	Queued Delivery = iota
	// InFlight mutations have been handed to the store and not yet answered
	InFlight
	// Acked mutations were accepted by the store but are not yet reflected
	// in a fetched snapshot
	Acked
)

func (d Delivery) String() string {
	switch d {
	case Queued:
		return "queued"
	case InFlight:
		return "in_flight"
	case Acked:
		return "acked"
	default:
		return "unknown"
	}
}

// PendingCreate is an optimistic Spot keyed by its temporary id. ServerID is
// set once the store confirms the create.
type PendingCreate struct {
	Spot     spot.Spot
	ServerID string
	State    Delivery
}

// PendingReply is a locally appended reply
type PendingReply struct {
	Reply spot.Reply
	State Delivery
}

// Pending is the local state not yet reflected in a remote snapshot
type Pending struct {
	Creates map[string]PendingCreate
	Deletes map[string]Delivery
	Replies map[string][]PendingReply
}

// NewPending returns an empty pending set
func NewPending() Pending {
	return Pending{
		Creates: make(map[string]PendingCreate),
		Deletes: make(map[string]Delivery),
		Replies: make(map[string][]PendingReply),
	}
}

// Resolve maps a temporary id to its server id once known
func (p Pending) Resolve(id string) string {
	if pc, ok := p.Creates[id]; ok && pc.ServerID != "" {
		return pc.ServerID
	}
	return id
}

// Empty reports whether nothing is waiting on the store
func (p Pending) Empty() bool {
	return len(p.Creates) == 0 && len(p.Deletes) == 0 && len(p.Replies) == 0
}

// Merge combines a remote snapshot with pending local state into one set.
// It is pure: the same inputs always produce the same output, newest first.
func Merge(remote []spot.Spot, p Pending) []spot.Spot {
	deleted := make(map[string]struct{}, len(p.Deletes))
	for id := range p.Deletes {
		deleted[id] = struct{}{}
		deleted[p.Resolve(id)] = struct{}{}
	}

	merged := make([]spot.Spot, 0, len(remote)+len(p.Creates))
	index := make(map[string]int, len(remote)+len(p.Creates))

	for _, s := range remote {
		if _, ok := deleted[s.ID]; ok {
			continue
		}
		if _, ok := index[s.ID]; ok {
			continue
		}
		index[s.ID] = len(merged)
		merged = append(merged, s.Clone())
	}

	for tempID, pc := range p.Creates {
		id := tempID
		if pc.ServerID != "" {
			id = pc.ServerID
		}
		if _, ok := deleted[tempID]; ok {
			continue
		}
		if _, ok := deleted[id]; ok {
			continue
		}
		// The confirmed remote copy replaces the optimistic entry
		if _, ok := index[id]; ok {
			continue
		}

		s := pc.Spot.Clone()
		s.ID = id
		for i := range s.Replies {
			s.Replies[i].SpotID = id
		}
		index[id] = len(merged)
		merged = append(merged, s)
	}

	keys := make([]string, 0, len(p.Replies))
	for key := range p.Replies {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		replies := p.Replies[key]
		id := p.Resolve(key)
		i, ok := index[id]
		if !ok {
			continue
		}
		for _, pr := range replies {
			if merged[i].HasReply(pr.Reply.ID) {
				continue
			}
			r := pr.Reply
			r.SpotID = id
			merged[i].Replies = append(merged[i].Replies, r)
		}
	}

	spot.SortNewestFirst(merged)
	return merged
}
