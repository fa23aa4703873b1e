// Package users resolves numeric uids to usernames with caching.
package users

import (
	"os/user"
	"sort"
	"strconv"
)

// Unknown is the synthetic username for uids with no passwd entry.
// Records owned by such uids are aggregated under this name and the raw
// uids are reported separately for operator reconciliation.
const Unknown = "UNK"

// Resolver caches uid lookups for the lifetime of one pipeline pass.
// Not safe for concurrent use; aggregation and index load run
// single-threaded.
type Resolver struct {
	cache   map[uint32]string
	unknown map[uint32]struct{}
}

// NewResolver returns an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{
		cache:   make(map[uint32]string),
		unknown: make(map[uint32]struct{}),
	}
}

// Resolve returns the username for uid, or Unknown when the uid has no
// passwd entry. Unknown uids are remembered for Unresolved.
func (r *Resolver) Resolve(uid uint32) string {
	if name, ok := r.cache[uid]; ok {
		return name
	}
	name := lookup(uid)
	r.cache[uid] = name
	if name == Unknown {
		r.unknown[uid] = struct{}{}
	}
	return name
}

// Unresolved returns the uids that resolved to Unknown, sorted.
func (r *Resolver) Unresolved() []uint32 {
	out := make([]uint32, 0, len(r.unknown))
	for uid := range r.unknown {
		out = append(out, uid)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func lookup(uid uint32) string {
	u, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil || u.Username == "" {
		return Unknown
	}
	return u.Username
}
