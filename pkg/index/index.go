// Package index holds the in-memory prefix tree over aggregated
// usage rows and answers subtree queries against it.
//
// The tree is built once, rolled up once, then served read-only. Any
// number of handlers may query it concurrently without locking.
package index

import (
	"strings"

	"github.com/sganis/dutopia/pkg/age"
	"github.com/sganis/dutopia/pkg/sum"
)

// Node is one path segment. After the rollup pass its stats cover the
// whole subtree, not just rows inserted directly at this node.
type Node struct {
	children map[string]*Node
	stats    map[string]*[age.NumBuckets]sum.Stats
	files    []FileEntry
}

// FileEntry is one object directly inside a folder. File listings are
// per-object, never subtree-rolled.
type FileEntry struct {
	Path     string `json:"path"`
	Owner    string `json:"owner"`
	Size     uint64 `json:"size"`
	Disk     uint64 `json:"disk"`
	Accessed int64  `json:"accessed"`
	Modified int64  `json:"modified"`
}

// FolderItem is one immediate subfolder of a queried path with its
// subtree totals under the requested user and age filters.
type FolderItem struct {
	Path  string                    `json:"path"`
	Total sum.Stats                 `json:"total"`
	Ages  [age.NumBuckets]sum.Stats `json:"ages"`
	Users map[string]sum.Stats      `json:"users"`
}

// Index is the immutable serving snapshot.
type Index struct {
	root  *Node
	users []string
}

func newNode() *Node {
	return &Node{}
}

func (n *Node) child(seg string, create bool) *Node {
	if c, ok := n.children[seg]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.children == nil {
		n.children = make(map[string]*Node)
	}
	c := newNode()
	n.children[seg] = c
	return c
}

// segments splits a normalized folder key. The root key "/" has none.
func segments(key string) []string {
	if key == "/" {
		return nil
	}
	return strings.Split(strings.TrimPrefix(key, "/"), "/")
}

// locate descends to the node for a normalized folder key.
func (ix *Index) locate(key string) *Node {
	n := ix.root
	for _, seg := range segments(key) {
		if n = n.child(seg, false); n == nil {
			return nil
		}
	}
	return n
}

func (n *Node) cell(user string, create bool) *[age.NumBuckets]sum.Stats {
	if c, ok := n.stats[user]; ok {
		return c
	}
	if !create {
		return nil
	}
	if n.stats == nil {
		n.stats = make(map[string]*[age.NumBuckets]sum.Stats)
	}
	c := new([age.NumBuckets]sum.Stats)
	n.stats[user] = c
	return c
}

// rollup folds every child's stats into n, bottom up. After it
// returns, n's stats equal the sum over its entire subtree.
func (n *Node) rollup() {
	for _, c := range n.children {
		c.rollup()
		for user, buckets := range c.stats {
			dst := n.cell(user, true)
			for b := range buckets {
				dst[b].Merge(&buckets[b])
			}
		}
	}
}

// Users returns every user name present in the tree, sorted.
func (ix *Index) Users() []string {
	return ix.users
}

// filter sums a node's rolled stats under the requested user set
// (empty means all) and age selector (age.Any means all buckets).
func (n *Node) filter(userSet map[string]bool, ageSel int) FolderItem {
	item := FolderItem{Users: make(map[string]sum.Stats)}
	for user, buckets := range n.stats {
		if len(userSet) > 0 && !userSet[user] {
			continue
		}
		var perUser sum.Stats
		for b := range buckets {
			if ageSel != age.Any && b != ageSel {
				continue
			}
			item.Ages[b].Merge(&buckets[b])
			perUser.Merge(&buckets[b])
		}
		if !perUser.Zero() {
			item.Users[user] = perUser
		}
		item.Total.Merge(&perUser)
	}
	return item
}

// Folders lists the immediate subfolders of path with subtree-rolled
// totals. The second return distinguishes a path absent from the tree
// (false) from one that is present but has nothing left after
// filtering. Results are unordered; callers sort for display.
func (ix *Index) Folders(path string, userSet map[string]bool, ageSel int) ([]FolderItem, bool) {
	key := sum.FolderKey([]byte(path))
	n := ix.locate(key)
	if n == nil {
		return nil, false
	}
	prefix := key
	if prefix != "/" {
		prefix += "/"
	}
	items := make([]FolderItem, 0, len(n.children))
	for seg, child := range n.children {
		item := child.filter(userSet, ageSel)
		if item.Total.Zero() {
			continue
		}
		item.Path = prefix + seg
		items = append(items, item)
	}
	return items, true
}

// Files lists objects directly inside path under the same filters.
func (ix *Index) Files(path string, userSet map[string]bool, ageSel int, ages age.Config, now int64) ([]FileEntry, bool) {
	key := sum.FolderKey([]byte(path))
	n := ix.locate(key)
	if n == nil {
		return nil, false
	}
	out := make([]FileEntry, 0, len(n.files))
	for _, f := range n.files {
		if len(userSet) > 0 && !userSet[f.Owner] {
			continue
		}
		// Bucket the same way aggregation did: a far-future mtime is a
		// broken clock, not a recent write.
		m := age.SanitizeTime(now, f.Modified)
		if ageSel != age.Any && int(ages.BucketOf(now, m)) != ageSel {
			continue
		}
		out = append(out, f)
	}
	return out, true
}
