// Package dag analyzes a column's version history: missing-version
// detection, presentational reconstruction hints, and depth-bounded
// pruning. The DAG is a side record for history and diagnostics; merge
// never consults it, which is why pruning can be coordination-free.
package dag

import (
	"fmt"
	"sort"

	"github.com/rowmesh/rowmesh/internal/types"
)

// History is a column's DAG, indexed by version.
type History struct {
	nodes map[uint64]types.DagNode
	head  uint64
}

// FromNodes builds a History from a storage-ordered node slice.
func FromNodes(nodes []types.DagNode) *History {
	h := &History{nodes: make(map[uint64]types.DagNode, len(nodes))}
	for _, n := range nodes {
		h.Add(n)
	}
	return h
}

// Add inserts or overrides a node by version.
func (h *History) Add(node types.DagNode) {
	h.nodes[node.Version] = node
	if node.Version > h.head {
		h.head = node.Version
	}
}

// Head returns the greatest-version node and false when empty.
func (h *History) Head() (types.DagNode, bool) {
	n, ok := h.nodes[h.head]
	return n, ok
}

// Len reports the number of nodes present.
func (h *History) Len() int {
	return len(h.nodes)
}

// Get returns the node at version, if present.
func (h *History) Get(version uint64) (types.DagNode, bool) {
	n, ok := h.nodes[version]
	return n, ok
}

func (h *History) parents(n types.DagNode) []uint64 {
	var ps []uint64
	if n.ParentVersion != 0 {
		ps = append(ps, n.ParentVersion)
	}
	if n.Parent2Version != 0 {
		ps = append(ps, n.Parent2Version)
	}
	return ps
}

// FindMissingVersions collects parent references whose version is not
// present, deduplicated and sorted. The result is a lower bound on the
// real gaps: pruned parents show up here, and the inference can name a
// version no peer ever introduced.
func (h *History) FindMissingVersions() []uint64 {
	seen := make(map[uint64]bool)
	var missing []uint64
	for _, n := range h.nodes {
		for _, p := range h.parents(n) {
			if _, ok := h.nodes[p]; !ok && !seen[p] {
				seen[p] = true
				missing = append(missing, p)
			}
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}

// ReconstructMissingVersion synthesizes a placeholder description for a
// pruned or lost version from its neighbors. It is presentational only:
// the output must never be written back into the cell store or fed to
// merge. Returns "" when no child references the version.
func (h *History) ReconstructMissingVersion(missing uint64) string {
	var child *types.DagNode
	for _, n := range h.nodes {
		for _, p := range h.parents(n) {
			if p == missing {
				node := n
				child = &node
				break
			}
		}
		if child != nil {
			break
		}
	}
	if child == nil {
		return ""
	}

	var before *types.DagNode
	for v, n := range h.nodes {
		if v < missing && (before == nil || v > before.Version) {
			node := n
			before = &node
		}
	}

	if before != nil {
		return fmt.Sprintf("[reconstructed v%d] between %q and %q",
			missing, before.Value, child.Value)
	}
	return fmt.Sprintf("[reconstructed v%d] pre-cursor to %q", missing, child.Value)
}

// TimelineEntry is one step of a reconstructed timeline.
type TimelineEntry struct {
	Version       uint64
	Description   string
	Reconstructed bool
}

// ReconstructedTimeline interleaves present nodes with reconstruction
// hints for the missing ones, version-ascending.
func (h *History) ReconstructedTimeline() []TimelineEntry {
	versions := make([]uint64, 0, len(h.nodes))
	for v := range h.nodes {
		versions = append(versions, v)
	}
	versions = append(versions, h.FindMissingVersions()...)
	sort.Slice(versions, func(i, j int) bool { return versions[i] < versions[j] })

	var entries []TimelineEntry
	var prev uint64
	for i, v := range versions {
		if i > 0 && v == prev {
			continue
		}
		prev = v
		if n, ok := h.nodes[v]; ok {
			entries = append(entries, TimelineEntry{Version: v, Description: string(n.Value)})
		} else if desc := h.ReconstructMissingVersion(v); desc != "" {
			entries = append(entries, TimelineEntry{Version: v, Description: desc, Reconstructed: true})
		}
	}
	return entries
}

// GCDepth walks parent edges from the head up to depth steps, retains
// the reached nodes, and discards the rest. The head always survives;
// parent edges of surviving nodes may dangle into pruned history.
// Returns the count removed. depth 0 removes nothing.
func (h *History) GCDepth(depth int) int {
	if depth == 0 || len(h.nodes) == 0 {
		return 0
	}

	// version -> fewest steps from the head at which it was reached
	reachable := make(map[uint64]int)
	type visit struct {
		version uint64
		depth   int
	}
	stack := []visit{{h.head, 0}}
	for len(stack) > 0 {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if d, seen := reachable[v.version]; seen && d <= v.depth {
			continue
		}
		reachable[v.version] = v.depth
		if n, ok := h.nodes[v.version]; ok {
			for _, p := range h.parents(n) {
				if v.depth+1 <= depth {
					stack = append(stack, visit{p, v.depth + 1})
				}
			}
		}
	}

	removed := 0
	for v := range h.nodes {
		if _, ok := reachable[v]; !ok {
			delete(h.nodes, v)
			removed++
		}
	}
	return removed
}

// Nodes returns the present nodes version-ascending.
func (h *History) Nodes() []types.DagNode {
	out := make([]types.DagNode, 0, len(h.nodes))
	for _, n := range h.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
