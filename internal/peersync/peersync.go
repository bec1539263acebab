// Package peersync implements the pairwise and mesh sync protocol:
// head exchange, changeset construction, and reciprocal merge.
//
// Convergence comes from the merge algorithm, not from ordering. Under
// LexicographicMin pairwise sync is commutative and idempotent; the
// asymmetric policies converge only when every pair agrees on the
// winner role.
package peersync

import (
	"context"
	"fmt"

	"github.com/rowmesh/rowmesh/internal/table"
	"github.com/rowmesh/rowmesh/internal/types"
)

// HeadExchange is a peer's published head view:
// {pk -> {col -> version}} for every row.
type HeadExchange struct {
	PeerID string                       `json:"peer_id,omitempty"`
	Heads  map[string]map[string]uint64 `json:"heads"`
}

// HeadsOf computes a table's head view.
func HeadsOf(ctx context.Context, t *table.Table) (*HeadExchange, error) {
	heads := make(map[string]map[string]uint64)
	pks, err := t.PKs(ctx)
	if err != nil {
		return nil, err
	}
	for _, pk := range pks {
		row, err := t.Get(ctx, pk)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		colVersions := make(map[string]uint64)
		for _, col := range row.Columns() {
			colVersions[col] = row.Version(col)
		}
		heads[pk] = colVersions
	}
	return &HeadExchange{Heads: heads}, nil
}

// Version returns the advertised version for (pk, col), 0 when the
// remote has never heard of it.
func (he *HeadExchange) Version(pk, col string) uint64 {
	if he == nil {
		return 0
	}
	return he.Heads[pk][col]
}

// BuildChangeset collects every cell of t whose version meets or
// exceeds the remote's advertised version. A pk unknown to the remote
// contributes all of its cells. Equal versions are included because a
// same-version divergence is invisible in the head vector; the receiver
// skips them when the values agree and resolves the conflict when they
// do not.
func BuildChangeset(ctx context.Context, t *table.Table, remote *HeadExchange) (*types.Changeset, error) {
	cs := types.NewChangeset()
	pks, err := t.PKs(ctx)
	if err != nil {
		return nil, err
	}
	for _, pk := range pks {
		row, err := t.Get(ctx, pk)
		if err != nil {
			return nil, err
		}
		if row == nil {
			continue
		}
		rc := types.RowChange{
			Columns:  make(map[string][]byte),
			Versions: make(map[string]uint64),
		}
		for _, col := range row.Columns() {
			local := row.Version(col)
			if local >= remote.Version(pk, col) {
				rc.Columns[col] = row.Value(col)
				rc.Versions[col] = local
			}
		}
		if len(rc.Columns) > 0 {
			cs.Changes[pk] = rc
		}
	}
	return cs, nil
}

// SyncResult reports one pairwise session.
type SyncResult struct {
	AToB             types.MergeReport `json:"a_to_b"`
	BToA             types.MergeReport `json:"b_to_a"`
	BytesTransferred int               `json:"bytes_transferred"`
}

// TotalChanges is the number of cells written on either side.
func (r SyncResult) TotalChanges() int {
	return r.AToB.TotalChanges() + r.BToA.TotalChanges()
}

// TotalConflicts is the number of equal-version conflicts seen on
// either side.
func (r SyncResult) TotalConflicts() int {
	return r.AToB.Conflicts + r.BToA.Conflicts
}

// SyncSession runs pairwise sessions under one policy.
type SyncSession struct {
	Policy types.TieBreakPolicy
}

// NewSession returns a session with the given policy.
func NewSession(policy types.TieBreakPolicy) *SyncSession {
	return &SyncSession{Policy: policy}
}

// Sync runs one pairwise session: both peers publish heads, both build
// deltas against the other's heads, both merge. The AToB report is what
// b's merge of a's changeset produced, and vice versa.
func (s *SyncSession) Sync(ctx context.Context, a, b *table.Table) (SyncResult, error) {
	headsA, err := HeadsOf(ctx, a)
	if err != nil {
		return SyncResult{}, fmt.Errorf("heads of a: %w", err)
	}
	headsB, err := HeadsOf(ctx, b)
	if err != nil {
		return SyncResult{}, fmt.Errorf("heads of b: %w", err)
	}

	csAToB, err := BuildChangeset(ctx, a, headsB)
	if err != nil {
		return SyncResult{}, fmt.Errorf("changeset a->b: %w", err)
	}
	csBToA, err := BuildChangeset(ctx, b, headsA)
	if err != nil {
		return SyncResult{}, fmt.Errorf("changeset b->a: %w", err)
	}

	reportB, err := b.Merge(ctx, csAToB, s.Policy)
	if err != nil {
		return SyncResult{}, fmt.Errorf("merge into b: %w", err)
	}
	reportA, err := a.Merge(ctx, csBToA, s.Policy)
	if err != nil {
		return SyncResult{}, fmt.Errorf("merge into a: %w", err)
	}

	return SyncResult{
		AToB:             reportB,
		BToA:             reportA,
		BytesTransferred: csAToB.EstimateBytes() + csBToA.EstimateBytes(),
	}, nil
}

// maxRounds is a safety belt for malformed inputs; under
// LexicographicMin a mesh reaches fixpoint in a few rounds.
const maxRounds = 100

// MeshSync drives repeated pairwise sessions over a bag of peers until
// a full pass reports zero changes.
type MeshSync struct {
	Peers  []*table.Table
	Policy types.TieBreakPolicy
}

// NewMesh returns an empty mesh with the given policy.
func NewMesh(policy types.TieBreakPolicy) *MeshSync {
	return &MeshSync{Policy: policy}
}

// AddPeer appends a peer to the mesh.
func (m *MeshSync) AddPeer(t *table.Table) {
	m.Peers = append(m.Peers, t)
}

// SyncAll iterates pairs in index order, repeating full rounds until a
// pass completes with zero changes. Returns the number of rounds run
// (including the final no-change pass), capped at 100.
func (m *MeshSync) SyncAll(ctx context.Context) (int, error) {
	session := NewSession(m.Policy)
	rounds := 0

	for rounds < maxRounds {
		rounds++
		changes := 0
		for i := 0; i < len(m.Peers); i++ {
			for j := i + 1; j < len(m.Peers); j++ {
				result, err := session.Sync(ctx, m.Peers[i], m.Peers[j])
				if err != nil {
					return rounds, fmt.Errorf("sync peers %d,%d: %w", i, j, err)
				}
				changes += result.TotalChanges()
			}
		}
		if changes == 0 {
			break
		}
	}
	return rounds, nil
}

// Converged reports whether every peer agrees on every
// (pk, col, value, version).
func (m *MeshSync) Converged(ctx context.Context) (bool, error) {
	if len(m.Peers) < 2 {
		return true, nil
	}
	first := m.Peers[0]
	firstPKs, err := first.PKs(ctx)
	if err != nil {
		return false, err
	}

	for _, peer := range m.Peers[1:] {
		pks, err := peer.PKs(ctx)
		if err != nil {
			return false, err
		}
		if len(pks) != len(firstPKs) {
			return false, nil
		}
		for _, pk := range firstPKs {
			rowA, err := first.Get(ctx, pk)
			if err != nil {
				return false, err
			}
			rowB, err := peer.Get(ctx, pk)
			if err != nil {
				return false, err
			}
			if (rowA == nil) != (rowB == nil) {
				return false, nil
			}
			if rowA == nil {
				continue
			}
			colsA := rowA.Columns()
			colsB := rowB.Columns()
			if len(colsA) != len(colsB) {
				return false, nil
			}
			for _, col := range colsA {
				if rowA.Version(col) != rowB.Version(col) {
					return false, nil
				}
				if string(rowA.Value(col)) != string(rowB.Value(col)) {
					return false, nil
				}
			}
		}
	}
	return true, nil
}
