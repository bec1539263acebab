// Package merge holds the per-cell resolution rules used when folding a
// remote changeset into local state.
package merge

import (
	"bytes"

	"github.com/rowmesh/rowmesh/internal/types"
)

// Decision classifies a remote cell against the local one by version
// alone. Equal versions escalate to value comparison and, when the
// values differ, to the tiebreak policy.
type Decision int

const (
	// Accept: remote version is strictly greater; take it as-is.
	Accept Decision = iota
	// Reject: remote version is strictly older; ignore it.
	Reject
	// Conflict: versions are equal; compare values.
	Conflict
)

// ResolveVersions compares versions. localVersion 0 (absent) accepts
// any remoteVersion >= 1; two zero versions compare as a Conflict.
func ResolveVersions(localVersion, remoteVersion uint64) Decision {
	switch {
	case localVersion < remoteVersion:
		return Accept
	case localVersion > remoteVersion:
		return Reject
	default:
		return Conflict
	}
}

// ResolveConflict reports whether the remote value wins an equal-version
// conflict under policy. LexicographicMin accepts the remote iff it is
// byte-lexicographically smaller, which is what makes reciprocal merges
// symmetric: both sides pick the same winner.
func ResolveConflict(localValue, remoteValue []byte, policy types.TieBreakPolicy) bool {
	switch policy {
	case types.PreferExisting:
		return false
	case types.PreferIncoming:
		return true
	case types.LexicographicMin:
		return bytes.Compare(remoteValue, localValue) < 0
	default:
		return false
	}
}
