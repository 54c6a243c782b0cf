// Package merge is a three-way merge sketch over commit entry sets, not a
// full conflict-resolution engine (Non-goals: "no conflict resolution
// beyond the internal/merge sketch"). It decides, path by path, whether
// two branches' changes since a common ancestor can be combined
// automatically or must be reported as a conflict. Grounded on
// niczy-poon/poon-server/merge/patch.go's patch-application shape,
// adapted from binary patch application to path-level three-way
// comparison over entryindex.CommitEntry sets.
package merge

import (
	"sort"

	"github.com/outpostml/dvc/internal/entryindex"
)

// Outcome classifies one path's merge result.
type Outcome int

const (
	OutcomeUnchanged Outcome = iota
	OutcomeTakeOurs
	OutcomeTakeTheirs
	OutcomeConflict
)

// PathResult is one path's merge decision.
type PathResult struct {
	Path    string
	Outcome Outcome
	Ours    *entryindex.CommitEntry
	Theirs  *entryindex.CommitEntry
}

// Result is the full three-way merge sketch's output.
type Result struct {
	Entries   []entryindex.CommitEntry // merged set for non-conflicting paths
	Conflicts []PathResult
}

// ThreeWay compares ours and theirs against base and reports, per path,
// whether the change is a clean fast-forward in one direction or a
// conflict needing manual resolution. It never attempts content-level
// merging of a single file's bytes.
func ThreeWay(base, ours, theirs []entryindex.CommitEntry) Result {
	baseByPath := indexByPath(base)
	oursByPath := indexByPath(ours)
	theirsByPath := indexByPath(theirs)

	paths := unionPaths(baseByPath, oursByPath, theirsByPath)

	var merged []entryindex.CommitEntry
	var conflicts []PathResult

	for _, p := range paths {
		b, hasBase := baseByPath[p]
		o, hasOurs := oursByPath[p]
		t, hasTheirs := theirsByPath[p]

		ourChanged := hasOurs != hasBase || (hasOurs && o.Hash != b.Hash)
		theirChanged := hasTheirs != hasBase || (hasTheirs && t.Hash != b.Hash)

		switch {
		case !hasOurs && !hasTheirs:
			continue // deleted on both sides, or never existed.
		case !ourChanged && !theirChanged:
			if hasOurs {
				merged = append(merged, o)
			}
		case !ourChanged && theirChanged:
			if hasTheirs {
				merged = append(merged, t)
			}
		case ourChanged && !theirChanged:
			if hasOurs {
				merged = append(merged, o)
			}
		default: // both changed
			if hasOurs && hasTheirs && o.Hash == t.Hash {
				merged = append(merged, o) // identical change on both sides.
				continue
			}
			conflicts = append(conflicts, PathResult{
				Path:    p,
				Outcome: OutcomeConflict,
				Ours:    entryOrNil(o, hasOurs),
				Theirs:  entryOrNil(t, hasTheirs),
			})
		}
	}

	sort.Slice(merged, func(i, j int) bool { return merged[i].Path < merged[j].Path })
	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].Path < conflicts[j].Path })

	return Result{Entries: merged, Conflicts: conflicts}
}

func entryOrNil(e entryindex.CommitEntry, ok bool) *entryindex.CommitEntry {
	if !ok {
		return nil
	}
	cp := e
	return &cp
}

func indexByPath(entries []entryindex.CommitEntry) map[string]entryindex.CommitEntry {
	out := make(map[string]entryindex.CommitEntry, len(entries))
	for _, e := range entries {
		out[e.Path] = e
	}
	return out
}

func unionPaths(maps ...map[string]entryindex.CommitEntry) []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range maps {
		for p := range m {
			if !seen[p] {
				seen[p] = true
				out = append(out, p)
			}
		}
	}
	sort.Strings(out)
	return out
}
