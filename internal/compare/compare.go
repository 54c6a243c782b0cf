// Package compare implements the tabular compare engine (spec §4.9): two
// strategies (Hash, Join) over a pair of tabular artifacts, with optional
// result caching keyed by a compare id. Grounded on
// original_source's hash_compare.rs/join_compare.rs for the exact
// row-hash and full-outer-join semantics, re-expressed with Go frames and
// an injectable codec since this pack carries no dataframe/parquet
// library (see DESIGN.md).
package compare

import (
	"context"
	"io"
	"sort"

	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/oxerr"
)

// Frame is an in-memory tabular artifact: a header row plus data rows,
// all cells as strings (schema-typed decoding is a TabularCodec concern).
type Frame struct {
	Columns []string
	Rows    [][]string
}

// TabularCodec decodes a reader into a Frame. This module ships only
// CSVCodec; a collaborator module may register a Parquet-backed codec
// without this package needing to change (spec §1 Non-goals: "tabular
// parsers beyond CSV").
type TabularCodec interface {
	Decode(r io.Reader) (*Frame, error)
}

// Strategy selects how two frames are compared.
type Strategy int

const (
	StrategyHash Strategy = iota
	StrategyJoin
)

// TabularRef names one side of a compare: a reader over its bytes plus
// the commit id it was read from (used for cache validation).
type TabularRef struct {
	CommitID string
	Reader   io.Reader
}

// CompareRequest is the engine's single input.
type CompareRequest struct {
	Left, Right TabularRef
	Keys        []string
	Targets     []string
	Strategy    Strategy
	CompareID   string
}

// CompareResult holds the four derived frames plus, for Join, duplicate
// counts per side.
type CompareResult struct {
	Match, Diff, LeftOnly, RightOnly *Frame
	LeftDuplicates, RightDuplicates  int
}

// Engine runs compares and optionally persists/retrieves them via Cache.
type Engine struct {
	codec TabularCodec
	cache *Cache
}

func NewEngine(codec TabularCodec, cache *Cache) *Engine {
	return &Engine{codec: codec, cache: cache}
}

func columnIndex(columns []string, want []string) ([]int, error) {
	idx := make(map[string]int, len(columns))
	for i, c := range columns {
		idx[c] = i
	}
	out := make([]int, len(want))
	for i, w := range want {
		pos, ok := idx[w]
		if !ok {
			return nil, oxerr.New(oxerr.KindIncompatibleSchemas, "compare.columnIndex", w, nil)
		}
		out[i] = pos
	}
	return out, nil
}

func project(row []string, idx []int) []string {
	out := make([]string, len(idx))
	for i, p := range idx {
		out[i] = row[p]
	}
	return out
}

func ensureColumns(columns []string, required []string) error {
	have := make(map[string]bool, len(columns))
	for _, c := range columns {
		have[c] = true
	}
	for _, r := range required {
		if !have[r] {
			return oxerr.New(oxerr.KindIncompatibleSchemas, "compare.ensureColumns", r, nil)
		}
	}
	return nil
}

// Compare validates schema compatibility, dispatches to the requested
// strategy, and — if CompareID is set — persists the result.
func (e *Engine) Compare(ctx context.Context, req CompareRequest) (*CompareResult, error) {
	left, err := e.codec.Decode(req.Left.Reader)
	if err != nil {
		return nil, oxerr.New(oxerr.KindInvalidFileType, "compare.Compare", "left", err)
	}
	right, err := e.codec.Decode(req.Right.Reader)
	if err != nil {
		return nil, oxerr.New(oxerr.KindInvalidFileType, "compare.Compare", "right", err)
	}

	required := append(append([]string(nil), req.Keys...), req.Targets...)
	if err := ensureColumns(left.Columns, required); err != nil {
		return nil, err
	}
	if err := ensureColumns(right.Columns, required); err != nil {
		return nil, err
	}

	var result *CompareResult
	switch req.Strategy {
	case StrategyHash:
		result = compareByHash(left, right)
	case StrategyJoin:
		result, err = compareByJoin(left, right, req.Keys, req.Targets)
		if err != nil {
			return nil, err
		}
	default:
		return nil, oxerr.New(oxerr.KindBasic, "compare.Compare", "", nil)
	}

	if req.CompareID != "" && e.cache != nil {
		if err := e.cache.Put(ctx, req.CompareID, req.Left.CommitID, req.Right.CommitID, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// compareByHash implements spec §4.9's Hash strategy: a per-row hash over
// every column; added/removed are hash-set differences, returned in
// original-file row order (index-sorted, not hash-sorted, matching
// hash_compare.rs's added_indices.sort()).
func compareByHash(left, right *Frame) *CompareResult {
	leftHashes := hash.HashRows(left.Rows)
	rightHashes := hash.HashRows(right.Rows)

	leftSet := make(map[string]bool, len(leftHashes))
	for _, h := range leftHashes {
		leftSet[h] = true
	}
	rightSet := make(map[string]bool, len(rightHashes))
	for _, h := range rightHashes {
		rightSet[h] = true
	}

	var addedRows, removedRows [][]string
	for i, h := range rightHashes {
		if !leftSet[h] {
			addedRows = append(addedRows, right.Rows[i])
		}
	}
	for i, h := range leftHashes {
		if !rightSet[h] {
			removedRows = append(removedRows, left.Rows[i])
		}
	}

	return &CompareResult{
		Match:     &Frame{Columns: left.Columns},
		Diff:      &Frame{Columns: left.Columns},
		LeftOnly:  &Frame{Columns: left.Columns, Rows: removedRows},
		RightOnly: &Frame{Columns: right.Columns, Rows: addedRows},
	}
}

type joinRow struct {
	keysHash    string
	targetsHash string
	row         []string
}

// compareByJoin implements spec §4.9's Join strategy: keys_hash/
// targets_hash per row, duplicate counts per side, full outer join on
// keys_hash.
func compareByJoin(left, right *Frame, keys, targets []string) (*CompareResult, error) {
	leftKeyIdx, err := columnIndex(left.Columns, keys)
	if err != nil {
		return nil, err
	}
	leftTargetIdx, err := columnIndex(left.Columns, targets)
	if err != nil {
		return nil, err
	}
	rightKeyIdx, err := columnIndex(right.Columns, keys)
	if err != nil {
		return nil, err
	}
	rightTargetIdx, err := columnIndex(right.Columns, targets)
	if err != nil {
		return nil, err
	}

	leftJoin := joinRows(left.Rows, leftKeyIdx, leftTargetIdx)
	rightJoin := joinRows(right.Rows, rightKeyIdx, rightTargetIdx)

	leftByKey := groupByKeysHash(leftJoin)
	rightByKey := groupByKeysHash(rightJoin)

	leftDuplicates := countDuplicates(leftByKey)
	rightDuplicates := countDuplicates(rightByKey)

	matchCols := append(append([]string(nil), keys...), targets...)
	diffCols := append(append([]string(nil), keys...), suffixed(targets, "_left")...)
	diffCols = append(diffCols, suffixed(targets, "_right")...)

	var matchRows, diffRows, leftOnlyRows, rightOnlyRows [][]string

	seen := make(map[string]bool)
	allKeys := make([]string, 0, len(leftByKey)+len(rightByKey))
	for k := range leftByKey {
		allKeys = append(allKeys, k)
	}
	for k := range rightByKey {
		if _, ok := leftByKey[k]; !ok {
			allKeys = append(allKeys, k)
		}
	}
	sort.Strings(allKeys)

	for _, k := range allKeys {
		if seen[k] {
			continue
		}
		seen[k] = true

		lrows, lok := leftByKey[k]
		rrows, rok := rightByKey[k]

		switch {
		case lok && rok:
			l, r := lrows[0], rrows[0]
			if l.targetsHash == r.targetsHash {
				matchRows = append(matchRows, l.row)
			} else {
				row := append([]string(nil), keyValues(l.row, len(keys))...)
				row = append(row, l.row[len(keys):]...)
				row = append(row, r.row[len(keys):]...)
				diffRows = append(diffRows, row)
			}
		case lok:
			leftOnlyRows = append(leftOnlyRows, lrows[0].row)
		case rok:
			rightOnlyRows = append(rightOnlyRows, rrows[0].row)
		}
	}

	return &CompareResult{
		Match:           &Frame{Columns: matchCols, Rows: matchRows},
		Diff:            &Frame{Columns: diffCols, Rows: diffRows},
		LeftOnly:        &Frame{Columns: matchCols, Rows: leftOnlyRows},
		RightOnly:       &Frame{Columns: matchCols, Rows: rightOnlyRows},
		LeftDuplicates:  leftDuplicates,
		RightDuplicates: rightDuplicates,
	}, nil
}

func keyValues(row []string, nKeys int) []string {
	return row[:nKeys]
}

func suffixed(cols []string, suffix string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c + suffix
	}
	return out
}

func joinRows(rows [][]string, keyIdx, targetIdx []int) []joinRow {
	out := make([]joinRow, len(rows))
	for i, row := range rows {
		keyCells := project(row, keyIdx)
		targetCells := project(row, targetIdx)
		combined := append(append([]string(nil), keyCells...), targetCells...)
		out[i] = joinRow{
			keysHash:    hash.HashRows([][]string{keyCells})[0],
			targetsHash: hash.HashRows([][]string{targetCells})[0],
			row:         combined,
		}
	}
	return out
}

func groupByKeysHash(rows []joinRow) map[string][]joinRow {
	out := make(map[string][]joinRow)
	for _, r := range rows {
		out[r.keysHash] = append(out[r.keysHash], r)
	}
	return out
}

func countDuplicates(byKey map[string][]joinRow) int {
	count := 0
	for _, rows := range byKey {
		if len(rows) > 1 {
			count += len(rows) - 1
		}
	}
	return count
}
