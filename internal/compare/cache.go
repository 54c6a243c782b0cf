// Cache persists compare results under cache/compares/<compare_id>/ and
// answers hit/miss queries against the caller's commit ids (spec §4.9
// Caching, testable property 7). Frames are gob-encoded on disk — this
// module has no parquet encoder in its dependency set (see DESIGN.md) —
// but the file names stay parquet-suffixed to match the wire contract
// other tooling expects.
package compare

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/outpostml/dvc/internal/oxerr"
)

const (
	leftCommitFile  = "LEFT_COMMIT"
	rightCommitFile = "RIGHT_COMMIT"
	dupesFile       = "dupes.json"
)

type duplicateCounts struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Cache is a filesystem-backed store for compare results, rooted at a
// repo's cache/compares directory.
type Cache struct {
	root string // <repo>/.<hidden>/cache/compares
}

func NewCache(root string) *Cache {
	return &Cache{root: root}
}

func (c *Cache) dir(compareID string) string {
	return filepath.Join(c.root, compareID)
}

func writeFileAtomicBytes(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encodeFrame(f *Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(f); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

// Put persists a compare result plus its commit-id sidecars. Writes only
// happen after every derived frame is ready, so cancellation never leaves
// a half-populated compare (spec §5 Cancellation).
func (c *Cache) Put(ctx context.Context, compareID, leftCommit, rightCommit string, result *CompareResult) error {
	dir := c.dir(compareID)

	frames := map[string]*Frame{
		"match.parquet":      result.Match,
		"diff.parquet":       result.Diff,
		"left_only.parquet":  result.LeftOnly,
		"right_only.parquet": result.RightOnly,
	}
	for name, frame := range frames {
		data, err := encodeFrame(frame)
		if err != nil {
			return oxerr.New(oxerr.KindSerialization, "compare.Cache.Put", name, err)
		}
		if err := writeFileAtomicBytes(filepath.Join(dir, name), data); err != nil {
			return oxerr.Wrap("compare.Cache.Put", err)
		}
	}

	dupes, err := json.Marshal(duplicateCounts{Left: result.LeftDuplicates, Right: result.RightDuplicates})
	if err != nil {
		return oxerr.New(oxerr.KindSerialization, "compare.Cache.Put", dupesFile, err)
	}
	if err := writeFileAtomicBytes(filepath.Join(dir, dupesFile), dupes); err != nil {
		return oxerr.Wrap("compare.Cache.Put", err)
	}

	if err := writeFileAtomicBytes(filepath.Join(dir, leftCommitFile), []byte(leftCommit)); err != nil {
		return oxerr.Wrap("compare.Cache.Put", err)
	}
	if err := writeFileAtomicBytes(filepath.Join(dir, rightCommitFile), []byte(rightCommit)); err != nil {
		return oxerr.Wrap("compare.Cache.Put", err)
	}
	return nil
}

// Get is a hit iff both sidecar commit ids exist and equal the caller's.
func (c *Cache) Get(ctx context.Context, compareID, leftCommit, rightCommit string) (*CompareResult, bool, error) {
	dir := c.dir(compareID)

	cachedLeft, err := os.ReadFile(filepath.Join(dir, leftCommitFile))
	if err != nil {
		return nil, false, nil
	}
	cachedRight, err := os.ReadFile(filepath.Join(dir, rightCommitFile))
	if err != nil {
		return nil, false, nil
	}
	if string(cachedLeft) != leftCommit || string(cachedRight) != rightCommit {
		return nil, false, nil
	}

	result := &CompareResult{}
	frameFiles := map[string]**Frame{
		"match.parquet":      &result.Match,
		"diff.parquet":       &result.Diff,
		"left_only.parquet":  &result.LeftOnly,
		"right_only.parquet": &result.RightOnly,
	}
	for name, dst := range frameFiles {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, false, nil
		}
		frame, err := decodeFrame(data)
		if err != nil {
			return nil, false, oxerr.New(oxerr.KindSerialization, "compare.Cache.Get", name, err)
		}
		*dst = frame
	}

	dupeData, err := os.ReadFile(filepath.Join(dir, dupesFile))
	if err == nil {
		var dupes duplicateCounts
		if jsonErr := json.Unmarshal(dupeData, &dupes); jsonErr == nil {
			result.LeftDuplicates = dupes.Left
			result.RightDuplicates = dupes.Right
		}
	}

	return result, true, nil
}
