// Package merkle builds and validates the per-commit directory tree from
// a flattened entry index (spec §4.4, §4.6). Building groups entries by
// directory and folds bottom-up, mirroring the bottom-up layer
// construction in 0xlemi-microprolly/pkg/tree/builder.go — there the
// leaves are content-defined chunks, here they are path-grouped file
// entries, but the fold-up-from-leaves shape is the same. Structural
// sharing falls out of objectdb.HashDir/PutDir being pure functions of
// sorted children.
package merkle

import (
	"context"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/outpostml/dvc/internal/entryindex"
	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/objectdb"
	"github.com/outpostml/dvc/internal/oxerr"
	"github.com/outpostml/dvc/internal/versionstore"
	"go.uber.org/zap"
)

// Builder constructs commit trees from flattened entry lists.
type Builder struct {
	objects *objectdb.DB
	// workers bounds concurrent subtree hashing, grounded on spec §7's
	// worker-pool generalization of poon-server/storage/memory.go's
	// mutex-guarded map into parallel CPU-bound work.
	workers int
}

func NewBuilder(objects *objectdb.DB, workers int) *Builder {
	if workers <= 0 {
		workers = 1
	}
	return &Builder{objects: objects, workers: workers}
}

type dirNode struct {
	path     string
	children map[string]*dirNode // immediate subdirectory name -> node
	files    []entryindex.CommitEntry
}

// Build turns a flat list of CommitEntry into a directory tree in
// objectdb and returns the root's hash.
func (b *Builder) Build(ctx context.Context, entries []entryindex.CommitEntry) (string, error) {
	root := &dirNode{path: "", children: map[string]*dirNode{}}
	for _, e := range entries {
		insert(root, strings.Split(e.Path, "/"), e)
	}
	return b.hashDir(ctx, root)
}

func insert(node *dirNode, parts []string, entry entryindex.CommitEntry) {
	if len(parts) == 1 {
		node.files = append(node.files, entry)
		return
	}
	name := parts[0]
	child, ok := node.children[name]
	if !ok {
		child = &dirNode{path: path.Join(node.path, name), children: map[string]*dirNode{}}
		node.children[name] = child
	}
	insert(child, parts[1:], entry)
}

// hashDir recursively hashes a subtree bottom-up, fanning child subtrees
// out across a bounded worker pool.
func (b *Builder) hashDir(ctx context.Context, node *dirNode) (string, error) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)

	children := make([]objectdb.Child, 0, len(names)+len(node.files))

	type result struct {
		idx  int
		name string
		hash string
		err  error
	}
	resultsCh := make(chan result, len(names))
	sem := make(chan struct{}, b.workers)
	var wg sync.WaitGroup

	for i, name := range names {
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			h, err := b.hashDir(ctx, node.children[name])
			resultsCh <- result{idx: i, name: name, hash: h, err: err}
		}(i, name)
	}
	wg.Wait()
	close(resultsCh)

	dirHashes := make([]string, len(names))
	for r := range resultsCh {
		if r.err != nil {
			return "", r.err
		}
		dirHashes[r.idx] = r.hash
	}
	for i, name := range names {
		children = append(children, objectdb.Child{Name: name, Kind: objectdb.KindDir, Hash: dirHashes[i]})
	}

	for _, f := range node.files {
		fileHash := hash.HashBytes([]byte(f.Path + f.Hash))
		if err := b.objects.PutFile(ctx, fileHash, objectdb.FileObject{ContentHash: f.Hash, Size: f.Size}); err != nil {
			return "", err
		}
		base := f.Path
		if idx := strings.LastIndex(f.Path, "/"); idx >= 0 {
			base = f.Path[idx+1:]
		}
		children = append(children, objectdb.Child{Name: base, Kind: objectdb.KindFile, Hash: fileHash})
	}

	dir, vnodes := objectdb.BuildDirOrVNodes(children)
	for bucket, vn := range vnodes {
		h := objectdb.HashDir(vn.Children)
		if err := b.objects.PutVNode(ctx, h, vn); err != nil {
			return "", err
		}
		_ = bucket
	}
	rootHash := objectdb.HashDir(dir.Children)
	if err := b.objects.PutDir(ctx, rootHash, dir); err != nil {
		return "", err
	}
	return rootHash, nil
}

// errSchemaAbsentPermissive is logged, not returned, when a tabular path
// has no recorded schema — validation treats it as valid. See DESIGN.md
// Open Questions: spec §9 leaves this behavior undecided; this
// implementation keeps the permissive default with an audit trail.
const errSchemaAbsentPermissive = "schema absent for tabular path; treating as valid (permissive mode)"

// Validator checks a built tree's declared hashes against on-disk blobs.
type Validator struct {
	objects *objectdb.DB
	blobs   *versionstore.Store
	log     *zap.SugaredLogger
}

func NewValidator(objects *objectdb.DB, blobs *versionstore.Store, log *zap.SugaredLogger) *Validator {
	return &Validator{objects: objects, blobs: blobs, log: log}
}

// ValidateComplete recursively walks every file under rootHash, comparing
// its declared content hash against the blob on disk.
func (v *Validator) ValidateComplete(ctx context.Context, rootHash string) (bool, error) {
	return v.validateSubtree(ctx, rootHash)
}

// validateFile checks one File node's declared content hash against the
// blob on disk, warning (not failing) on a missing schema per
// errSchemaAbsentPermissive.
func (v *Validator) validateFile(ctx context.Context, fileHash string) (bool, error) {
	f, err := v.objects.GetFile(ctx, fileHash)
	if err != nil {
		return false, err
	}
	if f.SchemaHash != "" {
		if _, ok, err := v.objects.GetSchema(ctx, f.SchemaHash); err != nil {
			return false, err
		} else if !ok {
			v.log.Warnw(errSchemaAbsentPermissive, "schema_hash", f.SchemaHash)
		}
	}
	return v.blobs.VerifyBlob(ctx, f.ContentHash, "")
}

// validateChild dispatches a Dir/VNode child by kind, shared between the
// Dir and VNode walks since both hold the same Child shape.
func (v *Validator) validateChild(ctx context.Context, c objectdb.Child) (bool, error) {
	switch c.Kind {
	case objectdb.KindFile:
		return v.validateFile(ctx, c.Hash)
	case objectdb.KindDir:
		return v.validateSubtree(ctx, c.Hash)
	case objectdb.KindVNode:
		return v.validateVNode(ctx, c.Hash)
	default:
		return false, oxerr.New(oxerr.KindInvalidFileType, "merkle.validateChild", c.Name, nil)
	}
}

func (v *Validator) validateSubtree(ctx context.Context, dirHash string) (bool, error) {
	dir, err := v.objects.GetDir(ctx, dirHash)
	if err != nil {
		return false, err
	}
	for _, c := range dir.Children {
		ok, err := v.validateChild(ctx, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (v *Validator) validateVNode(ctx context.Context, vnodeHash string) (bool, error) {
	vn, err := v.objects.GetVNode(ctx, vnodeHash)
	if err != nil {
		return false, err
	}
	for _, c := range vn.Children {
		ok, err := v.validateChild(ctx, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// childByName indexes a child list for lockstep comparison against a
// parent tree's children.
func childByName(children []objectdb.Child) map[string]objectdb.Child {
	out := make(map[string]objectdb.Child, len(children))
	for _, c := range children {
		out[c.Name] = c
	}
	return out
}

// ValidateIncremental walks rootHash against parentRootHash in lockstep,
// skipping any child whose name, kind and hash are byte-identical between
// the two trees — only re-validating subtrees that actually changed
// (spec §4.6). A child present in rootHash with no match in the parent
// (new path, or a kind change) is validated in full, recursively.
func (v *Validator) ValidateIncremental(ctx context.Context, rootHash, parentRootHash string) (bool, error) {
	if rootHash == parentRootHash {
		return true, nil
	}
	return v.validateDirIncremental(ctx, rootHash, parentRootHash)
}

// parentDirChildren looks up parentDirHash's children, treating a blank
// or unresolvable parent hash as "no parent information" rather than an
// error — every child is then validated in full, matching the behavior
// of a tree with no prior commit to compare against.
func (v *Validator) parentDirChildren(ctx context.Context, parentDirHash string) map[string]objectdb.Child {
	if parentDirHash == "" {
		return nil
	}
	parent, err := v.objects.GetDir(ctx, parentDirHash)
	if err != nil {
		return nil
	}
	return childByName(parent.Children)
}

func (v *Validator) parentVNodeChildren(ctx context.Context, parentVNodeHash string) map[string]objectdb.Child {
	if parentVNodeHash == "" {
		return nil
	}
	parent, err := v.objects.GetVNode(ctx, parentVNodeHash)
	if err != nil {
		return nil
	}
	return childByName(parent.Children)
}

func (v *Validator) validateDirIncremental(ctx context.Context, dirHash, parentDirHash string) (bool, error) {
	dir, err := v.objects.GetDir(ctx, dirHash)
	if err != nil {
		return false, err
	}
	parentChildren := v.parentDirChildren(ctx, parentDirHash)
	return v.validateChildrenIncremental(ctx, dir.Children, parentChildren)
}

func (v *Validator) validateVNodeIncremental(ctx context.Context, vnodeHash, parentVNodeHash string) (bool, error) {
	vn, err := v.objects.GetVNode(ctx, vnodeHash)
	if err != nil {
		return false, err
	}
	parentChildren := v.parentVNodeChildren(ctx, parentVNodeHash)
	return v.validateChildrenIncremental(ctx, vn.Children, parentChildren)
}

// validateChildrenIncremental compares each child against its
// name-matched counterpart in parentChildren, skipping ones whose kind
// and hash are unchanged and recursing (or fully validating, for new
// children) into the rest.
func (v *Validator) validateChildrenIncremental(ctx context.Context, children []objectdb.Child, parentChildren map[string]objectdb.Child) (bool, error) {
	for _, c := range children {
		parent, hasParent := parentChildren[c.Name]
		if hasParent && parent.Kind == c.Kind && parent.Hash == c.Hash {
			continue // unchanged subtree: skip re-validation entirely.
		}

		var parentHash string
		if hasParent && parent.Kind == c.Kind {
			parentHash = parent.Hash
		}

		var ok bool
		var err error
		switch c.Kind {
		case objectdb.KindFile:
			ok, err = v.validateFile(ctx, c.Hash)
		case objectdb.KindDir:
			ok, err = v.validateDirIncremental(ctx, c.Hash, parentHash)
		case objectdb.KindVNode:
			ok, err = v.validateVNodeIncremental(ctx, c.Hash, parentHash)
		default:
			err = oxerr.New(oxerr.KindInvalidFileType, "merkle.validateChildrenIncremental", c.Name, nil)
		}
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
