// Package objectdb implements the four hash-keyed tree-object stores
// (files, dirs, vnodes, schemas) described in spec §4.4. Tree objects are
// a tagged variant over node kind (spec §9 "polymorphism over tree node
// kind"): one discriminant byte followed by a kind-specific payload,
// gob-encoded. VNodes bucket a directory's children once the child count
// exceeds VNodeThreshold, bounding per-node size and keeping Merkle
// rebuilds incremental, grounded on the bottom-up, hash-bucketed layer
// building in 0xlemi-microprolly/pkg/tree/builder.go.
package objectdb

import (
	"bytes"
	"context"
	"encoding/gob"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/outpostml/dvc/internal/hash"
	"github.com/outpostml/dvc/internal/kv"
	"github.com/outpostml/dvc/internal/oxerr"
)

// On-disk-contract constants: a remote peer must compute the same
// bucketing to produce the same hashes.
const (
	VNodeThreshold   = 1000
	VNodeBucketCount = 16
)

type Kind byte

const (
	KindFile Kind = iota + 1
	KindDir
	KindVNode
	KindSchema
)

// Child is one entry of a Dir or VNode object.
type Child struct {
	Name string // for a VNode bucket child, the bucket's vnodeBucketName
	Kind Kind
	Hash string
}

// FileObject is the payload for a File node: the file's content hash,
// size and (optionally) its tabular schema hash.
type FileObject struct {
	ContentHash string
	Size        int64
	SchemaHash  string // empty if not tabular
}

// DirObject is a directory's sorted children, or — once it exceeds
// VNodeThreshold — a sorted list of VNode bucket children instead.
type DirObject struct {
	Children []Child
}

// VNodeObject is an intermediate fan-out bucket: a sorted slice of the
// real children whose bucketed name hash landed in this bucket.
type VNodeObject struct {
	BucketID int
	Children []Child
}

// Field is one column of a Schema.
type Field struct {
	Name     string
	DType    string
	Optional bool
	Metadata map[string]string
}

// SchemaObject is the normalized field list tracked per tabular path.
type SchemaObject struct {
	Name   string
	Fields []Field
}

// Bucket deterministically assigns a child name to a vnode bucket. Part
// of the on-disk contract: both sides of a sync must compute this
// identically.
func Bucket(childName string) int {
	return int(xxhash.Sum64String(childName) % VNodeBucketCount)
}

// HashDir computes a Dir/VNode object's hash from its sorted children —
// this is what gives structural sharing (spec §4.6, testable property 3):
// two directories with identical sorted children hash identically.
func HashDir(children []Child) string {
	sorted := sortedChildren(children)
	var buf bytes.Buffer
	for _, c := range sorted {
		buf.WriteString(c.Name)
		buf.WriteByte(byte(c.Kind))
		buf.WriteString(c.Hash)
		buf.WriteByte(0)
	}
	return hash.HashBytes(buf.Bytes())
}

func sortedChildren(children []Child) []Child {
	out := append([]Child(nil), children...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BuildDirOrVNodes turns a flat child list into either a single DirObject
// (child count <= VNodeThreshold) or a DirObject whose children are
// VNode buckets (spec §4.4).
func BuildDirOrVNodes(children []Child) (dir DirObject, vnodes map[int]VNodeObject) {
	if len(children) <= VNodeThreshold {
		return DirObject{Children: sortedChildren(children)}, nil
	}

	buckets := make(map[int][]Child)
	for _, c := range children {
		b := Bucket(c.Name)
		buckets[b] = append(buckets[b], c)
	}

	vnodes = make(map[int]VNodeObject, len(buckets))
	bucketChildren := make([]Child, 0, len(buckets))
	for b, cs := range buckets {
		vn := VNodeObject{BucketID: b, Children: sortedChildren(cs)}
		vnodes[b] = vn
		bucketChildren = append(bucketChildren, Child{
			Name: vnodeBucketName(b),
			Kind: KindVNode,
			Hash: HashDir(vn.Children),
		})
	}
	return DirObject{Children: sortedChildren(bucketChildren)}, vnodes
}

func vnodeBucketName(bucket int) string {
	return uuid.NewSHA1(uuid.Nil, []byte{byte(bucket)}).String()
}

// DB is the four-store object database.
type DB struct {
	Files   kv.Store
	Dirs    kv.Store
	VNodes  kv.Store
	Schemas kv.Store
}

func New(files, dirs, vnodes, schemas kv.Store) *DB {
	return &DB{Files: files, Dirs: dirs, VNodes: vnodes, Schemas: schemas}
}

func init() {
	gob.Register(FileObject{})
	gob.Register(DirObject{})
	gob.Register(VNodeObject{})
	gob.Register(SchemaObject{})
}

func encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, oxerr.New(oxerr.KindSerialization, "objectdb.encode", "", err)
	}
	return buf.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return oxerr.New(oxerr.KindSerialization, "objectdb.decode", "", err)
	}
	return nil
}

func (db *DB) PutFile(ctx context.Context, h string, f FileObject) error {
	data, err := encode(f)
	if err != nil {
		return err
	}
	return db.Files.Put(ctx, []byte(h), data)
}

func (db *DB) GetFile(ctx context.Context, h string) (FileObject, error) {
	var f FileObject
	data, err := db.Files.Get(ctx, []byte(h))
	if err != nil {
		return f, oxerr.New(oxerr.KindNotFound, "objectdb.GetFile", h, err)
	}
	return f, decode(data, &f)
}

// PutDir writes a Dir object only if its hash isn't already present,
// giving structural sharing for free: rebuilding an unchanged subtree is
// a no-op write against the same key.
func (db *DB) PutDir(ctx context.Context, h string, d DirObject) error {
	if _, err := db.Dirs.Get(ctx, []byte(h)); err == nil {
		return nil
	}
	data, err := encode(d)
	if err != nil {
		return err
	}
	return db.Dirs.Put(ctx, []byte(h), data)
}

func (db *DB) GetDir(ctx context.Context, h string) (DirObject, error) {
	var d DirObject
	data, err := db.Dirs.Get(ctx, []byte(h))
	if err != nil {
		return d, oxerr.New(oxerr.KindNotFound, "objectdb.GetDir", h, err)
	}
	return d, decode(data, &d)
}

func (db *DB) PutVNode(ctx context.Context, h string, v VNodeObject) error {
	if _, err := db.VNodes.Get(ctx, []byte(h)); err == nil {
		return nil
	}
	data, err := encode(v)
	if err != nil {
		return err
	}
	return db.VNodes.Put(ctx, []byte(h), data)
}

func (db *DB) GetVNode(ctx context.Context, h string) (VNodeObject, error) {
	var v VNodeObject
	data, err := db.VNodes.Get(ctx, []byte(h))
	if err != nil {
		return v, oxerr.New(oxerr.KindNotFound, "objectdb.GetVNode", h, err)
	}
	return v, decode(data, &v)
}

func (db *DB) PutSchema(ctx context.Context, h string, s SchemaObject) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	return db.Schemas.Put(ctx, []byte(h), data)
}

func (db *DB) GetSchema(ctx context.Context, h string) (SchemaObject, bool, error) {
	var s SchemaObject
	data, err := db.Schemas.Get(ctx, []byte(h))
	if err != nil {
		if err == kv.ErrNotFound {
			return s, false, nil
		}
		return s, false, oxerr.Wrap("objectdb.GetSchema", err)
	}
	return s, true, decode(data, &s)
}

// HashSchema hashes a schema's normalized field list (spec §3's Schema
// entity: "hash (of the normalized field list)").
func HashSchema(fields []Field) string {
	sorted := append([]Field(nil), fields...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	var buf bytes.Buffer
	for _, f := range sorted {
		buf.WriteString(f.Name)
		buf.WriteString(f.DType)
		if f.Optional {
			buf.WriteByte(1)
		}
		buf.WriteByte(0)
	}
	return hash.HashBytes(buf.Bytes())
}
