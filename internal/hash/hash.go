// Package hash implements the content and structural hashing used by every
// higher layer: blob hashing, row hashing for tabular compares, and the
// deterministic commit-hash fold. Hashes are 128-bit, non-cryptographic,
// and must be bit-exact across implementations (wire-compatibility
// requirement, spec §4.1) — they are built from two salted 64-bit
// xxhash digests concatenated together, the way
// lunfardo314-unitrie/adaptors/badger_adaptor grounds this module's choice
// of xxhash as the pack's non-cryptographic hash of choice.
package hash

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// rowSalt distinguishes the second digest from the first so that
// HashBytes(b) is not simply Sum64(b) repeated.
var rowSalt = []byte{0x4f, 0x78, 0x65, 0x6e, 0x44, 0x56, 0x43, 0x00}

// HashBytes returns the 128-bit hex content hash of b.
func HashBytes(b []byte) string {
	h1 := xxhash.Sum64(b)
	d2 := xxhash.New()
	d2.Write(rowSalt)
	d2.Write(b)
	h2 := d2.Sum64()
	return encode(h1, h2)
}

func encode(h1, h2 uint64) string {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], h1)
	binary.BigEndian.PutUint64(buf[8:], h2)
	return hex.EncodeToString(buf[:])
}

// EntryDigest is the minimal per-path input to CommitHash.
type EntryDigest struct {
	Path string
	Hash string
}

// CommitHash deterministically folds a commit's identity: sorted parent
// ids, timestamp, message, author, then each entry's path+hash in
// path-sorted order (spec §4.1, testable property 2).
func CommitHash(parents []string, author, message string, ts int64, entries []EntryDigest) string {
	sortedParents := append([]string(nil), parents...)
	sort.Strings(sortedParents)

	sortedEntries := append([]EntryDigest(nil), entries...)
	sort.Slice(sortedEntries, func(i, j int) bool { return sortedEntries[i].Path < sortedEntries[j].Path })

	d1 := xxhash.New()
	d2 := xxhash.New()
	d2.Write(rowSalt)

	write := func(s string) {
		d1.Write([]byte(s))
		d1.Write([]byte{0})
		d2.Write([]byte(s))
		d2.Write([]byte{0})
	}

	for _, p := range sortedParents {
		write("parent:" + p)
	}
	write("ts:" + strconv.FormatInt(ts, 10))
	write("msg:" + message)
	write("author:" + author)
	for _, e := range sortedEntries {
		write("entry:" + e.Path + ":" + e.Hash)
	}

	return encode(d1.Sum64(), d2.Sum64())
}

// HashRows computes a column of row hashes, one per row, in row order.
// Used by the tabular compare engine's hash and join strategies.
func HashRows(rows [][]string) []string {
	out := make([]string, len(rows))
	for i, row := range rows {
		d1 := xxhash.New()
		d2 := xxhash.New()
		d2.Write(rowSalt)
		for _, cell := range row {
			d1.Write([]byte(cell))
			d1.Write([]byte{0x1f}) // unit separator
			d2.Write([]byte(cell))
			d2.Write([]byte{0x1f})
		}
		out[i] = encode(d1.Sum64(), d2.Sum64())
	}
	return out
}

const (
	maxFileHashRetries = 5
	retryBaseDelay     = 20 * time.Millisecond
)

// HashFile streams path through the same two-digest scheme HashBytes uses,
// retrying with bounded linear backoff if the file is transiently
// unreadable mid-write (spec §4.1, §5 "Retries").
func HashFile(ctx context.Context, path string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < maxFileHashRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(retryBaseDelay * time.Duration(attempt)):
			}
		}

		digest, err := hashFileOnce(path)
		if err == nil {
			return digest, nil
		}
		lastErr = err
		if !isTransient(err) {
			return "", err
		}
	}
	return "", lastErr
}

func hashFileOnce(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	d1 := xxhash.New()
	d2 := xxhash.New()
	d2.Write(rowSalt)
	mw := io.MultiWriter(d1, d2)
	if _, err := io.Copy(mw, f); err != nil {
		return "", err
	}
	return encode(d1.Sum64(), d2.Sum64()), nil
}

func isTransient(err error) bool {
	return errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrDeadlineExceeded)
}
