package compare

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDecode(t *testing.T, csvText string) TabularRef {
	return TabularRef{Reader: strings.NewReader(csvText)}
}

func TestHashStrategyAddedRemoved(t *testing.T) {
	left := "id,val\n1,a\n2,b\n3,c\n"
	right := "id,val\n1,a\n3,c\n4,d\n"

	engine := NewEngine(CSVCodec{}, nil)
	result, err := engine.Compare(context.Background(), CompareRequest{
		Left:     mustDecode(t, left),
		Right:    mustDecode(t, right),
		Keys:     []string{"id"},
		Targets:  []string{"val"},
		Strategy: StrategyHash,
	})
	require.NoError(t, err)

	require.Len(t, result.LeftOnly.Rows, 1)
	assert.Equal(t, "2", result.LeftOnly.Rows[0][0])
	require.Len(t, result.RightOnly.Rows, 1)
	assert.Equal(t, "4", result.RightOnly.Rows[0][0])
	assert.Empty(t, result.Match.Rows)
	assert.Empty(t, result.Diff.Rows)
}

func TestJoinStrategyMatchDiffLeftRightOnly(t *testing.T) {
	left := "id,val\n1,a\n2,b\n3,c\n"
	right := "id,val\n1,a\n2,changed\n4,d\n"

	engine := NewEngine(CSVCodec{}, nil)
	result, err := engine.Compare(context.Background(), CompareRequest{
		Left:     mustDecode(t, left),
		Right:    mustDecode(t, right),
		Keys:     []string{"id"},
		Targets:  []string{"val"},
		Strategy: StrategyJoin,
	})
	require.NoError(t, err)

	assert.Len(t, result.Match.Rows, 1)
	assert.Len(t, result.Diff.Rows, 1)
	assert.Len(t, result.LeftOnly.Rows, 1)
	assert.Len(t, result.RightOnly.Rows, 1)
}

func TestJoinStrategyCountsDuplicates(t *testing.T) {
	left := "id,val\n1,a\n1,b\n2,c\n"
	right := "id,val\n1,a\n2,c\n"

	engine := NewEngine(CSVCodec{}, nil)
	result, err := engine.Compare(context.Background(), CompareRequest{
		Left:     mustDecode(t, left),
		Right:    mustDecode(t, right),
		Keys:     []string{"id"},
		Targets:  []string{"val"},
		Strategy: StrategyJoin,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.LeftDuplicates)
	assert.Equal(t, 0, result.RightDuplicates)
}

func TestCompareRejectsIncompatibleSchemas(t *testing.T) {
	left := "id,val\n1,a\n"
	right := "id,other\n1,a\n"

	engine := NewEngine(CSVCodec{}, nil)
	_, err := engine.Compare(context.Background(), CompareRequest{
		Left:     mustDecode(t, left),
		Right:    mustDecode(t, right),
		Keys:     []string{"id"},
		Targets:  []string{"val"},
		Strategy: StrategyHash,
	})
	require.Error(t, err)
}

func TestCachePutGetRoundTrip(t *testing.T) {
	cache := NewCache(t.TempDir())
	ctx := context.Background()

	result := &CompareResult{
		Match:     &Frame{Columns: []string{"id"}, Rows: [][]string{{"1"}}},
		Diff:      &Frame{Columns: []string{"id"}},
		LeftOnly:  &Frame{Columns: []string{"id"}},
		RightOnly: &Frame{Columns: []string{"id"}},
	}

	require.NoError(t, cache.Put(ctx, "cmp1", "left-commit", "right-commit", result))

	got, hit, err := cache.Get(ctx, "cmp1", "left-commit", "right-commit")
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, result.Match.Rows, got.Match.Rows)

	_, hit, err = cache.Get(ctx, "cmp1", "left-commit", "different-right")
	require.NoError(t, err)
	assert.False(t, hit)
}
