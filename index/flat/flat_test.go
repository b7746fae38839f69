package flat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rutmehta/halo/distance"
	"github.com/rutmehta/halo/index"
)

func newTestIndex(t *testing.T, dim int) *Flat {
	t.Helper()
	f, err := New(func(o *Options) {
		o.Dimension = dim
	})
	require.NoError(t, err)
	return f
}

func unit(vs ...float32) []float32 {
	v, ok := distance.NormalizeL2Copy(vs)
	if !ok {
		panic("zero vector in test fixture")
	}
	return v
}

func TestInsertAndSearch(t *testing.T) {
	f := newTestIndex(t, 3)

	v1 := unit(1, 0, 0)
	v2 := unit(0, 1, 0)
	v3 := unit(0.9, 0.1, 0)

	require.NoError(t, f.Insert(1, v1))
	require.NoError(t, f.Insert(2, v2))
	require.NoError(t, f.Insert(3, v3))
	assert.Equal(t, 3, f.Size())

	results, err := f.Search(v2, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, uint64(2), results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, uint64(3), results[1].ID)
	assert.Equal(t, uint64(1), results[2].ID)

	// Scores strictly non-increasing.
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestInsertDuplicateID(t *testing.T) {
	f := newTestIndex(t, 2)
	require.NoError(t, f.Insert(7, unit(1, 0)))

	err := f.Insert(7, unit(0, 1))
	var dup *index.ErrDuplicateID
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, uint64(7), dup.ID)
	assert.Equal(t, 1, f.Size())
}

func TestInsertDimensionMismatch(t *testing.T) {
	f := newTestIndex(t, 4)

	err := f.Insert(1, []float32{1, 2})
	var dm *index.ErrDimensionMismatch
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 4, dm.Expected)
	assert.Equal(t, 2, dm.Actual)
	assert.Equal(t, 0, f.Size(), "failed insert must not mutate state")
}

func TestDelete(t *testing.T) {
	f := newTestIndex(t, 2)
	require.NoError(t, f.Insert(1, unit(1, 0)))
	require.NoError(t, f.Insert(2, unit(0, 1)))

	require.NoError(t, f.Delete(1))
	assert.Equal(t, 1, f.Size())

	results, err := f.Search(unit(1, 0), 5, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)

	// Deleting again fails and never alters size.
	var nf *index.ErrIDNotFound
	require.ErrorAs(t, f.Delete(1), &nf)
	assert.Equal(t, 1, f.Size())
}

func TestSearchEmptyAndUnderPopulated(t *testing.T) {
	f := newTestIndex(t, 2)

	results, err := f.Search(unit(1, 0), 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, f.Insert(1, unit(1, 0)))
	results, err = f.Search(unit(1, 0), 5, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearchInvalidArgs(t *testing.T) {
	f := newTestIndex(t, 2)

	_, err := f.Search(unit(1, 0), 0, nil)
	assert.ErrorIs(t, err, index.ErrInvalidK)

	_, err = f.Search([]float32{1, 2, 3}, 1, nil)
	var dm *index.ErrDimensionMismatch
	assert.ErrorAs(t, err, &dm)
}

func TestTieBreakByInsertionOrder(t *testing.T) {
	f := newTestIndex(t, 2)

	// Identical vectors under different IDs: equal scores, earlier ID first.
	v := unit(1, 1)
	require.NoError(t, f.Insert(10, v))
	require.NoError(t, f.Insert(5, v))
	require.NoError(t, f.Insert(20, v))

	results, err := f.Search(v, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []uint64{10, 5, 20}, []uint64{results[0].ID, results[1].ID, results[2].ID})
}

func TestSearchFilter(t *testing.T) {
	f := newTestIndex(t, 2)
	require.NoError(t, f.Insert(1, unit(1, 0)))
	require.NoError(t, f.Insert(2, unit(1, 0.1)))

	results, err := f.Search(unit(1, 0), 5, &index.SearchOptions{
		Filter: func(id uint64) bool { return id != 1 },
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint64(2), results[0].ID)
}

func TestGobRoundTrip(t *testing.T) {
	f := newTestIndex(t, 3)
	for i := range 20 {
		require.NoError(t, f.Insert(uint64(i+1), unit(float32(i+1), 1, 0.5)))
	}
	require.NoError(t, f.Delete(4))

	data, err := f.GobEncode()
	require.NoError(t, err)

	restored := &Flat{}
	require.NoError(t, restored.GobDecode(data))
	assert.Equal(t, f.Size(), restored.Size())
	assert.Equal(t, f.Dimension(), restored.Dimension())

	q := unit(3, 1, 0.2)
	want, err := f.Search(q, 10, nil)
	require.NoError(t, err)
	got, err := restored.Search(q, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got, "round-trip must reproduce identical query behavior")
}

func TestConcurrentInsertSearch(t *testing.T) {
	f := newTestIndex(t, 4)

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				id := uint64(w*1000 + i)
				err := f.Insert(id, unit(float32(w+1), float32(i+1), 1, 0))
				assert.NoError(t, err)
				_, err = f.Search(unit(1, 1, 1, 0), 5, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, f.Size())
}

func BenchmarkSearch(b *testing.B) {
	f, _ := New(func(o *Options) { o.Dimension = 128 })
	for i := range 10000 {
		v := make([]float32, 128)
		for j := range v {
			v[j] = float32((i*31 + j*17) % 97)
		}
		distance.NormalizeL2InPlace(v)
		if err := f.Insert(uint64(i+1), v); err != nil {
			b.Fatal(err)
		}
	}
	q := make([]float32, 128)
	for j := range q {
		q[j] = float32(j)
	}
	distance.NormalizeL2InPlace(q)

	b.ResetTimer()
	for b.Loop() {
		if _, err := f.Search(q, 10, nil); err != nil {
			b.Fatal(err)
		}
	}
}

func ExampleFlat_Search() {
	f, _ := New(func(o *Options) { o.Dimension = 2 })
	_ = f.Insert(1, []float32{1, 0})
	_ = f.Insert(2, []float32{0, 1})

	results, _ := f.Search([]float32{1, 0}, 1, nil)
	fmt.Println(results[0].ID)
	// Output: 1
}
