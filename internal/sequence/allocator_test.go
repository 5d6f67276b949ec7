package sequence_test

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/erazemk/nakit/internal/db"
	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
	"github.com/erazemk/nakit/internal/store"
)

// backend is a store plus the seeding helpers the tests need.
type backend struct {
	name     string
	store    sequence.Store
	branch   func(code string) int64
	category func(code string) int64
	legacy   func(item model.Item) int64
}

func memoryBackend(t *testing.T) backend {
	t.Helper()
	m := store.NewMemory()
	var tick time.Duration
	return backend{
		name:     "memory",
		store:    m,
		branch:   func(code string) int64 { return m.AddBranch(code, code).ID },
		category: func(code string) int64 { return m.AddCategory(code, code).ID },
		legacy: func(item model.Item) int64 {
			tick += time.Second
			item.CreatedAt = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(tick)
			return m.AddItem(item).ID
		},
	}
}

func sqliteBackend(t *testing.T) backend {
	t.Helper()
	database := db.NewTestFileDB(t)
	ctx := context.Background()
	return backend{
		name:  "sqlite",
		store: store.NewSQLite(database),
		branch: func(code string) int64 {
			b, err := store.CreateBranch(ctx, database, code, code)
			require.NoError(t, err)
			return b.ID
		},
		category: func(code string) int64 {
			c, err := store.CreateCategory(ctx, database, code, code)
			require.NoError(t, err)
			return c.ID
		},
		legacy: func(item model.Item) int64 {
			created, err := store.CreateUncodedItem(ctx, database, item)
			require.NoError(t, err)
			return created.ID
		},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, b backend)) {
	for _, mk := range []func(*testing.T) backend{memoryBackend, sqliteBackend} {
		b := mk(t)
		t.Run(b.name, func(t *testing.T) { fn(t, b) })
	}
}

func codes(allocs []sequence.Allocation) []string {
	out := make([]string, len(allocs))
	for i, a := range allocs {
		out[i] = a.ItemCode
	}
	return out
}

func TestAllocateComposesCodes(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		next, err := a.PeekNext(ctx, branch, category)
		require.NoError(t, err)
		assert.Equal(t, int64(1), next)

		first, err := a.Allocate(ctx, branch, category, 2)
		require.NoError(t, err)
		assert.Equal(t, []string{"HPI-rng-1", "HPI-rng-2"}, codes(first))

		third, err := a.Allocate(ctx, branch, category, 1)
		require.NoError(t, err)
		assert.Equal(t, sequence.Allocation{Seq: 3, ItemCode: "HPI-rng-3"}, third[0])
	})
}

func TestPeekAndPreviewDoNotReserve(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		for range 3 {
			next, err := a.PeekNext(ctx, branch, category)
			require.NoError(t, err)
			assert.Equal(t, int64(1), next)
		}
		preview, err := a.Preview(ctx, branch, category, 3)
		require.NoError(t, err)
		assert.Equal(t, []string{"HPI-rng-1", "HPI-rng-2", "HPI-rng-3"}, codes(preview))

		got, err := a.Allocate(ctx, branch, category, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got[0].Seq)
	})
}

func TestAllocateUnknownReferenceConsumesNothing(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		_, err := a.Allocate(ctx, branch, 9999, 1)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = a.Allocate(ctx, 9999, category, 1)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = a.PeekNext(ctx, 9999, category)
		assert.ErrorIs(t, err, model.ErrNotFound)

		got, err := a.Allocate(ctx, branch, category, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got[0].Seq)
	})
}

func TestAllocateRejectsBadCount(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		draft := model.Item{BranchID: branch, CategoryID: category, Title: "Ring"}
		for _, n := range []int{0, -1, -100, sequence.MaxBatch + 1} {
			_, err := a.Allocate(ctx, branch, category, n)
			assert.ErrorIs(t, err, model.ErrValidation, "count %d", n)

			items, err := a.CreateItems(ctx, draft, n)
			assert.ErrorIs(t, err, model.ErrValidation, "create count %d", n)
			assert.Empty(t, items)
		}

		got, err := a.PeekNext(ctx, branch, category)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got, "rejected counts must not consume numbers")
	})
}

func TestAllocateConcurrent(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		const callers = 50
		seqs := make([]int64, callers)
		var g errgroup.Group
		for i := range callers {
			g.Go(func() error {
				got, err := a.Allocate(ctx, branch, category, 1)
				if err != nil {
					return err
				}
				seqs[i] = got[0].Seq
				return nil
			})
		}
		require.NoError(t, g.Wait())

		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		for i, seq := range seqs {
			assert.Equal(t, int64(i+1), seq)
		}
	})
}

func TestConcurrentBatchesAreDisjoint(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		const callers, batch = 10, 5
		results := make([][]sequence.Allocation, callers)
		var g errgroup.Group
		for i := range callers {
			g.Go(func() error {
				got, err := a.Allocate(ctx, branch, category, batch)
				results[i] = got
				return err
			})
		}
		require.NoError(t, g.Wait())

		seen := make(map[int64]bool)
		for _, allocs := range results {
			require.Len(t, allocs, batch)
			for i, alloc := range allocs {
				assert.False(t, seen[alloc.Seq], "seq %d issued twice", alloc.Seq)
				seen[alloc.Seq] = true
				assert.Equal(t, allocs[0].Seq+int64(i), alloc.Seq, "batch must be contiguous")
			}
		}
		for seq := int64(1); seq <= callers*batch; seq++ {
			assert.True(t, seen[seq], "gap at %d", seq)
		}
	})
}

func TestPairsAreIndependent(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		hpi, ljn := b.branch("HPI"), b.branch("LJN")
		rings := b.category("rng")

		for range 3 {
			_, err := a.Allocate(ctx, hpi, rings, 1)
			require.NoError(t, err)
		}
		got, err := a.Allocate(ctx, ljn, rings, 1)
		require.NoError(t, err)
		assert.Equal(t, "LJN-rng-1", got[0].ItemCode)

		next, err := a.PeekNext(ctx, hpi, rings)
		require.NoError(t, err)
		assert.Equal(t, int64(4), next)
	})
}

func TestAllocateContinuesAfterImportedNumbers(t *testing.T) {
	m := store.NewMemory()
	branch, category := m.AddBranch("HPI", "Main"), m.AddCategory("rng", "Rings")
	m.AddItem(model.Item{BranchID: branch.ID, CategoryID: category.ID, TypeSeq: 41, ItemCode: "HPI-rng-41", Title: "Old"})

	got, err := sequence.New(m).Allocate(context.Background(), branch.ID, category.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, "HPI-rng-42", got[0].ItemCode)
}

func TestCreateItems(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		items, err := a.CreateItems(ctx, model.Item{
			BranchID: branch, CategoryID: category, Title: " Wedding band ", Metal: "gold", Karat: 14,
		}, 3)
		require.NoError(t, err)
		require.Len(t, items, 3)
		for i, item := range items {
			assert.NotZero(t, item.ID)
			assert.Equal(t, int64(i+1), item.TypeSeq)
			assert.Equal(t, model.FormatItemCode("HPI", "rng", int64(i+1)), item.ItemCode)
			assert.Equal(t, "Wedding band", item.Title)
			assert.Equal(t, model.ItemStatusInStock, item.Status)

			stored, err := b.store.Item(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, item.ItemCode, stored.ItemCode)
		}

		_, err = a.CreateItems(ctx, model.Item{BranchID: branch, CategoryID: category}, 1)
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestCreateItemsFailureLeavesNoGap(t *testing.T) {
	m := store.NewMemory()
	branch, category := m.AddBranch("HPI", "Main"), m.AddCategory("rng", "Rings")
	a := sequence.New(m)
	ctx := context.Background()
	draft := model.Item{BranchID: branch.ID, CategoryID: category.ID, Title: "Ring"}

	m.FailInserts(errors.New("disk full"))
	_, err := a.CreateItems(ctx, draft, 2)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)
	assert.Empty(t, m.Items())

	m.FailInserts(nil)
	items, err := a.CreateItems(ctx, draft, 1)
	require.NoError(t, err)
	assert.Equal(t, "HPI-rng-1", items[0].ItemCode)
}

func TestBackfillIsIdempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")
		_, err := a.Allocate(ctx, branch, category, 2)
		require.NoError(t, err)

		id := b.legacy(model.Item{BranchID: branch, CategoryID: category, Title: "Old ring"})
		stale, err := b.store.Item(ctx, id)
		require.NoError(t, err)

		first, err := a.Backfill(ctx, *stale)
		require.NoError(t, err)
		assert.Equal(t, sequence.Allocation{Seq: 3, ItemCode: "HPI-rng-3"}, first)

		// Same stale copy again, then the fresh one.
		again, err := a.Backfill(ctx, *stale)
		require.NoError(t, err)
		assert.Equal(t, first, again)

		fresh, err := b.store.Item(ctx, id)
		require.NoError(t, err)
		again, err = a.Backfill(ctx, *fresh)
		require.NoError(t, err)
		assert.Equal(t, first, again)

		next, err := a.PeekNext(ctx, branch, category)
		require.NoError(t, err)
		assert.Equal(t, int64(4), next, "repeated backfill must not consume numbers")
	})
}

func TestBackfillAll(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		hpi, rings, chains := b.branch("HPI"), b.category("rng"), b.category("chn")
		a := sequence.New(b.store)

		ids := []int64{
			b.legacy(model.Item{BranchID: hpi, CategoryID: rings, Title: "a"}),
			b.legacy(model.Item{BranchID: hpi, CategoryID: chains, Title: "b"}),
			b.legacy(model.Item{BranchID: hpi, CategoryID: rings, Title: "c"}),
			b.legacy(model.Item{Title: "no references"}),
		}

		report, err := a.BackfillAll(ctx)
		require.NoError(t, err)
		require.Len(t, report.Assigned, 3)
		assert.Equal(t, sequence.BackfillResult{ItemID: ids[0], Allocation: sequence.Allocation{Seq: 1, ItemCode: "HPI-rng-1"}}, report.Assigned[0])
		assert.Equal(t, sequence.BackfillResult{ItemID: ids[1], Allocation: sequence.Allocation{Seq: 1, ItemCode: "HPI-chn-1"}}, report.Assigned[1])
		assert.Equal(t, sequence.BackfillResult{ItemID: ids[2], Allocation: sequence.Allocation{Seq: 2, ItemCode: "HPI-rng-2"}}, report.Assigned[2])
		require.Len(t, report.Failed, 1)
		assert.Equal(t, ids[3], report.Failed[0].ItemID)

		// A rerun changes nothing that was already coded.
		rerun, err := a.BackfillAll(ctx)
		require.NoError(t, err)
		assert.Empty(t, rerun.Assigned)
		assert.Len(t, rerun.Failed, 1)
		for _, r := range report.Assigned {
			item, err := b.store.Item(ctx, r.ItemID)
			require.NoError(t, err)
			assert.Equal(t, r.ItemCode, item.ItemCode)
		}
	})
}

func TestBackfillAllIsDeterministic(t *testing.T) {
	run := func() []sequence.BackfillResult {
		b := memoryBackend(t)
		hpi, rings := b.branch("HPI"), b.category("rng")
		for _, title := range []string{"x", "y", "z"} {
			b.legacy(model.Item{BranchID: hpi, CategoryID: rings, Title: title})
		}
		report, err := sequence.New(b.store).BackfillAll(context.Background())
		require.NoError(t, err)
		return report.Assigned
	}
	assert.Equal(t, run(), run())
}

func TestBackfillUsesConfiguredDefaults(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		hpi, rings := b.branch("HPI"), b.category("rng")
		id := b.legacy(model.Item{Title: "Unsorted"})
		item, err := b.store.Item(ctx, id)
		require.NoError(t, err)

		_, err = sequence.New(b.store).Backfill(ctx, *item)
		assert.ErrorIs(t, err, model.ErrValidation)

		a := sequence.New(b.store, sequence.WithBackfillDefaults(sequence.Defaults{BranchID: hpi, CategoryID: rings}))
		got, err := a.Backfill(ctx, *item)
		require.NoError(t, err)
		assert.Equal(t, "HPI-rng-1", got.ItemCode)

		stored, err := b.store.Item(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, hpi, stored.BranchID)
		assert.Equal(t, rings, stored.CategoryID)
	})
}

func TestBackfillDefaultsApplyOnlyToUnclassifiedItems(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		hpi, lju := b.branch("HPI"), b.branch("LJU")
		rings := b.category("rng")
		a := sequence.New(b.store, sequence.WithBackfillDefaults(sequence.Defaults{BranchID: hpi, CategoryID: rings}))

		id := b.legacy(model.Item{Title: "Brooch from Ljubljana", BranchID: lju})
		item, err := b.store.Item(ctx, id)
		require.NoError(t, err)

		_, err = a.Backfill(ctx, *item)
		assert.ErrorIs(t, err, model.ErrValidation)

		stored, err := b.store.Item(ctx, id)
		require.NoError(t, err)
		assert.False(t, stored.Coded())
		assert.Equal(t, lju, stored.BranchID, "a half-classified item keeps its branch")

		next, err := a.PeekNext(ctx, lju, rings)
		require.NoError(t, err)
		assert.Equal(t, int64(1), next)
	})
}

func TestConcurrentBackfillAndAllocate(t *testing.T) {
	eachBackend(t, func(t *testing.T, b backend) {
		ctx := context.Background()
		a := sequence.New(b.store)
		branch, category := b.branch("HPI"), b.category("rng")

		const legacy = 10
		var items []model.Item
		for range legacy {
			id := b.legacy(model.Item{BranchID: branch, CategoryID: category, Title: "old"})
			item, err := b.store.Item(ctx, id)
			require.NoError(t, err)
			items = append(items, *item)
		}

		var g errgroup.Group
		for _, item := range items {
			// Each legacy item is backfilled twice concurrently.
			for range 2 {
				g.Go(func() error {
					_, err := a.Backfill(ctx, item)
					return err
				})
			}
			g.Go(func() error {
				_, err := a.Allocate(ctx, branch, category, 1)
				return err
			})
		}
		require.NoError(t, g.Wait())

		next, err := a.PeekNext(ctx, branch, category)
		require.NoError(t, err)
		assert.Equal(t, int64(2*legacy+1), next)
	})
}
