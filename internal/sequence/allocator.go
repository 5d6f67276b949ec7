// Package sequence issues item codes of the form BRANCH-CATEGORY-SEQ.
//
// Sequence numbers are strictly increasing per (branch, category) pair, never
// reused and never skipped. Every reservation runs as one store transaction
// while a per-pair lock is held, so concurrent callers in the same process
// queue per pair and callers in other processes are serialized by the store.
package sequence

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/erazemk/nakit/internal/metrics"
	"github.com/erazemk/nakit/internal/model"
)

// MaxBatch is the largest count accepted by a single reservation.
const MaxBatch = 1000

// Allocation is one issued sequence number and the code composed from it.
type Allocation struct {
	Seq      int64  `json:"seq"`
	ItemCode string `json:"item_code"`
}

// Defaults names the pair used when backfilling an item that has no branch
// or category reference. Zero means no default.
type Defaults struct {
	BranchID   int64
	CategoryID int64
}

// Allocator hands out sequence numbers and item codes.
type Allocator struct {
	store    Store
	locks    pairLocks
	defaults Defaults
	logger   *slog.Logger
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) { a.logger = l }
}

// WithBackfillDefaults sets the pair used for items missing a reference.
func WithBackfillDefaults(d Defaults) Option {
	return func(a *Allocator) { a.defaults = d }
}

// New creates an Allocator on top of store.
func New(store Store, opts ...Option) *Allocator {
	a := &Allocator{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// PeekNext returns the number the next allocation for the pair would get.
// It reserves nothing.
func (a *Allocator) PeekNext(ctx context.Context, branchID, categoryID int64) (int64, error) {
	const op = "sequence.PeekNext"
	if _, _, err := a.codes(ctx, op, branchID, categoryID); err != nil {
		return 0, err
	}
	high, err := a.store.MaxSequence(ctx, branchID, categoryID)
	if err != nil {
		return 0, model.Unavailable(op, err)
	}
	return high + 1, nil
}

// Preview composes the codes the next count allocations would get. Like
// PeekNext it reserves nothing, so a concurrent caller may take them first.
func (a *Allocator) Preview(ctx context.Context, branchID, categoryID int64, count int) ([]Allocation, error) {
	const op = "sequence.Preview"
	if err := validateCount(op, count); err != nil {
		return nil, err
	}
	branchCode, categoryCode, err := a.codes(ctx, op, branchID, categoryID)
	if err != nil {
		return nil, err
	}
	high, err := a.store.MaxSequence(ctx, branchID, categoryID)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}
	return compose(branchCode, categoryCode, high+1, count), nil
}

// Allocate reserves count consecutive numbers for the pair and returns them
// with their codes. Callers retry the whole call on model.ErrConflict.
func (a *Allocator) Allocate(ctx context.Context, branchID, categoryID int64, count int) ([]Allocation, error) {
	return a.reserve(ctx, "sequence.Allocate", branchID, categoryID, count, nil)
}

// CreateItems inserts count copies of draft, each with its own freshly
// allocated code, in the same transaction as the reservation. Either every
// item is created or none is and the pair's counter is unchanged.
func (a *Allocator) CreateItems(ctx context.Context, draft model.Item, count int) ([]model.Item, error) {
	const op = "sequence.CreateItems"
	if err := validateCount(op, count); err != nil {
		return nil, err
	}
	if err := prepareDraft(op, &draft); err != nil {
		return nil, err
	}

	items := make([]model.Item, 0, count)
	_, err := a.reserve(ctx, op, draft.BranchID, draft.CategoryID, count,
		func(w Writer, allocs []Allocation) error {
			items = items[:0]
			for _, alloc := range allocs {
				item := draft
				item.ID = 0
				item.TypeSeq = alloc.Seq
				item.ItemCode = alloc.ItemCode
				if err := w.InsertItem(ctx, &item); err != nil {
					return err
				}
				items = append(items, item)
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// Backfill gives an item lacking a code the next number of its pair. An item
// that already has a code is returned unchanged, so calling Backfill again
// is harmless.
func (a *Allocator) Backfill(ctx context.Context, item model.Item) (Allocation, error) {
	alloc, _, err := a.backfill(ctx, item)
	return alloc, err
}

func (a *Allocator) backfill(ctx context.Context, item model.Item) (alloc Allocation, assigned bool, err error) {
	const op = "sequence.Backfill"
	if item.Coded() {
		return Allocation{Seq: item.TypeSeq, ItemCode: item.ItemCode}, false, nil
	}

	// Defaults apply as a pair, only to items with neither reference set.
	branchID, categoryID := item.BranchID, item.CategoryID
	if branchID == 0 && categoryID == 0 {
		branchID, categoryID = a.defaults.BranchID, a.defaults.CategoryID
	}
	if branchID == 0 || categoryID == 0 {
		return Allocation{}, false, model.Errorf(op, model.ErrValidation,
			"item %d is missing its branch or category", item.ID)
	}

	allocs, err := a.reserve(ctx, op, branchID, categoryID, 1, func(w Writer, allocs []Allocation) error {
		return w.AssignCode(ctx, item.ID, branchID, categoryID, allocs[0].Seq, allocs[0].ItemCode)
	})
	if errors.Is(err, ErrAlreadyCoded) {
		// Someone else coded it between our read and the reservation.
		current, err := a.store.Item(ctx, item.ID)
		if err != nil {
			return Allocation{}, false, model.Unavailable(op, err)
		}
		if current == nil {
			return Allocation{}, false, model.Errorf(op, model.ErrNotFound, "item %d", item.ID)
		}
		return Allocation{Seq: current.TypeSeq, ItemCode: current.ItemCode}, false, nil
	}
	if err != nil {
		return Allocation{}, false, err
	}
	return allocs[0], true, nil
}

// BackfillResult is one item coded by BackfillAll.
type BackfillResult struct {
	ItemID int64 `json:"item_id"`
	Allocation
}

// BackfillFailure is one item BackfillAll could not code.
type BackfillFailure struct {
	ItemID int64  `json:"item_id"`
	Reason string `json:"reason"`
}

// BackfillReport summarizes a BackfillAll run.
type BackfillReport struct {
	Assigned []BackfillResult  `json:"assigned"`
	Skipped  int               `json:"skipped"`
	Failed   []BackfillFailure `json:"failed"`
}

// BackfillAll codes every item that lacks a code, oldest first. Items that
// cannot be coded (missing references, unknown branch) are reported and
// skipped. A conflict or store failure stops the run; rerunning it resumes
// where it stopped and gives the same result as an uninterrupted run.
func (a *Allocator) BackfillAll(ctx context.Context) (*BackfillReport, error) {
	const op = "sequence.BackfillAll"
	items, err := a.store.ItemsMissingCode(ctx)
	if err != nil {
		return nil, model.Unavailable(op, err)
	}

	report := &BackfillReport{Assigned: []BackfillResult{}, Failed: []BackfillFailure{}}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		alloc, assigned, err := a.backfill(ctx, item)
		switch {
		case err == nil && assigned:
			report.Assigned = append(report.Assigned, BackfillResult{ItemID: item.ID, Allocation: alloc})
		case err == nil:
			report.Skipped++
		case model.IsValidation(err) || model.IsNotFound(err):
			a.logger.Warn("backfill skipped item", "item_id", item.ID, "error", err)
			report.Failed = append(report.Failed, BackfillFailure{ItemID: item.ID, Reason: err.Error()})
		default:
			return report, err
		}
	}

	a.logger.Info("backfill finished",
		"assigned", len(report.Assigned), "skipped", report.Skipped, "failed", len(report.Failed))
	return report, nil
}

// reserve looks up the pair's codes, then advances its counter by count
// under the pair lock. apply, when set, runs inside the store transaction.
func (a *Allocator) reserve(ctx context.Context, op string, branchID, categoryID int64, count int,
	apply func(w Writer, allocs []Allocation) error) ([]Allocation, error) {
	if err := validateCount(op, count); err != nil {
		return nil, err
	}
	branchCode, categoryCode, err := a.codes(ctx, op, branchID, categoryID)
	if err != nil {
		return nil, err
	}

	unlock := a.locks.lock(pair{branchID, categoryID})
	defer unlock()
	started := time.Now()

	var allocs []Allocation
	start, err := a.store.ReserveSequenceRange(ctx, branchID, categoryID, count,
		func(w Writer, start int64) error {
			allocs = compose(branchCode, categoryCode, start, count)
			if apply != nil {
				return apply(w, allocs)
			}
			return nil
		})
	metrics.SequenceReserveDuration.Observe(time.Since(started).Seconds())

	if err != nil {
		outcome := metrics.OutcomeError
		if model.IsConflict(err) {
			outcome = metrics.OutcomeConflict
		}
		metrics.SequenceReservations.WithLabelValues(opName(op), outcome).Inc()
		return nil, model.Unavailable(op, err)
	}

	metrics.SequenceReservations.WithLabelValues(opName(op), metrics.OutcomeOK).Inc()
	metrics.SequenceNumbersIssued.Add(float64(count))
	a.logger.Debug("sequence range reserved",
		"op", op, "branch_id", branchID, "category_id", categoryID,
		"first", start, "last", start+int64(count)-1)
	return allocs, nil
}

// codes resolves the codes of both ends of the pair. Nothing is reserved if
// either is missing.
func (a *Allocator) codes(ctx context.Context, op string, branchID, categoryID int64) (string, string, error) {
	branch, err := a.store.Branch(ctx, branchID)
	if err != nil {
		return "", "", model.Unavailable(op, err)
	}
	if branch == nil {
		return "", "", model.Errorf(op, model.ErrNotFound, "branch %d", branchID)
	}
	category, err := a.store.Category(ctx, categoryID)
	if err != nil {
		return "", "", model.Unavailable(op, err)
	}
	if category == nil {
		return "", "", model.Errorf(op, model.ErrNotFound, "category %d", categoryID)
	}
	return branch.Code, category.Code, nil
}

func compose(branchCode, categoryCode string, start int64, count int) []Allocation {
	allocs := make([]Allocation, count)
	for i := range allocs {
		seq := start + int64(i)
		allocs[i] = Allocation{Seq: seq, ItemCode: model.FormatItemCode(branchCode, categoryCode, seq)}
	}
	return allocs
}

func validateCount(op string, count int) error {
	if count < 1 || count > MaxBatch {
		return model.Errorf(op, model.ErrValidation, "count must be between 1 and %d", MaxBatch)
	}
	return nil
}

func prepareDraft(op string, draft *model.Item) error {
	draft.Title = strings.TrimSpace(draft.Title)
	if draft.Title == "" {
		return model.Errorf(op, model.ErrValidation, "title required")
	}
	if draft.Status == "" {
		draft.Status = model.ItemStatusInStock
	}
	if !model.ValidItemStatus(draft.Status) {
		return model.Errorf(op, model.ErrValidation, "invalid status %q", draft.Status)
	}
	if draft.Condition == "" {
		draft.Condition = model.ConditionNew
	}
	if !model.ValidCondition(draft.Condition) {
		return model.Errorf(op, model.ErrValidation, "invalid condition %q", draft.Condition)
	}
	if draft.Karat < 0 || draft.Weight.IsNegative() {
		return model.Errorf(op, model.ErrValidation, "karat and weight must not be negative")
	}
	draft.TypeSeq, draft.ItemCode, draft.DeletedAt = 0, "", nil
	return nil
}

func opName(op string) string {
	return strings.TrimPrefix(op, "sequence.")
}
