package sequence

import (
	"context"
	"errors"

	"github.com/erazemk/nakit/internal/model"
)

// ErrAlreadyCoded is returned by Writer.AssignCode when the item received a
// code after the caller read it.
var ErrAlreadyCoded = errors.New("item already has a code")

// Writer is the set of writes that may ride along with a sequence
// reservation. Its methods run inside the reserving transaction.
type Writer interface {
	// InsertItem inserts a new, already coded item and sets item.ID,
	// item.CreatedAt and item.UpdatedAt.
	InsertItem(ctx context.Context, item *model.Item) error
	// AssignCode gives an uncoded item its branch, category, sequence number
	// and code. It returns ErrAlreadyCoded if the item has a code already.
	AssignCode(ctx context.Context, itemID, branchID, categoryID, seq int64, code string) error
}

// Store is the persistence the allocator depends on. Lookups return nil, nil
// for missing rows.
type Store interface {
	Branch(ctx context.Context, id int64) (*model.Branch, error)
	Category(ctx context.Context, id int64) (*model.Category, error)
	Item(ctx context.Context, id int64) (*model.Item, error)

	// MaxSequence returns the high-water mark for the pair: the larger of the
	// stored counter and the highest type_seq of its items, 0 if neither exists.
	MaxSequence(ctx context.Context, branchID, categoryID int64) (int64, error)

	// ReserveSequenceRange atomically advances the high-water mark M of the
	// pair to M+count and calls apply with start = M+1 inside the same
	// transaction. If apply or the commit fails, M is left unchanged.
	ReserveSequenceRange(ctx context.Context, branchID, categoryID int64, count int,
		apply func(w Writer, start int64) error) (start int64, err error)

	// ItemsMissingCode lists every item without a code, soft-deleted ones
	// included, ordered by creation time and then id.
	ItemsMissingCode(ctx context.Context) ([]model.Item, error)
}
