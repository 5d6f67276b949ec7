package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erazemk/nakit/internal/model"
	"github.com/erazemk/nakit/internal/sequence"
)

// Memory is an in-process store with the same transactional behavior as
// SQLite. Tests use it to exercise the allocator and the migrator without a
// database file.
type Memory struct {
	mu         sync.Mutex
	nextID     int64
	branches   map[int64]model.Branch
	categories map[int64]model.Category
	items      map[int64]model.Item
	counters   map[[2]int64]int64
	users      map[int64]model.User
	insertErr  error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		branches:   make(map[int64]model.Branch),
		categories: make(map[int64]model.Category),
		items:      make(map[int64]model.Item),
		counters:   make(map[[2]int64]int64),
		users:      make(map[int64]model.User),
	}
}

func (m *Memory) id() int64 {
	m.nextID++
	return m.nextID
}

// AddBranch stores a branch and returns it.
func (m *Memory) AddBranch(code, name string) model.Branch {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := model.Branch{ID: m.id(), Code: code, Name: name, CreatedAt: time.Now().UTC()}
	m.branches[b.ID] = b
	return b
}

// AddCategory stores a category and returns it.
func (m *Memory) AddCategory(code, name string) model.Category {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := model.Category{ID: m.id(), Code: code, Name: name, CreatedAt: time.Now().UTC()}
	m.categories[c.ID] = c
	return c
}

// AddItem stores item as given, coded or not, without touching any counter.
// It mirrors importing records from an older system.
func (m *Memory) AddItem(item model.Item) model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	item.ID = m.id()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	item.UpdatedAt = item.CreatedAt
	m.items[item.ID] = item
	return item
}

// AddUser stores a user and returns it.
func (m *Memory) AddUser(username, passwordHash, role string) model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := model.User{ID: m.id(), Username: username, PasswordHash: passwordHash, Role: role, CreatedAt: time.Now().UTC()}
	m.users[u.ID] = u
	return u
}

// DeactivateUser soft-deletes a user.
func (m *Memory) DeactivateUser(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		now := time.Now().UTC()
		u.DeletedAt = &now
		m.users[id] = u
	}
}

// User returns a copy of the stored user, or nil.
func (m *Memory) User(id int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil
	}
	return &u
}

// Items returns every stored item ordered by id.
func (m *Memory) Items() []model.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := make([]model.Item, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

// FailInserts makes every following Writer.InsertItem return err. A nil err
// restores normal behavior.
func (m *Memory) FailInserts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *Memory) Branch(_ context.Context, id int64) (*model.Branch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.branches[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *Memory) Category(_ context.Context, id int64) (*model.Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.categories[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) Item(_ context.Context, id int64) (*model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *Memory) MaxSequence(_ context.Context, branchID, categoryID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.high(branchID, categoryID), nil
}

func (m *Memory) high(branchID, categoryID int64) int64 {
	high := m.counters[[2]int64{branchID, categoryID}]
	for _, item := range m.items {
		if item.BranchID == branchID && item.CategoryID == categoryID && item.TypeSeq > high {
			high = item.TypeSeq
		}
	}
	return high
}

func (m *Memory) ItemsMissingCode(_ context.Context) ([]model.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []model.Item
	for _, item := range m.items {
		if item.ItemCode == "" {
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// ReserveSequenceRange implements sequence.Store. The whole reservation,
// apply included, runs under the store mutex; writes are staged and only
// become visible if apply succeeds.
func (m *Memory) ReserveSequenceRange(ctx context.Context, branchID, categoryID int64, count int,
	apply func(w sequence.Writer, start int64) error) (int64, error) {
	const op = "store.ReserveSequenceRange"
	if count < 1 {
		return 0, model.Errorf(op, model.ErrValidation, "count must be positive")
	}
	if err := ctx.Err(); err != nil {
		return 0, model.Unavailable(op, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start := m.high(branchID, categoryID) + 1
	tx := &memoryTx{m: m, staged: make(map[int64]model.Item)}
	if apply != nil {
		if err := apply(tx, start); err != nil {
			return 0, err
		}
	}

	for id, item := range tx.staged {
		m.items[id] = item
	}
	m.counters[[2]int64{branchID, categoryID}] = start + int64(count) - 1
	return start, nil
}

// memoryTx is the Writer handed to apply. The store mutex is held by
// ReserveSequenceRange for its whole lifetime.
type memoryTx struct {
	m      *Memory
	staged map[int64]model.Item
}

func (tx *memoryTx) lookup(id int64) (model.Item, bool) {
	if item, ok := tx.staged[id]; ok {
		return item, true
	}
	item, ok := tx.m.items[id]
	return item, ok
}

func (tx *memoryTx) codeTaken(code string) bool {
	for _, item := range tx.staged {
		if item.ItemCode == code {
			return true
		}
	}
	for _, item := range tx.m.items {
		if item.ItemCode == code {
			return true
		}
	}
	return false
}

func (tx *memoryTx) InsertItem(_ context.Context, item *model.Item) error {
	const op = "store.InsertItem"
	if tx.m.insertErr != nil {
		return model.Unavailable(op, tx.m.insertErr)
	}
	if item.ItemCode != "" && tx.codeTaken(item.ItemCode) {
		return model.Errorf(op, model.ErrConflict, "item code %s already issued", item.ItemCode)
	}
	item.ID = tx.m.id()
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	tx.staged[item.ID] = *item
	return nil
}

func (tx *memoryTx) AssignCode(_ context.Context, itemID, branchID, categoryID, seq int64, code string) error {
	const op = "store.AssignCode"
	item, ok := tx.lookup(itemID)
	if !ok {
		return model.Errorf(op, model.ErrNotFound, "item %d", itemID)
	}
	if item.ItemCode != "" {
		return sequence.ErrAlreadyCoded
	}
	if tx.codeTaken(code) {
		return model.Errorf(op, model.ErrConflict, "item code %s already issued", code)
	}
	item.BranchID, item.CategoryID, item.TypeSeq, item.ItemCode = branchID, categoryID, seq, code
	item.UpdatedAt = time.Now().UTC()
	tx.staged[itemID] = item
	return nil
}

// FindCredential implements auth.CredentialStore.
func (m *Memory) FindCredential(_ context.Context, identifier string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *model.User
	for _, u := range m.users {
		if u.Username != identifier {
			continue
		}
		if found == nil || (u.Active() && !found.Active()) || (u.Active() == found.Active() && u.ID > found.ID) {
			found = &u
		}
	}
	return found, nil
}

func (m *Memory) RecordLoginSuccess(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.FailedLogins, u.LockedUntil = 0, nil
		m.users[userID] = u
	}
	return nil
}

func (m *Memory) RecordLoginFailure(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		u.FailedLogins++
		m.users[userID] = u
	}
	return nil
}

func (m *Memory) UpgradeHash(_ context.Context, userID int64, oldHash, newHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok || u.PasswordHash != oldHash {
		return false, nil
	}
	u.PasswordHash, u.FailedLogins, u.LockedUntil = newHash, 0, nil
	m.users[userID] = u
	return true, nil
}
