package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Item is a single piece of jewelry. BranchID, CategoryID, TypeSeq and
// ItemCode are fixed once assigned; the descriptive fields may change.
type Item struct {
	ID         int64           `json:"id"`
	BranchID   int64           `json:"branch_id"`
	CategoryID int64           `json:"category_id"`
	TypeSeq    int64           `json:"type_seq,omitempty"`
	ItemCode   string          `json:"item_code,omitempty"`
	Title      string          `json:"title"`
	Metal      string          `json:"metal,omitempty"`
	Karat      int             `json:"karat,omitempty"`
	Weight     decimal.Decimal `json:"weight"`
	Condition  string          `json:"condition"`
	Status     string          `json:"status"`
	ImageMime  string          `json:"image_mime,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  *time.Time      `json:"deleted_at,omitempty"`
}

// Coded reports whether the item already carries an issued code.
func (i *Item) Coded() bool {
	return i.ItemCode != "" && i.TypeSeq > 0
}

// Item statuses.
const (
	ItemStatusInStock  = "in_stock"
	ItemStatusReserved = "reserved"
	ItemStatusSold     = "sold"
	ItemStatusRepair   = "repair"
)

// Item conditions.
const (
	ConditionNew  = "new"
	ConditionUsed = "used"
)

// ValidItemStatus reports whether s is a known item status.
func ValidItemStatus(s string) bool {
	switch s {
	case ItemStatusInStock, ItemStatusReserved, ItemStatusSold, ItemStatusRepair:
		return true
	}
	return false
}

// ValidCondition reports whether s is a known item condition.
func ValidCondition(s string) bool {
	return s == ConditionNew || s == ConditionUsed
}

// FormatItemCode composes the human-readable code "{branch}-{category}-{seq}".
func FormatItemCode(branchCode, categoryCode string, seq int64) string {
	return fmt.Sprintf("%s-%s-%d", branchCode, categoryCode, seq)
}
