package model

import (
	"fmt"
	"time"
)

// Branch is a shop location. Its code is the first segment of every item
// code issued for it and never changes after creation.
type Branch struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Category groups items of one kind (rings, chains, ...). Same lifecycle as Branch.
type Category struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// MaxCodeLength bounds branch and category codes.
const MaxCodeLength = 16

// ValidateCode checks a branch or category code. Codes are ASCII letters and
// digits only, because '-' separates the segments of an item code.
func ValidateCode(code string) error {
	if code == "" {
		return fmt.Errorf("code required")
	}
	if len(code) > MaxCodeLength {
		return fmt.Errorf("code must be at most %d characters", MaxCodeLength)
	}
	for _, r := range code {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return fmt.Errorf("code may only contain letters and digits")
		}
	}
	return nil
}
