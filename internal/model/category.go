package model

import "time"

// CategoryType indicates whether a category tracks spending, income, or saving.
type CategoryType string

const (
	// CategoryTypeSpending represents categories for outgoing money.
	CategoryTypeSpending CategoryType = "spending"
	// CategoryTypeIncome represents categories for incoming money.
	CategoryTypeIncome CategoryType = "income"
	// CategoryTypeSaving represents categories for transfers into savings.
	CategoryTypeSaving CategoryType = "saving"
)

// Category represents a valid transaction category.
type Category struct {
	CreatedAt time.Time
	Name      string
	Type      CategoryType
	ID        int
	IsActive  bool
}
