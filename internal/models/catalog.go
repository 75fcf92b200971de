package models

import "time"

// Plan is a purchasable service. IsVisible maps to the is_visible column;
// a NULL column reads as visible.
type Plan struct {
	ID          string `json:"id" validate:"required,max=64"`
	Title       string `json:"title" validate:"required,max=120"`
	Price       string `json:"price" validate:"max=40"`
	Amount      int64  `json:"amount" validate:"gte=0"`
	Number      int    `json:"number" validate:"gte=0"`
	Description string `json:"description" validate:"max=2000"`
	IsVisible   bool   `json:"isVisible"`
}

type Editor struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name" validate:"required,max=120"`
	Email     string    `json:"email" db:"email" validate:"omitempty,email"`
	Specialty string    `json:"specialty" db:"specialty" validate:"required,max=120"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// ArchiveProject is a public before/after showcase item.
type ArchiveProject struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title" validate:"required,max=200"`
	Category    string    `json:"category" db:"category" validate:"required,max=120"`
	BeforeURL   string    `json:"beforeurl" db:"before_url" validate:"omitempty,url"`
	AfterURL    string    `json:"afterurl" db:"after_url" validate:"required,url"`
	Description string    `json:"description" db:"description" validate:"max=2000"`
	CreatedAt   time.Time `json:"timestamp" db:"created_at"`
}
