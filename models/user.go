package models

import "time"

// User is a payer record. Slug is the primary key and the provider's external reference.
type User struct {
	Slug      string     `json:"slug" gorm:"primaryKey;size:191"`
	Name      string     `json:"name" gorm:"not null"`
	Email     string     `json:"email" gorm:"not null"`
	Paid      bool       `json:"paid" gorm:"not null;default:false"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PayerView is the status lookup shape returned to the profile page.
type PayerView struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Slug  string `json:"slug"`
	Paid  bool   `json:"paid"`
}

// View projects u onto the public lookup shape.
func (u *User) View() PayerView {
	return PayerView{Name: u.Name, Email: u.Email, Slug: u.Slug, Paid: u.Paid}
}

// PaymentStatusResponse answers the client's "check payment" action.
type PaymentStatusResponse struct {
	Slug string `json:"slug"`
	Paid bool   `json:"paid"`
}
