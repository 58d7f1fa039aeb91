package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// User is the account that owns payment events and ledger entries. MerchantID
// is unique but nullable: only a subset of accounts act as merchants, and the
// webhook pipeline resolves inbound events to their owner through it. Owned
// events and entries hang off the user_id foreign keys on the other tables.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email      string    `gorm:"uniqueIndex;type:varchar(200)" json:"email" validate:"required,email,min=5,max=200"`
	MerchantID *string   `gorm:"type:varchar(100);uniqueIndex:ux_users_merchant_id;default:null" json:"merchant_id,omitempty"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

// IsMerchant reports whether the account is linked to a merchant identifier.
func (u *User) IsMerchant() bool {
	return u.MerchantID != nil && *u.MerchantID != ""
}
