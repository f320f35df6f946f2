package domain

import (
	"encoding/json"
	"time"
)

// User is the per-wallet document holding the wallet's latest order
// accounts.
type User struct {
	UserPK        string          `json:"userPk"`
	OrderAccounts json.RawMessage `json:"orderAccounts"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}
