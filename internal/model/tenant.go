package model

import (
	"encoding/json"
	"time"
)

// Permissions controls which ticket operations a tenant may perform. Older
// records may lack the field entirely; see Tenant.Permissions.
type Permissions struct {
	Generate bool `json:"generate"`
	Call     bool `json:"call"`
	Finish   bool `json:"finish"`
}

// DefaultPermissions grants every operation.
func DefaultPermissions() Permissions {
	return Permissions{Generate: true, Call: true, Finish: true}
}

// defaultDisplayConfig is the preset applied at registration. Its contents
// are opaque to the server.
var defaultDisplayConfig = map[string]any{
	"theme":           "default",
	"backgroundColor": "#ffffff",
	"textColor":       "#000000",
	"senhaColor":      "#000000",
	"fontFamily":      "Arial",
	"fontSize":        120,
	"logo":            nil,
	"backgroundType":  "color",
	"backgroundImage": nil,
	"footerText":      "",
	"voiceType":       "female",
	"volume":          80,
	"soundEffect":     "bell",
	"repeatInterval":  1,
}

// DefaultDisplayConfig returns a fresh copy of the registration preset.
func DefaultDisplayConfig() json.RawMessage {
	b, _ := json.Marshal(defaultDisplayConfig)
	return b
}

// Tenant represents a business account as stored in the `tenants` table.
// Permissions is nil when the stored record predates permission flags; the
// tenant service backfills it with DefaultPermissions on first use.
type Tenant struct {
	ID            string          `json:"id"`
	Email         string          `json:"email"`
	PasswordHash  string          `json:"-"`
	CompanyName   string          `json:"company_name"`
	Permissions   *Permissions    `json:"permissions"`
	DisplayConfig json.RawMessage `json:"display_config"`
	TotalServed   int64           `json:"total_served"`
	LastServedAt  *time.Time      `json:"last_served_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
