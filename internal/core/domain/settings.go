package domain

import "time"

// CredentialPair is the process-wide API credential. SecretKey doubles as the
// response cipher and signature key.
type CredentialPair struct {
	APIKey    string    `json:"api_key"`
	SecretKey string    `json:"secret_key"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PanelSettings holds the panel-wide flags read by the redemption path.
type PanelSettings struct {
	MaintenanceMode    bool   `json:"maintenance_mode"`
	MaintenanceMessage string `json:"maintenance_message"`
	DefaultModName     string `json:"default_mod_name"`
	Announcement       string `json:"announcement"`
}

// Resource is a downloadable artifact offered to redeeming clients.
type Resource struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"` // empty for the panel-wide resource
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// ActivityLog records redemption activity. Written best-effort.
type ActivityLog struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"` // e.g. "KEY_ACTIVATED", "REDEEM_DENIED"
	Endpoint  string    `json:"endpoint"`
	Owner     string    `json:"owner"`
	Key       string    `json:"key"`
	UUID      string    `json:"uuid"`
	IPAddress string    `json:"ip_address"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

const (
	ActionKeyActivated = "KEY_ACTIVATED"
	ActionDeviceBound  = "DEVICE_BOUND"
	ActionKeyRedeemed  = "KEY_REDEEMED"
	ActionRedeemDenied = "REDEEM_DENIED"
	ActionKeyGenerated = "KEY_GENERATED"
)
