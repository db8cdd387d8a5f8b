package domain

import (
	"fmt"
	"time"
)

// DurationType is the unit of a key's validity duration.
type DurationType string

const (
	DurationHours DurationType = "hours"
	DurationDays  DurationType = "days"
)

// PendingExpiry is the placeholder expiry stored on keys that were never redeemed.
var PendingExpiry = time.Date(2099, time.December, 31, 23, 59, 59, 0, time.UTC)

// KeyState is derived from the activation fields, never persisted.
type KeyState string

const (
	KeyPending KeyState = "pending"
	KeyActive  KeyState = "active"
	KeyExpired KeyState = "expired"
)

// LicenseKey is a redeemable token limited by device count and duration.
type LicenseKey struct {
	Key            string       `json:"key"`
	CreatedBy      string       `json:"created_by"`
	MaxDevices     int          `json:"max_devices"`
	CurrentDevices int          `json:"current_devices"`
	Duration       int          `json:"duration"`
	DurationType   DurationType `json:"duration_type"`
	IsActive       bool         `json:"is_active"`
	ActivatedAt    *time.Time   `json:"activated_at,omitempty"`
	ExpiryDate     time.Time    `json:"expiry_date"`
	Credit         string       `json:"credit"`
	Announcement   string       `json:"announcement"`
	CreatedAt      time.Time    `json:"created_at"`
}

// MaxValidity caps a key's validity window at 100 years of 24 hour days.
const MaxValidity = 100 * 365 * 24 * time.Hour

// Validity returns the exact length of the key's validity window.
// Days are always 24 hours; no calendar arithmetic is applied.
func (k *LicenseKey) Validity() (time.Duration, error) {
	var unit time.Duration
	switch k.DurationType {
	case DurationHours:
		unit = time.Hour
	case DurationDays:
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("unknown duration type %q", k.DurationType)
	}
	if k.Duration < 0 || int64(k.Duration) > int64(MaxValidity/unit) {
		return 0, fmt.Errorf("duration %d %s out of range", k.Duration, k.DurationType)
	}
	return time.Duration(k.Duration) * unit, nil
}

// State reports the key's lifecycle state at now.
func (k *LicenseKey) State(now time.Time) KeyState {
	if k.ActivatedAt == nil {
		return KeyPending
	}
	if now.After(k.ExpiryDate) {
		return KeyExpired
	}
	return KeyActive
}

// Activation computes the activation timestamp and expiry for a pending key.
// It does not modify the key.
func (k *LicenseKey) Activation(now time.Time) (activatedAt, expiry time.Time, err error) {
	validity, err := k.Validity()
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return now, now.Add(validity), nil
}

// DevicesLeft is the number of free device slots.
func (k *LicenseKey) DevicesLeft() int {
	left := k.MaxDevices - k.CurrentDevices
	if left < 0 {
		return 0
	}
	return left
}

// BindOutcome reports what a device bind attempt did.
type BindOutcome string

const (
	// BindAdded means a new binding was stored and a slot consumed.
	BindAdded BindOutcome = "added"
	// BindFull means no slot was free; nothing was written.
	BindFull BindOutcome = "full"
	// BindExisting means the uuid was already bound to the key; nothing was written.
	BindExisting BindOutcome = "existing"
)

// DeviceBinding ties a client UUID to a key. One row per distinct UUID per key.
type DeviceBinding struct {
	KeyID     string    `json:"key_id"`
	UUID      string    `json:"uuid"`
	IPAddress string    `json:"ip_address"`
	LastLogin time.Time `json:"last_login"`
	CreatedAt time.Time `json:"created_at"`
}
