package services

import (
	"context"
	"fmt"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/poyrazK/keypanel/internal/infrastructure/metrics"
)

// CounterMode selects how a new device slot is claimed.
type CounterMode string

const (
	// CounterLegacy checks the counter read with the key and increments
	// unconditionally. Concurrent new devices can overshoot max_devices.
	CounterLegacy CounterMode = "legacy"
	// CounterAtomic increments only while current_devices < max_devices.
	CounterAtomic CounterMode = "atomic"
)

// ParseCounterMode validates a configured mode name.
func ParseCounterMode(s string) (CounterMode, error) {
	switch CounterMode(s) {
	case CounterLegacy, CounterAtomic:
		return CounterMode(s), nil
	case "":
		return CounterLegacy, nil
	}
	return "", fmt.Errorf("unknown device counter mode %q", s)
}

// DeviceAdmission is the ledger's decision for one (key, uuid) pair.
type DeviceAdmission struct {
	Returning bool
}

// DeviceLedger enforces per-key device limits.
type DeviceLedger struct {
	devices ports.DeviceRepository
	mode    CounterMode
}

func NewDeviceLedger(devices ports.DeviceRepository, mode CounterMode) *DeviceLedger {
	if mode == "" {
		mode = CounterLegacy
	}
	return &DeviceLedger{devices: devices, mode: mode}
}

// Admit decides whether uuid may use key without writing anything.
func (l *DeviceLedger) Admit(ctx context.Context, key *domain.LicenseKey, uuid string) (DeviceAdmission, error) {
	binding, err := l.devices.GetDeviceBinding(ctx, key.Key, uuid)
	if err != nil {
		return DeviceAdmission{}, domain.Internal(err)
	}
	if binding != nil {
		return DeviceAdmission{Returning: true}, nil
	}
	if key.CurrentDevices >= key.MaxDevices {
		return DeviceAdmission{}, domain.NewError(domain.KindState, domain.ReasonDeviceLimit)
	}
	return DeviceAdmission{}, nil
}

// Commit records the admitted device and returns the final admission. A
// returning device only has its last-seen metadata refreshed; a new device
// consumes a slot. A new device that a concurrent request bound first is
// treated as returning.
func (l *DeviceLedger) Commit(ctx context.Context, key *domain.LicenseKey, uuid, ip string, adm DeviceAdmission, now time.Time) (DeviceAdmission, error) {
	if adm.Returning {
		return adm, l.touch(ctx, key, uuid, ip, now)
	}

	outcome, err := l.devices.BindDevice(ctx, &domain.DeviceBinding{
		KeyID:     key.Key,
		UUID:      uuid,
		IPAddress: ip,
		LastLogin: now,
		CreatedAt: now,
	}, l.mode == CounterAtomic)
	if err != nil {
		return adm, domain.Internal(err)
	}
	switch outcome {
	case domain.BindFull:
		return adm, domain.NewError(domain.KindState, domain.ReasonDeviceLimit)
	case domain.BindExisting:
		returning := DeviceAdmission{Returning: true}
		return returning, l.touch(ctx, key, uuid, ip, now)
	}
	key.CurrentDevices++
	metrics.DeviceBindings.WithLabelValues("new").Inc()
	return adm, nil
}

func (l *DeviceLedger) touch(ctx context.Context, key *domain.LicenseKey, uuid, ip string, now time.Time) error {
	if err := l.devices.TouchDeviceBinding(ctx, key.Key, uuid, ip, now); err != nil {
		return domain.Internal(err)
	}
	metrics.DeviceBindings.WithLabelValues("returning").Inc()
	return nil
}
