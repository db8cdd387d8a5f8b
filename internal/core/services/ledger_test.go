package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/testutil"
	"github.com/stretchr/testify/mock"
)

func TestParseCounterMode(t *testing.T) {
	tests := []struct {
		in      string
		want    CounterMode
		wantErr bool
	}{
		{"", CounterLegacy, false},
		{"legacy", CounterLegacy, false},
		{"atomic", CounterAtomic, false},
		{"optimistic", "", true},
	}
	for _, tt := range tests {
		got, err := ParseCounterMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseCounterMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestDeviceLedger_CommitErrors(t *testing.T) {
	ctx := context.Background()
	key := &domain.LicenseKey{Key: "K", MaxDevices: 1}

	repo := new(testutil.MockRepo)
	repo.On("BindDevice", mock.Anything, true).Return(domain.BindFull, nil)
	_, err := NewDeviceLedger(repo, CounterAtomic).Commit(ctx, key, "U1", "ip", DeviceAdmission{}, time.Now())
	if domain.AsError(err).Reason != domain.ReasonDeviceLimit {
		t.Errorf("expected device limit, got %v", err)
	}
	if key.CurrentDevices != 0 {
		t.Errorf("refused bind must not change the counter")
	}

	repo = new(testutil.MockRepo)
	repo.On("GetDeviceBinding", "K", "U1").Return(nil, errors.New("timeout"))
	_, err = NewDeviceLedger(repo, "").Admit(ctx, key, "U1")
	if domain.AsError(err).Kind != domain.KindInternal {
		t.Errorf("expected internal error, got %v", err)
	}
}

func TestDeviceLedger_CommitAlreadyBound(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	key := &domain.LicenseKey{Key: "K", MaxDevices: 2, CurrentDevices: 1}

	repo := new(testutil.MockRepo)
	repo.On("BindDevice", mock.Anything, false).Return(domain.BindExisting, nil)
	repo.On("TouchDeviceBinding", "K", "U1", "ip", now).Return(nil)

	adm, err := NewDeviceLedger(repo, CounterLegacy).Commit(ctx, key, "U1", "ip", DeviceAdmission{}, now)
	if err != nil {
		t.Fatalf("expected an already bound device to be accepted, got %v", err)
	}
	if !adm.Returning {
		t.Errorf("expected the device to be treated as returning")
	}
	if key.CurrentDevices != 1 {
		t.Errorf("existing binding must not change the counter, got %d", key.CurrentDevices)
	}
	repo.AssertExpectations(t)
}
