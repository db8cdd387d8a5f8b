package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/poyrazK/keypanel/internal/core/domain"
)

func TestPostgresRepository_Unit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock: %s", err)
	}
	defer db.Close()

	repo := NewPostgresRepository(db)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	t.Run("GetAccount", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"username", "role", "created_by", "server_status", "is_active", "mod_name", "balance", "created_at"}).
			AddRow("alice", "reseller", "bob", true, true, "AliceMod", 10, now)
		mock.ExpectQuery(`SELECT (.+) FROM accounts WHERE username = \$1`).
			WithArgs("alice").
			WillReturnRows(rows)

		acc, err := repo.GetAccount(ctx, "alice")
		if err != nil {
			t.Fatalf("GetAccount failed: %v", err)
		}
		if acc == nil || acc.Role != domain.RoleReseller || acc.Parent() != "bob" {
			t.Errorf("Unexpected account: %+v", acc)
		}
		if acc.ModName == nil || *acc.ModName != "AliceMod" {
			t.Errorf("Expected mod name override, got %v", acc.ModName)
		}
	})

	t.Run("GetAccount_NotFound", func(t *testing.T) {
		mock.ExpectQuery(`SELECT (.+) FROM accounts`).
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		acc, err := repo.GetAccount(ctx, "ghost")
		if err != nil || acc != nil {
			t.Errorf("Expected (nil, nil), got (%v, %v)", acc, err)
		}
	})

	t.Run("CreateAccount", func(t *testing.T) {
		acc := &domain.Account{Username: "carol", Role: domain.RoleReseller, CreatedBy: "bob", ServerStatus: true, IsActive: true, CreatedAt: now}
		mock.ExpectExec(`INSERT INTO accounts`).
			WithArgs("carol", "reseller", "bob", true, true, nil, 0, now).
			WillReturnResult(sqlmock.NewResult(1, 1))

		if err := repo.CreateAccount(ctx, acc); err != nil {
			t.Errorf("CreateAccount failed: %v", err)
		}
	})

	t.Run("SetServerStatus_Missing", func(t *testing.T) {
		mock.ExpectExec(`UPDATE accounts SET server_status`).
			WithArgs("ghost", false).
			WillReturnResult(sqlmock.NewResult(0, 0))

		if err := repo.SetServerStatus(ctx, "ghost", false); err == nil {
			t.Errorf("Expected error for missing account")
		}
	})

	t.Run("GetKey_Pending", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"key", "created_by", "max_devices", "current_devices", "duration", "duration_type", "is_active",
			"activated_at", "expiry_date", "credit", "announcement", "created_at"}).
			AddRow("K1", "alice", 1, 0, 7, "days", true, nil, domain.PendingExpiry, "", "", now)
		mock.ExpectQuery(`SELECT (.+) FROM license_keys WHERE key = \$1`).
			WithArgs("K1").
			WillReturnRows(rows)

		k, err := repo.GetKey(ctx, "K1")
		if err != nil {
			t.Fatalf("GetKey failed: %v", err)
		}
		if k.ActivatedAt != nil {
			t.Errorf("Expected pending key, got activated_at %v", k.ActivatedAt)
		}
		if k.DurationType != domain.DurationDays || k.Duration != 7 {
			t.Errorf("Unexpected duration: %d %s", k.Duration, k.DurationType)
		}
	})

	t.Run("CreateKeys", func(t *testing.T) {
		keys := []domain.LicenseKey{
			{Key: "A", CreatedBy: "alice", MaxDevices: 1, Duration: 1, DurationType: domain.DurationDays, IsActive: true, ExpiryDate: domain.PendingExpiry, CreatedAt: now},
			{Key: "B", CreatedBy: "alice", MaxDevices: 1, Duration: 1, DurationType: domain.DurationDays, IsActive: true, ExpiryDate: domain.PendingExpiry, CreatedAt: now},
		}
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO license_keys`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`INSERT INTO license_keys`).WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		if err := repo.CreateKeys(ctx, keys); err != nil {
			t.Errorf("CreateKeys failed: %v", err)
		}
	})

	t.Run("CreateKeys_Rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO license_keys`).WillReturnError(errors.New("duplicate key"))
		mock.ExpectRollback()

		err := repo.CreateKeys(ctx, []domain.LicenseKey{{Key: "A", CreatedBy: "alice"}})
		if err == nil {
			t.Errorf("Expected error on insert failure")
		}
	})

	t.Run("CreateKeysCharged_Insufficient", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE accounts SET balance = balance - \$2 WHERE username = \$1 AND balance >= \$2`).
			WithArgs("alice", 3).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		ok, err := repo.CreateKeysCharged(ctx, "alice", 3, []domain.LicenseKey{{Key: "A", CreatedBy: "alice"}})
		if err != nil || ok {
			t.Errorf("Expected insufficient balance, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("CreateKeysCharged_InsertFailureRollsBackCharge", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(`UPDATE accounts SET balance`).
			WithArgs("alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO license_keys`).WillReturnError(errors.New("duplicate key"))
		mock.ExpectRollback()

		ok, err := repo.CreateKeysCharged(ctx, "alice", 1, []domain.LicenseKey{{Key: "A", CreatedBy: "alice"}})
		if err == nil || ok {
			t.Errorf("Expected failure with the charge rolled back, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("ActivateKey_OnlyOnce", func(t *testing.T) {
		mock.ExpectExec(`UPDATE license_keys SET activated_at = \$2, expiry_date = \$3 WHERE key = \$1 AND activated_at IS NULL`).
			WithArgs("K1", now, now.Add(time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE license_keys SET activated_at`).
			WithArgs("K1", now, now.Add(time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		first, err := repo.ActivateKey(ctx, "K1", now, now.Add(time.Hour))
		if err != nil || !first {
			t.Errorf("Expected first activation to apply, got %v %v", first, err)
		}
		second, err := repo.ActivateKey(ctx, "K1", now, now.Add(time.Hour))
		if err != nil || second {
			t.Errorf("Expected second activation to be a no-op, got %v %v", second, err)
		}
	})

	t.Run("BindDevice_Conditional", func(t *testing.T) {
		b := &domain.DeviceBinding{KeyID: "K1", UUID: "dev-1", IPAddress: "1.2.3.4", LastLogin: now, CreatedAt: now}
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO device_bindings (.+) ON CONFLICT \(key_id, uuid\) DO NOTHING`).
			WithArgs("K1", "dev-1", "1.2.3.4", now, now).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`UPDATE license_keys SET current_devices = current_devices \+ 1 WHERE key = \$1 AND current_devices < max_devices`).
			WithArgs("K1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		outcome, err := repo.BindDevice(ctx, b, true)
		if err != nil || outcome != domain.BindAdded {
			t.Errorf("Expected bind to succeed, got %v %v", outcome, err)
		}
	})

	t.Run("BindDevice_ConditionalFull", func(t *testing.T) {
		b := &domain.DeviceBinding{KeyID: "K1", UUID: "dev-2", LastLogin: now, CreatedAt: now}
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO device_bindings`).
			WithArgs("K1", "dev-2", "", now, now).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(`AND current_devices < max_devices`).
			WithArgs("K1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		outcome, err := repo.BindDevice(ctx, b, true)
		if err != nil || outcome != domain.BindFull {
			t.Errorf("Expected full key to refuse binding, got %v %v", outcome, err)
		}
	})

	t.Run("BindDevice_AlreadyBound", func(t *testing.T) {
		b := &domain.DeviceBinding{KeyID: "K1", UUID: "dev-1", LastLogin: now, CreatedAt: now}
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO device_bindings (.+) ON CONFLICT`).
			WithArgs("K1", "dev-1", "", now, now).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		outcome, err := repo.BindDevice(ctx, b, false)
		if err != nil || outcome != domain.BindExisting {
			t.Errorf("Expected existing binding to be reported, got %v %v", outcome, err)
		}
	})

	t.Run("DelegationRule_RoundTrip", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO delegation_rules (.+) ON CONFLICT \(username\) DO UPDATE`).
			WithArgs("dave", "manual", `["carol"]`).
			WillReturnResult(sqlmock.NewResult(1, 1))
		rule := &domain.DelegationRule{Username: "dave", Type: domain.DelegationManual, AllowedUsers: []string{"carol"}}
		if err := repo.UpsertDelegationRule(ctx, rule); err != nil {
			t.Fatalf("UpsertDelegationRule failed: %v", err)
		}

		rows := sqlmock.NewRows([]string{"username", "type", "allowed_users"}).AddRow("dave", "manual", []byte(`["carol"]`))
		mock.ExpectQuery(`SELECT username, type, allowed_users FROM delegation_rules`).
			WithArgs("dave").
			WillReturnRows(rows)
		got, err := repo.GetDelegationRule(ctx, "dave")
		if err != nil {
			t.Fatalf("GetDelegationRule failed: %v", err)
		}
		if got.Type != domain.DelegationManual || len(got.AllowedUsers) != 1 || got.AllowedUsers[0] != "carol" {
			t.Errorf("Unexpected rule: %+v", got)
		}
	})

	t.Run("GetCredentials_Empty", func(t *testing.T) {
		mock.ExpectQuery(`SELECT api_key, secret_key, updated_at FROM api_credentials`).WillReturnError(sql.ErrNoRows)
		pair, err := repo.GetCredentials(ctx)
		if err != nil || pair != nil {
			t.Errorf("Expected (nil, nil), got (%v, %v)", pair, err)
		}
	})

	t.Run("SetMaintenance", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO panel_settings (.+) ON CONFLICT \(id\)`).
			WithArgs(true, "back soon").
			WillReturnResult(sqlmock.NewResult(1, 1))
		if err := repo.SetMaintenance(ctx, true, "back soon"); err != nil {
			t.Errorf("SetMaintenance failed: %v", err)
		}
	})

	t.Run("GetLatestResource", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "owner", "url", "created_at"}).AddRow("r1", "", "https://cdn.example/mod.apk", now)
		mock.ExpectQuery(`SELECT (.+) FROM resources`).
			WithArgs("alice").
			WillReturnRows(rows)
		res, err := repo.GetLatestResource(ctx, "alice")
		if err != nil || res == nil || res.URL != "https://cdn.example/mod.apk" {
			t.Errorf("Unexpected resource: %+v %v", res, err)
		}
	})

	t.Run("SaveActivityLog_Error", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO activity_logs`).WillReturnError(errors.New("db down"))
		err := repo.SaveActivityLog(ctx, &domain.ActivityLog{ID: "l1", Action: domain.ActionKeyRedeemed, CreatedAt: now})
		if err == nil {
			t.Errorf("Expected SaveActivityLog to surface db error")
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
