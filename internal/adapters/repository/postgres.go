package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/poyrazK/keypanel/internal/core/domain"
)

// Schema is the DDL for every table the repository uses.
//
//go:embed schema.sql
var Schema string

// PostgresRepository implements ports.PanelRepository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates and returns a new PostgresRepository instance.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. It is idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, Schema)
	return err
}

func (r *PostgresRepository) GetAccount(ctx context.Context, username string) (*domain.Account, error) {
	query := `SELECT username, role, created_by, server_status, is_active, mod_name, balance, created_at
	          FROM accounts WHERE username = $1`
	var a domain.Account
	var modName sql.NullString
	errRow := r.db.QueryRowContext(ctx, query, username).Scan(&a.Username, &a.Role, &a.CreatedBy, &a.ServerStatus, &a.IsActive, &modName, &a.Balance, &a.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if modName.Valid {
		a.ModName = &modName.String
	}
	return &a, nil
}

func (r *PostgresRepository) CreateAccount(ctx context.Context, a *domain.Account) error {
	query := `INSERT INTO accounts (username, role, created_by, server_status, is_active, mod_name, balance, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query, a.Username, string(a.Role), a.CreatedBy, a.ServerStatus, a.IsActive, a.ModName, a.Balance, a.CreatedAt)
	return err
}

func (r *PostgresRepository) SetServerStatus(ctx context.Context, username string, on bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE accounts SET server_status = $2 WHERE username = $1`, username, on)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("account %s not found", username)
	}
	return nil
}

const keyColumns = `key, created_by, max_devices, current_devices, duration, duration_type, is_active,
	activated_at, expiry_date, credit, announcement, created_at`

func (r *PostgresRepository) GetKey(ctx context.Context, key string) (*domain.LicenseKey, error) {
	query := `SELECT ` + keyColumns + ` FROM license_keys WHERE key = $1`
	var k domain.LicenseKey
	var activatedAt sql.NullTime
	errRow := r.db.QueryRowContext(ctx, query, key).Scan(&k.Key, &k.CreatedBy, &k.MaxDevices, &k.CurrentDevices, &k.Duration, &k.DurationType, &k.IsActive,
		&activatedAt, &k.ExpiryDate, &k.Credit, &k.Announcement, &k.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if activatedAt.Valid {
		t := activatedAt.Time
		k.ActivatedAt = &t
	}
	return &k, nil
}

func (r *PostgresRepository) CreateKeys(ctx context.Context, keys []domain.LicenseKey) error {
	_, err := r.CreateKeysCharged(ctx, "", 0, keys)
	return err
}

func (r *PostgresRepository) CreateKeysCharged(ctx context.Context, payer string, cost int, keys []domain.LicenseKey) (bool, error) {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return false, errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	if cost > 0 {
		charge := `UPDATE accounts SET balance = balance - $2 WHERE username = $1 AND balance >= $2`
		res, errExec := tx.ExecContext(ctx, charge, payer, cost)
		if errExec != nil {
			return false, fmt.Errorf("charge %s: %w", payer, errExec)
		}
		n, errRows := res.RowsAffected()
		if errRows != nil {
			return false, errRows
		}
		if n == 0 {
			return false, nil
		}
	}

	query := `INSERT INTO license_keys (key, created_by, max_devices, current_devices, duration, duration_type, is_active, expiry_date, credit, announcement, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	for _, k := range keys {
		if _, errExec := tx.ExecContext(ctx, query, k.Key, k.CreatedBy, k.MaxDevices, k.CurrentDevices, k.Duration, string(k.DurationType), k.IsActive, k.ExpiryDate, k.Credit, k.Announcement, k.CreatedAt); errExec != nil {
			return false, fmt.Errorf("insert key %s: %w", k.Key, errExec)
		}
	}
	if errCommit := tx.Commit(); errCommit != nil {
		return false, errCommit
	}
	return true, nil
}

func (r *PostgresRepository) ActivateKey(ctx context.Context, key string, activatedAt, expiry time.Time) (bool, error) {
	query := `UPDATE license_keys SET activated_at = $2, expiry_date = $3 WHERE key = $1 AND activated_at IS NULL`
	res, err := r.db.ExecContext(ctx, query, key, activatedAt, expiry)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) GetDeviceBinding(ctx context.Context, keyID, uuid string) (*domain.DeviceBinding, error) {
	query := `SELECT key_id, uuid, ip_address, last_login, created_at FROM device_bindings WHERE key_id = $1 AND uuid = $2`
	var b domain.DeviceBinding
	errRow := r.db.QueryRowContext(ctx, query, keyID, uuid).Scan(&b.KeyID, &b.UUID, &b.IPAddress, &b.LastLogin, &b.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &b, nil
}

func (r *PostgresRepository) TouchDeviceBinding(ctx context.Context, keyID, uuid, ip string, at time.Time) error {
	query := `UPDATE device_bindings SET ip_address = $3, last_login = $4 WHERE key_id = $1 AND uuid = $2`
	_, err := r.db.ExecContext(ctx, query, keyID, uuid, ip, at)
	return err
}

func (r *PostgresRepository) BindDevice(ctx context.Context, b *domain.DeviceBinding, conditional bool) (domain.BindOutcome, error) {
	tx, errTx := r.db.BeginTx(ctx, nil)
	if errTx != nil {
		return "", errTx
	}
	defer func() {
		if errRollback := tx.Rollback(); errRollback != nil && !errors.Is(errRollback, sql.ErrTxDone) {
			log.Printf("failed to rollback transaction: %v", errRollback)
		}
	}()

	insert := `INSERT INTO device_bindings (key_id, uuid, ip_address, last_login, created_at) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key_id, uuid) DO NOTHING`
	res, errExec := tx.ExecContext(ctx, insert, b.KeyID, b.UUID, b.IPAddress, b.LastLogin, b.CreatedAt)
	if errExec != nil {
		return "", errExec
	}
	n, errRows := res.RowsAffected()
	if errRows != nil {
		return "", errRows
	}
	if n == 0 {
		return domain.BindExisting, nil
	}

	increment := `UPDATE license_keys SET current_devices = current_devices + 1 WHERE key = $1`
	if conditional {
		increment += ` AND current_devices < max_devices`
	}
	res, errExec = tx.ExecContext(ctx, increment, b.KeyID)
	if errExec != nil {
		return "", errExec
	}
	n, errRows = res.RowsAffected()
	if errRows != nil {
		return "", errRows
	}
	if n == 0 {
		return domain.BindFull, nil
	}

	if errCommit := tx.Commit(); errCommit != nil {
		return "", errCommit
	}
	return domain.BindAdded, nil
}

func (r *PostgresRepository) GetDelegationRule(ctx context.Context, username string) (*domain.DelegationRule, error) {
	query := `SELECT username, type, allowed_users FROM delegation_rules WHERE username = $1`
	var rule domain.DelegationRule
	var allowed []byte
	errRow := r.db.QueryRowContext(ctx, query, username).Scan(&rule.Username, &rule.Type, &allowed)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	if len(allowed) > 0 {
		if err := json.Unmarshal(allowed, &rule.AllowedUsers); err != nil {
			return nil, fmt.Errorf("decode allowed users for %s: %w", username, err)
		}
	}
	return &rule, nil
}

func (r *PostgresRepository) UpsertDelegationRule(ctx context.Context, rule *domain.DelegationRule) error {
	allowed := rule.AllowedUsers
	if allowed == nil {
		allowed = []string{}
	}
	data, err := json.Marshal(allowed)
	if err != nil {
		return err
	}
	query := `INSERT INTO delegation_rules (username, type, allowed_users) VALUES ($1, $2, $3)
	          ON CONFLICT (username) DO UPDATE SET type = EXCLUDED.type, allowed_users = EXCLUDED.allowed_users`
	_, err = r.db.ExecContext(ctx, query, rule.Username, string(rule.Type), string(data))
	return err
}

func (r *PostgresRepository) GetCredentials(ctx context.Context) (*domain.CredentialPair, error) {
	var p domain.CredentialPair
	errRow := r.db.QueryRowContext(ctx, `SELECT api_key, secret_key, updated_at FROM api_credentials WHERE id = 1`).Scan(&p.APIKey, &p.SecretKey, &p.UpdatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &p, nil
}

func (r *PostgresRepository) SaveCredentials(ctx context.Context, pair *domain.CredentialPair) error {
	query := `INSERT INTO api_credentials (id, api_key, secret_key, updated_at) VALUES (1, $1, $2, $3)
	          ON CONFLICT (id) DO UPDATE SET api_key = EXCLUDED.api_key, secret_key = EXCLUDED.secret_key, updated_at = EXCLUDED.updated_at`
	_, err := r.db.ExecContext(ctx, query, pair.APIKey, pair.SecretKey, pair.UpdatedAt)
	return err
}

func (r *PostgresRepository) GetPanelSettings(ctx context.Context) (*domain.PanelSettings, error) {
	query := `SELECT maintenance_mode, maintenance_message, default_mod_name, announcement FROM panel_settings WHERE id = 1`
	var s domain.PanelSettings
	errRow := r.db.QueryRowContext(ctx, query).Scan(&s.MaintenanceMode, &s.MaintenanceMessage, &s.DefaultModName, &s.Announcement)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &s, nil
}

func (r *PostgresRepository) SetMaintenance(ctx context.Context, on bool, message string) error {
	query := `INSERT INTO panel_settings (id, maintenance_mode, maintenance_message) VALUES (1, $1, $2)
	          ON CONFLICT (id) DO UPDATE SET maintenance_mode = EXCLUDED.maintenance_mode, maintenance_message = EXCLUDED.maintenance_message`
	_, err := r.db.ExecContext(ctx, query, on, message)
	return err
}

// GetLatestResource prefers the owner's newest resource and falls back to the panel-wide one.
func (r *PostgresRepository) GetLatestResource(ctx context.Context, owner string) (*domain.Resource, error) {
	query := `SELECT id, COALESCE(owner, ''), url, created_at FROM resources
	          WHERE owner = $1 OR owner IS NULL
	          ORDER BY (owner IS NULL), created_at DESC LIMIT 1`
	var res domain.Resource
	errRow := r.db.QueryRowContext(ctx, query, owner).Scan(&res.ID, &res.Owner, &res.URL, &res.CreatedAt)
	if errors.Is(errRow, sql.ErrNoRows) {
		return nil, nil
	}
	if errRow != nil {
		return nil, errRow
	}
	return &res, nil
}

func (r *PostgresRepository) SaveActivityLog(ctx context.Context, l *domain.ActivityLog) error {
	query := `INSERT INTO activity_logs (id, action, endpoint, owner, key, uuid, ip_address, details, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query, l.ID, l.Action, l.Endpoint, l.Owner, l.Key, l.UUID, l.IPAddress, l.Details, l.CreatedAt)
	return err
}

func (r *PostgresRepository) ListActivityLogs(ctx context.Context, key string) ([]domain.ActivityLog, error) {
	query := `SELECT id, action, endpoint, owner, key, uuid, ip_address, details, created_at FROM activity_logs WHERE key = $1 ORDER BY created_at DESC`
	rows, errQuery := r.db.QueryContext(ctx, query, key)
	if errQuery != nil {
		return nil, errQuery
	}
	defer func() {
		if errClose := rows.Close(); errClose != nil {
			log.Printf("failed to close rows: %v", errClose)
		}
	}()

	var logs []domain.ActivityLog
	for rows.Next() {
		var l domain.ActivityLog
		if errScan := rows.Scan(&l.ID, &l.Action, &l.Endpoint, &l.Owner, &l.Key, &l.UUID, &l.IPAddress, &l.Details, &l.CreatedAt); errScan != nil {
			return nil, errScan
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
