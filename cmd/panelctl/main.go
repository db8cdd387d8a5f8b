package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/poyrazK/keypanel/internal/adapters/cache"
	"github.com/poyrazK/keypanel/internal/adapters/repository"
	"github.com/poyrazK/keypanel/internal/core/domain"
	"github.com/poyrazK/keypanel/internal/core/ports"
	"github.com/poyrazK/keypanel/internal/core/services"
	"github.com/poyrazK/keypanel/internal/infrastructure/config"
)

const usage = "expected 'create-account', 'generate', 'maintenance', 'delegate', 'server-status' or 'rotate-credentials' subcommands"

func main() {
	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Printf("failed to close database: %v", err)
		}
	}()
	repo := repository.NewPostgresRepository(db)

	var invalidator ports.Cache
	if cfg.Redis.Addr != "" {
		rc := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rc.Close()
		invalidator = rc
	}
	settings := services.NewSettingsProvider(repo, invalidator, 0, domain.CredentialPair{}, nil)

	if err := dispatch(context.Background(), repo, settings, cfg, os.Args[1], os.Args[2:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func dispatch(ctx context.Context, repo ports.PanelRepository, settings *services.SettingsProvider, cfg *config.Config, cmd string, args []string, out io.Writer) error {
	switch cmd {
	case "create-account":
		fs := flag.NewFlagSet("create-account", flag.ContinueOnError)
		user := fs.String("user", "", "Username")
		role := fs.String("role", string(domain.RoleReseller), "Role (superOwner, owner, admin or reseller)")
		parent := fs.String("parent", domain.SystemCreator, "Creating account")
		balance := fs.Int("balance", 0, "Starting key balance")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return createAccount(ctx, repo, *user, domain.Role(*role), *parent, *balance, out)
	case "generate":
		fs := flag.NewFlagSet("generate", flag.ContinueOnError)
		creator := fs.String("creator", "", "Username that owns the new keys")
		count := fs.Int("count", 1, "Number of keys")
		dur := fs.Int("duration", 1, "Validity length")
		unit := fs.String("unit", "days", "Validity unit (hours or days)")
		devices := fs.Int("devices", 1, "Maximum devices per key")
		credit := fs.String("credit", "", "Credit line shown to clients")
		announcement := fs.String("announcement", "", "Per-key announcement")
		if err := fs.Parse(args); err != nil {
			return err
		}
		audit := services.NewAsyncAudit(repo, nil)
		defer audit.Wait()
		gen := services.NewKeyGenerator(repo, audit, services.GeneratorConfig{
			KeyCost:  cfg.Generation.KeyCost,
			MaxBatch: cfg.Generation.MaxBatch,
		}, nil)
		return generateKeys(ctx, gen, services.GenerateRequest{
			Creator: *creator, Count: *count, Duration: *dur, DurationType: domain.DurationType(*unit),
			MaxDevices: *devices, Credit: *credit, Announcement: *announcement,
		}, out)
	case "maintenance":
		fs := flag.NewFlagSet("maintenance", flag.ContinueOnError)
		on := fs.Bool("on", false, "Enable maintenance mode")
		message := fs.String("message", "", "Message returned to clients")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return setMaintenance(ctx, repo, settings, *on, *message, out)
	case "delegate":
		fs := flag.NewFlagSet("delegate", flag.ContinueOnError)
		user := fs.String("user", "", "Endpoint username")
		kind := fs.String("type", "auto", "Delegation type (auto or manual)")
		allow := fs.String("allow", "", "Comma-separated usernames for manual delegation")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return setDelegation(ctx, repo, *user, domain.DelegationType(*kind), splitList(*allow), out)
	case "server-status":
		fs := flag.NewFlagSet("server-status", flag.ContinueOnError)
		user := fs.String("user", "", "Reseller username")
		on := fs.Bool("on", true, "Whether the reseller's server is on")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return setServerStatus(ctx, repo, *user, *on, out)
	case "rotate-credentials":
		fs := flag.NewFlagSet("rotate-credentials", flag.ContinueOnError)
		apiKey := fs.String("api-key", "", "New API key (random when empty)")
		secret := fs.String("secret-key", "", "New secret key (random when empty)")
		if err := fs.Parse(args); err != nil {
			return err
		}
		return rotateCredentials(ctx, repo, settings, *apiKey, *secret, out)
	}
	return fmt.Errorf("unknown subcommand %q: %s", cmd, usage)
}

func createAccount(ctx context.Context, repo ports.AccountRepository, user string, role domain.Role, parent string, balance int, out io.Writer) error {
	if user == "" {
		return fmt.Errorf("user is required")
	}
	switch role {
	case domain.RoleSuperOwner, domain.RoleOwner, domain.RoleAdmin, domain.RoleReseller:
	default:
		return fmt.Errorf("unknown role %q", role)
	}
	if parent != domain.SystemCreator {
		p, err := repo.GetAccount(ctx, parent)
		if err != nil {
			return err
		}
		if p == nil {
			return fmt.Errorf("parent account %s not found", parent)
		}
	}
	acc := &domain.Account{
		Username: user, Role: role, CreatedBy: parent, ServerStatus: true, IsActive: true,
		Balance: balance, CreatedAt: time.Now(),
	}
	if err := repo.CreateAccount(ctx, acc); err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	fmt.Fprintf(out, "Account %s (%s) created by %s\n", user, role, parent)
	return nil
}

func generateKeys(ctx context.Context, gen *services.KeyGenerator, req services.GenerateRequest, out io.Writer) error {
	keys, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Generated %d key(s) for %s (%d %s, %d device(s))\n", len(keys), req.Creator, req.Duration, req.DurationType, req.MaxDevices)
	for _, k := range keys {
		fmt.Fprintln(out, k.Key)
	}
	return nil
}

func setMaintenance(ctx context.Context, repo ports.SettingsRepository, settings *services.SettingsProvider, on bool, message string, out io.Writer) error {
	if err := repo.SetMaintenance(ctx, on, message); err != nil {
		return fmt.Errorf("failed to update maintenance mode: %w", err)
	}
	if err := settings.Invalidate(ctx); err != nil {
		return fmt.Errorf("maintenance updated but cache invalidation failed: %w", err)
	}
	state := "off"
	if on {
		state = "on"
	}
	fmt.Fprintf(out, "Maintenance mode %s\n", state)
	return nil
}

func setDelegation(ctx context.Context, repo ports.PanelRepository, user string, kind domain.DelegationType, allowed []string, out io.Writer) error {
	if user == "" {
		return fmt.Errorf("user is required")
	}
	switch kind {
	case domain.DelegationAuto:
		allowed = nil
	case domain.DelegationManual:
		if len(allowed) == 0 {
			return fmt.Errorf("manual delegation needs at least one allowed user")
		}
	default:
		return fmt.Errorf("unknown delegation type %q", kind)
	}
	acc, err := repo.GetAccount(ctx, user)
	if err != nil {
		return err
	}
	if acc == nil {
		return fmt.Errorf("account %s not found", user)
	}
	if err := repo.UpsertDelegationRule(ctx, &domain.DelegationRule{Username: user, Type: kind, AllowedUsers: allowed}); err != nil {
		return fmt.Errorf("failed to save delegation rule: %w", err)
	}
	fmt.Fprintf(out, "Delegation for %s set to %s %s\n", user, kind, strings.Join(allowed, ","))
	return nil
}

func setServerStatus(ctx context.Context, repo ports.AccountRepository, user string, on bool, out io.Writer) error {
	if user == "" {
		return fmt.Errorf("user is required")
	}
	if err := repo.SetServerStatus(ctx, user, on); err != nil {
		return err
	}
	fmt.Fprintf(out, "Server status for %s set to %t\n", user, on)
	return nil
}

func rotateCredentials(ctx context.Context, repo ports.SettingsRepository, settings *services.SettingsProvider, apiKey, secret string, out io.Writer) error {
	var err error
	if apiKey == "" {
		if apiKey, err = randomToken(); err != nil {
			return err
		}
	}
	if secret == "" {
		if secret, err = randomToken(); err != nil {
			return err
		}
	}
	if err := repo.SaveCredentials(ctx, &domain.CredentialPair{APIKey: apiKey, SecretKey: secret, UpdatedAt: time.Now()}); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if err := settings.Invalidate(ctx); err != nil {
		return fmt.Errorf("credentials saved but cache invalidation failed: %w", err)
	}

	fmt.Fprintf(out, "Credentials rotated\n")
	fmt.Fprintf(out, "---------------------------\n")
	fmt.Fprintf(out, "API KEY:    %s\n", apiKey)
	fmt.Fprintf(out, "SECRET KEY: %s\n", secret)
	fmt.Fprintf(out, "---------------------------\n")
	fmt.Fprintf(out, "CAUTION: Clients must be updated with the new pair.\n")
	return nil
}

func randomToken() (string, error) {
	raw := make([]byte, 16)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
