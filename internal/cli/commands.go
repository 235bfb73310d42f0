package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
)

var (
	errUsage    = errors.New("wrong arguments, see help")
	errNoVault  = errors.New("no vault found, run init first")
	errHasVault = errors.New("a vault already exists, run wipe first")
)

// generatedPasswordSize is in random bytes; the hex form is twice as long.
const generatedPasswordSize = 12

func (a *App) isUnlocked() bool {
	return a.engine.IsUnlocked()
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

// Init creates an empty vault sealed with a key derived from a new master
// password, then unlocks it.
func (a *App) Init(ctx context.Context, _ []string) error {
	has, err := a.engine.HasEncryptedDatabase(ctx)
	if err != nil {
		return err
	}
	if has {
		return errHasVault
	}

	password, err := GetPassword(a.out, "New master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	confirm, err := GetPassword(a.out, "Repeat master password")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)

	if len(password) == 0 || string(password) != string(confirm) {
		return errors.New("passwords are empty or do not match")
	}

	params := newKDFParams()
	key, err := params.deriveKey(password)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	if err := a.storeKDFParams(ctx, params); err != nil {
		return err
	}
	if err := a.engine.CreateVault(ctx, key); err != nil {
		return err
	}
	if err := a.engine.Unlock(ctx); err != nil {
		return err
	}

	a.println("Vault created and unlocked")
	return nil
}

// Unlock first tries the key the engine can reach on its own (cached or from
// the secure store) and falls back to the master password.
func (a *App) Unlock(ctx context.Context, _ []string) error {
	has, err := a.engine.HasEncryptedDatabase(ctx)
	if err != nil {
		return err
	}
	if !has {
		return errNoVault
	}

	err = a.engine.Unlock(ctx)
	if errors.Is(err, common.ErrNoKeyAvailable) || errors.Is(err, common.ErrDecryptionFailed) {
		key, kerr := a.keyFromPassword(ctx)
		if kerr != nil {
			return kerr
		}
		encoded := base64.StdEncoding.EncodeToString(key)
		common.WipeByteArray(key)

		if kerr := a.engine.StoreEncryptionKey(ctx, encoded); kerr != nil {
			return kerr
		}
		err = a.engine.Unlock(ctx)
	}
	if errors.Is(err, common.ErrDecryptionFailed) {
		return errors.New("wrong master password")
	}
	if err != nil {
		return err
	}

	a.println("Vault unlocked")
	return nil
}

func (a *App) Lock(_ context.Context, _ []string) error {
	a.engine.ClearCache()
	a.println("Vault locked")
	return nil
}

func formatCredential(c models.Credential) string {
	username := ""
	if c.Username != nil {
		username = *c.Username
	}
	return fmt.Sprintf("%s  %-24s  %s", c.ID, c.DisplayName(), username)
}

func (a *App) List(ctx context.Context, _ []string) error {
	creds, err := a.engine.GetAllCredentials(ctx)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		a.println("No credentials")
		return nil
	}
	for _, c := range creds {
		a.println(formatCredential(c))
	}
	return nil
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Add inserts a service, an empty alias, a credential and its first password
// in one transaction and persists the vault.
func (a *App) Add(ctx context.Context, _ []string) error {
	name, err := GetSimpleText(a.reader, "Service name", a.out)
	if err != nil {
		return err
	}
	url, err := GetSimpleText(a.reader, "Service URL (optional)", a.out)
	if err != nil {
		return err
	}
	username, err := GetSimpleText(a.reader, "Username", a.out)
	if err != nil {
		return err
	}
	password, err := GetPassword(a.out, "Password (empty to generate)")
	if err != nil {
		return err
	}
	if len(password) == 0 {
		generated, err := common.MakeRandHexString(generatedPasswordSize)
		if err != nil {
			return err
		}
		password = []byte(generated)
		a.println("Generated password:", generated)
	}
	defer common.WipeByteArray(password)

	now := models.FormatTimestamp(time.Now())
	serviceID, aliasID, credentialID := uuid.NewString(), uuid.NewString(), uuid.NewString()

	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO Services (Id, Name, Url, CreatedAt, UpdatedAt, IsDeleted) VALUES (?, ?, ?, ?, ?, 0)`,
			[]any{serviceID, optional(name), optional(url), now, now}},
		{`INSERT INTO Aliases (Id, BirthDate, CreatedAt, UpdatedAt, IsDeleted) VALUES (?, ?, ?, ?, 0)`,
			[]any{aliasID, models.FormatTimestamp(models.DefaultBirthDate), now, now}},
		{`INSERT INTO Credentials (Id, AliasId, Username, CreatedAt, UpdatedAt, ServiceId, IsDeleted) VALUES (?, ?, ?, ?, ?, ?, 0)`,
			[]any{credentialID, aliasID, optional(username), now, now, serviceID}},
		{`INSERT INTO Passwords (Id, Value, CreatedAt, UpdatedAt, CredentialId, IsDeleted) VALUES (?, ?, ?, ?, ?, 0)`,
			[]any{uuid.NewString(), string(password), now, now, credentialID}},
	}

	if err := a.engine.BeginTransaction(ctx); err != nil {
		return err
	}
	for _, s := range statements {
		if _, err := a.engine.ExecuteUpdate(ctx, s.query, s.args...); err != nil {
			return errors.Join(err, a.engine.RollbackTransaction(ctx))
		}
	}
	if err := a.engine.CommitTransaction(ctx); err != nil {
		return err
	}

	a.println("Added", credentialID)
	return nil
}

// Delete soft-deletes a credential; it stays in the database with IsDeleted set.
func (a *App) Delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid id: %w", err)
	}

	n, err := a.engine.ExecuteUpdate(ctx,
		`UPDATE Credentials SET IsDeleted = 1, UpdatedAt = ? WHERE Id = ? AND IsDeleted = 0`,
		models.FormatTimestamp(time.Now()), id.String())
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("credential %s not found", id)
	}
	if err := a.engine.CommitTransaction(ctx); err != nil {
		return err
	}

	a.println("Deleted", id)
	return nil
}

func (a *App) Match(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	creds, err := a.engine.GetAllCredentials(ctx)
	if err != nil {
		return err
	}

	matched := a.engine.MatchCredentialsForApp(creds, strings.Join(args, " "))
	if len(matched) == 0 {
		a.println("No matches")
		return nil
	}
	for _, c := range matched {
		a.println(formatCredential(c))
	}
	return nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return fmt.Sprintf("<%d bytes>", len(t))
	default:
		return fmt.Sprint(t)
	}
}

func (a *App) Query(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	rows, err := a.engine.ExecuteQuery(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}

	for _, row := range rows {
		cols := make([]string, 0, len(row))
		for col := range row {
			cols = append(cols, col)
		}
		sort.Strings(cols)

		fields := make([]string, 0, len(cols))
		for _, col := range cols {
			fields = append(fields, col+"="+formatValue(row[col]))
		}
		a.println(strings.Join(fields, " "))
	}
	a.println(fmt.Sprintf("(%d rows)", len(rows)))
	return nil
}

func (a *App) Exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	n, err := a.engine.ExecuteUpdate(ctx, strings.Join(args, " "))
	if err != nil {
		return err
	}
	if err := a.engine.CommitTransaction(ctx); err != nil {
		return err
	}
	a.println(fmt.Sprintf("(%d rows changed)", n))
	return nil
}

func (a *App) Biometric(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	methods := []models.AuthMethod{models.AuthMethodPassword}
	switch args[0] {
	case "on":
		methods = append(methods, models.AuthMethodBiometric)
	case "off":
	default:
		return errUsage
	}

	if err := a.engine.SetAuthMethods(ctx, methods); err != nil {
		return err
	}
	a.println("Biometric unlock", args[0])
	return nil
}

func (a *App) Timeout(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	seconds, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if err := a.engine.SetAutoLockTimeout(ctx, seconds); err != nil {
		return err
	}
	a.println(fmt.Sprintf("Auto-lock timeout set to %ds", seconds))
	return nil
}

func (a *App) Background(ctx context.Context, _ []string) error {
	return a.engine.OnAppBackgrounded(ctx)
}

func (a *App) Foreground(ctx context.Context, _ []string) error {
	a.engine.OnAppForegrounded(ctx)
	return nil
}

func (a *App) Status(ctx context.Context, _ []string) error {
	rev, err := a.engine.GetVaultRevisionNumber(ctx)
	if err != nil {
		return err
	}
	timeout, err := a.engine.GetAutoLockTimeout(ctx)
	if err != nil {
		return err
	}
	methods, err := a.engine.GetAuthMethods(ctx)
	if err != nil {
		return err
	}
	usage, err := a.engine.StorageUsage(ctx)
	if err != nil {
		return err
	}

	a.println("State:", a.engine.State())
	a.println("Revision:", rev)
	a.println(fmt.Sprintf("Auto-lock: %ds", timeout))
	a.println("Auth methods:", strings.Join(models.AuthMethodsToStrings(methods), ", "))

	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)
	a.println("Stored:")
	for _, name := range names {
		a.println(fmt.Sprintf("  %s: %d bytes", name, usage[name]))
	}
	return nil
}

func (a *App) Wipe(ctx context.Context, _ []string) error {
	answer, err := GetSimpleText(a.reader, "Type 'yes' to delete the vault and all stored keys", a.out)
	if err != nil {
		return err
	}
	if answer != "yes" {
		a.println("Aborted")
		return nil
	}
	if err := a.engine.ClearVault(ctx); err != nil {
		return err
	}
	a.println("Vault wiped")
	return nil
}
