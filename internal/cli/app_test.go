package cli

import (
	"bytes"
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lanedirt/AliasVault-sub004/internal/blobstore"
	"github.com/lanedirt/AliasVault-sub004/internal/config"
	"github.com/lanedirt/AliasVault-sub004/internal/engine"
	"github.com/lanedirt/AliasVault-sub004/internal/keyguard"
	"github.com/lanedirt/AliasVault-sub004/internal/logging"
	"github.com/lanedirt/AliasVault-sub004/internal/repositories/metadata"
	"github.com/lanedirt/AliasVault-sub004/internal/securestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (l nopLogger) With(...any) logging.Logger          { return l }

type testApp struct {
	*App
	out    *bytes.Buffer
	secure *securestore.Memory
}

func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()

	db, err := metadata.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)

	secure := securestore.NewMemory(true)
	keys := keyguard.New(secure, nopLogger{})
	eng := engine.New(keys, blobstore.New(metadata.NewSQLiteRepository(db)), nopLogger{})

	out := &bytes.Buffer{}
	app := newApp(eng, nopLogger{}, strings.NewReader(input), out)
	app.closers = append(app.closers, db.Close)
	t.Cleanup(func() { _ = app.Close() })

	return &testApp{App: app, out: out, secure: secure}
}

// stubPasswords makes readPassword return the given answers in order and
// io.EOF once they run out.
func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, io.EOF
		}
		a := answers[0]
		answers = answers[1:]
		return []byte(a), nil
	}
	t.Cleanup(func() { readPassword = orig })
}

func TestApp_InitAddListMatchDelete(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "Example\nhttps://www.example.com\njane\n")
	stubPasswords(t, "hunter2", "hunter2", "s3cret")

	// хранилища ещё нет
	require.ErrorIs(t, a.Unlock(ctx, nil), errNoVault)
	require.NoError(t, a.Init(ctx, nil))
	assert.True(t, a.isUnlocked())
	require.ErrorIs(t, a.Init(ctx, nil), errHasVault)

	require.NoError(t, a.Add(ctx, nil))
	creds, err := a.engine.GetAllCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "s3cret", creds[0].Password.Value)
	assert.Equal(t, "jane", *creds[0].Username)

	a.out.Reset()
	require.NoError(t, a.List(ctx, nil))
	assert.Contains(t, a.out.String(), "Example")
	assert.Contains(t, a.out.String(), "jane")

	a.out.Reset()
	require.NoError(t, a.Match(ctx, []string{"app.example.com"}))
	assert.Contains(t, a.out.String(), creds[0].ID.String())

	a.out.Reset()
	require.NoError(t, a.Match(ctx, []string{"unrelated"}))
	assert.Contains(t, a.out.String(), "No matches")

	require.NoError(t, a.Delete(ctx, []string{creds[0].ID.String()}))
	require.Error(t, a.Delete(ctx, []string{creds[0].ID.String()}))
	require.ErrorIs(t, a.Delete(ctx, nil), errUsage)

	a.out.Reset()
	require.NoError(t, a.List(ctx, nil))
	assert.Contains(t, a.out.String(), "No credentials")

	// запись осталась в базе с флагом удаления
	rows, err := a.engine.ExecuteQuery(ctx, `SELECT IsDeleted FROM Credentials`)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["IsDeleted"])
}

func TestApp_AddGeneratesPassword(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "Example\n\njane\n")
	stubPasswords(t, "hunter2", "hunter2", "")

	require.NoError(t, a.Init(ctx, nil))
	require.NoError(t, a.Add(ctx, nil))

	creds, err := a.engine.GetAllCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	// пустой ввод даёт случайный hex-пароль
	assert.Len(t, creds[0].Password.Value, generatedPasswordSize*2)
	assert.Contains(t, a.out.String(), "Generated password: "+creds[0].Password.Value)
	assert.Nil(t, creds[0].Service.URL)
}

func TestApp_UnlockWithMasterPassword(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")
	stubPasswords(t, "hunter2", "hunter2", "wrong", "hunter2")

	require.ErrorIs(t, a.Unlock(ctx, nil), errNoVault)
	require.NoError(t, a.Init(ctx, nil))
	require.NoError(t, a.Lock(ctx, nil))
	assert.False(t, a.isUnlocked())

	err := a.Unlock(ctx, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrong master password")
	assert.False(t, a.isUnlocked())

	require.NoError(t, a.Unlock(ctx, nil))
	assert.True(t, a.isUnlocked())
}

func TestApp_BiometricUnlockSkipsPassword(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")
	stubPasswords(t, "hunter2", "hunter2", "hunter2")

	require.NoError(t, a.Init(ctx, nil))
	require.NoError(t, a.Biometric(ctx, []string{"on"}))
	require.ErrorIs(t, a.Biometric(ctx, []string{"maybe"}), errUsage)

	// ключ ещё не в хранилище: первый раз нужен пароль
	require.NoError(t, a.Lock(ctx, nil))
	require.NoError(t, a.Unlock(ctx, nil))
	assert.True(t, a.secure.Has())

	// дальше пароль не спрашивается: запасной ответ исчерпан
	require.NoError(t, a.Lock(ctx, nil))
	require.NoError(t, a.Unlock(ctx, nil))
	assert.True(t, a.isUnlocked())

	require.NoError(t, a.Biometric(ctx, []string{"off"}))
	assert.False(t, a.secure.Has())
}

func TestApp_QueryExecStatusTimeout(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")
	stubPasswords(t, "pw", "pw")
	require.NoError(t, a.Init(ctx, nil))

	require.ErrorIs(t, a.Query(ctx, nil), errUsage)
	require.ErrorIs(t, a.Exec(ctx, nil), errUsage)

	a.out.Reset()
	require.NoError(t, a.Exec(ctx, strings.Fields(
		`INSERT INTO Settings (Key, Value, CreatedAt, UpdatedAt) VALUES ('theme', 'dark', '2024-01-01', '2024-01-01')`)))
	assert.Contains(t, a.out.String(), "(1 rows changed)")

	a.out.Reset()
	require.NoError(t, a.Query(ctx, strings.Fields(`SELECT Key, Value FROM Settings`)))
	assert.Contains(t, a.out.String(), "Key=theme Value=dark")
	assert.Contains(t, a.out.String(), "(1 rows)")

	require.NoError(t, a.Timeout(ctx, []string{"120"}))
	require.Error(t, a.Timeout(ctx, []string{"soon"}))

	a.out.Reset()
	require.NoError(t, a.Status(ctx, nil))
	assert.Contains(t, a.out.String(), "State: unlocked")
	assert.Contains(t, a.out.String(), "Revision: 0")
	assert.Contains(t, a.out.String(), "Auto-lock: 120s")
	assert.Contains(t, a.out.String(), "  auto_lock_timeout: 3 bytes")
	assert.Contains(t, a.out.String(), "  encrypted_db_blob: ")
}

func TestApp_BackgroundForegroundWithZeroTimeout(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "")
	stubPasswords(t, "pw", "pw")
	require.NoError(t, a.Init(ctx, nil))
	require.NoError(t, a.Timeout(ctx, []string{"0"}))

	require.NoError(t, a.Background(ctx, nil))
	require.NoError(t, a.Foreground(ctx, nil))
	assert.True(t, a.isUnlocked())
}

func TestApp_Wipe(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t, "no\nyes\n")
	stubPasswords(t, "pw", "pw")
	require.NoError(t, a.Init(ctx, nil))

	require.NoError(t, a.Wipe(ctx, nil))
	assert.Contains(t, a.out.String(), "Aborted")
	assert.True(t, a.isUnlocked())

	require.NoError(t, a.Wipe(ctx, nil))
	assert.False(t, a.isUnlocked())
	has, err := a.engine.HasEncryptedDatabase(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestNewApp_LocksDataDir(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.AutoLockTimeout = 90 * time.Second
	cfg.AutoLockTimeoutSet = true

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)

	timeout, err := app.engine.GetAutoLockTimeout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 90, timeout)

	_, err = NewApp(ctx, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in use")

	require.NoError(t, app.Close())

	// после закрытия каталог снова доступен
	again, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestNewApp_KeepsSavedTimeoutUnlessConfigured(t *testing.T) {
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")

	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, app.engine.SetAutoLockTimeout(ctx, 120))
	require.NoError(t, app.Close())

	// значение из команды timeout переживает перезапуск
	app, err = NewApp(ctx, cfg)
	require.NoError(t, err)
	timeout, err := app.engine.GetAutoLockTimeout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 120, timeout)
	require.NoError(t, app.Close())

	// явно заданный -t перекрывает сохранённое значение
	cfg.AutoLockTimeout = 30 * time.Second
	cfg.AutoLockTimeoutSet = true
	app, err = NewApp(ctx, cfg)
	require.NoError(t, err)
	timeout, err = app.engine.GetAutoLockTimeout(ctx)
	require.NoError(t, err)
	assert.Equal(t, 30, timeout)
	require.NoError(t, app.Close())
}

func TestNewApp_InvalidConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.Backend = "floppy"

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
}
