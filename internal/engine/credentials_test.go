package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/lanedirt/AliasVault-sub004/internal/common"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ts = "2024-01-01 10:00:00"

	svc1 = "00000000-0000-0000-0000-0000000000a1"
	svc2 = "00000000-0000-0000-0000-0000000000a2"
	als1 = "00000000-0000-0000-0000-0000000000b1"
	cr1  = "00000000-0000-0000-0000-0000000000c1"
	cr2  = "00000000-0000-0000-0000-0000000000c2"
	cr3  = "00000000-0000-0000-0000-0000000000c3"
	cr4  = "00000000-0000-0000-0000-0000000000c4"
	pw1  = "00000000-0000-0000-0000-0000000000d1"
	pw2  = "00000000-0000-0000-0000-0000000000d2"
	pw3  = "00000000-0000-0000-0000-0000000000d3"
	pw4  = "00000000-0000-0000-0000-0000000000d4"
	pw5  = "00000000-0000-0000-0000-0000000000d5"
)

func (h *harness) addService(t *testing.T, id, name string, deleted int) {
	h.exec(t, `INSERT INTO Services (Id, Name, Url, CreatedAt, UpdatedAt, IsDeleted) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, "https://"+name+".com", ts, ts, deleted)
}

func (h *harness) addCredential(t *testing.T, id, serviceID, username, createdAt string, deleted int) {
	h.exec(t, `INSERT INTO Credentials (Id, AliasId, Username, CreatedAt, UpdatedAt, ServiceId, IsDeleted) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, als1, username, createdAt, createdAt, serviceID, deleted)
}

func (h *harness) addPassword(t *testing.T, id, credentialID, value, createdAt string, deleted int) {
	h.exec(t, `INSERT INTO Passwords (Id, Value, CreatedAt, UpdatedAt, CredentialId, IsDeleted) VALUES (?, ?, ?, ?, ?, ?)`,
		id, value, createdAt, createdAt, credentialID, deleted)
}

func TestGetAllCredentials_Projection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createAndUnlock(t)

	h.addService(t, svc1, "example", 0)
	h.addService(t, svc2, "gone", 1)
	h.exec(t, `INSERT INTO Aliases (Id, FirstName, BirthDate, Email, CreatedAt, UpdatedAt) VALUES (?, ?, ?, ?, ?, ?)`,
		als1, "Jane", "", "jane@example.com", ts, ts)

	// cr1: старше, последний живой пароль pw2, удалённый pw3 новее
	h.addCredential(t, cr1, svc1, "jane", "2024-01-01 00:00:00", 0)
	h.addPassword(t, pw1, cr1, "old", "2024-01-01 00:00:00", 0)
	h.addPassword(t, pw2, cr1, "current", "2024-02-01 00:00:00.000", 0)
	h.addPassword(t, pw3, cr1, "deleted", "2024-03-01 00:00:00", 1)

	// cr2: новее, два пароля с одинаковым временем, побеждает больший Id
	h.addCredential(t, cr2, svc1, "john", "2024-05-01 00:00:00", 0)
	h.addPassword(t, pw4, cr2, "tie-low", "2024-05-01 00:00:00", 0)
	h.addPassword(t, pw5, cr2, "tie-high", "2024-05-01 00:00:00", 0)

	// cr3 удалён, cr4 ссылается на удалённый сервис
	h.addCredential(t, cr3, svc1, "deleted", "2024-06-01 00:00:00", 1)
	h.addCredential(t, cr4, svc2, "orphan", "2024-06-01 00:00:00", 0)

	creds, err := h.engine.GetAllCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 2)

	assert.Equal(t, uuid.MustParse(cr2), creds[0].ID)
	assert.Equal(t, uuid.MustParse(cr1), creds[1].ID)

	require.NotNil(t, creds[0].Password)
	assert.Equal(t, "tie-high", creds[0].Password.Value)
	require.NotNil(t, creds[1].Password)
	assert.Equal(t, "current", creds[1].Password.Value)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), creds[1].Password.CreatedAt)

	c := creds[1]
	assert.Equal(t, "jane", *c.Username)
	assert.Nil(t, c.Notes)
	assert.Equal(t, "example", *c.Service.Name)
	assert.Equal(t, "https://example.com", *c.Service.URL)
	require.NotNil(t, c.Alias)
	assert.Equal(t, "Jane", *c.Alias.FirstName)
	assert.Equal(t, models.DefaultBirthDate, c.Alias.BirthDate)
}

func TestGetAllCredentials_EmptyAndLocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.GetAllCredentials(ctx)
	require.ErrorIs(t, err, common.ErrNotInitialized)

	h.createAndUnlock(t)
	creds, err := h.engine.GetAllCredentials(ctx)
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestGetAllCredentials_SkipsUnmappableRows(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.createAndUnlock(t)

	h.addService(t, svc1, "example", 0)
	h.addCredential(t, cr1, svc1, "ok", "2024-01-01 00:00:00", 0)
	h.addCredential(t, "not-a-uuid", svc1, "bad-id", "2024-01-02 00:00:00", 0)
	h.addCredential(t, cr2, svc1, "bad-date", "the day before yesterday", 0)

	creds, err := h.engine.GetAllCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, "ok", *creds[0].Username)
	assert.Nil(t, creds[0].Alias)
	assert.Nil(t, creds[0].Password)
}

func valid(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func TestCredentialRow_Mapping(t *testing.T) {
	row := credentialRow{
		ID:               cr1,
		Username:         valid("jane"),
		CreatedAt:        valid("2024-01-01 00:00:00.250"),
		UpdatedAt:        valid("2024-01-02 00:00:00"),
		ServiceID:        valid(svc1),
		ServiceName:      valid("Example"),
		ServiceLogo:      []byte{0x89, 0x50},
		ServiceCreatedAt: valid(ts),
		ServiceUpdatedAt: valid(ts),
		AliasID:          valid(als1),
		AliasBirthDate:   valid("1990-04-05 00:00:00"),
		AliasCreatedAt:   valid(ts),
		AliasUpdatedAt:   valid(ts),
	}

	got, err := row.credential()
	require.NoError(t, err)

	name, username := "Example", "jane"
	stamp := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	want := models.Credential{
		ID:        uuid.MustParse(cr1),
		Username:  &username,
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 250_000_000, time.UTC),
		UpdatedAt: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Service: models.Service{
			ID:        uuid.MustParse(svc1),
			Name:      &name,
			Logo:      []byte{0x89, 0x50},
			CreatedAt: stamp,
			UpdatedAt: stamp,
		},
		Alias: &models.Alias{
			ID:        uuid.MustParse(als1),
			BirthDate: time.Date(1990, 4, 5, 0, 0, 0, 0, time.UTC),
			CreatedAt: stamp,
			UpdatedAt: stamp,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("credential mismatch (-want +got):\n%s", diff)
	}
}

func TestCredentialRow_Errors(t *testing.T) {
	base := credentialRow{
		ID:               cr1,
		CreatedAt:        valid(ts),
		UpdatedAt:        valid(ts),
		ServiceID:        valid(svc1),
		ServiceCreatedAt: valid(ts),
		ServiceUpdatedAt: valid(ts),
	}
	_, err := base.credential()
	require.NoError(t, err)

	noService := base
	noService.ServiceID = sql.NullString{}
	_, err = noService.credential()
	require.ErrorIs(t, err, errMissingService)

	badPassword := base
	badPassword.PasswordID = valid("nope")
	badPassword.PasswordCreatedAt = valid(ts)
	badPassword.PasswordUpdatedAt = valid(ts)
	_, err = badPassword.credential()
	require.Error(t, err)

	missingDate := base
	missingDate.UpdatedAt = sql.NullString{}
	_, err = missingDate.credential()
	require.Error(t, err)
}
