package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lanedirt/AliasVault-sub004/internal/models"
)

// credentialsQuery joins every live credential with its service, alias and
// latest live password. Ties on the password timestamp go to the highest Id.
const credentialsQuery = `
WITH LatestPasswords AS (
    SELECT
        p.Id,
        p.CredentialId,
        p.Value,
        p.CreatedAt,
        p.UpdatedAt,
        ROW_NUMBER() OVER (
            PARTITION BY p.CredentialId
            ORDER BY p.CreatedAt DESC, p.Id DESC
        ) AS rn
    FROM Passwords p
    WHERE p.IsDeleted = 0
)
SELECT
    c.Id        AS id,
    c.Username  AS username,
    c.Notes     AS notes,
    c.CreatedAt AS created_at,
    c.UpdatedAt AS updated_at,
    s.Id        AS service_id,
    s.Name      AS service_name,
    s.Url       AS service_url,
    s.Logo      AS service_logo,
    s.CreatedAt AS service_created_at,
    s.UpdatedAt AS service_updated_at,
    lp.Id        AS password_id,
    lp.Value     AS password_value,
    lp.CreatedAt AS password_created_at,
    lp.UpdatedAt AS password_updated_at,
    a.Id        AS alias_id,
    a.Gender    AS alias_gender,
    a.FirstName AS alias_first_name,
    a.LastName  AS alias_last_name,
    a.NickName  AS alias_nick_name,
    a.BirthDate AS alias_birth_date,
    a.Email     AS alias_email,
    a.CreatedAt AS alias_created_at,
    a.UpdatedAt AS alias_updated_at
FROM Credentials c
LEFT JOIN Services s ON s.Id = c.ServiceId AND s.IsDeleted = 0
LEFT JOIN LatestPasswords lp ON lp.CredentialId = c.Id AND lp.rn = 1
LEFT JOIN Aliases a ON a.Id = c.AliasId AND a.IsDeleted = 0
WHERE c.IsDeleted = 0
ORDER BY c.CreatedAt DESC, c.Id DESC`

type credentialRow struct {
	ID        string         `db:"id"`
	Username  sql.NullString `db:"username"`
	Notes     sql.NullString `db:"notes"`
	CreatedAt sql.NullString `db:"created_at"`
	UpdatedAt sql.NullString `db:"updated_at"`

	ServiceID        sql.NullString `db:"service_id"`
	ServiceName      sql.NullString `db:"service_name"`
	ServiceURL       sql.NullString `db:"service_url"`
	ServiceLogo      []byte         `db:"service_logo"`
	ServiceCreatedAt sql.NullString `db:"service_created_at"`
	ServiceUpdatedAt sql.NullString `db:"service_updated_at"`

	PasswordID        sql.NullString `db:"password_id"`
	PasswordValue     sql.NullString `db:"password_value"`
	PasswordCreatedAt sql.NullString `db:"password_created_at"`
	PasswordUpdatedAt sql.NullString `db:"password_updated_at"`

	AliasID        sql.NullString `db:"alias_id"`
	AliasGender    sql.NullString `db:"alias_gender"`
	AliasFirstName sql.NullString `db:"alias_first_name"`
	AliasLastName  sql.NullString `db:"alias_last_name"`
	AliasNickName  sql.NullString `db:"alias_nick_name"`
	AliasBirthDate sql.NullString `db:"alias_birth_date"`
	AliasEmail     sql.NullString `db:"alias_email"`
	AliasCreatedAt sql.NullString `db:"alias_created_at"`
	AliasUpdatedAt sql.NullString `db:"alias_updated_at"`
}

var errMissingService = errors.New("credential has no live service")

// GetAllCredentials returns every live credential, newest first. Rows that
// cannot be mapped are logged and skipped.
func (e *Engine) GetAllCredentials(ctx context.Context) ([]models.Credential, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	h, err := e.requireHandle()
	if err != nil {
		return nil, err
	}

	var rows []credentialRow
	if err := h.Select(ctx, &rows, credentialsQuery); err != nil {
		return nil, err
	}

	creds := make([]models.Credential, 0, len(rows))
	for _, r := range rows {
		c, err := r.credential()
		if err != nil {
			e.logger.Warn(ctx, "skipping credential row", "id", r.ID, "error", err)
			continue
		}
		creds = append(creds, c)
	}
	return creds, nil
}

// rowParser keeps the first conversion error of a row.
type rowParser struct {
	err error
}

func (p *rowParser) id(field, s string) uuid.UUID {
	if p.err != nil {
		return uuid.Nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		p.err = fmt.Errorf("invalid %s %q: %w", field, s, err)
	}
	return id
}

func (p *rowParser) timestamp(field string, s sql.NullString) time.Time {
	if p.err != nil {
		return time.Time{}
	}
	if !s.Valid {
		p.err = fmt.Errorf("missing %s", field)
		return time.Time{}
	}
	t, err := models.ParseTimestamp(s.String)
	if err != nil {
		p.err = fmt.Errorf("invalid %s: %w", field, err)
	}
	return t
}

func (p *rowParser) birthDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return models.DefaultBirthDate
	}
	return p.timestamp("alias birth date", s)
}

func nullable(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func (r credentialRow) credential() (models.Credential, error) {
	if !r.ServiceID.Valid {
		return models.Credential{}, errMissingService
	}

	var p rowParser
	c := models.Credential{
		ID:        p.id("credential id", r.ID),
		Username:  nullable(r.Username),
		Notes:     nullable(r.Notes),
		CreatedAt: p.timestamp("credential created at", r.CreatedAt),
		UpdatedAt: p.timestamp("credential updated at", r.UpdatedAt),
		Service: models.Service{
			ID:        p.id("service id", r.ServiceID.String),
			Name:      nullable(r.ServiceName),
			URL:       nullable(r.ServiceURL),
			Logo:      r.ServiceLogo,
			CreatedAt: p.timestamp("service created at", r.ServiceCreatedAt),
			UpdatedAt: p.timestamp("service updated at", r.ServiceUpdatedAt),
		},
	}

	if r.PasswordID.Valid {
		c.Password = &models.Password{
			ID:        p.id("password id", r.PasswordID.String),
			Value:     r.PasswordValue.String,
			CreatedAt: p.timestamp("password created at", r.PasswordCreatedAt),
			UpdatedAt: p.timestamp("password updated at", r.PasswordUpdatedAt),
		}
	}

	if r.AliasID.Valid {
		c.Alias = &models.Alias{
			ID:        p.id("alias id", r.AliasID.String),
			Gender:    nullable(r.AliasGender),
			FirstName: nullable(r.AliasFirstName),
			LastName:  nullable(r.AliasLastName),
			NickName:  nullable(r.AliasNickName),
			BirthDate: p.birthDate(r.AliasBirthDate),
			Email:     nullable(r.AliasEmail),
			CreatedAt: p.timestamp("alias created at", r.AliasCreatedAt),
			UpdatedAt: p.timestamp("alias updated at", r.AliasUpdatedAt),
		}
	}

	if p.err != nil {
		return models.Credential{}, p.err
	}
	return c, nil
}
