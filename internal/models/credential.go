// Package models defines the decrypted vault entities projected by the engine
// and the small JSON documents persisted next to the encrypted blob.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Credential is a login entry with its owning Service, its optional Alias
// and the latest live Password.
type Credential struct {
	ID        uuid.UUID
	Alias     *Alias
	Service   Service
	Username  *string
	Notes     *string
	Password  *Password
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Service is the site or app a credential belongs to. Logo holds raw image
// bytes as stored; its mime type is not trusted.
type Service struct {
	ID        uuid.UUID
	Name      *string
	URL       *string
	Logo      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Password is one entry of a credential's password history.
type Password struct {
	ID        uuid.UUID
	Value     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Alias is the generated identity attached to a credential.
type Alias struct {
	ID        uuid.UUID
	Gender    *string
	FirstName *string
	LastName  *string
	NickName  *string
	BirthDate time.Time
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DefaultBirthDate is used when an alias row carries no birth date.
var DefaultBirthDate = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)

var timestampLayouts = []string{
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

// ParseTimestamp parses a vault date column. Values are UTC; millisecond,
// second and date-only forms are accepted.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}

// FormatTimestamp renders t in the canonical vault column format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05.000")
}

// DisplayName returns the service name, falling back to the URL.
func (c Credential) DisplayName() string {
	if c.Service.Name != nil && *c.Service.Name != "" {
		return *c.Service.Name
	}
	if c.Service.URL != nil {
		return *c.Service.URL
	}
	return ""
}
