// Package models defines the records persisted by the application.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/maruel/ksid"
)

// ManualPrefix marks movies entered by hand rather than imported from TMDB.
const ManualPrefix = "MANUAL-"

// MovieID identifies a movie. TMDB movies use their numeric TMDB id, manual
// entries use ManualPrefix followed by a random suffix.
//
// Numeric ids are encoded as JSON numbers so documents written by older
// versions round-trip unchanged.
type MovieID string

// NewManualID returns a fresh id for a manually entered movie.
func NewManualID() MovieID {
	return MovieID(ManualPrefix + ksid.NewID().String())
}

// IsManual reports whether the id belongs to a manually entered movie.
func (id MovieID) IsManual() bool {
	return strings.HasPrefix(string(id), ManualPrefix)
}

// IsNumeric reports whether the id is a TMDB id.
func (id MovieID) IsNumeric() bool {
	v, err := strconv.ParseUint(string(id), 10, 64)
	return err == nil && strconv.FormatUint(v, 10) == string(id)
}

func (id MovieID) String() string {
	return string(id)
}

// MarshalJSON implements json.Marshaler.
func (id MovieID) MarshalJSON() ([]byte, error) {
	if id.IsNumeric() {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *MovieID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = MovieID(s)
		return nil
	}
	b = bytes.TrimSpace(b)
	if _, err := strconv.ParseUint(string(b), 10, 64); err != nil {
		return fmt.Errorf("invalid movie id %s", b)
	}
	*id = MovieID(b)
	return nil
}

// JSONSchema describes the two encodings of a MovieID.
func (MovieID) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Description: "TMDB movie id, or MANUAL- followed by a random suffix for manual entries",
		OneOf: []*jsonschema.Schema{
			{Type: "integer", Minimum: json.Number("0")},
			{Type: "string"},
		},
	}
}

// User is an account allowed to log in.
type User struct {
	Username     string `json:"username" jsonschema:"description=Login name, matched case-insensitively"`
	PasswordHash string `json:"password_hash,omitempty" jsonschema:"description=bcrypt hash of the password"`
	// Password is the plaintext password found in older users.json files. It is
	// replaced by PasswordHash on the next successful login.
	Password string    `json:"password,omitempty" jsonschema:"-"`
	Created  time.Time `json:"created,omitzero"`
	Modified time.Time `json:"modified,omitzero"`
}

// PushSubscription stores a Web Push subscription for a user.
type PushSubscription struct {
	ID       ksid.ID   `json:"id"`
	Username string    `json:"username"`
	Endpoint string    `json:"endpoint"`
	P256dh   string    `json:"p256dh"`
	Auth     string    `json:"auth"`
	Created  time.Time `json:"created"`
}
