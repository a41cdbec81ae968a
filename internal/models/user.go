package models

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// SealedBlob is an encrypted credential payload. It is opaque everywhere
// except inside the vault: the rest of the engine can store and move it but
// never read it.
type SealedBlob []byte

// Value implements driver.Valuer.
func (b SealedBlob) Value() (driver.Value, error) {
	if len(b) == 0 {
		return nil, nil
	}
	return []byte(b), nil
}

// Scan implements sql.Scanner.
func (b *SealedBlob) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*b = nil
	case []byte:
		buf := make([]byte, len(v))
		copy(buf, v)
		*b = buf
	case string:
		*b = SealedBlob(v)
	default:
		return fmt.Errorf("cannot scan %T into SealedBlob", src)
	}
	return nil
}

// User is a registered bot user identified by their chat ID. Portal
// credentials are held only in sealed form.
type User struct {
	ID                string     `db:"id" json:"id"`
	ChatID            int64      `db:"chat_id" json:"chat_id"`
	MoodleLogin       string     `db:"moodle_login" json:"moodle_login"`
	SealedCredentials SealedBlob `db:"sealed_credentials" json:"-"`
	Active            bool       `db:"active" json:"active"`
	AuthFailedAt      *time.Time `db:"auth_failed_at" json:"auth_failed_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// HasCredentials reports whether the user ever submitted portal credentials.
func (u *User) HasCredentials() bool {
	return u.MoodleLogin != "" && len(u.SealedCredentials) > 0
}
