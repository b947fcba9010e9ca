package localstate

import "time"

// stateFieldModel is one field of the device's local state
type stateFieldModel struct {
	Name      string    `gorm:"primaryKey;size:100"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (stateFieldModel) TableName() string {
	return "local_state"
}

// secretModel holds one sealed facility secret keyed by credential key
type secretModel struct {
	CredentialKey string    `gorm:"primaryKey;size:200"`
	Sealed        []byte    `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

func (secretModel) TableName() string {
	return "credential_secrets"
}

// metaModel stores store-level values such as the KDF salt
type metaModel struct {
	Name  string `gorm:"primaryKey;size:100"`
	Value []byte `gorm:"not null"`
}

func (metaModel) TableName() string {
	return "local_meta"
}
