// Package localstate is the device-side state store used by rosterctl. It
// keeps the synchronizable settings fields in a SQLite file, notifies
// observers synchronously on every write, and keeps facility secrets sealed
// in a separate table.
package localstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rosterlink/backend/internal/domain/integration"
	"github.com/rosterlink/backend/internal/domain/settings"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const saltKey = "kdf_salt"

var (
	ErrLocked             = errors.New("localstate: store is locked, a passphrase is required for secrets")
	ErrCredentialNotFound = errors.New("localstate: facility credential not found")
)

// Store implements settings.StateStore over SQLite.
// Observers run inside Update after the write commits and must not write
// to the store themselves.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	writeMu sync.Mutex

	mu  sync.RWMutex
	doc settings.SyncDocument
	box *SecretBox

	obsMu     sync.Mutex
	observers map[uint64]func(settings.Change)
	nextObsID uint64
}

// Open opens (creating if needed) the state file at path
func Open(path string, logger *zap.Logger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local state %s: %w", path, err)
	}
	return NewStore(db, logger)
}

// NewStore migrates the schema on db and loads the current state
func NewStore(db *gorm.DB, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := db.AutoMigrate(&stateFieldModel{}, &secretModel{}, &metaModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate local state: %w", err)
	}
	s := &Store{
		db:        db,
		logger:    logger,
		now:       time.Now,
		doc:       settings.SyncDocument{},
		observers: make(map[uint64]func(settings.Change)),
	}

	var rows []stateFieldModel
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load local state: %w", err)
	}
	for _, row := range rows {
		s.doc[row.Name] = json.RawMessage(row.Value)
	}
	return s, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---------------------------------------------------------------------------
// settings.StateStore
// ---------------------------------------------------------------------------

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() settings.SyncDocument {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone()
}

// Update writes fields in one transaction and then notifies every observer
// before returning. A JSON null value deletes the field.
func (s *Store) Update(ctx context.Context, fields settings.SyncDocument, remote bool) error {
	if len(fields) == 0 {
		return nil
	}
	for name, value := range fields {
		if !json.Valid(value) {
			return fmt.Errorf("%w: field %q", settings.ErrInvalidDocument, name)
		}
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, name := range fields.Keys() {
			value := fields[name]
			if string(value) == "null" {
				if err := tx.Delete(&stateFieldModel{}, "name = ?", name).Error; err != nil {
					return err
				}
				continue
			}
			row := stateFieldModel{Name: name, Value: string(value), UpdatedAt: now}
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write local state: %w", err)
	}

	s.mu.Lock()
	for name, value := range fields {
		if string(value) == "null" {
			delete(s.doc, name)
			continue
		}
		s.doc[name] = append(json.RawMessage(nil), value...)
	}
	s.mu.Unlock()

	s.notify(settings.Change{Fields: fields.Keys(), Remote: remote})
	return nil
}

// Subscribe registers an observer
func (s *Store) Subscribe(fn func(settings.Change)) func() {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	id := s.nextObsID
	s.nextObsID++
	s.observers[id] = fn
	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		delete(s.observers, id)
	}
}

func (s *Store) notify(change settings.Change) {
	s.obsMu.Lock()
	ids := make([]uint64, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(settings.Change), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.observers[id])
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// ---------------------------------------------------------------------------
// Facility credentials
// ---------------------------------------------------------------------------

// Unlock derives the secret key from passphrase. The first unlock creates
// the salt; later unlocks are checked against an existing sealed secret.
func (s *Store) Unlock(ctx context.Context, passphrase string) error {
	salt, err := s.salt(ctx)
	if err != nil {
		return err
	}
	box, err := NewSecretBox(passphrase, salt)
	if err != nil {
		return err
	}

	var sealed secretModel
	err = s.db.WithContext(ctx).Order("credential_key").Limit(1).Find(&sealed).Error
	if err != nil {
		return fmt.Errorf("failed to read secrets: %w", err)
	}
	if sealed.CredentialKey != "" {
		if _, err := box.Open(sealed.Sealed, []byte(sealed.CredentialKey)); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.box = box
	s.mu.Unlock()
	return nil
}

func (s *Store) salt(ctx context.Context) ([]byte, error) {
	var meta metaModel
	err := s.db.WithContext(ctx).Where("name = ?", saltKey).Limit(1).Find(&meta).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read salt: %w", err)
	}
	if len(meta.Value) > 0 {
		return meta.Value, nil
	}
	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Create(&metaModel{Name: saltKey, Value: salt}).Error; err != nil {
		return nil, fmt.Errorf("failed to store salt: %w", err)
	}
	return salt, nil
}

// SaveCredential replaces the credential for its facility. The secret is
// sealed into its own table; the settings field keeps everything else.
func (s *Store) SaveCredential(ctx context.Context, cred integration.FacilityCredential) error {
	key := cred.Key()
	if cred.SecretCredential != "" {
		s.mu.RLock()
		box := s.box
		s.mu.RUnlock()
		if box == nil {
			return ErrLocked
		}
		sealed, err := box.Seal([]byte(cred.SecretCredential), []byte(key))
		if err != nil {
			return fmt.Errorf("failed to seal secret: %w", err)
		}
		row := secretModel{CredentialKey: key, Sealed: sealed, UpdatedAt: s.now().UTC()}
		if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("failed to store secret: %w", err)
		}
	}

	creds, err := s.credentialMap()
	if err != nil {
		return err
	}
	cred.SecretCredential = ""
	creds[key] = cred
	return s.writeCredentials(ctx, creds)
}

// Credential returns the credential with its secret when the store is unlocked
func (s *Store) Credential(ctx context.Context, key string) (*integration.FacilityCredential, error) {
	creds, err := s.credentialMap()
	if err != nil {
		return nil, err
	}
	cred, ok := creds[key]
	if !ok {
		return nil, ErrCredentialNotFound
	}

	s.mu.RLock()
	box := s.box
	s.mu.RUnlock()
	if box == nil {
		return &cred, nil
	}

	var row secretModel
	if err := s.db.WithContext(ctx).Where("credential_key = ?", key).Limit(1).Find(&row).Error; err != nil {
		return nil, fmt.Errorf("failed to read secret: %w", err)
	}
	if len(row.Sealed) > 0 {
		secret, err := box.Open(row.Sealed, []byte(key))
		if err != nil {
			return nil, err
		}
		cred.SecretCredential = string(secret)
	}
	return &cred, nil
}

// Credentials lists linked facilities without secrets, ordered by key
func (s *Store) Credentials() ([]integration.FacilityCredential, error) {
	creds, err := s.credentialMap()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(creds))
	for k := range creds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]integration.FacilityCredential, 0, len(keys))
	for _, k := range keys {
		out = append(out, creds[k])
	}
	return out, nil
}

// RemoveCredential disconnects a facility: its secret and its entry are deleted
func (s *Store) RemoveCredential(ctx context.Context, key string) error {
	creds, err := s.credentialMap()
	if err != nil {
		return err
	}
	if _, ok := creds[key]; !ok {
		return ErrCredentialNotFound
	}
	if err := s.db.WithContext(ctx).Delete(&secretModel{}, "credential_key = ?", key).Error; err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}
	delete(creds, key)
	return s.writeCredentials(ctx, creds)
}

func (s *Store) credentialMap() (map[string]integration.FacilityCredential, error) {
	creds := map[string]integration.FacilityCredential{}
	if _, err := s.Snapshot().Get(settings.FieldFacilityCredentials, &creds); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", settings.FieldFacilityCredentials, err)
	}
	if creds == nil {
		creds = map[string]integration.FacilityCredential{}
	}
	return creds, nil
}

func (s *Store) writeCredentials(ctx context.Context, creds map[string]integration.FacilityCredential) error {
	fields := settings.SyncDocument{}
	if err := fields.Set(settings.FieldFacilityCredentials, creds); err != nil {
		return err
	}
	return s.Update(ctx, fields, false)
}

var _ settings.StateStore = (*Store)(nil)
