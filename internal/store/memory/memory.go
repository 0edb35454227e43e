// Package memory implementa core.Repository en proceso. Respeta el mismo
// contrato que el adaptador postgres — incluido el cifrado de campos en el
// límite del storage — así los tests del service ejercitan el path completo.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/vetsecure/internal/security/fieldcrypt"
	"github.com/dropDatabas3/vetsecure/internal/store/core"
)

type Store struct {
	cipher *fieldcrypt.Cipher

	mu   sync.RWMutex
	byID map[string]*core.User // valores "en reposo": PII cifrada
}

func New(cipher *fieldcrypt.Cipher) *Store {
	return &Store{cipher: cipher, byID: map[string]*core.User{}}
}

func (s *Store) Ping(context.Context) error { return nil }

// seal cifra los campos sensibles para dejarlos "en reposo".
func (s *Store) seal(u *core.User) (*core.User, error) {
	cp := *u
	var err error
	if cp.Phone, err = s.cipher.EncryptPtr(u.Phone); err != nil {
		return nil, err
	}
	if cp.Address, err = s.cipher.EncryptPtr(u.Address); err != nil {
		return nil, err
	}
	if cp.MFASecret, err = s.cipher.EncryptPtr(u.MFASecret); err != nil {
		return nil, err
	}
	return &cp, nil
}

// open descifra una copia para entregar al caller.
func (s *Store) open(u *core.User) (*core.User, error) {
	cp := *u
	var err error
	if cp.Phone, err = s.cipher.DecryptPtr(u.Phone); err != nil {
		return nil, err
	}
	if cp.Address, err = s.cipher.DecryptPtr(u.Address); err != nil {
		return nil, err
	}
	if cp.MFASecret, err = s.cipher.DecryptPtr(u.MFASecret); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *Store) CreateUser(_ context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ex := range s.byID {
		if strings.EqualFold(ex.Email, u.Email) {
			return core.ErrConflict
		}
		if u.Username != "" && strings.EqualFold(ex.Username, u.Username) {
			return core.ErrConflict
		}
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	sealed, err := s.seal(u)
	if err != nil {
		return err
	}
	s.byID[u.ID] = sealed
	return nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (*core.User, error) {
	s.mu.RLock()
	u, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, core.ErrNotFound
	}
	return s.open(u)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Email, email) {
			return s.open(u)
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if strings.EqualFold(u.Username, username) {
			return s.open(u)
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) SetMFAState(_ context.Context, userID string, st core.MFAState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return core.ErrNotFound
	}
	secret, err := s.cipher.EncryptPtr(st.Secret)
	if err != nil {
		return err
	}
	u.MFAEnabled = st.Enabled
	u.MFASecret = secret
	u.MFARecoveryHashes = st.RecoveryHashes
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ReplaceRecoveryHashes(_ context.Context, userID string, expected, updated string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return core.ErrNotFound
	}
	// compare-and-swap: dos requests concurrentes no consumen el mismo código
	if u.MFARecoveryHashes == nil || *u.MFARecoveryHashes != expected {
		return core.ErrConflict
	}
	u.MFARecoveryHashes = &updated
	u.UpdatedAt = time.Now().UTC()
	return nil
}
