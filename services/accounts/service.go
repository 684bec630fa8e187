package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-password/password"
	"github.com/spf13/afero"
	"golang.org/x/crypto/bcrypt"

	"marquee/models"
)

var (
	ErrStorageDirRequired = errors.New("storage directory not provided")
	ErrUsernameRequired   = errors.New("username is required")
	ErrPasswordRequired   = errors.New("password is required")
	ErrAccountNotFound    = errors.New("account not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid username or password")
)

const (
	// DefaultMasterPassword is the initial password of the master account.
	DefaultMasterPassword = "admin"

	masterAccountID = "master"
	accountsFile    = "accounts.json"
)

// dummyHash keeps the cost of an unknown-user login close to a real one.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("marquee"), bcrypt.DefaultCost)

// Service stores login accounts.
type Service struct {
	mu       sync.RWMutex
	fs       afero.Fs
	path     string
	accounts map[string]models.Account
}

// NewService loads accounts from storageDir, creating the master account on
// first start.
func NewService(fs afero.Fs, storageDir string) (*Service, error) {
	if strings.TrimSpace(storageDir) == "" {
		return nil, ErrStorageDirRequired
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("create accounts dir: %w", err)
	}

	svc := &Service{
		fs:       fs,
		path:     filepath.Join(storageDir, accountsFile),
		accounts: make(map[string]models.Account),
	}
	if err := svc.load(); err != nil {
		return nil, err
	}
	if err := svc.ensureMasterAccount(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Get returns the account with the given ID.
func (s *Service) Get(id string) (models.Account, bool) {
	id = strings.TrimSpace(id)
	if id == "" {
		return models.Account{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	return account, ok
}

// Create registers a non-master account.
func (s *Service) Create(username, password string) (models.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Account{}, ErrUsernameRequired
	}
	password = strings.TrimSpace(password)
	if password == "" {
		return models.Account{}, ErrPasswordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.findLocked(username); exists {
		return models.Account{}, ErrUsernameExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Account{}, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC()
	account := models.Account{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.accounts[account.ID] = account
	if err := s.saveLocked(); err != nil {
		delete(s.accounts, account.ID)
		return models.Account{}, err
	}
	return account, nil
}

// Authenticate checks a username/password pair.
func (s *Service) Authenticate(username, password string) (models.Account, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		return models.Account{}, ErrInvalidCredentials
	}

	s.mu.RLock()
	account, found := s.findLocked(username)
	s.mu.RUnlock()

	if !found {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return models.Account{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return models.Account{}, ErrInvalidCredentials
	}
	return account, nil
}

// UpdatePassword replaces the password of an account.
func (s *Service) UpdatePassword(id, newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)
	if newPassword == "" {
		return ErrPasswordRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.accounts[strings.TrimSpace(id)]
	if !ok {
		return ErrAccountNotFound
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	account.PasswordHash = string(hash)
	account.UpdatedAt = time.Now().UTC()
	s.accounts[account.ID] = account
	return s.saveLocked()
}

// ResetMasterPassword replaces the master password with a generated one and
// returns it.
func (s *Service) ResetMasterPassword() (string, error) {
	generated, err := password.Generate(20, 4, 0, false, false)
	if err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	if err := s.UpdatePassword(masterAccountID, generated); err != nil {
		return "", err
	}
	return generated, nil
}

// HasDefaultPassword reports whether the master account still uses the
// bootstrap password.
func (s *Service) HasDefaultPassword() bool {
	master, ok := s.Get(masterAccountID)
	if !ok {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(master.PasswordHash), []byte(DefaultMasterPassword)) == nil
}

// findLocked looks an account up by case-insensitive username.
func (s *Service) findLocked(username string) (models.Account, bool) {
	for _, a := range s.accounts {
		if strings.EqualFold(a.Username, username) {
			return a, true
		}
	}
	return models.Account{}, false
}

func (s *Service) ensureMasterAccount() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.IsMaster {
			return nil
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(DefaultMasterPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash default password: %w", err)
	}
	now := time.Now().UTC()
	s.accounts[masterAccountID] = models.Account{
		ID:           masterAccountID,
		Username:     models.MasterAccountUsername,
		PasswordHash: string(hash),
		IsMaster:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return s.saveLocked()
}

func (s *Service) load() error {
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read accounts file: %w", err)
	}

	var stored []models.AccountRecord
	if err := json.Unmarshal(data, &stored); err != nil {
		return fmt.Errorf("decode accounts: %w", err)
	}
	for _, account := range models.AccountsFromRecords(stored) {
		s.accounts[account.ID] = account
	}
	return nil
}

// saveLocked persists accounts, master first. Callers hold mu.
func (s *Service) saveLocked() error {
	list := make([]models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		list = append(list, a)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].IsMaster != list[j].IsMaster {
			return list[i].IsMaster
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})

	data, err := json.MarshalIndent(models.AccountRecords(list), "", "  ")
	if err != nil {
		return fmt.Errorf("encode accounts: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o600); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("write accounts: %w", err)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace accounts file: %w", err)
	}
	return nil
}
