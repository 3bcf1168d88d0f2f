package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"securesend/internal/models"

	"github.com/google/uuid"
)

// MemoryStore keeps every table in process memory. It is used when no
// database is configured and by tests. Records handed out are copies;
// mutations only happen through the store methods.
//
// mu guards the maps and is only held for map access. Account updates are
// serialized per account by accountLocks, so the callback of one update (a
// bcrypt check, say) never blocks other accounts. Lock order: account lock,
// then mu.
type MemoryStore struct {
	mu           sync.Mutex
	accountLocks map[int64]*sync.Mutex

	nextAccountID  int64
	nextActivityID int64
	nextTxID       int64

	accounts     map[int64]*models.Account
	files        map[string]*models.StoredFile
	sessions     map[uuid.UUID]*models.Session
	activity     []models.ActivityRecord
	transactions []models.Transaction
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accountLocks: make(map[int64]*sync.Mutex),
		accounts:     make(map[int64]*models.Account),
		files:        make(map[string]*models.StoredFile),
		sessions:     make(map[uuid.UUID]*models.Session),
	}
}

func cloneAccount(a *models.Account) *models.Account {
	c := *a
	c.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	c.LockoutUntil = cloneTime(a.LockoutUntil)
	c.OTPExpires = cloneTime(a.OTPExpires)
	c.ProUntil = cloneTime(a.ProUntil)
	if a.OTP != nil {
		otp := *a.OTP
		c.OTP = &otp
	}
	return &c
}

func cloneFile(f *models.StoredFile) *models.StoredFile {
	c := *f
	c.Nonce = append([]byte(nil), f.Nonce...)
	c.DownloadExpiresAt = cloneTime(f.DownloadExpiresAt)
	if f.DownloadToken != nil {
		token := *f.DownloadToken
		c.DownloadToken = &token
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (m *MemoryStore) CreateAccount(ctx context.Context, arg CreateAccountParams) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Email == arg.Email {
			return nil, ErrDuplicateEmail
		}
	}

	role := arg.Role
	if role == "" {
		role = models.RoleUser
	}
	m.nextAccountID++
	account := &models.Account{
		ID:                  m.nextAccountID,
		Email:               arg.Email,
		PasswordHash:        arg.PasswordHash,
		Role:                role,
		PasswordHistory:     append([]string{}, arg.PasswordHistory...),
		PasswordLastChanged: arg.CreatedAt,
		CreatedAt:           arg.CreatedAt,
	}
	m.accounts[account.ID] = account
	return cloneAccount(account), nil
}

func (m *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.Email == email {
			return cloneAccount(a), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) GetAccountByID(ctx context.Context, id int64) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if a, ok := m.accounts[id]; ok {
		return cloneAccount(a), nil
	}
	return nil, nil
}

func (m *MemoryStore) lockAccount(id int64) func() {
	m.mu.Lock()
	l, ok := m.accountLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.accountLocks[id] = l
	}
	m.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// commit runs fn on a copy and stores it only when fn succeeds. Callers hold mu.
func (m *MemoryStore) commit(account *models.Account, fn func(*models.Account) error) (*models.Account, error) {
	working := cloneAccount(account)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.ID = account.ID
	working.Email = account.Email
	working.CreatedAt = account.CreatedAt
	m.accounts[account.ID] = working
	return cloneAccount(working), nil
}

// mutate runs fn on a copy without holding mu and stores the result when fn
// succeeds. match, if set, is checked against the current record first.
// Callers hold the account lock.
func (m *MemoryStore) mutate(id int64, match func(*models.Account) bool, fn func(*models.Account) error) (*models.Account, error) {
	m.mu.Lock()
	current, ok := m.accounts[id]
	if !ok || (match != nil && !match(current)) {
		m.mu.Unlock()
		return nil, nil
	}
	working := cloneAccount(current)
	m.mu.Unlock()

	if err := fn(working); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	working.ID = current.ID
	working.Email = current.Email
	working.CreatedAt = current.CreatedAt
	m.accounts[id] = working
	return cloneAccount(working), nil
}

func (m *MemoryStore) UpdateAccount(ctx context.Context, id int64, fn func(*models.Account) error) (*models.Account, error) {
	m.mu.Lock()
	_, ok := m.accounts[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}

	unlock := m.lockAccount(id)
	defer unlock()
	return m.mutate(id, nil, fn)
}

func (m *MemoryStore) UpdateAccountByOTP(ctx context.Context, email, code string, now time.Time, fn func(*models.Account) error) (*models.Account, error) {
	matches := func(a *models.Account) bool {
		return a.Email == email && a.OTP != nil && a.OTPExpires != nil &&
			*a.OTP == code && a.OTPExpires.After(now)
	}

	var id int64
	m.mu.Lock()
	for _, a := range m.accounts {
		if matches(a) {
			id = a.ID
			break
		}
	}
	m.mu.Unlock()
	if id == 0 {
		return nil, nil
	}

	unlock := m.lockAccount(id)
	defer unlock()
	// The code may have been consumed while waiting for the lock.
	return m.mutate(id, matches, fn)
}

func (m *MemoryStore) CreateFile(ctx context.Context, arg CreateFileParams) (*models.StoredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[arg.OwnerID]; !ok {
		return nil, ErrAccountNotFound
	}

	file := &models.StoredFile{
		ID:           arg.ID,
		OwnerID:      arg.OwnerID,
		OriginalName: arg.OriginalName,
		StorageName:  arg.StorageName,
		SizeBytes:    arg.SizeBytes,
		MimeType:     arg.MimeType,
		Nonce:        append([]byte(nil), arg.Nonce...),
		CreatedAt:    arg.CreatedAt,
	}
	m.files[file.ID] = file
	return cloneFile(file), nil
}

func (m *MemoryStore) ListFilesByOwner(ctx context.Context, ownerID int64) ([]models.StoredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := []models.StoredFile{}
	for _, f := range m.files {
		if f.OwnerID == ownerID {
			files = append(files, *cloneFile(f))
		}
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].ID < files[j].ID
		}
		return files[i].CreatedAt.After(files[j].CreatedAt)
	})
	return files, nil
}

func (m *MemoryStore) SetDownloadToken(ctx context.Context, id string, ownerID int64, token string, expiresAt time.Time) (*models.StoredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, ok := m.files[id]
	if !ok || file.OwnerID != ownerID {
		return nil, nil
	}
	file.DownloadToken = &token
	file.DownloadExpiresAt = &expiresAt
	return cloneFile(file), nil
}

func (m *MemoryStore) ClaimDownload(ctx context.Context, token string, now time.Time) (*models.StoredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, f := range m.files {
		if f.DownloadToken == nil || *f.DownloadToken != token {
			continue
		}
		if f.DownloadExpiresAt == nil || !f.DownloadExpiresAt.After(now) {
			return nil, nil
		}
		f.DownloadToken = nil
		f.DownloadExpiresAt = nil
		return cloneFile(f), nil
	}
	return nil, nil
}

func (m *MemoryStore) DeleteFile(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, id)
	return nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[arg.ID] = &models.Session{
		ID:        arg.ID,
		AccountID: arg.AccountID,
		UserAgent: arg.UserAgent,
		ClientIP:  arg.ClientIP,
		ExpiresAt: arg.ExpiresAt,
		CreatedAt: arg.CreatedAt,
	}
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (m *MemoryStore) ListSessionsForAccount(ctx context.Context, accountID int64, now time.Time) ([]models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sessions := []models.Session{}
	for _, s := range m.sessions {
		if s.AccountID == accountID && s.ExpiresAt.After(now) {
			sessions = append(sessions, *s)
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (m *MemoryStore) DeleteSessionByID(ctx context.Context, id uuid.UUID, accountID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok || s.AccountID != accountID {
		return false, nil
	}
	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) DeleteAllSessionsForAccount(ctx context.Context, accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, s := range m.sessions {
		if s.AccountID == accountID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *MemoryStore) LogActivity(ctx context.Context, arg LogActivityParams) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextActivityID++
	m.activity = append(m.activity, models.ActivityRecord{
		ID:        m.nextActivityID,
		AccountID: arg.AccountID,
		Action:    arg.Action,
		Details:   arg.Details,
		IPAddress: arg.IPAddress,
		CreatedAt: arg.CreatedAt,
	})
	return nil
}

func (m *MemoryStore) ListActivity(ctx context.Context, accountID int64, limit int) ([]models.ActivityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := []models.ActivityRecord{}
	for i := len(m.activity) - 1; i >= 0 && len(records) < limit; i-- {
		if m.activity[i].AccountID == accountID {
			records = append(records, m.activity[i])
		}
	}
	return records, nil
}

func (m *MemoryStore) ApplyUpgrade(ctx context.Context, arg CreateTransactionParams, fn func(*models.Account) error) (bool, error) {
	unlock := m.lockAccount(arg.AccountID)
	defer unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.transactions {
		if t.SessionID == arg.SessionID {
			return false, nil
		}
	}
	account, ok := m.accounts[arg.AccountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	if _, err := m.commit(account, fn); err != nil {
		return false, err
	}

	m.nextTxID++
	m.transactions = append(m.transactions, models.Transaction{
		ID:          m.nextTxID,
		AccountID:   arg.AccountID,
		SessionID:   arg.SessionID,
		AmountCents: arg.AmountCents,
		Currency:    arg.Currency,
		ProductName: arg.ProductName,
		Status:      arg.Status,
		CreatedAt:   arg.CreatedAt,
	})
	return true, nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, accountID int64) ([]models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	transactions := []models.Transaction{}
	for i := len(m.transactions) - 1; i >= 0; i-- {
		if m.transactions[i].AccountID == accountID {
			transactions = append(transactions, m.transactions[i])
		}
	}
	return transactions, nil
}
