package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"civicreport/internal/adapters/email"
	"civicreport/internal/domain/account"
	"civicreport/internal/domain/complaint"
	domainOutbox "civicreport/internal/domain/outbox"
)

func init() {
	account.HashCost = bcrypt.MinCost
}

var fixedNow = time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// --- accounts ---

type mockAccountStore struct {
	mu        sync.Mutex
	accounts  map[int64]account.Account
	nextID    int64
	lookupErr error
}

func newMockAccountStore() *mockAccountStore {
	return &mockAccountStore{accounts: map[int64]account.Account{}}
}

func (m *mockAccountStore) GetByID(_ context.Context, id int64) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.accounts[id]; ok {
		return a, nil
	}
	return account.Account{}, account.ErrNotFound
}

func (m *mockAccountStore) find(match func(account.Account) bool) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return account.Account{}, m.lookupErr
	}
	for _, a := range m.accounts {
		if match(a) {
			return a, nil
		}
	}
	return account.Account{}, account.ErrNotFound
}

func (m *mockAccountStore) GetByUsername(_ context.Context, username string) (account.Account, error) {
	return m.find(func(a account.Account) bool { return a.Username == username })
}

func (m *mockAccountStore) GetByEmail(_ context.Context, email string) (account.Account, error) {
	return m.find(func(a account.Account) bool { return a.Email == email })
}

func (m *mockAccountStore) Create(_ context.Context, a account.Account) (account.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if existing.Username == a.Username {
			return account.Account{}, account.ErrDuplicateUsername
		}
		if existing.Email == a.Email {
			return account.Account{}, account.ErrDuplicateEmail
		}
	}
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = a
	return a, nil
}

func (m *mockAccountStore) CountByRole(_ context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.accounts {
		if a.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *mockAccountStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accounts)
}

// --- complaints ---

type mockComplaintStore struct {
	mu         sync.Mutex
	complaints map[int64]complaint.Complaint
	nextID     int64
	queued     []domainOutbox.Entry
	failCreate error
	failUpdate error
}

func newMockComplaintStore() *mockComplaintStore {
	return &mockComplaintStore{complaints: map[int64]complaint.Complaint{}}
}

func (m *mockComplaintStore) Create(_ context.Context, c complaint.Complaint) (complaint.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate != nil {
		return complaint.Complaint{}, m.failCreate
	}
	m.nextID++
	c.ID = m.nextID
	m.complaints[c.ID] = c
	return c, nil
}

func (m *mockComplaintStore) GetByID(_ context.Context, id int64) (complaint.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.complaints[id]; ok {
		return c, nil
	}
	return complaint.Complaint{}, fmt.Errorf("complaint %d: %w", id, complaint.ErrNotFound)
}

func (m *mockComplaintStore) Update(_ context.Context, c complaint.Complaint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failUpdate != nil {
		return m.failUpdate
	}
	existing, ok := m.complaints[c.ID]
	if !ok {
		return complaint.ErrNotFound
	}
	c.Status = existing.Status
	m.complaints[c.ID] = c
	return nil
}

func (m *mockComplaintStore) SetStatus(_ context.Context, id int64, status string, now time.Time, n *domainOutbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.complaints[id]
	if !ok {
		return complaint.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = now
	m.complaints[id] = c
	if n != nil {
		m.queued = append(m.queued, *n)
	}
	return nil
}

func (m *mockComplaintStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.complaints[id]; !ok {
		return complaint.ErrNotFound
	}
	delete(m.complaints, id)
	return nil
}

func (m *mockComplaintStore) ListByAccount(_ context.Context, accountID int64) ([]complaint.Complaint, error) {
	all, _ := m.ListAll(context.Background())
	var out []complaint.Complaint
	for _, c := range all {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockComplaintStore) ListAll(_ context.Context) ([]complaint.Complaint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]complaint.Complaint, 0, len(m.complaints))
	for _, c := range m.complaints {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- images ---

type mockImageStore struct {
	mu      sync.Mutex
	files   map[string][]byte
	next    int
	saveErr error
}

func newMockImageStore() *mockImageStore {
	return &mockImageStore{files: map[string][]byte{}}
}

func (m *mockImageStore) Save(_ context.Context, r io.Reader) (string, error) {
	if m.saveErr != nil {
		return "", m.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	key := fmt.Sprintf("img-%d.png", m.next)
	m.files[key] = data
	return key, nil
}

func (m *mockImageStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *mockImageStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[key]
	return ok
}

func pngImage() io.Reader { return bytes.NewReader([]byte("\x89PNG")) }

// --- outbox ---

type mockOutboxStore struct {
	mu      sync.Mutex
	entries map[string]domainOutbox.Entry
}

func newMockOutboxStore(entries ...domainOutbox.Entry) *mockOutboxStore {
	m := &mockOutboxStore{entries: map[string]domainOutbox.Entry{}}
	for _, e := range entries {
		m.entries[e.ID] = e
	}
	return m
}

func (m *mockOutboxStore) GetByID(_ context.Context, id string) (domainOutbox.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[id]; ok {
		return e, nil
	}
	return domainOutbox.Entry{}, domainOutbox.ErrNotFound
}

func (m *mockOutboxStore) Save(_ context.Context, e domainOutbox.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.ID] = e
	return nil
}

func (m *mockOutboxStore) ListPending(_ context.Context, limit int) ([]domainOutbox.Entry, error) {
	return m.listWhere(limit, func(e domainOutbox.Entry) bool {
		return e.Status == domainOutbox.StatusPending || e.Status == domainOutbox.StatusRetrying
	}), nil
}

func (m *mockOutboxStore) ListFailed(_ context.Context, limit int) ([]domainOutbox.Entry, error) {
	return m.listWhere(limit, func(e domainOutbox.Entry) bool { return e.Status == domainOutbox.StatusFailed }), nil
}

func (m *mockOutboxStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

func (m *mockOutboxStore) listWhere(limit int, keep func(domainOutbox.Entry) bool) []domainOutbox.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domainOutbox.Entry
	for _, e := range m.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// --- sender ---

type mockSender struct {
	mock.Mock
}

func (m *mockSender) Send(ctx context.Context, req email.SendRequest) (email.SendResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(email.SendResult), args.Error(1)
}

// --- waker / authorizers ---

type countingWaker struct{ n int }

func (w *countingWaker) Wake() { w.n++ }

type testRole string

func (r testRole) Can(c account.Capability) bool { return account.RoleCan(string(r), c) }

var (
	asAdmin   = testRole(account.RoleAdmin)
	asCitizen = testRole(account.RoleCitizen)
)

var errBoom = errors.New("boom")
