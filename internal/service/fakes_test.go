package service

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/and161185/media-vault/internal/errs"
	"github.com/and161185/media-vault/internal/limiter"
	"github.com/and161185/media-vault/internal/model"
	"github.com/and161185/media-vault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

/************ clock ************/

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

/************ transactions ************/

// snapshotter captures state so a failed transaction can be undone.
type snapshotter interface{ snapshot() func() }

// fakeTx runs transactions one at a time and restores every store on error.
type fakeTx struct {
	mu     sync.Mutex
	stores []snapshotter
	calls  int
}

var _ repository.Transactor = (*fakeTx)(nil)

func (f *fakeTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var restore []func()
	for _, s := range f.stores {
		restore = append(restore, s.snapshot())
	}
	if err := fn(ctx); err != nil {
		for _, r := range restore {
			r()
		}
		return err
	}
	return nil
}

/************ tokens ************/

type memTokens struct {
	mu        sync.Mutex
	byHash    map[string]model.AccessToken
	insertErr error
	getErr    error
	gets      int
}

var _ repository.TokenRepository = (*memTokens)(nil)

func newMemTokens() *memTokens { return &memTokens{byHash: map[string]model.AccessToken{}} }

func (m *memTokens) Insert(_ context.Context, t *model.AccessToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.byHash[string(t.Hash)]; ok {
		return errs.ErrAlreadyExists
	}
	c := *t
	c.Value = ""
	m.byHash[string(t.Hash)] = c
	return nil
}

func (m *memTokens) GetByHash(_ context.Context, hash []byte) (*model.AccessToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, m.getErr
	}
	t, ok := m.byHash[string(hash)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &t, nil
}

func (m *memTokens) Revoke(_ context.Context, hash []byte, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.byHash[string(hash)]
	if !ok || t.RevokedAt != nil {
		return nil
	}
	t.RevokedAt = &at
	m.byHash[string(hash)] = t
	return nil
}

func (m *memTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, t := range m.byHash {
		if !t.ExpiresAt.After(now) {
			delete(m.byHash, k)
			n++
		}
	}
	return n, nil
}

func (m *memTokens) snapshot() func() {
	m.mu.Lock()
	saved := maps.Clone(m.byHash)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.byHash = saved
		m.mu.Unlock()
	}
}

/************ shares ************/

type memShares struct {
	mu        sync.Mutex
	byCode    map[string]model.ShareLink
	createErr []error // consumed one per Create call
}

var _ repository.ShareRepository = (*memShares)(nil)

func newMemShares() *memShares { return &memShares{byCode: map[string]model.ShareLink{}} }

func (m *memShares) Create(_ context.Context, l *model.ShareLink) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.createErr) > 0 {
		err := m.createErr[0]
		m.createErr = m.createErr[1:]
		if err != nil {
			return err
		}
	}
	if _, ok := m.byCode[l.Code]; ok {
		return errs.ErrAlreadyExists
	}
	m.byCode[l.Code] = *l
	return nil
}

func (m *memShares) GetByCode(_ context.Context, code string) (*model.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byCode[code]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &l, nil
}

// IncrementUsage is the in-memory counterpart of the conditional UPDATE.
func (m *memShares) IncrementUsage(_ context.Context, code string, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.byCode[code]
	if !ok || l.Exhausted() || l.ExpiredAt(now) {
		return 0, errs.ErrNotFound
	}
	l.UsageCount++
	m.byCode[code] = l
	return l.UsageCount, nil
}

func (m *memShares) ListByResource(_ context.Context, rt model.ResourceType, resourceID string) ([]model.ShareLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ShareLink
	for _, l := range m.byCode {
		if l.ResourceType == rt && l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *memShares) Delete(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byCode[code]; !ok {
		return errs.ErrNotFound
	}
	delete(m.byCode, code)
	return nil
}

func (m *memShares) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, l := range m.byCode {
		if l.ExpiresAt != nil && l.ExpiresAt.Before(before) {
			delete(m.byCode, k)
			n++
		}
	}
	return n, nil
}

func (m *memShares) usage(code string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byCode[code].UsageCount
}

func (m *memShares) snapshot() func() {
	m.mu.Lock()
	saved := maps.Clone(m.byCode)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.byCode = saved
		m.mu.Unlock()
	}
}

/************ vaults ************/

type verifier struct{ hash, salt []byte }

type memVaults struct {
	mu        sync.Mutex
	verifiers map[uuid.UUID]verifier
	sessions  map[uuid.UUID]model.VaultSession
	getErr    error
	putErr    error
}

var _ repository.VaultRepository = (*memVaults)(nil)

func newMemVaults() *memVaults {
	return &memVaults{verifiers: map[uuid.UUID]verifier{}, sessions: map[uuid.UUID]model.VaultSession{}}
}

func (m *memVaults) CreateVerifier(_ context.Context, userID uuid.UUID, hash, salt []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verifiers[userID]; ok {
		return errs.ErrAlreadyConfigured
	}
	m.verifiers[userID] = verifier{hash: hash, salt: salt}
	return nil
}

func (m *memVaults) GetVerifier(_ context.Context, userID uuid.UUID) ([]byte, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, nil, m.getErr
	}
	v, ok := m.verifiers[userID]
	if !ok {
		return nil, nil, errs.ErrNotFound
	}
	return v.hash, v.salt, nil
}

func (m *memVaults) LockUser(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.verifiers[userID]; !ok {
		return errs.ErrNotFound
	}
	return nil
}

func (m *memVaults) GetSession(_ context.Context, userID uuid.UUID) (*model.VaultSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &s, nil
}

func (m *memVaults) PutSession(_ context.Context, s *model.VaultSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	c := *s
	c.AccessToken = model.AccessToken{}
	m.sessions[s.UserID] = c
	return nil
}

func (m *memVaults) DeleteSession(_ context.Context, userID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

func (m *memVaults) snapshot() func() {
	m.mu.Lock()
	saved := maps.Clone(m.sessions)
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.sessions = saved
		m.mu.Unlock()
	}
}

/************ resources ************/

type resKey struct {
	rt model.ResourceType
	id string
}

type memResources struct {
	mu  sync.Mutex
	m   map[resKey]model.Resource
	err error
}

var _ repository.ResourceResolver = (*memResources)(nil)

func newMemResources() *memResources { return &memResources{m: map[resKey]model.Resource{}} }

func (r *memResources) add(rt model.ResourceType, id string, res model.Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res.Exists = true
	r.m[resKey{rt, id}] = res
}

func (r *memResources) remove(rt model.ResourceType, id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, resKey{rt, id})
}

func (r *memResources) Resolve(_ context.Context, rt model.ResourceType, id string) (model.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return model.Resource{}, r.err
	}
	return r.m[resKey{rt, id}], nil
}

/************ limiter ************/

type fakeLimiter struct {
	mu sync.Mutex

	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error
	successErr  error

	allowCalls   int
	failureCalls int
	successCalls int
	subjects     []string
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, subject string, _ []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowCalls++
	l.subjects = append(l.subjects, subject)
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successCalls++
	return l.successErr
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCalls++
	return l.failBlocked, time.Minute, l.failErr
}

/************ wiring ************/

type env struct {
	clock     *fakeClock
	tx        *fakeTx
	tokens    *memTokens
	shares    *memShares
	vaults    *memVaults
	resources *memResources
	lim       *fakeLimiter

	broker *TokenBrokerImpl
	vault  *VaultGuardImpl
	links  *ShareLinkControllerImpl
}

func newEnv() *env {
	e := &env{
		clock:     newClock(),
		tokens:    newMemTokens(),
		shares:    newMemShares(),
		vaults:    newMemVaults(),
		resources: newMemResources(),
		lim:       &fakeLimiter{allowOK: true},
	}
	e.tx = &fakeTx{stores: []snapshotter{e.tokens, e.shares, e.vaults}}

	e.broker = NewTokenBroker(e.tokens, nil)
	e.broker.now = e.clock.Now

	e.vault = NewVaultGuard(e.tx, e.vaults, NewArgonCredentials(e.vaults), e.broker, e.resources, e.lim, zap.NewNop())
	e.vault.now = e.clock.Now

	e.links = NewShareLinkController(e.tx, e.shares, e.resources, e.broker, e.lim, zap.NewNop())
	e.links.now = e.clock.Now
	return e
}

var errBoom = errors.New("boom")
