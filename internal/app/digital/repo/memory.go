package repo

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"digitals.local/internal/app/digital"
)

var errSecretExhausted = errors.New("could not allocate a unique secret")

// MemoryDigitals 是内存版 digital.Catalog，用于测试与本地调试。
type MemoryDigitals struct {
	mu       sync.RWMutex
	digitals map[int64]digital.Digital
}

func NewMemoryDigitals(items ...digital.Digital) *MemoryDigitals {
	m := &MemoryDigitals{digitals: make(map[int64]digital.Digital, len(items))}
	for _, d := range items {
		m.digitals[d.ID] = d
	}
	return m
}

func (m *MemoryDigitals) Put(d digital.Digital) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.digitals[d.ID] = d
}

func (m *MemoryDigitals) Find(_ context.Context, id int64) (digital.Digital, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.digitals[id]
	if !ok {
		return digital.Digital{}, digital.ErrDigitalNotFound
	}
	return d, nil
}

func (m *MemoryDigitals) DigitalVariants(_ context.Context, variantIDs []int64) (map[int64]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int64]bool, len(variantIDs))
	for _, d := range m.digitals {
		for _, id := range variantIDs {
			if d.VariantID == id {
				out[id] = true
			}
		}
	}
	return out, nil
}

func (m *MemoryDigitals) exists(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.digitals[id]
	return ok
}

// MemoryLinks 是内存版 digital.Store。所有操作在同一把锁内完成，天然串行化。
type MemoryLinks struct {
	mu       sync.Mutex
	digitals *MemoryDigitals
	hook     digital.CreateHook
	links    map[int64]digital.AccessLink
	bySecret map[string]int64
	nextID   int64

	// Now 用于 CreatedAt/UpdatedAt，测试可替换。
	Now func() time.Time
	// NewSecret 用于生成 secret，测试可替换以制造碰撞。
	NewSecret func() (string, error)
}

func NewMemoryLinks(digitals *MemoryDigitals, hook digital.CreateHook) *MemoryLinks {
	if hook == nil {
		hook = digital.DRMMark{}
	}
	return &MemoryLinks{
		digitals:  digitals,
		hook:      hook,
		links:     make(map[int64]digital.AccessLink),
		bySecret:  make(map[string]int64),
		Now:       time.Now,
		NewSecret: digital.GenerateSecret,
	}
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return &digital.StorageError{Op: op, Err: err}
	}
	return nil
}

func (m *MemoryLinks) Create(ctx context.Context, digitalID, lineItemID int64, secret string) (digital.AccessLink, error) {
	if err := ctxErr(ctx, "create"); err != nil {
		return digital.AccessLink{}, err
	}
	generated := secret == ""

	m.mu.Lock()
	for attempt := 1; generated; attempt++ {
		s, err := m.NewSecret()
		if err != nil {
			m.mu.Unlock()
			return digital.AccessLink{}, err
		}
		if _, taken := m.bySecret[s]; !taken {
			secret = s
			break
		}
		if attempt >= maxSecretAttempts {
			m.mu.Unlock()
			return digital.AccessLink{}, &digital.StorageError{Op: "create", Err: errSecretExhausted}
		}
	}

	now := m.Now()
	link := digital.AccessLink{
		DigitalID:  digitalID,
		LineItemID: lineItemID,
		Secret:     secret,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := digital.ValidateLink(link); err != nil {
		m.mu.Unlock()
		return digital.AccessLink{}, err
	}
	if m.digitals == nil || !m.digitals.exists(digitalID) {
		m.mu.Unlock()
		return digital.AccessLink{}, &digital.ValidationError{Field: "digital_id", Reason: "must exist"}
	}
	if _, taken := m.bySecret[secret]; taken {
		m.mu.Unlock()
		return digital.AccessLink{}, &digital.ValidationError{Field: "secret", Reason: "has already been taken"}
	}

	m.nextID++
	link.ID = m.nextID
	m.links[link.ID] = link
	m.bySecret[link.Secret] = link.ID
	m.mu.Unlock()

	if err := m.hook.AfterCreate(ctx, link); err != nil {
		slog.Error("digital link after-create hook failed", "link_id", link.ID, "err", err)
	}
	return link, nil
}

func (m *MemoryLinks) Update(ctx context.Context, link *digital.AccessLink, changes digital.LinkChanges) error {
	if err := ctxErr(ctx, "update"); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.links[link.ID]
	if !ok {
		return digital.ErrNotFound
	}
	next, err := digital.ApplyChanges(stored, changes)
	if err != nil {
		return err
	}
	if next.DigitalID != stored.DigitalID && (m.digitals == nil || !m.digitals.exists(next.DigitalID)) {
		return &digital.ValidationError{Field: "digital_id", Reason: "must exist"}
	}
	next.UpdatedAt = m.Now()
	m.links[next.ID] = next
	*link = next
	return nil
}

func (m *MemoryLinks) FindBySecret(ctx context.Context, secret string) (digital.AccessLink, error) {
	if err := ctxErr(ctx, "find_by_secret"); err != nil {
		return digital.AccessLink{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySecret[secret]
	if !ok {
		return digital.AccessLink{}, digital.ErrNotFound
	}
	return m.links[id], nil
}

func (m *MemoryLinks) FindByID(ctx context.Context, id int64) (digital.AccessLink, error) {
	if err := ctxErr(ctx, "find_by_id"); err != nil {
		return digital.AccessLink{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	if !ok {
		return digital.AccessLink{}, digital.ErrNotFound
	}
	return link, nil
}

func (m *MemoryLinks) Increment(ctx context.Context, link *digital.AccessLink) error {
	_, err := m.mutate(ctx, "increment", link, func(l *digital.AccessLink) bool {
		l.AccessCounter++
		return true
	})
	return err
}

func (m *MemoryLinks) GuardedIncrement(ctx context.Context, link *digital.AccessLink, maxAccesses *int, createdAfter time.Time) (bool, error) {
	return m.mutate(ctx, "guarded_increment", link, func(l *digital.AccessLink) bool {
		if maxAccesses != nil && l.AccessCounter >= *maxAccesses {
			return false
		}
		if l.CreatedAt.Before(createdAfter) {
			return false
		}
		l.AccessCounter++
		return true
	})
}

func (m *MemoryLinks) Reset(ctx context.Context, link *digital.AccessLink) error {
	_, err := m.mutate(ctx, "reset", link, func(l *digital.AccessLink) bool {
		l.AccessCounter = 0
		return true
	})
	return err
}

// mutate 在锁内对已存储的记录执行 fn，fn 返回 false 表示不写入。
func (m *MemoryLinks) mutate(ctx context.Context, op string, link *digital.AccessLink, fn func(*digital.AccessLink) bool) (bool, error) {
	if err := ctxErr(ctx, op); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.links[link.ID]
	if !ok {
		return false, digital.ErrNotFound
	}
	if !fn(&stored) {
		return false, nil
	}
	stored.UpdatedAt = m.Now()
	m.links[stored.ID] = stored
	link.AccessCounter = stored.AccessCounter
	link.UpdatedAt = stored.UpdatedAt
	return true, nil
}
