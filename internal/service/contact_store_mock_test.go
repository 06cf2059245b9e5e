package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/domain"
)

var errStoreDown = errors.New("store down")

// memContactRepo is an in-memory contact store that records every call.
type memContactRepo struct {
	domain.ContactRepository

	mu     sync.Mutex
	rows   map[int64]*domain.Contact
	nextID int64
	clock  time.Time
	calls  []string
	failOn string
}

func newMemContactRepo() *memContactRepo {
	return &memContactRepo{
		rows:  make(map[int64]*domain.Contact),
		clock: time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC),
	}
}

func strp(s string) *string { return &s }

func clone(c *domain.Contact) *domain.Contact {
	cp := *c
	return &cp
}

func (m *memContactRepo) record(op string) error {
	m.calls = append(m.calls, op)
	if m.failOn == op {
		return errStoreDown
	}
	return nil
}

func (m *memContactRepo) tick() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

// seed inserts a row directly, bypassing call recording.
func (m *memContactRepo) seed(email, phone string, linkedID int64, createdAt time.Time) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	c := &domain.Contact{ID: m.nextID, LinkPrecedence: domain.LinkPrimary, CreatedAt: createdAt, UpdatedAt: createdAt}
	if email != "" {
		c.Email = strp(email)
	}
	if phone != "" {
		c.PhoneNumber = strp(phone)
	}
	if linkedID != 0 {
		c.LinkedID = &linkedID
		c.LinkPrecedence = domain.LinkSecondary
	}
	m.rows[c.ID] = c
	if createdAt.After(m.clock) {
		m.clock = createdAt
	}
	return c.ID
}

func (m *memContactRepo) live() []*domain.Contact {
	out := make([]*domain.Contact, 0, len(m.rows))
	for _, c := range m.rows {
		if !c.IsDeleted() {
			out = append(out, clone(c))
		}
	}
	slices.SortFunc(out, func(a, b *domain.Contact) int {
		if a.OlderThan(b) {
			return -1
		}
		return 1
	})
	return out
}

func (m *memContactRepo) writes() int {
	n := 0
	for _, c := range m.calls {
		switch c {
		case "CreatePrimary", "CreateSecondary", "DemoteToSecondary", "RelinkSecondaries":
			n++
		}
	}
	return n
}

func (m *memContactRepo) FindMatchingContacts(ctx context.Context, email, phone *string) ([]*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FindMatchingContacts"); err != nil {
		return nil, err
	}
	var out []*domain.Contact
	for _, c := range m.live() {
		if (email != nil && c.HasEmail(*email)) || (phone != nil && c.HasPhone(*phone)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *memContactRepo) network(seedIDs []int64) []*domain.Contact {
	live := m.live()
	in := make(map[int64]bool)
	for _, id := range seedIDs {
		if c, ok := m.rows[id]; ok && !c.IsDeleted() {
			in[id] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for _, c := range live {
			if in[c.ID] {
				continue
			}
			if c.LinkedID != nil && in[*c.LinkedID] {
				in[c.ID], changed = true, true
				continue
			}
			for _, o := range live {
				if in[o.ID] && o.LinkedID != nil && *o.LinkedID == c.ID {
					in[c.ID], changed = true, true
					break
				}
			}
		}
	}
	var out []*domain.Contact
	for _, c := range live {
		if in[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func (m *memContactRepo) FindLinkedNetwork(ctx context.Context, seedIDs []int64) ([]*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("FindLinkedNetwork"); err != nil {
		return nil, err
	}
	return m.network(seedIDs), nil
}

func (m *memContactRepo) insert(email, phone *string, linkedID *int64, p domain.LinkPrecedence) *domain.Contact {
	m.nextID++
	now := m.tick()
	c := &domain.Contact{ID: m.nextID, Email: email, PhoneNumber: phone, LinkedID: linkedID, LinkPrecedence: p, CreatedAt: now, UpdatedAt: now}
	m.rows[c.ID] = c
	return clone(c)
}

func (m *memContactRepo) CreatePrimary(ctx context.Context, email, phone *string) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreatePrimary"); err != nil {
		return nil, err
	}
	return m.insert(email, phone, nil, domain.LinkPrimary), nil
}

func (m *memContactRepo) CreateSecondary(ctx context.Context, email, phone *string, primaryID int64) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("CreateSecondary"); err != nil {
		return nil, err
	}
	return m.insert(email, phone, &primaryID, domain.LinkSecondary), nil
}

func (m *memContactRepo) DemoteToSecondary(ctx context.Context, id, primaryID int64) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("DemoteToSecondary"); err != nil {
		return nil, err
	}
	c, ok := m.rows[id]
	if !ok {
		return nil, domain.ErrContactNotFound
	}
	c.LinkPrecedence = domain.LinkSecondary
	c.LinkedID = &primaryID
	c.UpdatedAt = m.tick()
	return clone(c), nil
}

func (m *memContactRepo) RelinkSecondaries(ctx context.Context, fromIDs []int64, primaryID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("RelinkSecondaries"); err != nil {
		return nil, err
	}
	var ids []int64
	for _, c := range m.live() {
		if c.LinkedID != nil && slices.Contains(fromIDs, *c.LinkedID) && c.ID != primaryID {
			row := m.rows[c.ID]
			row.LinkedID = &primaryID
			ids = append(ids, c.ID)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (m *memContactRepo) Transaction(ctx context.Context, fn func(tx domain.ContactRepository) error) error {
	return fn(m)
}

func (m *memContactRepo) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok || c.IsDeleted() {
		return nil, domain.ErrContactNotFound
	}
	return clone(c), nil
}

func (m *memContactRepo) Ping(ctx context.Context) error {
	if m.failOn == "Ping" {
		return errStoreDown
	}
	return nil
}

// storeOnly hides the relinker so deep policy construction can be rejected.
type storeOnly struct {
	domain.ContactStore
}
