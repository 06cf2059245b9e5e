package dao

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/haierkeys/contact-identity-service/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func newTestRepo(t *testing.T) domain.ContactRepository {
	t.Helper()
	db, err := NewDBEngine(DatabaseConfig{Type: "sqlite", DSN: ":memory:", AutoMigrate: true})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewContactRepository(New(db, context.Background(), WithConfig(&DatabaseConfig{AutoMigrate: true})))
}

func insert(t *testing.T, repo domain.ContactRepository, email, phone string, linkedID int64, at time.Duration) int64 {
	t.Helper()
	c := &domain.Contact{LinkPrecedence: domain.LinkPrimary, CreatedAt: base.Add(at)}
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
	out, err := repo.Insert(context.Background(), c)
	require.NoError(t, err)
	return out.ID
}

func ids(cs []*domain.Contact) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestFindMatchingContacts(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	b := insert(t, repo, "b@x.com", "200", 0, time.Hour)
	a := insert(t, repo, "a@x.com", "100", 0, 0)
	c := insert(t, repo, "c@x.com", "100", 0, 2*time.Hour)
	insert(t, repo, "d@x.com", "300", 0, 3*time.Hour)

	got, err := repo.FindMatchingContacts(ctx, strp("b@x.com"), strp("100"))
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b, c}, ids(got), "ordered by createdAt")

	got, err = repo.FindMatchingContacts(ctx, nil, strp("200"))
	require.NoError(t, err)
	assert.Equal(t, []int64{b}, ids(got))

	got, err = repo.FindMatchingContacts(ctx, strp("nobody@x.com"), nil)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = repo.FindMatchingContacts(ctx, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindLinkedNetwork_TransitiveBothDirections(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// z <- a <- b <- s1, and a <- s2: a chain deeper than one hop
	z := insert(t, repo, "z@x.com", "1", 0, 0)
	a := insert(t, repo, "a@x.com", "2", z, time.Minute)
	b := insert(t, repo, "b@x.com", "3", a, 2*time.Minute)
	s1 := insert(t, repo, "s1@x.com", "4", b, 3*time.Minute)
	s2 := insert(t, repo, "s2@x.com", "5", a, 4*time.Minute)
	other := insert(t, repo, "o@x.com", "6", 0, 5*time.Minute)

	for _, seed := range []int64{z, b, s1, s2} {
		got, err := repo.FindLinkedNetwork(ctx, []int64{seed})
		require.NoError(t, err)
		assert.Equal(t, []int64{z, a, b, s1, s2}, ids(got), "seed %d", seed)
	}

	got, err := repo.FindLinkedNetwork(ctx, []int64{s1, other, s1})
	require.NoError(t, err)
	assert.Equal(t, []int64{z, a, b, s1, s2, other}, ids(got))

	got, err = repo.FindLinkedNetwork(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindLinkedNetwork_SkipsSoftDeleted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p := insert(t, repo, "p@x.com", "1", 0, 0)
	gone := insert(t, repo, "gone@x.com", "2", p, time.Minute)
	kept := insert(t, repo, "kept@x.com", "3", p, 2*time.Minute)

	require.NoError(t, repo.(*contactRepository).dao.DB.
		Where("id = ?", gone).Delete(&model.Contact{}).Error)

	got, err := repo.FindLinkedNetwork(ctx, []int64{p})
	require.NoError(t, err)
	assert.Equal(t, []int64{p, kept}, ids(got))

	matches, err := repo.FindMatchingContacts(ctx, strp("gone@x.com"), nil)
	require.NoError(t, err)
	assert.Empty(t, matches)

	_, err = repo.GetByID(ctx, gone)
	assert.ErrorIs(t, err, domain.ErrContactNotFound)
}

func TestCreateAndDemote(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.CreatePrimary(ctx, strp("a@x.com"), nil)
	require.NoError(t, err)
	assert.True(t, p.IsPrimary())
	assert.Nil(t, p.PhoneNumber)
	assert.False(t, p.CreatedAt.IsZero())

	q, err := repo.CreatePrimary(ctx, nil, strp("100"))
	require.NoError(t, err)

	s, err := repo.CreateSecondary(ctx, strp("b@x.com"), strp("100"), q.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkSecondary, s.LinkPrecedence)
	assert.Equal(t, q.ID, *s.LinkedID)

	d, err := repo.DemoteToSecondary(ctx, q.ID, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.LinkSecondary, d.LinkPrecedence)
	assert.Equal(t, p.ID, *d.LinkedID)
	assert.Equal(t, q.CreatedAt.UnixMilli(), d.CreatedAt.UnixMilli())

	_, err = repo.DemoteToSecondary(ctx, 9999, p.ID)
	assert.ErrorIs(t, err, domain.ErrContactNotFound)

	relinked, err := repo.RelinkSecondaries(ctx, []int64{q.ID}, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{s.ID}, relinked)

	got, err := repo.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, *got.LinkedID)
}

func TestTransactionRollsBack(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := repo.Transaction(ctx, func(tx domain.ContactRepository) error {
		if _, err := tx.CreatePrimary(ctx, strp("a@x.com"), nil); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = repo.Transaction(ctx, func(tx domain.ContactRepository) error {
		_, err := tx.CreatePrimary(ctx, strp("a@x.com"), nil)
		return err
	})
	require.NoError(t, err)
	n, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestListPrimaryIDsAndReset(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	a := insert(t, repo, "a@x.com", "", 0, 0)
	insert(t, repo, "b@x.com", "", a, time.Minute)
	c := insert(t, repo, "c@x.com", "", 0, 2*time.Minute)
	d := insert(t, repo, "d@x.com", "", 0, 3*time.Minute)

	page, err := repo.ListPrimaryIDs(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, c}, page)

	page, err = repo.ListPrimaryIDs(ctx, c, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{d}, page)

	require.NoError(t, repo.Reset(ctx))
	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, repo.Ping(ctx))
}
