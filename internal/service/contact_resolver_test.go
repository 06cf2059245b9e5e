package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func newResolver(t *testing.T, repo *memContactRepo, policy MergePolicy) *ContactResolver {
	t.Helper()
	r, err := NewContactResolver(repo, WithMergePolicy(policy))
	require.NoError(t, err)
	return r
}

func TestIdentify_InvalidInputTouchesNoStore(t *testing.T) {
	repo := newMemContactRepo()
	r := newResolver(t, repo, MergeShallow)

	for _, tc := range []struct {
		name         string
		email, phone *string
	}{
		{"both nil", nil, nil},
		{"both empty", strp(""), strp("")},
		{"empty email nil phone", strp(""), nil},
	} {
		t.Run(tc.name, func(t *testing.T) {
			res, err := r.Identify(context.Background(), tc.email, tc.phone)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Nil(t, res)
		})
	}
	assert.Empty(t, repo.calls)
}

func TestIdentify_EmptyStoreCreatesPrimary(t *testing.T) {
	repo := newMemContactRepo()
	r := newResolver(t, repo, MergeShallow)

	res, err := r.Identify(context.Background(), strp("a@x.com"), strp("100"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreatedPrimary, res.Outcome)
	assert.Equal(t, []string{"a@x.com"}, res.Emails)
	assert.Equal(t, []string{"100"}, res.PhoneNumbers)
	assert.Empty(t, res.SecondaryContactIDs)
	assert.Equal(t, res.CreatedID, res.PrimaryContactID)

	rows := repo.live()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].IsPrimary())
	assert.Nil(t, rows[0].LinkedID)
	assert.Equal(t, []string{"FindMatchingContacts", "CreatePrimary"}, repo.calls)
}

func TestIdentify_NewInformationCreatesSecondary(t *testing.T) {
	repo := newMemContactRepo()
	p := repo.seed("a@x.com", "100", 0, t0)
	r := newResolver(t, repo, MergeShallow)

	res, err := r.Identify(context.Background(), strp("b@x.com"), strp("100"))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCreatedSecondary, res.Outcome)
	assert.Equal(t, p, res.PrimaryContactID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, res.Emails)
	assert.Equal(t, []string{"100"}, res.PhoneNumbers)
	assert.Equal(t, []int64{res.CreatedID}, res.SecondaryContactIDs)

	created := repo.rows[res.CreatedID]
	assert.Equal(t, domain.LinkSecondary, created.LinkPrecedence)
	require.NotNil(t, created.LinkedID)
	assert.Equal(t, p, *created.LinkedID)
	assert.Len(t, repo.live(), 2)
}

func TestIdentify_MergeDemotesYoungerPrimary(t *testing.T) {
	for _, tc := range []struct {
		name          string
		firstIsOlder  bool
		wantPrimaryIs string
	}{
		{"a older", true, "a"},
		{"b older", false, "b"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMemContactRepo()
			ta, tb := t0, t0.Add(time.Hour)
			if !tc.firstIsOlder {
				ta, tb = tb, ta
			}
			a := repo.seed("a@x.com", "100", 0, ta)
			b := repo.seed("b@x.com", "200", 0, tb)
			r := newResolver(t, repo, MergeShallow)

			res, err := r.Identify(context.Background(), strp("a@x.com"), strp("200"))
			require.NoError(t, err)

			survivor, loser := a, b
			if tc.wantPrimaryIs == "b" {
				survivor, loser = b, a
			}
			assert.Equal(t, OutcomeMerged, res.Outcome)
			assert.Equal(t, survivor, res.PrimaryContactID)
			assert.Equal(t, []int64{loser}, res.Demoted)
			assert.Equal(t, []int64{loser}, res.SecondaryContactIDs)
			assert.Len(t, repo.live(), 2, "merge must not create a record")

			demoted := repo.rows[loser]
			assert.Equal(t, domain.LinkSecondary, demoted.LinkPrecedence)
			require.NotNil(t, demoted.LinkedID)
			assert.Equal(t, survivor, *demoted.LinkedID)
			assert.True(t, repo.rows[survivor].IsPrimary())
		})
	}
}

func TestIdentify_EqualCreatedAtBreaksTieOnLowestID(t *testing.T) {
	repo := newMemContactRepo()
	a := repo.seed("a@x.com", "100", 0, t0)
	b := repo.seed("b@x.com", "200", 0, t0)
	r := newResolver(t, repo, MergeShallow)

	res, err := r.Identify(context.Background(), strp("b@x.com"), strp("100"))
	require.NoError(t, err)
	assert.Equal(t, a, res.PrimaryContactID)
	assert.Equal(t, []int64{b}, res.Demoted)
}

func TestIdentify_KnownInformationWritesNothing(t *testing.T) {
	repo := newMemContactRepo()
	p := repo.seed("a@x.com", "100", 0, t0)
	repo.seed("b@x.com", "200", p, t0.Add(time.Minute))
	r := newResolver(t, repo, MergeShallow)

	for _, tc := range []struct {
		name         string
		email, phone *string
	}{
		{"split across records", strp("a@x.com"), strp("200")},
		{"exact secondary", strp("b@x.com"), strp("200")},
		{"email only", strp("b@x.com"), nil},
		{"phone only", nil, strp("100")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			repo.calls = nil
			res, err := r.Identify(context.Background(), tc.email, tc.phone)
			require.NoError(t, err)
			assert.Equal(t, OutcomeMatched, res.Outcome)
			assert.Equal(t, p, res.PrimaryContactID)
			assert.Zero(t, repo.writes())
			assert.Equal(t, []string{"a@x.com", "b@x.com"}, res.Emails)
			assert.Equal(t, []string{"100", "200"}, res.PhoneNumbers)
		})
	}
}

func TestIdentify_RepeatedCallIsIdempotent(t *testing.T) {
	repo := newMemContactRepo()
	repo.seed("a@x.com", "100", 0, t0)
	r := newResolver(t, repo, MergeShallow)
	ctx := context.Background()

	first, err := r.Identify(ctx, strp("a@x.com"), strp("300"))
	require.NoError(t, err)
	count := len(repo.live())

	second, err := r.Identify(ctx, strp("a@x.com"), strp("300"))
	require.NoError(t, err)
	third, err := r.Identify(ctx, strp("a@x.com"), strp("300"))
	require.NoError(t, err)

	assert.Len(t, repo.live(), count)
	for _, res := range []*IdentityResult{second, third} {
		assert.Equal(t, OutcomeMatched, res.Outcome)
		assert.Equal(t, first.PrimaryContactID, res.PrimaryContactID)
		assert.Equal(t, first.Emails, res.Emails)
		assert.Equal(t, first.PhoneNumbers, res.PhoneNumbers)
		assert.Equal(t, first.SecondaryContactIDs, res.SecondaryContactIDs)
	}
}

// lorraine / mcfly sample from the original service's seed data.
func TestIdentify_SampleNetwork(t *testing.T) {
	repo := newMemContactRepo()
	lorraine := repo.seed("lorraine@hillvalley.edu", "123456", 0, t0)
	mcfly := repo.seed("mcfly@hillvalley.edu", "123456", lorraine, t0.Add(24*time.Hour))
	george := repo.seed("george@hillvalley.edu", "919191", 0, t0.Add(48*time.Hour))
	biff := repo.seed("biffsucks@hillvalley.edu", "717171", 0, t0.Add(72*time.Hour))
	r := newResolver(t, repo, MergeShallow)
	ctx := context.Background()

	res, err := r.Identify(ctx, nil, strp("123456"))
	require.NoError(t, err)
	assert.Equal(t, lorraine, res.PrimaryContactID)
	assert.Equal(t, []string{"lorraine@hillvalley.edu", "mcfly@hillvalley.edu"}, res.Emails)
	assert.Equal(t, []string{"123456"}, res.PhoneNumbers)
	assert.Equal(t, []int64{mcfly}, res.SecondaryContactIDs)

	res, err = r.Identify(ctx, strp("george@hillvalley.edu"), strp("717171"))
	require.NoError(t, err)
	assert.Equal(t, george, res.PrimaryContactID)
	assert.Equal(t, []string{"george@hillvalley.edu", "biffsucks@hillvalley.edu"}, res.Emails)
	assert.Equal(t, []string{"919191", "717171"}, res.PhoneNumbers)
	assert.Equal(t, []int64{biff}, res.SecondaryContactIDs)
}

func TestIdentify_ShallowMergeKeepsGrandchildren(t *testing.T) {
	repo := newMemContactRepo()
	a := repo.seed("a@x.com", "100", 0, t0)
	b := repo.seed("b@x.com", "200", 0, t0.Add(time.Hour))
	s := repo.seed("c@x.com", "200", b, t0.Add(2*time.Hour))
	r := newResolver(t, repo, MergeShallow)

	res, err := r.Identify(context.Background(), strp("a@x.com"), strp("200"))
	require.NoError(t, err)

	assert.Equal(t, a, res.PrimaryContactID)
	assert.Equal(t, []int64{b, s}, res.SecondaryContactIDs)
	assert.Empty(t, res.Relinked)
	assert.Equal(t, b, *repo.rows[s].LinkedID)
	assert.NotContains(t, repo.calls, "RelinkSecondaries")
}

func TestIdentify_DeepMergeRelinksGrandchildren(t *testing.T) {
	repo := newMemContactRepo()
	a := repo.seed("a@x.com", "100", 0, t0)
	b := repo.seed("b@x.com", "200", 0, t0.Add(time.Hour))
	s := repo.seed("c@x.com", "200", b, t0.Add(2*time.Hour))
	r := newResolver(t, repo, MergeDeep)

	res, err := r.Identify(context.Background(), strp("a@x.com"), strp("200"))
	require.NoError(t, err)

	assert.Equal(t, a, res.PrimaryContactID)
	assert.Equal(t, []int64{b, s}, res.SecondaryContactIDs)
	assert.Equal(t, []int64{s}, res.Relinked)
	assert.Equal(t, a, *repo.rows[s].LinkedID)
	assert.Equal(t, a, *repo.rows[b].LinkedID)
}

func TestNewContactResolver_DeepNeedsRelinker(t *testing.T) {
	_, err := NewContactResolver(storeOnly{newMemContactRepo()}, WithMergePolicy(MergeDeep))
	assert.Error(t, err)

	r, err := NewContactResolver(storeOnly{newMemContactRepo()})
	require.NoError(t, err)
	assert.Equal(t, MergeShallow, r.Policy())
}

func TestIdentify_NetworkWithoutPrimary(t *testing.T) {
	repo := newMemContactRepo()
	// orphan secondary whose primary no longer exists
	repo.seed("a@x.com", "100", 99, t0)
	r := newResolver(t, repo, MergeShallow)

	_, err := r.Identify(context.Background(), strp("a@x.com"), strp("100"))
	assert.ErrorIs(t, err, ErrInconsistentNetwork)
}

func TestIdentify_StoreFailurePropagates(t *testing.T) {
	for _, op := range []string{"FindMatchingContacts", "FindLinkedNetwork", "CreatePrimary", "CreateSecondary", "DemoteToSecondary"} {
		t.Run(op, func(t *testing.T) {
			repo := newMemContactRepo()
			if op != "CreatePrimary" {
				repo.seed("a@x.com", "100", 0, t0)
				repo.seed("b@x.com", "200", 0, t0.Add(time.Hour))
			}
			repo.failOn = op
			r := newResolver(t, repo, MergeShallow)

			email, phone := strp("a@x.com"), strp("200")
			switch op {
			case "CreatePrimary":
				email, phone = strp("new@x.com"), nil
			case "CreateSecondary":
				email, phone = strp("c@x.com"), strp("100")
			}

			res, err := r.Identify(context.Background(), email, phone)
			assert.Nil(t, res)
			require.Error(t, err)

			var se *StoreError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, op, se.Op)
			assert.ErrorIs(t, err, errStoreDown)
		})
	}
}

func TestFormatResponse(t *testing.T) {
	c := func(id int64, email, phone string, linked int64, at time.Duration) *domain.Contact {
		out := &domain.Contact{ID: id, LinkPrecedence: domain.LinkPrimary, CreatedAt: t0.Add(at)}
		if email != "" {
			out.Email = strp(email)
		}
		if phone != "" {
			out.PhoneNumber = strp(phone)
		}
		if linked != 0 {
			out.LinkedID = &linked
			out.LinkPrecedence = domain.LinkSecondary
		}
		return out
	}

	t.Run("primary values first then dedup in order", func(t *testing.T) {
		res, err := FormatResponse([]*domain.Contact{
			c(5, "b@x.com", "200", 7, 0),
			c(7, "a@x.com", "", 0, time.Minute),
			c(9, "b@x.com", "100", 7, 2*time.Minute),
			c(3, "", "100", 7, 3*time.Minute),
		})
		require.NoError(t, err)
		assert.Equal(t, int64(7), res.PrimaryContactID)
		assert.Equal(t, []string{"a@x.com", "b@x.com"}, res.Emails)
		assert.Equal(t, []string{"200", "100"}, res.PhoneNumbers)
		assert.Equal(t, []int64{5, 9, 3}, res.SecondaryContactIDs)
	})

	t.Run("no primary", func(t *testing.T) {
		_, err := FormatResponse([]*domain.Contact{c(1, "a@x.com", "", 2, 0)})
		assert.ErrorIs(t, err, ErrInconsistentNetwork)
	})

	t.Run("empty slices are not nil", func(t *testing.T) {
		res, err := FormatResponse([]*domain.Contact{c(1, "", "100", 0, 0)})
		require.NoError(t, err)
		assert.NotNil(t, res.Emails)
		assert.NotNil(t, res.SecondaryContactIDs)
	})
}

func TestParseMergePolicy(t *testing.T) {
	p, err := ParseMergePolicy("")
	require.NoError(t, err)
	assert.Equal(t, MergeShallow, p)

	p, err = ParseMergePolicy("deep")
	require.NoError(t, err)
	assert.Equal(t, MergeDeep, p)

	_, err = ParseMergePolicy("eager")
	assert.Error(t, err)
}
