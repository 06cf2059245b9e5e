package task

import (
	"context"
	"testing"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/dao"
	"github.com/haierkeys/contact-identity-service/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestApp(t *testing.T, mutate func(*app.AppConfig)) *app.App {
	t.Helper()
	cfg, err := app.NewDefaultConfig()
	require.NoError(t, err)
	cfg.Database.DSN = ":memory:"
	cfg.Log.File = ""
	if mutate != nil {
		mutate(cfg)
	}
	db, err := dao.NewDBEngine(cfg.GetDatabaseConfig())
	require.NoError(t, err)
	a, err := app.NewApp(cfg, zap.NewNop(), db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	return a
}

var t0 = time.Date(2023, 4, 1, 0, 0, 0, 0, time.UTC)

func put(t *testing.T, a *app.App, p domain.LinkPrecedence, linkedID int64, email string) int64 {
	t.Helper()
	c := &domain.Contact{LinkPrecedence: p, Email: &email, CreatedAt: t0}
	if linkedID != 0 {
		c.LinkedID = &linkedID
	}
	out, err := a.ContactRepo.Insert(context.Background(), c)
	require.NoError(t, err)
	return out.ID
}

// seedNetworks builds three networks:
//   - a healthy primary with one secondary
//   - a chain primary <- secondary <- secondary
//   - a primary pointing at another primary
func seedNetworks(t *testing.T, a *app.App) (healthy, chain, broken int64) {
	healthy = put(t, a, domain.LinkPrimary, 0, "a@x.io")
	put(t, a, domain.LinkSecondary, healthy, "b@x.io")

	chain = put(t, a, domain.LinkPrimary, 0, "c@x.io")
	mid := put(t, a, domain.LinkSecondary, chain, "d@x.io")
	put(t, a, domain.LinkSecondary, mid, "e@x.io")

	broken = put(t, a, domain.LinkPrimary, 0, "f@x.io")
	put(t, a, domain.LinkPrimary, broken, "g@x.io")
	return healthy, chain, broken
}

func TestAuditNetwork(t *testing.T) {
	id := func(n int64) *int64 { return &n }
	network := []*domain.Contact{
		{ID: 3, LinkPrecedence: domain.LinkPrimary},
		{ID: 5, LinkPrecedence: domain.LinkSecondary, LinkedID: id(3)},
		{ID: 7, LinkPrecedence: domain.LinkSecondary, LinkedID: id(5)},
		{ID: 9, LinkPrecedence: domain.LinkSecondary, LinkedID: id(42)},
		{ID: 11, LinkPrecedence: domain.LinkSecondary},
	}
	rep := AuditNetwork(network)
	assert.Equal(t, int64(3), rep.RootID)
	assert.Equal(t, 5, rep.Size)
	assert.Equal(t, []int64{3}, rep.Primaries)
	assert.Equal(t, []int64{7}, rep.Chained)
	assert.Equal(t, []int64{9, 11}, rep.Dangling)
	assert.False(t, rep.Healthy(true))

	ok := AuditNetwork(network[:3])
	assert.True(t, ok.Healthy(true))
	assert.False(t, ok.Healthy(false))
	assert.Empty(t, ok.Misordered)
}

func TestAuditNetwork_PrimaryNotOldest(t *testing.T) {
	id := func(n int64) *int64 { return &n }
	network := []*domain.Contact{
		{ID: 1, LinkPrecedence: domain.LinkPrimary, CreatedAt: t0.Add(time.Hour)},
		{ID: 2, LinkPrecedence: domain.LinkSecondary, LinkedID: id(1), CreatedAt: t0},
		{ID: 3, LinkPrecedence: domain.LinkSecondary, LinkedID: id(1), CreatedAt: t0.Add(2 * time.Hour)},
	}
	rep := AuditNetwork(network)
	assert.Equal(t, []int64{1}, rep.Primaries)
	assert.Empty(t, rep.Dangling)
	assert.Empty(t, rep.Chained)
	assert.Equal(t, []int64{2}, rep.Misordered)
	assert.False(t, rep.Healthy(true))

	// equal timestamps fall back to id order
	tie := AuditNetwork([]*domain.Contact{
		{ID: 4, LinkPrecedence: domain.LinkSecondary, LinkedID: id(6), CreatedAt: t0},
		{ID: 6, LinkPrecedence: domain.LinkPrimary, CreatedAt: t0},
	})
	assert.Equal(t, []int64{4}, tie.Misordered)
	assert.False(t, tie.Healthy(true))
}

func TestContactAudit_Shallow(t *testing.T) {
	a := newTestApp(t, func(c *app.AppConfig) { c.Identity.AuditPageSize = 1 })
	_, _, broken := seedNetworks(t, a)

	task, err := NewContactAuditTask(a)
	require.NoError(t, err)
	require.NotNil(t, task)
	audit := task.(*ContactAuditTask)

	summary, err := audit.Audit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Networks)
	assert.Equal(t, 1, summary.Chained)
	require.Len(t, summary.Unhealthy, 1)
	assert.Equal(t, broken, summary.Unhealthy[0].RootID)
	assert.Len(t, summary.Unhealthy[0].Primaries, 2)

	require.NoError(t, audit.Run(context.Background()))
	assert.Equal(t, float64(3), testutil.ToFloat64(audit.networks))
	assert.Equal(t, float64(1), testutil.ToFloat64(audit.violations))
	assert.Equal(t, float64(1), testutil.ToFloat64(audit.chained))
}

func TestContactAudit_DeepFlagsChains(t *testing.T) {
	a := newTestApp(t, func(c *app.AppConfig) { c.Identity.MergePolicy = "deep" })
	_, chain, broken := seedNetworks(t, a)

	task, err := NewContactAuditTask(a)
	require.NoError(t, err)

	summary, err := task.(*ContactAuditTask).Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, summary.Unhealthy, 2)
	assert.Equal(t, chain, summary.Unhealthy[0].RootID)
	assert.Equal(t, broken, summary.Unhealthy[1].RootID)
}

func TestNewContactAuditTask_Config(t *testing.T) {
	disabled := newTestApp(t, func(c *app.AppConfig) { c.Identity.AuditInterval = "0" })
	task, err := NewContactAuditTask(disabled)
	require.NoError(t, err)
	assert.Nil(t, task)

	badCron := newTestApp(t, func(c *app.AppConfig) { c.Identity.AuditCron = "not a cron" })
	_, err = NewContactAuditTask(badCron)
	assert.Error(t, err)

	withCron := newTestApp(t, func(c *app.AppConfig) {
		c.Identity.AuditInterval = "0"
		c.Identity.AuditCron = "30 3 * * *"
	})
	task, err = NewContactAuditTask(withCron)
	require.NoError(t, err)
	require.NotNil(t, task)
	next := task.(Scheduled).Next(time.Date(2024, 1, 1, 10, 0, 0, 0, time.Local))
	assert.Equal(t, time.Date(2024, 1, 2, 3, 30, 0, 0, time.Local), next)

	// gauges are reused when a second task is built on the same registry
	again, err := NewContactAuditTask(withCron)
	require.NoError(t, err)
	assert.Same(t, task.(*ContactAuditTask).networks, again.(*ContactAuditTask).networks)
}
