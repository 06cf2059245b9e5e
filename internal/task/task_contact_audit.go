package task

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/app"
	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/haierkeys/contact-identity-service/internal/service"
	"github.com/haierkeys/contact-identity-service/pkg/logger"
	"github.com/haierkeys/contact-identity-service/pkg/workerpool"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// NetworkReport 单个身份网络的巡检结果
type NetworkReport struct {
	RootID    int64   // 网络中最小的 id，用于去重
	Size      int     // 记录数
	Primaries []int64 // 所有主记录
	Chained   []int64 // 指向次记录的次记录
	Dangling  []int64 // linkedId 指向网络外或为空的次记录，以及带 linkedId 的主记录
	// Misordered 比唯一主记录更早创建的其他记录
	Misordered []int64
}

// Healthy 网络恰有一个主记录，且它是最早的记录，没有悬挂链接
func (r NetworkReport) Healthy(allowChains bool) bool {
	return len(r.Primaries) == 1 &&
		len(r.Dangling) == 0 &&
		len(r.Misordered) == 0 &&
		(allowChains || len(r.Chained) == 0)
}

// AuditNetwork checks one closed network against the link invariants.
func AuditNetwork(network []*domain.Contact) NetworkReport {
	rep := NetworkReport{Size: len(network)}
	byID := make(map[int64]*domain.Contact, len(network))
	for _, c := range network {
		byID[c.ID] = c
		if rep.RootID == 0 || c.ID < rep.RootID {
			rep.RootID = c.ID
		}
	}
	for _, c := range network {
		if c.IsPrimary() {
			rep.Primaries = append(rep.Primaries, c.ID)
			if c.LinkedID != nil {
				rep.Dangling = append(rep.Dangling, c.ID)
			}
			continue
		}
		if c.LinkedID == nil {
			rep.Dangling = append(rep.Dangling, c.ID)
			continue
		}
		parent, ok := byID[*c.LinkedID]
		switch {
		case !ok:
			rep.Dangling = append(rep.Dangling, c.ID)
		case !parent.IsPrimary():
			rep.Chained = append(rep.Chained, c.ID)
		}
	}
	if len(rep.Primaries) == 1 {
		primary := byID[rep.Primaries[0]]
		for _, c := range network {
			if c != primary && c.OlderThan(primary) {
				rep.Misordered = append(rep.Misordered, c.ID)
			}
		}
	}
	slices.Sort(rep.Primaries)
	slices.Sort(rep.Chained)
	slices.Sort(rep.Dangling)
	slices.Sort(rep.Misordered)
	return rep
}

// AuditSummary 一次巡检的汇总
type AuditSummary struct {
	Networks  int
	Unhealthy []NetworkReport
	Chained   int
}

// ContactAuditTask 定期巡检身份网络，只读
type ContactAuditTask struct {
	app         *app.App
	interval    time.Duration
	schedule    cron.Schedule
	pageSize    int
	allowChains bool

	violations prometheus.Gauge
	chained    prometheus.Gauge
	networks   prometheus.Gauge
}

// Name 返回任务名称
func (t *ContactAuditTask) Name() string {
	return "ContactAudit"
}

// LoopInterval 返回执行间隔
func (t *ContactAuditTask) LoopInterval() time.Duration {
	return t.interval
}

// Next 配置了 cron 表达式时按表达式计算下次执行时间
func (t *ContactAuditTask) Next(now time.Time) time.Time {
	if t.schedule != nil {
		return t.schedule.Next(now)
	}
	return now.Add(t.interval)
}

// IsStartupRun 是否立即执行一次
func (t *ContactAuditTask) IsStartupRun() bool {
	return false
}

// Run 执行巡检
func (t *ContactAuditTask) Run(ctx context.Context) error {
	summary, err := t.Audit(ctx)
	if err != nil {
		return err
	}

	t.networks.Set(float64(summary.Networks))
	t.violations.Set(float64(len(summary.Unhealthy)))
	t.chained.Set(float64(summary.Chained))

	lg := t.app.Logger()
	for _, rep := range summary.Unhealthy {
		lg.Warn("contact network violates link invariants",
			zap.String(logger.FieldTask, t.Name()),
			zap.Int64(logger.FieldContactID, rep.RootID),
			zap.Int64s("primaries", rep.Primaries),
			zap.Int64s("chained", rep.Chained),
			zap.Int64s("dangling", rep.Dangling),
			zap.Int64s("misordered", rep.Misordered))
	}
	lg.Info("contact audit finished",
		zap.String(logger.FieldTask, t.Name()),
		zap.Int("networks", summary.Networks),
		zap.Int("unhealthy", len(summary.Unhealthy)),
		zap.Int("chained", summary.Chained))
	return nil
}

// Audit 分页列出主记录，在 worker pool 上并发求闭包并检查
func (t *ContactAuditTask) Audit(ctx context.Context) (*AuditSummary, error) {
	repo := t.app.ContactRepo

	var (
		mu      sync.Mutex
		seen    = make(map[int64]bool)
		summary = &AuditSummary{}
	)

	check := func(ctx context.Context, primaryID int64) error {
		network, err := repo.FindLinkedNetwork(ctx, []int64{primaryID})
		if err != nil {
			return fmt.Errorf("network of %d: %w", primaryID, err)
		}
		rep := AuditNetwork(network)

		mu.Lock()
		defer mu.Unlock()
		if seen[rep.RootID] {
			return nil
		}
		seen[rep.RootID] = true
		summary.Networks++
		summary.Chained += len(rep.Chained)
		if !rep.Healthy(t.allowChains) {
			summary.Unhealthy = append(summary.Unhealthy, rep)
		}
		return nil
	}

	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ids, err := repo.ListPrimaryIDs(ctx, afterID, t.pageSize)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			break
		}
		if err := workerpool.Each(ctx, t.app.WorkerPool(), ids, check); err != nil {
			return nil, err
		}
		afterID = ids[len(ids)-1]
		if len(ids) < t.pageSize {
			break
		}
	}

	slices.SortFunc(summary.Unhealthy, func(a, b NetworkReport) int {
		return cmp.Compare(a.RootID, b.RootID)
	})
	return summary, nil
}

// registerGauge 注册 gauge，已注册时复用已有的
func registerGauge(reg prometheus.Registerer, g prometheus.Gauge) prometheus.Gauge {
	if reg == nil {
		return g
	}
	if err := reg.Register(g); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing
			}
		}
	}
	return g
}

// NewContactAuditTask 创建巡检任务，间隔与 cron 都未配置时返回 nil
func NewContactAuditTask(appContainer *app.App) (Task, error) {
	cfg := appContainer.Config()

	t := &ContactAuditTask{
		app:      appContainer,
		interval: cfg.GetAuditInterval(),
		pageSize: cfg.Identity.AuditPageSize,
	}
	if t.pageSize <= 0 {
		t.pageSize = 200
	}
	if expr := strings.TrimSpace(cfg.Identity.AuditCron); expr != "" {
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
		schedule, err := parser.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("identity.audit-cron %q: %w", expr, err)
		}
		t.schedule = schedule
	}
	if t.interval <= 0 && t.schedule == nil {
		return nil, nil
	}

	policy, err := service.ParseMergePolicy(string(cfg.GetServiceConfig().Identity.MergePolicy))
	if err != nil {
		return nil, err
	}
	// 浅合并会保留降级主记录下的次记录链
	t.allowChains = policy == service.MergeShallow

	t.networks = registerGauge(appContainer.Registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "contact_identity",
		Name:      "audit_networks",
		Help:      "Identity networks seen by the last audit.",
	}))
	t.violations = registerGauge(appContainer.Registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "contact_identity",
		Name:      "audit_unhealthy_networks",
		Help:      "Networks violating link invariants in the last audit.",
	}))
	t.chained = registerGauge(appContainer.Registry, prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "contact_identity",
		Name:      "audit_chained_secondaries",
		Help:      "Secondaries linked to another secondary in the last audit.",
	}))

	return t, nil
}

// init 自动注册巡检任务
func init() {
	RegisterWithApp(func(appContainer *app.App) (Task, error) {
		return NewContactAuditTask(appContainer)
	})
}
