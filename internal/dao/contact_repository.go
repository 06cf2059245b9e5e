package dao

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/haierkeys/contact-identity-service/internal/model"
	"github.com/haierkeys/contact-identity-service/pkg/timex"
	"gorm.io/gorm"
)

// contactRepository 实现 domain.ContactRepository 接口
type contactRepository struct {
	dao *Dao
	tx  *gorm.DB // 非空时所有操作绑定到该事务
}

// NewContactRepository 创建 ContactRepository 实例
func NewContactRepository(dao *Dao) domain.ContactRepository {
	return &contactRepository{dao: dao}
}

var _ domain.ContactRepository = (*contactRepository)(nil)

// contact 获取绑定 ctx 的查询对象，首次使用时自动迁移
func (r *contactRepository) contact(ctx context.Context) (*gorm.DB, error) {
	if r.tx != nil {
		return r.tx.WithContext(ctx), nil
	}
	db, err := r.dao.UseWithOnceFunc(func(g *gorm.DB) error {
		return model.AutoMigrate(g, "Contact")
	}, "contact#contact")
	if err != nil {
		return nil, err
	}
	return db.WithContext(ctx), nil
}

// toDomain 将数据库模型转换为领域模型
func (r *contactRepository) toDomain(m *model.Contact) *domain.Contact {
	if m == nil {
		return nil
	}
	c := &domain.Contact{
		ID:             m.ID,
		Email:          m.Email,
		PhoneNumber:    m.PhoneNumber,
		LinkedID:       m.LinkedID,
		LinkPrecedence: domain.LinkPrecedence(m.LinkPrecedence),
		CreatedAt:      m.CreatedAt.Std(),
		UpdatedAt:      m.UpdatedAt.Std(),
	}
	if m.DeletedAt.Valid {
		t := m.DeletedAt.Time
		c.DeletedAt = &t
	}
	return c
}

// toModel 将领域模型转换为数据库模型
func (r *contactRepository) toModel(c *domain.Contact) *model.Contact {
	if c == nil {
		return nil
	}
	m := &model.Contact{
		ID:             c.ID,
		Email:          c.Email,
		PhoneNumber:    c.PhoneNumber,
		LinkedID:       c.LinkedID,
		LinkPrecedence: string(c.LinkPrecedence),
		CreatedAt:      timex.Time(c.CreatedAt),
		UpdatedAt:      timex.Time(c.UpdatedAt),
	}
	if c.DeletedAt != nil {
		m.DeletedAt = gorm.DeletedAt{Time: *c.DeletedAt, Valid: true}
	}
	return m
}

func (r *contactRepository) toDomainList(ms []*model.Contact) []*domain.Contact {
	out := make([]*domain.Contact, 0, len(ms))
	for _, m := range ms {
		out = append(out, r.toDomain(m))
	}
	return out
}

// sortOldestFirst orders by created_at, then id.
func sortOldestFirst(cs []*domain.Contact) {
	slices.SortStableFunc(cs, func(a, b *domain.Contact) int {
		if a.OlderThan(b) {
			return -1
		}
		if b.OlderThan(a) {
			return 1
		}
		return 0
	})
}

// FindMatchingContacts 查找 email 或 phone 相同的联系人
func (r *contactRepository) FindMatchingContacts(ctx context.Context, email, phone *string) ([]*domain.Contact, error) {
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}

	q := db.Model(&model.Contact{})
	switch {
	case email != nil && phone != nil:
		q = q.Where("(email = ? OR phone_number = ?)", *email, *phone)
	case email != nil:
		q = q.Where("email = ?", *email)
	case phone != nil:
		q = q.Where("phone_number = ?", *phone)
	default:
		return []*domain.Contact{}, nil
	}

	var ms []*model.Contact
	if err := q.Order("created_at ASC").Order("id ASC").Find(&ms).Error; err != nil {
		return nil, err
	}
	return r.toDomainList(ms), nil
}

// FindLinkedNetwork 计算种子集合在 linked_id 关系上的传递闭包
// Each round fetches the children of newly found rows and the parents they point at;
// traversal never passes through soft-deleted rows.
func (r *contactRepository) FindLinkedNetwork(ctx context.Context, seedIDs []int64) ([]*domain.Contact, error) {
	if len(seedIDs) == 0 {
		return []*domain.Contact{}, nil
	}
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}

	found := make(map[int64]*model.Contact)

	var seeds []*model.Contact
	if err := db.Where("id IN ?", dedupIDs(seedIDs)).Find(&seeds).Error; err != nil {
		return nil, err
	}
	fresh := absorb(found, seeds)

	for len(fresh) > 0 {
		children := make([]int64, 0, len(fresh))
		parents := make([]int64, 0)
		for _, m := range fresh {
			children = append(children, m.ID)
			if m.LinkedID != nil {
				if _, ok := found[*m.LinkedID]; !ok {
					parents = append(parents, *m.LinkedID)
				}
			}
		}

		q := db.Where("linked_id IN ?", children)
		if len(parents) > 0 {
			q = db.Where("(linked_id IN ? OR id IN ?)", children, dedupIDs(parents))
		}
		var next []*model.Contact
		if err := q.Find(&next).Error; err != nil {
			return nil, err
		}
		fresh = absorb(found, next)
	}

	out := make([]*domain.Contact, 0, len(found))
	for _, m := range found {
		out = append(out, r.toDomain(m))
	}
	sortOldestFirst(out)
	return out, nil
}

// absorb adds unseen rows to found and returns them.
func absorb(found map[int64]*model.Contact, rows []*model.Contact) []*model.Contact {
	fresh := make([]*model.Contact, 0, len(rows))
	for _, m := range rows {
		if _, ok := found[m.ID]; ok {
			continue
		}
		found[m.ID] = m
		fresh = append(fresh, m)
	}
	return fresh
}

func dedupIDs(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func (r *contactRepository) create(ctx context.Context, m *model.Contact) (*domain.Contact, error) {
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}
	if err := db.Create(m).Error; err != nil {
		return nil, err
	}
	return r.toDomain(m), nil
}

// CreatePrimary 新建主记录
func (r *contactRepository) CreatePrimary(ctx context.Context, email, phone *string) (*domain.Contact, error) {
	now := timex.Now()
	return r.create(ctx, &model.Contact{
		Email:          email,
		PhoneNumber:    phone,
		LinkPrecedence: string(domain.LinkPrimary),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// CreateSecondary 新建从记录
func (r *contactRepository) CreateSecondary(ctx context.Context, email, phone *string, primaryID int64) (*domain.Contact, error) {
	now := timex.Now()
	return r.create(ctx, &model.Contact{
		Email:          email,
		PhoneNumber:    phone,
		LinkedID:       &primaryID,
		LinkPrecedence: string(domain.LinkSecondary),
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}

// DemoteToSecondary 主记录降级为从记录
func (r *contactRepository) DemoteToSecondary(ctx context.Context, id, primaryID int64) (*domain.Contact, error) {
	if id == primaryID {
		return nil, fmt.Errorf("contact %d cannot link to itself", id)
	}
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}

	res := db.Model(&model.Contact{}).Where("id = ?", id).Updates(map[string]any{
		"link_precedence": string(domain.LinkSecondary),
		"linked_id":       primaryID,
		"updated_at":      timex.Now(),
	})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrContactNotFound
	}
	return r.getByID(db, id)
}

// RelinkSecondaries 将 fromIDs 下的从记录改挂到 primaryID
func (r *contactRepository) RelinkSecondaries(ctx context.Context, fromIDs []int64, primaryID int64) ([]int64, error) {
	if len(fromIDs) == 0 {
		return nil, nil
	}
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}

	var ids []int64
	if err := db.Model(&model.Contact{}).
		Where("linked_id IN ? AND id <> ?", dedupIDs(fromIDs), primaryID).
		Order("id ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}
	err = db.Model(&model.Contact{}).Where("id IN ?", ids).Updates(map[string]any{
		"linked_id":  primaryID,
		"updated_at": timex.Now(),
	}).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Transaction 在单个数据库事务中执行 fn
func (r *contactRepository) Transaction(ctx context.Context, fn func(tx domain.ContactRepository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	db, err := r.contact(ctx)
	if err != nil {
		return err
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return fn(&contactRepository{dao: r.dao, tx: tx})
	})
}

func (r *contactRepository) getByID(db *gorm.DB, id int64) (*domain.Contact, error) {
	var m model.Contact
	err := db.Where("id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.toDomain(&m), nil
}

// GetByID 根据ID获取联系人
func (r *contactRepository) GetByID(ctx context.Context, id int64) (*domain.Contact, error) {
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}
	return r.getByID(db, id)
}

// ListPrimaryIDs 按 id 升序分页列出主记录
func (r *contactRepository) ListPrimaryIDs(ctx context.Context, afterID int64, limit int) ([]int64, error) {
	db, err := r.contact(ctx)
	if err != nil {
		return nil, err
	}
	var ids []int64
	err = db.Model(&model.Contact{}).
		Where("link_precedence = ? AND id > ?", string(domain.LinkPrimary), afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// Count 统计未删除联系人
func (r *contactRepository) Count(ctx context.Context) (int64, error) {
	db, err := r.contact(ctx)
	if err != nil {
		return 0, err
	}
	var n int64
	err = db.Model(&model.Contact{}).Count(&n).Error
	return n, err
}

// Insert 原样写入联系人，零时间用当前时间补齐
func (r *contactRepository) Insert(ctx context.Context, c *domain.Contact) (*domain.Contact, error) {
	m := r.toModel(c)
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = timex.Time(now)
	}
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = m.CreatedAt
	}
	return r.create(ctx, m)
}

// Reset 物理清空联系人表（含软删除记录）
func (r *contactRepository) Reset(ctx context.Context) error {
	db, err := r.contact(ctx)
	if err != nil {
		return err
	}
	return db.Unscoped().Where("1 = 1").Delete(&model.Contact{}).Error
}

// Ping 检查数据库连通性
func (r *contactRepository) Ping(ctx context.Context) error {
	return r.dao.Ping(ctx)
}
