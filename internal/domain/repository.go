// Package domain 定义领域模型和接口
package domain

import "context"

// ContactStore is what the identity resolver needs from storage.
// ContactStore 身份解析器依赖的联系人存储能力
//
// All reads exclude soft-deleted records and return contacts ordered by
// CreatedAt ascending (ID breaks ties).
type ContactStore interface {
	// FindMatchingContacts 返回 email 相同或 phone 相同的联系人；nil 参数不参与匹配
	FindMatchingContacts(ctx context.Context, email, phone *string) ([]*Contact, error)

	// FindLinkedNetwork 返回从种子 id 沿 linkedId 双向可达的全部联系人（去重）
	FindLinkedNetwork(ctx context.Context, seedIDs []int64) ([]*Contact, error)

	// CreatePrimary 新建主记录
	CreatePrimary(ctx context.Context, email, phone *string) (*Contact, error)

	// CreateSecondary 新建挂在 primaryID 下的从记录
	CreateSecondary(ctx context.Context, email, phone *string, primaryID int64) (*Contact, error)

	// DemoteToSecondary 将主记录降级为从记录并指向 primaryID
	DemoteToSecondary(ctx context.Context, id, primaryID int64) (*Contact, error)
}

// ContactRelinker is implemented by stores that can re-parent secondaries in bulk.
// Required by the deep merge policy only.
type ContactRelinker interface {
	// RelinkSecondaries 将 linkedId 属于 fromIDs 的从记录改指向 primaryID，返回受影响的 id
	RelinkSecondaries(ctx context.Context, fromIDs []int64, primaryID int64) ([]int64, error)
}

// ContactRepository 联系人仓储接口
type ContactRepository interface {
	ContactStore
	ContactRelinker

	// Transaction runs fn with a store bound to one database transaction.
	// fn 返回错误时回滚
	Transaction(ctx context.Context, fn func(tx ContactRepository) error) error

	// GetByID 根据ID获取联系人（排除已删除）
	GetByID(ctx context.Context, id int64) (*Contact, error)

	// ListPrimaryIDs 分页列出主记录 id，afterID 之后按 id 升序
	ListPrimaryIDs(ctx context.Context, afterID int64, limit int) ([]int64, error)

	// Count 统计未删除的联系人数量
	Count(ctx context.Context) (int64, error)

	// Insert 原样写入一条联系人（用于导入种子数据）
	Insert(ctx context.Context, contact *Contact) (*Contact, error)

	// Reset 物理清空联系人表
	Reset(ctx context.Context) error

	// Ping 检查数据库连通性
	Ping(ctx context.Context) error
}
