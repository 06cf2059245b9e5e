package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/haierkeys/contact-identity-service/internal/domain"
)

var (
	// ErrInvalidInput email 与 phone 都缺失
	ErrInvalidInput = errors.New("email or phone number is required")
	// ErrInconsistentNetwork 身份网络中没有主记录
	ErrInconsistentNetwork = errors.New("identity network has no primary contact")
)

// StoreError wraps a failure returned by the contact store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("contact store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func storeErr(op string, err error) error {
	return &StoreError{Op: op, Err: err}
}

// MergePolicy decides what happens to the secondaries of a demoted primary.
type MergePolicy string

const (
	// MergeShallow 被降级主记录的从记录保持原指向
	MergeShallow MergePolicy = "shallow"
	// MergeDeep 网络中所有从记录都改挂到存活的主记录
	MergeDeep MergePolicy = "deep"
)

// ParseMergePolicy 解析合并策略，空字符串视为 shallow
func ParseMergePolicy(s string) (MergePolicy, error) {
	switch MergePolicy(s) {
	case "", MergeShallow:
		return MergeShallow, nil
	case MergeDeep:
		return MergeDeep, nil
	}
	return "", fmt.Errorf("unknown merge policy %q", s)
}

// Outcome 一次 identify 对存储做了什么
type Outcome string

const (
	OutcomeCreatedPrimary   Outcome = "created_primary"
	OutcomeCreatedSecondary Outcome = "created_secondary"
	OutcomeMerged           Outcome = "merged"
	OutcomeMatched          Outcome = "matched"
)

// IdentityResult 合并后的身份视图
type IdentityResult struct {
	PrimaryContactID    int64
	Emails              []string
	PhoneNumbers        []string
	SecondaryContactIDs []int64

	Outcome   Outcome
	CreatedID int64   // 新建记录 id，未新建为 0
	Demoted   []int64 // 被降级的主记录
	Relinked  []int64 // deep 策略下改挂的从记录
}

// ContactResolver reconciles (email, phone) observations into identity networks.
// It holds no state besides its store and never logs.
type ContactResolver struct {
	store  domain.ContactStore
	policy MergePolicy
}

// ResolverOption ContactResolver 构造选项
type ResolverOption func(*ContactResolver)

// WithMergePolicy 设置合并策略
func WithMergePolicy(p MergePolicy) ResolverOption {
	return func(r *ContactResolver) { r.policy = p }
}

// NewContactResolver 创建解析器。deep 策略要求 store 实现 domain.ContactRelinker
func NewContactResolver(store domain.ContactStore, opts ...ResolverOption) (*ContactResolver, error) {
	r := &ContactResolver{store: store, policy: MergeShallow}
	for _, opt := range opts {
		opt(r)
	}
	if r.policy == MergeDeep {
		if _, ok := store.(domain.ContactRelinker); !ok {
			return nil, fmt.Errorf("merge policy %q needs a store that can relink secondaries", r.policy)
		}
	}
	return r, nil
}

// Policy 当前合并策略
func (r *ContactResolver) Policy() MergePolicy {
	return r.policy
}

// Identify 处理一次观测：匹配、求闭包、按需新建或降级，最后组装结果
func (r *ContactResolver) Identify(ctx context.Context, email, phone *string) (*IdentityResult, error) {
	email, phone = present(email), present(phone)
	if email == nil && phone == nil {
		return nil, ErrInvalidInput
	}

	matches, err := r.store.FindMatchingContacts(ctx, email, phone)
	if err != nil {
		return nil, storeErr("FindMatchingContacts", err)
	}

	if len(matches) == 0 {
		c, err := r.store.CreatePrimary(ctx, email, phone)
		if err != nil {
			return nil, storeErr("CreatePrimary", err)
		}
		res, err := FormatResponse([]*domain.Contact{c})
		if err != nil {
			return nil, err
		}
		res.Outcome = OutcomeCreatedPrimary
		res.CreatedID = c.ID
		return res, nil
	}

	seeds := make([]int64, len(matches))
	for i, m := range matches {
		seeds[i] = m.ID
	}
	network, err := r.store.FindLinkedNetwork(ctx, seeds)
	if err != nil {
		return nil, storeErr("FindLinkedNetwork", err)
	}
	if len(network) == 0 {
		return nil, ErrInconsistentNetwork
	}

	outcome := OutcomeMatched
	var createdID int64

	if !hasExactMatch(network, email, phone) && hasNewInformation(network, email, phone) {
		oldest := oldestOf(network)
		c, err := r.store.CreateSecondary(ctx, email, phone, oldest.ID)
		if err != nil {
			return nil, storeErr("CreateSecondary", err)
		}
		network = append(network, c)
		outcome = OutcomeCreatedSecondary
		createdID = c.ID
	}

	demoted, err := r.mergePrimaries(ctx, network)
	if err != nil {
		return nil, err
	}
	if len(demoted) > 0 {
		outcome = OutcomeMerged
	}

	var relinked []int64
	if r.policy == MergeDeep {
		if relinked, err = r.flatten(ctx, network); err != nil {
			return nil, err
		}
	}

	res, err := FormatResponse(network)
	if err != nil {
		return nil, err
	}
	res.Outcome = outcome
	res.CreatedID = createdID
	res.Demoted = demoted
	res.Relinked = relinked
	return res, nil
}

// mergePrimaries demotes every primary except the oldest one, in place.
func (r *ContactResolver) mergePrimaries(ctx context.Context, network []*domain.Contact) ([]int64, error) {
	var primaries []*domain.Contact
	for _, c := range network {
		if c.IsPrimary() {
			primaries = append(primaries, c)
		}
	}
	if len(primaries) < 2 {
		return nil, nil
	}

	survivor := oldestOf(primaries)
	demoted := make([]int64, 0, len(primaries)-1)
	for i, c := range network {
		if !c.IsPrimary() || c.ID == survivor.ID {
			continue
		}
		updated, err := r.store.DemoteToSecondary(ctx, c.ID, survivor.ID)
		if err != nil {
			return nil, storeErr("DemoteToSecondary", err)
		}
		network[i] = demotedCopy(c, updated, survivor.ID)
		demoted = append(demoted, c.ID)
	}
	return demoted, nil
}

// flatten re-parents every secondary that does not point at the primary.
func (r *ContactResolver) flatten(ctx context.Context, network []*domain.Contact) ([]int64, error) {
	var primary *domain.Contact
	for _, c := range network {
		if c.IsPrimary() {
			primary = c
			break
		}
	}
	if primary == nil {
		return nil, nil
	}

	var heads []int64
	for _, c := range network {
		if c.IsPrimary() {
			continue
		}
		if c.LinkedID != nil && *c.LinkedID != primary.ID && !slices.Contains(heads, *c.LinkedID) {
			heads = append(heads, *c.LinkedID)
		}
	}
	if len(heads) == 0 {
		return nil, nil
	}

	relinker := r.store.(domain.ContactRelinker)
	ids, err := relinker.RelinkSecondaries(ctx, heads, primary.ID)
	if err != nil {
		return nil, storeErr("RelinkSecondaries", err)
	}
	for i, c := range network {
		if slices.Contains(ids, c.ID) {
			cp := *c
			cp.LinkedID = &primary.ID
			network[i] = &cp
		}
	}
	return ids, nil
}

func demotedCopy(orig, updated *domain.Contact, primaryID int64) *domain.Contact {
	var cp domain.Contact
	if updated != nil {
		cp = *updated
	} else {
		cp = *orig
	}
	cp.LinkPrecedence = domain.LinkSecondary
	cp.LinkedID = &primaryID
	return &cp
}

// FormatResponse 组装身份视图：主记录的 email/phone 在前，其余按网络顺序去重追加
func FormatResponse(network []*domain.Contact) (*IdentityResult, error) {
	var primary *domain.Contact
	for _, c := range network {
		if c.IsPrimary() && (primary == nil || c.OlderThan(primary)) {
			primary = c
		}
	}
	if primary == nil {
		return nil, ErrInconsistentNetwork
	}

	res := &IdentityResult{
		PrimaryContactID:    primary.ID,
		Emails:              []string{},
		PhoneNumbers:        []string{},
		SecondaryContactIDs: []int64{},
	}
	if primary.Email != nil {
		res.Emails = append(res.Emails, *primary.Email)
	}
	if primary.PhoneNumber != nil {
		res.PhoneNumbers = append(res.PhoneNumbers, *primary.PhoneNumber)
	}

	for _, c := range network {
		if c.ID == primary.ID {
			continue
		}
		if c.Email != nil && !slices.Contains(res.Emails, *c.Email) {
			res.Emails = append(res.Emails, *c.Email)
		}
		if c.PhoneNumber != nil && !slices.Contains(res.PhoneNumbers, *c.PhoneNumber) {
			res.PhoneNumbers = append(res.PhoneNumbers, *c.PhoneNumber)
		}
		if !slices.Contains(res.SecondaryContactIDs, c.ID) {
			res.SecondaryContactIDs = append(res.SecondaryContactIDs, c.ID)
		}
	}
	return res, nil
}

// present maps an empty string to absent.
func present(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func sameValue(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// hasExactMatch 网络中存在 email 与 phone 都相同的记录（缺失字段按缺失比较）
func hasExactMatch(network []*domain.Contact, email, phone *string) bool {
	for _, c := range network {
		if sameValue(c.Email, email) && sameValue(c.PhoneNumber, phone) {
			return true
		}
	}
	return false
}

// hasNewInformation 提供的 email 或 phone 在网络中从未出现
func hasNewInformation(network []*domain.Contact, email, phone *string) bool {
	newEmail := email != nil && !slices.ContainsFunc(network, func(c *domain.Contact) bool { return c.HasEmail(*email) })
	newPhone := phone != nil && !slices.ContainsFunc(network, func(c *domain.Contact) bool { return c.HasPhone(*phone) })
	return newEmail || newPhone
}

func oldestOf(cs []*domain.Contact) *domain.Contact {
	oldest := cs[0]
	for _, c := range cs[1:] {
		if c.OlderThan(oldest) {
			oldest = c
		}
	}
	return oldest
}
