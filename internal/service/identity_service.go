// Package service 实现业务逻辑层
package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/haierkeys/contact-identity-service/internal/domain"
	"github.com/haierkeys/contact-identity-service/internal/dto"
	"github.com/haierkeys/contact-identity-service/internal/middleware"
	"github.com/haierkeys/contact-identity-service/pkg/code"
	"github.com/haierkeys/contact-identity-service/pkg/logger"
	"github.com/haierkeys/contact-identity-service/pkg/writequeue"

	"github.com/jinzhu/copier"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// IdentityWriteLane is the write queue lane shared by every identify call.
// 所有 identify 写操作共用一条通道，重叠的 email/phone 集合因此被串行化
const IdentityWriteLane = "identity"

// WriteExecutor 串行执行写操作，返回值随操作一起带回
type WriteExecutor = writequeue.Submitter

// IdentityService 定义身份识别业务服务接口
type IdentityService interface {
	// Identify 识别并合并联系人身份
	Identify(ctx context.Context, params *dto.IdentifyRequest) (*dto.IdentityDTO, error)

	// GetIdentity 查询联系人所在网络的身份
	GetIdentity(ctx context.Context, contactID int64) (*dto.IdentityDTO, error)

	// Ping 检查存储连通性
	Ping(ctx context.Context) error
}

// lookupTimeout bounds a shared GetIdentity lookup once it is detached from the caller
const lookupTimeout = 10 * time.Second

// GetIdentity 只读查询，相同 id 的并发请求合并为一次
// 合并后的查询不受首个调用方取消的影响，每个调用方只按自己的 ctx 放弃等待
func (s *identityService) GetIdentity(ctx context.Context, contactID int64) (*dto.IdentityDTO, error) {
	ch := s.group.DoChan(strconv.FormatInt(contactID, 10), func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return s.lookupIdentity(lctx, contactID)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*dto.IdentityDTO), nil
	case <-ctx.Done():
		return nil, code.ErrorDBQuery.WithDetails(ctx.Err().Error())
	}
}

func (s *identityService) lookupIdentity(ctx context.Context, contactID int64) (*dto.IdentityDTO, error) {
	if _, err := s.repo.GetByID(ctx, contactID); err != nil {
		if errors.Is(err, domain.ErrContactNotFound) {
			return nil, code.ErrorContactNotFound
		}
		return nil, code.ErrorDBQuery.WithDetails(err.Error())
	}
	network, err := s.repo.FindLinkedNetwork(ctx, []int64{contactID})
	if err != nil {
		return nil, code.ErrorDBQuery.WithDetails(err.Error())
	}
	res, err := FormatResponse(network)
	if err != nil {
		s.logger.Error("identity network inconsistent",
			zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
			zap.Int64(logger.FieldContactID, contactID))
		return nil, code.ErrorContactNetworkInconsistent
	}
	return s.toDTO(res)
}

// identityService 实现 IdentityService 接口
type identityService struct {
	repo    domain.ContactRepository
	writer  WriteExecutor
	logger  *zap.Logger
	config  *ServiceConfig
	metrics *IdentityMetrics
	group   singleflight.Group
}

// NewIdentityService 创建 IdentityService 实例
func NewIdentityService(repo domain.ContactRepository, writer WriteExecutor, logger *zap.Logger, config *ServiceConfig, metrics *IdentityMetrics) (IdentityService, error) {
	if config == nil {
		config = &ServiceConfig{}
	}
	if _, err := ParseMergePolicy(string(config.Identity.MergePolicy)); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = NewIdentityMetrics(nil)
	}
	return &identityService{
		repo:    repo,
		writer:  writer,
		logger:  logger,
		config:  config,
		metrics: metrics,
	}, nil
}

func (s *identityService) policy() MergePolicy {
	p, _ := ParseMergePolicy(string(s.config.Identity.MergePolicy))
	return p
}

// toDTO 将解析结果转换为 DTO
func (s *identityService) toDTO(res *IdentityResult) (*dto.IdentityDTO, error) {
	out := &dto.IdentityDTO{}
	if err := copier.Copy(out, res); err != nil {
		return nil, err
	}
	return out, nil
}

// Identify 识别身份：写队列串行化 + 数据库事务
func (s *identityService) Identify(ctx context.Context, params *dto.IdentifyRequest) (*dto.IdentityDTO, error) {
	email, phone := params.Normalize()
	if email == nil && phone == nil {
		s.metrics.Requests.WithLabelValues("invalid").Inc()
		return nil, code.ErrorIdentifyInputEmpty
	}

	start := time.Now()
	res, err := writequeue.Do(ctx, s.writer, IdentityWriteLane, func() (*IdentityResult, error) {
		var out *IdentityResult
		err := s.repo.Transaction(ctx, func(tx domain.ContactRepository) error {
			resolver, err := NewContactResolver(tx, WithMergePolicy(s.policy()))
			if err != nil {
				return err
			}
			out, err = resolver.Identify(ctx, email, phone)
			return err
		})
		return out, err
	})
	s.metrics.Latency.Observe(time.Since(start).Seconds())

	if err != nil {
		s.metrics.Requests.WithLabelValues("error").Inc()
		return nil, s.mapError(ctx, err)
	}

	s.metrics.Requests.WithLabelValues(string(res.Outcome)).Inc()
	s.metrics.Demoted.Add(float64(len(res.Demoted)))
	s.logger.Debug("identify resolved",
		zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
		zap.String(logger.FieldOutcome, string(res.Outcome)),
		zap.Int64(logger.FieldPrimaryID, res.PrimaryContactID),
		zap.Int64s("demoted", res.Demoted),
		zap.Duration(logger.FieldDuration, time.Since(start)))

	out, err := s.toDTO(res)
	if err != nil {
		return nil, code.ErrorServerInternal.WithDetails(err.Error())
	}
	return out, nil
}

// mapError 将解析器与写队列错误映射为业务错误码
func (s *identityService) mapError(ctx context.Context, err error) error {
	var se *StoreError
	switch {
	case errors.Is(err, ErrInvalidInput):
		return code.ErrorIdentifyInputEmpty
	case errors.Is(err, ErrInconsistentNetwork):
		s.logger.Error("identity network inconsistent",
			zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
			zap.Error(err))
		return code.ErrorContactNetworkInconsistent
	case errors.Is(err, writequeue.ErrWriteQueueFull),
		errors.Is(err, writequeue.ErrWriteTimeout),
		errors.Is(err, writequeue.ErrWriteQueueClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		s.logger.Warn("identify write not executed",
			zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
			zap.Error(err))
		return code.ErrorWriteQueueBusy
	case errors.As(err, &se):
		s.logger.Error("contact store failure",
			zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
			zap.String(logger.FieldMethod, se.Op),
			zap.Error(se.Err))
		return code.ErrorContactStore.WithDetails(se.Error())
	}
	s.logger.Error("identify failed",
		zap.String(logger.FieldTraceID, middleware.GetTraceID(ctx)),
		zap.Error(err))
	return code.ErrorServerInternal.WithDetails(err.Error())
}

// Ping 检查存储连通性
func (s *identityService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
