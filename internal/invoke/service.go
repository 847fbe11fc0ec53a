package invoke

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/pkg/logger"
)

// SubmitRequest 描述一次异步调用提交。
type SubmitRequest struct {
	ID         string         `json:"id,omitempty"`
	Tool       string         `json:"tool"`
	Params     map[string]any `json:"params,omitempty"`
	MaxRetries int            `json:"max_retries,omitempty"`
}

// Service 负责调用的提交与查询。
type Service struct {
	store    Store
	producer Producer
	logger   *slog.Logger
}

// NewService 构造 Service。
func NewService(store Store, producer Producer) *Service {
	return &Service{
		store:    store,
		producer: producer,
		logger:   logger.Named("invoke"),
	}
}

// Submit 校验并持久化调用记录，然后投递到队列。
// 携带相同 ID 的重复提交是幂等的,返回已有记录。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Invocation, error) {
	tool := strings.TrimSpace(req.Tool)
	if tool == "" {
		return nil, xerrors.New(CodeInvocationValidation, "工具名称不能为空")
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = uuid.NewString()
	}

	record := NewInvocation(id, tool, req.Params)
	if req.MaxRetries > 0 {
		record.MaxRetries = req.MaxRetries
	}

	if err := s.store.Create(ctx, record); err != nil {
		if stdErrors.Is(err, ErrInvocationConflict) {
			existing, getErr := s.store.Get(ctx, id)
			if getErr != nil {
				return nil, getErr
			}
			return existing, nil
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, record.ID); err != nil {
		publishErr := xerrors.Wrap(CodeInvocationPublish, err, "投递调用失败")
		if markErr := s.store.MarkFailed(ctx, record.ID, CodeInvocationPublish, publishErr.Error(), nil, true); markErr != nil {
			s.logger.Error("标记投递失败状态出错",
				slog.Any("error", markErr),
				slog.String("invocation_id", record.ID),
			)
		}
		return nil, publishErr
	}

	s.logger.Info("调用已提交",
		slog.String("invocation_id", record.ID),
		slog.String("tool", record.Tool),
	)
	return s.store.Get(ctx, record.ID)
}

// Get 返回指定调用的当前状态。
func (s *Service) Get(ctx context.Context, id string) (*Invocation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, xerrors.New(CodeInvocationValidation, "调用 ID 不能为空")
	}
	return s.store.Get(ctx, id)
}

// List 返回最近的调用记录。
func (s *Service) List(ctx context.Context, limit int) ([]*Invocation, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.List(ctx, limit)
}
