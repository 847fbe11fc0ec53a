package invoke

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"time"

	xerrors "OpenMCP-Forge/internal/errors"
	"OpenMCP-Forge/internal/observability/alerting"
	"OpenMCP-Forge/internal/observability/metrics"
	"OpenMCP-Forge/internal/tools"
	"OpenMCP-Forge/pkg/logger"
)

// Invoker 定义了处理器所需的工具派发能力。
type Invoker interface {
	Invoke(ctx context.Context, name string, params map[string]any) *tools.Payload
}

// Processor 负责从队列消费调用并交给工具注册表执行。
type Processor struct {
	invoker     Invoker
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithProcessorLogger 指定日志输出。
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = l
	}
}

// WithWorkerCount 设置消费协程数量。
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(invoker Invoker, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		invoker:     invoker,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.logger == nil {
		p.logger = logger.Named("processor")
	}
	return p
}

// Start 启动调用处理循环。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置调用消费者")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.handle)
}

func (p *Processor) handle(ctx context.Context, invocationID string) error {
	if p.store == nil || p.invoker == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	record, err := p.store.Claim(ctx, invocationID)
	if err != nil {
		if stdErrors.Is(err, ErrInvocationNotFound) || stdErrors.Is(err, ErrInvocationCompleted) ||
			stdErrors.Is(err, ErrInvocationExhausted) || stdErrors.Is(err, ErrInvocationConflict) {
			p.logger.Debug("跳过调用",
				slog.String("invocation_id", invocationID),
				slog.String("reason", err.Error()),
			)
			return nil
		}
		p.logger.Error("领取调用失败", slog.Any("error", err), slog.String("invocation_id", invocationID))
		return err
	}

	start := time.Now()
	payload := p.invoker.Invoke(ctx, record.Tool, record.Params)
	metrics.ObserveToolInvocation(record.Tool, payload != nil && payload.Success, time.Since(start))

	// 工具层保证失败同样以 Payload 表达，这里兜底防御空结果。
	if payload == nil {
		payload = &tools.Payload{
			Tool:      record.Tool,
			Success:   false,
			Params:    record.Params,
			Stderr:    "工具未返回结果",
			ErrorCode: string(xerrors.CodeUnknown),
		}
	}

	if payload.Success {
		if err := p.store.MarkSucceeded(ctx, record.ID, payload); err != nil {
			p.logger.Error("标记调用成功状态失败", slog.Any("error", err), slog.String("invocation_id", record.ID))
			return err
		}
		logger.Audit().Info("调用执行成功",
			slog.String("invocation_id", record.ID),
			slog.String("tool", record.Tool),
		)
		return nil
	}

	return p.handleFailure(ctx, record, payload)
}

func (p *Processor) handleFailure(ctx context.Context, record *Invocation, payload *tools.Payload) error {
	code := xerrors.Code(payload.ErrorCode)
	if code == "" {
		code = CodeInvocationProcessing
	}
	retryable := xerrors.AttributesOf(code).Retryable
	terminal := record.Attempts >= record.MaxRetries || !retryable

	if err := p.store.MarkFailed(ctx, record.ID, code, payload.Stderr, payload, terminal); err != nil {
		p.logger.Error("标记调用失败状态出错", slog.Any("error", err), slog.String("invocation_id", record.ID))
		return err
	}

	if !terminal {
		if err := p.producer.Publish(ctx, record.ID); err != nil {
			return xerrors.Wrap(CodeInvocationPublish, err, "重投调用失败")
		}
		return nil
	}

	logger.Audit().Warn("调用执行失败",
		slog.String("invocation_id", record.ID),
		slog.String("tool", record.Tool),
		slog.String("error_code", string(code)),
		slog.Bool("terminal", terminal),
	)
	p.emitAlert(ctx, record, code, payload.Stderr)
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, record *Invocation, code xerrors.Code, message string) {
	if p.alerter == nil || !xerrors.AttributesOf(code).Alert {
		return
	}
	event := alerting.Event{
		Code:         code,
		Message:      message,
		Severity:     xerrors.AttributesOf(code).Severity,
		Tool:         record.Tool,
		InvocationID: record.ID,
		Attempts:     record.Attempts,
		MaxRetries:   record.MaxRetries,
		OccurredAt:   time.Now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("派发告警失败", slog.Any("error", err), slog.String("invocation_id", record.ID))
	}
}
