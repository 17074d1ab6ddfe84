package transaction

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/LerianStudio/lib-txflow/v2/txflow"
	libLog "github.com/LerianStudio/lib-txflow/v2/txflow/log"
)

// UnitOfWork is the closure executed under transactional control. The context
// it receives carries the transaction the frame decided on (or none).
type UnitOfWork func(ctx context.Context) error

// Outcome reports the final disposition of one Execute invocation.
type Outcome struct {
	// Decision is the propagation decision the frame ran under.
	Decision DecisionKind
	// Disposition is COMMITTED, ROLLED_BACK, or REJECTED when one applies,
	// otherwise EXITED (joined and non-transactional frames).
	Disposition FrameState
	// TransactionID identifies the frame's transaction, zero when none.
	TransactionID uuid.UUID
	// Suspended reports whether the frame detached the caller's transaction.
	Suspended bool
	// RollbackOnly reports whether the frame's transaction ended marked
	// rollback-only.
	RollbackOnly bool
}

// Manager executes units of work under declared propagation behavior,
// delegating frame-boundary operations to a transactional resource.
//
// The manager holds no locks and performs no I/O itself; each Execute call is
// a pure decision plus state-stack walk over the caller's context chain.
type Manager struct {
	resource      Resource
	logger        libLog.Logger
	tracer        trace.Tracer
	defaults      Definition
	meterProvider metric.MeterProvider
	metrics       managerMetrics
}

// ManagerOption mutates manager configuration at construction.
type ManagerOption func(*Manager)

// WithDefaults sets the baseline definition applied to every Execute before
// per-call options.
func WithDefaults(def Definition) ManagerOption {
	return func(manager *Manager) {
		manager.defaults = def
	}
}

// WithMeterProvider injects a custom meter provider for manager metrics.
// Passing nil keeps the default global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) ManagerOption {
	return func(manager *Manager) {
		manager.meterProvider = provider
	}
}

// NewManager creates a propagation-aware transaction manager.
func NewManager(resource Resource, logger libLog.Logger, tracer trace.Tracer, opts ...ManagerOption) (*Manager, error) {
	if resource == nil {
		return nil, ErrResourceRequired
	}

	if logger == nil {
		logger = libLog.NewNop()
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("txflow.noop")
	}

	manager := &Manager{
		resource: resource,
		logger:   logger,
		tracer:   tracer,
		defaults: DefaultDefinition(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}

	manager.defaults.normalize()

	metrics, err := newManagerMetrics(manager.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("init transaction metrics: %w", err)
	}

	manager.metrics = metrics

	return manager, nil
}

// Execute runs work under the declared propagation behavior and returns the
// unit of work's result on the committed path, or the failure that rolled the
// frame back or rejected it.
func (m *Manager) Execute(ctx context.Context, work UnitOfWork, opts ...Option) error {
	_, err := m.ExecuteResult(ctx, work, opts...)

	return err
}

// ExecuteResult runs work like Execute and additionally reports the frame's
// final disposition.
func (m *Manager) ExecuteResult(ctx context.Context, work UnitOfWork, opts ...Option) (Outcome, error) {
	if m == nil || m.resource == nil {
		return Outcome{}, ErrResourceRequired
	}

	if work == nil {
		return Outcome{}, ErrUnitOfWorkRequired
	}

	if ctx == nil {
		ctx = context.Background()
	}

	def := m.defaults
	for _, opt := range opts {
		if opt != nil {
			opt(&def)
		}
	}

	def.normalize()

	current, _ := FromContext(ctx)
	decision := Resolve(current, def.Propagation)
	frame := newFrame(decision)

	ctx, span := m.tracerFor(ctx).Start(ctx, "transaction.execute", trace.WithAttributes(
		attribute.String("transaction.propagation", def.Propagation.String()),
		attribute.String("transaction.decision", decision.Kind.String()),
	))
	defer span.End()

	if def.Name != "" {
		span.SetAttributes(attribute.String("transaction.name", def.Name))
	}

	start := time.Now().UTC()

	m.metrics.framesStarted.Add(ctx, 1, propagationAttributes(def))

	// The deferred record also covers the re-panic exit path.
	defer func() {
		m.recordFrame(ctx, def, frame, time.Since(start).Seconds())
	}()

	var (
		outcome Outcome
		err     error
	)

	switch decision.Kind {
	case DecisionReject:
		outcome, err = m.reject(ctx, frame, def, current != nil)
	case DecisionJoin:
		outcome, err = m.runJoined(ctx, frame, current, def, work)
	case DecisionCreateNew:
		outcome, err = m.runNew(ctx, frame, current, def, work)
	case DecisionCreateNested:
		outcome, err = m.runNested(ctx, frame, current, def, work)
	case DecisionRunWithoutTransaction:
		outcome, err = m.runWithout(ctx, frame, current, def, work)
	default:
		err = fmt.Errorf("%w: unmapped decision %s", ErrPropagationInvalid, decision.Kind)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	return outcome, err
}

// ---------------------------------------------------------------------------
// Frame execution paths
// ---------------------------------------------------------------------------

func (m *Manager) reject(ctx context.Context, frame *Frame, def Definition, present bool) (Outcome, error) {
	if err := m.advance(ctx, frame, StateRejected, StateExited); err != nil {
		return m.outcome(frame), err
	}

	m.loggerFor(ctx).Log(ctx, libLog.LevelWarn, "unit of work rejected by propagation policy",
		libLog.String("propagation", def.Propagation.String()),
		libLog.Bool("transaction_present", present),
	)

	return m.outcome(frame), &PropagationError{
		Propagation:        def.Propagation,
		TransactionPresent: present,
		Err:                frame.decision.Reason,
	}
}

func (m *Manager) runJoined(ctx context.Context, frame *Frame, current *Transaction, def Definition, work UnitOfWork) (Outcome, error) {
	frame.tx = current

	if err := m.advance(ctx, frame, StateJoined); err != nil {
		return m.finish(ctx, frame, err)
	}

	result := runWork(ctx, work)

	if err := m.advance(ctx, frame, StateExiting); err != nil {
		return m.finish(ctx, frame, err)
	}

	if result.panicked {
		// The owner of the shared transaction performs the actual rollback.
		current.MarkRollbackOnly()
		m.logPanic(ctx, result, "joined unit of work panicked; transaction marked rollback-only")
		_, _ = m.finish(ctx, frame, nil)
		panic(result.panicVal)
	}

	if result.err != nil && def.Classifier.RollbackOn(result.err) {
		current.MarkRollbackOnly()
		m.loggerFor(ctx).Log(ctx, libLog.LevelDebug, "joined unit of work failed; transaction marked rollback-only",
			libLog.String("transaction_id", current.ID.String()),
			libLog.Err(result.err),
		)
	}

	return m.finish(ctx, frame, result.err)
}

func (m *Manager) runNew(ctx context.Context, frame *Frame, current *Transaction, def Definition, work UnitOfWork) (Outcome, error) {
	if frame.decision.Suspend {
		// The caller's context still carries the suspended transaction, so
		// restoration on exit is the context chain unwinding itself.
		frame.suspended = current
		m.loggerFor(ctx).Log(ctx, libLog.LevelDebug, "suspending current transaction",
			libLog.String("transaction_id", current.ID.String()),
		)
	}

	handle, err := m.resource.Begin(ctx, TxOptions{
		Isolation: def.Isolation,
		ReadOnly:  def.ReadOnly,
		Timeout:   def.Timeout,
	})
	if err != nil {
		resErr := &ResourceError{Op: ResourceOpBegin, Err: err}
		libLog.SafeError(m.loggerFor(ctx), ctx, "failed to begin transaction", resErr)
		_ = m.advance(ctx, frame, StateCreated, StateExiting, StateRolledBack)

		return m.finish(ctx, frame, resErr)
	}

	tx := &Transaction{
		ID:        uuid.New(),
		Name:      def.Name,
		Isolation: def.Isolation,
		ReadOnly:  def.ReadOnly,
		Timeout:   def.Timeout,
		handle:    handle,
	}
	frame.tx = tx

	if err := m.advance(ctx, frame, StateCreated); err != nil {
		return m.finish(ctx, frame, err)
	}

	fin := frameFinalizer{
		commit:     func(fctx context.Context) error { return m.resource.Commit(fctx, handle) },
		commitOp:   ResourceOpCommit,
		rollback:   func(fctx context.Context) error { return m.resource.Rollback(fctx, handle) },
		rollbackOp: ResourceOpRollback,
	}

	return m.completeOwned(ctx, frame, tx, def, runWork(ContextWithTransaction(ctx, tx), work), fin)
}

func (m *Manager) runNested(ctx context.Context, frame *Frame, current *Transaction, def Definition, work UnitOfWork) (Outcome, error) {
	savepoint, err := m.resource.CreateSavepoint(ctx, current.handle)
	if err != nil {
		resErr := &ResourceError{Op: ResourceOpCreateSavepoint, Err: err}
		libLog.SafeError(m.loggerFor(ctx), ctx, "failed to create savepoint", resErr)
		_ = m.advance(ctx, frame, StateNested, StateExiting, StateRolledBack)

		return m.finish(ctx, frame, resErr)
	}

	tx := &Transaction{
		ID:        uuid.New(),
		Name:      def.Name,
		Isolation: current.Isolation,
		ReadOnly:  current.ReadOnly,
		Timeout:   def.Timeout,
		handle:    current.handle,
		savepoint: savepoint,
		parent:    current,
	}
	frame.tx = tx

	if err := m.advance(ctx, frame, StateNested); err != nil {
		return m.finish(ctx, frame, err)
	}

	fin := frameFinalizer{
		// Savepoint segments settle with the parent commit; nothing to commit
		// at the resource here.
		rollback: func(fctx context.Context) error {
			return m.resource.RollbackToSavepoint(fctx, current.handle, savepoint)
		},
		rollbackOp: ResourceOpRollbackToSavepoint,
	}

	return m.completeOwned(ctx, frame, tx, def, runWork(ContextWithTransaction(ctx, tx), work), fin)
}

func (m *Manager) runWithout(ctx context.Context, frame *Frame, current *Transaction, def Definition, work UnitOfWork) (Outcome, error) {
	workCtx := ctx
	entered := StateRunningWithoutTx

	if frame.decision.Suspend {
		frame.suspended = current
		workCtx = ContextWithoutTransaction(ctx)
		entered = StateSuspendedAndRunning

		m.loggerFor(ctx).Log(ctx, libLog.LevelDebug, "suspending current transaction for non-transactional work",
			libLog.String("transaction_id", current.ID.String()),
		)
	}

	if err := m.advance(ctx, frame, entered); err != nil {
		return m.finish(ctx, frame, err)
	}

	result := runWork(workCtx, work)

	if err := m.advance(ctx, frame, StateExiting); err != nil {
		return m.finish(ctx, frame, err)
	}

	if result.panicked {
		m.logPanic(ctx, result, "non-transactional unit of work panicked")
		_, _ = m.finish(ctx, frame, nil)
		panic(result.panicVal)
	}

	return m.finish(ctx, frame, result.err)
}

// ---------------------------------------------------------------------------
// Owned-transaction completion
// ---------------------------------------------------------------------------

type frameFinalizer struct {
	commit     func(ctx context.Context) error
	commitOp   ResourceOp
	rollback   func(ctx context.Context) error
	rollbackOp ResourceOp
}

func (m *Manager) completeOwned(ctx context.Context, frame *Frame, tx *Transaction, def Definition, result workResult, fin frameFinalizer) (Outcome, error) {
	if err := m.advance(ctx, frame, StateExiting); err != nil {
		return m.finish(ctx, frame, err)
	}

	if result.panicked {
		m.logPanic(ctx, result, "unit of work panicked; rolling back transaction")
		_ = m.rollbackFrame(ctx, frame, fin)
		_, _ = m.finish(ctx, frame, nil)
		panic(result.panicVal)
	}

	if result.err != nil {
		if def.Classifier.RollbackOn(result.err) {
			if rbErr := m.rollbackFrame(ctx, frame, fin); rbErr != nil {
				return m.finish(ctx, frame, errors.Join(result.err, rbErr))
			}

			return m.finish(ctx, frame, result.err)
		}

		// Declared failure: the transaction still completes normally and the
		// failure is returned to the caller.
		outcome, completeErr := m.commitFrame(ctx, frame, tx, fin)
		if completeErr != nil {
			return outcome, errors.Join(result.err, completeErr)
		}

		return outcome, result.err
	}

	return m.commitFrame(ctx, frame, tx, fin)
}

func (m *Manager) commitFrame(ctx context.Context, frame *Frame, tx *Transaction, fin frameFinalizer) (Outcome, error) {
	if tx.IsRollbackOnly() {
		m.loggerFor(ctx).Log(ctx, libLog.LevelWarn, "commit attempt on rollback-only transaction converted to rollback",
			libLog.String("transaction_id", tx.ID.String()),
		)

		if rbErr := m.rollbackFrame(ctx, frame, fin); rbErr != nil {
			return m.finish(ctx, frame, errors.Join(ErrRollbackOnlyCommit, rbErr))
		}

		return m.finish(ctx, frame, fmt.Errorf("%w: transaction %s", ErrRollbackOnlyCommit, tx.ID))
	}

	if fin.commit != nil {
		if err := fin.commit(ctx); err != nil {
			resErr := &ResourceError{Op: fin.commitOp, Err: err}
			libLog.SafeError(m.loggerFor(ctx), ctx, "failed to commit transaction", resErr)
			_ = m.advance(ctx, frame, StateRolledBack)

			return m.finish(ctx, frame, resErr)
		}
	}

	if err := m.advance(ctx, frame, StateCommitted); err != nil {
		return m.finish(ctx, frame, err)
	}

	return m.finish(ctx, frame, nil)
}

func (m *Manager) rollbackFrame(ctx context.Context, frame *Frame, fin frameFinalizer) error {
	var resErr error

	if fin.rollback != nil {
		if err := fin.rollback(ctx); err != nil {
			resErr = &ResourceError{Op: fin.rollbackOp, Err: err}
			libLog.SafeError(m.loggerFor(ctx), ctx, "failed to roll back transaction", resErr)
		}
	}

	_ = m.advance(ctx, frame, StateRolledBack)

	return resErr
}

// ---------------------------------------------------------------------------
// Frame bookkeeping
// ---------------------------------------------------------------------------

// loggerFor prefers a context-carried logger over the manager's own.
func (m *Manager) loggerFor(ctx context.Context) libLog.Logger {
	if values, ok := ctx.Value(txflow.CustomContextKey).(*txflow.CustomContextKeyValue); ok && values.Logger != nil {
		return values.Logger
	}

	return m.logger
}

// tracerFor prefers a context-carried tracer over the manager's own.
func (m *Manager) tracerFor(ctx context.Context) trace.Tracer {
	if values, ok := ctx.Value(txflow.CustomContextKey).(*txflow.CustomContextKeyValue); ok && values.Tracer != nil {
		return values.Tracer
	}

	return m.tracer
}

func (m *Manager) advance(ctx context.Context, frame *Frame, states ...FrameState) error {
	for _, next := range states {
		if err := frame.transition(next); err != nil {
			libLog.SafeError(m.loggerFor(ctx), ctx, "frame lifecycle violated", err)

			return err
		}
	}

	return nil
}

// finish restores any suspended transaction and moves the frame to EXITED.
// Restoration is attempted on every exit path; a frame that cannot restore
// its suspended transaction would leave sibling operations running under a
// wrong context, so that failure supersedes err.
func (m *Manager) finish(ctx context.Context, frame *Frame, err error) (Outcome, error) {
	if frame.suspended != nil && frame.state != StateExited {
		if restoreErr := frame.transition(StateRestoredParent); restoreErr != nil {
			fatal := fmt.Errorf("%w: %v", ErrSuspendedRestoreFailed, restoreErr)
			libLog.SafeError(m.loggerFor(ctx), ctx, "suspended transaction not restored", fatal)

			err = errors.Join(err, fatal)
		} else {
			m.loggerFor(ctx).Log(ctx, libLog.LevelDebug, "restored suspended transaction",
				libLog.String("transaction_id", frame.suspended.ID.String()),
			)
		}
	}

	if frame.state != StateExited {
		if exitErr := m.advance(ctx, frame, StateExited); exitErr != nil {
			err = errors.Join(err, exitErr)
		}
	}

	return m.outcome(frame), err
}

func (m *Manager) outcome(frame *Frame) Outcome {
	outcome := Outcome{
		Decision:    frame.Decision().Kind,
		Disposition: frame.Disposition(),
		Suspended:   frame.Suspended() != nil,
	}

	if tx := frame.Transaction(); tx != nil {
		outcome.TransactionID = tx.ID
		outcome.RollbackOnly = tx.IsRollbackOnly()
	}

	return outcome
}

func (m *Manager) recordFrame(ctx context.Context, def Definition, frame *Frame, latencySeconds float64) {
	m.metrics.executeLatency.Record(ctx, latencySeconds, propagationRecordAttributes(def))

	switch frame.Disposition() {
	case StateCommitted:
		m.metrics.framesCommitted.Add(ctx, 1, propagationAttributes(def))
	case StateRolledBack:
		m.metrics.framesRolledBack.Add(ctx, 1, propagationAttributes(def))
	case StateRejected:
		m.metrics.framesRejected.Add(ctx, 1, propagationAttributes(def))
	}
}

func (m *Manager) logPanic(ctx context.Context, result workResult, msg string) {
	m.loggerFor(ctx).Log(ctx, libLog.LevelError, msg,
		libLog.Any("panic", result.panicVal),
		libLog.String("stack", string(result.panicStack)),
	)
}

func propagationAttributes(def Definition) metric.AddOption {
	return metric.WithAttributes(attribute.String("propagation", def.Propagation.String()))
}

func propagationRecordAttributes(def Definition) metric.RecordOption {
	return metric.WithAttributes(attribute.String("propagation", def.Propagation.String()))
}

// ---------------------------------------------------------------------------
// Unit-of-work invocation
// ---------------------------------------------------------------------------

type workResult struct {
	err        error
	panicked   bool
	panicVal   any
	panicStack []byte
}

func runWork(ctx context.Context, work UnitOfWork) (result workResult) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result.panicked = true
			result.panicVal = recovered
			result.panicStack = debug.Stack()
		}
	}()

	result.err = work(ctx)

	return result
}
