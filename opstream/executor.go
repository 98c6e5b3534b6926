package opstream

import (
	"bufio"
	"context"
	"io"
	"strconv"
	"time"

	"github.com/wyfcoding/rangemax/algorithm/segtree"
	"github.com/wyfcoding/rangemax/logging"
	"github.com/wyfcoding/rangemax/metrics"
	"github.com/wyfcoding/rangemax/tracing"
	"github.com/wyfcoding/rangemax/xerrors"
)

// cancelCheckInterval 每执行多少条操作检查一次 ctx。
const cancelCheckInterval = 1024

// Summary 一次执行的统计结果。
type Summary struct {
	Updates  int
	Queries  int
	Stats    segtree.Stats
	Duration time.Duration
}

// Executor 将操作顺序应用到一棵线段树上，并把每个查询结果写成一行。
// Executor 独占其线段树，不可并发使用。
type Executor struct {
	tree    *segtree.RangeMaxTree
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// ExecutorOption 配置 Executor。
type ExecutorOption func(*Executor)

// WithMetrics 设置指标采集器，为 nil 时不采集。
func WithMetrics(m *metrics.Metrics) ExecutorOption {
	return func(e *Executor) {
		e.metrics = m
	}
}

// WithLogger 设置日志记录器，默认使用 logging 的默认 Logger。
func WithLogger(l *logging.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = l
	}
}

// NewExecutor 创建执行器。
func NewExecutor(tree *segtree.RangeMaxTree, opts ...ExecutorOption) *Executor {
	e := &Executor{tree: tree}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logging.InitLogger(logging.Config{Service: "rangemax", Module: "opstream", Level: "info"})
	}
	e.metrics.ObserveTree(tree.Len(), tree.Depth())
	return e
}

// Run 依次执行 ops。每个查询向 w 写出一行十进制结果。
// ctx 被取消时停止并返回 ErrExecutionCanceled，已产生的结果会被写出。
func (e *Executor) Run(ctx context.Context, ops []Operation, w io.Writer) (Summary, error) {
	ctx, span := tracing.StartSpan(ctx, "rangemax.run")
	defer span.End()
	tracing.AddTag(ctx, "elements", e.tree.Len())
	tracing.AddTag(ctx, "operations", len(ops))

	start := time.Now()
	before := e.tree.Stats()
	out := bufio.NewWriter(w)
	buf := make([]byte, 0, 24)

	var sum Summary
	err := func() error {
		for i, op := range ops {
			if i%cancelCheckInterval == 0 && ctx.Err() != nil {
				return xerrors.ErrExecutionCanceled.WithCause(ctx.Err()).WithDetail("stopped after %d of %d operations", i, len(ops))
			}
			if err := segtree.CheckRange(op.From, op.To); err != nil {
				return xerrors.Wrap(err, xerrors.ErrInvalidArg, "operation "+strconv.Itoa(i+1))
			}

			opStart := time.Now()
			switch op.Kind {
			case OpUpdate:
				e.tree.Update(op.From, op.To, op.Value)
				sum.Updates++
			case OpMax:
				buf = strconv.AppendUint(buf[:0], e.tree.Max(op.From, op.To), 10)
				buf = append(buf, '\n')
				if _, err := out.Write(buf); err != nil {
					return xerrors.WrapInternal(err, "write result")
				}
				sum.Queries++
			default:
				return xerrors.ErrUnknownOp.WithDetail("operation %d: op code %d", i+1, op.Kind)
			}
			if e.metrics != nil {
				e.metrics.ObserveOperation(op.Kind.String(), time.Since(opStart))
			}
		}
		return nil
	}()

	if flushErr := out.Flush(); flushErr != nil && err == nil {
		err = xerrors.WrapInternal(flushErr, "flush results")
	}

	after := e.tree.Stats()
	sum.Stats = segtree.Stats{
		Visits:        after.Visits - before.Visits,
		Pushes:        after.Pushes - before.Pushes,
		ShortCircuits: after.ShortCircuits - before.ShortCircuits,
	}
	sum.Duration = time.Since(start)
	e.metrics.AddLazyPushes(sum.Stats.Pushes)

	tracing.AddTag(ctx, "updates", sum.Updates)
	tracing.AddTag(ctx, "queries", sum.Queries)
	if err != nil {
		tracing.SetError(ctx, err)
		e.logger.ErrorContext(ctx, "operation stream failed", "error", err, "updates", sum.Updates, "queries", sum.Queries)
		return sum, err
	}

	e.logger.InfoContext(ctx, "operation stream finished",
		"updates", sum.Updates,
		"queries", sum.Queries,
		"visits", sum.Stats.Visits,
		"pushes", sum.Stats.Pushes,
		"short_circuits", sum.Stats.ShortCircuits,
		"duration", sum.Duration,
	)
	return sum, nil
}

// TreeOptions 构建线段树的参数。
type TreeOptions struct {
	FirstIndex   int
	ShortCircuit bool
}

// Execute 由 Program 构建线段树并执行全部操作。
func Execute(ctx context.Context, prog *Program, treeOpts TreeOptions, w io.Writer, opts ...ExecutorOption) (Summary, error) {
	buildCtx, span := tracing.StartSpan(ctx, "rangemax.build")
	tree, err := segtree.Build(prog.Values,
		segtree.WithFirstIndex(treeOpts.FirstIndex),
		segtree.WithShortCircuit(treeOpts.ShortCircuit),
	)
	if err != nil {
		tracing.SetError(buildCtx, err)
		span.End()
		return Summary{}, err
	}
	tracing.AddTag(buildCtx, "depth", tree.Depth())
	span.End()

	return NewExecutor(tree, opts...).Run(ctx, prog.Ops, w)
}
