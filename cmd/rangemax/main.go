// Command rangemax 从标准输入读取序列与操作流，对每个区间最大值查询输出一行结果。
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/wyfcoding/rangemax/config"
	"github.com/wyfcoding/rangemax/logging"
	"github.com/wyfcoding/rangemax/metrics"
	"github.com/wyfcoding/rangemax/opstream"
	"github.com/wyfcoding/rangemax/tracing"
	"github.com/wyfcoding/rangemax/xerrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("rangemax", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.String("config", "", "path to a TOML config file")
	fs.StringP("input", "i", "-", "input file, - for stdin")
	fs.StringP("output", "o", "-", "output file, - for stdout")

	// 以下参数与配置键一一对应，例如 log-level 对应 log.level
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "json", "log format: json or text")
	fs.String("log-file", "", "also write logs to this file (rotated)")
	fs.Bool("metrics-enabled", false, "expose Prometheus metrics while running")
	fs.String("metrics-port", "9090", "metrics listen port")
	fs.Int("tree-first-index", 1, "index of the first element")
	fs.Bool("tree-short-circuit", true, "skip subtrees whose maximum is already below the clamp")
	fs.Int("input-max-elements", 0, "reject inputs with more elements (0 = unlimited)")
	fs.Int("input-max-operations", 0, "reject inputs with more operations (0 = unlimited)")
	return fs
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}

	configPath, _ := fs.GetString("config")
	conf, err := config.Load(configPath, fs)
	if err != nil {
		fmt.Fprintln(stderr, "rangemax:", err)
		return 2
	}

	logger := logging.NewFromConfig(logging.Config{
		Service:    conf.Service,
		Module:     "cli",
		Level:      conf.Log.Level,
		Format:     conf.Log.Format,
		Output:     stderr,
		File:       conf.Log.File,
		MaxSize:    conf.Log.MaxSize,
		MaxBackups: conf.Log.MaxBackups,
		MaxAge:     conf.Log.MaxAge,
		Compress:   conf.Log.Compress,
	})
	defer logger.Close()
	logging.SetDefault(logger)
	config.PrintWithMask(conf)
	if configPath != "" {
		config.Watch()
	}

	shutdown, err := tracing.InitTracer(ctx, conf.Tracing)
	if err != nil {
		logger.ErrorContext(ctx, "tracing init failed", "error", err)
		return 1
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	var m *metrics.Metrics
	if conf.Metrics.Enabled {
		m = metrics.NewMetrics(conf.Service)
		m.RegisterBuildInfo(conf.Service, conf.Version)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if m != nil {
		g.Go(func() error {
			return m.Serve(gctx, conf.Metrics.Port, conf.Metrics.Path)
		})
	}

	g.Go(func() error {
		// 处理结束后停止指标服务
		defer cancel()
		return process(gctx, fs, conf, stdin, stdout, m, logger)
	})

	if err := g.Wait(); err != nil {
		logger.ErrorContext(ctx, "rangemax failed", "error", err)
		return xerrors.ExitCode(err)
	}
	return 0
}

func process(ctx context.Context, fs *pflag.FlagSet, conf *config.Config, stdin io.Reader, stdout io.Writer, m *metrics.Metrics, logger *logging.Logger) error {
	inPath, _ := fs.GetString("input")
	outPath, _ := fs.GetString("output")

	in := stdin
	if inPath != "-" {
		f, err := os.Open(inPath)
		if err != nil {
			return xerrors.Wrap(err, xerrors.ErrInvalidArg, "open input")
		}
		defer f.Close()
		in = f
	}

	out := stdout
	if outPath != "-" {
		f, err := os.Create(outPath)
		if err != nil {
			return xerrors.WrapInternal(err, "create output")
		}
		defer f.Close()
		out = f
	}

	logger = logger.With("input", inPath, "output", outPath)
	done := logger.LogDuration(ctx, "parse")
	prog, err := opstream.Parse(in, opstream.Limits{
		MaxElements:   conf.Input.MaxElements,
		MaxOperations: conf.Input.MaxOperations,
	})
	if err != nil {
		return err
	}
	done()

	_, err = opstream.Execute(ctx, prog, opstream.TreeOptions{
		FirstIndex:   conf.Tree.FirstIndex,
		ShortCircuit: conf.Tree.ShortCircuit,
	}, out, opstream.WithMetrics(m), opstream.WithLogger(logger))
	return err
}
