package opstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wyfcoding/rangemax/algorithm/segtree"
	"github.com/wyfcoding/rangemax/logging"
	"github.com/wyfcoding/rangemax/metrics"
	"github.com/wyfcoding/rangemax/xerrors"
)

const sample = `4 6
5 3 8 1
1 1 4
0 1 3 4
1 1 4
1 3 4
1 4 4
0 2 2 9
`

func quietLogger() *logging.Logger {
	return logging.NewFromConfig(logging.Config{Service: "rangemax", Module: "test", Level: "error", Output: io.Discard})
}

func TestParseSample(t *testing.T) {
	prog, err := Parse(strings.NewReader(sample), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Values) != 4 || prog.Values[2] != 8 {
		t.Errorf("Values = %v", prog.Values)
	}
	if len(prog.Ops) != 6 {
		t.Fatalf("parsed %d ops, want 6", len(prog.Ops))
	}
	want := Operation{Kind: OpUpdate, From: 1, To: 3, Value: 4}
	if prog.Ops[1] != want {
		t.Errorf("Ops[1] = %+v, want %+v", prog.Ops[1], want)
	}
	if prog.Ops[0].Kind != OpMax || prog.Ops[0].Value != 0 {
		t.Errorf("Ops[0] = %+v", prog.Ops[0])
	}
}

func TestParseIgnoresLineLayout(t *testing.T) {
	prog, err := Parse(strings.NewReader("2 1 7\n\n 2 1 1\t2"), Limits{})
	if err != nil {
		t.Fatal(err)
	}
	if len(prog.Ops) != 1 || prog.Ops[0] != (Operation{Kind: OpMax, From: 1, To: 2}) {
		t.Errorf("Ops = %+v", prog.Ops)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"empty input", "", xerrors.ErrMalformedInput},
		{"empty sequence", "0 0\n", xerrors.ErrEmptySequence},
		{"negative value", "2 0\n1 -3\n", xerrors.ErrMalformedInput},
		{"non numeric", "2 0\n1 x\n", xerrors.ErrMalformedInput},
		{"missing values", "3 0\n1 2\n", xerrors.ErrMalformedInput},
		{"unknown op", "1 1\n5\n2 1 1\n", xerrors.ErrUnknownOp},
		{"reversed range", "3 1\n1 2 3\n1 3 1\n", xerrors.ErrInvalidRange},
		{"too few ops", "1 2\n5\n1 1 1\n", xerrors.ErrOperationCount},
		{"truncated update", "1 1\n5\n0 1 1\n", xerrors.ErrOperationCount},
		{"trailing data", "1 1\n5\n1 1 1\n1 1 1\n", xerrors.ErrMalformedInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tc.input), Limits{})
			if !errors.Is(err, tc.want) {
				t.Errorf("Parse() error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestParseLimits(t *testing.T) {
	_, err := Parse(strings.NewReader("3 0\n1 2 3\n"), Limits{MaxElements: 2})
	if !errors.Is(err, xerrors.ErrMalformedInput) {
		t.Errorf("element limit: %v", err)
	}
	_, err = Parse(strings.NewReader("1 3\n1\n"), Limits{MaxOperations: 2})
	if !errors.Is(err, xerrors.ErrMalformedInput) {
		t.Errorf("operation limit: %v", err)
	}
}

func TestParseOversizedHeader(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  error
	}{
		{"huge n", "9223372036854775807 0\n1\n", xerrors.ErrMalformedInput},
		{"large n", "10000000000 0\n1 2 3\n", xerrors.ErrMalformedInput},
		{"huge m", "1 9223372036854775807\n5\n1 1 1\n", xerrors.ErrOperationCount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prog, err := Parse(strings.NewReader(tc.input), Limits{})
			if !errors.Is(err, tc.want) {
				t.Errorf("Parse() = %v, %v; want %v", prog, err, tc.want)
			}
		})
	}
}

func TestOperationValidate(t *testing.T) {
	if err := (Operation{Kind: OpMax, From: 2, To: 2}).Validate(); err != nil {
		t.Errorf("valid op: %v", err)
	}
	if err := (Operation{Kind: 7, From: 1, To: 2}).Validate(); !errors.Is(err, xerrors.ErrUnknownOp) {
		t.Errorf("bad kind: %v", err)
	}
	if err := (Operation{Kind: OpUpdate, From: 3, To: 2}).Validate(); !errors.Is(err, xerrors.ErrInvalidRange) {
		t.Errorf("bad range: %v", err)
	}
}

func TestExecuteSample(t *testing.T) {
	prog, err := Parse(strings.NewReader(sample), Limits{})
	if err != nil {
		t.Fatal(err)
	}

	m := metrics.NewMetrics("rangemax")
	var out bytes.Buffer
	sum, err := Execute(context.Background(), prog, TreeOptions{FirstIndex: 1, ShortCircuit: true}, &out,
		WithMetrics(m), WithLogger(quietLogger()))
	if err != nil {
		t.Fatal(err)
	}

	if got := out.String(); got != "8\n4\n4\n1\n" {
		t.Errorf("output = %q", got)
	}
	if sum.Updates != 2 || sum.Queries != 4 {
		t.Errorf("summary = %+v", sum)
	}
	if sum.Stats.Visits == 0 {
		t.Error("summary did not record visits")
	}
	if got := testutil.ToFloat64(m.OperationsTotal.WithLabelValues("max")); got != 4 {
		t.Errorf("max ops metric = %v", got)
	}
	if got := testutil.ToFloat64(m.TreeSize); got != 4 {
		t.Errorf("tree size metric = %v", got)
	}
}

func TestExecuteEmptyProgram(t *testing.T) {
	_, err := Execute(context.Background(), &Program{}, TreeOptions{FirstIndex: 1}, io.Discard, WithLogger(quietLogger()))
	if !errors.Is(err, xerrors.ErrEmptySequence) {
		t.Errorf("Execute(empty) = %v", err)
	}
}

func TestRunRejectsInvalidOperation(t *testing.T) {
	tree := segtree.MustBuild([]uint64{1, 2, 3})
	e := NewExecutor(tree, WithLogger(quietLogger()))

	var out bytes.Buffer
	sum, err := e.Run(context.Background(), []Operation{
		{Kind: OpMax, From: 1, To: 3},
		{Kind: OpMax, From: 3, To: 1},
	}, &out)
	if !errors.Is(err, xerrors.ErrInvalidRange) {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Queries != 1 || out.String() != "3\n" {
		t.Errorf("partial results = %q, summary %+v", out.String(), sum)
	}

	_, err = e.Run(context.Background(), []Operation{{Kind: 9, From: 1, To: 1}}, io.Discard)
	if !errors.Is(err, xerrors.ErrUnknownOp) {
		t.Errorf("Run() unknown op = %v", err)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	tree := segtree.MustBuild([]uint64{4, 4, 4})
	e := NewExecutor(tree, WithLogger(quietLogger()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	sum, err := e.Run(ctx, []Operation{{Kind: OpMax, From: 1, To: 3}}, &out)
	if !errors.Is(err, xerrors.ErrExecutionCanceled) || !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if sum.Queries != 0 || out.Len() != 0 {
		t.Errorf("canceled run produced output %q", out.String())
	}
	if xerrors.ExitCode(err) != xerrors.ExitCanceled {
		t.Errorf("ExitCode() = %d", xerrors.ExitCode(err))
	}
}

func TestRunMatchesTreeAcrossCalls(t *testing.T) {
	tree := segtree.MustBuild([]uint64{9, 1, 7, 3, 5}, segtree.WithFirstIndex(0))
	e := NewExecutor(tree, WithLogger(quietLogger()))

	var out bytes.Buffer
	if _, err := e.Run(context.Background(), []Operation{{Kind: OpUpdate, From: 0, To: 2, Value: 6}}, &out); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Run(context.Background(), []Operation{
		{Kind: OpMax, From: 0, To: 4},
		{Kind: OpMax, From: 3, To: 3},
		{Kind: OpMax, From: 7, To: 9},
	}, &out); err != nil {
		t.Fatal(err)
	}
	if got := out.String(); got != "6\n3\n0\n" {
		t.Errorf("output = %q", got)
	}
	if err := tree.Validate(); err != nil {
		t.Error(err)
	}
}
