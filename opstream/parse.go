// Package opstream 读取并执行区间操作流。
//
// 输入格式（空白分隔，换行不敏感）:
//
//	n m
//	a1 a2 ... an
//	0 from to value   // 区间取最小
//	1 from to         // 区间最大值查询
//
// 共 m 行操作，每个查询输出一行结果。
package opstream

import (
	"bufio"
	"errors"
	"io"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/wyfcoding/rangemax/xerrors"
)

// OpKind 操作类型，取值与输入格式中的操作码一致。
type OpKind uint8

const (
	// OpUpdate 区间取最小更新。
	OpUpdate OpKind = 0
	// OpMax 区间最大值查询。
	OpMax OpKind = 1
)

func (k OpKind) String() string {
	switch k {
	case OpUpdate:
		return "update"
	case OpMax:
		return "max"
	default:
		return "unknown"
	}
}

// Operation 一条操作。Value 仅对 OpUpdate 有意义。
type Operation struct {
	Kind  OpKind `validate:"oneof=0 1"`
	From  int    `validate:"ltefield=To"`
	To    int
	Value uint64
}

// Program 解析后的完整输入。
type Program struct {
	Values []uint64
	Ops    []Operation
}

// Limits 输入规模上限，0 表示不限制。
type Limits struct {
	MaxElements   int
	MaxOperations int
}

var validate = validator.New()

// scanner 按空白切分的整数读取器，记录已读取的 token 序号用于报错。
type scanner struct {
	s   *bufio.Scanner
	pos int
}

func newScanner(r io.Reader) *scanner {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	s.Split(bufio.ScanWords)
	return &scanner{s: s}
}

// next 读取下一个非负十进制整数。what 描述该 token 的含义。
func (sc *scanner) next(what string) (uint64, error) {
	if !sc.s.Scan() {
		if err := sc.s.Err(); err != nil {
			return 0, xerrors.ErrMalformedInput.WithCause(err).WithDetail("read %s", what)
		}
		return 0, io.ErrUnexpectedEOF
	}
	sc.pos++
	tok := sc.s.Text()
	v, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return 0, xerrors.ErrMalformedInput.
			WithDetail("token %d (%s): %q is not a non-negative integer", sc.pos, what, tok).
			WithContext("token", sc.pos)
	}
	return v, nil
}

func (sc *scanner) nextInt(what string) (int, error) {
	v, err := sc.next(what)
	if err != nil {
		return 0, err
	}
	if v > uint64(maxInt) {
		return 0, xerrors.ErrMalformedInput.WithDetail("token %d (%s): %d overflows int", sc.pos, what, v)
	}
	return int(v), nil
}

const maxInt = int(^uint(0) >> 1)

// maxPrealloc 按头部声明预分配切片的上限。
const maxPrealloc = 1 << 20

// Parse 读取完整的操作流。n 为 0 时返回 ErrEmptySequence；
// 操作不足 m 条时返回 ErrOperationCount；m 条操作之后仍有数据时返回 ErrMalformedInput。
func Parse(r io.Reader, limits Limits) (*Program, error) {
	sc := newScanner(r)

	n, err := sc.nextInt("n")
	if err != nil {
		return nil, truncated(err, "header")
	}
	m, err := sc.nextInt("m")
	if err != nil {
		return nil, truncated(err, "header")
	}
	if n == 0 {
		return nil, xerrors.ErrEmptySequence
	}
	if limits.MaxElements > 0 && n > limits.MaxElements {
		return nil, xerrors.ErrMalformedInput.WithDetail("n = %d exceeds limit %d", n, limits.MaxElements)
	}
	if limits.MaxOperations > 0 && m > limits.MaxOperations {
		return nil, xerrors.ErrMalformedInput.WithDetail("m = %d exceeds limit %d", m, limits.MaxOperations)
	}

	// 头部声明的数量不可信，预分配容量有上限，实际长度以读到的数据为准
	prog := &Program{
		Values: make([]uint64, 0, min(n, maxPrealloc)),
		Ops:    make([]Operation, 0, min(m, maxPrealloc)),
	}
	for range n {
		v, err := sc.next("value")
		if err != nil {
			return nil, truncated(err, "values")
		}
		prog.Values = append(prog.Values, v)
	}

	for i := range m {
		op, err := sc.operation()
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, xerrors.ErrOperationCount.WithDetail("read %d of %d operations", i, m)
		}
		if err != nil {
			return nil, err
		}
		prog.Ops = append(prog.Ops, op)
	}

	if sc.s.Scan() {
		return nil, xerrors.ErrMalformedInput.WithDetail("unexpected trailing token %q after %d operations", sc.s.Text(), m)
	}
	if err := sc.s.Err(); err != nil {
		return nil, xerrors.ErrMalformedInput.WithCause(err)
	}
	return prog, nil
}

func (sc *scanner) operation() (Operation, error) {
	code, err := sc.next("op")
	if err != nil {
		return Operation{}, err
	}
	if code > uint64(OpMax) {
		return Operation{}, xerrors.ErrUnknownOp.WithDetail("token %d: op code %d", sc.pos, code)
	}

	op := Operation{Kind: OpKind(code)}
	if op.From, err = sc.nextInt("from"); err != nil {
		return Operation{}, err
	}
	if op.To, err = sc.nextInt("to"); err != nil {
		return Operation{}, err
	}
	if op.Kind == OpUpdate {
		if op.Value, err = sc.next("value"); err != nil {
			return Operation{}, err
		}
	}
	return op, op.Validate()
}

// Validate 校验操作码与区间格式。
func (op Operation) Validate() error {
	err := validate.Struct(op)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 && verrs[0].Field() == "Kind" {
		return xerrors.ErrUnknownOp.WithDetail("op code %d", op.Kind)
	}
	return xerrors.ErrInvalidRange.WithDetail("from %d > to %d", op.From, op.To)
}

// truncated 把提前结束的输入转换为格式错误，其他错误原样返回。
func truncated(err error, section string) error {
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return xerrors.ErrMalformedInput.WithDetail("input ended inside %s", section)
	}
	return err
}
