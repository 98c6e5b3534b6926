package xerrors

var (
	// ErrEmptySequence 输入序列为空，无法构建线段树。
	ErrEmptySequence = New(ErrInvalidArg, 400001, "empty sequence", "a tree needs at least one element", nil)
	// ErrInvalidRange 区间左端点大于右端点。
	ErrInvalidRange = New(ErrInvalidArg, 400002, "invalid range", "from must not exceed to", nil)
	// ErrMalformedInput 输入流格式错误。
	ErrMalformedInput = New(ErrInvalidArg, 400003, "malformed input", "expected non-negative decimal integers", nil)
	// ErrUnknownOp 未知的操作类型。
	ErrUnknownOp = New(ErrInvalidArg, 400004, "unknown operation", "supported operations: 0 (update), 1 (max)", nil)
	// ErrOperationCount 操作数量与声明不符。
	ErrOperationCount = New(ErrInvalidArg, 400005, "operation count mismatch", "input ended before m operations were read", nil)
	// ErrCorruptTree 树结构不变量被破坏，属于构建缺陷。
	ErrCorruptTree = New(ErrInternal, 500001, "corrupt tree", "tree invariant violated", nil)
	// ErrExecutionCanceled 执行被取消。
	ErrExecutionCanceled = New(ErrCanceled, 499001, "execution canceled", "context canceled before all operations ran", nil)
)
