// Package segtree 提供支持区间取最小 (clamp-down) 更新与区间最大值查询的懒标记线段树。
package segtree

import (
	"github.com/wyfcoding/rangemax/xerrors"
)

// none 表示子节点不存在。
const none int32 = -1

// node 线段树节点，覆盖原序列的闭区间 [from, to]。
// 子节点以数组下标引用，一个节点要么没有子节点，要么恰好两个。
type node struct {
	value   uint64 // 该区间当前的最大值（已计入作用到本节点的全部更新）。
	pending uint64 // 尚未下推给子节点的取最小标记，仅在 dirty 时有效。
	from    int
	to      int
	left    int32
	right   int32
	dirty   bool // 是否存在待下推的 pending。
}

// Interval 闭区间 [From, To]。
type Interval struct {
	From int
	To   int
}

// Stats 记录遍历过程中的计数，便于观测懒标记的效果。
type Stats struct {
	Visits        uint64 // 更新与查询访问的节点数。
	Pushes        uint64 // 懒标记下推次数。
	ShortCircuits uint64 // 因更新值不小于节点最大值而直接返回的次数。
}

// RangeMaxTree 区间取最小更新、区间最大值查询的线段树。
// 树在构建后区间结构固定，只有节点的 value 与 pending 会变化。
// 非并发安全：所有更新与查询必须由同一调用方顺序执行。
type RangeMaxTree struct {
	nodes        []node // 节点池，子节点通过下标引用。
	root         int32
	first        int // 首元素的下标。
	last         int // 末元素的下标。
	shortCircuit bool
	stats        Stats
}

// Option 配置 RangeMaxTree 的构建参数。
type Option func(*options)

type options struct {
	firstIndex   int
	shortCircuit bool
}

// WithFirstIndex 设置首元素的下标，默认为 1。
func WithFirstIndex(i int) Option {
	return func(o *options) {
		o.firstIndex = i
	}
}

// WithShortCircuit 控制更新值不小于节点最大值时是否跳过该子树，默认开启。
func WithShortCircuit(enabled bool) Option {
	return func(o *options) {
		o.shortCircuit = enabled
	}
}

// Build 由初始序列自底向上构建线段树。
// 每一层从左到右把相邻节点两两配对成父节点；若本层最后一个父节点只有左孩子，
// 则丢弃该父节点，把左孩子直接提升到新层，避免出现单孩子链。
// 重复直到只剩一个节点，即为根。
func Build(values []uint64, opts ...Option) (*RangeMaxTree, error) {
	if len(values) == 0 {
		return nil, xerrors.ErrEmptySequence
	}

	o := options{firstIndex: 1, shortCircuit: true}
	for _, opt := range opts {
		opt(&o)
	}

	t := &RangeMaxTree{
		nodes:        make([]node, 0, 2*len(values)-1),
		first:        o.firstIndex,
		last:         o.firstIndex + len(values) - 1,
		shortCircuit: o.shortCircuit,
	}

	level := make([]int32, len(values))
	for i, v := range values {
		idx := o.firstIndex + i
		level[i] = t.alloc(node{value: v, from: idx, to: idx, left: none, right: none})
	}

	next := make([]int32, 0, len(level))
	for len(level) > 1 {
		next = next[:0]
		for _, child := range level {
			if k := len(next); k > 0 && t.nodes[next[k-1]].right == none {
				t.insertRight(next[k-1], child)
				continue
			}
			parent := t.alloc(node{left: none, right: none})
			t.insertLeft(parent, child)
			next = append(next, parent)
		}

		// 本层末尾的父节点没有右孩子时，用它的左孩子替换它。
		last := len(next) - 1
		if wrapper := next[last]; t.nodes[wrapper].right == none {
			next[last] = t.nodes[wrapper].left
			t.release(wrapper)
		}

		level, next = next, level
	}

	t.root = level[0]
	return t, nil
}

// MustBuild 与 Build 相同，但在输入为空时 panic。
func MustBuild(values []uint64, opts ...Option) *RangeMaxTree {
	t, err := Build(values, opts...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *RangeMaxTree) alloc(n node) int32 {
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

// release 回收刚分配的节点。只允许回收节点池中最后一个节点。
func (t *RangeMaxTree) release(i int32) {
	if int(i) != len(t.nodes)-1 {
		panic(xerrors.ErrCorruptTree.WithDetail("release of non-tail node %d", i))
	}
	t.nodes = t.nodes[:i]
}

// insertLeft 挂载左孩子，父节点继承其左端点并聚合最大值。
func (t *RangeMaxTree) insertLeft(parent, child int32) {
	p, c := &t.nodes[parent], &t.nodes[child]
	p.value = max(p.value, c.value)
	p.from = c.from
	p.left = child
}

// insertRight 挂载右孩子，父节点继承其右端点并聚合最大值。
func (t *RangeMaxTree) insertRight(parent, child int32) {
	p, c := &t.nodes[parent], &t.nodes[child]
	p.value = max(p.value, c.value)
	p.to = c.to
	p.right = child
}

// From 返回首元素下标。
func (t *RangeMaxTree) From() int { return t.first }

// To 返回末元素下标。
func (t *RangeMaxTree) To() int { return t.last }

// Len 返回序列长度。
func (t *RangeMaxTree) Len() int { return t.last - t.first + 1 }

// Stats 返回遍历计数的快照。
func (t *RangeMaxTree) Stats() Stats { return t.stats }
