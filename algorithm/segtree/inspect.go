package segtree

import "github.com/wyfcoding/rangemax/xerrors"

// Values 下推全部懒标记并按下标顺序返回每个元素的当前值。
// 复杂度 O(N)，用于调试与校验。
func (t *RangeMaxTree) Values() []uint64 {
	out := make([]uint64, 0, t.Len())
	var walk func(i int32)
	walk = func(i int32) {
		t.applyPending(i)
		n := &t.nodes[i]
		if n.left == none {
			out = append(out, n.value)
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
	return out
}

// Leaves 按从左到右的顺序返回叶子节点的区间。
func (t *RangeMaxTree) Leaves() []Interval {
	out := make([]Interval, 0, t.Len())
	var walk func(i int32)
	walk = func(i int32) {
		n := &t.nodes[i]
		if n.left == none {
			out = append(out, Interval{From: n.from, To: n.to})
			return
		}
		walk(n.left)
		walk(n.right)
	}
	walk(t.root)
	return out
}

// Root 返回根节点覆盖的区间。
func (t *RangeMaxTree) Root() Interval {
	r := &t.nodes[t.root]
	return Interval{From: r.from, To: r.to}
}

// Depth 返回树高，单个叶子的树高为 1。
func (t *RangeMaxTree) Depth() int {
	var depth func(i int32) int
	depth = func(i int32) int {
		if i == none {
			return 0
		}
		n := &t.nodes[i]
		return 1 + max(depth(n.left), depth(n.right))
	}
	return depth(t.root)
}

// NodeCount 返回树中节点总数，对 N 个元素恒为 2N-1。
func (t *RangeMaxTree) NodeCount() int { return len(t.nodes) }

// Validate 检查结构与聚合不变量，不修改任何节点：
// 每个节点有零个或两个孩子，孩子区间相邻且恰好覆盖父区间，
// 内部节点的 value 等于两个孩子计入 pending 后的最大值。
func (t *RangeMaxTree) Validate() error {
	if len(t.nodes) != 2*t.Len()-1 {
		return xerrors.ErrCorruptTree.WithDetail("node count %d for %d elements", len(t.nodes), t.Len())
	}
	root := &t.nodes[t.root]
	if root.from != t.first || root.to != t.last {
		return xerrors.ErrCorruptTree.WithDetail("root covers [%d, %d], want [%d, %d]", root.from, root.to, t.first, t.last)
	}

	var check func(i int32) error
	check = func(i int32) error {
		n := &t.nodes[i]
		switch {
		case n.left == none && n.right == none:
			if n.from != n.to {
				return xerrors.ErrCorruptTree.WithDetail("leaf %d covers [%d, %d]", i, n.from, n.to)
			}
			return nil
		case n.left == none || n.right == none:
			return xerrors.ErrCorruptTree.WithDetail("node %d has a single child", i)
		}

		l, r := &t.nodes[n.left], &t.nodes[n.right]
		if l.from != n.from || r.to != n.to || l.to+1 != r.from {
			return xerrors.ErrCorruptTree.WithDetail("node %d [%d, %d] splits into [%d, %d] and [%d, %d]",
				i, n.from, n.to, l.from, l.to, r.from, r.to)
		}
		if want := max(t.effective(n.left), t.effective(n.right)); n.value != want {
			return xerrors.ErrCorruptTree.WithDetail("node %d holds %d, children aggregate to %d", i, n.value, want)
		}
		if err := check(n.left); err != nil {
			return err
		}
		return check(n.right)
	}
	return check(t.root)
}
