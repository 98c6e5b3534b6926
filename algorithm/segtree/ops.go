package segtree

import "github.com/wyfcoding/rangemax/xerrors"

// CheckRange 校验区间格式。Update 与 Max 假定调用方已经完成该校验。
func CheckRange(from, to int) error {
	if from > to {
		return xerrors.ErrInvalidRange.WithDetail("from %d > to %d", from, to)
	}
	return nil
}

// Update 将 [from, to] 内每个元素替换为 min(当前值, value)。
// 超出 [From(), To()] 的部分视为空操作。
func (t *RangeMaxTree) Update(from, to int, value uint64) {
	t.update(t.root, from, to, value)
}

// update 返回节点更新后的最大值。
func (t *RangeMaxTree) update(i int32, from, to int, value uint64) uint64 {
	t.stats.Visits++
	t.applyPending(i)
	n := &t.nodes[i]

	// 情况1: 无交集。
	if n.to < from || n.from > to {
		return n.value
	}

	// 情况2: 节点区间完全被包含，更新自身并把标记挂到子节点上。
	if from <= n.from && n.to <= to {
		if value >= n.value && t.shortCircuit {
			t.stats.ShortCircuits++
			return n.value
		}
		n.value = min(n.value, value)
		t.stage(n.left, value)
		t.stage(n.right, value)
		return n.value
	}

	// 情况3: 部分重叠，必为内部节点。
	left := t.update(n.left, from, to, value)
	right := t.update(n.right, from, to, value)
	n.value = max(left, right)
	return n.value
}

// Max 返回 [from, to] 内元素的最大值；与树无交集时返回 0。
func (t *RangeMaxTree) Max(from, to int) uint64 {
	return t.query(t.root, from, to)
}

func (t *RangeMaxTree) query(i int32, from, to int) uint64 {
	t.stats.Visits++
	t.applyPending(i)
	n := &t.nodes[i]

	if n.to < from || n.from > to {
		return 0
	}
	if from <= n.from && n.to <= to {
		return n.value
	}
	return max(t.query(n.left, from, to), t.query(n.right, from, to))
}
