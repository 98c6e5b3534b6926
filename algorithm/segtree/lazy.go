package segtree

// applyPending 把节点上的待下推标记作用到自身，并只向下合并一层。
// 每次读取或修改节点 value 之前都必须先调用它。
func (t *RangeMaxTree) applyPending(i int32) {
	n := &t.nodes[i]
	if !n.dirty {
		return
	}

	clamp := n.pending
	n.value = min(n.value, clamp)
	t.stage(n.left, clamp)
	t.stage(n.right, clamp)
	n.pending, n.dirty = 0, false
	t.stats.Pushes++
}

// stage 将取最小标记合并到子节点的 pending 上，不访问更深的节点。
func (t *RangeMaxTree) stage(i int32, clamp uint64) {
	if i == none {
		return
	}
	c := &t.nodes[i]
	if !c.dirty || clamp < c.pending {
		c.pending = clamp
		c.dirty = true
	}
}

// effective 返回节点在计入自身 pending 后的值，不修改节点。
func (t *RangeMaxTree) effective(i int32) uint64 {
	n := &t.nodes[i]
	if n.dirty {
		return min(n.value, n.pending)
	}
	return n.value
}
