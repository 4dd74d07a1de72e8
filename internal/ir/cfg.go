package ir

// Predecessors computes, for every block, the blocks that branch to it.
func Predecessors(f *Func) [][]BlockID {
	preds := make([][]BlockID, len(f.Blocks))
	for i := range f.Blocks {
		for _, s := range f.Blocks[i].Term.Successors() {
			preds[s] = append(preds[s], f.Blocks[i].ID)
		}
	}
	return preds
}

// ReversePostorder returns block ids in reverse postorder from the entry.
// Iterative DFS with an explicit stack; the CFG may contain cycles.
func ReversePostorder(f *Func) []BlockID {
	if len(f.Blocks) == 0 || f.Entry == NoBlockID {
		return nil
	}
	visited := make([]bool, len(f.Blocks))
	post := make([]BlockID, 0, len(f.Blocks))

	type frame struct {
		block BlockID
		next  int
	}
	stack := []frame{{block: f.Entry}}
	visited[f.Entry] = true
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := f.Blocks[top.block].Term.Successors()
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			if !visited[s] {
				visited[s] = true
				stack = append(stack, frame{block: s})
			}
			continue
		}
		post = append(post, top.block)
		stack = stack[:len(stack)-1]
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
