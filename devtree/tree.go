package devtree

import "devicehub/devpath"

// Lookup descends root following path's segments and returns the node at
// that path, or nil if any segment along the way is missing. Lookup("",
// root) returns root itself.
func Lookup(path string, root *Node) *Node {
	if root == nil {
		return nil
	}
	head, tail := devpath.Split(path)
	if head == "" {
		return root
	}
	child, ok := root.Children[head]
	if !ok {
		return nil
	}
	if tail == "" {
		return child
	}
	return Lookup(tail, child)
}

// Insert places node at path, creating anonymous intermediate nodes (no
// subsystem, no device) for any ancestor segment that doesn't yet exist. If
// the final segment already has an entry, its subtree is replaced wholesale.
// Insert returns the new root; it never mutates root or any of its
// descendants in place.
func Insert(path string, node *Node, root *Node) *Node {
	if root == nil {
		root = NewRoot()
	}
	head, tail := devpath.Split(path)
	if head == "" {
		return node
	}

	var newChild *Node
	if tail == "" {
		newChild = node
	} else {
		child, ok := root.Children[head]
		if !ok {
			child = New("", nil)
		}
		newChild = Insert(tail, node, child)
	}

	newRoot := clone(root)
	newRoot.Children[head] = newChild
	return newRoot
}

// Remove deletes the entry at path from root, returning the new root. If
// path has no entry, root is returned unchanged (same pointer).
func Remove(path string, root *Node) *Node {
	if root == nil {
		return nil
	}
	head, tail := devpath.Split(path)
	if head == "" {
		return root
	}
	child, ok := root.Children[head]
	if !ok {
		return root
	}

	if tail == "" {
		newRoot := clone(root)
		delete(newRoot.Children, head)
		return newRoot
	}

	newChild := Remove(tail, child)
	if newChild == child {
		return root
	}
	newRoot := clone(root)
	newRoot.Children[head] = newChild
	return newRoot
}

// Move relocates the node at src to tgt. If src and tgt share a leading
// segment, Move recurses into that subtree instead of doing a top-level
// lookup+remove+insert (spec.md §4.2). It reports ok=false, leaving root
// unchanged, when src has no node — callers (the device manager) are
// expected to warn and fall back to inserting a fresh node at tgt, per the
// spec.md §9 open-question decision.
func Move(src, tgt string, root *Node) (newRoot *Node, moved *Node, ok bool) {
	if root == nil {
		return root, nil, false
	}

	if head, tailA, tailB, shared := devpath.CommonHead(src, tgt); shared {
		child, has := root.Children[head]
		if !has {
			return root, nil, false
		}
		newChild, movedNode, moved := Move(tailA, tailB, child)
		if !moved {
			return root, nil, false
		}
		nr := clone(root)
		nr.Children[head] = newChild
		return nr, movedNode, true
	}

	node := Lookup(src, root)
	if node == nil {
		return root, nil, false
	}

	withoutSrc := Remove(src, root)
	nr := Insert(tgt, node, withoutSrc)
	return nr, node, true
}
