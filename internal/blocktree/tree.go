package blocktree

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ltlmaps/leap-contracts/internal/storage"
	"github.com/ltlmaps/leap-contracts/pkg/types"
)

// Key prefixes.
var (
	prefixNode    = []byte("n/") // n/<id(32)> -> Node JSON
	prefixArchive = []byte("a/") // a/<height(8)><id(32)> -> empty
)

// Tree errors.
var (
	ErrNotFound       = errors.New("block not found")
	ErrDuplicate      = errors.New("block already in tree")
	ErrDanglingParent = errors.New("parent block not in tree")
	ErrNotChild       = errors.New("block is not a child of ancestor")
	ErrBadIndex       = errors.New("branch index out of range")
)

// Tree reads and writes nodes in a storage.DB. It holds no state of its
// own, so it is cheap to build one over a transaction overlay.
type Tree struct {
	db storage.DB
}

// New creates a tree backed by db.
func New(db storage.DB) *Tree {
	return &Tree{db: db}
}

// Get returns the node with the given id.
func (t *Tree) Get(id types.Hash) (*Node, error) {
	data, err := t.db.Get(nodeKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("node get %s: %w", id, err)
	}
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("node unmarshal %s: %w", id, err)
	}
	return &n, nil
}

// Has reports whether id is in the tree.
func (t *Tree) Has(id types.Hash) (bool, error) {
	return t.db.Has(nodeKey(id))
}

func (t *Tree) put(n *Node) error {
	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("node marshal: %w", err)
	}
	if err := t.db.Put(nodeKey(n.ID), data); err != nil {
		return fmt.Errorf("node put %s: %w", n.ID, err)
	}
	return nil
}

// InsertRoot stores the root of the tree. It has no parent.
func (t *Tree) InsertRoot(id types.Hash, operator types.Address, root types.Hash) (*Node, error) {
	if ok, err := t.Has(id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	n := &Node{ID: id, Operator: operator, Root: root}
	return n, t.put(n)
}

// Insert appends a new node under parentID. It does not move any tip;
// that is the caller's business.
func (t *Tree) Insert(parentID, id types.Hash, height uint64, operator types.Address, root types.Hash) (*Node, error) {
	if ok, err := t.Has(id); err != nil {
		return nil, err
	} else if ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicate, id)
	}
	parent, err := t.Get(parentID)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDanglingParent, parentID)
	}
	if err != nil {
		return nil, err
	}

	n := &Node{
		ID:          id,
		Parent:      parentID,
		Height:      height,
		Operator:    operator,
		Root:        root,
		ParentIndex: len(parent.Children),
	}
	parent.Children = append(parent.Children, id)
	if err := t.put(parent); err != nil {
		return nil, err
	}
	return n, t.put(n)
}

// BranchCount returns the number of children of id.
func (t *Tree) BranchCount(id types.Hash) (int, error) {
	n, err := t.Get(id)
	if err != nil {
		return 0, err
	}
	return len(n.Children), nil
}

// BranchAt returns the child of id at index.
func (t *Tree) BranchAt(id types.Hash, index int) (types.Hash, error) {
	n, err := t.Get(id)
	if err != nil {
		return types.Hash{}, err
	}
	if index < 0 || index >= len(n.Children) {
		return types.Hash{}, fmt.Errorf("%w: %d of %d", ErrBadIndex, index, len(n.Children))
	}
	return n.Children[index], nil
}

// WalkBack follows parent links from start until it reaches a node at or
// below height. It returns that node and the id of the node it was reached
// from (startChild if start itself qualifies).
func (t *Tree) WalkBack(start *Node, startChild types.Hash, height uint64) (*Node, types.Hash, error) {
	cur, child := start, startChild
	for cur.Height > height {
		if cur.IsRoot() {
			break
		}
		parent, err := t.Get(cur.Parent)
		if err != nil {
			return nil, types.Hash{}, err
		}
		child = cur.ID
		cur = parent
	}
	return cur, child, nil
}

// IsAncestor reports whether ancestor lies on the parent path of id
// (a node is its own ancestor). Missing links end the walk with false.
func (t *Tree) IsAncestor(ancestor, id types.Hash) (bool, error) {
	a, err := t.Get(ancestor)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	n, err := t.Get(id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for n.Height > a.Height && !n.IsRoot() {
		n, err = t.Get(n.Parent)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
	}
	return n.ID == a.ID, nil
}

// Prune makes keep the only child of ancestor. keep is moved to index 0
// and every other child subtree is deleted. It returns the number of
// nodes removed.
func (t *Tree) Prune(ancestorID, keep types.Hash) (int, error) {
	anc, err := t.Get(ancestorID)
	if err != nil {
		return 0, err
	}
	idx := anc.childIndex(keep)
	if idx < 0 {
		return 0, fmt.Errorf("%w: %s under %s", ErrNotChild, keep, ancestorID)
	}
	if len(anc.Children) == 1 {
		return 0, nil
	}

	if idx != 0 {
		anc.Children[0], anc.Children[idx] = anc.Children[idx], anc.Children[0]
		kept, err := t.Get(keep)
		if err != nil {
			return 0, err
		}
		kept.ParentIndex = 0
		if err := t.put(kept); err != nil {
			return 0, err
		}
	}

	losers := anc.Children[1:]
	anc.Children = []types.Hash{keep}
	if err := t.put(anc); err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range losers {
		n, err := t.deleteSubtree(id)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// DeleteSubtree removes id and all of its descendants and detaches id
// from its parent if the parent is still stored.
func (t *Tree) DeleteSubtree(id types.Hash) (int, error) {
	n, err := t.Get(id)
	if err != nil {
		return 0, err
	}
	if err := t.detach(n); err != nil {
		return 0, err
	}
	return t.deleteSubtree(id)
}

// deleteSubtree removes id and its descendants with an explicit stack.
// Missing descendants are skipped.
func (t *Tree) deleteSubtree(id types.Hash) (int, error) {
	removed := 0
	stack := []types.Hash{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := t.Get(cur)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return removed, err
		}
		stack = append(stack, n.Children...)
		if err := t.db.Delete(nodeKey(cur)); err != nil {
			return removed, fmt.Errorf("node delete %s: %w", cur, err)
		}
		removed++
	}
	return removed, nil
}

// Archive removes a single node from active storage and records its id
// under its height in the archive log. Children keep their parent link.
func (t *Tree) Archive(id types.Hash) (*Node, error) {
	n, err := t.Get(id)
	if err != nil {
		return nil, err
	}
	if err := t.detach(n); err != nil {
		return nil, err
	}
	if err := t.db.Delete(nodeKey(id)); err != nil {
		return nil, fmt.Errorf("node delete %s: %w", id, err)
	}
	if err := t.db.Put(archiveKey(n.Height, id), []byte{}); err != nil {
		return nil, fmt.Errorf("archive put %s: %w", id, err)
	}
	return n, nil
}

// Archived returns the ids archived at height.
func (t *Tree) Archived(height uint64) ([]types.Hash, error) {
	prefix := archiveKey(height, types.Hash{})[:len(prefixArchive)+8]
	var ids []types.Hash
	err := t.db.ForEach(prefix, func(key, _ []byte) error {
		id, err := types.BytesToHash(key[len(prefix):])
		if err != nil {
			return fmt.Errorf("corrupt archive key: %w", err)
		}
		ids = append(ids, id)
		return nil
	})
	return ids, err
}

// IsArchived reports whether id was archived at height.
func (t *Tree) IsArchived(height uint64, id types.Hash) (bool, error) {
	return t.db.Has(archiveKey(height, id))
}

// detach removes n from its parent's child list when the parent is still
// stored, renumbering the siblings that shift down.
func (t *Tree) detach(n *Node) error {
	if n.IsRoot() {
		return nil
	}
	parent, err := t.Get(n.Parent)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	idx := parent.childIndex(n.ID)
	if idx < 0 {
		return nil
	}
	parent.Children = append(parent.Children[:idx], parent.Children[idx+1:]...)
	for i := idx; i < len(parent.Children); i++ {
		sib, err := t.Get(parent.Children[i])
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		sib.ParentIndex = i
		if err := t.put(sib); err != nil {
			return err
		}
	}
	return t.put(parent)
}

// Nodes calls fn for every stored node in id order.
func (t *Tree) Nodes(fn func(*Node) error) error {
	return t.db.ForEach(prefixNode, func(_, value []byte) error {
		var n Node
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("node unmarshal: %w", err)
		}
		return fn(&n)
	})
}

func nodeKey(id types.Hash) []byte {
	k := make([]byte, len(prefixNode)+types.HashSize)
	copy(k, prefixNode)
	copy(k[len(prefixNode):], id[:])
	return k
}

func archiveKey(height uint64, id types.Hash) []byte {
	k := make([]byte, len(prefixArchive)+8+types.HashSize)
	copy(k, prefixArchive)
	binary.BigEndian.PutUint64(k[len(prefixArchive):], height)
	copy(k[len(prefixArchive)+8:], id[:])
	return k
}
