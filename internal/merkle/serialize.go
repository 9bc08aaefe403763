package merkle

import (
	"encoding/hex"
	"encoding/json"
)

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

func hashFromHex(s string) ([32]byte, error) {
	var h [32]byte
	if s == "" {
		return h, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, err
	}
	copy(h[:], b)
	return h, nil
}

// serializedNode is the wire shape for a Merkle node. Leaves carry Path
// and omit children; internal nodes carry children and omit Path.
type serializedNode struct {
	Hash  string          `json:"hash"`
	Path  string          `json:"path,omitempty"`
	Left  *serializedNode `json:"left,omitempty"`
	Right *serializedNode `json:"right,omitempty"`
}

// Serialize renders the tree into its JSON wire form.
func (t *Tree) Serialize() ([]byte, error) {
	if t == nil || t.Root == nil {
		return json.Marshal((*serializedNode)(nil))
	}
	return json.Marshal(toSerialized(t.Root))
}

func toSerialized(n *Node) *serializedNode {
	if n == nil {
		return nil
	}
	s := &serializedNode{Hash: hashHex(n.Hash)}
	if n.IsLeaf() {
		s.Path = n.Path
	} else {
		s.Left = toSerialized(n.Left)
		s.Right = toSerialized(n.Right)
	}
	return s
}

// Deserialize parses a tree from its JSON wire form. A round-trip of
// Serialize then Deserialize then Serialize again yields the original
// bytes, and the root hash is preserved exactly.
func Deserialize(data []byte) (*Tree, error) {
	var root serializedNode
	if len(data) == 0 || string(data) == "null" {
		return &Tree{}, nil
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	n, err := fromSerialized(&root)
	if err != nil {
		return nil, err
	}
	return &Tree{Root: n}, nil
}

func fromSerialized(s *serializedNode) (*Node, error) {
	if s == nil {
		return nil, nil
	}
	h, err := hashFromHex(s.Hash)
	if err != nil {
		return nil, err
	}
	n := &Node{Hash: h, Path: s.Path}
	if s.Left != nil {
		left, err := fromSerialized(s.Left)
		if err != nil {
			return nil, err
		}
		n.Left = left
	}
	if s.Right != nil {
		right, err := fromSerialized(s.Right)
		if err != nil {
			return nil, err
		}
		n.Right = right
	}
	return n, nil
}
