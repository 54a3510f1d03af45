package types

import "fmt"

// PayloadKind tags what a stored payload contains. It is a closed set;
// every switch over it must handle all three kinds and reject the rest.
type PayloadKind uint8

const (
	KindBlob PayloadKind = iota + 1
	KindTree
	KindCommit
)

func (k PayloadKind) Valid() bool {
	switch k {
	case KindBlob, KindTree, KindCommit:
		return true
	}
	return false
}

func (k PayloadKind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	default:
		return fmt.Sprintf("PayloadKind(%d)", uint8(k))
	}
}

// Byte is the single-byte wire form mixed into every content digest.
func (k PayloadKind) Byte() byte {
	return byte(k)
}
