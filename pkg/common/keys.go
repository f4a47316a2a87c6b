package common

// Key namespaces for the graph store. Keys are plain strings ordered
// lexicographically, so a ranged scan over a namespace prefix lists all
// entities of that kind.
const (
	NodeKeyPrefix      = "nodes/"
	RelationKeyPrefix  = "relations/"
	AttributeKeyPrefix = "attributes/"
)

// NodeKey formats the storage key for a node.
func NodeKey(id string) string {
	return NodeKeyPrefix + id
}

// RelationKey formats the storage key for a relation.
func RelationKey(id string) string {
	return RelationKeyPrefix + id
}

// AttributeKey formats the storage key for an attribute.
func AttributeKey(id string) string {
	return AttributeKeyPrefix + id
}

// PrefixRange returns the [start, end) scan bounds covering every key
// with the given prefix. The end bound is the prefix with its last byte
// incremented, which is the smallest key greater than all prefixed keys.
func PrefixRange(prefix string) (start, end string) {
	if prefix == "" {
		return "", ""
	}
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return prefix, string(b[:i+1])
		}
	}
	// Prefix is all 0xff bytes; scan to the end of the keyspace.
	return prefix, ""
}
