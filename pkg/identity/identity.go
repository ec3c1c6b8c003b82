// Package identity derives the deterministic identifiers used to resolve
// extracted records onto graph objects.
//
// An InternalID is the MD5 hex digest of the concatenation of an ordered list
// of values. Two extractions that agree on every key value always produce the
// same InternalID, which is the only entity resolution mechanism the pipeline
// relies on.
package identity

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// InternalID is a 32 character lowercase hex digest. The zero value means the
// identity could not be resolved.
type InternalID string

// ComputeInternalID hashes the concatenation of values. An empty list yields
// the digest of the empty string.
func ComputeInternalID(values ...string) InternalID {
	sum := md5.Sum([]byte(strings.Join(values, "")))
	return InternalID(hex.EncodeToString(sum[:]))
}

// IsSet reports whether the id was resolved.
func (id InternalID) IsSet() bool {
	return id != ""
}

func (id InternalID) String() string {
	return string(id)
}
