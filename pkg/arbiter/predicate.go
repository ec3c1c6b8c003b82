package arbiter

import (
	"github.com/OFFIS-RIT/leech/pkg/common"
	"github.com/OFFIS-RIT/leech/pkg/identity"
	"github.com/OFFIS-RIT/leech/pkg/schema"
)

// MatchSpecifiers is the default predicate. Every specifier must hold: a
// bare bucket name requires the bucket, a field requires some item of the
// bucket to carry it, and a value requires that item's field to equal it.
// An empty list always matches.
func MatchSpecifiers(extracted common.ExtractedData, specifiers []schema.VertexSpecifier) bool {
	for _, spec := range specifiers {
		if !matchSpecifier(extracted, spec) {
			return false
		}
	}
	return true
}

// MatchAlways applies every rule set regardless of its specifiers.
func MatchAlways(common.ExtractedData, []schema.VertexSpecifier) bool {
	return true
}

func matchSpecifier(extracted common.ExtractedData, spec schema.VertexSpecifier) bool {
	bucketName := spec.Extraction
	if bucketName == "" {
		bucketName = common.SourceKey
	}
	bucket, ok := extracted.Bucket(bucketName)
	if !ok {
		return false
	}
	if spec.Field == "" {
		return true
	}
	for _, item := range bucket {
		value, ok := item[spec.Field]
		if !ok {
			continue
		}
		if spec.Value == nil || identity.StringValue(value) == identity.StringValue(spec.Value) {
			return true
		}
	}
	return false
}
