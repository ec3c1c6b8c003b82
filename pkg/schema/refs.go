package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var ErrUnresolvedRef = errors.New("unresolved schema reference")

const maxRefDepth = 32

// ResolveRefs replaces every {"$ref": "#/..."} object with the document node
// it points to and drops the top-level "definitions" block the references
// usually point into. Only local references are supported.
func ResolveRefs(doc []byte) ([]byte, error) {
	if !gjson.ValidBytes(doc) {
		return nil, fmt.Errorf("%w: document is not valid json", ErrInvalidSchema)
	}
	root := gjson.ParseBytes(doc)

	var b strings.Builder
	if err := resolveNode(&b, root, root, 0); err != nil {
		return nil, err
	}

	out := []byte(b.String())
	if root.Get("definitions").Exists() {
		var err error
		out, err = sjson.DeleteBytes(out, "definitions")
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func resolveNode(b *strings.Builder, root, node gjson.Result, depth int) error {
	if depth > maxRefDepth {
		return fmt.Errorf("%w: reference chain deeper than %d", ErrUnresolvedRef, maxRefDepth)
	}

	switch {
	case node.IsObject():
		if ref := node.Get(`\$ref`); ref.Exists() {
			target, err := lookupRef(root, ref.String())
			if err != nil {
				return err
			}
			return resolveNode(b, root, target, depth+1)
		}
		b.WriteByte('{')
		first := true
		var err error
		node.ForEach(func(key, value gjson.Result) bool {
			if !first {
				b.WriteByte(',')
			}
			first = false
			b.WriteString(key.Raw)
			b.WriteByte(':')
			err = resolveNode(b, root, value, depth)
			return err == nil
		})
		if err != nil {
			return err
		}
		b.WriteByte('}')
	case node.IsArray():
		b.WriteByte('[')
		var err error
		for i, item := range node.Array() {
			if i > 0 {
				b.WriteByte(',')
			}
			if err = resolveNode(b, root, item, depth); err != nil {
				return err
			}
		}
		b.WriteByte(']')
	default:
		b.WriteString(node.Raw)
	}
	return nil
}

// lookupRef follows a "#/a/b/0" JSON pointer through root.
func lookupRef(root gjson.Result, ref string) (gjson.Result, error) {
	if !strings.HasPrefix(ref, "#/") {
		return gjson.Result{}, fmt.Errorf("%w: %q is not a local reference", ErrUnresolvedRef, ref)
	}
	segments := strings.Split(strings.TrimPrefix(ref, "#/"), "/")
	for i, seg := range segments {
		seg = strings.ReplaceAll(seg, "~1", "/")
		seg = strings.ReplaceAll(seg, "~0", "~")
		segments[i] = escapePathSegment(seg)
	}
	target := root.Get(strings.Join(segments, "."))
	if !target.Exists() {
		return gjson.Result{}, fmt.Errorf("%w: %q", ErrUnresolvedRef, ref)
	}
	return target, nil
}

func escapePathSegment(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\', '!', '=', '<', '>', '%':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
