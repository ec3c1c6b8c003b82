package neptune

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

var ErrMalformedGraphSON = errors.New("malformed graphson")

type Vertex struct {
	ID         any
	Label      string
	Properties map[string][]any
}

type VertexProperty struct {
	ID    any
	Label string
	Value any
}

type Edge struct {
	ID         any
	Label      string
	InV        any
	OutV       any
	InVLabel   string
	OutVLabel  string
	Properties map[string]any
}

type Property struct {
	Key   string
	Value any
}

type Path struct {
	Labels  [][]string
	Objects []any
}

// DecodeGraphSON turns a GraphSON 3 value into Go values. Lists and sets
// become []any, maps map[string]any, integers int64, floating point numbers
// float64 and dates time.Time. Unknown types yield their decoded payload.
func DecodeGraphSON(node gjson.Result) (any, error) {
	switch {
	case node.IsObject():
		typ, value := node.Get(`\@type`), node.Get(`\@value`)
		if typ.Exists() && value.Exists() {
			return decodeTyped(typ.String(), value)
		}
		out := map[string]any{}
		var err error
		node.ForEach(func(key, value gjson.Result) bool {
			out[key.String()], err = DecodeGraphSON(value)
			return err == nil
		})
		return out, err
	case node.IsArray():
		return decodeList(node)
	}

	switch node.Type {
	case gjson.Null:
		return nil, nil
	case gjson.True, gjson.False:
		return node.Bool(), nil
	case gjson.String:
		return node.String(), nil
	case gjson.Number:
		if i, err := strconv.ParseInt(node.Raw, 10, 64); err == nil {
			return i, nil
		}
		return node.Float(), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrMalformedGraphSON, node.Raw)
}

func decodeList(node gjson.Result) ([]any, error) {
	items := node.Array()
	out := make([]any, 0, len(items))
	for _, item := range items {
		v, err := DecodeGraphSON(item)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeTyped(typ string, value gjson.Result) (any, error) {
	switch typ {
	case "g:List", "g:Set":
		return decodeList(value)
	case "g:Map":
		return decodeMap(value)
	case "g:Int32", "g:Int64":
		return value.Int(), nil
	case "g:Float", "g:Double":
		return value.Float(), nil
	case "g:Date", "g:Timestamp":
		return time.UnixMilli(value.Int()).UTC(), nil
	case "g:UUID", "g:T", "g:Direction":
		return value.String(), nil
	case "g:Vertex":
		return decodeVertex(value)
	case "g:VertexProperty":
		return decodeVertexProperty(value)
	case "g:Edge":
		return decodeEdge(value)
	case "g:Property":
		v, err := DecodeGraphSON(value.Get("value"))
		if err != nil {
			return nil, err
		}
		return Property{Key: value.Get("key").String(), Value: v}, nil
	case "g:Path":
		return decodePath(value)
	}
	return DecodeGraphSON(value)
}

// decodeMap reads the flat [k1, v1, k2, v2, ...] form of g:Map.
func decodeMap(value gjson.Result) (map[string]any, error) {
	items := value.Array()
	if len(items)%2 != 0 {
		return nil, fmt.Errorf("%w: g:Map with %d entries", ErrMalformedGraphSON, len(items))
	}
	out := make(map[string]any, len(items)/2)
	for i := 0; i < len(items); i += 2 {
		k, err := DecodeGraphSON(items[i])
		if err != nil {
			return nil, err
		}
		v, err := DecodeGraphSON(items[i+1])
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(k)] = v
	}
	return out, nil
}

func decodeVertex(value gjson.Result) (Vertex, error) {
	id, err := DecodeGraphSON(value.Get("id"))
	if err != nil {
		return Vertex{}, err
	}
	v := Vertex{ID: id, Label: value.Get("label").String(), Properties: map[string][]any{}}

	value.Get("properties").ForEach(func(key, props gjson.Result) bool {
		for _, prop := range props.Array() {
			var decoded any
			decoded, err = DecodeGraphSON(prop)
			if err != nil {
				return false
			}
			if vp, ok := decoded.(VertexProperty); ok {
				decoded = vp.Value
			}
			v.Properties[key.String()] = append(v.Properties[key.String()], decoded)
		}
		return true
	})
	return v, err
}

func decodeVertexProperty(value gjson.Result) (VertexProperty, error) {
	id, err := DecodeGraphSON(value.Get("id"))
	if err != nil {
		return VertexProperty{}, err
	}
	v, err := DecodeGraphSON(value.Get("value"))
	if err != nil {
		return VertexProperty{}, err
	}
	return VertexProperty{ID: id, Label: value.Get("label").String(), Value: v}, nil
}

func decodeEdge(value gjson.Result) (Edge, error) {
	e := Edge{
		Label:      value.Get("label").String(),
		InVLabel:   value.Get("inVLabel").String(),
		OutVLabel:  value.Get("outVLabel").String(),
		Properties: map[string]any{},
	}
	var err error
	if e.ID, err = DecodeGraphSON(value.Get("id")); err != nil {
		return Edge{}, err
	}
	if e.InV, err = DecodeGraphSON(value.Get("inV")); err != nil {
		return Edge{}, err
	}
	if e.OutV, err = DecodeGraphSON(value.Get("outV")); err != nil {
		return Edge{}, err
	}

	value.Get("properties").ForEach(func(key, prop gjson.Result) bool {
		var decoded any
		decoded, err = DecodeGraphSON(prop)
		if err != nil {
			return false
		}
		if p, ok := decoded.(Property); ok {
			decoded = p.Value
		}
		e.Properties[key.String()] = decoded
		return true
	})
	return e, err
}

func decodePath(value gjson.Result) (Path, error) {
	labels, err := DecodeGraphSON(value.Get("labels"))
	if err != nil {
		return Path{}, err
	}
	objects, err := DecodeGraphSON(value.Get("objects"))
	if err != nil {
		return Path{}, err
	}

	p := Path{}
	if list, ok := labels.([]any); ok {
		for _, set := range list {
			var names []string
			items, _ := set.([]any)
			for _, item := range items {
				names = append(names, fmt.Sprint(item))
			}
			p.Labels = append(p.Labels, names)
		}
	}
	p.Objects, _ = objects.([]any)
	return p, nil
}
