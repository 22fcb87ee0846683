package blue

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"sort"
)

// Structured keywords nest tables and lists inside the flat keyword stream.
// A nested value named NAME is written as
//
//	<XT>=NAME  <XS>=SIZE  children...  </XT>=NAME
//
// where SIZE is the byte length from the start of the <XS> record to the
// end of the close record. <XL> marks a list and <XK> a key/value list.
// A flat reader sees the markers as ordinary ASCII and integer keywords.
const (
	structTableOpen  = "<XT>"
	structTableClose = "</XT>"
	structListOpen   = "<XL>"
	structListClose  = "</XL>"
	structPairsOpen  = "<XK>"
	structPairsClose = "</XK>"
	structSize       = "<XS>"
	structNull       = "<XN>"
)

func packStructured(tag string, v any, order binary.ByteOrder) ([]byte, error) {
	var (
		open, close string
		children    Keywords
	)
	switch t := v.(type) {
	case nil:
		return packKeyword(tag, structNull, order)
	case map[string]any:
		open, close = structTableOpen, structTableClose
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			children = append(children, Keyword{Tag: k, Value: t[k]})
		}
	case Values:
		return packStructured(tag, map[string]any(t), order)
	case []any:
		open, close = structListOpen, structListClose
		for _, item := range t {
			children = append(children, Keyword{Value: item})
		}
	case Keywords:
		open, close = structPairsOpen, structPairsClose
		children = t
	default:
		items, ok := listItems(v)
		if !ok {
			return packKeyword(tag, v, order)
		}
		open, close = structListOpen, structListClose
		for _, item := range items {
			children = append(children, Keyword{Value: item})
		}
	}

	body, err := PackKeywords(children, order, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", tag, err)
	}
	head, err := packKeyword(open, tag, order)
	if err != nil {
		return nil, err
	}
	tail, err := packKeyword(close, tag, order)
	if err != nil {
		return nil, err
	}
	// The size record's own length does not depend on its value.
	sizeLen := len(mustPackSize(0, order))
	size := mustPackSize(int32(sizeLen+len(body)+len(tail)), order)

	out := make([]byte, 0, len(head)+len(size)+len(body)+len(tail))
	out = append(out, head...)
	out = append(out, size...)
	out = append(out, body...)
	return append(out, tail...), nil
}

// listItems spreads a slice that has no keyword array encoding, such as
// []string or []map[string]any, into list items. Numeric slices and
// []byte stay single typed keywords.
func listItems(v any) ([]any, bool) {
	switch v.(type) {
	case []byte, []int:
		return nil, false
	}
	if _, ok := keywordType(v); ok {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func mustPackSize(n int32, order binary.ByteOrder) []byte {
	rec, err := packKeyword(structSize, n, order)
	if err != nil {
		panic(err)
	}
	return rec
}

// foldStructured rebuilds nested values from flat records starting at i,
// stopping after the record tagged closeTag (or at the end for "").
func foldStructured(flat Keywords, i int, closeTag string) (Keywords, int, error) {
	var out Keywords
	for i < len(flat) {
		kw := flat[i]
		switch kw.Tag {
		case closeTag:
			if closeTag != "" {
				return out, i + 1, nil
			}
		case structTableOpen, structListOpen, structPairsOpen:
			name, _ := kw.Value.(string)
			i++
			if i < len(flat) && flat[i].Tag == structSize {
				i++
			}
			children, next, err := foldStructured(flat, i, closing(kw.Tag))
			if err != nil {
				return nil, 0, fmt.Errorf("%s: %w", name, err)
			}
			out = append(out, Keyword{Tag: name, Value: nest(kw.Tag, children)})
			i = next
			continue
		case structTableClose, structListClose, structPairsClose:
			return nil, 0, fmt.Errorf("%w: %s without matching open", ErrCorruptKeywords, kw.Tag)
		}
		if s, ok := kw.Value.(string); ok && s == structNull {
			kw.Value = nil
		}
		out = append(out, kw)
		i++
	}
	if closeTag != "" {
		return nil, 0, fmt.Errorf("%w: missing %s", ErrCorruptKeywords, closeTag)
	}
	return out, i, nil
}

func closing(open string) string {
	switch open {
	case structTableOpen:
		return structTableClose
	case structListOpen:
		return structListClose
	default:
		return structPairsClose
	}
}

func nest(open string, children Keywords) any {
	switch open {
	case structTableOpen:
		return map[string]any(children.Dict())
	case structListOpen:
		out := make([]any, len(children))
		for i, c := range children {
			out[i] = c.Value
		}
		return out
	default:
		return children
	}
}
