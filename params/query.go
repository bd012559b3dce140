package params

import (
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Query is a decoded query string. Values are strings, []any lists or
// map[string]any objects.
type Query map[string]any

// Get returns the raw value stored under name.
func (q Query) Get(name string) (any, bool) {
	v, ok := q[name]
	return v, ok
}

// ParseQuery decodes values using bracket conventions:
//
//	a=1             "1"
//	a=1&a=2         ["1", "2"]
//	a[]=1&a[]=2     ["1", "2"]
//	a[b]=1          {"b": "1"}
//	a[b][c]=1       {"b": {"c": "1"}}
//	a[0]=x&a[1]=y   ["x", "y"]
//	a[1]=x&a[5]=y   ["x", "y"]
//	a[21]=x         {"21": "x"}
//
// When a key appears both plain and with brackets the bracketed form wins.
func ParseQuery(values url.Values) Query {
	q := make(Query, len(values))

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var nested []string
	for _, k := range keys {
		if _, path := splitKey(k); path != nil {
			nested = append(nested, k)
			continue
		}
		q[k] = leafValue(values[k])
	}

	for _, k := range nested {
		root, path := splitKey(k)
		insert(ensureMap(q, root), path, values[k])
	}

	for k, v := range q {
		q[k] = finalize(v)
	}
	return q
}

// splitKey splits "a[b][c]" into "a" and ["b", "c"]. Keys without a well
// formed bracket suffix come back with a nil path.
func splitKey(k string) (string, []string) {
	i := strings.IndexByte(k, '[')
	if i <= 0 {
		return k, nil
	}
	root, rest := k[:i], k[i:]

	var path []string
	for rest != "" {
		if rest[0] != '[' {
			return k, nil
		}
		j := strings.IndexByte(rest, ']')
		if j < 0 {
			return k, nil
		}
		path = append(path, rest[1:j])
		rest = rest[j+1:]
	}
	return root, path
}

func insert(node map[string]any, path []string, vals []string) {
	seg := path[0]
	if len(path) == 1 {
		if seg == "" {
			for _, v := range vals {
				node[strconv.Itoa(len(node))] = v
			}
			return
		}
		node[seg] = leafValue(vals)
		return
	}
	if seg == "" {
		seg = strconv.Itoa(len(node))
	}
	insert(ensureMap(node, seg), path[1:], vals)
}

func ensureMap(parent map[string]any, key string) map[string]any {
	if m, ok := parent[key].(map[string]any); ok {
		return m
	}
	m := make(map[string]any)
	parent[key] = m
	return m
}

func leafValue(vals []string) any {
	if len(vals) == 1 {
		return vals[0]
	}
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

// arrayLimit is the largest index that still produces a list, as in qs.
const arrayLimit = 20

// finalize turns maps keyed only by indexes up to arrayLimit into lists.
// Sparse indexes are compacted in order, so a[1]=x gives ["x"].
func finalize(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	for k, e := range m {
		m[k] = finalize(e)
	}
	if len(m) == 0 {
		return m
	}

	indexes := make([]int, 0, len(m))
	for k := range m {
		i, err := strconv.Atoi(k)
		if err != nil || i < 0 || i > arrayLimit || strconv.Itoa(i) != k {
			return m
		}
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	list := make([]any, len(indexes))
	for n, i := range indexes {
		list[n] = m[strconv.Itoa(i)]
	}
	return list
}
