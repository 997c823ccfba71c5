package gateway

import (
	"sort"
	"strings"
	"time"
)

// Values of different types order by type first:
// null < bool < number < timestamp < string < list < map.
const (
	rankNull = iota
	rankBool
	rankNumber
	rankTimestamp
	rankString
	rankList
	rankMap
	rankOther
)

func rank(v interface{}) int {
	switch v.(type) {
	case nil:
		return rankNull
	case bool:
		return rankBool
	case int64, float64:
		return rankNumber
	case time.Time:
		return rankTimestamp
	case string:
		return rankString
	case []interface{}:
		return rankList
	case map[string]interface{}:
		return rankMap
	}
	return rankOther
}

func asFloat(v interface{}) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}

func compareValues(a, b interface{}) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}

	switch ra {
	case rankNull, rankOther:
		return 0

	case rankBool:
		ab, bb := a.(bool), b.(bool)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1

	case rankNumber:
		// both integers compare exactly, mixed ones as floats
		if ai, ok := a.(int64); ok {
			if bi, ok := b.(int64); ok {
				switch {
				case ai < bi:
					return -1
				case ai > bi:
					return 1
				}
				return 0
			}
		}
		af, bf := asFloat(a), asFloat(b)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0

	case rankTimestamp:
		return a.(time.Time).Compare(b.(time.Time))

	case rankString:
		return strings.Compare(a.(string), b.(string))

	case rankList:
		al, bl := a.([]interface{}), b.([]interface{})
		for i := 0; i < len(al) && i < len(bl); i++ {
			if c := compareValues(al[i], bl[i]); c != 0 {
				return c
			}
		}
		return compareInt(len(al), len(bl))

	case rankMap:
		am, bm := a.(map[string]interface{}), b.(map[string]interface{})
		ak, bk := sortedKeys(am), sortedKeys(bm)
		for i := 0; i < len(ak) && i < len(bk); i++ {
			if c := strings.Compare(ak[i], bk[i]); c != 0 {
				return c
			}
			if c := compareValues(am[ak[i]], bm[bk[i]]); c != 0 {
				return c
			}
		}
		return compareInt(len(ak), len(bk))
	}
	return 0
}

func compareInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalValues(a, b interface{}) bool {
	return rank(a) == rank(b) && compareValues(a, b) == 0
}

// lookupField resolves a field path. A literal top level key wins over a
// dotted path into nested maps.
func lookupField(rec map[string]interface{}, path string) (interface{}, bool) {
	if v, ok := rec[path]; ok {
		return v, true
	}
	if !strings.Contains(path, ".") {
		return nil, false
	}

	var cur interface{} = rec
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
