package cache

import (
	"sort"
	"strings"
	"time"
)

// Cache keys are namespaced under "catalog:" by read section. Deterministic
// serialization keeps equivalent requests on the same key: parameters are
// sorted by name and empty values are dropped.
const (
	namespace = "catalog"

	ListPrefix   = namespace + ":list:"
	SearchPrefix = namespace + ":search:"
	CoursePrefix = namespace + ":course:"
	StatsPrefix  = namespace + ":stats"
)

// TTLs per read section. Volatile aggregations expire faster than
// single-record lookups.
const (
	ListTTL   = 5 * time.Minute
	SearchTTL = 2 * time.Minute
	CourseTTL = 10 * time.Minute
	StatsTTL  = 15 * time.Minute
)

// ListKey builds the cache key for a course listing with the given
// query parameters.
func ListKey(params map[string]string) string {
	return ListPrefix + serialize(params)
}

// SearchKey builds the cache key for a search request with the given
// query parameters.
func SearchKey(params map[string]string) string {
	return SearchPrefix + serialize(params)
}

// CourseKey builds the cache key for a single course lookup.
func CourseKey(id string) string {
	return CoursePrefix + id
}

// StatsKey returns the cache key for catalog statistics.
func StatsKey() string {
	return StatsPrefix
}

// ReadPrefixes returns every prefix that holds derived read results. Used
// for coarse invalidation after any catalog mutation.
func ReadPrefixes() []string {
	return []string{ListPrefix, SearchPrefix, StatsPrefix}
}

func serialize(params map[string]string) string {
	if len(params) == 0 {
		return ""
	}

	names := make([]string, 0, len(params))
	for name, value := range params {
		if value == "" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+params[name])
	}

	return strings.Join(pairs, ":")
}
