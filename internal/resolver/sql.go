package resolver

import (
	"regexp"
	"sort"
	"strings"
)

var (
	sqlTablePattern  = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|UPDATE|INTO)\s+` + "`?" + `(\w+)` + "`?")
	sqlColumnPattern = regexp.MustCompile(`(?i)\b(?:SELECT|WHERE|SET|ON)\s+` + "`?" + `(\w+)` + "`?")
	sqlAssignPattern = regexp.MustCompile("`?" + `(\w+)` + "`?" + `\s*=`)

	sqlModifyPattern = regexp.MustCompile(`(?i)\b(?:UPDATE|INSERT|DELETE)\b`)
	sqlSelectPattern = regexp.MustCompile(`(?i)\bSELECT\b`)
)

// parseSQLQuery extracts likely table and column names from a query string.
// It is keyword-proximity matching, not a parser: good enough to link a
// query hint to schema nodes, and wrong in ways that only cost a missing or
// extra heuristic edge.
func parseSQLQuery(query string) (tables, columns []string) {
	tableSet := make(map[string]bool)
	for _, m := range sqlTablePattern.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			tableSet[m[1]] = true
		}
	}

	columnSet := make(map[string]bool)
	for _, m := range sqlColumnPattern.FindAllStringSubmatch(query, -1) {
		if m[1] != "" && m[1] != "*" {
			columnSet[m[1]] = true
		}
	}
	for _, m := range sqlAssignPattern.FindAllStringSubmatch(query, -1) {
		if m[1] != "" {
			columnSet[m[1]] = true
		}
	}

	return sortedKeys(tableSet), sortedKeys(columnSet)
}

// queryRelType classifies a query: writes win over reads when both appear.
func queryRelType(query string) string {
	switch {
	case sqlModifyPattern.MatchString(query):
		return "MODIFIES_TABLE"
	case sqlSelectPattern.MatchString(query):
		return "READS_TABLE"
	}
	return "QUERIES_TABLE"
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// normalizeURLPath reduces a call-site URL or a route declaration to a bare
// path: query string, scheme, host and surrounding slashes are dropped so
// both sides compare equal.
func normalizeURLPath(url string) string {
	path, _, _ := strings.Cut(url, "?")
	if _, rest, ok := strings.Cut(path, "://"); ok {
		if i := strings.Index(rest, "/"); i >= 0 {
			path = rest[i:]
		} else {
			path = ""
		}
	}
	return strings.Trim(path, "/")
}
