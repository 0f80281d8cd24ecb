package resolver

import (
	"reflect"
	"testing"
)

func TestParseSQLQueryTables(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"SELECT id FROM users", []string{"users"}},
		{"select u.id from users u join orders o on u.id = o.user_id", []string{"orders", "users"}},
		{"UPDATE accounts SET balance = 0", []string{"accounts"}},
		{"INSERT INTO audit_log VALUES (1)", []string{"audit_log"}},
		{"not sql at all", nil},
	}
	for _, tt := range tests {
		tables, _ := parseSQLQuery(tt.query)
		if len(tables) == 0 {
			tables = nil
		}
		if !reflect.DeepEqual(tables, tt.want) {
			t.Errorf("parseSQLQuery(%q) tables = %v, want %v", tt.query, tables, tt.want)
		}
	}
}

func TestParseSQLQueryColumns(t *testing.T) {
	_, columns := parseSQLQuery("SELECT name FROM users WHERE id = 5")
	wantPresent := map[string]bool{"name": false, "id": false}
	for _, c := range columns {
		if _, ok := wantPresent[c]; ok {
			wantPresent[c] = true
		}
	}
	for col, found := range wantPresent {
		if !found {
			t.Errorf("column %q not extracted from query, got %v", col, columns)
		}
	}
}

func TestQueryRelType(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT * FROM users", "READS_TABLE"},
		{"UPDATE users SET name = 'x'", "MODIFIES_TABLE"},
		{"INSERT INTO users VALUES (1)", "MODIFIES_TABLE"},
		{"DELETE FROM users", "MODIFIES_TABLE"},
		{"TRUNCATE users", "QUERIES_TABLE"},
		// a write with a subselect is still a write
		{"INSERT INTO users SELECT * FROM staging", "MODIFIES_TABLE"},
	}
	for _, tt := range tests {
		if got := queryRelType(tt.query); got != tt.want {
			t.Errorf("queryRelType(%q) = %q, want %q", tt.query, got, tt.want)
		}
	}
}

func TestNormalizeURLPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"/api/users", "api/users"},
		{"api/users/", "api/users"},
		{"/api/users?id=1", "api/users"},
		{"https://api.example.com/api/users", "api/users"},
		{"http://localhost:8080/api/users?limit=5", "api/users"},
		{"https://api.example.com", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeURLPath(tt.url); got != tt.want {
			t.Errorf("normalizeURLPath(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
