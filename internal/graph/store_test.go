package graph

import (
	"testing"

	"github.com/bmcp/codegraph/pkg/models"
)

func TestValidLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"Function", true},
		{"ApiEndpoint", true},
		{"Original_WeirdThing", true},
		{"Python", true},
		{"", false},
		{"Bad Label", false},
		{"n {gid: ''}) DETACH DELETE", false},
		{"1Leading", false},
	}
	for _, tt := range tests {
		if got := validLabel(tt.label); got != tt.want {
			t.Errorf("validLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestHeuristicCallName(t *testing.T) {
	tests := []struct {
		target string
		name   string
		ok     bool
	}{
		{"python::Function::format_name", "format_name", true},
		{"python::Object::client::Method::send", "send", true},
		{"a.py::File::a.py::Function::f(Any)", "", false},
		{"a.py::File::a.py::Class::C::Method::m(Any)", "", false},
		{"module.py::File::module.py", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		name, ok := heuristicCallName(tt.target)
		if name != tt.name || ok != tt.ok {
			t.Errorf("heuristicCallName(%q) = (%q, %v), want (%q, %v)",
				tt.target, name, ok, tt.name, tt.ok)
		}
	}
}

func TestNodeProps(t *testing.T) {
	stub := models.NodeStub{
		GID:         "python:abc",
		CanonicalID: "a.py::File::a.py",
		Name:        "a.py",
		FilePath:    "a.py",
		Language:    "python",
		Properties:  map[string]any{"start_line": 1, "name": "shadowed"},
	}
	props := nodeProps(stub)
	if props["gid"] != "python:abc" || props["canonical_id"] != "a.py::File::a.py" {
		t.Errorf("identity props missing: %v", props)
	}
	// the identity fields win over analyzer-supplied properties
	if props["name"] != "a.py" {
		t.Errorf("name = %v, want a.py", props["name"])
	}
	if props["start_line"] != 1 {
		t.Errorf("custom property lost: %v", props)
	}
	if stub.Properties["gid"] != nil {
		t.Error("input stub mutated")
	}
}
