// Package identity mints the stable identifiers every other component keys
// on: a human-readable canonical id describing an entity's definition site,
// and a content-derived GID used as the graph merge key. Generation is a
// pure function of its inputs, so any process can derive the same pair
// without coordination.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrInvalidArgument is returned when required fields are missing or the
// entity type is not recognized.
var ErrInvalidArgument = errors.New("identity: invalid argument")

// EntityType tags the kind of code entity an identifier describes.
type EntityType string

const (
	EntityFile        EntityType = "File"
	EntityModule      EntityType = "Module"
	EntityClass       EntityType = "Class"
	EntityInterface   EntityType = "Interface"
	EntityEnum        EntityType = "Enum"
	EntityStruct      EntityType = "Struct"
	EntityFunction    EntityType = "Function"
	EntityMethod      EntityType = "Method"
	EntityVariable    EntityType = "Variable"
	EntityAttribute   EntityType = "Attribute"
	EntityImport      EntityType = "Import"
	EntityTable       EntityType = "Table"
	EntityColumn      EntityType = "Column"
	EntityAPIEndpoint EntityType = "ApiEndpoint"
	EntityHTMLElement EntityType = "HtmlElement"
)

var knownEntityTypes = map[EntityType]bool{
	EntityFile: true, EntityModule: true, EntityClass: true,
	EntityInterface: true, EntityEnum: true, EntityStruct: true,
	EntityFunction: true, EntityMethod: true, EntityVariable: true,
	EntityAttribute: true, EntityImport: true, EntityTable: true,
	EntityColumn: true, EntityAPIEndpoint: true, EntityHTMLElement: true,
}

// Request carries the inputs for identifier generation.
type Request struct {
	FilePath          string
	EntityType        EntityType
	Name              string
	ParentCanonicalID string
	ParamTypes        []string
	LanguageHint      string
}

var extensionLanguages = map[string]string{
	".py":   "python",
	".sql":  "sql",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".go":   "go",
	".cs":   "csharp",
	".rs":   "rust",
	".html": "html",
	".htm":  "html",
}

// NormalizePath converts a repository-relative path to its canonical form:
// forward slashes, no leading "./", lower case.
func NormalizePath(p string) string {
	n := strings.ReplaceAll(p, "\\", "/")
	n = strings.TrimPrefix(n, "./")
	return strings.ToLower(n)
}

// LanguageFor resolves the language tag from an explicit hint or the file
// extension, falling back to "unknown".
func LanguageFor(filePath, hint string) string {
	if hint != "" {
		return strings.ToLower(hint)
	}
	if lang, ok := extensionLanguages[strings.ToLower(path.Ext(filePath))]; ok {
		return lang
	}
	return "unknown"
}

// Generate produces the (canonical id, gid) pair for a code entity.
func Generate(req Request) (canonical, gid string, err error) {
	if req.FilePath == "" || req.Name == "" || req.EntityType == "" {
		return "", "", fmt.Errorf("%w: file_path, entity_type and name are required", ErrInvalidArgument)
	}
	if !knownEntityTypes[req.EntityType] {
		return "", "", fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, req.EntityType)
	}

	normPath := NormalizePath(req.FilePath)
	lang := LanguageFor(normPath, req.LanguageHint)
	fileCanonical := normPath + "::File::" + path.Base(normPath)

	parent := req.ParentCanonicalID
	if parent == "" {
		parent = fileCanonical
	}

	switch req.EntityType {
	case EntityFile, EntityModule:
		canonical = fileCanonical
	case EntityClass, EntityInterface, EntityEnum, EntityStruct:
		canonical = fmt.Sprintf("%s::%s::%s", parent, req.EntityType, req.Name)
	case EntityFunction, EntityMethod:
		canonical = fmt.Sprintf("%s::%s::%s(%s)", parent, req.EntityType, req.Name, signature(req.ParamTypes))
	case EntityVariable, EntityAttribute:
		canonical = parent + "::" + req.Name
	case EntityImport:
		// Name is the imported identifier; ParamTypes[0], when present,
		// carries the source module.
		source := req.Name
		if len(req.ParamTypes) > 0 && req.ParamTypes[0] != "" {
			source = req.ParamTypes[0]
		}
		canonical = fmt.Sprintf("%s::IMPORT:%s@%s", fileCanonical, req.Name, source)
	case EntityTable, EntityColumn, EntityAPIEndpoint, EntityHTMLElement:
		canonical = fmt.Sprintf("%s::%s::%s", parent, req.EntityType, req.Name)
	}

	return canonical, GID(lang, canonical), nil
}

// GID derives the graph key for a canonical id: "<lang>:<sha256 hex>".
func GID(language, canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return language + ":" + hex.EncodeToString(sum[:])
}

func signature(paramTypes []string) string {
	if len(paramTypes) == 0 {
		return ""
	}
	parts := make([]string, len(paramTypes))
	for i, t := range paramTypes {
		if t == "" {
			t = "Any"
		}
		parts[i] = t
	}
	return strings.Join(parts, ",")
}

// Parsed holds the components recovered from an identifier.
type Parsed struct {
	Language          string
	FilePath          string
	EntityType        EntityType
	Name              string
	ParentCanonicalID string
	// IsGID is set when the input was a hashed gid, in which case only
	// Language is recoverable.
	IsGID bool
}

// Parse decomposes a canonical id or a gid. For a gid only the language
// prefix is recoverable.
func Parse(id string) (Parsed, error) {
	if id == "" {
		return Parsed{}, fmt.Errorf("%w: empty id", ErrInvalidArgument)
	}

	if isGID(id) {
		lang, _, _ := strings.Cut(id, ":")
		return Parsed{Language: lang, IsGID: true}, nil
	}

	segs := strings.Split(id, "::")
	if len(segs) < 3 {
		return Parsed{}, fmt.Errorf("%w: malformed canonical id %q", ErrInvalidArgument, id)
	}
	if segs[1] != "File" {
		return Parsed{}, fmt.Errorf("%w: canonical id %q does not start with a file segment", ErrInvalidArgument, id)
	}

	filePath := segs[0]
	p := Parsed{
		Language: LanguageFor(filePath, ""),
		FilePath: filePath,
	}

	if len(segs) == 3 {
		p.EntityType = EntityFile
		p.Name = segs[2]
		return p, nil
	}

	last := segs[len(segs)-1]
	prev := segs[len(segs)-2]
	p.ParentCanonicalID = strings.Join(segs[:len(segs)-2], "::")

	if strings.HasPrefix(last, "IMPORT:") {
		name, _, _ := strings.Cut(strings.TrimPrefix(last, "IMPORT:"), "@")
		p.EntityType = EntityImport
		p.Name = name
		p.ParentCanonicalID = strings.Join(segs[:len(segs)-1], "::")
		return p, nil
	}

	if knownEntityTypes[EntityType(prev)] {
		p.EntityType = EntityType(prev)
		p.Name = strings.SplitN(last, "(", 2)[0]
		return p, nil
	}

	// "<scope>::<name>" variable form: the type segment is absent.
	p.EntityType = EntityVariable
	p.Name = last
	p.ParentCanonicalID = strings.Join(segs[:len(segs)-1], "::")
	return p, nil
}

// isGID matches "<lang>:<64 hex>" with no canonical separators.
func isGID(id string) bool {
	if strings.Contains(id, "::") {
		return false
	}
	lang, digest, ok := strings.Cut(id, ":")
	if !ok || lang == "" || len(digest) != 64 {
		return false
	}
	for _, c := range digest {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
