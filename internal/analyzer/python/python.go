// Package python analyzes Python source with tree-sitter, producing node
// and relationship stubs for files, classes, functions, methods, variables,
// imports, calls and API/DB call hints.
package python

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/bmcp/codegraph/internal/analyzer"
	"github.com/bmcp/codegraph/internal/identity"
	"github.com/bmcp/codegraph/pkg/models"
)

const language = "python"

// identityCacheSize bounds the per-file identity cache; a file rarely
// defines more distinct entities than this.
const identityCacheSize = 4096

// apiCallPatterns match call target strings that perform HTTP requests.
var apiCallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:\w+\.)*requests\.(?:get|post|put|delete|patch|head|options)$`),
	regexp.MustCompile(`^(?:\w+\.)*httpx\.(?:get|post|put|delete|patch|head|options)$`),
	regexp.MustCompile(`^(?:\w+\.)*session\.(?:get|post|put|delete|patch|head|options)$`),
	regexp.MustCompile(`^(?:\w+\.)*urlopen$`),
}

// dbCallPatterns match call target strings that run database queries.
var dbCallPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(?:\w+\.)*cursor\.execute(?:many)?$`),
	regexp.MustCompile(`^(?:\w+\.)*connection\.execute$`),
	regexp.MustCompile(`^(?:\w+\.)*session\.(?:query|execute)$`),
	regexp.MustCompile(`^(?:\w+\.)*engine\.execute$`),
}

// refParents are node types whose identifier children count as variable
// loads worth a REFERENCES edge.
var refParents = map[string]bool{
	"argument_list":            true,
	"binary_operator":          true,
	"comparison_operator":      true,
	"return_statement":         true,
	"parenthesized_expression": true,
}

// Analyzer implements analyzer.Analyzer for Python source.
type Analyzer struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Analyzer {
	return &Analyzer{logger: logger}
}

func (a *Analyzer) Language() string { return language }

// Analyze parses source and walks the tree with a scope stack, emitting one
// node stub per entity and relationship stubs originating from this file.
func (a *Analyzer) Analyze(ctx context.Context, filePath string, source []byte) (models.AnalyzerResult, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil {
		return models.AnalyzerResult{}, fmt.Errorf("parse %s: %w", filePath, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return models.AnalyzerResult{}, fmt.Errorf("syntax errors in %s", filePath)
	}

	ids, err := analyzer.NewIdentityCache(identityCacheSize)
	if err != nil {
		return models.AnalyzerResult{}, fmt.Errorf("identity cache: %w", err)
	}

	v := &visitor{
		filePath: filePath,
		source:   source,
		ids:      ids,
		seen:     make(map[string]bool),
		logger:   a.logger,
	}
	if err := v.visitFile(root); err != nil {
		return models.AnalyzerResult{}, err
	}

	result := models.AnalyzerResult{
		FilePath:              filePath,
		Language:              language,
		NodesUpserted:         v.nodes,
		RelationshipsUpserted: v.rels,
	}
	result.RelationshipsUpserted = append(result.RelationshipsUpserted,
		analyzer.ScanHintComments(source, "#", v.fileGID)...)
	return result, nil
}

// scope is one frame of the lexical scope stack. vars maps variable names
// declared in the frame to their canonical ids, so loads can resolve against
// the file's own declarations.
type scope struct {
	gid       string
	canonical string
	kind      identity.EntityType
	vars      map[string]string
}

type visitor struct {
	filePath string
	source   []byte
	ids      *analyzer.IdentityCache
	logger   *slog.Logger

	scopes  []scope
	fileGID string

	nodes []models.NodeStub
	rels  []models.RelStub
	seen  map[string]bool
}

func (v *visitor) text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(v.source[n.StartByte():n.EndByte()])
}

func (v *visitor) current() scope {
	return v.scopes[len(v.scopes)-1]
}

func (v *visitor) push(s scope) {
	s.vars = make(map[string]string)
	v.scopes = append(v.scopes, s)
}

func (v *visitor) pop() { v.scopes = v.scopes[:len(v.scopes)-1] }

// resolveVar finds the nearest declaration of name on the scope stack.
func (v *visitor) resolveVar(name string) (string, bool) {
	for i := len(v.scopes) - 1; i >= 0; i-- {
		if canonical, ok := v.scopes[i].vars[name]; ok {
			return canonical, true
		}
	}
	return "", false
}

func (v *visitor) inClass() bool {
	return v.current().kind == identity.EntityClass
}

func (v *visitor) addNode(analyzerType, name, canonical, gid string, n *sitter.Node, props map[string]any) {
	if v.seen[gid] {
		return
	}
	v.seen[gid] = true

	if props == nil {
		props = map[string]any{}
	}
	props["start_line"] = int(n.StartPoint().Row) + 1
	props["end_line"] = int(n.EndPoint().Row) + 1
	props["original_node_type"] = n.Type()

	v.nodes = append(v.nodes, models.NodeStub{
		GID:         gid,
		CanonicalID: canonical,
		Name:        name,
		FilePath:    v.filePath,
		Language:    language,
		Labels:      []string{analyzerType},
		Properties:  props,
	})
}

func (v *visitor) addRel(sourceGID, targetCanonical, relType string, props map[string]any) {
	v.rels = append(v.rels, models.RelStub{
		SourceGID:         sourceGID,
		TargetCanonicalID: targetCanonical,
		Type:              relType,
		Properties:        props,
	})
}

func (v *visitor) visitFile(root *sitter.Node) error {
	canonical, gid, err := v.ids.Generate(identity.Request{
		FilePath:     v.filePath,
		EntityType:   identity.EntityFile,
		Name:         path.Base(v.filePath),
		LanguageHint: language,
	})
	if err != nil {
		return fmt.Errorf("file identity: %w", err)
	}
	v.fileGID = gid
	v.addNode("File", path.Base(v.filePath), canonical, gid, root, map[string]any{"path": v.filePath})
	v.push(scope{gid: gid, canonical: canonical, kind: identity.EntityFile})
	v.walk(root)
	v.pop()
	return nil
}

func (v *visitor) walk(n *sitter.Node) {
	switch n.Type() {
	case "class_definition":
		v.visitClass(n)
		return
	case "function_definition":
		v.visitFunction(n)
		return
	case "import_statement":
		v.visitImport(n)
		return
	case "import_from_statement":
		v.visitImportFrom(n)
		return
	case "assignment":
		v.visitAssignment(n)
		return
	case "call":
		v.visitCall(n)
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "identifier" && refParents[n.Type()] {
			// loads of names without a local declaration (parameters,
			// builtins, imports) produce no edge
			name := v.text(child)
			if target, ok := v.resolveVar(name); ok {
				v.addRel(v.current().gid, target, "REFERENCES", map[string]any{
					"variable_name": name,
					"line":          int(child.StartPoint().Row) + 1,
				})
			}
			continue
		}
		v.walk(child)
	}
}

func (v *visitor) visitClass(n *sitter.Node) {
	name := v.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}

	canonical, gid, err := v.ids.Generate(identity.Request{
		FilePath:          v.filePath,
		EntityType:        identity.EntityClass,
		Name:              name,
		ParentCanonicalID: v.current().canonical,
		LanguageHint:      language,
	})
	if err != nil {
		v.logger.Warn("class identity failed", slog.String("name", name), slog.String("error", err.Error()))
		return
	}

	props := map[string]any{}
	if bases := n.ChildByFieldName("superclasses"); bases != nil {
		var names []string
		for i := 0; i < int(bases.NamedChildCount()); i++ {
			names = append(names, v.text(bases.NamedChild(i)))
		}
		props["bases"] = names
	}

	v.addNode("ClassDefinition", name, canonical, gid, n, props)
	v.addRel(v.current().gid, canonical, "CONTAINS", nil)

	v.push(scope{gid: gid, canonical: canonical, kind: identity.EntityClass})
	if body := n.ChildByFieldName("body"); body != nil {
		v.walk(body)
	}
	v.pop()
}

func (v *visitor) visitFunction(n *sitter.Node) {
	name := v.text(n.ChildByFieldName("name"))
	if name == "" {
		return
	}

	entityType := identity.EntityFunction
	analyzerType := "FunctionDefinition"
	if v.inClass() {
		entityType = identity.EntityMethod
		analyzerType = "MethodDefinition"
	}

	paramNames, paramTypes := v.parameters(n.ChildByFieldName("parameters"))

	canonical, gid, err := v.ids.Generate(identity.Request{
		FilePath:          v.filePath,
		EntityType:        entityType,
		Name:              name,
		ParentCanonicalID: v.current().canonical,
		ParamTypes:        paramTypes,
		LanguageHint:      language,
	})
	if err != nil {
		v.logger.Warn("function identity failed", slog.String("name", name), slog.String("error", err.Error()))
		return
	}

	returnType := v.text(n.ChildByFieldName("return_type"))
	props := map[string]any{
		"signature":   "(" + strings.Join(paramNames, ", ") + ")",
		"parameters":  paramNames,
		"return_type": returnType,
		"is_method":   entityType == identity.EntityMethod,
	}

	v.addNode(analyzerType, name, canonical, gid, n, props)
	v.addRel(v.current().gid, canonical, "CONTAINS", nil)

	// annotated parameters are type uses
	for i, t := range paramTypes {
		if t != "" && t != "Any" {
			v.addRel(gid, t, "USES_TYPE", map[string]any{"parameter": paramNames[i]})
		}
	}
	if returnType != "" {
		v.addRel(gid, returnType, "USES_TYPE", map[string]any{"position": "return"})
	}

	v.push(scope{gid: gid, canonical: canonical, kind: entityType})
	if body := n.ChildByFieldName("body"); body != nil {
		v.walk(body)
	}
	v.pop()
}

// parameters extracts names and annotation types; unannotated parameters
// contribute "Any" so the canonical signature stays stable.
func (v *visitor) parameters(params *sitter.Node) (names, types []string) {
	if params == nil {
		return nil, nil
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		switch p.Type() {
		case "identifier":
			names = append(names, v.text(p))
			types = append(types, "Any")
		case "typed_parameter", "typed_default_parameter":
			name := ""
			for j := 0; j < int(p.NamedChildCount()); j++ {
				if c := p.NamedChild(j); c.Type() == "identifier" {
					name = v.text(c)
					break
				}
			}
			if name == "" {
				name = v.text(p.ChildByFieldName("name"))
			}
			t := v.text(p.ChildByFieldName("type"))
			if t == "" {
				t = "Any"
			}
			names = append(names, name)
			types = append(types, t)
		case "default_parameter":
			names = append(names, v.text(p.ChildByFieldName("name")))
			types = append(types, "Any")
		}
	}
	return names, types
}

func (v *visitor) visitImport(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		module, alias := "", ""
		switch child.Type() {
		case "dotted_name":
			module = v.text(child)
		case "aliased_import":
			module = v.text(child.ChildByFieldName("name"))
			alias = v.text(child.ChildByFieldName("alias"))
		default:
			continue
		}
		if module == "" {
			continue
		}
		v.emitImport(child, module, module, alias, 0)
	}
}

func (v *visitor) visitImportFrom(n *sitter.Node) {
	moduleNode := n.ChildByFieldName("module_name")
	module := v.text(moduleNode)

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if moduleNode != nil && child.StartByte() == moduleNode.StartByte() {
			continue
		}
		name, alias := "", ""
		switch child.Type() {
		case "dotted_name":
			name = v.text(child)
		case "aliased_import":
			name = v.text(child.ChildByFieldName("name"))
			alias = v.text(child.ChildByFieldName("alias"))
		case "wildcard_import":
			name = "*"
		default:
			continue
		}
		if name == "" {
			continue
		}
		v.emitImport(child, name, module, alias, 1)
	}
}

// emitImport adds the Import node and the file-level IMPORTS edge. The edge
// targets the source module path; linking to the imported file happens at
// resolution time.
func (v *visitor) emitImport(n *sitter.Node, importedName, module, alias string, level int) {
	canonical, gid, err := v.ids.Generate(identity.Request{
		FilePath:     v.filePath,
		EntityType:   identity.EntityImport,
		Name:         importedName,
		ParamTypes:   []string{module},
		LanguageHint: language,
	})
	if err != nil {
		v.logger.Warn("import identity failed", slog.String("name", importedName), slog.String("error", err.Error()))
		return
	}

	props := map[string]any{"module": module, "imported_name": importedName}
	if alias != "" {
		props["alias"] = alias
	}
	v.addNode("Import", importedName, canonical, gid, n, props)

	relProps := map[string]any{"imported_name": importedName, "level": level}
	if alias != "" {
		relProps["alias"] = alias
	}
	v.addRel(v.fileGID, module, "IMPORTS", relProps)
}

func (v *visitor) visitAssignment(n *sitter.Node) {
	left := n.ChildByFieldName("left")
	if left != nil && (left.Type() == "identifier" || left.Type() == "attribute") {
		varName := v.text(left)
		entityType := identity.EntityVariable
		analyzerType := "VariableDeclaration"
		if left.Type() == "attribute" {
			entityType = identity.EntityAttribute
		}

		canonical, gid, err := v.ids.Generate(identity.Request{
			FilePath:          v.filePath,
			EntityType:        entityType,
			Name:              varName,
			ParentCanonicalID: v.current().canonical,
			LanguageHint:      language,
		})
		if err == nil {
			props := map[string]any{
				"is_attribute": left.Type() == "attribute",
			}
			if right := n.ChildByFieldName("right"); right != nil {
				props["value_snippet"] = truncate(v.text(right), 100)
				props["value_node_type"] = right.Type()
			}
			if typeNode := n.ChildByFieldName("type"); typeNode != nil {
				annotated := v.text(typeNode)
				props["type_hint"] = annotated
				v.addRel(gid, annotated, "USES_TYPE", map[string]any{"position": "annotation"})
			}
			v.addNode(analyzerType, varName, canonical, gid, left, props)
			v.addRel(v.current().gid, canonical, "CONTAINS", nil)
			v.current().vars[varName] = canonical
		}
	}

	if right := n.ChildByFieldName("right"); right != nil {
		v.walk(right)
	}
}

func (v *visitor) visitCall(n *sitter.Node) {
	funcNode := n.ChildByFieldName("function")
	callTarget := v.text(funcNode)
	line := int(n.StartPoint().Row) + 1

	switch {
	case matchesAny(apiCallPatterns, callTarget):
		v.emitCallHint(n, "ApiCallHint", "ApiCall", "FETCHES_HINT", line, map[string]any{
			"call_target_string": callTarget,
			"url":                truncate(v.firstStringArg(n), 200),
		})
	case matchesAny(dbCallPatterns, callTarget):
		v.emitCallHint(n, "DatabaseQueryHint", "DatabaseQuery", "QUERIES_HINT", line, map[string]any{
			"call_target_string": callTarget,
			"query":              truncate(v.firstStringArg(n), 500),
		})
	case callTarget != "":
		v.addRel(v.current().gid, callTargetCanonical(funcNode, v), "CALLS", map[string]any{
			"call_target_string": callTarget,
			"line":               line,
		})
	}

	// a chained call's inner calls live in the object expression
	if funcNode != nil && funcNode.Type() == "attribute" {
		if obj := funcNode.ChildByFieldName("object"); obj != nil {
			v.walk(obj)
		}
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		v.walk(args)
	}
}

// emitCallHint adds a hint node for an API or DB call site plus the edges
// tying it into the scope.
func (v *visitor) emitCallHint(n *sitter.Node, analyzerType, kind, relType string, line int, props map[string]any) {
	canonical := fmt.Sprintf("%s::%s@%d", v.current().canonical, kind, line)
	gid := identity.GID(language, canonical)

	name := fmt.Sprintf("%s@%d", kind, line)
	v.addNode(analyzerType, name, canonical, gid, n, props)
	v.addRel(v.current().gid, canonical, "CONTAINS", nil)
	v.addRel(v.current().gid, canonical, relType, map[string]any{"line": line})
}

// callTargetCanonical builds the heuristic target canonical for a plain
// call: bare names become module-level functions, attribute calls become
// methods on an object.
func callTargetCanonical(funcNode *sitter.Node, v *visitor) string {
	if funcNode == nil {
		return ""
	}
	switch funcNode.Type() {
	case "identifier":
		return language + "::Function::" + v.text(funcNode)
	case "attribute":
		obj := v.text(funcNode.ChildByFieldName("object"))
		attr := v.text(funcNode.ChildByFieldName("attribute"))
		return fmt.Sprintf("%s::Object::%s::Method::%s", language, obj, attr)
	}
	return language + "::Function::" + v.text(funcNode)
}

// firstStringArg returns the unquoted text of the call's first string
// argument, if any.
func (v *visitor) firstStringArg(call *sitter.Node) string {
	args := call.ChildByFieldName("arguments")
	if args == nil {
		return ""
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		arg := args.NamedChild(i)
		if arg.Type() == "string" {
			return unquote(v.text(arg))
		}
	}
	return ""
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, p := range patterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func unquote(s string) string {
	s = strings.TrimPrefix(s, "f")
	s = strings.TrimPrefix(s, "r")
	s = strings.TrimPrefix(s, "b")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(s, q) && strings.HasSuffix(s, q) && len(s) >= 2*len(q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// truncate cuts s to at most max bytes without splitting a rune.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
