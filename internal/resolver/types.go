package resolver

import "github.com/bmcp/codegraph/pkg/models"

// nodeTypeMap maps analyzer-emitted node types to canonical graph labels.
// Unmapped types fall back to Unknown and keep an Original_<type> label.
var nodeTypeMap = map[string]string{
	"File":                "File",
	"FunctionDefinition":  "Function",
	"ClassDefinition":     "Class",
	"MethodDefinition":    "Method",
	"VariableDeclaration": "Variable",
	"Import":              "Import",
	"Parameter":           "Parameter",
	"Module":              "Module",
	"InterfaceDefinition": "Interface",
	"EnumDefinition":      "Enum",
	"StructDefinition":    "Struct",
	"TypeAlias":           "TypeAlias",

	"ApiEndpointHint":         "ApiEndpoint",
	"DatabaseTableHint":       "Table",
	"DatabaseColumnHint":      "Column",
	"ExternalUrlHint":         "ExternalUrl",
	"EnvironmentVariableHint": "EnvironmentVariable",
	"ApiCallHint":             "ApiCall",
	"DatabaseQueryHint":       "DatabaseQuery",

	"CodeIdentifier": "CodeIdentifier",
	"Unknown":        "Unknown",
}

// relTypeMap maps analyzer-emitted relationship types to the canonical
// vocabulary. Unmapped types fall back to RELATED_TO.
var relTypeMap = map[string]string{
	"CALLS":         models.RelCalls,
	"REFERENCES":    models.RelReferences,
	"DEFINES":       models.RelDefines,
	"CONTAINS":      models.RelContains,
	"IMPORTS":       models.RelImports,
	"INHERITS_FROM": models.RelInheritsFrom,
	"IMPLEMENTS":    models.RelImplements,
	"HAS_PARAMETER": models.RelHasParameter,
	"RETURNS":       models.RelReturns,
	"TYPE_ARGUMENT": models.RelTypeArgument,

	"CALLS_HINT":        models.RelCalls,
	"FETCHES_HINT":      models.RelCallsAPI,
	"QUERIES_HINT":      models.RelQueries,
	"QUERIES_DB":        models.RelQueries,
	"READS_HINT":        models.RelReads,
	"WRITES_HINT":       models.RelWrites,
	"ACCESSES_HINT":     models.RelAccesses,
	"USES_ENV_VAR_HINT": models.RelUsesEnvVar,
	"USES_TYPE":         models.RelUsesType,
	"READS":             models.RelReads,
	"WRITES":            models.RelWrites,
	"ACCESSES":          models.RelAccesses,

	"CALLS_API":      models.RelCallsAPI,
	"QUERIES_TABLE":  models.RelQueriesTable,
	"MODIFIES_TABLE": models.RelModifiesTable,
	"READS_TABLE":    models.RelReadsTable,
	"USES_COLUMN":    models.RelUsesColumn,

	"RELATED_TO": models.RelRelatedTo,
}

// definitionTypes are the canonical labels that count as definitions for
// duplicate detection within a batch.
var definitionTypes = map[string]bool{
	"Function": true, "Class": true, "Method": true, "Interface": true,
	"Enum": true, "Struct": true, "Table": true, "Column": true,
	"ApiEndpoint": true, "EnvironmentVariable": true, "File": true,
	"Module": true, "Variable": true,
}
