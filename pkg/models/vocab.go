package models

// Canonical relationship types. Ingestion interpolates relationship types
// into Cypher, so the set is closed and every type is validated against it
// first.
const (
	RelContains     = "CONTAINS"
	RelCalls        = "CALLS"
	RelImports      = "IMPORTS"
	RelReferences   = "REFERENCES"
	RelInheritsFrom = "INHERITS_FROM"
	RelImplements   = "IMPLEMENTS"
	RelHasParameter = "HAS_PARAMETER"
	RelReturns      = "RETURNS"
	RelTypeArgument = "TYPE_ARGUMENT"
	RelCallsAPI     = "CALLS_API"
	RelQueries      = "QUERIES"
	RelQueriesTable = "QUERIES_TABLE"
	RelModifiesTable = "MODIFIES_TABLE"
	RelReadsTable   = "READS_TABLE"
	RelUsesColumn   = "USES_COLUMN"
	RelUsesEnvVar   = "USES_ENVIRONMENT_VARIABLE"
	RelUsesType     = "USES_TYPE"
	RelReads        = "READS"
	RelWrites       = "WRITES"
	RelAccesses     = "ACCESSES"
	RelRelatedTo    = "RELATED_TO"
	RelDefines      = "DEFINES"
)

var relationshipVocabulary = map[string]bool{
	RelContains: true, RelCalls: true, RelImports: true, RelReferences: true,
	RelInheritsFrom: true, RelImplements: true, RelHasParameter: true,
	RelReturns: true, RelTypeArgument: true, RelCallsAPI: true,
	RelQueries: true, RelQueriesTable: true, RelModifiesTable: true,
	RelReadsTable: true, RelUsesColumn: true, RelUsesEnvVar: true,
	RelUsesType: true, RelReads: true, RelWrites: true, RelAccesses: true,
	RelRelatedTo: true, RelDefines: true,
}

// ValidRelationshipType reports whether t belongs to the closed canonical
// vocabulary.
func ValidRelationshipType(t string) bool {
	return relationshipVocabulary[t]
}
