package graph

// Cypher for the code graph. Labels and relationship types are interpolated
// into queries, so every interpolation site goes through validLabel or the
// closed relationship vocabulary first.

// indexedLabels get a canonical_id index; relationship targets are matched
// by canonical_id, so these make pending resolution and target MATCH fast.
var indexedLabels = []string{"File", "Class", "Function", "Method", "Table", "Column", "ApiEndpoint", "HtmlElement"}

const (
	// createCanonicalIndex is formatted with (index name, label).
	createCanonicalIndex = `CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.canonical_id)`

	// upsertNodes is formatted with a colon-joined validated label list.
	// MERGE keys on gid; properties are replaced additively so re-ingesting
	// the same result is a no-op.
	upsertNodes = `
UNWIND $batch AS row
MERGE (n:%s {gid: row.gid})
ON CREATE SET n += row.props
ON MATCH SET n += row.props
RETURN count(n) AS count
`

	// upsertRelationships is formatted with a validated relationship type.
	// Rows whose source or target is missing produce no output row; the
	// caller turns those into PendingRelationship nodes.
	upsertRelationships = `
UNWIND $batch AS row
MATCH (source {gid: row.source_gid})
MATCH (target {canonical_id: row.target_canonical_id})
MERGE (source)-[r:%s]->(target)
SET r += row.props
RETURN row.source_gid AS source_gid, row.target_canonical_id AS target_canonical_id
`

	// createPendingRelationships materializes placeholders for edges whose
	// endpoint is not in the graph yet. Properties travel as a JSON string
	// because Neo4j properties cannot hold maps.
	createPendingRelationships = `
UNWIND $batch AS row
MERGE (pr:PendingRelationship {
	sourceGid: row.source_gid,
	targetCanonicalId: row.target_canonical_id,
	type: row.type
})
SET pr.propsJson = row.props_json
RETURN count(pr) AS count
`

	pendingForTarget = `
MATCH (pr:PendingRelationship {targetCanonicalId: $canonical_id})
RETURN pr.sourceGid AS source_gid, pr.targetCanonicalId AS target_canonical_id,
       pr.type AS type, pr.propsJson AS props_json
`

	pendingForSource = `
MATCH (source {canonical_id: $canonical_id})
MATCH (pr:PendingRelationship {sourceGid: source.gid})
RETURN pr.sourceGid AS source_gid, pr.targetCanonicalId AS target_canonical_id,
       pr.type AS type, pr.propsJson AS props_json
`

	pendingBatch = `
MATCH (pr:PendingRelationship)
RETURN pr.sourceGid AS source_gid, pr.targetCanonicalId AS target_canonical_id,
       pr.type AS type, pr.propsJson AS props_json
LIMIT $limit
`

	// resolvePending is formatted with a validated relationship type. The
	// placeholder is deleted in the same statement that materializes the
	// real edge.
	resolvePending = `
UNWIND $batch AS row
MATCH (source {gid: row.source_gid})
MATCH (target {canonical_id: row.target_canonical_id})
MATCH (pr:PendingRelationship {sourceGid: row.source_gid, targetCanonicalId: row.target_canonical_id, type: $type})
MERGE (source)-[r:%s]->(target)
SET r += row.props
DELETE pr
RETURN count(pr) AS resolved
`

	// resolvePendingByName is formatted with a validated relationship type.
	// Used for CALLS placeholders whose target is an analyzer heuristic
	// (bare function or method name) rather than a definition canonical:
	// the first definition carrying that name wins.
	resolvePendingByName = `
UNWIND $batch AS row
MATCH (source {gid: row.source_gid})
MATCH (pr:PendingRelationship {sourceGid: row.source_gid, targetCanonicalId: row.target_canonical_id, type: $type})
OPTIONAL MATCH (target)
WHERE (target:Function OR target:Method) AND target.name = row.name
WITH row, source, pr, collect(target)[0] AS target
WHERE target IS NOT NULL
MERGE (source)-[r:%s]->(target)
SET r += row.props
DELETE pr
RETURN count(pr) AS resolved
`

	// pruneFileStaleNodes removes nodes owned by a file that the latest
	// analysis of that file no longer produced, together with placeholders
	// referencing them.
	pruneFileStaleNodes = `
MATCH (n {file_path: $path})
WHERE NOT n.gid IN $keep
OPTIONAL MATCH (pr:PendingRelationship)
WHERE pr.sourceGid = n.gid OR pr.targetCanonicalId = n.canonical_id
DETACH DELETE n, pr
RETURN count(n) AS deleted
`

	// pruneFileEdges drops the outgoing edges of a file's surviving nodes.
	// The analyzer result carries the authoritative edge set, which is
	// re-merged right after.
	pruneFileEdges = `
MATCH (n {file_path: $path})-[r]->()
DELETE r
RETURN count(r) AS deleted
`

	// deleteNodeCascade removes a node, everything it transitively contains
	// or defines, and any placeholders referencing the removed nodes.
	deleteNodeCascade = `
MATCH (n {gid: $gid})
OPTIONAL MATCH (n)-[:CONTAINS|DEFINES*1..]->(child)
WITH collect(DISTINCT n) + collect(DISTINCT child) AS nodes
OPTIONAL MATCH (pr:PendingRelationship)
WHERE pr.sourceGid IN [x IN nodes | x.gid]
   OR pr.targetCanonicalId IN [x IN nodes | x.canonical_id]
WITH nodes, collect(pr) AS pendings
FOREACH (p IN pendings | DETACH DELETE p)
WITH nodes
UNWIND nodes AS node
DETACH DELETE node
RETURN count(*) AS deleted
`

	deleteRelationship = `
MATCH (source {gid: $source_gid})-[r]->(target {canonical_id: $target_canonical_id})
WHERE $type = '' OR type(r) = $type
DELETE r
RETURN count(r) AS deleted
`

	deletePendingRelationship = `
MATCH (pr:PendingRelationship {sourceGid: $source_gid, targetCanonicalId: $target_canonical_id})
WHERE $type = '' OR pr.type = $type
DELETE pr
RETURN count(pr) AS deleted
`

	// materializeExternalTargets creates a synthetic External node per
	// pending target that nothing in the graph defines, typically calls
	// into the standard library or third-party code. The next resolution
	// pass attaches the waiting edges to it.
	materializeExternalTargets = `
MATCH (pr:PendingRelationship)
WHERE NOT EXISTS { MATCH (n {canonical_id: pr.targetCanonicalId}) }
WITH DISTINCT pr.targetCanonicalId AS cid
MERGE (n:External {canonical_id: cid})
ON CREATE SET n.type = 'External', n.name = cid
RETURN count(n) AS created
`

	wipeGraph = `MATCH (n) DETACH DELETE n`

	countPending = `MATCH (pr:PendingRelationship) RETURN count(pr) AS count`

	nodeByGID = `
MATCH (n {gid: $gid})
RETURN n.gid AS gid, n.canonical_id AS canonical_id, labels(n) AS labels, properties(n) AS props
`

	nodeByCanonicalID = `
MATCH (n {canonical_id: $canonical_id})
RETURN n.gid AS gid, n.canonical_id AS canonical_id, labels(n) AS labels, properties(n) AS props
`

	callersOfNode = `
MATCH (caller)-[:CALLS|CALLS_API]->(n {gid: $gid})
RETURN caller.gid AS gid, caller.canonical_id AS canonical_id, labels(caller) AS labels, properties(caller) AS props
`

	calleesOfNode = `
MATCH (n {gid: $gid})-[:CALLS|CALLS_API]->(callee)
RETURN callee.gid AS gid, callee.canonical_id AS canonical_id, labels(callee) AS labels, properties(callee) AS props
`

	endpointsByPath = `
MATCH (n:ApiEndpoint)
WHERE n.path = $path OR n.name = $path
RETURN n.gid AS gid, n.canonical_id AS canonical_id, labels(n) AS labels, properties(n) AS props
`

	apiCallsByPath = `
MATCH (n:ApiCall)
WHERE n.url_path = $path
RETURN n.gid AS gid, n.canonical_id AS canonical_id, labels(n) AS labels, properties(n) AS props
`

	tablesByName = `
MATCH (n:Table)
WHERE toLower(n.name) = toLower($name)
RETURN n.gid AS gid, n.canonical_id AS canonical_id, labels(n) AS labels, properties(n) AS props
`

	queriesReferencingTable = `
MATCH (n:DatabaseQuery)
WHERE $name IN n.tables
RETURN n.gid AS gid, n.canonical_id AS canonical_id, labels(n) AS labels, properties(n) AS props
`
)
