package analyzer

import (
	"bufio"
	"bytes"
	"strings"

	"github.com/bmcp/codegraph/pkg/models"
)

// hint comment directives and the relationship type each emits.
var hintDirectives = map[string]string{
	"bmcp:call-target": models.RelCalls,
	"bmcp:imports":     models.RelImports,
	"bmcp:uses-type":   models.RelUsesType,
}

// ScanHintComments extracts manual hint directives of the form
//
//	# bmcp:call-target <ID>
//
// from source and returns synthetic relationships originating from
// sourceGID, marked with manual_hint so they are distinguishable from
// analyzed edges. The comment marker is per language ("#", "--", "//").
func ScanHintComments(source []byte, commentMarker, sourceGID string) []models.RelStub {
	var rels []models.RelStub

	scanner := bufio.NewScanner(bytes.NewReader(source))
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		idx := strings.Index(text, commentMarker)
		if idx < 0 {
			continue
		}
		comment := strings.TrimSpace(text[idx+len(commentMarker):])

		for directive, relType := range hintDirectives {
			rest, ok := strings.CutPrefix(comment, directive)
			if !ok {
				continue
			}
			target := strings.TrimSpace(rest)
			if target == "" {
				continue
			}
			rels = append(rels, models.RelStub{
				SourceGID:         sourceGID,
				TargetCanonicalID: target,
				Type:              relType,
				Properties: map[string]any{
					"manual_hint": true,
					"line":        line,
				},
			})
			break
		}
	}
	return rels
}
