package rag

import (
	"fmt"
	"strings"
)

// Scope identifies who is asking, for visibility filtering.
type Scope struct {
	Owner string
	Team  string
}

// BuildFilterExpr renders the Milvus boolean expression for one retrieval
// pass: the caller's visibility scope, narrowed by document titles for
// document requests. Multi-step questions search the full visible corpus
// because each sub-query targets a different slice of it.
func BuildFilterExpr(intent string, scope Scope, docTitles []string) string {
	clauses := []string{`visibility == "public"`}
	if scope.Owner != "" {
		clauses = append(clauses, fmt.Sprintf(`owner == %s`, quoteExpr(scope.Owner)))
	}
	if scope.Team != "" {
		clauses = append(clauses, fmt.Sprintf(`(visibility == "org" && team == %s)`, quoteExpr(scope.Team)))
	}
	expr := "(" + strings.Join(clauses, " || ") + ")"

	if intent == IntentDocRequest && len(docTitles) > 0 {
		quoted := make([]string, 0, len(docTitles))
		seen := make(map[string]bool)
		for _, t := range docTitles {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			quoted = append(quoted, quoteExpr(t))
		}
		if len(quoted) > 0 {
			expr += fmt.Sprintf(" && doc_title in [%s]", strings.Join(quoted, ", "))
		}
	}

	return expr
}

// quoteExpr escapes a string literal for a Milvus expression.
func quoteExpr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
