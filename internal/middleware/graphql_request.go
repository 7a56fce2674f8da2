package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"

	"tidb-hierarchy/internal/logging"
	"tidb-hierarchy/internal/observability"
)

type graphQLRequest struct {
	Query         string `json:"query"`
	OperationName string `json:"operationName"`
}

type requestInfoKey struct{}

// RequestInfoFromContext returns the analysis stored by GraphQLRequestMiddleware.
func RequestInfoFromContext(ctx context.Context) (observability.RequestInfo, bool) {
	if ctx == nil {
		return observability.RequestInfo{}, false
	}
	info, ok := ctx.Value(requestInfoKey{}).(observability.RequestInfo)
	return info, ok
}

// GraphQLRequestMiddleware analyzes the GraphQL document once, stores the
// result in the request context, and attaches operation fields to the request
// logger.
func GraphQLRequestMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query, operationName := extractGraphQLRequest(r)
			if strings.TrimSpace(query) == "" {
				next.ServeHTTP(w, r)
				return
			}

			info := analyzeQuery(query, operationName)
			ctx := context.WithValue(r.Context(), requestInfoKey{}, info)
			if fields := observability.GraphQLLogFields(ctx, info); len(fields) > 0 {
				ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithFields(fields...))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractGraphQLRequest(r *http.Request) (string, string) {
	if r.Method == http.MethodGet {
		return r.URL.Query().Get("query"), r.URL.Query().Get("operationName")
	}

	if r.Method != http.MethodPost || r.Body == nil {
		return "", ""
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return "", ""
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	if strings.Contains(r.Header.Get("Content-Type"), "application/graphql") {
		return string(body), ""
	}

	var payload graphQLRequest
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", ""
	}
	return payload.Query, payload.OperationName
}

// analyzeQuery summarises the selected operation. Documents that do not parse
// keep only their size and name so that the handler can report the error.
func analyzeQuery(query, operationName string) observability.RequestInfo {
	info := observability.RequestInfo{
		OperationName: operationName,
		DocumentSize:  len(query),
	}

	doc, err := parser.Parse(parser.ParseParams{
		Source: source.NewSource(&source.Source{
			Body: []byte(query),
			Name: "graphql",
		}),
	})
	if err != nil {
		return info
	}

	fragments := make(map[string]*ast.FragmentDefinition)
	var target, first *ast.OperationDefinition
	for _, def := range doc.Definitions {
		switch d := def.(type) {
		case *ast.FragmentDefinition:
			fragments[d.Name.Value] = d
		case *ast.OperationDefinition:
			if first == nil {
				first = d
			}
			if operationName != "" && d.Name != nil && d.Name.Value == operationName {
				target = d
			}
		}
	}
	if target == nil && operationName == "" {
		target = first
	}
	if target == nil {
		return info
	}

	info.OperationType = string(target.Operation)
	info.VariableCount = len(target.VariableDefinitions)
	if info.OperationName == "" && target.Name != nil {
		info.OperationName = target.Name.Value
	}
	info.RootFields = rootFields(target.SelectionSet, fragments, map[string]bool{})
	return info
}

// rootFields lists the distinct top-level field names, looking through
// fragments.
func rootFields(set *ast.SelectionSet, fragments map[string]*ast.FragmentDefinition, visited map[string]bool) []string {
	if set == nil {
		return nil
	}
	var names []string
	seen := make(map[string]bool)
	add := func(more []string) {
		for _, name := range more {
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	for _, selection := range set.Selections {
		switch sel := selection.(type) {
		case *ast.Field:
			add([]string{sel.Name.Value})
		case *ast.InlineFragment:
			add(rootFields(sel.SelectionSet, fragments, visited))
		case *ast.FragmentSpread:
			name := sel.Name.Value
			if visited[name] {
				continue
			}
			visited[name] = true
			if frag, ok := fragments[name]; ok {
				add(rootFields(frag.SelectionSet, fragments, visited))
			}
		}
	}
	return names
}
