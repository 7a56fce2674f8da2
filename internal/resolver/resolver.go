// Package resolver exposes a hierarchy table over GraphQL. Node lookups return
// rows of the configured table; every node can list its ancestors, and sibling
// nodes in one response share a single batched traversal.
package resolver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/graphql-go/graphql"
	"go.opentelemetry.io/otel/attribute"

	"tidb-hierarchy/internal/loader"
	"tidb-hierarchy/internal/recursive"
	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/scalars"
)

var errInvalidKey = errors.New("invalid node key")

// Options configures a Resolver.
type Options struct {
	// IntegerKeys converts ID arguments to int64 before they reach the database.
	IntegerKeys bool
}

// Resolver builds the GraphQL schema for one hierarchy definition.
type Resolver struct {
	loader         *loader.Loader
	def            relation.Definition
	integerKeys    bool
	nodeType       *graphql.Object
	jsonType       *graphql.Scalar
	nonNegativeInt *graphql.Scalar
}

// nodeValue is the source value of a Node field.
type nodeValue struct {
	record relation.Record
	// depth and path are set for nodes reached through a traversal.
	depth   *int
	path    recursive.Path
	linkKey interface{}
	// batchKey names the sibling list the node was resolved in.
	batchKey string
}

// NewResolver creates a resolver for def backed by l.
func NewResolver(l *loader.Loader, def relation.Definition, opts Options) *Resolver {
	def.Naming = def.Naming.WithDefaults()
	return &Resolver{
		loader:         l,
		def:            def,
		integerKeys:    opts.IntegerKeys,
		jsonType:       scalars.JSON(),
		nonNegativeInt: scalars.NonNegativeInt(),
	}
}

// BuildGraphQLSchema constructs the executable schema.
func (r *Resolver) BuildGraphQLSchema() (graphql.Schema, error) {
	if err := r.def.Validate(); err != nil {
		return graphql.Schema{}, err
	}
	r.nodeType = r.buildNodeType()

	query := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"node": &graphql.Field{
				Type:        r.nodeType,
				Description: fmt.Sprintf("Look up one row of %s by key.", r.def.Table),
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.ID)},
				},
				Resolve: r.resolveNode,
			},
			"nodes": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.nodeType))),
				Description: fmt.Sprintf("Look up rows of %s by key, ordered by key. Unknown keys are skipped.", r.def.Table),
				Args: graphql.FieldConfigArgument{
					"keys": &graphql.ArgumentConfig{
						Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(graphql.ID))),
					},
				},
				Resolve: r.resolveNodes,
			},
			"nodesWithAncestor": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(r.nodeType))),
				Description: "Rows having at least one ancestor whose column equals value. Without a column, rows having any ancestor.",
				Args: graphql.FieldConfigArgument{
					"column": &graphql.ArgumentConfig{Type: graphql.String},
					"value":  &graphql.ArgumentConfig{Type: r.jsonType},
				},
				Resolve: r.resolveNodesWithAncestor,
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{Query: query})
}

func (r *Resolver) buildNodeType() *graphql.Object {
	var node *graphql.Object
	node = graphql.NewObject(graphql.ObjectConfig{
		Name:        "Node",
		Description: fmt.Sprintf("A row of %s.", r.def.Table),
		Fields: graphql.FieldsThunk(func() graphql.Fields {
			return graphql.Fields{
				"key": &graphql.Field{
					Type: graphql.NewNonNull(graphql.ID),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						n, ok := p.Source.(*nodeValue)
						if !ok {
							return nil, nil
						}
						return recursive.KeyString(n.record[r.def.KeyColumn]), nil
					},
				},
				"parentKey": &graphql.Field{
					Type:        graphql.ID,
					Description: "Key of the parent row; null for roots and for edge table hierarchies.",
					Resolve:     r.resolveParentKey,
				},
				"depth": &graphql.Field{
					Type:        graphql.Int,
					Description: "Signed distance from the origin: 0 for the origin, -1 for its parent. Null outside a traversal.",
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						n, ok := p.Source.(*nodeValue)
						if !ok || n.depth == nil {
							return nil, nil
						}
						return *n.depth, nil
					},
				},
				"path": &graphql.Field{
					Type:        graphql.NewList(graphql.NewNonNull(graphql.String)),
					Description: "Keys visited from the origin to this row. Null outside a traversal.",
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						n, ok := p.Source.(*nodeValue)
						if !ok || n.path == nil {
							return nil, nil
						}
						return []string(n.path), nil
					},
				},
				"linkKey": &graphql.Field{
					Type:        graphql.ID,
					Description: "Key of the child row this ancestor was reached from.",
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						n, ok := p.Source.(*nodeValue)
						if !ok || n.linkKey == nil {
							return nil, nil
						}
						return recursive.KeyString(n.linkKey), nil
					},
				},
				"attributes": &graphql.Field{
					Type:        graphql.NewNonNull(r.jsonType),
					Description: "The projected columns of the row.",
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						n, ok := p.Source.(*nodeValue)
						if !ok {
							return nil, nil
						}
						return map[string]interface{}(n.record), nil
					},
				},
				"ancestors": &graphql.Field{
					Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(node))),
					Description: "Ancestors of this row, nearest first.",
					Args: graphql.FieldConfigArgument{
						"andSelf": &graphql.ArgumentConfig{
							Type:        graphql.Boolean,
							Description: "Include the row itself at depth 0.",
						},
						"maxDepth": &graphql.ArgumentConfig{
							Type:        r.nonNegativeInt,
							Description: "Stop after this many levels; 0 means unbounded.",
						},
					},
					Resolve: r.resolveAncestors,
				},
			}
		}),
	})
	return node
}

func (r *Resolver) resolveParentKey(p graphql.ResolveParams) (interface{}, error) {
	n, ok := p.Source.(*nodeValue)
	if !ok || r.def.EdgeTable != "" || r.def.ParentColumn == "" {
		return nil, nil
	}
	value := n.record[r.def.ParentColumn]
	if value == nil {
		return nil, nil
	}
	return recursive.KeyString(value), nil
}

func (r *Resolver) resolveNode(p graphql.ResolveParams) (result interface{}, err error) {
	ctx, span := startResolverSpan(p.Context, "graphql.resolve.node",
		attribute.String("db.table", r.def.Table),
	)
	defer func() { finishResolverSpan(span, err, "") }()

	key, err := r.keyArg(p.Args["key"])
	if err != nil {
		return nil, err
	}
	records, err := r.loader.Nodes(ctx, r.def, []interface{}{key})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &nodeValue{record: records[0]}, nil
}

func (r *Resolver) resolveNodes(p graphql.ResolveParams) (result interface{}, err error) {
	ctx, span := startResolverSpan(p.Context, "graphql.resolve.nodes",
		attribute.String("db.table", r.def.Table),
	)
	defer func() { finishResolverSpan(span, err, "") }()

	rawKeys, _ := p.Args["keys"].([]interface{})
	keys := make([]interface{}, 0, len(rawKeys))
	for _, raw := range rawKeys {
		key, err := r.keyArg(raw)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	span.SetAttributes(attribute.Int("hierarchy.keys", len(keys)))

	records, err := r.loader.Nodes(ctx, r.def, keys)
	if err != nil {
		return nil, err
	}
	return r.seedNodes(p, records), nil
}

func (r *Resolver) resolveNodesWithAncestor(p graphql.ResolveParams) (result interface{}, err error) {
	column, _ := p.Args["column"].(string)
	ctx, span := startResolverSpan(p.Context, "graphql.resolve.nodes_with_ancestor",
		attribute.String("db.table", r.def.Table),
		attribute.String("hierarchy.filter.column", column),
	)
	defer func() { finishResolverSpan(span, err, "") }()

	filter := loader.AncestorFilter{Column: column, Value: p.Args["value"]}
	if column != "" && filter.Value == nil {
		return nil, fmt.Errorf("value is required when column is set")
	}
	records, err := r.loader.NodesWithAncestor(ctx, r.def, filter)
	if err != nil {
		return nil, err
	}
	return r.seedNodes(p, records), nil
}

// seedNodes wraps records as sibling nodes and registers them for batched
// ancestor lookups.
func (r *Resolver) seedNodes(p graphql.ResolveParams, records []relation.Record) []*nodeValue {
	batchKey := parentKeyFromResolve(p)
	loader.SeedOrigins(p.Context, batchKey, records)

	nodes := make([]*nodeValue, len(records))
	for i, record := range records {
		nodes[i] = &nodeValue{record: record, batchKey: batchKey}
	}
	return nodes
}

func (r *Resolver) resolveAncestors(p graphql.ResolveParams) (result interface{}, err error) {
	n, ok := p.Source.(*nodeValue)
	if !ok || n == nil {
		return nil, nil
	}
	def := r.definitionForArgs(p.Args)

	ctx, span := startResolverSpan(p.Context, "graphql.resolve.ancestors",
		attribute.String("db.table", def.Table),
		attribute.String("hierarchy.mode", def.Mode().String()),
		attribute.Int("hierarchy.max_depth", def.MaxDepth),
	)
	outcome := ""
	defer func() { finishResolverSpan(span, err, outcome) }()

	rows, batched, err := r.loader.BatchedAncestors(ctx, def, n.batchKey, n.record)
	if err != nil {
		return nil, err
	}
	if batched {
		outcome = "batched"
	} else {
		outcome = "single"
		if rows, err = r.loader.Ancestors(ctx, def, n.record); err != nil {
			return nil, err
		}
	}
	span.SetAttributes(attribute.Int("hierarchy.rows", len(rows)))

	batchKey := parentKeyFromResolve(p)
	origins := make([]relation.Record, len(rows))
	nodes := make([]*nodeValue, len(rows))
	for i := range rows {
		row := rows[i]
		depth := row.Depth
		origins[i] = row.Attributes
		nodes[i] = &nodeValue{
			record:   row.Attributes,
			depth:    &depth,
			path:     row.Path,
			linkKey:  row.LinkKey,
			batchKey: batchKey,
		}
	}
	loader.SeedOrigins(ctx, batchKey, origins)
	return nodes, nil
}

// definitionForArgs applies the per-field overrides of the ancestors field.
func (r *Resolver) definitionForArgs(args map[string]interface{}) relation.Definition {
	def := r.def
	if andSelf, ok := args["andSelf"].(bool); ok {
		def.AndSelf = andSelf
	}
	if maxDepth, ok := args["maxDepth"].(int); ok {
		def.MaxDepth = maxDepth
	}
	return def
}

func (r *Resolver) keyArg(raw interface{}) (interface{}, error) {
	key, ok := raw.(string)
	if !ok || strings.TrimSpace(key) == "" {
		return nil, fmt.Errorf("%w: %v", errInvalidKey, raw)
	}
	if !r.integerKeys {
		return key, nil
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(key), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q is not an integer", errInvalidKey, key)
	}
	return parsed, nil
}
