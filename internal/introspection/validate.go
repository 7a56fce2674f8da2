package introspection

import (
	"context"
	"fmt"
	"strings"

	"tidb-hierarchy/internal/relation"
	"tidb-hierarchy/internal/sqlutil"
)

// ValidateDefinition checks def against the live schema. It returns warnings
// for settings that work but are likely mistakes, and an error wrapping
// relation.ErrInvalidDefinition when a referenced column is missing.
func ValidateDefinition(ctx context.Context, db Queryer, dialect sqlutil.Dialect, schema string, def relation.Definition) ([]string, error) {
	if err := def.Validate(); err != nil {
		return nil, err
	}

	nodes, err := LoadTable(ctx, db, dialect, schema, def.Table)
	if err != nil {
		return nil, err
	}

	var problems, warnings []string
	key := nodes.Column(def.KeyColumn)
	if key == nil {
		problems = append(problems, fmt.Sprintf("key column %s.%s does not exist", def.Table, def.KeyColumn))
	} else {
		if !key.IsPrimaryKey {
			warnings = append(warnings, fmt.Sprintf("key column %s.%s is not the primary key; duplicate keys will repeat ancestors", def.Table, def.KeyColumn))
		}
		if key.IsNullable {
			warnings = append(warnings, fmt.Sprintf("key column %s.%s is nullable", def.Table, def.KeyColumn))
		}
	}

	if def.EdgeTable == "" {
		parent := nodes.Column(def.ParentColumn)
		if parent == nil {
			problems = append(problems, fmt.Sprintf("parent column %s.%s does not exist", def.Table, def.ParentColumn))
		} else if !parent.IsNullable {
			warnings = append(warnings, fmt.Sprintf("parent column %s.%s is not nullable; roots must point at a non-existent key", def.Table, def.ParentColumn))
		}
	} else {
		edges, err := LoadTable(ctx, db, dialect, schema, def.EdgeTable)
		if err != nil {
			return warnings, err
		}
		for _, name := range []string{def.EdgeChildColumn, def.EdgeParentColumn} {
			if edges.Column(name) == nil {
				problems = append(problems, fmt.Sprintf("edge column %s.%s does not exist", def.EdgeTable, name))
			}
		}
	}

	for _, name := range def.Columns {
		if nodes.Column(name) == nil {
			problems = append(problems, fmt.Sprintf("projected column %s.%s does not exist", def.Table, name))
		}
	}

	naming := def.Naming.WithDefaults()
	for _, reserved := range []string{naming.Depth, naming.Path, naming.Link} {
		if len(def.Columns) == 0 && nodes.Column(reserved) != nil {
			problems = append(problems, fmt.Sprintf("column %s.%s collides with a traversal column; rename it or restrict the projection", def.Table, reserved))
		}
	}

	if len(problems) > 0 {
		return warnings, fmt.Errorf("%w: %s", relation.ErrInvalidDefinition, strings.Join(problems, "; "))
	}
	return warnings, nil
}
