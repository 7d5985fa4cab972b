package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nimburion/entitykit/pkg/fieldtype"
	"github.com/nimburion/entitykit/pkg/persistence/dao/mongodao"
	"github.com/nimburion/entitykit/pkg/persistence/dao/sqldao"
	"github.com/nimburion/entitykit/pkg/persistence/query"
)

// CompileResult is the rendered form of a filter and sort expression.
type CompileResult struct {
	Backend string `json:"backend" yaml:"backend"`
	Where   string `json:"where,omitempty" yaml:"where,omitempty"`
	Args    []any  `json:"args,omitempty" yaml:"args,omitempty"`
	OrderBy string `json:"order_by,omitempty" yaml:"order_by,omitempty"`
	Filter  string `json:"filter,omitempty" yaml:"filter,omitempty"`
	Sort    string `json:"sort,omitempty" yaml:"sort,omitempty"`
}

func newCompileCommand() *cobra.Command {
	var (
		fields  []string
		filter  string
		sort    string
		backend string
		dialect string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a filter and sort expression for a storage backend",
		Example: `  entityctl compile --field name --field stock:int:qty --filter 'stock>5;name==b*' --sort -stock
  entityctl compile --field name --filter 'name=in=(a,b)' --backend mongo`,
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, err := parseSchemaFields(fields)
			if err != nil {
				return err
			}
			result, err := compileExpression(schema, filter, sort, backend, dialect)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, result)
		},
	}

	cmd.Flags().StringArrayVar(&fields, "field", nil, "queryable field as name[:kind[:column]] (repeatable)")
	cmd.Flags().StringVar(&filter, "filter", "", "filter expression")
	cmd.Flags().StringVar(&sort, "sort", "", "sort expression, e.g. -stock,name")
	cmd.Flags().StringVar(&backend, "backend", "sql", "target backend (sql, mongo)")
	cmd.Flags().StringVar(&dialect, "dialect", sqldao.Postgres.Name, "SQL dialect (postgres, mysql)")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "output format (json, yaml)")
	return cmd
}

// parseSchemaFields builds a query schema from name[:kind[:column]] specs.
func parseSchemaFields(specs []string) (*query.Schema, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one --field is required")
	}
	fields := make([]query.Field, 0, len(specs))
	for _, raw := range specs {
		parts := strings.SplitN(raw, ":", 3)
		f := query.Field{Name: strings.TrimSpace(parts[0])}
		if len(parts) > 1 {
			f.Kind = fieldtype.Kind(strings.ToLower(strings.TrimSpace(parts[1])))
		}
		if len(parts) > 2 {
			f.Column = strings.TrimSpace(parts[2])
		}
		fields = append(fields, f)
	}
	return query.NewSchema(fields...)
}

func compileExpression(schema *query.Schema, filter, sort, backend, dialectName string) (CompileResult, error) {
	pred, err := query.Parse(filter, schema)
	if err != nil {
		return CompileResult{}, err
	}
	orders, err := query.ParseOrder(sort, schema)
	if err != nil {
		return CompileResult{}, err
	}

	switch strings.ToLower(backend) {
	case "sql":
		d, ok := sqldao.DialectFor(dialectName)
		if !ok {
			return CompileResult{}, fmt.Errorf("unsupported dialect %q (supported: postgres, mysql)", dialectName)
		}
		where, args, err := sqldao.Compile(d, pred)
		if err != nil {
			return CompileResult{}, err
		}
		return CompileResult{
			Backend: "sql/" + d.Name,
			Where:   where,
			Args:    args,
			OrderBy: sqldao.OrderBy(d, orders),
		}, nil
	case "mongo", "mongodb":
		f, err := mongodao.Filter(pred)
		if err != nil {
			return CompileResult{}, err
		}
		filterJSON, err := bson.MarshalExtJSON(f, false, false)
		if err != nil {
			return CompileResult{}, fmt.Errorf("render filter: %w", err)
		}
		result := CompileResult{Backend: "mongodb", Filter: string(filterJSON)}
		if len(orders) > 0 {
			sortJSON, err := bson.MarshalExtJSON(mongodao.Sort(orders), false, false)
			if err != nil {
				return CompileResult{}, fmt.Errorf("render sort: %w", err)
			}
			result.Sort = string(sortJSON)
		}
		return result, nil
	default:
		return CompileResult{}, fmt.Errorf("unsupported backend %q (supported: sql, mongo)", backend)
	}
}
