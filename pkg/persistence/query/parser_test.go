package query

import (
	"errors"
	"testing"
	"time"

	"github.com/nimburion/entitykit/pkg/apperror"
	"github.com/nimburion/entitykit/pkg/fieldtype"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema(
		Field{Name: "id", Kind: fieldtype.Int},
		Field{Name: "name", Column: "title", Kind: fieldtype.String},
		Field{Name: "price", Kind: fieldtype.Float},
		Field{Name: "active", Kind: fieldtype.Bool},
		Field{Name: "created", Kind: fieldtype.Time},
		Field{Name: "secret", Kind: fieldtype.String, NotFilterable: true, NotSortable: true},
		Field{Name: "owner", Kind: fieldtype.String, Filter: func(op Operator, args []string) (Predicate, error) {
			if op != OpEq {
				return nil, errors.New("owner only supports ==")
			}
			return Or(Eq("owner_id", args[0]), Eq("delegate_id", args[0])), nil
		}},
	)
	if err != nil {
		t.Fatalf("NewSchema() error = %v", err)
	}
	return schema
}

func TestParse(t *testing.T) {
	schema := testSchema(t)
	tests := []struct {
		name       string
		expression string
		want       string
	}{
		{"empty", "  ", "<nil>"},
		{"equality maps column", "name==widget", "title==widget"},
		{"and", "name==a;price>2.5", "(title==a;price>2.5)"},
		{"or", "id==1,id==2", "(id==1,id==2)"},
		{"precedence", "id==1,id==2;active==true", "(id==1,(id==2;active==true))"},
		{"groups", "(id==1,id==2);active==false", "((id==1,id==2);active==false)"},
		{"word operators", "name==a and (id=gt=3 or id=lt=1)", "(title==a;(id>3,id<1))"},
		{"in list", "id=in=(1, 2,3)", "id=in=(1,2,3)"},
		{"out list", "name=out=(a,b)", "title=out=(a,b)"},
		{"quoted value", `name=="a b;c"`, `title=="a b;c"`},
		{"wildcard becomes like", "name==wid*", "title=like=wid*"},
		{"negated wildcard becomes not like", "name!=wid*", "title=notlike=wid*"},
		{"explicit not like", "name=notlike=*get", "title=notlike=*get"},
		{"alias operators", "price>=1;price<=2", "(price>=1;price<=2)"},
		{"time literal", "created=ge=2024-01-01", "created>=2024-01-01T00:00:00Z"},
		{"custom filter", "owner==bob", "(owner_id==bob,delegate_id==bob)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.expression, schema)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			rendered := "<nil>"
			if got != nil {
				rendered = got.String()
			}
			if rendered != tt.want {
				t.Errorf("Parse() = %s, want %s", rendered, tt.want)
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	schema := testSchema(t)
	tests := []struct {
		name       string
		expression string
	}{
		{"unknown field", "color==red"},
		{"not filterable", "secret==x"},
		{"missing operator", "name"},
		{"missing value", "name=="},
		{"bad int", "id==abc"},
		{"bad time", "created>tomorrow"},
		{"list on single operator", "id==(1,2)"},
		{"unbalanced group", "(id==1"},
		{"trailing garbage", "id==1)"},
		{"unterminated quote", `name=="abc`},
		{"wildcard on non string", "price==1*"},
		{"custom filter rejects", "owner!=bob"},
		{"dangling and", "id==1;"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.expression, schema)
			var syntaxErr *SyntaxError
			if !errors.As(err, &syntaxErr) {
				t.Fatalf("Parse(%q) error = %v, want SyntaxError", tt.expression, err)
			}
		})
	}
}

func TestParse_CoercesValues(t *testing.T) {
	pred, err := Parse("created=lt=2024-05-01T10:00:00Z;price==3", testSchema(t))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	conj := pred.(Conjunction)
	created := conj.Children[0].(Comparison)
	if _, ok := created.Values[0].(time.Time); !ok {
		t.Errorf("created value = %T, want time.Time", created.Values[0])
	}
	price := conj.Children[1].(Comparison)
	if v, ok := price.Values[0].(float64); !ok || v != 3 {
		t.Errorf("price value = %#v, want float64(3)", price.Values[0])
	}
}

func TestRSQLPredicateBuilderFactory_BadRequest(t *testing.T) {
	_, err := RSQLPredicateBuilderFactory{}.BuildPredicate("nope==1", testSchema(t))
	if !apperror.Is(err, apperror.KindBadRequest) {
		t.Fatalf("BuildPredicate() error = %v, want bad request", err)
	}
}
