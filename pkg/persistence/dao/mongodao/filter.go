package mongodao

import (
	"fmt"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/nimburion/entitykit/pkg/persistence/query"
)

var comparisonOperators = map[query.Operator]string{
	query.OpEq: "$eq",
	query.OpLt: "$lt",
	query.OpLe: "$lte",
	query.OpGt: "$gt",
	query.OpGe: "$gte",
}

// documentKey maps a storage column to its document key.
func documentKey(column string) string {
	if column == idColumn {
		return "_id"
	}
	return column
}

// Filter renders a predicate tree as a MongoDB query document. A nil
// predicate yields an empty document that matches everything.
//
// Negative operators also exclude null and missing values so that every
// backend treats absent values alike.
func Filter(p query.Predicate) (bson.M, error) {
	switch node := p.(type) {
	case nil:
		return bson.M{}, nil
	case query.Conjunction:
		return group("$and", node.Children)
	case query.Disjunction:
		return group("$or", node.Children)
	case query.Comparison:
		return comparison(node)
	default:
		return nil, fmt.Errorf("unsupported predicate %T", p)
	}
}

func group(op string, children []query.Predicate) (bson.M, error) {
	docs := make(bson.A, 0, len(children))
	for _, child := range children {
		doc, err := Filter(child)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return bson.M{op: docs}, nil
}

func comparison(c query.Comparison) (bson.M, error) {
	key := documentKey(c.Column)
	if len(c.Values) == 0 {
		return bson.M{key: bson.M{"$in": bson.A{}}}, nil
	}

	switch c.Operator {
	case query.OpIn:
		return bson.M{key: bson.M{"$in": bson.A(c.Values)}}, nil
	case query.OpOut:
		excluded := make(bson.A, 0, len(c.Values)+1)
		excluded = append(excluded, c.Values...)
		return bson.M{key: bson.M{"$nin": append(excluded, nil)}}, nil
	case query.OpNe:
		return bson.M{key: bson.M{"$nin": bson.A{c.Values[0], nil}}}, nil
	case query.OpLike:
		pattern, ok := c.Values[0].(string)
		if !ok {
			return nil, fmt.Errorf("like pattern on %q must be a string", c.Column)
		}
		return bson.M{key: primitive.Regex{Pattern: wildcardPattern(pattern)}}, nil
	case query.OpNotLike:
		pattern, ok := c.Values[0].(string)
		if !ok {
			return nil, fmt.Errorf("like pattern on %q must be a string", c.Column)
		}
		return bson.M{key: bson.M{"$not": primitive.Regex{Pattern: wildcardPattern(pattern)}, "$ne": nil}}, nil
	}

	op, ok := comparisonOperators[c.Operator]
	if !ok {
		return nil, fmt.Errorf("unsupported operator %q", c.Operator)
	}
	return bson.M{key: bson.M{op: c.Values[0]}}, nil
}

// wildcardPattern anchors a "*" wildcard pattern as a regular expression.
func wildcardPattern(pattern string) string {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return "^" + strings.Join(parts, ".*") + "$"
}

// Sort renders sort keys as a MongoDB sort document.
func Sort(orders []query.Order) bson.D {
	sort := make(bson.D, 0, len(orders))
	for _, o := range orders {
		direction := 1
		if o.Descending {
			direction = -1
		}
		sort = append(sort, bson.E{Key: documentKey(o.Column), Value: direction})
	}
	return sort
}
