package controller

import (
	"strconv"
	"strings"

	"github.com/nimburion/entitykit/pkg/apperror"
	"github.com/nimburion/entitykit/pkg/persistence"
)

// ParseFieldSet parses a comma separated "fields" parameter. Blank entries
// are dropped; an empty parameter returns nil, meaning all fields.
func ParseFieldSet(raw string) *persistence.FieldSet {
	var names []string
	for _, part := range strings.Split(raw, ",") {
		if name := strings.TrimSpace(part); name != "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return persistence.NewFieldSet(names...)
}

// CreateFieldSet adds "id" to a restricted field set so a created item
// always reports its identifier.
func CreateFieldSet(fields *persistence.FieldSet) *persistence.FieldSet {
	if fields == nil {
		return nil
	}
	out := persistence.NewFieldSet(fields.Names()...)
	out.Add("id")
	return out
}

// ParseIntParam parses an optional integer parameter. present is false
// when raw is blank.
func ParseIntParam(name, raw string) (value int, present bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	value, err = strconv.Atoi(raw)
	if err != nil {
		return 0, true, apperror.BadRequest(name+" must be an integer.", err)
	}
	return value, true, nil
}

// ParseIDs splits a comma separated id list and parses each element.
func ParseIDs[ID any](raw string, parse func(string) (ID, error)) ([]ID, error) {
	var ids []ID
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := parse(part)
		if err != nil {
			return nil, apperror.BadRequest("invalid identifier: "+part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
