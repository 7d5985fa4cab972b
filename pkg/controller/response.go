package controller

import (
	"net/http"

	"github.com/nimburion/entitykit/pkg/persistence"
)

// WriteStatus returns the status for a create-or-update outcome: 201 when
// the item was created, 200 when it was updated and 304 when a filter or an
// unchanged payload suppressed the write.
func WriteStatus(ok bool, wc persistence.WriteContext) int {
	if !ok {
		return http.StatusNotModified
	}
	if wc == persistence.WriteCreate {
		return http.StatusCreated
	}
	return http.StatusOK
}

// DeleteStatus returns 204 when something was deleted and 404 otherwise.
func DeleteStatus(deleted int) int {
	if deleted == 0 {
		return http.StatusNotFound
	}
	return http.StatusNoContent
}
