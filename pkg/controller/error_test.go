package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/nimburion/entitykit/pkg/apperror"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		ctx           context.Context
		wantStatus    int
		wantError     string
		wantCode      string
		wantMessage   string
		wantRequestID string
	}{
		{
			name:        "bad request",
			err:         apperror.BadRequest("start must be an integer.", nil),
			ctx:         context.Background(),
			wantStatus:  http.StatusBadRequest,
			wantError:   "bad_request",
			wantCode:    "request.invalid",
			wantMessage: "start must be an integer.",
		},
		{
			name:          "not found with request id",
			err:           apperror.NotFound("part 7 not found"),
			ctx:           WithRequestID(context.Background(), "req-1"),
			wantStatus:    http.StatusNotFound,
			wantError:     "not_found",
			wantCode:      "resource.not_found",
			wantMessage:   "part 7 not found",
			wantRequestID: "req-1",
		},
		{
			name:        "validation",
			err:         apperror.Validation("name is required", map[string]interface{}{"field": "name"}),
			ctx:         context.Background(),
			wantStatus:  http.StatusUnprocessableEntity,
			wantError:   "validation_error",
			wantCode:    "validation.failed",
			wantMessage: "name is required",
		},
		{
			name:        "wrapped app error",
			err:         fmt.Errorf("query: %w", apperror.BadRequest("bad filter", nil)),
			ctx:         context.Background(),
			wantStatus:  http.StatusBadRequest,
			wantError:   "bad_request",
			wantCode:    "request.invalid",
			wantMessage: "bad filter",
		},
		{
			name:        "configuration errors are internal",
			err:         apperror.Configuration("dao is required"),
			ctx:         context.Background(),
			wantStatus:  http.StatusInternalServerError,
			wantError:   "internal_server_error",
			wantMessage: "an unexpected error occurred",
		},
		{
			name:        "plain error",
			err:         errors.New("connection reset"),
			ctx:         context.Background(),
			wantStatus:  http.StatusInternalServerError,
			wantError:   "internal_server_error",
			wantMessage: "an unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, resp := MapError(tt.ctx, tt.err)
			if status != tt.wantStatus {
				t.Errorf("MapError() status = %v, want %v", status, tt.wantStatus)
			}
			if resp.Error != tt.wantError || resp.Code != tt.wantCode || resp.Message != tt.wantMessage {
				t.Errorf("MapError() response = %+v", resp)
			}
			if resp.RequestID != tt.wantRequestID {
				t.Errorf("MapError() request id = %q, want %q", resp.RequestID, tt.wantRequestID)
			}
		})
	}
}

func TestMapError_KeepsDetails(t *testing.T) {
	details := map[string]interface{}{"field": "name"}
	_, resp := MapError(context.Background(), apperror.Validation("invalid", details))
	if resp.Details["field"] != "name" {
		t.Errorf("details = %v", resp.Details)
	}
}
