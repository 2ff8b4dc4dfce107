package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/fieldledger/fieldledger/internal/web/auth"
	"github.com/fieldledger/fieldledger/internal/web/request"
	"github.com/fieldledger/fieldledger/internal/web/response"
)

const maxPageSize = 200

// toggleRequest switches a boolean setting
type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func accountID(r *http.Request) uuid.UUID {
	id, _ := auth.AccountID(r.Context())
	return id
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := request.DecodeJSON(w, r, v); err != nil {
		badRequest(w, err)
		return false
	}
	return true
}

func decodeToggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req toggleRequest
	if !decode(w, r, &req) {
		return false, false
	}
	if req.Enabled == nil {
		response.RenderBadRequest(w, "enabled is required")
		return false, false
	}
	return *req.Enabled, true
}

func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := request.UUIDParam(r, "id")
	if err != nil {
		badRequest(w, err)
		return uuid.Nil, false
	}
	return id, true
}

// page reads limit and offset, clamping limit to maxPageSize
func page(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, err := request.QueryInt(r, "limit", 50)
	if err != nil {
		badRequest(w, err)
		return 0, 0, false
	}
	offset, err = request.QueryInt(r, "offset", 0)
	if err != nil {
		badRequest(w, err)
		return 0, 0, false
	}
	if limit <= 0 || limit > maxPageSize {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset, true
}

// uuidQuery reads an optional UUID query parameter
func uuidQuery(w http.ResponseWriter, r *http.Request, name string) (*uuid.UUID, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		response.RenderBadRequest(w, "invalid "+name)
		return nil, false
	}
	return &id, true
}
