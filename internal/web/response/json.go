package response

import (
	"net/http"
)

// ListResponse wraps a collection
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// RenderJSON renders v with the given status
func RenderJSON(w http.ResponseWriter, status int, v interface{}) {
	writeJSON(w, status, v)
}

// RenderOK renders v with 200
func RenderOK(w http.ResponseWriter, v interface{}) {
	writeJSON(w, http.StatusOK, v)
}

// RenderCreated renders v with 201
func RenderCreated(w http.ResponseWriter, v interface{}) {
	writeJSON(w, http.StatusCreated, v)
}

// RenderList renders a collection envelope
func RenderList(w http.ResponseWriter, items interface{}, total int) {
	writeJSON(w, http.StatusOK, ListResponse{Data: items, Total: total})
}

// RenderNoContent writes 204
func RenderNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}
