/*
Package handler provides HTTP handler functions for read-only room and area views.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"gridroom/internal/pkg/resp"
)

// HandleGetRoom returns the public snapshot of one room.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		view, err := deps.Hub.RoomView(chi.URLParam(r, "areaId"), chi.URLParam(r, "roomId"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, view)
	}
}

// HandleGetStats returns the occupant and stream counts of an area.
func HandleGetStats(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Hub.Stats(chi.URLParam(r, "areaId"))
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, stats)
	}
}
