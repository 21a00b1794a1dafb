/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

This file contains the HandleWebSocket function, which upgrades the HTTP connection and hands it to a
hub.Client. Authentication happens afterwards, on the first websocket frame.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"gridroom/internal/app/hub"
	"gridroom/internal/pkg/logx"
	"gridroom/internal/pkg/req"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(upgrader websocket.Upgrader, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := req.ClientIP(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		client := hub.NewClient(deps.Hub, conn, ip)

		go client.WritePump()

		logx.Info("WebSocket connection established, awaiting connect.", "ip", logx.AnonymizeIP(ip))

		client.ReadPump()
	}
}
