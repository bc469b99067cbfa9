package router

import (
	"net/http"

	handlers "consultaprocessual/handler"
	"consultaprocessual/middleware"
	"consultaprocessual/socket"
)

// Setup wires the progress routes. jwtSecret may be empty to serve them
// without authentication.
func Setup(hub *socket.Hub, jwtSecret string) http.Handler {
	mux := http.NewServeMux()
	auth := middleware.AuthMiddleware(jwtSecret)

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r, middleware.UserID(r))
	})
	mux.Handle("/ws", auth(wsHandler))

	// REST API
	runHandler := handlers.NewRunHandler(hub)
	mux.Handle("/api/run", auth(http.HandlerFunc(runHandler.GetRun)))
	mux.Handle("/api/run/results", auth(http.HandlerFunc(runHandler.GetResults)))

	return middleware.RequestLogger(middleware.CORSMiddleware(mux))
}
