package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

func (s *Server) RegisterRoutes() http.Handler {
	r := mux.NewRouter()

	// Apply CORS middleware
	r.Use(s.corsMiddleware)

	r.HandleFunc("/", s.HelloWorldHandler).Methods(http.MethodGet)

	r.HandleFunc("/ws/{roomId}", s.WebSocketHandler).Methods(http.MethodGet)

	rooms := r.PathPrefix("/rooms/{roomId}").Subrouter()
	rooms.Use(s.memberMiddleware)
	rooms.HandleFunc("/join", s.JoinHandler).Methods(http.MethodPost, http.MethodOptions)
	rooms.HandleFunc("/ready", s.ReadyHandler).Methods(http.MethodPost, http.MethodOptions)
	rooms.HandleFunc("/leave", s.LeaveHandler).Methods(http.MethodPost, http.MethodOptions)
	rooms.HandleFunc("/game", s.StartGameHandler).Methods(http.MethodPost, http.MethodOptions)
	rooms.HandleFunc("/game", s.DeleteGameHandler).Methods(http.MethodDelete)
	rooms.HandleFunc("/game", s.GameStateHandler).Methods(http.MethodGet)
	rooms.HandleFunc("/game/me", s.PlayerViewHandler).Methods(http.MethodGet)
	rooms.HandleFunc("/presence", s.PresenceHandler).Methods(http.MethodGet)
	rooms.HandleFunc("/voice/verify", s.VoiceVerifyHandler).Methods(http.MethodPost, http.MethodOptions)

	actions := rooms.PathPrefix("/game").Subrouter()
	actions.Use(s.rateLimitMiddleware)
	actions.HandleFunc("/skip", s.SkipHandler).Methods(http.MethodPost, http.MethodOptions)
	actions.HandleFunc("/vote", s.VoteHandler).Methods(http.MethodPost, http.MethodOptions)
	actions.HandleFunc("/heal", s.HealHandler).Methods(http.MethodPost, http.MethodOptions)
	actions.HandleFunc("/investigate", s.InvestigateHandler).Methods(http.MethodPost, http.MethodOptions)
	actions.HandleFunc("/infect", s.InfectHandler).Methods(http.MethodPost, http.MethodOptions)
	actions.HandleFunc("/attack", s.AttackHandler).Methods(http.MethodPost, http.MethodOptions)

	return r
}

// CORS middleware
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS Headers
		w.Header().Set("Access-Control-Allow-Origin", "*") // Wildcard allows all origins
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Member-Id")
		w.Header().Set("Access-Control-Allow-Credentials", "false") // Credentials not allowed with wildcard origins

		// If it's a websocket upgrade, skip further CORS checks
		if strings.ToLower(r.Header.Get("Upgrade")) == "websocket" {
			next.ServeHTTP(w, r)
			return
		}

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) HelloWorldHandler(w http.ResponseWriter, r *http.Request) {
	writeResponse(w, time.Now().UnixMilli(), http.StatusOK, map[string]string{"message": "zombie mafia is up"})
}
