package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/scythe504/zombie-mafia-backend/internal"
	"github.com/scythe504/zombie-mafia-backend/internal/utils"
	"github.com/scythe504/zombie-mafia-backend/internal/voice"
)

var errMalformedRequest = errors.New("malformed-request")

func errBadRequest(err error) error {
	return fmt.Errorf("%w: %w", errMalformedRequest, err)
}

type joinRequest struct {
	Nickname string `json:"nickname"`
}

type targetRequest struct {
	Target *int64 `json:"target"`
}

type skipRequest struct {
	Seconds int `json:"seconds"`
}

type verifyRequest struct {
	Token string `json:"token"`
}

type voiceGrant struct {
	SessionID string    `json:"session_id"`
	RoomID    int64     `json:"room_id"`
	MemberID  int64     `json:"member_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type presence struct {
	RoomID    int64 `json:"room_id"`
	Connected int   `json:"connected"`
}

// =============================================================================
// LOBBY HANDLERS
// =============================================================================

func (s *Server) JoinHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, memberID := roomAndMember(r)

	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, start, errBadRequest(err))
		return
	}
	if req.Nickname == "" {
		writeError(w, start, errBadRequest(errors.New("nickname is required")))
		return
	}
	if err := s.lobby.Join(r.Context(), roomID, memberID, req.Nickname); err != nil {
		writeError(w, start, err)
		return
	}
	participants, err := s.lobby.Participants(r.Context(), roomID)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, participants)
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, memberID := roomAndMember(r)

	started, err := s.lobby.Ready(r.Context(), roomID, memberID)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, map[string]bool{"started": started})
}

func (s *Server) LeaveHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, memberID := roomAndMember(r)

	if err := s.lobby.Leave(r.Context(), roomID, memberID); err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, map[string]int64{"room_id": roomID})
}

// =============================================================================
// GAME HANDLERS
// =============================================================================

func (s *Server) StartGameHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, _ := roomAndMember(r)

	g, err := s.manager.StartGame(r.Context(), roomID)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusCreated, internal.GameStartedData{
		RoomID:  roomID,
		Phase:   internal.PhaseDayDiscussion,
		Time:    g.Option.DiscussionSeconds,
		Players: g.PublicPlayers(),
	})
}

func (s *Server) DeleteGameHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, _ := roomAndMember(r)

	if err := s.manager.DeleteGame(r.Context(), roomID); err != nil {
		writeError(w, start, err)
		return
	}
	s.lobby.Reset(roomID)
	writeResponse(w, start, http.StatusOK, internal.GameDeletedData{RoomID: roomID})
}

func (s *Server) GameStateHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, _ := roomAndMember(r)

	state, err := s.manager.State(r.Context(), roomID)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, state)
}

func (s *Server) PlayerViewHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, memberID := roomAndMember(r)

	view, err := s.manager.Player(r.Context(), roomID, memberID)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, view)
}

func (s *Server) SkipHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, _ := roomAndMember(r)

	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, start, errBadRequest(err))
		return
	}
	remaining, err := s.manager.SkipDiscussion(r.Context(), roomID, req.Seconds)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, internal.TimerUpdateData{Time: remaining, Phase: internal.PhaseDayDiscussion})
}

func (s *Server) VoteHandler(w http.ResponseWriter, r *http.Request) {
	s.targetAction(w, r, func(r *http.Request, roomID, memberID, target int64) (any, error) {
		return map[string]int64{"target": target}, s.manager.Vote(r.Context(), roomID, memberID, target)
	})
}

func (s *Server) HealHandler(w http.ResponseWriter, r *http.Request) {
	s.targetAction(w, r, func(r *http.Request, roomID, memberID, target int64) (any, error) {
		return map[string]int64{"target": target}, s.manager.Heal(r.Context(), roomID, memberID, target)
	})
}

func (s *Server) InvestigateHandler(w http.ResponseWriter, r *http.Request) {
	s.targetAction(w, r, func(r *http.Request, roomID, memberID, target int64) (any, error) {
		role, err := s.manager.Investigate(r.Context(), roomID, memberID, target)
		return map[string]any{"target": target, "result": role}, err
	})
}

func (s *Server) InfectHandler(w http.ResponseWriter, r *http.Request) {
	s.targetAction(w, r, func(r *http.Request, roomID, memberID, target int64) (any, error) {
		return map[string]int64{"target": target}, s.manager.Infect(r.Context(), roomID, memberID, target)
	})
}

func (s *Server) AttackHandler(w http.ResponseWriter, r *http.Request) {
	s.targetAction(w, r, func(r *http.Request, roomID, memberID, target int64) (any, error) {
		return map[string]int64{"target": target}, s.manager.MutantAttack(r.Context(), roomID, memberID, target)
	})
}

// targetAction decodes {"target": id} and runs act. A missing target is an
// abstention.
func (s *Server) targetAction(w http.ResponseWriter, r *http.Request,
	act func(r *http.Request, roomID, memberID, target int64) (any, error)) {
	start := time.Now().UnixMilli()
	roomID, memberID := roomAndMember(r)

	var req targetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, start, errBadRequest(err))
		return
	}
	target := internal.NoTarget
	if req.Target != nil {
		target = *req.Target
	}

	data, err := act(r, roomID, memberID, target)
	if err != nil {
		writeError(w, start, err)
		return
	}
	writeResponse(w, start, http.StatusOK, data)
}

// =============================================================================
// ROOM HANDLERS
// =============================================================================

// PresenceHandler reports how many sockets are listening on the room.
func (s *Server) PresenceHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, _ := roomAndMember(r)

	writeResponse(w, start, http.StatusOK, presence{
		RoomID:    roomID,
		Connected: s.hub.Subscribers(utils.SystemTopic(roomID)),
	})
}

// VoiceVerifyHandler checks a voice token on behalf of the voice server. The
// token must belong to the caller and to the room in the path.
func (s *Server) VoiceVerifyHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()
	roomID, memberID := roomAndMember(r)

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, start, errBadRequest(err))
		return
	}
	if req.Token == "" {
		writeError(w, start, errBadRequest(errors.New("token is required")))
		return
	}

	claims, err := s.voice.Verify(req.Token)
	if err != nil {
		writeError(w, start, err)
		return
	}
	if claims.RoomID != roomID || claims.MemberID != memberID {
		log.Warn().Int64("room", roomID).Int64("member", memberID).
			Int64("token_room", claims.RoomID).Int64("token_member", claims.MemberID).
			Msg("[VoiceVerifyHandler] token presented by the wrong member")
		writeError(w, start, fmt.Errorf("%w: not issued to member %d of room %d", voice.ErrInvalidToken, memberID, roomID))
		return
	}
	writeResponse(w, start, http.StatusOK, voiceGrant{
		SessionID: claims.SessionID,
		RoomID:    claims.RoomID,
		MemberID:  claims.MemberID,
		ExpiresAt: claims.ExpiresAt,
	})
}

func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now().UnixMilli()

	roomID, err := utils.ParseID(mux.Vars(r)["roomId"])
	if err != nil {
		writeError(w, start, errBadRequest(err))
		return
	}
	memberID, err := utils.ParseID(r.URL.Query().Get("member"))
	if err != nil {
		writeError(w, start, errBadRequest(err))
		return
	}
	s.hub.ServeWS(w, r, utils.SystemTopic(roomID), utils.MemberTopic(roomID, memberID))
}

// =============================================================================
// RESPONSES
// =============================================================================

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformedRequest),
		errors.Is(err, internal.ErrInsufficientPlayers),
		errors.Is(err, internal.ErrInvalidOption),
		errors.Is(err, internal.ErrInvalidSkip),
		errors.Is(err, internal.ErrInvalidTarget),
		errors.Is(err, internal.ErrNoHealCharges):
		return http.StatusBadRequest

	case errors.Is(err, internal.ErrDeadCannotVote),
		errors.Is(err, internal.ErrPoliceCannotVote),
		errors.Is(err, internal.ErrMutantCannotVote),
		errors.Is(err, internal.ErrDeadCannotAct),
		errors.Is(err, internal.ErrRoleMismatch),
		errors.Is(err, voice.ErrInvalidToken):
		return http.StatusForbidden

	case errors.Is(err, internal.ErrRoomNotFound),
		errors.Is(err, internal.ErrGameNotFound),
		errors.Is(err, internal.ErrPhaseNotFound),
		errors.Is(err, internal.ErrTimerNotFound),
		errors.Is(err, internal.ErrPlayerNotFound):
		return http.StatusNotFound

	case errors.Is(err, internal.ErrAlreadyReady),
		errors.Is(err, internal.ErrAlreadyInRoom),
		errors.Is(err, internal.ErrGameAlreadyStarted),
		errors.Is(err, internal.ErrGameTimeOver),
		errors.Is(err, internal.ErrNotDiscussionPhase),
		errors.Is(err, internal.ErrVotingClosed),
		errors.Is(err, internal.ErrNotNightPhase),
		errors.Is(err, internal.ErrAlreadyInvestigated),
		errors.Is(err, internal.ErrAlreadyHealed),
		errors.Is(err, internal.ErrPlayerAlreadyDead),
		errors.Is(err, internal.ErrGameOver):
		return http.StatusConflict

	case errors.Is(err, errTooManyRequests):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, start int64, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("[writeError] request failed")
		writeResponse(w, start, status, map[string]string{"error": "internal server error"})
		return
	}
	writeResponse(w, start, status, map[string]string{"error": err.Error()})
}

func writeResponse(w http.ResponseWriter, start int64, status int, data any) {
	end := time.Now().UnixMilli()
	resp := internal.Response{
		StatusCode:    status,
		RespStartTime: start,
		RespEndTime:   end,
		NetRespTime:   end - start,
		Data:          data,
	}

	// Set response headers
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	// Send JSON response
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("[writeResponse] error encoding response")
	}
}
