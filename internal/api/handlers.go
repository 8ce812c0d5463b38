package api

import (
	"encoding/json"
	"net/http"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-convo/internal/auth"
	"github.com/npezzotti/go-convo/internal/conversation"
	"github.com/npezzotti/go-convo/internal/server"
)

// ApiResponse is the success envelope returned by every endpoint.
type ApiResponse struct {
	Success    bool   `json:"success"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

type CreateGroupChatRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants"`
}

type RenameGroupChatRequest struct {
	Name string `json:"name"`
}

type SendMessageRequest struct {
	Content string `json:"content"`
}

func (s *GoChatApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("json encode")
	}
}

func (s *GoChatApp) writeError(w http.ResponseWriter, apiErr *ApiError) {
	if apiErr.StatusCode >= http.StatusInternalServerError {
		s.log.Error().Err(apiErr).Int("status", apiErr.StatusCode).Msg("request failed")
	}

	s.writeJson(w, apiErr.StatusCode, apiErr)
}

func (s *GoChatApp) writeSuccess(w http.ResponseWriter, statusCode int, message string, data any) {
	s.writeJson(w, statusCode, ApiResponse{
		Success:    true,
		StatusCode: statusCode,
		Message:    message,
		Data:       data,
	})
}

// principal is only called behind authMiddleware.
func principal(r *http.Request) auth.Principal {
	p, _ := auth.PrincipalFrom(r.Context())
	return p
}

func (s *GoChatApp) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *GoChatApp) listChats(w http.ResponseWriter, r *http.Request) {
	chats, err := s.chats.ListChats(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "chats fetched successfully", chats)
}

func (s *GoChatApp) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.chats.ListUsers(r.Context(), principal(r))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "users fetched successfully", map[string]any{"users": users})
}

func (s *GoChatApp) createOneOnOneChat(w http.ResponseWriter, r *http.Request) {
	chat, created, err := s.chats.CreateOneOnOneChat(r.Context(), principal(r), r.PathValue("receiverId"))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	if !created {
		s.writeSuccess(w, http.StatusOK, "chat already exists", chat)
		return
	}

	s.writeSuccess(w, http.StatusCreated, "chat created successfully", chat)
}

func (s *GoChatApp) deleteOneOnOneChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.DeleteOneOnOneChat(r.Context(), principal(r), r.PathValue("chatId")); err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "chat deleted successfully", nil)
}

func (s *GoChatApp) createGroupChat(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError("invalid request body"))
		return
	}

	chat, err := s.chats.CreateGroupChat(r.Context(), principal(r), conversation.CreateGroupChatParams{
		Name:           req.Name,
		ParticipantIds: req.Participants,
	})
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusCreated, "group chat created successfully", chat)
}

func (s *GoChatApp) getGroupChat(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.GetGroupChat(r.Context(), principal(r), r.PathValue("chatId"))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "group chat fetched successfully", chat)
}

func (s *GoChatApp) renameGroupChat(w http.ResponseWriter, r *http.Request) {
	var req RenameGroupChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError("invalid request body"))
		return
	}

	chat, err := s.chats.RenameGroupChat(r.Context(), principal(r), r.PathValue("chatId"), req.Name)
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "group chat renamed successfully", chat)
}

func (s *GoChatApp) deleteGroupChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.DeleteGroupChat(r.Context(), principal(r), r.PathValue("chatId")); err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "group chat deleted successfully", nil)
}

func (s *GoChatApp) leaveGroupChat(w http.ResponseWriter, r *http.Request) {
	if err := s.chats.LeaveGroupChat(r.Context(), principal(r), r.PathValue("chatId")); err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "left group chat successfully", nil)
}

func (s *GoChatApp) addParticipant(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.AddParticipant(r.Context(), principal(r), r.PathValue("chatId"), r.PathValue("userId"))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "participant added successfully", chat)
}

func (s *GoChatApp) removeParticipant(w http.ResponseWriter, r *http.Request) {
	chat, err := s.chats.RemoveParticipant(r.Context(), principal(r), r.PathValue("chatId"), r.PathValue("userId"))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "participant removed successfully", chat)
}

func (s *GoChatApp) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, NewBadRequestError("invalid request body"))
		return
	}

	msg, err := s.chats.SendMessage(r.Context(), principal(r), r.PathValue("chatId"), req.Content)
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusCreated, "message saved successfully", msg)
}

func (s *GoChatApp) getMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chats.GetMessages(r.Context(), principal(r), r.PathValue("chatId"))
	if err != nil {
		s.writeError(w, fromServiceError(err))
		return
	}

	s.writeSuccess(w, http.StatusOK, "messages fetched successfully", msgs)
}

func (s *GoChatApp) serveWs(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}

	token := server.HandshakeToken(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("error upgrading connection")
		return
	}

	if err := s.hub.Attach(conn, token); err != nil {
		s.log.Error().Err(err).Msg("error attaching connection")
	}
}
