package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"physicalai.dev/textbook-chat/internal/auth"
	"physicalai.dev/textbook-chat/internal/core"
	"physicalai.dev/textbook-chat/internal/store"
)

// UserStore is the account lookup surface the handlers need.
type UserStore interface {
	CreateUser(email, name, passwordHash string) (*store.User, error)
	GetUserByEmail(email string) (*store.User, error)
	GetUserByID(id int64) (*store.User, error)
}

type APIHandler struct {
	chatService *core.ChatService
	users       UserStore
	jwtSecret   string
}

func NewAPIHandler(cs *core.ChatService, users UserStore, jwtSecret string) *APIHandler {
	return &APIHandler{chatService: cs, users: users, jwtSecret: jwtSecret}
}

type ctxKey int

const userIDKey ctxKey = 0

type errorResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Message: message})
}

// pipelineStatus maps a pipeline failure to an HTTP status without
// leaking upstream error bodies to the caller.
func pipelineStatus(err error) (int, string) {
	var stageErr *core.StageError
	if errors.As(err, &stageErr) {
		switch stageErr.Stage {
		case core.StageValidation:
			return http.StatusBadRequest, "Message is required"
		case core.StageEmbedding, core.StageRetrieval:
			return http.StatusBadGateway, "The assistant is temporarily unavailable, please try again"
		case core.StageGeneration:
			return http.StatusBadGateway, "The assistant could not generate a response, please try again"
		}
	}
	return http.StatusInternalServerError, "Server error during chat processing"
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.users.GetUserByID(userID)
		if err != nil {
			log.Error().Err(err).Int64("user_id", userID).Msg("failed to resolve user identity")
			writeError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil {
			writeError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type AuthResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (h *APIHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "Please provide a valid email")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}
	if len(req.Name) < 2 {
		writeError(w, http.StatusBadRequest, "Name must be at least 2 characters long")
		return
	}

	existing, err := h.users.GetUserByEmail(req.Email)
	if err != nil {
		log.Error().Err(err).Msg("failed to check for existing user")
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}
	if existing != nil {
		writeError(w, http.StatusBadRequest, "User already exists with this email")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Error().Err(err).Msg("failed to hash password")
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	user, err := h.users.CreateUser(req.Email, req.Name, hash)
	if err != nil {
		log.Error().Err(err).Msg("failed to create user")
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	token, err := auth.GenerateJWT(h.jwtSecret, user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate token")
		writeError(w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	writeJSON(w, http.StatusCreated, AuthResponse{Token: token, User: user})
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	user, err := h.users.GetUserByEmail(strings.TrimSpace(strings.ToLower(req.Email)))
	if err != nil {
		log.Error().Err(err).Msg("failed to look up user")
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	token, err := auth.GenerateJWT(h.jwtSecret, user.ID, user.Email)
	if err != nil {
		log.Error().Err(err).Msg("failed to generate token")
		writeError(w, http.StatusInternalServerError, "Server error during login")
		return
	}

	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: user})
}

func (h *APIHandler) MeHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	user, err := h.users.GetUserByID(userID)
	if err != nil || user == nil {
		writeError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

type ChatRequest struct {
	UserMessage         string      `json:"user_message"`
	ConversationHistory []core.Turn `json:"conversation_history"`
	SelectedText        string      `json:"selected_text"`
}

type ChatResponse struct {
	AssistantResponse string           `json:"assistant_response"`
	ReferencedContent []core.Reference `json:"referenced_content"`
}

func (h *APIHandler) ChatMessageHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.UserMessage) == "" {
		writeError(w, http.StatusBadRequest, "Message is required")
		return
	}

	answer, err := h.chatService.ProcessMessage(r.Context(), userID, core.Query{
		Text:         req.UserMessage,
		SelectedText: req.SelectedText,
		History:      req.ConversationHistory,
	})
	if err != nil {
		status, message := pipelineStatus(err)
		log.Error().Err(err).Int64("user_id", userID).Msg("chat pipeline failed")
		writeError(w, status, message)
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		AssistantResponse: answer.Text,
		ReferencedContent: answer.References,
	})
}

type HistoryResponse struct {
	History    []store.ChatExchange `json:"history"`
	Pagination Pagination           `json:"pagination"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

func (h *APIHandler) GetHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	limit := queryInt(r, "limit", 50)
	if limit < 1 || limit > 100 {
		limit = 50
	}
	page := queryInt(r, "page", 1)
	if page < 1 {
		page = 1
	}

	history, err := h.chatService.History(userID, limit, (page-1)*limit)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to fetch chat history")
		writeError(w, http.StatusInternalServerError, "Server error fetching chat history")
		return
	}
	if history == nil {
		history = []store.ChatExchange{}
	}

	writeJSON(w, http.StatusOK, HistoryResponse{
		History:    history,
		Pagination: Pagination{Page: page, Limit: limit, Total: len(history)},
	})
}

func (h *APIHandler) DeleteExchangeHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)
	exchangeID := chi.URLParam(r, "exchangeID")

	err := h.chatService.DeleteExchange(exchangeID, userID)
	if errors.Is(err, core.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to delete chat exchange")
		writeError(w, http.StatusInternalServerError, "Server error deleting chat message")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted successfully"})
}

func (h *APIHandler) DeleteAllHistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value(userIDKey).(int64)

	if err := h.chatService.ClearHistory(userID); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("failed to clear chat history")
		writeError(w, http.StatusInternalServerError, "Server error deleting chat history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "All chat history deleted successfully"})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
