package handler

import (
	"net/http"

	"github.com/duyanhad/shop-api/internal/domain/user"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// userResponse is the public view of an account. The credential hash is
// never serialized.
type userResponse struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Role    string `json:"role"`
	Blocked bool   `json:"blocked"`
}

func toUserResponse(u *user.User) userResponse {
	return userResponse{
		ID:      u.ID,
		Name:    u.Name,
		Email:   u.Email,
		Role:    string(u.Role),
		Blocked: u.Blocked,
	}
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req registerRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, err := h.auth.Register(ctx, req.Name, req.Email, req.Password)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusCreated, map[string]any{
		"message": "registration successful",
		"user":    toUserResponse(u),
	})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	u, token, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	writeJSON(ctx, w, http.StatusOK, map[string]any{
		"token": token,
		"user":  toUserResponse(u),
	})
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	users, err := h.users.List(ctx)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	resp := make([]userResponse, len(users))
	for i := range users {
		resp[i] = toUserResponse(&users[i])
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

type blockUserRequest struct {
	Blocked bool `json:"blocked"`
}

func (h *Handler) blockUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := pathID(r, "userID")
	if err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid user id")
		return
	}

	var req blockUserRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeErrorMessage(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.users.SetBlocked(ctx, id, req.Blocked); err != nil {
		writeError(ctx, w, err)
		return
	}
	writeJSON(ctx, w, http.StatusOK, map[string]any{"id": id, "blocked": req.Blocked})
}
