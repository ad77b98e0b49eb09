package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/kjstillabower/weather-desk/internal/contacts"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// PostLogin handles POST /auth/login.
func (h *Handler) PostLogin(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	user, err := h.auth.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user})
}

// PostRegister handles POST /auth/register.
func (h *Handler) PostRegister(w http.ResponseWriter, r *http.Request) {
	var body credentialsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	user, err := h.auth.Register(r.Context(), body.Username, body.Password)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"user": user})
}

// ListContacts handles GET /contacts?q=.
func (h *Handler) ListContacts(w http.ResponseWriter, r *http.Request) {
	list, err := h.contacts.List(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"contacts": list})
}

// CreateContact handles POST /contacts.
func (h *Handler) CreateContact(w http.ResponseWriter, r *http.Request) {
	var in contacts.Input
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	c, err := h.contacts.Create(r.Context(), in)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateContact handles PUT /contacts/{id}.
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	var in contacts.Input
	if err := decodeBody(r, &in); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body must be JSON")
		return
	}
	c, err := h.contacts.Update(r.Context(), id, in)
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteContact handles DELETE /contacts/{id}.
func (h *Handler) DeleteContact(w http.ResponseWriter, r *http.Request) {
	id, ok := contactID(w, r)
	if !ok {
		return
	}
	if err := h.contacts.Delete(r.Context(), id); err != nil {
		h.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func contactID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 1 {
		writeError(w, r, http.StatusBadRequest, "INVALID_ID", "contact id must be a positive integer")
		return 0, false
	}
	return id, true
}
