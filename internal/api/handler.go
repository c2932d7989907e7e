// Package api exposes the registration core over HTTP. Handlers stay thin:
// decode, resolve the authenticated user, delegate to a service, map the
// domain error kind to a status code.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Ishaan29/terpspark-backend/internal/auth"
	"github.com/Ishaan29/terpspark-backend/internal/logger"
	"github.com/Ishaan29/terpspark-backend/internal/promotion"
	"github.com/Ishaan29/terpspark-backend/internal/registration"
	"github.com/Ishaan29/terpspark-backend/internal/waitlist"
)

type Handler struct {
	Registrations *registration.Service
	Waitlist      *waitlist.Service
	Promotions    *promotion.Engine
	Logger        *logger.Logger
}

// Routes mounts the registration and waitlist endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/registrations", func(r chi.Router) {
		r.Post("/", h.CreateRegistration)
		r.Get("/", h.ListRegistrations)
		r.Delete("/{registrationID}", h.CancelRegistration)
		r.Post("/checkin", h.CheckIn)
	})
	r.Route("/waitlist", func(r chi.Router) {
		r.Post("/", h.JoinWaitlist)
		r.Get("/", h.ListWaitlist)
		r.Delete("/{entryID}", h.LeaveWaitlist)
	})
	r.Route("/events/{eventID}", func(r chi.Router) {
		r.Get("/waitlist", h.EventWaitlist)
		r.Post("/promote", h.Promote)
	})
}

func (h *Handler) CreateRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req registration.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	reg, err := h.Registrations.Register(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Registration confirmed", reg)
}

func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	status := r.URL.Query().Get("status")
	includePast := r.URL.Query().Get("includePast") == "true"

	regs, err := h.Registrations.ListUserRegistrations(r.Context(), userID, status, includePast)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Registrations", regs)
}

func (h *Handler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	registrationID := chi.URLParam(r, "registrationID")
	reg, err := h.Registrations.Cancel(r.Context(), registrationID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Registration cancelled", reg)
}

func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	scannerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req struct {
		TicketCode string `json:"ticketCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.TicketCode == "" {
		http.Error(w, "ticketCode is required", http.StatusBadRequest)
		return
	}

	reg, err := h.Registrations.CheckIn(r.Context(), req.TicketCode, scannerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Checked in", reg)
}

func (h *Handler) JoinWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	var req waitlist.JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	entry, err := h.Waitlist.Join(r.Context(), userID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusCreated, "Joined waitlist", entry)
}

func (h *Handler) ListWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	entries, err := h.Waitlist.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Waitlist entries", entries)
}

func (h *Handler) LeaveWaitlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	entryID := chi.URLParam(r, "entryID")
	if err := h.Waitlist.Leave(r.Context(), entryID, userID); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Left waitlist", nil)
}

func (h *Handler) EventWaitlist(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	entries, err := h.Waitlist.EventWaitlist(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, "Event waitlist", entries)
}

// Promote triggers a standalone promotion attempt, used for operational
// recovery when a cancellation's follow-up promotion failed.
func (h *Handler) Promote(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	result, err := h.Promotions.PromoteNext(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.Promoted {
		writeSuccess(w, http.StatusOK, "No promotion occurred", result)
		return
	}
	writeSuccess(w, http.StatusOK, "Promoted head of waitlist", result)
}
