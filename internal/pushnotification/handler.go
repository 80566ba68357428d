package pushnotification

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/infinitech/infinitask/internal/pushsubscription"
	"github.com/infinitech/infinitask/pkg/cerr"
)

// Handler serves subscription management for browsers. Responses are written
// by the cerr JSON middleware.
type Handler struct {
	repo   pushsubscription.Repository
	sender *Sender
	now    func() time.Time
}

func NewHandler(repo pushsubscription.Repository, sender *Sender) *Handler {
	return &Handler{repo: repo, sender: sender, now: time.Now}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/vapid-public-key", h.getVapidPublicKey)
	r.Post("/subscriptions", h.register)
	r.Delete("/subscriptions", h.unregister)
	r.Post("/test", h.sendTest)
}

type subscriptionRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *Handler) getVapidPublicKey(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.sender.Configured() {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	cerr.SetJSONResponse(ctx, map[string]string{"public_key": h.sender.vapidEnv.VAPIDPublicKey})
}

func (h *Handler) register(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		cerr.SetNewJSONError(ctx, cerr.InvalidArgument, "invalid request body", err)
		return
	}
	verr := cerr.NewError(cerr.InvalidArgument, "invalid subscription", nil)
	if req.Endpoint == "" {
		verr.AddViolation("endpoint", "is required")
	}
	if req.Keys.P256dh == "" {
		verr.AddViolation("keys.p256dh", "is required")
	}
	if req.Keys.Auth == "" {
		verr.AddViolation("keys.auth", "is required")
	}
	if len(verr.Details) > 0 {
		cerr.SetJSONError(ctx, verr)
		return
	}

	sub := &pushsubscription.Subscription{
		ID:        pushsubscription.IDForEndpoint(req.Endpoint),
		Endpoint:  req.Endpoint,
		P256dhKey: req.Keys.P256dh,
		AuthKey:   req.Keys.Auth,
		CreatedAt: h.now(),
	}
	if existing, err := h.repo.Get(ctx, sub.ID); err == nil {
		sub.CreatedAt = existing.CreatedAt
	}
	if err := h.repo.Save(ctx, sub); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	cerr.SetJSONStatus(ctx, http.StatusCreated)
	cerr.SetJSONResponse(ctx, map[string]string{"id": sub.ID})
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		cerr.SetJSONError(ctx, cerr.NewError(cerr.InvalidArgument, "endpoint is required", err).AddViolation("endpoint", "is required"))
		return
	}
	if err := h.repo.Delete(ctx, pushsubscription.IDForEndpoint(req.Endpoint)); err != nil {
		cerr.SetJSONError(ctx, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) sendTest(_ http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.sender.Configured() {
		cerr.SetNewJSONError(ctx, cerr.FailedPrecondition, "VAPID keys not configured", nil)
		return
	}
	res := h.sender.SendToAll(ctx, &NotificationPayload{
		Title: "InfiniTask Test",
		Body:  "Push notifications are working!",
	})
	cerr.SetJSONResponse(ctx, res)
}
