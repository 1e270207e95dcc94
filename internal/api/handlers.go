package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/signup-portal/internal/cache"
	"github.com/ignite/signup-portal/internal/domain"
	"github.com/ignite/signup-portal/internal/media"
	"github.com/ignite/signup-portal/internal/monitoring"
	"github.com/ignite/signup-portal/internal/notify"
	"github.com/ignite/signup-portal/internal/pkg/httputil"
)

// ImageStore stores uploaded images. *media.Uploader implements it.
type ImageStore interface {
	Upload(ctx context.Context, filename string, r io.Reader) (*domain.ImageReference, error)
	Delete(ctx context.Context, ref domain.ImageReference) error
}

// WorkflowTrigger starts notification workflows. *notify.Client implements it.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, workflow notify.WorkflowID, to notify.Recipient, payload map[string]any) (*notify.TriggerResult, error)
}

// HealthCheckFunc reports the health of one dependency.
type HealthCheckFunc func(ctx context.Context) error

// Handlers holds the HTTP handlers and the collaborators they call.
type Handlers struct {
	invalidator cache.Invalidator
	notifier    WorkflowTrigger
	images      ImageStore
	checks      map[string]HealthCheckFunc
}

// NewHandlers creates the handler set. images may be nil when storage is
// not configured; the image endpoints then answer 503.
func NewHandlers(invalidator cache.Invalidator, notifier WorkflowTrigger, images ImageStore) *Handlers {
	return &Handlers{
		invalidator: invalidator,
		notifier:    notifier,
		images:      images,
		checks:      make(map[string]HealthCheckFunc),
	}
}

// AddHealthCheck registers a named dependency check for /health.
func (h *Handlers) AddHealthCheck(name string, check HealthCheckFunc) {
	h.checks[name] = check
}

// HealthCheck reports overall status plus each registered dependency.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "ok"
	checks := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			continue
		}
		checks[name] = "ok"
	}

	httputil.OK(w, map[string]any{
		"status":    status,
		"timestamp": time.Now().UTC(),
		"checks":    checks,
	})
}

type revalidateRequest struct {
	Tag string `json:"tag"`
}

// Revalidate invalidates every cache entry carrying the requested tag.
func (h *Handlers) Revalidate(w http.ResponseWriter, r *http.Request) {
	var req revalidateRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Tag == "" {
		httputil.BadRequest(w, "tag is required")
		return
	}

	if err := cache.InvalidateCache(r.Context(), h.invalidator, req.Tag); err != nil {
		monitoring.CaptureException(err)
		httputil.InternalError(w, err)
		return
	}

	httputil.OK(w, map[string]any{
		"revalidated": true,
		"tag":         req.Tag,
		"now":         time.Now().UTC().UnixMilli(),
	})
}

// UploadImage stores the multipart "file" field and returns its reference.
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		httputil.ServiceUnavailable(w, "image storage is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, media.ErrImageTooLarge.Error())
			return
		}
		httputil.BadRequest(w, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	ref, err := h.images.Upload(r.Context(), header.Filename, file)
	switch {
	case errors.Is(err, media.ErrImageTooLarge):
		httputil.Error(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, media.ErrUnsupportedImageType), errors.Is(err, media.ErrEmptyImage):
		httputil.BadRequest(w, err.Error())
		return
	case err != nil:
		monitoring.CaptureException(err)
		httputil.InternalError(w, err)
		return
	}

	httputil.Created(w, ref)
}

// DeleteImage removes the stored object behind an image reference.
func (h *Handlers) DeleteImage(w http.ResponseWriter, r *http.Request) {
	if h.images == nil {
		httputil.ServiceUnavailable(w, "image storage is not configured")
		return
	}

	var ref domain.ImageReference
	if !httputil.Decode(w, r, &ref) {
		return
	}
	if err := ref.Validate(); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	if err := h.images.Delete(r.Context(), ref); err != nil {
		if errors.Is(err, media.ErrInvalidStorageKey) {
			httputil.BadRequest(w, err.Error())
			return
		}
		monitoring.CaptureException(err)
		httputil.InternalError(w, err)
		return
	}
	httputil.NoContent(w)
}

type approveRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// ApproveSignUp triggers the sign-up-approved workflow for a subscriber.
// The JSON body is optional.
func (h *Handlers) ApproveSignUp(w http.ResponseWriter, r *http.Request) {
	subscriberID := strings.TrimSpace(chi.URLParam(r, "subscriberID"))
	if subscriberID == "" {
		httputil.BadRequest(w, "subscriber id is required")
		return
	}

	var req approveRequest
	if r.Body != nil {
		if err := decodeOptional(r.Body, &req); err != nil {
			httputil.BadRequest(w, "invalid JSON: "+err.Error())
			return
		}
	}

	recipient := notify.Recipient{
		SubscriberID: subscriberID,
		Email:        req.Email,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
	}
	payload := map[string]any{"firstName": req.FirstName}

	result, err := h.notifier.Trigger(r.Context(), notify.WorkflowSignUpApproved, recipient, payload)
	if err != nil {
		monitoring.CaptureException(err)
		var apiErr *notify.APIError
		if errors.As(err, &apiErr) {
			httputil.Error(w, http.StatusBadGateway, "notification service rejected the request")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	httputil.Accepted(w, map[string]any{
		"subscriber_id": subscriberID,
		"workflow":      notify.WorkflowSignUpApproved,
		"result":        result,
	})
}
