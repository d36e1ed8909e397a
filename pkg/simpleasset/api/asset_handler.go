package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/simple-asset/pkg/simpleasset"
)

// AssetHandler handles HTTP requests for assets using pkg/simpleasset
type AssetHandler struct {
	service           simpleasset.Service
	auth              *jwtauth.JWTAuth
	authorizer        simpleasset.Authorizer
	maxThumbnailBytes int64
}

// HandlerOption configures an AssetHandler.
type HandlerOption func(*AssetHandler)

// WithAuthorizer replaces the owner-or-admin check applied to mutations.
func WithAuthorizer(a simpleasset.Authorizer) HandlerOption {
	return func(h *AssetHandler) { h.authorizer = a }
}

// WithMaxThumbnailBytes caps how much of a thumbnail body is read.
func WithMaxThumbnailBytes(n int64) HandlerOption {
	return func(h *AssetHandler) { h.maxThumbnailBytes = n }
}

// NewAssetHandler creates a new asset handler. Requests must carry a bearer token
// signed for auth.
func NewAssetHandler(service simpleasset.Service, auth *jwtauth.JWTAuth, opts ...HandlerOption) *AssetHandler {
	h := &AssetHandler{
		service:           service,
		auth:              auth,
		authorizer:        simpleasset.OwnerOrAdmin,
		maxThumbnailBytes: simpleasset.DefaultMaxThumbnailBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the routes for assets
func (h *AssetHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jwtauth.Verifier(h.auth))
	r.Use(jwtauth.Authenticator)

	r.Post("/", h.CreateDraft)
	r.Get("/{id}", h.GetAsset)
	r.Patch("/{id}", h.UpdateMetadata)
	r.Delete("/{id}", h.Reclaim)

	r.Put("/{id}/media", h.AttachMedia)
	r.Put("/{id}/thumbnail", h.ReplaceThumbnail)
	r.Post("/{id}/publish", h.Publish)
	r.Delete("/{id}/draft", h.AbandonDraft)

	return r
}

// CreateDraftRequest is the request body for creating a draft. ContainerID defaults
// to the caller's own channel.
type CreateDraftRequest struct {
	ContainerID int64 `json:"container_id,omitempty"`
}

// CreateDraftResponse is the response body for a created draft
type CreateDraftResponse struct {
	ID     simpleasset.AssetID       `json:"id"`
	Status simpleasset.ProcessStatus `json:"status"`
}

// UpdateMetadataRequest is the request body for editing an asset
type UpdateMetadataRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	Privacy     *string `json:"privacy,omitempty"`
}

// ThumbnailResponse is the response body for a replaced thumbnail
type ThumbnailResponse struct {
	ThumbnailLocator string `json:"thumbnail_locator"`
}

// CreateDraft creates an empty draft
func (h *AssetHandler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}

	var req CreateDraftRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeErrorBody(w, r, http.StatusBadRequest, "invalid_input", "Invalid request body")
			return
		}
	}
	container := simpleasset.ContainerID(p.UserID)
	if req.ContainerID != 0 {
		container = simpleasset.ContainerID(req.ContainerID)
	}
	if container != simpleasset.ContainerID(p.UserID) && !p.Admin {
		writeError(w, r, fmt.Errorf("%w: cannot create drafts in channel %d", simpleasset.ErrForbidden, container))
		return
	}

	id, err := h.service.CreateDraft(r.Context(), container)
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Draft created", "asset_id", id, "container_id", container)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, CreateDraftResponse{ID: id, Status: simpleasset.StatusUploading})
}

// GetAsset returns an asset. Assets that are not publicly visible are only shown to
// callers allowed to manage them.
func (h *AssetHandler) GetAsset(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	visible := asset.ProcessStatus == simpleasset.StatusPublished && asset.PrivacyStatus != simpleasset.PrivacyPrivate
	if !visible && !h.authorizer.CanReclaim(r.Context(), p, asset) {
		writeError(w, r, simpleasset.ErrNotFound)
		return
	}
	render.JSON(w, r, asset)
}

// AttachMedia stores the request body as the media file of a draft. Content-Length
// is the declared size.
func (h *AssetHandler) AttachMedia(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}
	if r.ContentLength < 0 {
		writeErrorBody(w, r, http.StatusLengthRequired, "length_required", "Content-Length is required")
		return
	}

	res, err := h.service.AttachMedia(r.Context(), simpleasset.AttachMediaRequest{
		AssetID:      id,
		Body:         r.Body,
		DeclaredSize: r.ContentLength,
		FileName:     r.URL.Query().Get("filename"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	if res.Warning != "" {
		slog.Warn("Media attached without thumbnail", "asset_id", id, "warning", res.Warning)
	}
	render.JSON(w, r, res)
}

// UpdateMetadata edits title, description and privacy
func (h *AssetHandler) UpdateMetadata(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	var req UpdateMetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorBody(w, r, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}
	update := simpleasset.UpdateMetadataRequest{
		AssetID:     id,
		Title:       req.Title,
		Description: req.Description,
	}
	if req.Privacy != nil {
		privacy, err := simpleasset.ParsePrivacyStatus(*req.Privacy)
		if err != nil {
			writeError(w, r, err)
			return
		}
		update.Privacy = &privacy
	}

	asset, err := h.service.UpdateMetadata(r.Context(), update)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, asset)
}

// ReplaceThumbnail stores the request body as the asset's thumbnail
func (h *AssetHandler) ReplaceThumbnail(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	// One byte past the limit is enough for the service to reject oversize bodies.
	image, err := io.ReadAll(io.LimitReader(r.Body, h.maxThumbnailBytes+1))
	if err != nil {
		writeErrorBody(w, r, http.StatusBadRequest, "invalid_input", "Failed to read request body")
		return
	}

	locator, err := h.service.ReplaceThumbnail(r.Context(), simpleasset.ReplaceThumbnailRequest{AssetID: id, Image: image})
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, ThumbnailResponse{ThumbnailLocator: locator})
}

// Publish makes an uploaded draft visible
func (h *AssetHandler) Publish(w http.ResponseWriter, r *http.Request) {
	id, ok := h.authorize(w, r)
	if !ok {
		return
	}

	if err := h.service.Publish(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Asset published", "asset_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// AbandonDraft discards a draft that was never published
func (h *AssetHandler) AbandonDraft(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	res, err := h.service.AbandonDraft(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.Status(r, statusForOutcome(res.Outcome))
	render.JSON(w, r, res)
}

// Reclaim deletes an asset. The mode query parameter selects soft (default) or hard.
func (h *AssetHandler) Reclaim(w http.ResponseWriter, r *http.Request) {
	p, ok := h.principal(w, r)
	if !ok {
		return
	}
	id, ok := assetID(w, r)
	if !ok {
		return
	}

	mode := simpleasset.ReclaimSoft
	if raw := r.URL.Query().Get("mode"); raw != "" {
		parsed, err := simpleasset.ParseReclaimMode(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		mode = parsed
	}

	res := h.service.Reclaim(r.Context(), simpleasset.ReclaimRequest{AssetID: id, Mode: mode, RequestedBy: p})
	slog.Info("Reclaim finished", "asset_id", id, "mode", mode, "outcome", res.Outcome)
	render.Status(r, statusForOutcome(res.Outcome))
	render.JSON(w, r, res)
}

func (h *AssetHandler) principal(w http.ResponseWriter, r *http.Request) (simpleasset.Principal, bool) {
	p, err := PrincipalFromContext(r.Context())
	if err != nil {
		writeErrorBody(w, r, http.StatusUnauthorized, "unauthorized", "Invalid token claims")
		return p, false
	}
	return p, true
}

// authorize resolves the asset ID and checks the caller may manage the asset.
func (h *AssetHandler) authorize(w http.ResponseWriter, r *http.Request) (simpleasset.AssetID, bool) {
	p, ok := h.principal(w, r)
	if !ok {
		return 0, false
	}
	id, ok := assetID(w, r)
	if !ok {
		return 0, false
	}

	asset, err := h.service.GetAsset(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return 0, false
	}
	if !h.authorizer.CanReclaim(r.Context(), p, asset) {
		writeError(w, r, simpleasset.ErrForbidden)
		return 0, false
	}
	return id, true
}

func assetID(w http.ResponseWriter, r *http.Request) (simpleasset.AssetID, bool) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		slog.Error("Invalid asset ID", "asset_id", idStr, "error", err)
		writeErrorBody(w, r, http.StatusBadRequest, "invalid_input", "Invalid asset ID")
		return 0, false
	}
	return simpleasset.AssetID(id), true
}
