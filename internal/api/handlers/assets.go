package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/solidus-pim/server/internal/api/middleware"
	"github.com/solidus-pim/server/internal/api/problem"
	"github.com/solidus-pim/server/internal/domain/assets"
	"github.com/solidus-pim/server/internal/domain/ids"
	"github.com/solidus-pim/server/internal/domain/products"
)

// maxUploadBytes caps multipart uploads at 256 MiB.
const maxUploadBytes = 256 << 20

type AssetsHandler struct {
	Service *assets.Service
	Env     string
}

func NewAssetsHandler(service *assets.Service, env string) *AssetsHandler {
	return &AssetsHandler{Service: service, Env: env}
}

// Upload registers a multipart file upload. Duplicate content returns 409
// with the existing asset so clients can link to it instead.
func (h *AssetsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", fmt.Errorf("file field is required: %w", err), h.Env)
		return
	}
	defer func() { _ = file.Close() }()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	params := assets.RegisterParams{
		FileName: header.Filename,
		MIMEType: mimeType,
		Title:    r.FormValue("title"),
		AltText:  r.FormValue("alt_text"),
	}

	asset, err := h.Service.Register(r.Context(), params, file, middleware.ActorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, assets.ErrDuplicate) && asset != nil {
			writeJSON(w, http.StatusConflict, asset)
			return
		}
		if errors.Is(err, assets.ErrInvalidInput) {
			problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, asset)
}

type assetListResponse struct {
	Items []assets.Asset `json:"items"`
	Total int64          `json:"total"`
}

func (h *AssetsHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	filters := assets.Filters{
		Type:   assets.Type(strings.TrimSpace(r.URL.Query().Get("type"))),
		Query:  strings.TrimSpace(r.URL.Query().Get("q")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}

	items, total, err := h.Service.List(r.Context(), filters)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, assetListResponse{Items: items, Total: total})
}

func (h *AssetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	asset, err := h.Service.Get(r.Context(), ulidValue)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, asset)
}

// Download streams the original bytes and bumps the download counter.
func (h *AssetsHandler) Download(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	asset, content, err := h.Service.Open(r.Context(), ulidValue)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}
	defer func() { _ = content.Close() }()

	w.Header().Set("Content-Type", asset.MIMEType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", asset.FileName))
	if asset.SizeBytes > 0 {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", asset.SizeBytes))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, content)
}

func (h *AssetsHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	if err := h.Service.RecordView(r.Context(), ulidValue); err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AssetsHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	ulidValue := pathParam(r, "id")
	if err := ids.ValidateULID(ulidValue); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	files, err := h.Service.ListFiles(r.Context(), ulidValue)
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": files})
}

type linkAssetRequest struct {
	AssetID   string `json:"asset_id"`
	IsPrimary bool   `json:"is_primary"`
	SortOrder int    `json:"sort_order"`
}

func (h *AssetsHandler) LinkToProduct(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	productULID := pathParam(r, "id")
	if err := ids.ValidateULID(productULID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	var input linkAssetRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", err, h.Env)
		return
	}
	if err := ids.ValidateULID(input.AssetID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "asset_id", Message: "invalid ULID"}, h.Env)
		return
	}

	link, err := h.Service.LinkToProduct(r.Context(), productULID, input.AssetID, input.IsPrimary, input.SortOrder, middleware.ActorFromContext(r.Context()))
	if err != nil {
		if errors.Is(err, assets.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusCreated, link)
}

func (h *AssetsHandler) UnlinkFromProduct(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	productULID := pathParam(r, "id")
	assetULID := pathParam(r, "assetID")
	if err := ids.ValidateULID(productULID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}
	if err := ids.ValidateULID(assetULID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "assetID", Message: "invalid ULID"}, h.Env)
		return
	}

	if err := h.Service.UnlinkFromProduct(r.Context(), productULID, assetULID, middleware.ActorFromContext(r.Context())); err != nil {
		if errors.Is(err, assets.ErrLinkNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *AssetsHandler) ListProductAssets(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	productULID := pathParam(r, "id")
	if err := ids.ValidateULID(productULID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}

	links, err := h.Service.ListProductAssets(r.Context(), productULID)
	if err != nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"items": links})
}

func (h *AssetsHandler) SetPrimaryImage(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.Service == nil {
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", nil, h.Env)
		return
	}

	productULID := pathParam(r, "id")
	assetULID := pathParam(r, "assetID")
	if err := ids.ValidateULID(productULID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "id", Message: "invalid ULID"}, h.Env)
		return
	}
	if err := ids.ValidateULID(assetULID); err != nil {
		problem.Write(w, r, http.StatusBadRequest, "https://solidus-pim.dev/problems/validation-error", "Invalid request", products.FilterError{Field: "assetID", Message: "invalid ULID"}, h.Env)
		return
	}

	if err := h.Service.SetPrimaryImage(r.Context(), productULID, assetULID, middleware.ActorFromContext(r.Context())); err != nil {
		if errors.Is(err, assets.ErrLinkNotFound) || errors.Is(err, assets.ErrNotFound) {
			problem.Write(w, r, http.StatusNotFound, "https://solidus-pim.dev/problems/not-found", "Not found", err, h.Env)
			return
		}
		problem.Write(w, r, http.StatusInternalServerError, "https://solidus-pim.dev/problems/server-error", "Server error", err, h.Env)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
