package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printloom/go-services/internal/artifacts"
	"github.com/printloom/go-services/internal/design"
	"github.com/printloom/go-services/internal/design/publish"
	"github.com/printloom/go-services/internal/gateway"
	"github.com/printloom/go-services/internal/store"
	"github.com/printloom/go-services/pkg/logger"
)

// Handler exposes the design registry and publish commands over HTTP.
// Renderer, advisor, uploader and mockup store are optional; their routes
// return 503 when the collaborator is not configured.
type Handler struct {
	svc        *design.Service
	orch       *publish.Orchestrator
	renderer   gateway.MockupRenderer
	advisor    gateway.MetadataAdvisor
	uploader   gateway.ArtUploader
	storefront gateway.StorefrontReader
	mockups    *artifacts.MockupStore
}

func New(svc *design.Service, orch *publish.Orchestrator) *Handler {
	return &Handler{svc: svc, orch: orch}
}

func (h *Handler) WithRenderer(r gateway.MockupRenderer) *Handler { h.renderer = r; return h }
func (h *Handler) WithAdvisor(a gateway.MetadataAdvisor) *Handler { h.advisor = a; return h }
func (h *Handler) WithArtUploader(u gateway.ArtUploader) *Handler { h.uploader = u; return h }
func (h *Handler) WithStorefront(sf gateway.StorefrontReader) *Handler { h.storefront = sf; return h }
func (h *Handler) WithMockupStore(s *artifacts.MockupStore) *Handler { h.mockups = s; return h }

func (h *Handler) Register(r *gin.Engine) {
	r.GET("/api/designs", h.ListDesigns)
	r.POST("/api/designs", h.RegisterDesign)
	r.GET("/api/designs/:slug", h.GetDesign)
	r.DELETE("/api/designs/:slug", h.DeleteDesign)

	r.POST("/api/designs/:slug/publish/product", h.CreateProduct)
	r.POST("/api/designs/:slug/publish/storefront", h.PublishProduct)
	r.POST("/api/designs/:slug/publish/images", h.SyncImages)

	r.GET("/api/designs/:slug/storefront", h.GetStorefrontProduct)
	r.POST("/api/designs/:slug/mockups", h.RenderMockups)
	r.GET("/api/designs/:slug/mockups/*key", h.GetMockup)
	r.POST("/api/designs/:slug/metadata/suggest", h.SuggestMetadata)
}

// ListDesigns returns a short listing (slug, title, status).
func (h *Handler) ListDesigns(c *gin.Context) {
	recs, err := h.svc.List()
	if err != nil {
		h.storeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(recs))
	for _, r := range recs {
		out = append(out, gin.H{"slug": r.Slug, "title": r.Title, "status": r.Status, "updatedAt": r.UpdatedAt})
	}
	c.JSON(http.StatusOK, out)
}

// RegisterDesign creates a Draft record for a new design.
func (h *Handler) RegisterDesign(c *gin.Context) {
	var req struct {
		Slug           string   `json:"slug" binding:"required"`
		Title          string   `json:"title" binding:"required"`
		SourceImageRef string   `json:"source_image_ref" binding:"required"`
		Tags           []string `json:"tags"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.Register(req.Slug, req.Title, req.SourceImageRef, req.Tags)
	if err != nil {
		if errors.Is(err, design.ErrExists) {
			c.JSON(http.StatusConflict, gin.H{"error": "slug already registered"})
			return
		}
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) GetDesign(c *gin.Context) {
	rec, err := h.svc.Get(c.Param("slug"))
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (h *Handler) DeleteDesign(c *gin.Context) {
	if err := h.svc.Delete(c.Param("slug")); err != nil {
		if errors.Is(err, design.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.storeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CreateProduct drives the create_product command. When the product spec's print
// areas carry no media ids and an art uploader is configured, the design's
// source image is pushed to the media library first and referenced.
func (h *Handler) CreateProduct(c *gin.Context) {
	slug := c.Param("slug")
	var spec gateway.ProductSpec
	if err := c.ShouldBindJSON(&spec); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if spec.BlueprintID <= 0 || spec.PrintProviderID <= 0 || len(spec.Variants) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "blueprint_id, print_provider_id and variants are required"})
		return
	}
	if h.uploader != nil {
		if err := h.fillMissingArt(c, slug, &spec); err != nil {
			h.stepError(c, err)
			return
		}
	}
	res, err := h.orch.CreateProduct(c.Request.Context(), slug, spec)
	h.writeStep(c, res, err)
}

// PublishProduct drives the publish_product command.
func (h *Handler) PublishProduct(c *gin.Context) {
	details := gateway.DefaultPublishDetails()
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&details); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	res, err := h.orch.PublishProduct(c.Request.Context(), c.Param("slug"), details)
	h.writeStep(c, res, err)
}

// SyncImages drives the sync_images command. Image refs default to the
// design's recorded mockups; object-store keys are converted to presigned
// URLs so the storefront can fetch them.
func (h *Handler) SyncImages(c *gin.Context) {
	slug := c.Param("slug")
	var req struct {
		ProductID string   `json:"product_id"`
		ImageRefs []string `json:"image_refs"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	refs := req.ImageRefs
	if len(refs) == 0 {
		rec, err := h.svc.Get(slug)
		if err != nil {
			if errors.Is(err, design.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
				return
			}
			h.storeError(c, err)
			return
		}
		refs = rec.Mockups
	}
	if len(refs) == 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no mockup refs to sync"})
		return
	}
	if h.mockups != nil {
		refs = h.presign(c, slug, refs)
	}
	res, err := h.orch.SyncImages(c.Request.Context(), slug, req.ProductID, refs)
	h.writeStep(c, res, err)
}

// GetStorefrontProduct fetches the live storefront product so the caller can
// verify what publishing and image sync actually produced.
func (h *Handler) GetStorefrontProduct(c *gin.Context) {
	if h.storefront == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storefront gateway not configured"})
		return
	}
	rec, err := h.svc.Get(c.Param("slug"))
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.storeError(c, err)
		return
	}
	if rec.Shopify == nil || rec.Shopify.ProductID == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "no storefront product recorded for design"})
		return
	}
	product, err := h.storefront.GetProduct(c.Request.Context(), rec.Shopify.ProductID)
	if err != nil {
		ge := gateway.AsError(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": ge.Message, "kind": ge.Kind})
		return
	}
	c.JSON(http.StatusOK, product)
}

// RenderMockups renders the design onto each requested template and attaches
// the resulting refs.
func (h *Handler) RenderMockups(c *gin.Context) {
	if h.renderer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mockup renderer not configured"})
		return
	}
	slug := c.Param("slug")
	var req struct {
		Templates []string `json:"templates" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.svc.Get(slug)
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.storeError(c, err)
		return
	}
	refs := make([]string, 0, len(req.Templates))
	for _, tpl := range req.Templates {
		ref, err := h.renderer.Render(c.Request.Context(), rec.SourceImageRef, tpl)
		if err != nil {
			ge := gateway.AsError(err)
			c.JSON(http.StatusBadGateway, gin.H{"error": ge.Message, "kind": ge.Kind})
			return
		}
		refs = append(refs, ref)
	}
	rec, err = h.svc.AttachMockups(slug, refs)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// GetMockup streams a stored mockup from the artifact store.
func (h *Handler) GetMockup(c *gin.Context) {
	if h.mockups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "mockup store not configured"})
		return
	}
	key := path.Join("mockups", c.Param("slug"), path.Clean(c.Param("key")))
	obj, err := h.mockups.Open(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "mockup not found"})
		return
	}
	defer obj.Close()
	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, obj)
}

// SuggestMetadata asks the advisor for listing copy and applies it.
func (h *Handler) SuggestMetadata(c *gin.Context) {
	if h.advisor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "metadata advisor not configured"})
		return
	}
	slug := c.Param("slug")
	rec, err := h.svc.Get(slug)
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		h.storeError(c, err)
		return
	}
	context := fmt.Sprintf("title=%s tags=%v", rec.Title, rec.Tags)
	md, err := h.advisor.Suggest(c.Request.Context(), context)
	if err != nil {
		ge := gateway.AsError(err)
		c.JSON(http.StatusBadGateway, gin.H{"error": ge.Message, "kind": ge.Kind})
		return
	}
	rec, err = h.svc.ApplyMetadata(slug, md)
	if err != nil {
		h.storeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// writeStep maps an orchestrator outcome onto the HTTP contract: 200 for
// success or idempotent no-op, 202 + Retry-After for Retrying, 409 for
// in-flight collisions and version races, 422 for invalid transitions and
// validation failures, 502/504 for exhausted upstream failures.
func (h *Handler) writeStep(c *gin.Context, res publish.Result, err error) {
	if err != nil {
		h.stepError(c, err)
		return
	}
	rec := res.Record
	switch rec.Status {
	case design.StatusRetrying:
		c.Header("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter/time.Second)))
		c.JSON(http.StatusAccepted, rec)
	case design.StatusFailed:
		status := http.StatusBadGateway
		if rec.LastError != nil {
			switch gateway.Kind(rec.LastError.Kind) {
			case gateway.KindValidation:
				status = http.StatusUnprocessableEntity
			case gateway.KindNetwork:
				status = http.StatusGatewayTimeout
			}
		}
		c.JSON(status, rec)
	default:
		c.JSON(http.StatusOK, rec)
	}
}

func (h *Handler) stepError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, publish.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, publish.ErrInFlight), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, publish.ErrInvalidTransition):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		ge := gateway.AsError(err)
		if ge.Kind == gateway.KindValidation {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": ge.Message})
			return
		}
		h.storeError(c, err)
	}
}

func (h *Handler) storeError(c *gin.Context, err error) {
	var corrupt *store.CorruptError
	if errors.As(err, &corrupt) {
		logger.Errorf("corrupt collection detected: %v", corrupt)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store corrupt; operator intervention required"})
		return
	}
	logger.Errorf("request failed: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

// fillMissingArt uploads the design's source image when placeholders carry
// no media ids yet, mirroring the upload-then-reference flow the media
// library requires.
func (h *Handler) fillMissingArt(c *gin.Context, slug string, spec *gateway.ProductSpec) error {
	missing := false
	for _, pa := range spec.PrintAreas {
		for _, ph := range pa.Placeholders {
			for _, img := range ph.Images {
				if img.ID == "" {
					missing = true
				}
			}
		}
	}
	if !missing {
		return nil
	}
	rec, err := h.svc.Get(slug)
	if err != nil {
		if errors.Is(err, design.ErrNotFound) {
			return publish.ErrNotFound
		}
		return err
	}
	id, err := h.uploader.UploadArt(c.Request.Context(), slug+".png", rec.SourceImageRef)
	if err != nil {
		return err
	}
	for i := range spec.PrintAreas {
		for j := range spec.PrintAreas[i].Placeholders {
			for k := range spec.PrintAreas[i].Placeholders[j].Images {
				if spec.PrintAreas[i].Placeholders[j].Images[k].ID == "" {
					spec.PrintAreas[i].Placeholders[j].Images[k].ID = id
				}
			}
		}
	}
	return nil
}

// presign converts object-store keys into presigned URLs. Refs that are
// already URLs pass through untouched.
func (h *Handler) presign(c *gin.Context, slug string, refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if len(ref) > 4 && ref[:4] == "http" {
			out = append(out, ref)
			continue
		}
		u, err := h.mockups.PresignedURL(c.Request.Context(), ref, time.Hour)
		if err != nil {
			logger.Warnf("presign %s for %s failed: %v", ref, slug, err)
			out = append(out, ref)
			continue
		}
		out = append(out, u)
	}
	return out
}
