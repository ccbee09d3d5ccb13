// @title           Lookback History API
// @version         1.0
// @description     Rolling-window OHLCV history queries over live and stored minute bars

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8080
// @BasePath  /api/v1

package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	appinterfaces "lookback/internal/application/interfaces"
	appassets "lookback/internal/application/service/assets"
	apphistory "lookback/internal/application/service/history"
	domainassets "lookback/internal/domain/entity/assets"
	domainhistory "lookback/internal/domain/entity/history"
	infraassets "lookback/internal/infrastructure/assets"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const (
	historyBasePath = "/api/v1/history"
	assetsBasePath  = "/api/v1/assets"
	fieldsBasePath  = "/api/v1/fields"
)

var (
	errMissingUID    = errors.New("missing uid")
	errMissingAssets = errors.New("assets query param required")
	errMissingWindow = errors.New("window query param required")
)

type Handler struct {
	router   *gin.Engine
	assets   *appassets.Service
	history  *apphistory.Service
	cache    *redis.Client
	cacheTTL time.Duration
}

var _ appinterfaces.HTTPHandler = (*Handler)(nil)

func NewHandler(assets *appassets.Service, history *apphistory.Service, cache *redis.Client, cacheTTL time.Duration) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router:   router,
		assets:   assets,
		history:  history,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	hist := h.router.Group(historyBasePath)
	if h.cache != nil {
		hist.Use(h.cacheMiddleware())
	}
	{
		hist.GET("/days", h.getDays)
		hist.GET("/minutes", h.getMinutes)
	}

	h.router.GET(fieldsBasePath, h.getFields)

	assets := h.router.Group(assetsBasePath)
	{
		assets.POST("/", h.createAsset)
		assets.GET("/", h.listAssets)
		assets.GET("/:uid", h.getAsset)
		assets.DELETE("/:uid", h.deleteAsset)
	}
}

// History handlers

// getDays answers a day-granularity lookback query
// @Summary      Query daily history
// @Description  One row per trading session ending at the current clock; the last row tracks the in-progress session
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        assets  query     string  true   "Comma-separated asset symbols"
// @Param        window  query     string  true   "Window spec, e.g. 5d"
// @Param        field   query     string  false  "Field name (default price)"
// @Param        ffill   query     bool    false  "Forward-fill missing rows"
// @Success      200     {object}  tablePayload
// @Failure      400     {object}  map[string]string
// @Failure      422     {object}  map[string]string
// @Failure      500     {object}  map[string]string
// @Router       /history/days [get]
func (h *Handler) getDays(c *gin.Context) {
	h.handleHistoryQuery(c, h.history.Days)
}

// getMinutes answers a minute-granularity lookback query
// @Summary      Query minute history
// @Description  Trailing minute bars ending at the current clock; a d-suffixed window is session-aligned
// @Tags         history
// @Accept       json
// @Produce      json
// @Param        assets  query     string  true   "Comma-separated asset symbols"
// @Param        window  query     string  true   "Window spec, e.g. 390m or 2d"
// @Param        field   query     string  false  "Field name (default price)"
// @Param        ffill   query     bool    false  "Forward-fill missing rows"
// @Success      200     {object}  tablePayload
// @Failure      400     {object}  map[string]string
// @Failure      422     {object}  map[string]string
// @Failure      500     {object}  map[string]string
// @Router       /history/minutes [get]
func (h *Handler) getMinutes(c *gin.Context) {
	h.handleHistoryQuery(c, h.history.Minutes)
}

type historyQueryFunc func(ctx context.Context, assetList []domainassets.Asset, spec, field string, ffill bool) (*domainhistory.Table, error)

func (h *Handler) handleHistoryQuery(c *gin.Context, query historyQueryFunc) {
	symbols := c.Query("assets")
	if symbols == "" {
		writeError(c, http.StatusBadRequest, errMissingAssets)
		return
	}
	window := c.Query("window")
	if window == "" {
		writeError(c, http.StatusBadRequest, errMissingWindow)
		return
	}
	field := c.DefaultQuery("field", apphistory.FieldPrice)
	ffill, err := parseBoolQuery(c, "ffill")
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}

	assetList, err := h.assets.ResolveSymbols(c.Request.Context(), symbols)
	if err != nil {
		if errors.Is(err, infraassets.ErrAssetNotFound) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	table, err := query(c.Request.Context(), assetList, window, field, ffill)
	if err != nil {
		writeError(c, historyErrorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, newTablePayload(table))
}

// getFields lists queryable field names
// @Summary      List fields
// @Description  Every registered field name, built-ins and external registrations
// @Tags         fields
// @Produce      json
// @Success      200  {array}  string
// @Router       /fields [get]
func (h *Handler) getFields(c *gin.Context) {
	c.JSON(http.StatusOK, h.history.Fields().Names())
}

// Asset handlers

// createAsset registers an asset
// @Summary      Create asset
// @Description  Register a tradable asset; an existing symbol is updated in place
// @Tags         assets
// @Accept       json
// @Produce      json
// @Param        asset  body      assetPayload  true  "Asset data"
// @Success      201    {object}  domainassets.Asset
// @Failure      400    {object}  map[string]string
// @Failure      500    {object}  map[string]string
// @Router       /assets [post]
func (h *Handler) createAsset(c *gin.Context) {
	var payload assetPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	asset, err := payload.toDomain()
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.assets.CreateAsset(c.Request.Context(), asset); err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, asset)
}

// listAssets lists registered assets
// @Summary      List assets
// @Description  Every registered asset in symbol order
// @Tags         assets
// @Produce      json
// @Success      200  {array}   domainassets.Asset
// @Failure      500  {object}  map[string]string
// @Router       /assets [get]
func (h *Handler) listAssets(c *gin.Context) {
	list, err := h.assets.ListAssets(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

// getAsset retrieves an asset by UID
// @Summary      Get asset
// @Description  Get a registered asset by UID
// @Tags         assets
// @Produce      json
// @Param        uid   path      string  true  "Asset UID"
// @Success      200   {object}  domainassets.Asset
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /assets/{uid} [get]
func (h *Handler) getAsset(c *gin.Context) {
	uid, err := parseUIDParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	asset, err := h.assets.GetAsset(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, infraassets.ErrAssetNotFound) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, asset)
}

// deleteAsset removes an asset
// @Summary      Delete asset
// @Description  Soft-delete an asset by UID
// @Tags         assets
// @Produce      json
// @Param        uid   path      string  true  "Asset UID"
// @Success      204   "No Content"
// @Failure      400   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Failure      500   {object}  map[string]string
// @Router       /assets/{uid} [delete]
func (h *Handler) deleteAsset(c *gin.Context) {
	uid, err := parseUIDParam(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := h.assets.DeleteAsset(c.Request.Context(), uid); err != nil {
		if errors.Is(err, infraassets.ErrAssetNotFound) {
			writeError(c, http.StatusNotFound, err)
			return
		}
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Helpers

func historyErrorStatus(err error) int {
	switch {
	case errors.Is(err, apphistory.ErrInvalidWindowSpec), errors.Is(err, apphistory.ErrUnknownField):
		return http.StatusBadRequest
	case errors.Is(err, apphistory.ErrBackfillUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func parseUIDParam(c *gin.Context) (uuid.UUID, error) {
	uid, err := uuid.Parse(c.Param("uid"))
	if err != nil {
		return uuid.Nil, errMissingUID
	}
	return uid, nil
}

func parseBoolQuery(c *gin.Context, key string) (bool, error) {
	value := c.Query(key)
	if value == "" {
		return false, nil
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s query param must be a boolean", key)
	}
	return parsed, nil
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// cacheMiddleware caches GET responses in Redis.
func (h *Handler) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := h.cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := h.cache.Get(ctx, key).Result(); err == nil {
			c.Data(http.StatusOK, "application/json", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			_ = h.cache.Set(ctx, key, recorder.body.Bytes(), h.cacheTTL).Err()
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

func (h *Handler) cacheKey(c *gin.Context) string {
	return fmt.Sprintf("cache:%s:%s?%s", c.Request.Method, c.FullPath(), c.Request.URL.RawQuery)
}
