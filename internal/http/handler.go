package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lpr-service/internal/config"
	"lpr-service/internal/service"
	"lpr-service/internal/utils"
)

const maxUploadSize = 10 << 20

type Handler struct {
	vehicleService *service.VehicleService
	scanService    *service.ScanService
	config         *config.Config
	log            zerolog.Logger
}

func NewHandler(
	vehicleService *service.VehicleService,
	scanService *service.ScanService,
	cfg *config.Config,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		vehicleService: vehicleService,
		scanService:    scanService,
		config:         cfg,
		log:            log,
	}
}

func (h *Handler) Register(r *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Upload path used by scanners running with the api backend.
	r.POST("/api/vehicles", h.uploadVehicle)

	public := r.Group("/api/v1")
	{
		public.POST("/vehicles/upload", h.uploadVehicle)
		public.GET("/vehicles", h.listVehicles)
		public.GET("/vehicles/export", h.exportVehicles)
		public.GET("/pipeline/status", h.checkPipelineStatus)
	}

	protected := r.Group("/api/v1")
	protected.Use(authMiddleware)
	{
		protected.POST("/scans", h.createScan)
		protected.GET("/scans", h.listScans)
		protected.GET("/scans/:id", h.getScan)
	}
}

func (h *Handler) uploadVehicle(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadSize)

	plateNumber := strings.TrimSpace(c.PostForm("plateNumber"))
	if plateNumber == "" {
		c.JSON(http.StatusBadRequest, errorResponse("plateNumber is required"))
		return
	}

	fileHeader, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("image is required"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.log.Error().Err(err).Msg("failed to open uploaded image")
		c.JSON(http.StatusBadRequest, errorResponse("invalid image"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to read uploaded image")
		c.JSON(http.StatusBadRequest, errorResponse("invalid image"))
		return
	}

	h.log.Info().
		Str("plate", plateNumber).
		Str("filename", fileHeader.Filename).
		Int64("size", fileHeader.Size).
		Str("remote_addr", c.ClientIP()).
		Msg("received vehicle upload")

	vehicle, err := h.vehicleService.Register(c.Request.Context(), plateNumber, data)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, vehicle)
}

func (h *Handler) listVehicles(c *gin.Context) {
	limit, offset := pageParams(c)

	vehicles, err := h.vehicleService.List(c.Request.Context(), plateParam(c), limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, successResponse(vehicles))
}

func (h *Handler) exportVehicles(c *gin.Context) {
	data, err := h.vehicleService.Export(c.Request.Context(), plateParam(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	filename := "vehicles_" + time.Now().Format("20060102_150405") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

func (h *Handler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("handler error")
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}

// checkPipelineStatus reports which inference and persistence endpoints are
// configured and whether they answer at all.
func (h *Handler) checkPipelineStatus(c *gin.Context) {
	endpoints := map[string]string{
		"plate_detector": h.config.Detector.PlateURL,
		"recognizer":     h.config.Recognizer.URL,
	}
	if h.config.Detector.VehicleBackend == "http" {
		endpoints["vehicle_detector"] = h.config.Detector.VehicleURL
	}

	client := &http.Client{Timeout: 5 * time.Second}
	status := gin.H{
		"vehicle_backend":  h.config.Detector.VehicleBackend,
		"dispatch_backend": h.config.Dispatch.Backend,
		"frame_interval":   h.config.Scan.FrameInterval,
	}
	healthy := true
	for name, endpoint := range endpoints {
		entry := gin.H{"url": utils.RedactURL(endpoint), "configured": endpoint != ""}
		if endpoint == "" {
			entry["reachable"] = false
			healthy = false
			status[name] = entry
			continue
		}
		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, endpoint, nil)
		if err == nil {
			var resp *http.Response
			if resp, err = client.Do(req); err == nil {
				resp.Body.Close()
				entry["reachable"] = resp.StatusCode < 500
				entry["http_status"] = resp.StatusCode
			}
		}
		if err != nil {
			entry["reachable"] = false
			entry["error"] = err.Error()
			healthy = false
		}
		status[name] = entry
	}

	h.log.Info().Bool("healthy", healthy).Msg("pipeline status checked")

	c.JSON(http.StatusOK, gin.H{
		"healthy": healthy,
		"status":  status,
	})
}

func plateParam(c *gin.Context) *string {
	if plate := strings.TrimSpace(c.Query("plate")); plate != "" {
		return &plate
	}
	return nil
}

func pageParams(c *gin.Context) (int, int) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := parseInt(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	offset := 0
	if o := c.Query("offset"); o != "" {
		if parsed, err := parseInt(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}

func successResponse(data interface{}) gin.H {
	return gin.H{
		"data": data,
	}
}

func errorResponse(message string) gin.H {
	return gin.H{
		"error": message,
	}
}

func parseInt(s string) (int, error) {
	return strconv.Atoi(s)
}
