package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"raffle/internal/display"
	"raffle/internal/draw"
	"raffle/internal/models"
	"raffle/internal/roster"
	"raffle/internal/services"
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service   *services.LotteryService
	hub       *display.Hub
	templates *template.Template
}

// NewHTTPHandler creates a new HTTPHandler. templates may be nil, in which
// case the display page is not served.
func NewHTTPHandler(service *services.LotteryService, hub *display.Hub, templates *template.Template) *HTTPHandler {
	return &HTTPHandler{
		service:   service,
		hub:       hub,
		templates: templates,
	}
}

// RegisterRoutes registers all the application routes.
func (h *HTTPHandler) RegisterRoutes(router *gin.Engine) {
	if h.templates != nil {
		router.GET("/", h.ShowDisplay)
	}
	router.GET("/health", h.Health)
	router.GET("/ws", h.ServeWS)

	router.GET("/entries", h.ListEntries)
	router.POST("/entries", h.AddEntry)
	router.PUT("/entries/:id", h.RenameEntry)
	router.DELETE("/entries/:id", h.DeleteEntry)
	router.POST("/upload-entries-csv", h.UploadEntriesCSV)
	router.GET("/export-entries-csv", h.ExportEntriesCSV)

	router.GET("/settings", h.GetSettings)
	router.POST("/settings/entries-per-page", h.SetEntriesPerPage)
	router.POST("/settings/current-page", h.SetCurrentPage)
	router.POST("/settings/window-size", h.SetWindowSize)

	router.GET("/prizes", h.ListPrizes)
	router.POST("/prizes", h.AddPrize)
	router.PUT("/prizes/:index", h.UpdatePrize)
	router.DELETE("/prizes/:index", h.DeletePrize)
	router.POST("/prizes/reset", h.ResetPrizes)

	router.GET("/draw", h.DrawStatus)
	router.POST("/draw/start", h.StartDraw)
	router.POST("/draw/pause", h.PauseDraw)
	router.POST("/draw/cancel", h.CancelDraw)
	router.POST("/draw/toggle", h.ToggleDraw)

	router.GET("/results", h.ListResults)
	router.GET("/export-results-csv", h.ExportResultsCSV)
	router.DELETE("/results", h.ClearResults)

	router.POST("/save", h.Save)
}

// statusFor maps service errors onto HTTP status codes. Anything unknown,
// including *storage.PersistenceError, is a 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, roster.ErrDuplicateName),
		errors.Is(err, services.ErrSessionActive),
		errors.Is(err, services.ErrNoSession),
		errors.Is(err, draw.ErrAlreadyRolling),
		errors.Is(err, draw.ErrNotRolling),
		errors.Is(err, draw.ErrSessionClosed):
		return http.StatusConflict
	case errors.Is(err, draw.ErrEmptyPool),
		errors.Is(err, draw.ErrNoPrizesRemaining),
		errors.Is(err, models.ErrInvalidCount),
		errors.Is(err, models.ErrEmptyPrizeName),
		errors.Is(err, roster.ErrEmptyName):
		return http.StatusUnprocessableEntity
	case errors.Is(err, roster.ErrNotFound),
		errors.Is(err, services.ErrPrizeNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	} else {
		logger.Infof("%s %s rejected: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return n, true
}

// ShowDisplay renders the drawing surface, which follows the draw over /ws.
func (h *HTTPHandler) ShowDisplay(c *gin.Context) {
	data := gin.H{
		"title":  "Raffle",
		"Status": h.service.DrawStatus(),
	}
	if err := h.templates.ExecuteTemplate(c.Writer, "display.html", data); err != nil {
		logger.Infof("Error executing template: %v", err)
		c.String(http.StatusInternalServerError, "Template error")
	}
}

func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"displays": h.hub.ClientCount(),
	})
}

func (h *HTTPHandler) ServeWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request)
}

// ListEntries returns one page of the roster. Without ?page the stored page is used.
func (h *HTTPHandler) ListEntries(c *gin.Context) {
	page := 0
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid page"})
			return
		}
		page = n
	}

	p, err := h.service.EntryPage(page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type entryRequest struct {
	Name string `form:"name" json:"name"`
}

// AddEntry handles the submission for adding a new entrant.
func (h *HTTPHandler) AddEntry(c *gin.Context) {
	var req entryRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.service.AddEntry(req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *HTTPHandler) RenameEntry(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req entryRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.service.RenameEntry(id, req.Name); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "name": req.Name})
}

func (h *HTTPHandler) DeleteEntry(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if _, err := h.service.DeleteEntries(id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// UploadEntriesCSV replaces the roster with an uploaded CSV file.
func (h *HTTPHandler) UploadEntriesCSV(c *gin.Context) {
	file, _, err := c.Request.FormFile("entriesCSV")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Error retrieving file: " + err.Error()})
		return
	}
	defer file.Close()

	n, err := h.service.ImportRoster(file)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": n})
}

// ExportEntriesCSV handles the request to download the roster as a CSV file.
func (h *HTTPHandler) ExportEntriesCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=roster.csv")

	if err := h.service.ExportRoster(c.Writer); err != nil {
		logger.Infof("Error writing roster CSV: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}

func (h *HTTPHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Settings())
}

type entriesPerPageRequest struct {
	Value string `form:"value" json:"value"`
}

// SetEntriesPerPage takes the raw text typed by the user.
func (h *HTTPHandler) SetEntriesPerPage(c *gin.Context) {
	var req entriesPerPageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n, err := h.service.SetEntriesPerPage(req.Value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries_per_page": n, "current_page": 0})
}

type pageRequest struct {
	Page int `form:"page" json:"page"`
}

// SetCurrentPage stores the 1-based page shown by the host.
func (h *HTTPHandler) SetCurrentPage(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetCurrentPage(req.Page - 1); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Settings())
}

type windowSizeRequest struct {
	Width  int `form:"width" json:"width"`
	Height int `form:"height" json:"height"`
}

func (h *HTTPHandler) SetWindowSize(c *gin.Context) {
	var req windowSizeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.service.SetWindowSize(req.Width, req.Height); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.Settings())
}

func (h *HTTPHandler) ListPrizes(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Prizes())
}

type prizeRequest struct {
	Name  string    `form:"name" json:"name"`
	Count countText `form:"count" json:"count"`
}

// countText keeps the count as typed so models.ParseCount decides whether it
// is valid. JSON clients may send it as a number or as a string.
type countText string

func (t *countText) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = countText(s)
		return nil
	}
	*t = countText(b)
	return nil
}

// AddPrize handles the submission for adding a new prize.
func (h *HTTPHandler) AddPrize(c *gin.Context) {
	var req prizeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	count, err := models.ParseCount(string(req.Count))
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := h.service.AddPrize(req.Name, count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *HTTPHandler) UpdatePrize(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	var req prizeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	count, err := models.ParseCount(string(req.Count))
	if err != nil {
		respondError(c, err)
		return
	}

	p, err := h.service.UpdatePrize(index, req.Name, count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *HTTPHandler) DeletePrize(c *gin.Context) {
	index, ok := intParam(c, "index")
	if !ok {
		return
	}
	if err := h.service.DeletePrize(index); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *HTTPHandler) ResetPrizes(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.ResetPrizes())
}

func (h *HTTPHandler) DrawStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.DrawStatus())
}

func (h *HTTPHandler) StartDraw(c *gin.Context) {
	st, err := h.service.StartDraw()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// PauseDraw settles the current roll and returns the winner.
func (h *HTTPHandler) PauseDraw(c *gin.Context) {
	res, err := h.service.PauseDraw()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *HTTPHandler) CancelDraw(c *gin.Context) {
	if err := h.service.CancelDraw(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.service.DrawStatus())
}

// ToggleDraw mirrors the space key: start when idle, settle when rolling.
func (h *HTTPHandler) ToggleDraw(c *gin.Context) {
	res, err := h.service.ToggleDraw()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": h.service.DrawStatus(),
		"result": res,
	})
}

func (h *HTTPHandler) ListResults(c *gin.Context) {
	results, err := h.service.Results()
	if err != nil {
		respondError(c, err)
		return
	}
	if results == nil {
		results = []models.LotteryResult{}
	}
	c.JSON(http.StatusOK, results)
}

// ExportResultsCSV handles the request to download the draw results as a CSV file.
func (h *HTTPHandler) ExportResultsCSV(c *gin.Context) {
	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", "attachment;filename=lottery_results.csv")

	if err := h.service.ExportResultsCSV(c.Writer); err != nil {
		logger.Infof("Error writing results CSV: %v", err)
		c.String(http.StatusInternalServerError, "Error writing CSV")
	}
}

func (h *HTTPHandler) ClearResults(c *gin.Context) {
	n, err := h.service.ClearResults()
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

// Save writes everything to disk and takes a roster backup.
func (h *HTTPHandler) Save(c *gin.Context) {
	if err := h.service.Save(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"saved": true})
}
