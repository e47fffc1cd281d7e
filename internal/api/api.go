package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yok-tottii/EzClassify/internal/audio"
	"github.com/yok-tottii/EzClassify/internal/classifier"
	"github.com/yok-tottii/EzClassify/internal/config"
	"github.com/yok-tottii/EzClassify/internal/live"
	"github.com/yok-tottii/EzClassify/internal/logger"
	"github.com/yok-tottii/EzClassify/internal/recording"
	"github.com/yok-tottii/EzClassify/internal/samples"
	"github.com/yok-tottii/EzClassify/internal/training"
)

// LiveController is the part of live.Loop the API drives
type LiveController interface {
	Start(ctx context.Context) (string, error)
	Stop()
	Snapshot() live.Snapshot
}

// Trainer is the part of training.Orchestrator the API drives
type Trainer interface {
	TrainAll(ctx context.Context) (string, error)
	InitNetwork(ctx context.Context, name string) (string, error)
	SaveNetwork(ctx context.Context) (string, bool, error)
	CurrentNetwork() string
	LastSavedNetwork(ctx context.Context) (string, bool, error)
}

// Deps are the components behind the API
type Deps struct {
	Live       LiveController
	Trainer    Trainer
	Classifier live.Classifier
	Recorder   recording.Recorder
	Player     audio.Player
	Store      *samples.Store
	// RunContext bounds live runs started through the API
	RunContext context.Context
	Logger     *logger.Logger
}

// Handler manages API endpoints
type Handler struct {
	Deps
}

// New creates a new API handler
func New(deps Deps) *Handler {
	if deps.RunContext == nil {
		deps.RunContext = context.Background()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}
	return &Handler{Deps: deps}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.GET("/status", h.status)

		api.POST("/live/start", h.liveStart)
		api.POST("/live/stop", h.liveStop)

		api.GET("/samples/:bucket", h.listSamples)
		api.DELETE("/samples/:bucket/:index", h.deleteSample)
		api.POST("/samples/:bucket/:index/play", h.playSample)
		api.DELETE("/samples", h.deleteAllSamples)

		api.POST("/record/:bucket", h.record)

		api.POST("/network/init", h.initNetwork)
		api.POST("/network/save", h.saveNetwork)
		api.POST("/train", h.train)
		api.POST("/classify", h.classify)
	}
}

func abort(c *gin.Context, status int, err error) {
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

// replyStatus maps a text endpoint failure to an HTTP status
func replyStatus(err error) int {
	var te *classifier.TransportError
	if errors.As(err, &te) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (h *Handler) status(c *gin.Context) {
	name, _, err := h.Trainer.LastSavedNetwork(c.Request.Context())
	if err != nil {
		h.Logger.Warn("Failed to read last saved network: %v", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"live":               h.Live.Snapshot(),
		"current_network":    h.Trainer.CurrentNetwork(),
		"last_saved_network": name,
	})
}

func (h *Handler) liveStart(c *gin.Context) {
	runID, err := h.Live.Start(h.RunContext)
	if errors.Is(err, live.ErrRunning) {
		abort(c, http.StatusConflict, err)
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"run_id": runID})
}

func (h *Handler) liveStop(c *gin.Context) {
	h.Live.Stop()
	c.JSON(http.StatusOK, h.Live.Snapshot())
}

func (h *Handler) bucket(c *gin.Context) (samples.Bucket, bool) {
	bucket, err := samples.ParseBucket(c.Param("bucket"))
	if err != nil {
		abort(c, http.StatusNotFound, err)
		return "", false
	}
	return bucket, true
}

// SampleInfo is a listed sample with its duration
type SampleInfo struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Bucket   string  `json:"bucket"`
	Duration float64 `json:"duration_seconds"`
}

func (h *Handler) listSamples(c *gin.Context) {
	bucket, ok := h.bucket(c)
	if !ok {
		return
	}

	list, err := h.Store.List(bucket)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	result := make([]SampleInfo, 0, len(list))
	for i, s := range list {
		info := SampleInfo{Index: i, Name: s.Name, Bucket: string(s.Bucket)}
		if d, err := h.Store.Duration(s); err == nil {
			info.Duration = d.Seconds()
		} else {
			h.Logger.Debug("No duration for %s: %v", s.Path, err)
		}
		result = append(result, info)
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) deleteSample(c *gin.Context) {
	bucket, ok := h.bucket(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	err = h.Store.Delete(bucket, index)
	if errors.Is(err, samples.ErrIndexOutOfRange) {
		abort(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) playSample(c *gin.Context) {
	if h.Player == nil {
		abort(c, http.StatusServiceUnavailable, errors.New("no audio output available"))
		return
	}

	bucket, ok := h.bucket(c)
	if !ok {
		return
	}

	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	sample, err := h.Store.Get(bucket, index)
	if errors.Is(err, samples.ErrIndexOutOfRange) {
		abort(c, http.StatusNotFound, err)
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	if err := h.Player.Play(c.Request.Context(), sample.Path); err != nil {
		h.Logger.Warn("Playback of %s failed: %v", sample.Name, err)
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteAllSamples(c *gin.Context) {
	if err := h.Store.DeleteAll(c.Request.Context()); err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type recordRequest struct {
	Duration int `json:"duration" form:"duration"`
}

func (h *Handler) record(c *gin.Context) {
	bucket, ok := h.bucket(c)
	if !ok {
		return
	}
	if bucket == samples.Temp {
		abort(c, http.StatusBadRequest, errors.New("the temp bucket is reserved for live classification"))
		return
	}

	// duration comes from a JSON body or the query string
	var req recordRequest
	bind := c.ShouldBindQuery
	if c.Request.ContentLength > 0 {
		bind = c.ShouldBindJSON
	}
	if err := bind(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if req.Duration == 0 {
		req.Duration = config.RecordDurations()[0]
	}
	if !config.IsValidRecordDuration(req.Duration) {
		abort(c, http.StatusBadRequest, errors.New("duration must be a multiple of 5 between 5 and 60 seconds"))
		return
	}

	sample, err := h.Store.NewSamplePath(bucket)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	err = h.Recorder.Record(c.Request.Context(), sample.Path, time.Duration(req.Duration)*time.Second)
	if errors.Is(err, recording.ErrBusy) {
		abort(c, http.StatusConflict, err)
		return
	}
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}

	c.JSON(http.StatusCreated, sample)
}

type initRequest struct {
	Name string `json:"name"`
}

func (h *Handler) initNetwork(c *gin.Context) {
	var req initRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	reply, err := h.Trainer.InitNetwork(c.Request.Context(), strings.TrimSpace(req.Name))
	if errors.Is(err, classifier.ErrEmptyNetworkName) {
		c.JSON(http.StatusBadRequest, gin.H{"reply": reply, "error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(replyStatus(err), gin.H{"reply": reply, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply})
}

func (h *Handler) saveNetwork(c *gin.Context) {
	reply, saved, err := h.Trainer.SaveNetwork(c.Request.Context())
	if err != nil {
		c.JSON(replyStatus(err), gin.H{"reply": reply, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply": reply,
		"saved": saved,
	})
}

func (h *Handler) train(c *gin.Context) {
	reply, err := h.Trainer.TrainAll(c.Request.Context())
	if errors.Is(err, training.ErrNoSamples) {
		abort(c, http.StatusBadRequest, err)
		return
	}
	if err != nil {
		c.JSON(replyStatus(err), gin.H{"reply": reply, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply":   reply,
		"success": classifier.IsTrainingSuccess(reply),
		"html":    classifier.IsHTMLReply(reply),
	})
}

func (h *Handler) classify(c *gin.Context) {
	sample, ok, err := h.Store.MostRecent(samples.Classify)
	if err != nil {
		abort(c, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		abort(c, http.StatusNotFound, errors.New("no recording in the classify bucket"))
		return
	}

	result, err := h.Classifier.Classify(c.Request.Context(), sample)
	if err != nil {
		h.Logger.Warn("Classification of %s failed: %v", sample.Name, err)
		abort(c, http.StatusBadGateway, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sample":     sample.Name,
		"class":      result.Class,
		"confidence": result.Confidence,
	})
}
