package main

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/sirupsen/logrus"
	"github.com/videoflix/videoflix/internal"
)

// allowedVideoExts is the upload extension whitelist.
var allowedVideoExts = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".flv": true, ".wmv": true,
}

// videoStore is the subset of internal.VideoStore the handlers use; tests
// substitute a stub.
type videoStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, v *internal.Video) error
	GetByID(ctx context.Context, id uuid.UUID) (*internal.Video, error)
	List(ctx context.Context) ([]internal.Video, error)
	DeleteTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*internal.Video, error)
}

// txBeginner is the part of *pgxpool.Pool the write handlers use to open
// transactions; tests substitute a stub.
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// jobDispatcher is the subset of internal.Dispatcher the handlers use.
type jobDispatcher interface {
	EnqueueTranscodeTx(ctx context.Context, tx pgx.Tx, sourcePath string) error
	EnqueueCleanupTx(ctx context.Context, tx pgx.Tx, sourcePath string) error
	EnqueueRemoveFileTx(ctx context.Context, tx pgx.Tx, path string) error
}

// Server wires the HTTP API: video CRUD triggering background jobs, and the
// HLS streaming endpoints.
type Server struct {
	cfg        *internal.Config
	db         txBeginner
	videos     videoStore
	dispatcher jobDispatcher
	log        *logrus.Logger
}

func NewServer(cfg *internal.Config, db txBeginner, videos videoStore, dispatcher jobDispatcher, log *logrus.Logger) *Server {
	return &Server{
		cfg:        cfg,
		db:         db,
		videos:     videos,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Routes builds the gin engine with all middleware and handlers attached.
func (s *Server) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(s.log))

	api := engine.Group("/api", authRequired(s.cfg.Auth.JWTSecret))
	{
		api.GET("/videos", s.handleListVideos)
		api.POST("/videos", s.handleCreateVideo)
		api.DELETE("/videos/:movie_id", s.handleDeleteVideo)

		// One route serves both the playlist and the segments: gin cannot
		// register a static "index.m3u8" sibling next to a ":filename"
		// wildcard, so the handler dispatches on the filename.
		api.GET("/video/:movie_id/:resolution/:filename", s.handleHLSFile)
	}

	return engine
}

// notFound is the single error shape for everything the streaming endpoints
// reject: unknown videos, invalid resolutions, malformed segment names and
// missing files all look identical to the client.
func notFound(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "Not found."})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": msg})
}

func (s *Server) handleListVideos(c *gin.Context) {
	videos, err := s.videos.List(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Error("failed to list videos")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
		return
	}
	c.JSON(http.StatusOK, videos)
}

func (s *Server) handleCreateVideo(c *gin.Context) {
	ctx := c.Request.Context()

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		badRequest(c, "Title is required.")
		return
	}
	category := c.PostForm("category")
	if category == "" {
		category = internal.Categories[0]
	}
	if !internal.IsValidCategory(category) {
		badRequest(c, "Invalid category.")
		return
	}

	video := internal.Video{
		ID:          uuid.New(),
		Title:       title,
		Description: c.PostForm("description"),
		Category:    category,
	}

	if file, err := c.FormFile("video_file"); err == nil {
		ext := strings.ToLower(filepath.Ext(file.Filename))
		if !allowedVideoExts[ext] {
			badRequest(c, "Unsupported file extension.")
			return
		}
		dst := filepath.Join(s.cfg.Media.Root, "videos", uploadName(file.Filename))
		if err := s.saveUpload(c, file, dst); err != nil {
			s.log.WithError(err).Error("failed to store uploaded video")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
			return
		}
		video.VideoPath = dst
	}

	if thumb, err := c.FormFile("thumbnail"); err == nil {
		dst := filepath.Join(s.cfg.Media.Root, "thumbnails", uploadName(thumb.Filename))
		if err := s.saveUpload(c, thumb, dst); err != nil {
			s.log.WithError(err).Error("failed to store uploaded thumbnail")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
			return
		}
		video.ThumbnailPath = dst
	}

	// The record insert and the transcode job commit together: the job can
	// only be worked once the row it references is visible.
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.videos.CreateTx(ctx, tx, &video); err != nil {
			return err
		}
		if video.VideoPath != "" {
			return s.dispatcher.EnqueueTranscodeTx(ctx, tx, video.VideoPath)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("failed to create video")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
		return
	}

	c.JSON(http.StatusCreated, video)
}

func (s *Server) handleDeleteVideo(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := uuid.Parse(c.Param("movie_id"))
	if err != nil {
		notFound(c)
		return
	}

	var video *internal.Video
	err = pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		video, err = s.videos.DeleteTx(ctx, tx, id)
		if err != nil {
			return err
		}

		// Cleanup jobs are gated on the same commit as the row deletion.
		// The HLS output sweep and the source file removal are independent
		// jobs so one failing cannot block the other.
		if video.VideoPath != "" && fileExists(video.VideoPath) {
			if err := s.dispatcher.EnqueueCleanupTx(ctx, tx, video.VideoPath); err != nil {
				return err
			}
			if err := s.dispatcher.EnqueueRemoveFileTx(ctx, tx, video.VideoPath); err != nil {
				return err
			}
		}
		if video.ThumbnailPath != "" && fileExists(video.ThumbnailPath) {
			if err := s.dispatcher.EnqueueRemoveFileTx(ctx, tx, video.ThumbnailPath); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, internal.ErrVideoNotFound) {
		notFound(c)
		return
	}
	if err != nil {
		s.log.WithError(err).Error("failed to delete video")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "Internal server error."})
		return
	}

	c.Status(http.StatusNoContent)
}

// handleHLSFile serves both playlist and segment requests. Validation runs
// before any filesystem access, and every rejection is a 404 so probing
// cannot distinguish invalid names from missing files.
func (s *Server) handleHLSFile(c *gin.Context) {
	id, err := uuid.Parse(c.Param("movie_id"))
	if err != nil {
		notFound(c)
		return
	}

	resolution := c.Param("resolution")
	if err := internal.ValidateResolution(resolution); err != nil {
		notFound(c)
		return
	}

	video, err := s.videos.GetByID(c.Request.Context(), id)
	if err != nil {
		if !errors.Is(err, internal.ErrVideoNotFound) {
			s.log.WithError(err).Error("failed to look up video")
		}
		notFound(c)
		return
	}
	if video.VideoPath == "" {
		notFound(c)
		return
	}

	filename := c.Param("filename")
	if filename == "index.m3u8" {
		s.serveHLS(c, internal.HLSPlaylistPath(video.VideoPath, resolution), "application/vnd.apple.mpegurl")
		return
	}

	if err := internal.ValidateSegmentName(filename); err != nil {
		notFound(c)
		return
	}
	s.serveHLS(c, internal.HLSSegmentPath(video.VideoPath, resolution, filename), "video/MP2T")
}

func (s *Server) serveHLS(c *gin.Context, path, contentType string) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		notFound(c)
		return
	}
	c.Header("Content-Type", contentType)
	c.File(path)
}

func (s *Server) saveUpload(c *gin.Context, file *multipart.FileHeader, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	return c.SaveUploadedFile(file, dst)
}

var slugCleanRe = regexp.MustCompile(`[^a-z0-9]+`)

// uploadName builds a collision-free on-disk name for an upload: a fresh
// UUID plus a slug of the original filename plus its lowercased extension.
func uploadName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	stem := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	slug := strings.Trim(slugCleanRe.ReplaceAllString(strings.ToLower(stem), "-"), "-")
	if slug == "" {
		slug = "video"
	}
	return fmt.Sprintf("%s_%s%s", uuid.New().String(), slug, ext)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
