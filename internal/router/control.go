package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// registerControl mounts the control API: the channel the app uses to
// inspect and manage the caches. Every reply carries a success flag, and
// failures come back as {success:false, error} rather than bare statuses.
func (s *Server) registerControl(g *gin.RouterGroup) {
	g.GET("/version", s.controlVersion)
	g.GET("/cache-size", s.controlCacheSize)
	g.POST("/clear-audio", s.controlClearAudio)
	g.POST("/clear-all", s.controlClearAll)
	g.POST("/activate", s.controlActivate)
}

func (s *Server) controlVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"version":    s.cfg.Version,
		"generation": s.cfg.Generation,
	})
}

// controlCacheSize sums blob sizes across the audio tiers.
func (s *Server) controlCacheSize(c *gin.Context) {
	stats := s.audio.Stats(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"file_count":       stats.FileCount,
		"total_size_bytes": stats.TotalSizeBytes,
		"total_size_mb":    stats.TotalSizeMB,
	})
}

func (s *Server) controlClearAudio(c *gin.Context) {
	if err := s.audio.ClearAudio(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// controlClearAll deletes every bucket carrying the app prefix and empties
// the audio tiers.
func (s *Server) controlClearAll(c *gin.Context) {
	buckets, err := s.assets.Buckets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	for _, bucket := range buckets {
		if !strings.HasPrefix(bucket, BucketPrefix) {
			continue
		}
		if err := s.assets.DeleteBucket(bucket); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
			return
		}
	}
	if err := s.audio.ClearAudio(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// controlActivate force-runs generation cleanup, the counterpart of asking
// a waiting worker to take over immediately.
func (s *Server) controlActivate(c *gin.Context) {
	if err := s.Activate(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "generation": s.cfg.Generation})
}
