package http

import (
	"github.com/gin-gonic/gin"
)

// Register mounts every API route on r
func (h *Handlers) Register(r *gin.Engine) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)
	r.GET("/metrics/json", h.MetricsJSON)
	if h.metrics != nil {
		r.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	sources := r.Group("/api/sources")
	sources.GET("", h.ListSources)
	sources.POST("", h.CreateSource)
	sources.POST("/validate", h.ValidateSource)
	sources.GET("/:id", h.GetSource)
	sources.PUT("/:id", h.UpdateSource)
	sources.DELETE("/:id", h.DeleteSource)
	sources.POST("/:id/test", h.TestSource)
	sources.PATCH("/:id/toggle", h.ToggleSource)

	music := r.Group("/api/music")
	h.registerRanking(music)
	music.POST("/search", h.Search)
	music.POST("/url", h.ResolveURL)
	music.POST("/batch", h.ResolveBatch)
	music.POST("/lyric", h.ResolveLyric)
	music.POST("/pic", h.ResolveCover)

	platform := r.Group("/api/platform")
	h.registerRanking(platform)
	platform.POST("/search", h.Search)

	downloads := r.Group("/api/downloads")
	downloads.GET("", h.ListDownloads)
	downloads.POST("", h.AddDownload)
	downloads.POST("/batch", h.AddDownloads)
	downloads.POST("/batch-delete", h.DeleteDownloads)
	downloads.POST("/clear-completed", h.ClearCompleted)
	downloads.GET("/stats/summary", h.DownloadStats)
	downloads.GET("/:id", h.GetDownload)
	downloads.DELETE("/:id", h.DeleteDownload)
	downloads.POST("/:id/retry", h.RetryDownload)

	r.NoRoute(NotFound)
}

func (h *Handlers) registerRanking(g *gin.RouterGroup) {
	g.GET("/ranking/list", h.RankingList)
	g.GET("/ranking/:platform/:boardId", h.RankingDetail)
}
