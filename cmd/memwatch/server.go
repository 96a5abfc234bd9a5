package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func NewRouter(w *Watcher) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/scan", func(c *gin.Context) {
		c.JSON(http.StatusOK, w.Status())
	})

	r.GET("/pointers", func(c *gin.Context) {
		c.JSON(http.StatusOK, w.Values())
	})

	r.GET("/pointers/:name", func(c *gin.Context) {
		v, ok := w.Value(c.Param("name"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown pointer"})
			return
		}
		c.JSON(http.StatusOK, v)
	})

	r.POST("/rescan", func(c *gin.Context) {
		w.Start()
		c.JSON(http.StatusAccepted, gin.H{"ok": true})
	})

	return r
}
