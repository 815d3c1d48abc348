package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type MetaHandler struct {
	env     string
	version string
	network string
}

func NewMetaHandler(env, version, network string) *MetaHandler {
	return &MetaHandler{env: env, version: version, network: network}
}

func (h *MetaHandler) GetMeta(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "TrustLend Backend",
		"version": h.version,
		"env":     h.env,
		"network": h.network,
	})
}
