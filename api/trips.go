package api

import (
	"net/http"

	"github.com/Domenick1991/tripbooking/internal/service/trips"
	"github.com/gin-gonic/gin"
)

type TripHandler struct {
	service trips.TripUseCase
}

func NewTripHandler(service trips.TripUseCase) *TripHandler {
	return &TripHandler{service: service}
}

func (h *TripHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
}

func (h *TripHandler) list(c *gin.Context) {
	trips, err := h.service.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trips)
}

func (h *TripHandler) get(c *gin.Context) {
	trip, err := h.service.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}
