package api

import (
	"net/http"

	"github.com/Domenick1991/tripbooking/internal/service/booking"
	"github.com/gin-gonic/gin"
)

type BookingHandler struct {
	service booking.BookingUseCase
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

type modifyRequest struct {
	Changes []booking.TicketChange `json:"changes"`
}

type lookupRequest struct {
	Reference string `json:"reference" binding:"required"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
}

func NewBookingHandler(service booking.BookingUseCase) *BookingHandler {
	return &BookingHandler{service: service}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.POST("/lookup", h.lookup)
	router.POST("/lookup/cancel", h.guestCancel)
	router.GET("/:id", h.get)
	router.POST("/:id/cancel", h.cancel)
	router.GET("/:id/cancel/preview", h.previewCancel)
	router.POST("/:id/modify", h.modify)
	router.POST("/:id/modify/preview", h.previewModify)
}

// RegisterInternal mounts the routes meant for collaborators such as the
// payment processor. The group must sit behind RequireInternalToken.
func (h *BookingHandler) RegisterInternal(router *gin.RouterGroup) {
	router.POST("/:id/payment", h.confirmPayment)
}

// create books as the caller when X-User-ID is present, as a guest otherwise.
func (h *BookingHandler) create(c *gin.Context) {
	var input booking.CreateInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	input.OwnerID = actorID(c)

	result, err := h.service.CreateBooking(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *BookingHandler) get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// confirmPayment is called by the payment collaborator, not by the passenger.
func (h *BookingHandler) confirmPayment(c *gin.Context) {
	b, err := h.service.ConfirmPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req cancelRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.service.CancelBooking(c.Request.Context(), booking.CancelInput{
		BookingID: c.Param("id"),
		ActorID:   actor,
		Reason:    req.Reason,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *BookingHandler) previewCancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	preview, err := h.service.PreviewCancellation(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *BookingHandler) modifyInput(c *gin.Context) (booking.ModifyInput, bool) {
	actor, ok := requireActor(c)
	if !ok {
		return booking.ModifyInput{}, false
	}
	var req modifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return booking.ModifyInput{}, false
	}
	return booking.ModifyInput{BookingID: c.Param("id"), ActorID: actor, Changes: req.Changes}, true
}

func (h *BookingHandler) modify(c *gin.Context) {
	input, ok := h.modifyInput(c)
	if !ok {
		return
	}
	result, err := h.service.ModifyBooking(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *BookingHandler) previewModify(c *gin.Context) {
	input, ok := h.modifyInput(c)
	if !ok {
		return
	}
	preview, err := h.service.PreviewModification(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, preview)
}

func (h *BookingHandler) lookup(c *gin.Context) {
	var req lookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	b, err := h.service.LookupByReference(c.Request.Context(), req.Reference, req.Phone, req.Email)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

func (h *BookingHandler) guestCancel(c *gin.Context) {
	var input booking.GuestCancelInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	result, err := h.service.CancelByReference(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
