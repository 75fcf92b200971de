package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"staging-studio-backend/internal/models"
)

type orderingService interface {
	CreateOrder(ctx context.Context, user models.User, req models.CreateOrderRequest) (*models.CreateOrderResponse, error)
	ConfirmPayment(ctx context.Context, user models.User, id string, req models.ConfirmPaymentRequest) (*models.ConfirmPaymentResponse, error)
	PayQuote(ctx context.Context, user models.User, id string) (string, error)
	CheckoutSession(ctx context.Context, user models.User, req models.CheckoutSessionRequest) (string, error)
	AnalyzeRoom(ctx context.Context, imageBase64 string) (string, error)
	Upload(ctx context.Context, user models.User, path, file string) (string, error)
}

type OrdersHandler struct {
	ordering orderingService
}

func NewOrdersHandler(ordering orderingService) *OrdersHandler {
	return &OrdersHandler{ordering: ordering}
}

// CreateOrder godoc
// @Summary     Place an order
// @Description Uploads the room photo and reference images and stores the order. Standard plans are created unpaid and return a checkoutUrl; the quote plan is confirmed immediately by email and returns no checkout.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.CreateOrderRequest true "Order"
// @Success     201 {object} models.CreateOrderResponse
// @Failure     400 {object} models.ErrorResponse
// @Failure     502 {object} models.ErrorResponse
// @Router      /orders [post]
func (h *OrdersHandler) CreateOrder(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.ordering.CreateOrder(c.Request.Context(), user, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// ConfirmPayment godoc
// @Summary     Confirm a checkout
// @Description Reconciles the return from checkout. The session must be paid, reference this order and total the expected amount. Repeating the call with the same session is a no-op and sends no email.
// @Tags        orders
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Order ID"
// @Param       request body models.ConfirmPaymentRequest true "Checkout result"
// @Success     200 {object} models.ConfirmPaymentResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{id}/confirm-payment [post]
func (h *OrdersHandler) ConfirmPayment(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.ConfirmPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.ordering.ConfirmPayment(c.Request.Context(), user, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// PayQuote godoc
// @Summary     Pay a quoted order
// @Description Opens a checkout for exactly the quoted amount.
// @Tags        orders
// @Produce     json
// @Security    Bearer
// @Param       id path string true "Order ID"
// @Success     200 {object} models.CheckoutResponse
// @Failure     409 {object} models.ErrorResponse
// @Router      /orders/{id}/pay-quote [post]
func (h *OrdersHandler) PayQuote(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	url, err := h.ordering.PayQuote(c.Request.Context(), user, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CheckoutResponse{URL: url})
}

// CreateCheckoutSession godoc
// @Summary     Create a checkout session
// @Description Passthrough kept for browser clients. The charged amount is computed from the order; the amount field is ignored.
// @Tags        passthrough
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.CheckoutSessionRequest true "Checkout"
// @Success     200 {object} models.CheckoutResponse
// @Failure     400 {object} models.MessageResponse
// @Router      /create-checkout-session [post]
func (h *OrdersHandler) CreateCheckoutSession(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.MessageResponse{Message: err.Error()})
		return
	}
	url, err := h.ordering.CheckoutSession(c.Request.Context(), user, req)
	if err != nil {
		respondMessage(c, err)
		return
	}
	c.JSON(http.StatusOK, models.CheckoutResponse{URL: url})
}

// AnalyzeRoom godoc
// @Summary     Describe a room photo
// @Description Best-effort vision analysis. Failures answer 503 with a message; clients proceed without it.
// @Tags        passthrough
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.AnalyzeRoomRequest true "Image"
// @Success     200 {object} models.AnalyzeRoomResponse
// @Failure     400 {object} models.MessageResponse
// @Failure     503 {object} models.MessageResponse
// @Router      /analyze-room [post]
func (h *OrdersHandler) AnalyzeRoom(c *gin.Context) {
	var req models.AnalyzeRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ImageBase64 == "" {
		c.JSON(http.StatusBadRequest, models.MessageResponse{Message: "Image data is required"})
		return
	}
	analysis, err := h.ordering.AnalyzeRoom(c.Request.Context(), req.ImageBase64)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusServiceUnavailable, models.MessageResponse{Message: "AI Analysis currently unavailable."})
		return
	}
	c.JSON(http.StatusOK, models.AnalyzeRoomResponse{Analysis: analysis})
}

// Upload godoc
// @Summary     Upload a data URL
// @Description Stores an image and returns its public URL. Clients may only write under their own user id prefix.
// @Tags        passthrough
// @Accept      json
// @Produce     json
// @Security    Bearer
// @Param       request body models.UploadRequest true "Path and data URL"
// @Success     200 {object} models.UploadResponse
// @Failure     400 {object} models.MessageResponse
// @Failure     502 {object} models.MessageResponse
// @Router      /upload [post]
func (h *OrdersHandler) Upload(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	var req models.UploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.MessageResponse{Message: "Missing path or file"})
		return
	}
	url, err := h.ordering.Upload(c.Request.Context(), user, req.Path, req.File)
	if err != nil {
		respondMessage(c, err)
		return
	}
	c.JSON(http.StatusOK, models.UploadResponse{URL: url})
}
