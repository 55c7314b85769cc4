package v1

import (
	"net/http"

	"github.com/cartpay/cartpay/internal/api/dto"
	ierr "github.com/cartpay/cartpay/internal/errors"
	"github.com/cartpay/cartpay/internal/logger"
	"github.com/cartpay/cartpay/internal/service"
	"github.com/cartpay/cartpay/internal/types"
	"github.com/gin-gonic/gin"
)

type CartPaymentHandler struct {
	service service.CartPaymentService
	log     *logger.Logger
}

func NewCartPaymentHandler(service service.CartPaymentService, log *logger.Logger) *CartPaymentHandler {
	return &CartPaymentHandler{service: service, log: log}
}

// @Summary Create a new cart payment
// @Description Create a cart payment and authorize funds at the gateway
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param cart_payment body dto.CreateCartPaymentRequest true "Cart payment configuration"
// @Success 201 {object} dto.CartPaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 402 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments [post]
func (h *CartPaymentHandler) CreateCartPayment(c *gin.Context) {
	var req dto.CreateCartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CreateCartPayment(c.Request.Context(), req)
	if err != nil {
		h.log.Error("Failed to create cart payment", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// @Summary Get a cart payment by ID
// @Description Get a cart payment by ID
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param id path string true "Cart payment ID"
// @Success 200 {object} dto.CartPaymentResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments/{id} [get]
func (h *CartPaymentHandler) GetCartPayment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Cart payment ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetCartPayment(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to get cart payment", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Adjust a cart payment
// @Description Adjust the target amount of an existing cart payment
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param id path string true "Cart payment ID"
// @Param cart_payment body dto.UpdateCartPaymentRequest true "Adjustment"
// @Success 200 {object} dto.CartPaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments/{id}/adjust [post]
func (h *CartPaymentHandler) UpdateCartPayment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Cart payment ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	var req dto.UpdateCartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.UpdateCartPayment(c.Request.Context(), id, req)
	if err != nil {
		h.log.Error("Failed to update cart payment", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Cancel a cart payment
// @Description Cancel a cart payment, releasing the hold or refunding captured funds
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param id path string true "Cart payment ID"
// @Success 200 {object} dto.CartPaymentResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments/{id}/cancel [post]
func (h *CartPaymentHandler) CancelCartPayment(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Cart payment ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.CancelCartPayment(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to cancel cart payment", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Create or adjust the cart payment for an external reference
// @Description Upsert by correlation pair: creates when absent, adjusts when present
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param cart_payment body dto.UpsertCartPaymentRequest true "Cart payment configuration"
// @Success 200 {object} dto.CartPaymentResponse
// @Success 201 {object} dto.CartPaymentResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments/upsert [put]
func (h *CartPaymentHandler) UpsertCartPayment(c *gin.Context) {
	var req dto.UpsertCartPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Error("Failed to bind JSON", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid request format").
			Mark(ierr.ErrValidation))
		return
	}

	resp, created, err := h.service.UpsertCartPayment(c.Request.Context(), req)
	if err != nil {
		h.log.Error("Failed to upsert cart payment", "error", err)
		c.Error(err)
		return
	}

	// created vs updated is part of the external contract
	if created {
		c.JSON(http.StatusCreated, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary List cart payments
// @Description List cart payments with optional filtering and sorting
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param filter query types.CartPaymentFilter false "Filter"
// @Success 200 {object} dto.ListCartPaymentsResponse
// @Failure 400 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments [get]
func (h *CartPaymentHandler) ListCartPayments(c *gin.Context) {
	var filter types.CartPaymentFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		h.log.Error("Failed to bind query", "error", err)
		c.Error(ierr.WithError(err).
			WithHint("Invalid query parameters").
			Mark(ierr.ErrValidation))
		return
	}

	if filter.QueryFilter == nil {
		filter.QueryFilter = types.NewDefaultQueryFilter()
	}

	resp, err := h.service.ListCartPayments(c.Request.Context(), &filter)
	if err != nil {
		h.log.Error("Failed to list cart payments", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

// @Summary Get the adjustment history of a cart payment
// @Description List the amount-change audit records of a cart payment
// @Tags CartPayments
// @Accept json
// @Produce json
// @Param id path string true "Cart payment ID"
// @Success 200 {array} dto.AdjustmentHistoryResponse
// @Failure 404 {object} ierr.ErrorResponse
// @Failure 500 {object} ierr.ErrorResponse
// @Router /cart_payments/{id}/adjustments [get]
func (h *CartPaymentHandler) GetAdjustmentHistory(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.Error(ierr.NewError("id is required").
			WithHint("Cart payment ID is required").
			Mark(ierr.ErrValidation))
		return
	}

	resp, err := h.service.GetAdjustmentHistory(c.Request.Context(), id)
	if err != nil {
		h.log.Error("Failed to get adjustment history", "error", err)
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
