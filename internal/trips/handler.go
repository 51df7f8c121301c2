package trips

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/poolup/carpool/internal/cancellation"
	"github.com/poolup/carpool/internal/pricing"
	"github.com/poolup/carpool/pkg/common"
	"github.com/poolup/carpool/pkg/middleware"
)

// vehicleTypes the clients may request.
var vehicleTypes = map[string]struct{}{
	"standard": {},
	"sedan":    {},
	"suv":      {},
	"van":      {},
}

// RegisterValidations installs the trips-specific binding validators. Called
// once at startup.
func RegisterValidations() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterValidation("vehicletype", func(fl validator.FieldLevel) bool {
			_, ok := vehicleTypes[fl.Field().String()]
			return ok
		})
	}
}

// Handler handles HTTP requests for trips
type Handler struct {
	service *Service
}

// NewHandler creates a new trips handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes registers trip routes on an authenticated router group.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	trips := router.Group("/trips")
	{
		trips.POST("/quote", h.Quote)
		trips.GET("/cancel-reasons", h.CancelReasons)
		trips.POST("", middleware.RequireRole(common.RoleRider), h.RequestTrip)
		trips.GET("/:id", h.GetTrip)
		trips.POST("/:id/accept", middleware.RequireRole(common.RoleDriver), h.AcceptTrip)
		trips.POST("/:id/decline", middleware.RequireRole(common.RoleDriver), h.DeclineTrip)
		trips.POST("/:id/confirm-payment", middleware.RequireRole(common.RoleRider), h.ConfirmPayment)
		trips.POST("/:id/arrived", middleware.RequireRole(common.RoleDriver), h.MarkArrived)
		trips.POST("/:id/start", middleware.RequireRole(common.RoleDriver), h.StartTrip)
		trips.POST("/:id/complete", middleware.RequireRole(common.RoleDriver), h.CompleteTrip)
		trips.POST("/:id/tip", middleware.RequireRole(common.RoleRider), h.AddTip)
		trips.POST("/:id/skip-tip", middleware.RequireRole(common.RoleRider), h.SkipTip)
		trips.POST("/:id/cancel", h.CancelTrip)
		trips.POST("/:id/resend", middleware.RequireRole(common.RoleRider), h.ResendTrip)
		trips.GET("/rider/history", middleware.RequireRole(common.RoleRider), h.RiderHistory)
		trips.GET("/driver/history", middleware.RequireRole(common.RoleDriver), h.DriverHistory)
	}
}

// Quote returns a contribution quote without creating a trip.
func (h *Handler) Quote(c *gin.Context) {
	var req pricing.QuoteRequest
	if !common.BindJSON(c, &req) {
		return
	}

	result, err := h.service.Quote(c.Request.Context(), pricing.QuoteInput{
		PickupLatitude:       req.PickupLatitude,
		PickupLongitude:      req.PickupLongitude,
		DestinationLatitude:  req.DestinationLatitude,
		DestinationLongitude: req.DestinationLongitude,
		DistanceMiles:        req.DistanceMiles,
		DurationMinutes:      req.DurationMinutes,
		RequestTime:          time.Now(),
	})
	if common.HandleServiceError(c, err, "failed to compute quote") {
		return
	}

	common.SuccessResponse(c, result)
}

// CancelReasons returns the cancellation reason catalog for the caller's role.
func (h *Handler) CancelReasons(c *gin.Context) {
	role, err := middleware.GetUserRole(c)
	if err != nil {
		common.AppErrorResponse(c, common.NewUnauthorizedError("authentication required"))
		return
	}

	if role == common.RoleDriver {
		common.SuccessResponse(c, gin.H{"reasons": cancellation.DriverReasons()})
		return
	}
	common.SuccessResponse(c, gin.H{"reasons": cancellation.RiderReasons()})
}

// RequestTrip creates a new trip request.
func (h *Handler) RequestTrip(c *gin.Context) {
	riderID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}

	var req CreateTripRequest
	if !common.BindJSON(c, &req) {
		return
	}

	trip, err := h.service.RequestTrip(c.Request.Context(), riderID, &req)
	if common.HandleServiceError(c, err, "failed to create trip request") {
		return
	}

	common.CreatedResponse(c, trip)
}

// GetTrip retrieves a single trip. Only the parties to the trip may read it.
func (h *Handler) GetTrip(c *gin.Context) {
	userID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	trip, err := h.service.GetTrip(c.Request.Context(), tripID)
	if common.HandleServiceError(c, err, "failed to get trip") {
		return
	}

	isRider := trip.RiderID == userID
	isDriver := trip.DriverID != nil && *trip.DriverID == userID
	isOpen := trip.Status == StatusRequested
	if !isRider && !isDriver && !isOpen {
		common.AppErrorResponse(c, common.NewForbiddenError("not a party to this trip"))
		return
	}

	common.SuccessResponse(c, trip)
}

// AcceptTrip lets a driver accept an open request.
func (h *Handler) AcceptTrip(c *gin.Context) {
	driverID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	trip, err := h.service.AcceptTrip(c.Request.Context(), tripID, driverID)
	if common.HandleServiceError(c, err, "failed to accept trip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// DeclineTrip records a driver's explicit pass on an open request.
func (h *Handler) DeclineTrip(c *gin.Context) {
	driverID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	err := h.service.DeclineTrip(c.Request.Context(), tripID, driverID)
	if common.HandleServiceError(c, err, "failed to decline trip") {
		return
	}

	common.SuccessResponse(c, gin.H{"declined": true})
}

// ConfirmPayment finishes a deferred payment on an AWAITING_PAYMENT trip.
func (h *Handler) ConfirmPayment(c *gin.Context) {
	riderID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	trip, err := h.service.ConfirmPayment(c.Request.Context(), tripID, riderID)
	if common.HandleServiceError(c, err, "failed to confirm payment") {
		return
	}

	common.SuccessResponse(c, trip)
}

// MarkArrived records the driver's arrival at the pickup.
func (h *Handler) MarkArrived(c *gin.Context) {
	driverID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	trip, err := h.service.MarkArrived(c.Request.Context(), tripID, driverID)
	if common.HandleServiceError(c, err, "failed to mark arrival") {
		return
	}

	common.SuccessResponse(c, trip)
}

// StartTrip moves the trip to IN_PROGRESS.
func (h *Handler) StartTrip(c *gin.Context) {
	driverID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	trip, err := h.service.StartTrip(c.Request.Context(), tripID, driverID)
	if common.HandleServiceError(c, err, "failed to start trip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// CompleteTrip records completion and opens the tip window.
func (h *Handler) CompleteTrip(c *gin.Context) {
	driverID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	var req CompleteTripRequest
	if !common.BindJSON(c, &req) {
		return
	}

	trip, err := h.service.CompleteTrip(c.Request.Context(), tripID, driverID, &req)
	if common.HandleServiceError(c, err, "failed to complete trip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// AddTip records a tip and finalizes the trip.
func (h *Handler) AddTip(c *gin.Context) {
	riderID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	var req TipRequest
	if !common.BindJSON(c, &req) {
		return
	}

	trip, err := h.service.AddTip(c.Request.Context(), tripID, riderID, req.Amount)
	if common.HandleServiceError(c, err, "failed to add tip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// SkipTip finalizes the trip without a tip.
func (h *Handler) SkipTip(c *gin.Context) {
	riderID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	trip, err := h.service.SkipTip(c.Request.Context(), tripID, riderID)
	if common.HandleServiceError(c, err, "failed to finalize trip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// CancelTrip cancels a trip on behalf of either party.
func (h *Handler) CancelTrip(c *gin.Context) {
	userID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	var req CancelTripRequest
	if !common.BindJSON(c, &req) {
		return
	}

	trip, err := h.service.CancelTrip(c.Request.Context(), tripID, userID, &req)
	if common.HandleServiceError(c, err, "failed to cancel trip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// ResendTrip re-broadcasts a still-open request.
func (h *Handler) ResendTrip(c *gin.Context) {
	riderID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	tripID, ok := common.ParseUUIDParam(c, "id", "trip ID")
	if !ok {
		return
	}

	var req ResendTripRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.ErrorResponse(c, 400, err.Error())
		return
	}

	trip, err := h.service.ResendTrip(c.Request.Context(), tripID, riderID, &req)
	if common.HandleServiceError(c, err, "failed to resend trip") {
		return
	}

	common.SuccessResponse(c, trip)
}

// RiderHistory returns the rider's paginated trip history.
func (h *Handler) RiderHistory(c *gin.Context) {
	riderID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	page, perPage := paginationParams(c)

	trips, total, err := h.service.ListRiderTrips(c.Request.Context(), riderID, page, perPage)
	if common.HandleServiceError(c, err, "failed to list trips") {
		return
	}

	common.SuccessResponseWithMeta(c, trips, &common.Meta{Page: page, PerPage: perPage, Total: total})
}

// DriverHistory returns the driver's paginated trip history.
func (h *Handler) DriverHistory(c *gin.Context) {
	driverID, ok := common.RequireUserID(c, middleware.GetUserID)
	if !ok {
		return
	}
	page, perPage := paginationParams(c)

	trips, total, err := h.service.ListDriverTrips(c.Request.Context(), driverID, page, perPage)
	if common.HandleServiceError(c, err, "failed to list trips") {
		return
	}

	common.SuccessResponseWithMeta(c, trips, &common.Meta{Page: page, PerPage: perPage, Total: total})
}

func paginationParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
