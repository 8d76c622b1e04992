package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/services"
)

// TripHandlers serves the lookups behind trip resolution and tracking.
type TripHandlers struct {
	tripService *services.TripService
}

func NewTripHandlers(tripService *services.TripService) *TripHandlers {
	return &TripHandlers{tripService: tripService}
}

// Children handles GET /api/users/:id/children
func (h *TripHandlers) Children(c *gin.Context) {
	children, err := h.tripService.Children(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": children})
}

// StudentBookings handles GET /api/bookings/student/:studentId
func (h *TripHandlers) StudentBookings(c *gin.Context) {
	bookings, err := h.tripService.StudentBookings(c.Request.Context(), currentUser(c), c.Param("studentId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookings": bookings})
}

// DriverTrips handles GET /api/trips?driverId=&date=
func (h *TripHandlers) DriverTrips(c *gin.Context) {
	trips, err := h.tripService.DriverTrips(c.Request.Context(), currentUser(c), c.Query("driverId"), c.Query("date"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, trips)
}

// Drivers handles GET /api/users/drivers
func (h *TripHandlers) Drivers(c *gin.Context) {
	drivers, err := h.tripService.Drivers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"drivers": drivers})
}

// User handles GET /api/users/:id
func (h *TripHandlers) User(c *gin.Context) {
	user, err := h.tripService.User(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Bus handles GET /api/bus/:busId
func (h *TripHandlers) Bus(c *gin.Context) {
	bus, err := h.tripService.Bus(c.Request.Context(), c.Param("busId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bus})
}

// Route handles GET /api/routes/:routeId
func (h *TripHandlers) Route(c *gin.Context) {
	route, err := h.tripService.Route(c.Request.Context(), c.Param("routeId"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, route)
}
