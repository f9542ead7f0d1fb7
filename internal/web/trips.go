package web

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cranetrips/backend/internal/tripstore"
)

// TripLister reads trip and lodging records for the protected listing
// endpoints.
type TripLister interface {
	ListTrips(ctx context.Context) ([]tripstore.Trip, error)
	ListLodging(ctx context.Context) ([]tripstore.Lodging, error)
	LodgingForTrip(ctx context.Context, tripID uint) ([]tripstore.Lodging, error)
}

// HandleListTrips returns every trip record, unpaginated and unscoped.
func HandleListTrips(logger *zap.Logger, store TripLister) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		trips, listErr := store.ListTrips(contextGin.Request.Context())
		if listErr != nil {
			logger.Error("trip listing failed",
				zap.String("code", "api.trips.list_failed"),
				zap.Error(listErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, trips)
	}
}

// HandleListLodging returns every lodging record.
func HandleListLodging(logger *zap.Logger, store TripLister) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		lodgings, listErr := store.ListLodging(contextGin.Request.Context())
		if listErr != nil {
			logger.Error("lodging listing failed",
				zap.String("code", "api.lodging.list_failed"),
				zap.Error(listErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, lodgings)
	}
}

// HandleTripLodging returns the lodging linked to one trip.
func HandleTripLodging(logger *zap.Logger, store TripLister) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(contextGin *gin.Context) {
		tripID, parseErr := strconv.ParseUint(contextGin.Param("id"), 10, 32)
		if parseErr != nil {
			contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_trip_id"})
			return
		}
		lodgings, listErr := store.LodgingForTrip(contextGin.Request.Context(), uint(tripID))
		if listErr != nil {
			logger.Error("trip lodging listing failed",
				zap.String("code", "api.trip_lodging.list_failed"),
				zap.Uint64("trip_id", tripID),
				zap.Error(listErr))
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		contextGin.JSON(http.StatusOK, lodgings)
	}
}
