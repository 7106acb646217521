package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"campusride/internal/domain"
)

// TimetableEntryBody is one weekly class slot on the wire.
type TimetableEntryBody struct {
	Day     string `json:"day"`
	Time    string `json:"time"`
	Subject string `json:"subject"`
}

// SuggestRequest is the HTTP request body for timetable suggestions.
type SuggestRequest struct {
	Timetable []TimetableEntryBody `json:"timetable"`
}

// SuggestionResponse pairs a class with a suggested ride.
type SuggestionResponse struct {
	Entry      TimetableEntryBody `json:"entry"`
	ClassStart time.Time          `json:"class_start"`
	Ride       RideResponse       `json:"ride"`
}

// Suggest handles POST /v1/timetable/suggestions
func (h *RideHandler) Suggest(c *gin.Context) {
	ctx := c.Request.Context()

	var req SuggestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidBody("suggest rides", err))
		return
	}

	timetable := make([]domain.TimetableEntry, 0, len(req.Timetable))
	for _, e := range req.Timetable {
		timetable = append(timetable, domain.TimetableEntry{Day: e.Day, Time: e.Time, Subject: e.Subject})
	}

	rides, err := h.catalog.ListByStatus(ctx, domain.RideStatusScheduled)
	if err != nil {
		respondError(c, err)
		return
	}
	trust, err := h.trust.TrustScores(ctx, driverIDs(rides))
	if err != nil {
		respondError(c, err)
		return
	}

	suggestions, err := h.match.SuggestForTimetable(timetable, rides, trust)
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]SuggestionResponse, 0, len(suggestions))
	for _, s := range suggestions {
		ride := toRideResponse(s.Ride)
		score := s.DriverTrust
		ride.DriverTrust = &score
		response = append(response, SuggestionResponse{
			Entry:      TimetableEntryBody{Day: s.Entry.Day, Time: s.Entry.Time, Subject: s.Entry.Subject},
			ClassStart: s.ClassStart,
			Ride:       ride,
		})
	}
	respondJSON(c, http.StatusOK, response)
}
