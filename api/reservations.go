package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/semanticallynull/rentaldesk-backend/document"
	"github.com/semanticallynull/rentaldesk-backend/handover"
	"github.com/semanticallynull/rentaldesk-backend/internal/middleware"
	"github.com/semanticallynull/rentaldesk-backend/lifecycle"
	"github.com/semanticallynull/rentaldesk-backend/reservation"
)

type sessionResponse struct {
	ID            uuid.UUID          `json:"id"`
	State         lifecycle.State    `json:"state"`
	Form          *reservation.Form  `json:"form,omitempty"`
	Outcome       *lifecycle.Outcome `json:"outcome,omitempty"`
	DamageCheck   *document.Document `json:"damageCheck,omitempty"`
	Notifications []Notification     `json:"notifications"`
}

func (a *API) respond(c *gin.Context, status int, s *session, resp sessionResponse) {
	resp.ID = s.id
	resp.State = s.ctrl.State()
	resp.Notifications = s.notes.Drain()
	c.JSON(status, resp)
}

// sessionError responds with err and hands over the notifications the
// failure produced.
func (a *API) sessionError(c *gin.Context, s *session, err error) {
	a.respondError(c, err, gin.H{"notifications": s.notes.Drain()})
}

func (a *API) session(c *gin.Context) (*session, bool) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return nil, false
	}

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid session id"})
		return nil, false
	}

	s, err := a.sessions.get(id, userID)
	if err != nil {
		a.respondError(c, err, nil)
		return nil, false
	}
	return s, true
}

type openSessionRequest struct {
	ReservationID reservation.FlexInt `json:"reservationId"`
}

func (a *API) openSessionHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	userID, ok := middleware.GetUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
		return
	}

	var req openSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	notes := &notifier{}
	opts := []lifecycle.Option{lifecycle.WithClock(a.now), lifecycle.WithHooks(a.hooks...)}

	var form *reservation.Form
	if req.ReservationID.Valid && req.ReservationID.V != 0 {
		r, err := a.backend.GetReservation(c.Request.Context(), req.ReservationID.V)
		if err != nil {
			a.respondError(c, err, nil)
			return
		}
		opts = append(opts, lifecycle.Editing(r))
		f := reservation.FormFromReservation(r)
		form = &f
	}

	ctrl := lifecycle.New(a.backend, notes, a.cache, a.obs.Logger.With("user_id", userID), opts...)
	s := a.sessions.add(userID, ctrl, notes)
	logger.InfoContext(c, "form session opened", "session_id", s.id.String(), "editing", form != nil)

	a.respond(c, http.StatusCreated, s, sessionResponse{Form: form})
}

func (a *API) sessionStateHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	a.respond(c, http.StatusOK, s, sessionResponse{})
}

func (a *API) closeSessionHandler(c *gin.Context) {
	userID, _ := middleware.GetUserID(c)
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid session id"})
		return
	}
	if err := a.sessions.remove(id, userID); err != nil {
		a.respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

type submitRequest struct {
	reservation.RawForm
	Status string `json:"status"`
}

// parseForm turns the posted form into a Form. A false return means the
// response has been written.
func (a *API) parseForm(c *gin.Context, s *session, raw reservation.RawForm) (reservation.Form, bool) {
	form, err := raw.Parse()
	if err != nil {
		verr, ok := reservation.FieldErrors(err)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
			return form, false
		}
		out := lifecycle.Outcome{Kind: lifecycle.OutcomeInvalid, Errors: verr}
		a.respond(c, http.StatusUnprocessableEntity, s, sessionResponse{Outcome: &out})
		return form, false
	}
	return form, true
}

func (a *API) submitHandler(c *gin.Context) {
	logger := middleware.GetLogger(c)

	s, ok := a.session(c)
	if !ok {
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	intended := s.ctrl.State().DisplayedStatus
	if req.Status != "" {
		st, err := reservation.ParseStatus(req.Status)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_STATUS", "message": err.Error()})
			return
		}
		intended = st
	}

	form, ok := a.parseForm(c, s, req.RawForm)
	if !ok {
		return
	}

	// the driver must belong to the selected customer
	if form.CustomerID != 0 {
		cu, err := a.customer(c.Request.Context(), form.CustomerID)
		switch {
		case err == nil:
			form.SetCustomer(cu)
		case form.DriverID != nil:
			logger.WarnContext(c, "could not load customer to check the driver", "customer_id", form.CustomerID, "driver_id", *form.DriverID, "error", err)
			out := lifecycle.Outcome{
				Kind:   lifecycle.OutcomeInvalid,
				Errors: reservation.ValidationErrors{"driverId": "The driver could not be checked against the selected customer"},
			}
			a.submissions.WithLabelValues(string(out.Kind)).Inc()
			a.respond(c, outcomeStatus(out), s, sessionResponse{Outcome: &out})
			return
		default:
			logger.WarnContext(c, "could not load customer", "customer_id", form.CustomerID, "error", err)
		}
	}

	out, err := s.ctrl.Submit(c.Request.Context(), form, intended)
	if err != nil {
		a.submissions.WithLabelValues("error").Inc()
		a.sessionError(c, s, err)
		return
	}
	a.submissions.WithLabelValues(string(out.Kind)).Inc()

	a.respond(c, outcomeStatus(out), s, sessionResponse{Outcome: &out})
}

func outcomeStatus(out lifecycle.Outcome) int {
	switch out.Kind {
	case lifecycle.OutcomeInvalid:
		return http.StatusUnprocessableEntity
	case lifecycle.OutcomeConflict, lifecycle.OutcomeOverdue:
		return http.StatusConflict
	}
	return http.StatusOK
}

type toggleOpenEndedRequest struct {
	Form      reservation.RawForm `json:"form"`
	OpenEnded bool                `json:"isOpenEnded"`
}

func (a *API) toggleOpenEndedHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	var req toggleOpenEndedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	form, ok := a.parseForm(c, s, req.Form)
	if !ok {
		return
	}
	form = s.ctrl.ToggleOpenEnded(form, req.OpenEnded)

	a.respond(c, http.StatusOK, s, sessionResponse{Form: &form})
}

func overdueID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("reservationId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": "Invalid reservation id"})
		return 0, false
	}
	return id, true
}

func (a *API) overdueDetailsHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	id, ok := overdueID(c)
	if !ok {
		return
	}

	r, err := s.ctrl.OverdueDetails(c.Request.Context(), id)
	if err != nil {
		a.sessionError(c, s, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (a *API) completeOverdueHandler(c *gin.Context) {
	a.resolveOverdue(c, lifecycle.ActionComplete)
}

func (a *API) deleteOverdueHandler(c *gin.Context) {
	a.resolveOverdue(c, lifecycle.ActionDelete)
}

func (a *API) resolveOverdue(c *gin.Context, action lifecycle.OverdueAction) {
	s, ok := a.session(c)
	if !ok {
		return
	}
	id, ok := overdueID(c)
	if !ok {
		return
	}

	out, err := s.ctrl.ResolveOverdue(c.Request.Context(), id, action)
	if err != nil {
		a.sessionError(c, s, err)
		return
	}
	if out.Kind != lifecycle.OutcomeOverdue {
		a.submissions.WithLabelValues(string(out.Kind)).Inc()
	}

	a.respond(c, outcomeStatus(out), s, sessionResponse{Outcome: &out})
}

// claimSubFlow takes the open sub-flow of trigger for the duration of the
// handover write.
func (a *API) claimSubFlow(c *gin.Context, s *session, trigger lifecycle.Trigger) (reservation.Reservation, bool) {
	r, err := s.ctrl.BeginSubFlow(trigger)
	if err != nil {
		a.sessionError(c, s, err)
		return reservation.Reservation{}, false
	}
	return r, true
}

func (a *API) pickupHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	var d handover.PickupDetails
	if err := c.ShouldBindJSON(&d); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	r, ok := a.claimSubFlow(c, s, lifecycle.TriggerPickup)
	if !ok {
		return
	}

	res, err := a.handover.CompletePickup(c.Request.Context(), r, d)
	if err != nil {
		s.ctrl.ReleaseSubFlow()
		a.handoverFailed(s, err)
		a.sessionError(c, s, err)
		return
	}
	a.finishSubFlow(c, s, res)
}

func (a *API) returnHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	d, damageCheck, err := bindReturn(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": "INVALID_REQUEST", "message": err.Error()})
		return
	}

	r, ok := a.claimSubFlow(c, s, lifecycle.TriggerReturn)
	if !ok {
		return
	}

	res, err := a.handover.CompleteReturn(c.Request.Context(), r, d, damageCheck)
	if err != nil {
		s.ctrl.ReleaseSubFlow()
		a.handoverFailed(s, err)
		a.sessionError(c, s, err)
		return
	}
	if res.UploadErr != nil {
		s.notes.Warn("The damage check could not be stored: " + res.UploadErr.Error())
	}
	a.finishSubFlow(c, s, res)
}

// handoverFailed reports upstream failures of a sub-flow to the user.
// Input mistakes are answered in the response body only.
func (a *API) handoverFailed(s *session, err error) {
	if status, _ := errorStatus(err); status >= http.StatusInternalServerError {
		s.notes.Error("Saving the handover failed, please try again")
	}
}

func (a *API) finishSubFlow(c *gin.Context, s *session, res handover.Result) {
	out, err := s.ctrl.CompleteSubFlow(c.Request.Context(), res.Reservation)
	if err != nil {
		a.sessionError(c, s, err)
		return
	}
	a.submissions.WithLabelValues(string(out.Kind)).Inc()
	a.respond(c, http.StatusOK, s, sessionResponse{Outcome: &out, DamageCheck: res.DamageCheck})
}

// bindReturn reads the return details either from a JSON body or from the
// "data" field of a multipart form carrying the damage check as "damageCheck".
func bindReturn(c *gin.Context) (handover.ReturnDetails, *document.File, error) {
	var d handover.ReturnDetails
	if c.ContentType() != "multipart/form-data" {
		err := c.ShouldBindJSON(&d)
		return d, nil, err
	}

	if err := json.Unmarshal([]byte(c.PostForm("data")), &d); err != nil {
		return d, nil, err
	}

	fh, err := c.FormFile("damageCheck")
	if errors.Is(err, http.ErrMissingFile) {
		return d, nil, nil
	}
	if err != nil {
		return d, nil, err
	}
	f, err := readUpload(fh)
	if err != nil {
		return d, nil, err
	}
	return d, &f, nil
}

func (a *API) cancelSubFlowHandler(c *gin.Context) {
	s, ok := a.session(c)
	if !ok {
		return
	}

	if _, err := s.ctrl.CancelSubFlow(); err != nil {
		a.sessionError(c, s, err)
		return
	}
	a.respond(c, http.StatusOK, s, sessionResponse{})
}
