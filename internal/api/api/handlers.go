package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/ginext"

	"eventDesk/internal/dto"
	"eventDesk/internal/export"
	"eventDesk/internal/repo"
	"eventDesk/internal/service"
	"eventDesk/internal/syncManager"
)

type handlers struct {
	svc  service.Service
	sync Syncer
	log  *zerolog.Logger
}

// fail maps a service error to a status code and an error envelope.
func (h *handlers) fail(c *ginext.Context, op string, err error) {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		dto.NotFoundError(c, err.Error())
	case errors.Is(err, service.ErrValidationFailed):
		dto.BadResponseError(c, dto.FieldIncorrect, err.Error())
	case errors.Is(err, service.ErrEventFull):
		dto.ErrorResponse(c, http.StatusConflict, dto.EventFull, err.Error())
	case errors.Is(err, syncManager.ErrSyncInProgress):
		dto.ErrorResponse(c, http.StatusConflict, dto.SyncInProgress, err.Error())
	case errors.Is(err, repo.ErrRemoteUnavailable):
		dto.ErrorResponse(c, http.StatusServiceUnavailable, dto.RemoteUnavailable,
			"The remote store is unavailable, changes cannot be saved right now")
	case errors.Is(err, repo.ErrRemoteWriteFailed):
		h.log.Error().Err(err).Str("op", op).Msg("remote write failed")
		dto.ErrorResponse(c, http.StatusBadGateway, dto.RemoteWriteFailed, err.Error())
	case errors.Is(err, repo.ErrRemoteQueryFailed):
		h.log.Error().Err(err).Str("op", op).Msg("remote query failed")
		dto.ErrorResponse(c, http.StatusBadGateway, dto.RemoteQueryFailed, err.Error())
	default:
		h.log.Error().Err(err).Str("op", op).Msg("unexpected error")
		dto.InternalServerError(c)
	}
}

func (h *handlers) health(c *ginext.Context) {
	dto.SuccessResponse(c, h.sync.Status(c.Request.Context()))
}

func (h *handlers) listEvents(c *ginext.Context) {
	var all bool
	if raw := c.Query("all"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			dto.FieldBadFormatError(c, "all")
			return
		}
		all = v
	}
	list, err := h.svc.ListEvents(c.Request.Context(), service.EventFilter{IncludeInactive: all})
	if err != nil {
		h.fail(c, "list events", err)
		return
	}
	dto.SuccessResponse(c, list)
}

func (h *handlers) createEvent(c *ginext.Context) {
	var req service.EventInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn().Err(err).Msg("failed to parse create event request")
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	ev, err := h.svc.CreateEvent(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "create event", err)
		return
	}
	dto.SuccessCreatedResponse(c, ev)
}

func (h *handlers) getEvent(c *ginext.Context) {
	ev, err := h.svc.GetEvent(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "get event", err)
		return
	}
	dto.SuccessResponse(c, ev)
}

func (h *handlers) updateEvent(c *ginext.Context) {
	var req service.EventPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	ev, err := h.svc.UpdateEvent(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, "update event", err)
		return
	}
	dto.SuccessResponse(c, ev)
}

func (h *handlers) deleteEvent(c *ginext.Context) {
	if err := h.svc.DeleteEvent(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete event", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) createRegistration(c *ginext.Context) {
	var req service.RegistrationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	req.EventID = c.Param("id")

	reg, err := h.svc.CreateRegistration(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "create registration", err)
		return
	}
	dto.SuccessCreatedResponse(c, reg)
}

func (h *handlers) listRegistrations(c *ginext.Context) {
	var f service.RegistrationFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid query parameters")
		return
	}
	list, err := h.svc.ListRegistrations(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "list registrations", err)
		return
	}
	dto.SuccessResponse(c, list)
}

func (h *handlers) stats(c *ginext.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, "registration stats", err)
		return
	}
	dto.SuccessResponse(c, st)
}

func (h *handlers) exportRegistrations(c *ginext.Context) {
	var f service.RegistrationFilter
	if err := c.ShouldBindQuery(&f); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid query parameters")
		return
	}
	list, err := h.svc.ListRegistrations(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "export registrations", err)
		return
	}
	if len(list.Items) == 0 {
		dto.NotFoundError(c, "No registrations to export")
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+export.FileName(time.Now())+`"`)
	if list.FromCache {
		c.Header("X-From-Cache", "true")
	}
	c.Status(http.StatusOK)
	if err := export.WriteCSV(c.Writer, list.Items, time.Local); err != nil {
		h.log.Error().Err(err).Msg("failed to write csv export")
	}
}

func (h *handlers) updateRegistration(c *ginext.Context) {
	var req service.RegistrationPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		dto.BadResponseError(c, dto.FieldIncorrect, "Invalid JSON format")
		return
	}
	reg, err := h.svc.UpdateRegistration(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		h.fail(c, "update registration", err)
		return
	}
	dto.SuccessResponse(c, reg)
}

func (h *handlers) deleteRegistration(c *ginext.Context) {
	if err := h.svc.DeleteRegistration(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, "delete registration", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) clearRegistrations(c *ginext.Context) {
	n, err := h.svc.ClearRegistrations(c.Request.Context())
	if err != nil {
		h.log.Error().Err(err).Int("deleted", n).Msg("clear stopped early")
		h.fail(c, "clear registrations", err)
		return
	}
	dto.SuccessResponse(c, dto.ClearResponse{Deleted: n})
}

func (h *handlers) syncStatus(c *ginext.Context) {
	dto.SuccessResponse(c, h.sync.Status(c.Request.Context()))
}

func (h *handlers) forceSync(c *ginext.Context) {
	if err := h.sync.ForceSync(c.Request.Context()); err != nil {
		h.fail(c, "force sync", err)
		return
	}
	dto.SuccessResponse(c, h.sync.Status(c.Request.Context()))
}
