package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/watzon/tenantcore/internal/executions"
	"github.com/watzon/tenantcore/internal/triggers"
)

const (
	defaultExecutionLimit = 50
	maxExecutionLimit     = 500
)

func (h *Handlers) triggerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, triggers.ErrTriggerNotFound):
		NotFound(w, "Trigger not found")
	case errors.Is(err, triggers.ErrInvalidTransition):
		Conflict(w, err.Error())
	case errors.Is(err, triggers.ErrInvalidDefinition):
		var de *triggers.DefinitionError
		if errors.As(err, &de) {
			ErrorWithDetails(w, http.StatusBadRequest, "INVALID_TRIGGER", de.Message, map[string]string{"field": de.Field})
			return
		}
		BadRequest(w, err.Error())
	default:
		log.Error().Err(err).Msg("Trigger operation failed")
		InternalError(w, "Trigger operation failed")
	}
}

// ListTriggers returns all triggers, or those for ?entityClass=&phase= when
// both are given.
func (h *Handlers) ListTriggers(w http.ResponseWriter, r *http.Request) {
	class := r.URL.Query().Get("entityClass")
	phase := r.URL.Query().Get("phase")

	defs := h.triggers.List()
	if class != "" && phase != "" {
		defs = h.triggers.Matching(class, triggers.Phase(phase))
	}
	if defs == nil {
		defs = []*triggers.Definition{}
	}

	JSON(w, http.StatusOK, map[string]any{"triggers": defs})
}

func (h *Handlers) GetTrigger(w http.ResponseWriter, r *http.Request) {
	def, err := h.triggers.Get(r.PathValue("id"))
	if err != nil {
		h.triggerError(w, err)
		return
	}
	JSON(w, http.StatusOK, def)
}

func (h *Handlers) CreateTrigger(w http.ResponseWriter, r *http.Request) {
	var def triggers.Definition
	if err := decodeBody(r, &def); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}

	created, err := h.triggers.Create(r.Context(), &def)
	if err != nil {
		h.triggerError(w, err)
		return
	}
	JSON(w, http.StatusCreated, created)
}

func (h *Handlers) UpdateTrigger(w http.ResponseWriter, r *http.Request) {
	var def triggers.Definition
	if err := decodeBody(r, &def); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}
	def.ID = r.PathValue("id")

	updated, err := h.triggers.Update(r.Context(), &def)
	if err != nil {
		h.triggerError(w, err)
		return
	}
	JSON(w, http.StatusOK, updated)
}

func (h *Handlers) DeleteTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.triggers.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.triggerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) ActivateTrigger(w http.ResponseWriter, r *http.Request) {
	def, err := h.triggers.Activate(r.Context(), r.PathValue("id"))
	if err != nil {
		h.triggerError(w, err)
		return
	}
	JSON(w, http.StatusOK, def)
}

func (h *Handlers) DisableTrigger(w http.ResponseWriter, r *http.Request) {
	def, err := h.triggers.Disable(r.Context(), r.PathValue("id"))
	if err != nil {
		h.triggerError(w, err)
		return
	}
	JSON(w, http.StatusOK, def)
}

func (h *Handlers) TriggerStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.triggers.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		h.triggerError(w, err)
		return
	}
	JSON(w, http.StatusOK, stats)
}

// TriggerExecutions returns a trigger's log. With a history configured it
// supports ?limit=&offset=&success= and returns newest first.
func (h *Handlers) TriggerExecutions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.triggers.Get(id); err != nil {
		h.triggerError(w, err)
		return
	}

	if h.history == nil {
		entries, err := h.triggers.Entries(r.Context(), id)
		if err != nil {
			h.triggerError(w, err)
			return
		}
		if entries == nil {
			entries = []triggers.LogEntry{}
		}
		JSON(w, http.StatusOK, map[string]any{"executions": entries, "total": len(entries)})
		return
	}

	filter, err := executionFilter(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	filter.TriggerID = id

	entries, err := h.history.List(r.Context(), filter)
	if err != nil {
		h.triggerError(w, err)
		return
	}
	total, err := h.history.Count(r.Context(), id)
	if err != nil {
		h.triggerError(w, err)
		return
	}
	if entries == nil {
		entries = []triggers.LogEntry{}
	}

	JSON(w, http.StatusOK, map[string]any{"executions": entries, "total": total})
}

func executionFilter(r *http.Request) (executions.Filter, error) {
	q := r.URL.Query()
	f := executions.Filter{Limit: defaultExecutionLimit}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxExecutionLimit {
			return f, fmt.Errorf("limit must be between 1 and %d", maxExecutionLimit)
		}
		f.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errors.New("offset must be a non-negative integer")
		}
		f.Offset = n
	}
	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, errors.New("success must be true or false")
		}
		f.Success = &b
	}

	return f, nil
}

type fireRequest struct {
	EntityClass string         `json:"entityClass"`
	Phase       string         `json:"phase"`
	EntityID    string         `json:"entityId"`
	Entity      map[string]any `json:"entity"`
	Previous    map[string]any `json:"previous"`
}

// FireTriggers runs every active trigger matching the posted event.
func (h *Handlers) FireTriggers(w http.ResponseWriter, r *http.Request) {
	var req fireRequest
	if err := decodeBody(r, &req); err != nil {
		BadRequest(w, "Invalid JSON body")
		return
	}
	if req.EntityClass == "" || !triggers.Phase(req.Phase).Valid() {
		BadRequest(w, "entityClass and a valid phase are required")
		return
	}

	call := caller(r, nil)
	result := h.triggers.Fire(r.Context(), &triggers.Event{
		EntityClass:    req.EntityClass,
		Phase:          triggers.Phase(req.Phase),
		EntityID:       req.EntityID,
		Entity:         req.Entity,
		Previous:       req.Previous,
		UserID:         call.UserID,
		OrganizationID: call.OrganizationID,
	})

	resp := map[string]any{
		"entries": result.Entries,
		"skipped": result.Skipped,
		"blocked": result.Blocked != nil,
	}
	if result.Entries == nil {
		resp["entries"] = []triggers.LogEntry{}
	}
	JSON(w, http.StatusOK, resp)
}
