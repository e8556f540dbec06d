package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"blueprint-drafts/application/commands"
	"blueprint-drafts/application/commands/bus"
	"blueprint-drafts/application/queries"
	querybus "blueprint-drafts/application/queries/bus"
	"blueprint-drafts/pkg/common"
	pkgerrors "blueprint-drafts/pkg/errors"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// maxBodyBytes bounds request bodies; proposals carry whole blueprints
const maxBodyBytes = 4 << 20

// SessionHandler handles draft session HTTP requests
type SessionHandler struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	logger     *zap.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	logger *zap.Logger,
) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if errorHandler == nil {
		errorHandler = pkgerrors.NewErrorHandler(logger, false)
	}
	return &SessionHandler{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		logger:     logger,
	}
}

// OpenSession handles POST /sessions
func (h *SessionHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	var cmd commands.OpenSessionCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	h.send(w, r, http.StatusCreated, cmd)
}

// ListSessions handles GET /sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.ListSessionsQuery{BlueprintID: r.URL.Query().Get("blueprintId")})
}

// GetView handles GET /sessions/{sessionID}
func (h *SessionHandler) GetView(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetViewQuery{SessionID: sessionID(r)})
}

// GetAdvisories handles GET /sessions/{sessionID}/advisories
func (h *SessionHandler) GetAdvisories(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, queries.GetAdvisoriesQuery{SessionID: sessionID(r)})
}

// CloseSession handles DELETE /sessions/{sessionID}
func (h *SessionHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if _, err := h.commandBus.Send(r.Context(), commands.CloseSessionCommand{SessionCommand: session(r)}); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApplyEdit handles POST /sessions/{sessionID}/edits
func (h *SessionHandler) ApplyEdit(w http.ResponseWriter, r *http.Request) {
	var cmd commands.ApplyEditCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.SessionCommand = session(r)
	h.send(w, r, http.StatusOK, cmd)
}

// Undo handles POST /sessions/{sessionID}/undo
func (h *SessionHandler) Undo(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, http.StatusOK, commands.UndoCommand{SessionCommand: session(r)})
}

// Redo handles POST /sessions/{sessionID}/redo
func (h *SessionHandler) Redo(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, http.StatusOK, commands.RedoCommand{SessionCommand: session(r)})
}

// Suggest handles POST /sessions/{sessionID}/suggest. The proposal arrives
// later, so the request is only accepted here.
func (h *SessionHandler) Suggest(w http.ResponseWriter, r *http.Request) {
	var cmd commands.SuggestCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.SessionCommand = session(r)
	h.send(w, r, http.StatusAccepted, cmd)
}

// ReceiveProposal handles POST /sessions/{sessionID}/proposals
func (h *SessionHandler) ReceiveProposal(w http.ResponseWriter, r *http.Request) {
	var cmd commands.ReceiveProposalCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.SessionCommand = session(r)
	h.send(w, r, http.StatusOK, cmd)
}

// ResolveConflict handles PUT /sessions/{sessionID}/conflicts
func (h *SessionHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	var cmd commands.ResolveConflictCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.SessionCommand = session(r)
	h.send(w, r, http.StatusOK, cmd)
}

// DiscardProposal handles POST /sessions/{sessionID}/discard
func (h *SessionHandler) DiscardProposal(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, http.StatusOK, commands.DiscardProposalCommand{SessionCommand: session(r)})
}

// Commit handles POST /sessions/{sessionID}/commit
func (h *SessionHandler) Commit(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, http.StatusCreated, commands.CommitCommand{SessionCommand: session(r)})
}

// Checkpoint handles POST /sessions/{sessionID}/checkpoint
func (h *SessionHandler) Checkpoint(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, http.StatusCreated, commands.CheckpointCommand{SessionCommand: session(r)})
}

// Preview handles POST /sessions/{sessionID}/preview
func (h *SessionHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.send(w, r, http.StatusOK, commands.PreviewCommand{SessionCommand: session(r)})
}

// Connect handles POST /sessions/{sessionID}/connections
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	var cmd commands.ConnectCommand
	if !h.decode(w, r, &cmd) {
		return
	}
	cmd.SessionCommand = session(r)
	if _, err := h.commandBus.Send(r.Context(), cmd); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListVersions handles GET /blueprints/{blueprintID}/versions
func (h *SessionHandler) ListVersions(w http.ResponseWriter, r *http.Request) {
	params := common.ExtractPaginationParams(r)
	h.ask(w, r, queries.ListVersionsQuery{
		BlueprintID: chi.URLParam(r, "blueprintID"),
		Page:        params.Page,
		PageSize:    params.PageSize,
	})
}

// GetVersion handles GET /blueprints/{blueprintID}/versions/{version}
func (h *SessionHandler) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.Atoi(chi.URLParam(r, "version"))
	if err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("version must be an integer"))
		return
	}
	h.ask(w, r, queries.GetVersionQuery{BlueprintID: chi.URLParam(r, "blueprintID"), Version: version})
}

// CompareVersions handles GET /blueprints/{blueprintID}/compare?from=&to=
func (h *SessionHandler) CompareVersions(w http.ResponseWriter, r *http.Request) {
	from, errFrom := strconv.Atoi(r.URL.Query().Get("from"))
	to, errTo := strconv.Atoi(r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("from and to must be integers"))
		return
	}
	h.ask(w, r, queries.CompareVersionsQuery{BlueprintID: chi.URLParam(r, "blueprintID"), From: from, To: to})
}

// Helper methods

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func session(r *http.Request) commands.SessionCommand {
	return commands.SessionCommand{SessionID: sessionID(r)}
}

func (h *SessionHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := common.ParseJSONBody(w, r, v, maxBodyBytes)
	if err == nil {
		return true
	}

	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		h.errors.HandleStatus(w, r, http.StatusRequestEntityTooLarge, "request body too large")
	case pkgerrors.GetDomainError(err) != nil:
		h.errors.Handle(w, r, err)
	default:
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
	}
	return false
}

func (h *SessionHandler) send(w http.ResponseWriter, r *http.Request, status int, cmd bus.Command) {
	result, err := h.commandBus.Send(r.Context(), cmd)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, status, result, common.NewMeta(r, "v2"))
}

func (h *SessionHandler) ask(w http.ResponseWriter, r *http.Request, query querybus.Query) {
	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondWithMeta(w, http.StatusOK, result, common.NewMeta(r, "v2"))
}
