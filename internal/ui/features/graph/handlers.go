// Package graph provides the graph state handlers for the UI.
package graph

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starfederation/datastar-go/datastar"

	"github.com/leapstack-labs/schemagraph/internal/cloudsync"
	"github.com/leapstack-labs/schemagraph/internal/engine"
	"github.com/leapstack-labs/schemagraph/internal/ui/features/common"
	sessionFeature "github.com/leapstack-labs/schemagraph/internal/ui/features/session"
	"github.com/leapstack-labs/schemagraph/internal/ui/notifier"
	"github.com/leapstack-labs/schemagraph/pkg/core"
)

// CredentialKeeper stores rotated backend tokens for the requesting client.
type CredentialKeeper interface {
	Remember(w http.ResponseWriter, r *http.Request, creds cloudsync.Credentials) error
}

// Handlers provides HTTP handlers for the graph feature.
type Handlers struct {
	keeper   CredentialKeeper
	notifier *notifier.Notifier
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(keeper CredentialKeeper, notify *notifier.Notifier, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{keeper: keeper, notifier: notify, logger: logger}
}

// VisibilityView is the JSON form of the user's filter choices.
type VisibilityView struct {
	Filters      []string          `json:"filters"`
	Hidden       []core.TableID    `json:"hidden"`
	HideIsolated bool              `json:"hideIsolated"`
	CustomColors map[string]string `json:"customColors"`
}

// GraphResponse is returned by GET /api/graph.
type GraphResponse struct {
	Graph         core.Graph     `json:"graph"`
	PropertyTypes []string       `json:"propertyTypes"`
	Visibility    VisibilityView `json:"visibility"`
	Status        engine.Status  `json:"status"`
}

func viewOf(v core.VisibilityState) VisibilityView {
	colors := make(map[string]string, len(v.CustomColors))
	for id, c := range v.CustomColors {
		colors[id] = c
	}
	return VisibilityView{
		Filters:      core.SortedKeys(v.SelectedPropertyTypes),
		Hidden:       core.IDSet(v.HiddenTableIDs).Sorted(),
		HideIsolated: v.HideIsolated,
		CustomColors: colors,
	}
}

func current(r *http.Request) *engine.Session {
	s, ok := sessionFeature.FromContext(r.Context())
	if !ok {
		panic("graph handler mounted without session middleware")
	}
	return s
}

// Graph returns the visible graph. ?all=true returns every node.
func (h *Handlers) Graph(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	g := s.VisibleGraph()
	if r.URL.Query().Get("all") == "true" {
		g = s.Graph()
	}
	common.WriteJSON(w, http.StatusOK, GraphResponse{
		Graph:         g,
		PropertyTypes: s.PropertyTypes(),
		Visibility:    viewOf(s.Visibility()),
		Status:        s.Status(),
	})
}

// respond writes the session status, or the error.
func (h *Handlers) respond(w http.ResponseWriter, s *engine.Session, err error) {
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, s.Status())
}

type connectRequest struct {
	Token string `json:"token"`
}

// Connect stores a provider token and loads the real schema.
func (h *Handlers) Connect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	s := current(r)
	h.respond(w, s, s.ConnectProvider(r.Context(), req.Token))
}

// Disconnect forgets the provider token and returns to demo data.
func (h *Handlers) Disconnect(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.DisconnectProvider())
}

// SyncSchema re-fetches the schema with the stored provider token.
func (h *Handlers) SyncSchema(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.SyncSchema(r.Context()))
}

// ToggleFilter toggles one property type filter.
func (h *Handlers) ToggleFilter(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.ToggleFilter(chi.URLParam(r, "type")))
}

// ToggleHidden hides or shows one table.
func (h *Handlers) ToggleHidden(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.ToggleHiddenTable(chi.URLParam(r, "id")))
}

// ToggleIsolated flips the hide-isolated switch.
func (h *Handlers) ToggleIsolated(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.ToggleHideIsolated())
}

// ClearFilters resets type filters and hidden tables.
func (h *Handlers) ClearFilters(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.ClearFilters())
}

type colorRequest struct {
	Color string `json:"color"`
}

// SetColor overrides one table's color.
func (h *Handlers) SetColor(w http.ResponseWriter, r *http.Request) {
	var req colorRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if req.Color == "" {
		common.WriteError(w, h.logger, fmt.Errorf("%w: color is required", common.ErrBadRequest))
		return
	}
	s := current(r)
	h.respond(w, s, s.SetColor(chi.URLParam(r, "id"), req.Color))
}

// ResetColor drops one table's color override.
func (h *Handlers) ResetColor(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.ResetColor(chi.URLParam(r, "id")))
}

type positionsRequest struct {
	Positions map[core.TableID]core.Position `json:"positions"`
}

// MoveNodes stores dragged node positions.
func (h *Handlers) MoveNodes(w http.ResponseWriter, r *http.Request) {
	var req positionsRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	if len(req.Positions) == 0 {
		common.WriteError(w, h.logger, fmt.Errorf("%w: positions are required", common.ErrBadRequest))
		return
	}
	s := current(r)
	h.respond(w, s, s.MoveNodes(req.Positions))
}

// HistoryResponse reports whether an undo or redo step was applied.
type HistoryResponse struct {
	Applied bool          `json:"applied"`
	Status  engine.Status `json:"status"`
}

// Undo steps back one layout snapshot.
func (h *Handlers) Undo(w http.ResponseWriter, r *http.Request) {
	h.travel(w, r, (*engine.Session).Undo)
}

// Redo steps forward one layout snapshot.
func (h *Handlers) Redo(w http.ResponseWriter, r *http.Request) {
	h.travel(w, r, (*engine.Session).Redo)
}

func (h *Handlers) travel(w http.ResponseWriter, r *http.Request, move func(*engine.Session) (bool, error)) {
	s := current(r)
	applied, err := move(s)
	if err != nil {
		common.WriteError(w, h.logger, err)
		return
	}
	common.WriteJSON(w, http.StatusOK, HistoryResponse{Applied: applied, Status: s.Status()})
}

// MarkOnboardingSeen records that the user dismissed onboarding.
func (h *Handlers) MarkOnboardingSeen(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	h.respond(w, s, s.MarkOnboardingSeen())
}

// Save writes the current state to the cloud. Tokens rotated by the sync
// client are written back to the cookie.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	before := s.Credentials()
	err := s.SaveNow(r.Context())
	if after := s.Credentials(); after != before && h.keeper != nil {
		if kerr := h.keeper.Remember(w, r, after); kerr != nil {
			h.logger.Warn("failed to store rotated tokens", slog.String("error", kerr.Error()))
		}
	}
	h.respond(w, s, err)
}

// Updates streams the session status as datastar signal patches whenever the
// user's session changes.
func (h *Handlers) Updates(w http.ResponseWriter, r *http.Request) {
	s := current(r)
	sse := datastar.NewSSE(w, r)

	updates := h.notifier.Subscribe(s.UserID())
	defer h.notifier.Unsubscribe(s.UserID(), updates)

	if err := h.sendStatus(sse, s); err != nil {
		return
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if err := h.sendStatus(sse, s); err != nil {
				h.logger.Debug("update stream closed", slog.String("error", err.Error()))
				return
			}
		}
	}
}

func (h *Handlers) sendStatus(sse *datastar.ServerSentEventGenerator, s *engine.Session) error {
	return sse.MarshalAndPatchSignals(map[string]any{"status": s.Status()})
}
