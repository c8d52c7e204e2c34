package agent

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mscrnt/homecards/pkg/card"
	"github.com/mscrnt/homecards/pkg/db"
)

// CardsResponse is the body of GET /cards
type CardsResponse struct {
	UpdatedAt time.Time   `json:"updated_at"`
	Refreshes uint64      `json:"refreshes"` // monitoring refreshes since the agent started
	Cards     []card.Card `json:"cards"`
	Hidden    []card.ID   `json:"hidden,omitempty"` // shown by monitoring but dismissed
}

// CardStatus is the body of GET /cards/{id}
type CardStatus struct {
	ID          card.ID    `json:"id"`
	Displayable bool       `json:"displayable"`
	Dismissed   bool       `json:"dismissed"`
	Card        *card.Card `json:"card,omitempty"`
	Error       string     `json:"error,omitempty"`
	CheckedAt   time.Time  `json:"checked_at"`
}

// DismissalResponse is the body of the dismiss endpoints
type DismissalResponse struct {
	ID        card.ID `json:"id"`
	Dismissed bool    `json:"dismissed"`
}

// ErrorResponse is returned with every non-2xx JSON status
type ErrorResponse struct {
	Error string `json:"error"`
}

// cardsHandler returns the latest monitored cards minus dismissed ones.
// ?all=true includes dismissed cards.
func (s *Server) cardsHandler(w http.ResponseWriter, r *http.Request) {
	cards, updatedAt := s.backend.Snapshot.Cards()

	resp := CardsResponse{UpdatedAt: updatedAt, Refreshes: s.backend.Snapshot.Updates(), Cards: cards}
	if r.URL.Query().Get("all") != "true" {
		dismissed, err := s.backend.Dismissals.Dismissed()
		if err != nil {
			s.logger.Error("Failed to read dismissals", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to read dismissals")
			return
		}
		resp.Cards = db.FilterDismissed(cards, dismissed)
		for _, c := range cards {
			if _, ok := dismissed[c.ID()]; ok {
				resp.Hidden = append(resp.Hidden, c.ID())
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// cardHandler checks one controller right now
func (s *Server) cardHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.cardID(w, r)
	if !ok {
		return
	}

	dismissed, err := s.backend.Dismissals.Dismissed()
	if err != nil {
		s.logger.Error("Failed to read dismissals", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read dismissals")
		return
	}

	st := s.backend.Registry.Inspect(r.Context(), id, s.config.CheckTimeout)
	_, isDismissed := dismissed[id]
	resp := CardStatus{
		ID:          id,
		Displayable: st.Displayable,
		Dismissed:   isDismissed,
		CheckedAt:   time.Now(),
	}
	if st.Displayable {
		c := st.Card
		resp.Card = &c
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) dismissHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.cardID(w, r)
	if !ok {
		return
	}

	if err := s.backend.Dismissals.Dismiss(id); err != nil {
		s.logger.Error("Failed to dismiss card", zap.Int64("card", int64(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to dismiss card")
		return
	}

	writeJSON(w, http.StatusOK, DismissalResponse{ID: id, Dismissed: true})
}

func (s *Server) restoreHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.cardID(w, r)
	if !ok {
		return
	}

	err := s.backend.Dismissals.Restore(id)
	switch {
	case errors.Is(err, db.ErrNotDismissed):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		s.logger.Error("Failed to restore card", zap.Int64("card", int64(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to restore card")
		return
	}

	writeJSON(w, http.StatusOK, DismissalResponse{ID: id, Dismissed: false})
}

// cardID parses the {id} path value and checks it is registered
func (s *Server) cardID(w http.ResponseWriter, r *http.Request) (card.ID, bool) {
	id, err := card.ParseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, false
	}
	if !s.backend.Registry.Has(id) {
		writeError(w, http.StatusNotFound, "unknown card "+id.String()+", registered: "+joinIDs(s.backend.Registry.IDs()))
		return 0, false
	}
	return id, true
}

func joinIDs(ids []card.ID) string {
	sorted := append([]card.ID(nil), ids...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
