package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pavelanni/olympiad/internal/apperr"
	appI18n "github.com/pavelanni/olympiad/internal/i18n"
	"github.com/pavelanni/olympiad/internal/model"
	"github.com/pavelanni/olympiad/internal/views"
)

// handleResultReview renders a graded attempt as HTML for browsers signed
// in with the session cookie. Access rules match GET /exam-results/{id}.
func (h *Handler) handleResultReview(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	if user == nil {
		h.renderErrorPage(w, r, apperr.Unauthenticated())
		return
	}
	res, err := h.exams.Result(r.Context(), user, chi.URLParam(r, "id"))
	if err != nil {
		h.renderErrorPage(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := views.ResultPage(*res).Render(r.Context(), w); err != nil {
		slog.Error("failed to render result page", "id", res.ID, "error", err)
	}
}

func (h *Handler) renderErrorPage(w http.ResponseWriter, r *http.Request, err error) {
	e := apperr.As(err)
	switch e.Kind {
	case apperr.KindInternal, apperr.KindUnavailable, apperr.KindDataIntegrity:
		slog.Error("page request failed",
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"kind", e.Kind.String(),
			"error", err,
		)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(e.Kind.Status())
	page := views.MessagePage(appI18n.T(r.Context(), "AppTitle"), appI18n.T(r.Context(), e.MessageID))
	if err := page.Render(r.Context(), w); err != nil {
		slog.Error("failed to render error page", "error", err)
	}
}
