package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hitoshi/portal/internal/audit"
	"github.com/hitoshi/portal/internal/middleware"
	"github.com/hitoshi/portal/internal/model"
)

// AggregatorInterface はダッシュボードハンドラーが必要とする集計インターフェース。
type AggregatorInterface interface {
	Aggregate(ctx context.Context, bearerToken string) *model.Dashboard
}

// DashboardHandler はメール・予定・タスクの集計結果を返すHTTPハンドラー。
type DashboardHandler struct {
	sessions   middleware.SessionRestorer
	aggregator AggregatorInterface
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(sessions middleware.SessionRestorer, aggregator AggregatorInterface) *DashboardHandler {
	return &DashboardHandler{
		sessions:   sessions,
		aggregator: aggregator,
	}
}

// GetDashboard は集計結果を返す。
// GET /api/dashboard
func (h *DashboardHandler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "load")
}

// Sync は手動同期を行う。処理はGetDashboardと同じで、専用のレート制限がかかる。
// POST /api/dashboard/sync
func (h *DashboardHandler) Sync(w http.ResponseWriter, r *http.Request) {
	h.serve(w, r, "sync")
}

func (h *DashboardHandler) serve(w http.ResponseWriter, r *http.Request, trigger string) {
	ctx := r.Context()
	sessionID := middleware.SessionIDFromContext(ctx)

	_, grant, err := h.sessions.RestoreSession(ctx, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if grant == nil || grant.BearerToken == "" {
		middleware.WriteErrorResponse(w, http.StatusForbidden, model.NewNotGrantedError())
		return
	}

	dashboard := h.aggregator.Aggregate(ctx, grant.BearerToken)

	// 集計中にログアウトまたはトークン差し替えがあった場合は結果を破棄する
	_, current, err := h.sessions.RestoreSession(ctx, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if current == nil || current.BearerToken != grant.BearerToken {
		slog.Warn("dashboard result discarded: grant changed during aggregation",
			slog.String("session_ref", audit.SessionRef(sessionID)),
			slog.String("trigger", trigger),
		)
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewSessionExpiredError())
		return
	}

	slog.Info("dashboard served",
		slog.String("session_ref", audit.SessionRef(sessionID)),
		slog.String("trigger", trigger),
		slog.Int("messages", len(dashboard.Messages)),
		slog.Int("events", len(dashboard.Events)),
		slog.Int("tasks", len(dashboard.Tasks)),
		slog.Int("errors", len(dashboard.Errors)),
	)
	writeJSON(w, http.StatusOK, dashboard)
}
