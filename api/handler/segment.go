package handler

import (
	"context"
	"net/http"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/fastygo/segments/api/transport"
	"github.com/fastygo/segments/domain"
	"github.com/fastygo/segments/pkg/httpcontext"
	"github.com/fastygo/segments/repository"
	segmentUC "github.com/fastygo/segments/usecase/segment"
)

type SegmentHandler struct {
	baseHandler
	uc    *segmentUC.UseCase
	users repository.UserRepository
}

func NewSegmentHandler(uc *segmentUC.UseCase, users repository.UserRepository, adapter *httpcontext.Adapter, logger *zap.Logger) *SegmentHandler {
	return &SegmentHandler{
		baseHandler: newBaseHandler(adapter, logger),
		uc:          uc,
		users:       users,
	}
}

// @Summary Create segment
// @Tags segments
// @Accept json
// @Produce json
// @Router /api/v1/segments [post]
func (h *SegmentHandler) Create(ctx *fasthttp.RequestCtx) {
	var req transport.CreateSegmentRequest
	if err := domain.DecodeJSON(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	caller, ok := h.caller(ctx, stdCtx)
	if !ok {
		return
	}

	in, err := req.ToDomain(caller.UserID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	created, err := h.uc.Create(stdCtx, caller, in)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusCreated, h.view(stdCtx, created))
}

// @Summary Get segment
// @Tags segments
// @Router /api/v1/segments/{id} [get]
func (h *SegmentHandler) Get(ctx *fasthttp.RequestCtx) {
	id, ok := h.segmentID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	segment, err := h.uc.Retrieve(stdCtx, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.view(stdCtx, segment))
}

// @Summary Check that an active segment exists
// @Tags segments
// @Router /api/v1/segments/{id} [head]
func (h *SegmentHandler) Exists(ctx *fasthttp.RequestCtx) {
	id, ok := pathID(ctx, "id")
	if !ok {
		ctx.SetStatusCode(http.StatusNotFound)
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	exists, err := h.uc.Exists(stdCtx, id)
	switch {
	case err != nil:
		h.logger.Error("segment existence check failed", zap.Int64("segment_id", id), zap.Error(err))
		ctx.SetStatusCode(http.StatusInternalServerError)
	case exists:
		ctx.SetStatusCode(http.StatusOK)
	default:
		ctx.SetStatusCode(http.StatusNotFound)
	}
}

// @Summary Update segment
// @Tags segments
// @Accept json
// @Produce json
// @Router /api/v1/segments/{id} [put]
func (h *SegmentHandler) Update(ctx *fasthttp.RequestCtx) {
	id, ok := h.segmentID(ctx)
	if !ok {
		return
	}

	var req transport.UpdateSegmentRequest
	if err := domain.DecodeJSON(ctx.PostBody(), &req); err != nil {
		h.respondInvalid(ctx, "invalid payload")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	caller, ok := h.caller(ctx, stdCtx)
	if !ok {
		return
	}

	changes, err := req.ToDomain()
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	updated, err := h.uc.Update(stdCtx, caller, id, changes)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.view(stdCtx, updated))
}

// @Summary Archive segment
// @Tags segments
// @Router /api/v1/segments/{id} [delete]
func (h *SegmentHandler) Delete(ctx *fasthttp.RequestCtx) {
	id, ok := h.segmentID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	caller, ok := h.caller(ctx, stdCtx)
	if !ok {
		return
	}

	archived, err := h.uc.Delete(stdCtx, caller, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.view(stdCtx, archived))
}

// @Summary Physically delete segment
// @Tags segments
// @Router /api/v1/segments/{id}/purge [delete]
func (h *SegmentHandler) Purge(ctx *fasthttp.RequestCtx) {
	id, ok := h.segmentID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	caller, ok := h.caller(ctx, stdCtx)
	if !ok {
		return
	}

	if err := h.uc.Purge(stdCtx, caller, id); err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	ctx.SetStatusCode(http.StatusNoContent)
}

// @Summary Segment revision history
// @Tags segments
// @Router /api/v1/segments/{id}/revisions [get]
func (h *SegmentHandler) History(ctx *fasthttp.RequestCtx) {
	id, ok := h.segmentID(ctx)
	if !ok {
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	history, err := h.uc.History(stdCtx, id)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, history)
}

// @Summary Revert segment to a revision
// @Tags segments
// @Accept json
// @Router /api/v1/segments/{id}/revert [post]
func (h *SegmentHandler) Revert(ctx *fasthttp.RequestCtx) {
	id, ok := h.segmentID(ctx)
	if !ok {
		return
	}

	var req transport.RevertRequest
	if err := domain.DecodeJSON(ctx.PostBody(), &req); err != nil || req.RevisionID <= 0 {
		h.respondInvalid(ctx, "revision_id must be a positive integer")
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	caller, ok := h.caller(ctx, stdCtx)
	if !ok {
		return
	}

	reverted, err := h.uc.Revert(stdCtx, caller, id, req.RevisionID)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}
	h.respondSuccess(ctx, http.StatusOK, h.view(stdCtx, reverted))
}

// @Summary List a table's segments
// @Tags segments
// @Param state query string false "active, deleted or all"
// @Router /api/v1/tables/{table_id}/segments [get]
func (h *SegmentHandler) ListForTable(ctx *fasthttp.RequestCtx) {
	tableID, ok := pathID(ctx, "table_id")
	if !ok {
		h.respondInvalid(ctx, "table_id must be a positive integer")
		return
	}

	state, err := domain.ParseSegmentState(string(ctx.QueryArgs().Peek("state")))
	if err != nil {
		h.respondInvalid(ctx, err.Error())
		return
	}

	stdCtx, cancel := h.requestContext(ctx)
	defer cancel()

	segments, err := h.uc.RetrieveForTable(stdCtx, tableID, state)
	if err != nil {
		h.respondError(ctx, stdCtx, err)
		return
	}

	views := make([]transport.SegmentView, 0, len(segments))
	for i := range segments {
		views = append(views, h.view(stdCtx, &segments[i]))
	}
	h.respondJSON(ctx, http.StatusOK, transport.NewSuccess(views, transport.ListMeta{
		TableID: tableID,
		State:   string(state),
		Count:   len(views),
	}))
}

// caller loads the authenticated user so permission checks see the role
// the user has right now.
func (h *SegmentHandler) caller(ctx *fasthttp.RequestCtx, stdCtx context.Context) (domain.Caller, bool) {
	userID, ok := httpcontext.UserID(ctx)
	if !ok {
		h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "missing user id", nil))
		return domain.Caller{}, false
	}

	user, err := h.users.GetByID(stdCtx, userID)
	if err != nil {
		if domain.IsDomainError(err, domain.ErrCodeNotFound) {
			h.respondJSON(ctx, http.StatusUnauthorized, transport.NewError(string(domain.ErrCodeUnauthorized), "unknown user", nil))
			return domain.Caller{}, false
		}
		h.respondError(ctx, stdCtx, err)
		return domain.Caller{}, false
	}
	return domain.CallerFromUser(user), true
}

func (h *SegmentHandler) segmentID(ctx *fasthttp.RequestCtx) (int64, bool) {
	id, ok := pathID(ctx, "id")
	if !ok {
		h.respondInvalid(ctx, "segment id must be a positive integer")
	}
	return id, ok
}

// view resolves the creator. A missing creator is logged, not fatal.
func (h *SegmentHandler) view(ctx context.Context, segment *domain.Segment) transport.SegmentView {
	out := transport.SegmentView{Segment: segment}
	creator, err := segment.Creator(ctx)
	if err != nil {
		h.logger.Warn("segment creator lookup failed", zap.Int64("segment_id", segment.ID), zap.Error(err))
		return out
	}
	out.Creator = creator
	return out
}
