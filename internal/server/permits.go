package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"safeline/internal/access"
	"safeline/internal/domain"
	"safeline/internal/permit"
	"safeline/internal/repo"
)

func registerPermits(api huma.API, e permit.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-permit",
		Method:        http.MethodPost,
		Path:          "/permits",
		Summary:       "Create permit",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body CreatePermitRequest `json:"body"`
	}) (*struct {
		Body domain.Permit `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePermit(ctx, permit.CreateOptions{
			Title:           input.Body.Title,
			WorkDescription: input.Body.WorkDescription,
			Location:        input.Body.Location,
			PlannedStart:    input.Body.PlannedStart,
			PlannedEnd:      input.Body.PlannedEnd,
			Workers:         input.Body.Workers,
			ActorID:         actorID,
		})
		if err = countTransition("permit", "created", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Permit `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-permits",
		Method:      http.MethodGet,
		Path:        "/permits",
		Summary:     "List permits",
	}, func(ctx context.Context, input *struct {
		Status    string `query:"status"`
		CreatedBy string `query:"created_by"`
		Limit     int    `query:"limit"`
		Cursor    string `query:"cursor"`
		CursorID  string `query:"cursor_id"`
	}) (*struct {
		Body []domain.Permit `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		items, err := e.Repo.ListPermits(ctx, repo.PermitFilters{
			Status:          input.Status,
			CreatedBy:       input.CreatedBy,
			Limit:           limit,
			CursorCreatedAt: input.Cursor,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Permit `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-permit",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}",
		Summary:     "Get permit detail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
	}) (*struct {
		Body PermitDetailResponse `json:"body"`
	}, error) {
		p, err := e.Repo.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		audit, err := e.Repo.ListAudit(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		exts, err := e.Repo.ListExtensions(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PermitDetailResponse `json:"body"`
		}{Body: PermitDetailResponse{Permit: p, Audit: audit, Extensions: exts}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "permit-actions",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/actions",
		Summary:     "Sign-off eligibility for the current user",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PermitID string `path:"permit_id"`
	}) (*struct {
		Body PermitActionsResponse `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Repo.GetPermit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		u, err := e.Repo.GetUser(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		actor := access.ActorFromUser(u)
		return &struct {
			Body PermitActionsResponse `json:"body"`
		}{Body: PermitActionsResponse{
			PermitID:   p.ID,
			CanVerify:  e.Tables.CanVerify(actor, p),
			CanApprove: e.Tables.CanApprove(actor, p),
		}}, nil
	})

	registerPermitTransitions(api, e)
}

func registerPermitTransitions(api huma.API, e permit.Engine) {
	// The simple transitions share one handler shape; keep them explicit so
	// each carries its own operation ID and summary in the OpenAPI spec.
	type permitPath struct {
		PermitID string `path:"permit_id"`
	}
	type permitOut struct {
		Body domain.Permit `json:"body"`
	}
	simple := func(opID, pathSuffix, summary, action string, fn func(ctx context.Context, permitID, actorID string) (domain.Permit, error)) {
		huma.Register(api, huma.Operation{
			OperationID: opID,
			Method:      http.MethodPost,
			Path:        "/permits/{permit_id}/" + pathSuffix,
			Summary:     summary,
			Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
		}, func(ctx context.Context, input *permitPath) (*permitOut, error) {
			actorID, authErr := userIDFromContext(ctx)
			if authErr != nil {
				return nil, authErr
			}
			p, err := fn(ctx, input.PermitID, actorID)
			if err = countTransition("permit", action, err); err != nil {
				return nil, handleError(err)
			}
			return &permitOut{Body: p}, nil
		})
	}

	simple("submit-permit", "submit", "Submit permit for verification", "submitted", e.Submit)
	simple("review-permit", "review", "Start permit review", "review_started", e.StartReview)
	simple("start-work", "start", "Start permitted work", "work_started", e.StartWork)
	simple("complete-work", "complete", "Complete permitted work", "work_completed", e.CompleteWork)
	simple("resume-permit", "resume", "Resume suspended permit", "resumed", e.Resume)

	huma.Register(api, huma.Operation{
		OperationID: "verify-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/verify",
		Summary:     "Verify permit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string              `path:"permit_id"`
		Body     VerifyPermitRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Verify(ctx, input.PermitID, actorID, input.Body.Approve, input.Body.Comment)
		if err = countTransition("permit", "verified", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/approve",
		Summary:     "Approve permit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string         `path:"permit_id"`
		Body     CommentRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Approve(ctx, input.PermitID, actorID, input.Body.Comment)
		if err = countTransition("permit", "approved", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reject-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/reject",
		Summary:     "Reject permit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string         `path:"permit_id"`
		Body     CommentRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Reject(ctx, input.PermitID, actorID, input.Body.Comment)
		if err = countTransition("permit", "rejected", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/close",
		Summary:     "Close permit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string         `path:"permit_id"`
		Body     CommentRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ClosePermit(ctx, input.PermitID, actorID, input.Body.Comment)
		if err = countTransition("permit", "closed", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "suspend-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/suspend",
		Summary:     "Suspend permit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string        `path:"permit_id"`
		Body     ReasonRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Suspend(ctx, input.PermitID, actorID, input.Body.Reason)
		if err = countTransition("permit", "suspended", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cancel-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/cancel",
		Summary:     "Cancel permit",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string        `path:"permit_id"`
		Body     ReasonRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Cancel(ctx, input.PermitID, actorID, input.Body.Reason)
		if err = countTransition("permit", "cancelled", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "extend-permit",
		Method:      http.MethodPost,
		Path:        "/permits/{permit_id}/extend",
		Summary:     "Extend permit validity",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		PermitID string              `path:"permit_id"`
		Body     ExtendPermitRequest `json:"body"`
	}) (*permitOut, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RequestExtension(ctx, input.PermitID, actorID, input.Body.NewEnd, input.Body.Reason)
		if err = countTransition("permit", "extended", err); err != nil {
			return nil, handleError(err)
		}
		return &permitOut{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "permit-audit",
		Method:      http.MethodGet,
		Path:        "/permits/{permit_id}/audit",
		Summary:     "Permit audit trail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *permitPath) (*struct {
		Body []domain.AuditEntry `json:"body"`
	}, error) {
		if _, err := e.Repo.GetPermit(ctx, input.PermitID); err != nil {
			return nil, handleError(err)
		}
		audit, err := e.Repo.ListAudit(ctx, input.PermitID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.AuditEntry `json:"body"`
		}{Body: audit}, nil
	})
}
