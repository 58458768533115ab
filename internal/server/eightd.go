package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"safeline/internal/domain"
	"safeline/internal/eightd"
	"safeline/internal/repo"
)

func registerIncidents(api huma.API, e eightd.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "report-incident",
		Method:        http.MethodPost,
		Path:          "/incidents",
		Summary:       "Report incident",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body CreateIncidentRequest `json:"body"`
	}) (*struct {
		Body domain.Incident `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.ReportIncident(ctx, eightd.IncidentOptions{
			Title:       input.Body.Title,
			Description: input.Body.Description,
			Severity:    input.Body.Severity,
			OccurredAt:  input.Body.OccurredAt,
			ActorID:     actorID,
		})
		if err = countTransition("incident", "reported", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Incident `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-incidents",
		Method:      http.MethodGet,
		Path:        "/incidents",
		Summary:     "List incidents",
	}, func(ctx context.Context, input *struct {
		Status   string `query:"status"`
		Severity string `query:"severity"`
		Limit    int    `query:"limit"`
		Cursor   string `query:"cursor"`
		CursorID string `query:"cursor_id"`
	}) (*struct {
		Body []domain.Incident `json:"body"`
	}, error) {
		limit := input.Limit
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		items, err := e.Repo.ListIncidents(ctx, repo.IncidentFilters{
			Status:          input.Status,
			Severity:        input.Severity,
			Limit:           limit,
			CursorCreatedAt: input.Cursor,
			CursorID:        input.CursorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Incident `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-incident",
		Method:      http.MethodGet,
		Path:        "/incidents/{incident_id}",
		Summary:     "Get incident",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IncidentID string `path:"incident_id"`
	}) (*struct {
		Body domain.Incident `json:"body"`
	}, error) {
		in, err := e.Repo.GetIncident(ctx, input.IncidentID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Incident `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "assign-investigator",
		Method:      http.MethodPost,
		Path:        "/incidents/{incident_id}/assign",
		Summary:     "Assign investigator",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IncidentID string                    `path:"incident_id"`
		Body       AssignInvestigatorRequest `json:"body"`
	}) (*struct {
		Body domain.Incident `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.AssignInvestigator(ctx, input.IncidentID, input.Body.UserID, actorID)
		if err = countTransition("incident", "assigned", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Incident `json:"body"`
		}{Body: in}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-incident-status",
		Method:      http.MethodPost,
		Path:        "/incidents/{incident_id}/status",
		Summary:     "Set incident status",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		IncidentID string                   `path:"incident_id"`
		Body       SetIncidentStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Incident `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := e.SetIncidentStatus(ctx, input.IncidentID, input.Body.Status, actorID)
		if err = countTransition("incident", "status", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Incident `json:"body"`
		}{Body: in}, nil
	})
}

func registerEightD(api huma.API, e eightd.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "init-eightd",
		Method:        http.MethodPost,
		Path:          "/eightd",
		Summary:       "Start 8D process",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body InitProcessRequest `json:"body"`
	}) (*struct {
		Body domain.Process `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.InitProcess(ctx, eightd.InitOptions{
			IncidentID:           input.Body.IncidentID,
			ProblemStatement:     input.Body.ProblemStatement,
			ChampionID:           input.Body.ChampionID,
			TargetCompletionDate: input.Body.TargetCompletionDate,
			ActorID:              actorID,
		})
		if err = countTransition("eightd", "created", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Process `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-eightd",
		Method:      http.MethodGet,
		Path:        "/eightd",
		Summary:     "List 8D processes",
	}, func(ctx context.Context, input *struct {
		Status string `query:"status" enum:"active,completed,"`
	}) (*struct {
		Body []domain.Process `json:"body"`
	}, error) {
		items, err := e.Repo.ListProcesses(ctx, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Process `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-eightd",
		Method:      http.MethodGet,
		Path:        "/eightd/{process_id}",
		Summary:     "Get 8D process detail",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string `path:"process_id"`
	}) (*struct {
		Body ProcessDetailResponse `json:"body"`
	}, error) {
		detail, err := processDetail(ctx, e, input.ProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ProcessDetailResponse `json:"body"`
		}{Body: detail}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-eightd",
		Method:      http.MethodPost,
		Path:        "/eightd/{process_id}/advance",
		Summary:     "Complete the current discipline",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string         `path:"process_id"`
		Body      AdvanceRequest `json:"body"`
	}) (*struct {
		Body domain.Process `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.Advance(ctx, input.ProcessID, input.Body.Discipline, actorID)
		if err = countTransition("eightd", "advance", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Process `json:"body"`
		}{Body: p}, nil
	})

	registerEightDTeam(api, e)
	registerEightDFindings(api, e)
	registerEightDActions(api, e)
}

func registerEightDTeam(api huma.API, e eightd.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-team-member",
		Method:        http.MethodPost,
		Path:          "/eightd/{process_id}/team",
		Summary:       "Add team member",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcessID string           `path:"process_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.TeamMember `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddTeamMember(ctx, eightd.AddMemberOptions{
			ProcessID:        input.ProcessID,
			UserID:           input.Body.UserID,
			Role:             input.Body.Role,
			ExpertiseArea:    input.Body.ExpertiseArea,
			Responsibilities: input.Body.Responsibilities,
			ActorID:          actorID,
		})
		if err = countTransition("eightd", "team_added", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TeamMember `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-team-members",
		Method:      http.MethodGet,
		Path:        "/eightd/{process_id}/team",
		Summary:     "List team members",
	}, func(ctx context.Context, input *struct {
		ProcessID string `path:"process_id"`
	}) (*struct {
		Body []domain.TeamMember `json:"body"`
	}, error) {
		items, err := e.Repo.ListTeamMembers(ctx, input.ProcessID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.TeamMember `json:"body"`
		}{Body: items}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-team-member",
		Method:      http.MethodDelete,
		Path:        "/eightd/{process_id}/team/{member_id}",
		Summary:     "Deactivate team member",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string `path:"process_id"`
		MemberID  string `path:"member_id"`
	}) (*struct{}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		err := e.RemoveTeamMember(ctx, input.ProcessID, input.MemberID, actorID)
		if err = countTransition("eightd", "team_removed", err); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recognize-team-member",
		Method:      http.MethodPost,
		Path:        "/eightd/{process_id}/team/{member_id}/recognize",
		Summary:     "Recognize team member",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcessID string                 `path:"process_id"`
		MemberID  string                 `path:"member_id"`
		Body      RecognizeMemberRequest `json:"body"`
	}) (*struct {
		Body domain.TeamMember `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.RecognizeMember(ctx, input.ProcessID, input.MemberID, input.Body.Notes, actorID)
		if err = countTransition("eightd", "recognized", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.TeamMember `json:"body"`
		}{Body: m}, nil
	})
}

func registerEightDFindings(api huma.API, e eightd.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "set-problem-description",
		Method:      http.MethodPut,
		Path:        "/eightd/{process_id}/problem",
		Summary:     "Set problem description",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string                    `path:"process_id"`
		Body      ProblemDescriptionRequest `json:"body"`
	}) (*struct {
		Body domain.ProblemDescription `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.SetProblemDescription(ctx, input.ProcessID, eightd.ProblemInput{
			What:    input.Body.What,
			Where:   input.Body.Where,
			When:    input.Body.When,
			Who:     input.Body.Who,
			HowMany: input.Body.HowMany,
			Impact:  input.Body.Impact,
		}, actorID)
		if err = countTransition("eightd", "problem_updated", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ProblemDescription `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-containment-action",
		Method:        http.MethodPost,
		Path:          "/eightd/{process_id}/containment",
		Summary:       "Add containment action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string             `path:"process_id"`
		Body      ContainmentRequest `json:"body"`
	}) (*struct {
		Body domain.ContainmentAction `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddContainmentAction(ctx, input.ProcessID, input.Body.Description, input.Body.ResponsibleID, actorID)
		if err = countTransition("eightd", "containment_added", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ContainmentAction `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-root-cause",
		Method:        http.MethodPost,
		Path:          "/eightd/{process_id}/root-causes",
		Summary:       "Add root cause",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string           `path:"process_id"`
		Body      RootCauseRequest `json:"body"`
	}) (*struct {
		Body domain.RootCause `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rc, err := e.AddRootCause(ctx, input.ProcessID, eightd.RootCauseInput{
			Description:    input.Body.Description,
			Category:       input.Body.Category,
			AnalysisMethod: input.Body.AnalysisMethod,
		}, actorID)
		if err = countTransition("eightd", "rootcause_added", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RootCause `json:"body"`
		}{Body: rc}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-root-cause",
		Method:      http.MethodPost,
		Path:        "/eightd/{process_id}/root-causes/{root_cause_id}/verify",
		Summary:     "Verify root cause",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcessID   string `path:"process_id"`
		RootCauseID string `path:"root_cause_id"`
	}) (*struct {
		Body domain.RootCause `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rc, err := e.VerifyRootCause(ctx, input.ProcessID, input.RootCauseID, actorID)
		if err = countTransition("eightd", "rootcause_verified", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.RootCause `json:"body"`
		}{Body: rc}, nil
	})
}

func registerEightDActions(api huma.API, e eightd.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "add-corrective-action",
		Method:        http.MethodPost,
		Path:          "/eightd/{process_id}/corrective-actions",
		Summary:       "Plan corrective action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string                  `path:"process_id"`
		Body      CorrectiveActionRequest `json:"body"`
	}) (*struct {
		Body domain.CorrectiveAction `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddCorrectiveAction(ctx, input.ProcessID, eightd.CorrectiveInput{
			RootCauseID:        input.Body.RootCauseID,
			Description:        input.Body.Description,
			ActionType:         input.Body.ActionType,
			ResponsibleID:      input.Body.ResponsibleID,
			TargetDate:         input.Body.TargetDate,
			VerificationMethod: input.Body.VerificationMethod,
		}, actorID)
		if err = countTransition("eightd", "corrective_added", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.CorrectiveAction `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "implement-corrective-action",
		Method:      http.MethodPost,
		Path:        "/eightd/{process_id}/corrective-actions/{action_id}/implement",
		Summary:     "Record corrective action implementation",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcessID string                 `path:"process_id"`
		ActionID  string                 `path:"action_id"`
		Body      ImplementActionRequest `json:"body"`
	}) (*struct {
		Body domain.ImplementationRecord `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.ImplementCorrectiveAction(ctx, input.ProcessID, input.ActionID, input.Body.Summary, input.Body.EvidenceRef, actorID)
		if err = countTransition("eightd", "corrective_implemented", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ImplementationRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-prevention-action",
		Method:        http.MethodPost,
		Path:          "/eightd/{process_id}/prevention-actions",
		Summary:       "Plan prevention action",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string                  `path:"process_id"`
		Body      PreventionActionRequest `json:"body"`
	}) (*struct {
		Body domain.PreventionAction `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.AddPreventionAction(ctx, input.ProcessID, eightd.PreventionInput{
			Description:      input.Body.Description,
			ActionType:       input.Body.ActionType,
			ResponsibleID:    input.Body.ResponsibleID,
			TargetDate:       input.Body.TargetDate,
			RolloutScope:     input.Body.RolloutScope,
			SimilarProcesses: input.Body.SimilarProcesses,
		}, actorID)
		if err = countTransition("eightd", "prevention_added", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PreventionAction `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "implement-prevention-action",
		Method:      http.MethodPost,
		Path:        "/eightd/{process_id}/prevention-actions/{action_id}/implement",
		Summary:     "Mark prevention action implemented",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProcessID string `path:"process_id"`
		ActionID  string `path:"action_id"`
	}) (*struct {
		Body domain.PreventionAction `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.ImplementPreventionAction(ctx, input.ProcessID, input.ActionID, actorID)
		if err = countTransition("eightd", "prevention_implemented", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PreventionAction `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-prevention-effectiveness",
		Method:      http.MethodPost,
		Path:        "/eightd/{process_id}/prevention-actions/{action_id}/verify",
		Summary:     "Verify prevention effectiveness",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProcessID string                     `path:"process_id"`
		ActionID  string                     `path:"action_id"`
		Body      VerifyEffectivenessRequest `json:"body"`
	}) (*struct {
		Body domain.PreventionAction `json:"body"`
	}, error) {
		actorID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.VerifyPreventionEffectiveness(ctx, input.ProcessID, input.ActionID, input.Body.Effective, input.Body.Notes, actorID)
		if err = countTransition("eightd", "prevention_verified", err); err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PreventionAction `json:"body"`
		}{Body: a}, nil
	})
}

func processDetail(ctx context.Context, e eightd.Engine, processID string) (ProcessDetailResponse, error) {
	p, err := e.Repo.GetProcess(ctx, processID)
	if err != nil {
		return ProcessDetailResponse{}, err
	}
	detail := ProcessDetailResponse{Process: p}
	for n := 1; n <= eightd.FinalDiscipline; n++ {
		detail.Steps = append(detail.Steps, DisciplineStep{Discipline: n, Status: eightd.StepStatus(p, n)})
	}
	if detail.Team, err = e.Repo.ListTeamMembers(ctx, p.ID); err != nil {
		return detail, err
	}
	desc, err := e.Repo.GetProblemDescription(ctx, p.ID)
	if err == nil {
		detail.ProblemDescription = &desc
	} else if !errors.Is(err, repo.ErrNotFound) {
		return detail, err
	}
	if detail.Containment, err = e.Repo.ListContainmentActions(ctx, p.ID); err != nil {
		return detail, err
	}
	if detail.RootCauses, err = e.Repo.ListRootCauses(ctx, p.ID); err != nil {
		return detail, err
	}
	if detail.CorrectiveActions, err = e.Repo.ListCorrectiveActions(ctx, p.ID); err != nil {
		return detail, err
	}
	if detail.Implementation, err = e.Repo.ListImplementationRecords(ctx, p.ID); err != nil {
		return detail, err
	}
	if detail.PreventionActions, err = e.Repo.ListPreventionActions(ctx, p.ID); err != nil {
		return detail, err
	}
	return detail, nil
}
