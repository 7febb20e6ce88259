package handler

import (
	"time"

	"github.com/msomdec/issue-tracker/internal/domain"
)

// UserDTO is the JSON representation of a user.
type UserDTO struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func toUserDTO(u *domain.User) UserDTO {
	return UserDTO{ID: u.ID, Email: u.Email}
}

// IssueDTO is the JSON representation of an issue.
type IssueDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Priority    string `json:"priority"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

func toIssueDTO(i *domain.Issue) IssueDTO {
	return IssueDTO{
		ID:          i.ID,
		Title:       i.Title,
		Description: i.Description,
		Severity:    string(i.Severity),
		Priority:    string(i.Priority),
		Status:      string(i.Status),
		CreatedAt:   i.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toIssueDTOs(issues []domain.Issue) []IssueDTO {
	dtos := make([]IssueDTO, len(issues))
	for i := range issues {
		dtos[i] = toIssueDTO(&issues[i])
	}
	return dtos
}

// issueRequest is the body of create and update calls. Absent fields decode
// to nil so updates can tell "not sent" from "sent empty".
type issueRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Severity    *string `json:"severity"`
	Priority    *string `json:"priority"`
	Status      *string `json:"status"`
}

func (req issueRequest) toPatch() domain.IssuePatch {
	var p domain.IssuePatch
	p.Title = req.Title
	p.Description = req.Description
	if req.Severity != nil {
		v := domain.Level(*req.Severity)
		p.Severity = &v
	}
	if req.Priority != nil {
		v := domain.Level(*req.Priority)
		p.Priority = &v
	}
	if req.Status != nil {
		v := domain.Status(*req.Status)
		p.Status = &v
	}
	return p
}
