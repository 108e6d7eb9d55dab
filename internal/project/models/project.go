package models

import (
	"strings"
	"time"

	id "projectdesk/pkg/domain"
	dErrors "projectdesk/pkg/domain-errors"
)

// EntityType is the audit entity name for projects.
const EntityType = "Project"

// Status is the lifecycle state of a project.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusArchived  Status = "archived"
)

var validStatuses = map[Status]bool{
	StatusDraft:     true,
	StatusActive:    true,
	StatusCompleted: true,
	StatusArchived:  true,
}

func (s Status) IsValid() bool {
	return validStatuses[s]
}

// ParseStatus validates a status at a trust boundary. Matching is case-insensitive.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToLower(strings.TrimSpace(s)))
	if !status.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	return status, nil
}

const (
	maxTitleLength   = 255
	maxCountryLength = 100
)

// Project is the aggregate root for a country-scoped project.
//
// Invariants:
//   - Title is non-empty and at most 255 characters
//   - Status is one of the known statuses
//   - Country is set at construction and never changed by an update
//   - CreatedBy is nil once the creating account has been removed
type Project struct {
	ID            id.ProjectID `json:"id"`
	Title         string       `json:"title"`
	Description   string       `json:"description"`
	Status        Status       `json:"status"`
	Country       string       `json:"country"`
	CreatedBy     *id.UserID   `json:"created_by"`
	CreatedByName string       `json:"created_by_username,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// NewProject constructs a project, enforcing invariants. An empty status defaults
// to draft.
func NewProject(projectID id.ProjectID, title, description string, status Status, country string, createdBy *id.UserID, createdByName string, now time.Time) (*Project, error) {
	if status == "" {
		status = StatusDraft
	}
	p := &Project{
		ID:            projectID,
		Title:         title,
		Description:   description,
		Status:        status,
		Country:       country,
		CreatedBy:     createdBy,
		CreatedByName: createdByName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Project) validate() error {
	if p.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if len(p.Title) > maxTitleLength {
		return dErrors.New(dErrors.CodeValidation, "title must be 255 characters or less")
	}
	if !p.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	if p.Country == "" {
		return dErrors.New(dErrors.CodeValidation, "country is required")
	}
	if len(p.Country) > maxCountryLength {
		return dErrors.New(dErrors.CodeValidation, "country must be 100 characters or less")
	}
	return nil
}

// CountryOf is the tenant partition the project belongs to.
func (p *Project) CountryOf() string {
	return p.Country
}

// Field exposes tracked attributes by their audit name.
func (p *Project) Field(name string) (any, bool) {
	switch name {
	case "title":
		return p.Title, true
	case "description":
		return p.Description, true
	case "status":
		return string(p.Status), true
	case "country":
		return p.Country, true
	}
	return nil, false
}

// Clone returns a copy that shares no pointers with p.
func (p *Project) Clone() *Project {
	if p == nil {
		return nil
	}
	c := *p
	if p.CreatedBy != nil {
		createdBy := *p.CreatedBy
		c.CreatedBy = &createdBy
	}
	return &c
}

// Apply writes the non-nil fields of req onto the project and re-checks invariants.
// Country is not part of the request and stays untouched.
func (p *Project) Apply(req *UpdateProjectRequest, now time.Time) error {
	if req.Title != nil {
		p.Title = *req.Title
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.Status != nil {
		p.Status = *req.Status
	}
	if err := p.validate(); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

// CreateProjectRequest is the input for creating a project. Country is honoured
// only where policy allows the caller to choose it.
type CreateProjectRequest struct {
	Title       string
	Description string
	Status      Status
	Country     string
}

func (r *CreateProjectRequest) Normalize() {
	if r == nil {
		return
	}
	r.Title = strings.TrimSpace(r.Title)
	r.Description = strings.TrimSpace(r.Description)
	r.Status = Status(strings.ToLower(strings.TrimSpace(string(r.Status))))
	r.Country = strings.TrimSpace(r.Country)
}

func (r *CreateProjectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title is required")
	}
	if r.Status != "" && !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	return nil
}

// UpdateProjectRequest is a partial update. Nil fields are left unchanged.
type UpdateProjectRequest struct {
	Title       *string
	Description *string
	Status      *Status
}

func (r *UpdateProjectRequest) Normalize() {
	if r == nil {
		return
	}
	if r.Title != nil {
		title := strings.TrimSpace(*r.Title)
		r.Title = &title
	}
	if r.Description != nil {
		description := strings.TrimSpace(*r.Description)
		r.Description = &description
	}
	if r.Status != nil {
		status := Status(strings.ToLower(strings.TrimSpace(string(*r.Status))))
		r.Status = &status
	}
}

func (r *UpdateProjectRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeValidation, "request is required")
	}
	if r.Title != nil && *r.Title == "" {
		return dErrors.New(dErrors.CodeValidation, "title cannot be empty")
	}
	if r.Status != nil && !r.Status.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid status")
	}
	return nil
}

// ListFilter narrows a project listing. Zero values match everything; the
// visibility filter is applied on top.
type ListFilter struct {
	Status    Status
	Country   string
	CreatedBy *id.UserID
}

// TrackedFields are the project attributes recorded in the audit trail.
var TrackedFields = []string{"title", "description", "status", "country"}
