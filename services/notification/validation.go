package notification

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"tripnotify/models"

	"github.com/go-playground/validator/v10"
)

// CreateNotificationRequest is the input to CreateAndSendNotification.
type CreateNotificationRequest struct {
	UserID      string                  `json:"userId" validate:"required"`
	OrderID     string                  `json:"orderId,omitempty"`
	Type        models.NotificationType `json:"type" validate:"required"`
	Channel     models.Channel          `json:"channel" validate:"required"`
	Priority    models.Priority         `json:"priority,omitempty"`
	Title       string                  `json:"title,omitempty" validate:"required_without=TemplateID,max=256"`
	Content     string                  `json:"content,omitempty" validate:"required_without=TemplateID,max=8192"`
	TemplateID  string                  `json:"templateId,omitempty"`
	Metadata    models.Metadata         `json:"metadata,omitempty"`
	ScheduledAt *time.Time              `json:"scheduledAt,omitempty"`
}

// TemplateRequest creates or replaces a template.
type TemplateRequest struct {
	Name     string                  `json:"name" validate:"required,max=128"`
	Type     models.NotificationType `json:"type" validate:"required"`
	Channel  models.Channel          `json:"channel" validate:"required"`
	Title    string                  `json:"title" validate:"max=256"`
	Content  string                  `json:"content" validate:"required,max=8192"`
	IsActive *bool                   `json:"isActive,omitempty"`
}

var validate = validator.New()

func fieldProblems(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fmt.Sprintf("%s failed on '%s'", lowerFirst(fe.Field()), fe.Tag()))
	}
	return problems
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func (r *CreateNotificationRequest) validate() error {
	var problems []string
	if err := validate.Struct(r); err != nil {
		problems = append(problems, fieldProblems(err)...)
	}
	if r.Type != "" && !r.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", r.Type))
	}
	if r.Channel != "" && !r.Channel.Valid() {
		problems = append(problems, fmt.Sprintf("unknown channel %q", r.Channel))
	}
	if r.Priority != "" && !r.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("unknown priority %q", r.Priority))
	}
	if r.Type.Valid() {
		if unknown := r.Metadata.UnknownKeys(r.Type); len(unknown) > 0 {
			problems = append(problems, fmt.Sprintf("unknown metadata keys for %s: %s", r.Type, strings.Join(unknown, ", ")))
		}
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}

func (r *TemplateRequest) validate() error {
	var problems []string
	if err := validate.Struct(r); err != nil {
		problems = append(problems, fieldProblems(err)...)
	}
	if r.Type != "" && !r.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", r.Type))
	}
	if r.Channel != "" && !r.Channel.Valid() {
		problems = append(problems, fmt.Sprintf("unknown channel %q", r.Channel))
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}

func validateFilter(f models.NotificationFilter) error {
	var problems []string
	if f.Type != "" && !f.Type.Valid() {
		problems = append(problems, fmt.Sprintf("unknown type %q", f.Type))
	}
	if f.Channel != "" && !f.Channel.Valid() {
		problems = append(problems, fmt.Sprintf("unknown channel %q", f.Channel))
	}
	if f.Status != "" && !f.Status.Valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("unknown priority %q", f.Priority))
	}
	if f.SortBy != "" && !f.SortBy.Valid() {
		problems = append(problems, fmt.Sprintf("unknown sort field %q", f.SortBy))
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		problems = append(problems, "from must be before to")
	}
	if len(problems) > 0 {
		return newValidationError(problems...)
	}
	return nil
}
