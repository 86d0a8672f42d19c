package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	notificationRepo "tripnotify/database/repository/notification"
	"tripnotify/models"
	"tripnotify/services/template"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateTemplate stores a new template. Its variables are derived from the
// title and content, never taken from the caller.
func (s *DefaultNotificationService) CreateTemplate(ctx context.Context, req TemplateRequest) (*models.NotificationTemplate, error) {
	vars, err := s.prepareTemplate(req)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	tpl := &models.NotificationTemplate{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Type:      req.Type,
		Channel:   req.Channel,
		Title:     req.Title,
		Content:   req.Content,
		Variables: vars,
		IsActive:  active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.templates.CreateTemplate(ctx, tpl); err != nil {
		if errors.Is(err, notificationRepo.ErrDuplicate) {
			return nil, newValidationError("a template named " + req.Name + " already exists")
		}
		return nil, &PersistenceError{Op: "CreateTemplate", Err: err}
	}
	s.logger.Info("Template created", zap.String("templateId", tpl.ID), zap.Strings("variables", vars))
	return tpl, nil
}

func (s *DefaultNotificationService) UpdateTemplate(ctx context.Context, id string, req TemplateRequest) (*models.NotificationTemplate, error) {
	vars, err := s.prepareTemplate(req)
	if err != nil {
		return nil, err
	}
	tpl, err := s.GetTemplate(ctx, id)
	if err != nil {
		return nil, err
	}
	tpl.Name = req.Name
	tpl.Type = req.Type
	tpl.Channel = req.Channel
	tpl.Title = req.Title
	tpl.Content = req.Content
	tpl.Variables = vars
	if req.IsActive != nil {
		tpl.IsActive = *req.IsActive
	}
	tpl.UpdatedAt = s.now()

	if err := s.templates.UpdateTemplate(ctx, tpl); err != nil {
		switch {
		case errors.Is(err, notificationRepo.ErrNotFound):
			return nil, ErrTemplateNotFound
		case errors.Is(err, notificationRepo.ErrDuplicate):
			return nil, newValidationError("a template named " + req.Name + " already exists")
		}
		return nil, &PersistenceError{Op: "UpdateTemplate", Err: err}
	}
	return tpl, nil
}

func (s *DefaultNotificationService) prepareTemplate(req TemplateRequest) ([]string, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	vars, err := s.engine.Prepare(req.Title, req.Content)
	if err != nil {
		var syntaxErr *template.SyntaxError
		if errors.As(err, &syntaxErr) {
			return nil, newValidationError(syntaxErr.Problems...)
		}
		return nil, err
	}
	// variables are filled from metadata, so only keys the type accepts can ever resolve
	if unknown := models.UnknownMetadataKeys(req.Type, vars); len(unknown) > 0 {
		return nil, newValidationError(fmt.Sprintf("variables not available for %s notifications: %s",
			req.Type, strings.Join(unknown, ", ")))
	}
	return vars, nil
}

func (s *DefaultNotificationService) GetTemplate(ctx context.Context, id string) (*models.NotificationTemplate, error) {
	tpl, err := s.templates.GetTemplate(ctx, id)
	if errors.Is(err, notificationRepo.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "GetTemplate", Err: err}
	}
	return tpl, nil
}

func (s *DefaultNotificationService) ListTemplates(ctx context.Context, filter models.TemplateFilter) ([]models.NotificationTemplate, error) {
	list, err := s.templates.FindTemplates(ctx, filter)
	if err != nil {
		return nil, &PersistenceError{Op: "ListTemplates", Err: err}
	}
	return list, nil
}

// FindActiveTemplate returns the template to use for a (type, channel) pair,
// or ErrTemplateNotFound when none is active.
func (s *DefaultNotificationService) FindActiveTemplate(ctx context.Context, typ models.NotificationType, channel models.Channel) (*models.NotificationTemplate, error) {
	tpl, err := s.templates.FindActiveTemplate(ctx, typ, channel)
	if errors.Is(err, notificationRepo.ErrNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "FindActiveTemplate", Err: err}
	}
	return tpl, nil
}

func (s *DefaultNotificationService) ValidateTemplate(content string) template.ValidationResult {
	return s.engine.Validate(content)
}
