package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/kaanagar1/equimarket-sub000/internal/db"
	"github.com/kaanagar1/equimarket-sub000/internal/models"
)

// DefaultLocale is the locale every built-in template exists in.
const DefaultLocale = "tr-TR"

// Built-in templates, used when the database has no override.
var defaultEmailTemplates = map[string]models.EmailTemplate{
	NotificationTemplateID: {
		TemplateID: NotificationTemplateID,
		Locale:     DefaultLocale,
		Subject:    "{{.title}}",
		Body: "Merhaba {{.name}},\n\n{{.message}}\n\n" +
			"{{if .link}}Detaylar: {{.link}}\n\n{{end}}" +
			"Bildirim tercihlerinizi profil sayfanızdan değiştirebilirsiniz.\n",
	},
}

// RenderedEmail is a template filled with data.
type RenderedEmail struct {
	Subject string
	Body    string
}

// IEmailTemplateService defines the interface for email template operations.
type IEmailTemplateService interface {
	GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error)
	Render(ctx context.Context, templateID, locale string, data map[string]any) (*RenderedEmail, error)
}

type emailTemplateService struct {
	db *mongo.Database
}

// NewEmailTemplateService creates a new EmailTemplateService.
func NewEmailTemplateService(database *mongo.Database) IEmailTemplateService {
	return &emailTemplateService{db: database}
}

// GetTemplate returns the stored template for the locale, falling back to the built-in one.
func (s *emailTemplateService) GetTemplate(ctx context.Context, templateID, locale string) (*models.EmailTemplate, error) {
	if locale == "" {
		locale = DefaultLocale
	}
	if s.db != nil {
		var tmpl models.EmailTemplate
		err := s.db.Collection(db.EmailTemplatesCollection).
			FindOne(ctx, bson.M{"template_id": templateID, "locale": locale}).Decode(&tmpl)
		if err == nil {
			return &tmpl, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("error retrieving template: %w", err)
		}
	}
	if tmpl, ok := defaultEmailTemplates[templateID]; ok {
		return &tmpl, nil
	}
	return nil, fmt.Errorf("template not found: %s (locale: %s)", templateID, locale)
}

// Render fills the template's subject and body with data.
func (s *emailTemplateService) Render(ctx context.Context, templateID, locale string, data map[string]any) (*RenderedEmail, error) {
	tmpl, err := s.GetTemplate(ctx, templateID, locale)
	if err != nil {
		return nil, err
	}
	subject, err := execute(templateID+".subject", tmpl.Subject, data)
	if err != nil {
		return nil, err
	}
	body, err := execute(templateID+".body", tmpl.Body, data)
	if err != nil {
		return nil, err
	}
	return &RenderedEmail{Subject: subject, Body: body}, nil
}

func execute(name, src string, data map[string]any) (string, error) {
	t, err := template.New(name).Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}
