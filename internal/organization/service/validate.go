package service

import (
	"net/mail"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/smallbiznis/membership/internal/organization/domain"
	"github.com/smallbiznis/membership/internal/role"
)

const (
	maxNameLength        = 100
	maxSlugLength        = 50
	maxDescriptionLength = 500
	maxMessageLength     = 500
	maxDomainLength      = 253
)

var (
	slugPattern  = regexp.MustCompile(`^[a-z0-9-]+$`)
	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

type organizationInput struct {
	Name        string
	Slug        string
	Description string
	Website     string
	Logo        string
}

func validateCreate(req domain.CreateOrganizationRequest) (organizationInput, error) {
	in := organizationInput{
		Name:        strings.TrimSpace(req.Name),
		Slug:        strings.TrimSpace(req.Slug),
		Description: strings.TrimSpace(req.Description),
		Website:     strings.TrimSpace(req.Website),
		Logo:        strings.TrimSpace(req.Logo),
	}
	if err := validateName(in.Name); err != nil {
		return in, err
	}
	if in.Slug == "" || len(in.Slug) > maxSlugLength || !slugPattern.MatchString(in.Slug) {
		return in, domain.ErrInvalidSlug
	}
	if utf8.RuneCountInString(in.Description) > maxDescriptionLength {
		return in, domain.ErrInvalidDescription
	}
	if in.Website != "" && !validURL(in.Website) {
		return in, domain.ErrInvalidWebsite
	}
	if in.Logo != "" && !validURL(in.Logo) {
		return in, domain.ErrInvalidLogo
	}
	return in, nil
}

func validateName(name string) error {
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return domain.ErrInvalidName
	}
	return nil
}

// validateUpdate checks only the fields that are set.
func validateUpdate(req domain.UpdateOrganizationRequest) error {
	if req.Name != nil {
		if err := validateName(strings.TrimSpace(*req.Name)); err != nil {
			return err
		}
	}
	if req.Description != nil && utf8.RuneCountInString(strings.TrimSpace(*req.Description)) > maxDescriptionLength {
		return domain.ErrInvalidDescription
	}
	if req.Website != nil && !validURL(strings.TrimSpace(*req.Website)) {
		return domain.ErrInvalidWebsite
	}
	if req.Logo != nil && !validURL(strings.TrimSpace(*req.Logo)) {
		return domain.ErrInvalidLogo
	}
	if req.Settings != nil {
		return validateSettings(*req.Settings)
	}
	return nil
}

func validateSettings(req domain.UpdateSettingsRequest) error {
	if req.DefaultRole != nil && !role.Valid(*req.DefaultRole) {
		return domain.ErrInvalidRole
	}
	if req.CustomDomain != nil && len(strings.TrimSpace(*req.CustomDomain)) > maxDomainLength {
		return domain.ErrInvalidSettings
	}
	if b := req.Branding; b != nil {
		if b.PrimaryColor != "" && !colorPattern.MatchString(b.PrimaryColor) {
			return domain.ErrInvalidSettings
		}
		if b.Logo != "" && !validURL(b.Logo) {
			return domain.ErrInvalidSettings
		}
	}
	return nil
}

// mergeSettings applies the set fields of req on top of current.
func mergeSettings(current domain.Settings, req domain.UpdateSettingsRequest) domain.Settings {
	out := current
	if req.AllowMemberInvites != nil {
		out.AllowMemberInvites = *req.AllowMemberInvites
	}
	if req.RequireApproval != nil {
		out.RequireApproval = *req.RequireApproval
	}
	if req.DefaultRole != nil {
		out.DefaultRole = *req.DefaultRole
	}
	if req.CustomDomain != nil {
		out.CustomDomain = strings.TrimSpace(*req.CustomDomain)
	}
	if req.Branding != nil {
		branding := domain.Branding{}
		if current.Branding != nil {
			branding = *current.Branding
		}
		if req.Branding.PrimaryColor != "" {
			branding.PrimaryColor = req.Branding.PrimaryColor
		}
		if req.Branding.Logo != "" {
			branding.Logo = req.Branding.Logo
		}
		out.Branding = &branding
	}
	return out
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func normalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", domain.ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", domain.ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}
