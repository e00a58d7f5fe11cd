package export

import (
	"context"
	"fmt"
	"time"

	"kisscoffee/site/internal/settings"
)

const menuTitle = "Kiss Coffee Menu"

// Service provides menu export functionality
type Service struct {
	publisher Publisher
	pdf       func(ctx context.Context, html string) ([]byte, error)
	now       func() time.Time
}

// NewService creates an export service. A nil publisher disables publishing.
func NewService(publisher Publisher) *Service {
	return &Service{publisher: publisher, pdf: printPDF, now: time.Now}
}

// CanPublish reports whether exports can be uploaded to object storage.
func (s *Service) CanPublish() bool {
	return s.publisher != nil
}

// Export renders doc in the requested format and publishes it when asked.
func (s *Service) Export(ctx context.Context, req Request, doc settings.Settings) (*Result, error) {
	now := s.now().UTC()
	base := sanitizeFilename(menuTitle)

	var (
		res *Result
		err error
	)
	switch req.Format {
	case FormatPDF:
		res, err = s.exportPDF(ctx, doc, now, base)
	case FormatXLSX:
		res, err = exportXLSX(doc, base)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, req.Format)
	}
	if err != nil {
		return nil, err
	}

	if req.Publish {
		if s.publisher == nil {
			return nil, ErrPublishDisabled
		}
		key := fmt.Sprintf("exports/%s/%s", now.Format("20060102T150405Z"), res.Filename)
		url, err := s.publisher.Publish(ctx, key, res)
		if err != nil {
			return nil, fmt.Errorf("publish export: %w", err)
		}
		res.URL = url
	}
	return res, nil
}

func (s *Service) exportPDF(ctx context.Context, doc settings.Settings, now time.Time, base string) (*Result, error) {
	html, err := RenderMenuHTML(newTemplateData(menuTitle, doc, now))
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	data, err := s.pdf(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{Data: data, Filename: base + ".pdf", MimeType: "application/pdf"}, nil
}

func exportXLSX(doc settings.Settings, base string) (*Result, error) {
	data, err := buildXLSX(doc)
	if err != nil {
		return nil, fmt.Errorf("build spreadsheet: %w", err)
	}
	return &Result{
		Data:     data,
		Filename: base + ".xlsx",
		MimeType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	}, nil
}
