package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/study-match-api/internal/models"
	appErrors "github.com/noah-isme/study-match-api/pkg/errors"
	"github.com/noah-isme/study-match-api/pkg/export"
)

// ExportFormat selects the rendered output type.
const (
	ExportFormatCSV = "csv"
	ExportFormatPDF = "pdf"
)

type resultProvider interface {
	Result(ctx context.Context, runID string) (*models.MatchingResult, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered run export ready to stream to a client.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

type exportArchive interface {
	Save(filename string, data []byte) (string, error)
}

// ExportService renders matching run results into downloadable reports.
type ExportService struct {
	results resultProvider
	csv     csvRenderer
	pdf     pdfRenderer
	archive exportArchive
	logger  *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(results resultProvider, csv csvRenderer, pdf pdfRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{results: results, csv: csv, pdf: pdf, logger: logger}
}

// AttachArchive enables keeping a copy of every rendered export on disk.
func (s *ExportService) AttachArchive(archive exportArchive) {
	s.archive = archive
}

// ExportRun renders the roster of a completed run in the requested format.
func (s *ExportService) ExportRun(ctx context.Context, runID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportFormatCSV
	}
	if format != ExportFormatCSV && format != ExportFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	result, err := s.results.Result(ctx, runID)
	if err != nil {
		return nil, err
	}

	dataset := buildRosterDataset(result)
	title := fmt.Sprintf("Study Group Assignments %s", runID)

	var payload []byte
	contentType := "text/csv"
	switch format {
	case ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
		contentType = "application/pdf"
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render run export")
	}

	filename := fmt.Sprintf("matching_run_%s_%s.%s", sanitizeFilename(runID), time.Now().UTC().Format("20060102_150405"), format)
	if s.archive != nil {
		if _, err := s.archive.Save(filename, payload); err != nil {
			s.logger.Sugar().Warnw("failed to archive run export", "run_id", runID, "file", filename, "error", err)
		}
	}
	return &ExportFile{Filename: filename, ContentType: contentType, Payload: payload}, nil
}

var rosterHeaders = []string{"Student ID", "Course ID", "Group ID", "Status", "Meeting", "Score"}

// buildRosterDataset flattens a run into one row per placement plus one row
// per unmatched student-course entry, ordered by course then student.
func buildRosterDataset(result *models.MatchingResult) export.Dataset {
	rows := make([]map[string]string, 0, len(result.Groups)*4+len(result.Unmatched))

	for _, group := range result.Groups {
		meeting := ""
		if group.Meeting != nil {
			meeting = group.Meeting.String()
		}
		for _, memberID := range group.MemberIDs {
			rows = append(rows, map[string]string{
				"Student ID": memberID,
				"Course ID":  group.CourseID,
				"Group ID":   group.ID,
				"Status":     string(group.Status),
				"Meeting":    meeting,
				"Score":      fmt.Sprintf("%.2f", group.Score),
			})
		}
	}
	for _, entry := range result.Unmatched {
		rows = append(rows, map[string]string{
			"Student ID": entry.StudentID,
			"Course ID":  entry.CourseID,
			"Group ID":   "",
			"Status":     fmt.Sprintf("unmatched (%s)", entry.Reason),
			"Meeting":    "",
			"Score":      "",
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i]["Course ID"] == rows[j]["Course ID"] {
			return rows[i]["Student ID"] < rows[j]["Student ID"]
		}
		return rows[i]["Course ID"] < rows[j]["Course ID"]
	})

	return export.Dataset{Headers: rosterHeaders, Rows: rows}
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}
