// Package export renders attendee lists and member rosters as xlsx workbooks.
package export

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/mikepea/clubhub/pkg/clubhub/apperr"
	"github.com/mikepea/clubhub/pkg/clubhub/membership"
	"github.com/mikepea/clubhub/pkg/clubhub/models"
	"github.com/mikepea/clubhub/pkg/clubhub/registration"
)

var (
	ErrForbidden      = apperr.New(apperr.Forbidden, "Not allowed to export this data")
	errGenerateFailed = apperr.New(apperr.Internal, "Failed to generate spreadsheet")
)

const timeLayout = "2006-01-02 15:04"

// Workbook is a generated xlsx file and its suggested name
type Workbook struct {
	Filename string
	Data     *bytes.Buffer
}

// Exporter builds workbooks after checking the actor's permissions
type Exporter struct {
	members       *membership.Manager
	registrations *registration.Manager
	logger        *zap.Logger
}

// NewExporter creates an exporter
func NewExporter(members *membership.Manager, registrations *registration.Manager, logger *zap.Logger) *Exporter {
	return &Exporter{members: members, registrations: registrations, logger: logger}
}

// Attendees exports the non-cancelled registrations of an event. The actor
// must be allowed to edit the event.
func (e *Exporter) Attendees(ctx context.Context, actor *models.User, eventID uint) (*Workbook, error) {
	event, err := e.registrations.Event(ctx, eventID)
	if err != nil {
		return nil, err
	}
	allowed, err := e.registrations.CanEdit(ctx, actor, event)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, ErrForbidden
	}

	regs, err := e.registrations.RegistrationsForEvent(ctx, event.ID)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, 0, len(regs))
	for _, r := range regs {
		if r.Status == models.RegistrationStatusCancelled {
			continue
		}
		rows = append(rows, []interface{}{
			r.User.Name, r.User.Email, r.User.Department,
			string(r.Status), r.RegisteredAt.UTC().Format(timeLayout), r.Notes,
		})
	}

	title := fmt.Sprintf("%s (%s, %s)", event.Name, event.Venue, event.EventDate.UTC().Format(timeLayout))
	header := []string{"Name", "Email", "Department", "Status", "Registered At", "Notes"}
	buf, err := e.render("Attendees", title, header, rows)
	if err != nil {
		return nil, err
	}
	return &Workbook{Filename: filename(event.Name, "attendees"), Data: buf}, nil
}

// Members exports a club's active member roster. The actor must be allowed
// to manage the club.
func (e *Exporter) Members(ctx context.Context, actor *models.User, clubID uint) (*Workbook, error) {
	club, err := e.members.Club(ctx, clubID)
	if err != nil {
		return nil, err
	}
	facts, err := e.members.Facts(ctx, actor, club)
	if err != nil {
		return nil, err
	}
	if !facts.CanManageClub() {
		return nil, ErrForbidden
	}

	members, err := e.members.ActiveMembers(ctx, club.ID)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, len(members))
	for i, m := range members {
		rows[i] = []interface{}{
			m.User.Name, m.User.Email, m.User.Department,
			string(m.Role), m.JoinedAt.UTC().Format(timeLayout),
		}
	}

	header := []string{"Name", "Email", "Department", "Role", "Joined At"}
	buf, err := e.render("Members", club.Name+" members", header, rows)
	if err != nil {
		return nil, err
	}
	return &Workbook{Filename: filename(club.Name, "members"), Data: buf}, nil
}

// render writes a title row, a header row and the data rows to a single sheet
func (e *Exporter) render(sheet, title string, header []string, rows [][]interface{}) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheet)
	if err != nil {
		e.logger.Error("Failed to create sheet", zap.Error(err))
		return nil, errGenerateFailed
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	last, _ := excelize.ColumnNumberToName(len(header))
	f.SetColWidth(sheet, "A", last, 22)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#D9E1F2"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	f.SetCellValue(sheet, "A1", title)
	f.MergeCell(sheet, "A1", last+"1")
	f.SetCellStyle(sheet, "A1", "A1", headerStyle)

	if err := f.SetSheetRow(sheet, "A2", &header); err != nil {
		e.logger.Error("Failed to write header", zap.Error(err))
		return nil, errGenerateFailed
	}
	f.SetCellStyle(sheet, "A2", last+"2", headerStyle)

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+3)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			e.logger.Error("Failed to write row", zap.Int("row", i+3), zap.Error(err))
			return nil, errGenerateFailed
		}
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		e.logger.Error("Failed to write workbook", zap.Error(err))
		return nil, errGenerateFailed
	}
	return buf, nil
}

var unsafeChars = regexp.MustCompile(`[^a-z0-9]+`)

// filename turns a display name into a safe xlsx file name
func filename(name, kind string) string {
	slug := strings.Trim(unsafeChars.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "export"
	}
	return slug + "-" + kind + ".xlsx"
}
