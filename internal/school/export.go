package school

import (
	"bytes"
	"fmt"

	"github.com/tendant/school-crm/pkg/domain"
	"github.com/xuri/excelize/v2"
)

const rosterSheet = "Students"

// RosterHeader is the header row of the student roster export.
var RosterHeader = []string{
	"Admission Number",
	"First Name",
	"Last Name",
	"Class",
	"Date of Birth",
	"Guardian",
	"Guardian Phone",
	"Status",
	"Admitted",
}

// RosterXLSX renders students as a spreadsheet. classNames maps class id
// to a display name; unknown classes are left blank.
func RosterXLSX(students []domain.Student, classNames map[string]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(rosterSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetRow(rosterSheet, "A1", &RosterHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(RosterHeader), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(rosterSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(rosterSheet, "A", "I", 18); err != nil {
		return nil, err
	}

	for i, s := range students {
		dob := ""
		if s.DateOfBirth != nil {
			dob = s.DateOfBirth.Format("2006-01-02")
		}
		row := []any{
			s.AdmissionNumber,
			s.FirstName,
			s.LastName,
			classNames[s.ClassID.String()],
			dob,
			s.GuardianName,
			s.GuardianPhone,
			string(s.Status),
			s.CreatedAt.Format("2006-01-02"),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(rosterSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
