package school

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/pkg/domain"
	"github.com/xuri/excelize/v2"
)

func TestRosterXLSX(t *testing.T) {
	classID := uuid.New()
	dob := time.Date(2015, 4, 9, 0, 0, 0, 0, time.UTC)
	students := []domain.Student{
		{AdmissionNumber: "A-001", FirstName: "Ada", LastName: "Lovelace", ClassID: classID, DateOfBirth: &dob, Status: domain.StudentActive},
		{AdmissionNumber: "A-002", FirstName: "Alan", ClassID: uuid.New(), Status: domain.StudentWithdrawn},
	}

	data, err := RosterXLSX(students, map[string]string{classID.String(): "Grade 4 B"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{rosterSheet}, f.GetSheetList())
	rows, err := f.GetRows(rosterSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, RosterHeader, rows[0])
	assert.Equal(t, []string{"A-001", "Ada", "Lovelace", "Grade 4 B", "2015-04-09"}, rows[1][:5])
	assert.Equal(t, "", rows[2][3])
	assert.Equal(t, "withdrawn", rows[2][7])
}

func TestRosterXLSX_Empty(t *testing.T) {
	data, err := RosterXLSX(nil, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(rosterSheet)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
