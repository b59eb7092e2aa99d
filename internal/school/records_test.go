package school

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/pkg/domain"
)

func TestExamsRepository_RecordResults(t *testing.T) {
	store, mock := newMockStore(t)
	examID := uuid.New()
	results := []domain.ExamResult{
		{StudentID: uuid.New(), Marks: 81.5, Grade: "A"},
		{StudentID: uuid.New(), Marks: 47, Grade: "C"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs(examID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	for range results {
		mock.ExpectQuery(`INSERT INTO exam_results .+ ON CONFLICT`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	}
	mock.ExpectCommit()

	require.NoError(t, store.Exams.RecordResults(context.Background(), examID, results))
	for _, r := range results {
		assert.Equal(t, examID, r.ExamID)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExamsRepository_RecordResults_UnknownExam(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	err := store.Exams.RecordResults(context.Background(), uuid.New(), []domain.ExamResult{{StudentID: uuid.New()}})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_MarkRegister(t *testing.T) {
	store, mock := newMockStore(t)
	classID, teacher := uuid.New(), uuid.New()
	entries := []RegisterEntry{
		{StudentID: uuid.New(), Status: domain.AttendancePresent},
		{StudentID: uuid.New(), Status: domain.AttendanceLate},
	}

	mock.ExpectBegin()
	for range entries {
		mock.ExpectQuery(`INSERT INTO attendance .+ FROM students s\s+WHERE s.id = \$2 AND s.class_id = \$3\s+ON CONFLICT \(student_id, date\)`).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	}
	mock.ExpectCommit()

	day := time.Date(2026, 3, 2, 15, 4, 0, 0, time.UTC)
	marks, err := store.Attendance.MarkRegister(context.Background(), classID, day, teacher, entries)
	require.NoError(t, err)
	require.Len(t, marks, 2)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), marks[0].Date)
	assert.Equal(t, domain.AttendanceLate, marks[1].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_MarkRegister_StudentOfAnotherClass(t *testing.T) {
	store, mock := newMockStore(t)
	classID, teacher := uuid.New(), uuid.New()
	ours, theirs := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO attendance`).
		WithArgs(sqlmock.AnyArg(), ours, classID, sqlmock.AnyArg(), "present", teacher, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.NewString()))
	// No row comes back: the student is not on this class's roll, or the
	// day's mark belongs to another register.
	mock.ExpectQuery(`INSERT INTO attendance .+ WHERE attendance.class_id = EXCLUDED.class_id`).
		WithArgs(sqlmock.AnyArg(), theirs, classID, sqlmock.AnyArg(), "present", teacher, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.Attendance.MarkRegister(context.Background(), classID, time.Now(), teacher, []RegisterEntry{
		{StudentID: ours, Status: domain.AttendancePresent},
		{StudentID: theirs, Status: domain.AttendancePresent},
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReference)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepository_StudentSummary(t *testing.T) {
	store, mock := newMockStore(t)
	studentID := uuid.New()

	mock.ExpectQuery(`COUNT\(\*\) FILTER`).
		WithArgs(studentID).
		WillReturnRows(sqlmock.NewRows([]string{"present", "absent", "late", "excused"}).AddRow(18, 1, 2, 0))

	s, err := store.Attendance.StudentSummary(context.Background(), studentID, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, &domain.AttendanceSummary{StudentID: studentID, Present: 18, Absent: 1, Late: 2}, s)
}

func TestFeesRepository_Statement(t *testing.T) {
	store, mock := newMockStore(t)
	studentID, classID := uuid.New(), uuid.New()

	mock.ExpectQuery(`SELECT class_id FROM students`).WithArgs(studentID).
		WillReturnRows(sqlmock.NewRows([]string{"class_id"}).AddRow(classID.String()))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(amount_cents\), 0\) FROM fee_structures`).WithArgs(classID).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(150000))
	mock.ExpectQuery(`FROM fee_payments`).WithArgs(studentID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "student_id", "fee_structure_id", "amount_cents", "method", "reference", "paid_at", "recorded_by",
		}).
			AddRow(uuid.NewString(), studentID.String(), uuid.NewString(), 50000, "cash", "", time.Now(), uuid.NewString()).
			AddRow(uuid.NewString(), studentID.String(), uuid.NewString(), 25000, "card", "r-2", time.Now(), uuid.NewString()))

	st, err := store.Fees.Statement(context.Background(), studentID)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), st.BilledCents)
	assert.Equal(t, int64(75000), st.PaidCents)
	assert.Equal(t, int64(75000), st.BalanceCents)
	assert.Len(t, st.Payments, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAnnouncementsRepository_ListByAudience(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(`FROM announcements WHERE audience IN \(\$1,\$2\)`).
		WithArgs("teachers", AudienceAll).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "body", "audience", "published_by", "published_at"}))

	list, err := store.Announcements.List(context.Background(), "teachers", Page{})
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassesRepository_DeleteInUse(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec(`DELETE FROM classes`).WillReturnError(&pq.Error{Code: "23503"})

	err := store.Classes.Delete(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSerialNumber(t *testing.T) {
	id := uuid.MustParse("0a1b2c3d-0000-0000-0000-000000000000")
	at := time.Date(2026, 6, 30, 23, 0, 0, 0, time.UTC)

	assert.Equal(t, "TRA-20260630-0A1B2C3D", serialNumber("transfer", at, id))
	assert.True(t, strings.HasPrefix(serialNumber("id", at, id), "ID-"))
}
