package school

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/school-crm/pkg/domain"
)

func newAdmission(classID uuid.UUID) (*domain.SchoolUser, *domain.Student) {
	user := &domain.SchoolUser{Email: "ada@example.com", Name: "Ada Lovelace", Role: domain.SchoolRoleStudent, PasswordHash: "hash"}
	student := &domain.Student{ClassID: classID, AdmissionNumber: "A-001", FirstName: "Ada", LastName: "Lovelace"}
	return user, student
}

func TestStudentsRepository_Admit(t *testing.T) {
	store, mock := newMockStore(t)
	classID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT capacity, student_count FROM classes`).
		WithArgs(classID).
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "student_count"}).AddRow(30, 29))
	mock.ExpectExec(`UPDATE classes SET student_count = student_count \+ 1`).
		WithArgs(classID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO users`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO students`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	user, student := newAdmission(classID)
	require.NoError(t, store.Students.Admit(context.Background(), user, student))

	assert.NotEqual(t, uuid.Nil, student.ID)
	assert.Equal(t, user.ID, student.UserID)
	assert.Equal(t, domain.StudentActive, student.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentsRepository_Admit_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		setup func(mock sqlmock.Sqlmock, classID uuid.UUID)
		want  error
	}{
		{
			name: "class full",
			setup: func(mock sqlmock.Sqlmock, classID uuid.UUID) {
				mock.ExpectQuery(`SELECT capacity, student_count FROM classes`).
					WithArgs(classID).
					WillReturnRows(sqlmock.NewRows([]string{"capacity", "student_count"}).AddRow(30, 30))
			},
			want: domain.ErrClassFull,
		},
		{
			name: "unknown class",
			setup: func(mock sqlmock.Sqlmock, classID uuid.UUID) {
				mock.ExpectQuery(`SELECT capacity, student_count FROM classes`).
					WithArgs(classID).
					WillReturnRows(sqlmock.NewRows([]string{"capacity", "student_count"}))
			},
			want: domain.ErrInvalidReference,
		},
		{
			name: "duplicate email",
			setup: func(mock sqlmock.Sqlmock, classID uuid.UUID) {
				mock.ExpectQuery(`SELECT capacity, student_count FROM classes`).
					WithArgs(classID).
					WillReturnRows(sqlmock.NewRows([]string{"capacity", "student_count"}).AddRow(0, 500))
				mock.ExpectExec(`UPDATE classes SET student_count`).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectExec(`INSERT INTO users`).WillReturnError(&pq.Error{Code: "23505"})
			},
			want: domain.ErrUserAlreadyExists,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, mock := newMockStore(t)
			classID := uuid.New()

			mock.ExpectBegin()
			tt.setup(mock, classID)
			mock.ExpectRollback()

			user, student := newAdmission(classID)
			err := store.Students.Admit(context.Background(), user, student)
			assert.ErrorIs(t, err, tt.want)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func studentRow(id, classID uuid.UUID, status domain.StudentStatus) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "user_id", "class_id", "admission_number", "first_name", "last_name", "date_of_birth",
		"guardian_name", "guardian_phone", "status", "created_at", "updated_at",
	}).AddRow(id.String(), uuid.NewString(), classID.String(), "A-001", "Ada", "Lovelace", nil,
		"Byron", "555", string(status), now, now)
}

func TestStudentsRepository_Withdraw(t *testing.T) {
	store, mock := newMockStore(t)
	id, classID := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE students SET status`).
		WithArgs(id, domain.StudentWithdrawn, domain.StudentActive).
		WillReturnRows(studentRow(id, classID, domain.StudentWithdrawn))
	mock.ExpectExec(`UPDATE classes SET student_count = GREATEST`).
		WithArgs(classID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s, err := store.Students.Withdraw(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StudentWithdrawn, s.Status)
	assert.Equal(t, classID, s.ClassID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentsRepository_Withdraw_NotActive(t *testing.T) {
	store, mock := newMockStore(t)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`UPDATE students SET status`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	_, err := store.Students.Withdraw(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentsRepository_UpdateMovesSeat(t *testing.T) {
	store, mock := newMockStore(t)
	id, from, to := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .+ FROM students WHERE id = \$1 FOR UPDATE`).
		WithArgs(id).
		WillReturnRows(studentRow(id, from, domain.StudentActive))
	mock.ExpectQuery(`SELECT capacity, student_count FROM classes`).
		WithArgs(to).
		WillReturnRows(sqlmock.NewRows([]string{"capacity", "student_count"}).AddRow(10, 3))
	mock.ExpectExec(`UPDATE classes SET student_count = student_count \+ 1`).WithArgs(to).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE classes SET student_count = GREATEST`).WithArgs(from).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE students SET class_id`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	s := &domain.Student{ID: id, ClassID: to, FirstName: "Ada", LastName: "King"}
	require.NoError(t, store.Students.Update(context.Background(), s))
	assert.Equal(t, "A-001", s.AdmissionNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentsRepository_ListQuery(t *testing.T) {
	classID := uuid.New()
	r := &StudentsRepository{}
	query, args, err := r.listQuery(StudentFilter{
		ClassID: &classID,
		Status:  domain.StudentActive,
		Search:  "ada",
	}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "class_id = $1")
	assert.Contains(t, query, "status = $2")
	assert.Contains(t, query, "first_name ILIKE $3")
	assert.Equal(t, []any{classID, domain.StudentActive, "%ada%", "%ada%", "%ada%"}, args)
}

func TestStudentsRepository_ListQuery_LiteralSearch(t *testing.T) {
	r := &StudentsRepository{}
	_, args, err := r.listQuery(StudentFilter{Search: "50%_off"}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, `%50\%\_off%`, args[0])
}
