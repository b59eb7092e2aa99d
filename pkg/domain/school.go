package domain

import (
	"time"

	"github.com/google/uuid"
)

// SchoolRole is the role of a user inside one school.
type SchoolRole string

const (
	SchoolRoleAdmin      SchoolRole = "admin"
	SchoolRoleTeacher    SchoolRole = "teacher"
	SchoolRoleAccountant SchoolRole = "accountant"
	SchoolRoleLibrarian  SchoolRole = "librarian"
	SchoolRoleStudent    SchoolRole = "student"
	SchoolRoleParent     SchoolRole = "parent"
)

// Valid reports whether r is a known school role.
func (r SchoolRole) Valid() bool {
	switch r {
	case SchoolRoleAdmin, SchoolRoleTeacher, SchoolRoleAccountant,
		SchoolRoleLibrarian, SchoolRoleStudent, SchoolRoleParent:
		return true
	}
	return false
}

// SchoolUser is a login account inside a tenant database.
type SchoolUser struct {
	ID                  uuid.UUID  `db:"id" json:"id"`
	Email               string     `db:"email" json:"email"`
	Name                string     `db:"name" json:"name"`
	Role                SchoolRole `db:"role" json:"role"`
	PasswordHash        string     `db:"password_hash" json:"-"`
	FailedLoginAttempts int        `db:"failed_login_attempts" json:"-"`
	LockedUntil         *time.Time `db:"locked_until" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// IsLocked returns true if the account is currently locked.
func (u *SchoolUser) IsLocked() bool {
	if u.LockedUntil == nil {
		return false
	}
	return time.Now().Before(*u.LockedUntil)
}

// Class is a grade/section group of students.
type Class struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	Name         string     `db:"name" json:"name"`
	Section      string     `db:"section" json:"section"`
	TeacherID    *uuid.UUID `db:"teacher_id" json:"teacher_id,omitempty"`
	Capacity     int        `db:"capacity" json:"capacity"`
	StudentCount int        `db:"student_count" json:"student_count"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Subject is a taught course.
type Subject struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Code      string    `db:"code" json:"code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StudentStatus is the enrolment state of a student.
type StudentStatus string

const (
	StudentActive    StudentStatus = "active"
	StudentWithdrawn StudentStatus = "withdrawn"
	StudentGraduated StudentStatus = "graduated"
)

// Student is an enrolled learner with a login account.
type Student struct {
	ID              uuid.UUID     `db:"id" json:"id"`
	UserID          uuid.UUID     `db:"user_id" json:"user_id"`
	ClassID         uuid.UUID     `db:"class_id" json:"class_id"`
	AdmissionNumber string        `db:"admission_number" json:"admission_number"`
	FirstName       string        `db:"first_name" json:"first_name"`
	LastName        string        `db:"last_name" json:"last_name"`
	DateOfBirth     *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	GuardianName    string        `db:"guardian_name" json:"guardian_name"`
	GuardianPhone   string        `db:"guardian_phone" json:"guardian_phone"`
	Status          StudentStatus `db:"status" json:"status"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s *Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Teacher is a staff member with a login account.
type Teacher struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	UserID         uuid.UUID  `db:"user_id" json:"user_id"`
	EmployeeNumber string     `db:"employee_number" json:"employee_number"`
	FirstName      string     `db:"first_name" json:"first_name"`
	LastName       string     `db:"last_name" json:"last_name"`
	Phone          string     `db:"phone" json:"phone"`
	SubjectID      *uuid.UUID `db:"subject_id" json:"subject_id,omitempty"`
	HiredAt        *time.Time `db:"hired_at" json:"hired_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// FeeStructure is a named charge applied to a class for a term.
type FeeStructure struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ClassID     *uuid.UUID `db:"class_id" json:"class_id,omitempty"`
	Name        string     `db:"name" json:"name"`
	Term        string     `db:"term" json:"term"`
	AmountCents int64      `db:"amount_cents" json:"amount_cents"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}

// FeePayment is money received from a student against a fee structure.
type FeePayment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	StudentID      uuid.UUID `db:"student_id" json:"student_id"`
	FeeStructureID uuid.UUID `db:"fee_structure_id" json:"fee_structure_id"`
	AmountCents    int64     `db:"amount_cents" json:"amount_cents"`
	Method         string    `db:"method" json:"method"`
	Reference      string    `db:"reference" json:"reference"`
	PaidAt         time.Time `db:"paid_at" json:"paid_at"`
	RecordedBy     uuid.UUID `db:"recorded_by" json:"recorded_by"`
}

// FeeStatement summarises what a student owes and has paid.
type FeeStatement struct {
	StudentID    uuid.UUID    `json:"student_id"`
	BilledCents  int64        `json:"billed_cents"`
	PaidCents    int64        `json:"paid_cents"`
	BalanceCents int64        `json:"balance_cents"`
	Payments     []FeePayment `json:"payments"`
}

// Exam is an assessment sitting for a class and subject.
type Exam struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	ClassID   uuid.UUID `db:"class_id" json:"class_id"`
	SubjectID uuid.UUID `db:"subject_id" json:"subject_id"`
	HeldOn    time.Time `db:"held_on" json:"held_on"`
	MaxMarks  int       `db:"max_marks" json:"max_marks"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ExamResult is a student's mark in an exam.
type ExamResult struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ExamID    uuid.UUID `db:"exam_id" json:"exam_id"`
	StudentID uuid.UUID `db:"student_id" json:"student_id"`
	Marks     float64   `db:"marks" json:"marks"`
	Grade     string    `db:"grade" json:"grade"`
	Remarks   string    `db:"remarks" json:"remarks"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// AttendanceStatus is a register mark.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcused AttendanceStatus = "excused"
)

// Attendance is a student's register mark for one day.
type Attendance struct {
	ID        uuid.UUID        `db:"id" json:"id"`
	StudentID uuid.UUID        `db:"student_id" json:"student_id"`
	ClassID   uuid.UUID        `db:"class_id" json:"class_id"`
	Date      time.Time        `db:"date" json:"date"`
	Status    AttendanceStatus `db:"status" json:"status"`
	MarkedBy  uuid.UUID        `db:"marked_by" json:"marked_by"`
	CreatedAt time.Time        `db:"created_at" json:"created_at"`
}

// AttendanceSummary counts a student's marks by status.
type AttendanceSummary struct {
	StudentID uuid.UUID `db:"student_id" json:"student_id"`
	Present   int       `db:"present" json:"present"`
	Absent    int       `db:"absent" json:"absent"`
	Late      int       `db:"late" json:"late"`
	Excused   int       `db:"excused" json:"excused"`
}

// Book is a library title.
type Book struct {
	ID              uuid.UUID `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Author          string    `db:"author" json:"author"`
	ISBN            string    `db:"isbn" json:"isbn"`
	TotalCopies     int       `db:"total_copies" json:"total_copies"`
	AvailableCopies int       `db:"available_copies" json:"available_copies"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// BookIssue is a loan of a book to a student.
type BookIssue struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	BookID     uuid.UUID  `db:"book_id" json:"book_id"`
	StudentID  uuid.UUID  `db:"student_id" json:"student_id"`
	IssuedAt   time.Time  `db:"issued_at" json:"issued_at"`
	DueAt      time.Time  `db:"due_at" json:"due_at"`
	ReturnedAt *time.Time `db:"returned_at" json:"returned_at,omitempty"`
}

// TransportRoute is a bus route.
type TransportRoute struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	VehicleNo   string    `db:"vehicle_no" json:"vehicle_no"`
	DriverName  string    `db:"driver_name" json:"driver_name"`
	DriverPhone string    `db:"driver_phone" json:"driver_phone"`
	FeeCents    int64     `db:"fee_cents" json:"fee_cents"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// TransportAssignment places a student on a route.
type TransportAssignment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	RouteID   uuid.UUID `db:"route_id" json:"route_id"`
	StudentID uuid.UUID `db:"student_id" json:"student_id"`
	PickupAt  string    `db:"pickup_point" json:"pickup_point"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Certificate is an issued document for a student.
type Certificate struct {
	ID        uuid.UUID `db:"id" json:"id"`
	StudentID uuid.UUID `db:"student_id" json:"student_id"`
	Kind      string    `db:"kind" json:"kind"`
	SerialNo  string    `db:"serial_no" json:"serial_no"`
	IssuedAt  time.Time `db:"issued_at" json:"issued_at"`
	IssuedBy  uuid.UUID `db:"issued_by" json:"issued_by"`
	Remarks   string    `db:"remarks" json:"remarks"`
}

// Announcement is a message published to an audience inside a school.
type Announcement struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Title       string    `db:"title" json:"title"`
	Body        string    `db:"body" json:"body"`
	Audience    string    `db:"audience" json:"audience"`
	PublishedBy uuid.UUID `db:"published_by" json:"published_by"`
	PublishedAt time.Time `db:"published_at" json:"published_at"`
}

// TimetableSlot is one period in a class's weekly timetable.
type TimetableSlot struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	ClassID   uuid.UUID  `db:"class_id" json:"class_id"`
	SubjectID uuid.UUID  `db:"subject_id" json:"subject_id"`
	TeacherID *uuid.UUID `db:"teacher_id" json:"teacher_id,omitempty"`
	DayOfWeek int        `db:"day_of_week" json:"day_of_week"`
	StartsAt  string     `db:"starts_at" json:"starts_at"`
	EndsAt    string     `db:"ends_at" json:"ends_at"`
	Room      string     `db:"room" json:"room"`
}
