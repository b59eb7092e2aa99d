package schoolapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/school-crm/internal/http/middleware"
	"github.com/tendant/school-crm/pkg/domain"
)

var (
	admin      = string(domain.SchoolRoleAdmin)
	teacher    = string(domain.SchoolRoleTeacher)
	accountant = string(domain.SchoolRoleAccountant)
	librarian  = string(domain.SchoolRoleLibrarian)
	student    = string(domain.SchoolRoleStudent)
	parent     = string(domain.SchoolRoleParent)
)

// Routes mounts the school modules on r. The caller installs Auth,
// RequireSchool and TenantDB in front. exportLimit, if set, guards the
// spreadsheet export.
func (h *Handler) Routes(r chi.Router, exportLimit func(http.Handler) http.Handler) {
	if exportLimit == nil {
		exportLimit = func(next http.Handler) http.Handler { return next }
	}
	adminOnly := middleware.RequireRole(admin)
	staff := middleware.RequireRole(admin, teacher, accountant, librarian)
	teaching := middleware.RequireRole(admin, teacher)
	accounts := middleware.RequireRole(admin, accountant)
	library := middleware.RequireRole(admin, librarian)
	everyone := middleware.RequireRole(admin, teacher, accountant, librarian, student, parent)

	r.Route("/users", func(r chi.Router) {
		r.Use(adminOnly)
		r.Post("/", h.CreateUser)
		r.Get("/", h.ListUsers)
	})

	r.Route("/classes", func(r chi.Router) {
		r.With(staff).Get("/", h.ListClasses)
		r.With(staff).Get("/{id}", h.GetClass)
		r.With(adminOnly).Post("/", h.CreateClass)
		r.With(adminOnly).Put("/{id}", h.UpdateClass)
		r.With(adminOnly).Delete("/{id}", h.DeleteClass)
		r.With(everyone).Get("/{id}/timetable", h.ListTimetable)
		r.With(teaching).Get("/{id}/attendance", h.ListAttendance)
		r.With(teaching).Put("/{id}/attendance", h.MarkAttendance)
	})

	r.Route("/subjects", func(r chi.Router) {
		r.With(staff).Get("/", h.ListSubjects)
		r.With(adminOnly).Post("/", h.CreateSubject)
	})

	r.Route("/students", func(r chi.Router) {
		r.With(staff).Get("/", h.ListStudents)
		r.With(adminOnly, exportLimit).Get("/export", h.ExportStudents)
		r.With(adminOnly).Post("/", h.AdmitStudent)
		r.With(staff).Get("/{id}", h.GetStudent)
		r.With(adminOnly).Put("/{id}", h.UpdateStudent)
		r.With(adminOnly).Post("/{id}/withdraw", h.WithdrawStudent)
		r.With(accounts).Get("/{id}/fees", h.FeeStatement)
		r.With(teaching).Get("/{id}/attendance", h.AttendanceSummary)
	})

	r.Route("/teachers", func(r chi.Router) {
		r.With(staff).Get("/", h.ListTeachers)
		r.With(staff).Get("/{id}", h.GetTeacher)
		r.With(adminOnly).Post("/", h.CreateTeacher)
		r.With(adminOnly).Put("/{id}", h.UpdateTeacher)
		r.With(adminOnly).Delete("/{id}", h.DeleteTeacher)
	})

	r.Route("/fees", func(r chi.Router) {
		r.Use(accounts)
		r.Get("/structures", h.ListFeeStructures)
		r.Post("/structures", h.CreateFeeStructure)
		r.Get("/payments", h.ListPayments)
		r.Post("/payments", h.RecordPayment)
	})

	r.Route("/exams", func(r chi.Router) {
		r.Use(teaching)
		r.Get("/", h.ListExams)
		r.Post("/", h.CreateExam)
		r.Get("/{id}/results", h.ListResults)
		r.Put("/{id}/results", h.RecordResults)
	})

	r.Route("/library", func(r chi.Router) {
		r.With(staff).Get("/books", h.ListBooks)
		r.With(library).Post("/books", h.AddBook)
		r.With(library).Get("/issues", h.ListIssues)
		r.With(library).Post("/issues", h.IssueBook)
		r.With(library).Post("/issues/{id}/return", h.ReturnBook)
	})

	r.Route("/transport", func(r chi.Router) {
		r.With(staff).Get("/routes", h.ListRoutes)
		r.With(adminOnly).Post("/routes", h.CreateRoute)
		r.With(staff).Get("/assignments", h.ListAssignments)
		r.With(adminOnly).Post("/assignments", h.AssignTransport)
	})

	r.Route("/certificates", func(r chi.Router) {
		r.Use(adminOnly)
		r.Get("/", h.ListCertificates)
		r.Post("/", h.IssueCertificate)
	})

	r.Route("/announcements", func(r chi.Router) {
		r.With(everyone).Get("/", h.ListAnnouncements)
		r.With(teaching).Post("/", h.PublishAnnouncement)
	})

	r.Route("/timetable", func(r chi.Router) {
		r.Use(adminOnly)
		r.Post("/", h.AddSlot)
		r.Delete("/{id}", h.DeleteSlot)
	})
}
