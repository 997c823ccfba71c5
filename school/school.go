// Package school holds the conventions the school app builds on top of the
// gateway: collection names, roles, attendance statuses and typed records.
package school

import (
	"context"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
)

const (
	Schools       = "schools"
	Users         = "users"
	Classes       = "classes"
	Subjects      = "subjects"
	Schedules     = "schedules"
	Attendances   = "attendance"
	Grades        = "grades"
	Payments      = "payments"
	Announcements = "announcements"
)

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleSchoolAdmin Role = "school_admin"
	RoleTeacher     Role = "teacher"
	RoleStudent     Role = "student"
	RoleParent      Role = "parent"
)

type Status string

const (
	Hadir Status = "HADIR"
	Izin  Status = "IZIN"
	Sakit Status = "SAKIT"
	Alfa  Status = "ALFA"
)

func (s Status) Valid() bool {
	switch s {
	case Hadir, Izin, Sakit, Alfa:
		return true
	}
	return false
}

// StatusInactive marks a soft deleted record.
const StatusInactive = "inactive"

// Fields the app filters on.
const (
	FieldSchoolID  = "school_id"
	FieldRole      = "role"
	FieldClassID   = "class_id"
	FieldSubjectID = "subject_id"
	FieldStudentID = "student_id"
	FieldParentID  = "parent_id"
	FieldTeacherID = "teacher_id"
	FieldDate      = "date"
	FieldMonth     = "month"
	FieldStatus    = "status"
	FieldName      = "name"
)

// Store is the part of the gateway the app uses.
type Store interface {
	Get(ctx context.Context, collection, key string) (api.Record, bool)
	Query(ctx context.Context, collection string, filters []api.Filter, opts ...gateway.QueryOption) []api.Record
	CreateOrUpdate(ctx context.Context, collection, key string, payload api.Record, isUpdate bool) api.Result
	Update(ctx context.Context, collection, key string, payload api.Record) api.Result
	BatchCommit(ctx context.Context, ops []api.BatchOp) api.Result
}

type School struct {
	ID      string `json:"id,omitempty"`
	Name    string `json:"name" validate:"required"`
	Address string `json:"address,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Package string `json:"package,omitempty"`
	Status  string `json:"status,omitempty"`
}

type User struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Role     Role   `json:"role" validate:"required,role"`
	SchoolID string `json:"school_id,omitempty"`
	ClassID  string `json:"class_id,omitempty"`
	ParentID string `json:"parent_id,omitempty"`
	Status   string `json:"status,omitempty"`
}

type Class struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name" validate:"required"`
	SchoolID  string `json:"school_id" validate:"required"`
	TeacherID string `json:"teacher_id,omitempty"`
	Grade     int    `json:"grade,omitempty" validate:"omitempty,min=1,max=12"`
	Status    string `json:"status,omitempty"`
}

type Attendance struct {
	ID         string `json:"id,omitempty"`
	StudentID  string `json:"student_id" validate:"required"`
	ClassID    string `json:"class_id" validate:"required"`
	SchoolID   string `json:"school_id" validate:"required"`
	Date       string `json:"date" validate:"required,datetime=2006-01-02"`
	Status     Status `json:"status" validate:"required,attendance_status"`
	RecordedBy string `json:"recorded_by,omitempty"`
	UpdatedBy  string `json:"updated_by,omitempty"`
}
