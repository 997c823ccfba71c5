package school

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
)

const dateLayout = "2006-01-02"

// AttendanceID is the key of one student's attendance on one day, so saving
// the same day twice overwrites instead of duplicating.
func AttendanceID(date, classID, studentID string) string {
	return fmt.Sprintf("attendance_%s_%s_%s", date, classID, studentID)
}

// SaveAttendance records the status of every student of a class for date in
// one batch. Records that do not exist yet are created by the batch.
func SaveAttendance(ctx context.Context, store Store, schoolID, classID, date, by string, statuses map[string]Status) api.Result {
	if schoolID == "" || classID == "" || date == "" {
		return api.Result{Success: false, Error: "incomplete attendance data"}
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return api.Result{Success: false, Error: fmt.Sprintf("invalid date %q", date)}
	}

	students := make([]string, 0, len(statuses))
	for student, status := range statuses {
		if !status.Valid() {
			return api.Result{Success: false, Error: fmt.Sprintf("invalid status %q for student %s", status, student)}
		}
		students = append(students, student)
	}
	sort.Strings(students)

	ops := make([]api.BatchOp, 0, len(students))
	for _, student := range students {
		ops = append(ops, api.BatchOp{
			Type:       api.OpUpdate,
			Collection: Attendances,
			ID:         AttendanceID(date, classID, student),
			Data: api.Record{
				FieldStudentID: student,
				FieldClassID:   classID,
				FieldSchoolID:  schoolID,
				FieldDate:      date,
				FieldStatus:    string(statuses[student]),
				"updated_by":   by,
			},
		})
	}
	return store.BatchCommit(ctx, ops)
}

// MonthRange returns the first and last day of month (YYYY-MM), formatted
// like attendance dates.
func MonthRange(month string) (string, string, error) {
	start, err := time.Parse("2006-01", month)
	if err != nil {
		return "", "", fmt.Errorf("invalid month %q", month)
	}
	end := start.AddDate(0, 1, -1)
	return start.Format(dateLayout), end.Format(dateLayout), nil
}

// MonthlyAttendance returns the attendance of a class in month ordered by
// date. An empty studentID returns every student.
func MonthlyAttendance(ctx context.Context, store Store, schoolID, classID, studentID, month string) ([]Attendance, error) {
	start, end, err := MonthRange(month)
	if err != nil {
		return nil, err
	}
	return NewRepo[Attendance](store, Attendances).Query(ctx, []api.Filter{
		api.Where(FieldSchoolID, api.OpEqual, schoolID),
		api.Where(FieldClassID, api.OpEqual, classID),
		api.Where(FieldStudentID, api.OpEqual, studentID),
		api.Where(FieldDate, api.OpGreaterEqual, start),
		api.Where(FieldDate, api.OpLessEqual, end),
	}, gateway.OrderBy(FieldDate, api.Asc))
}

type Summary struct {
	Total int `json:"total"`
	Hadir int `json:"hadir"`
	Izin  int `json:"izin"`
	Sakit int `json:"sakit"`
	Alfa  int `json:"alfa"`
	// Rate is the share of days present or excused, in percent with one decimal.
	Rate float64 `json:"rate"`
}

func Summarize(records []Attendance) Summary {
	var s Summary
	for _, a := range records {
		s.Total++
		switch a.Status {
		case Hadir:
			s.Hadir++
		case Izin:
			s.Izin++
		case Sakit:
			s.Sakit++
		case Alfa:
			s.Alfa++
		}
	}
	if s.Total > 0 {
		s.Rate = math.Round(float64(s.Hadir+s.Izin)/float64(s.Total)*1000) / 10
	}
	return s
}

// SummarizeByStudent groups records per student before summarizing.
func SummarizeByStudent(records []Attendance) map[string]Summary {
	byStudent := make(map[string][]Attendance)
	for _, a := range records {
		byStudent[a.StudentID] = append(byStudent[a.StudentID], a)
	}
	out := make(map[string]Summary, len(byStudent))
	for student, recs := range byStudent {
		out[student] = Summarize(recs)
	}
	return out
}
