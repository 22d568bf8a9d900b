package attendance

import (
	"errors"
	"fmt"
	"time"
)

// Status is the attendance state recorded for a student on a given date.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
)

func (s Status) Valid() bool {
	return s == StatusPresent || s == StatusAbsent
}

// Method records how an attendance entry was produced.
type Method string

const (
	MethodRFID   Method = "rfid"
	MethodManual Method = "manual"
)

func (m Method) Valid() bool {
	return m == MethodRFID || m == MethodManual
}

// ScanStatus is the outcome recorded on a scan-log entry. The same values
// double as the processor's result classification.
type ScanStatus string

const (
	ScanSuccess       ScanStatus = "success"
	ScanAlreadyMarked ScanStatus = "already_marked"
	ScanInvalidTag    ScanStatus = "invalid_tag"
	ScanError         ScanStatus = "error"
)

// Student is a registered student with an optional RFID tag assignment.
// Tag-to-student is unique: at most one student owns a given tag.
type Student struct {
	ID        int64
	StudentID string
	FullName  string
	ClassID   int64
	RFIDTag   string
}

// Record is one attendance fact. At most one record exists per
// (student, calendar date); the store enforces this with a unique
// constraint, not an application-level check.
type Record struct {
	ID         int64
	StudentID  int64
	ClassID    int64
	TeacherID  int64
	Date       time.Time
	Status     Status
	Method     Method
	MarkedAt   time.Time
	Confidence float64
	Notes      string
}

// NewRecord builds a validated attendance record. References must be
// resolved and status/method must come from the closed sets above.
func NewRecord(studentID, classID, teacherID int64, date time.Time, status Status, method Method, markedAt time.Time) (Record, error) {
	if studentID <= 0 {
		return Record{}, errors.New("attendance: student reference required")
	}
	if classID <= 0 {
		return Record{}, errors.New("attendance: class reference required")
	}
	if teacherID <= 0 {
		return Record{}, errors.New("attendance: teacher reference required")
	}
	if !status.Valid() {
		return Record{}, fmt.Errorf("attendance: invalid status %q", status)
	}
	if !method.Valid() {
		return Record{}, fmt.Errorf("attendance: invalid method %q", method)
	}
	return Record{
		StudentID: studentID,
		ClassID:   classID,
		TeacherID: teacherID,
		Date:      DateOf(date),
		Status:    status,
		Method:    method,
		MarkedAt:  markedAt,
	}, nil
}

// ScanLog is the append-only audit record written for every decoded
// notification, successful or not. AttendanceID is set at creation when the
// scan produced a new record and is the only field ever backfilled.
type ScanLog struct {
	ID           string
	Tag          string
	ScanTime     time.Time
	StudentID    *int64
	AttendanceID *int64
	Status       ScanStatus
	ErrorMessage string
}

// DateOf truncates a timestamp to its civil calendar date in the
// timestamp's own location. Attendance is a local-calendar concept; two
// scans either side of local midnight belong to different dates.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
