package attendance

import (
	"testing"
	"time"
)

func TestNewRecordValidation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name      string
		studentID int64
		classID   int64
		teacherID int64
		status    Status
		method    Method
		wantErr   bool
	}{
		{"valid", 1, 1, 1, StatusPresent, MethodRFID, false},
		{"missing student", 0, 1, 1, StatusPresent, MethodRFID, true},
		{"missing class", 1, 0, 1, StatusPresent, MethodRFID, true},
		{"missing teacher", 1, 1, 0, StatusPresent, MethodRFID, true},
		{"free-form status", 1, 1, 1, Status("late"), MethodRFID, true},
		{"free-form method", 1, 1, 1, StatusPresent, Method("telepathy"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRecord(tc.studentID, tc.classID, tc.teacherID, now, tc.status, tc.method, now)
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr = %v", err, tc.wantErr)
			}
		})
	}
}

func TestNewRecordTruncatesDate(t *testing.T) {
	ts := time.Date(2025, 1, 10, 14, 30, 45, 0, time.Local)
	rec, err := NewRecord(1, 1, 1, ts, StatusPresent, MethodRFID, ts)
	if err != nil {
		t.Fatal(err)
	}
	if got := rec.Date.Format("2006-01-02 15:04:05"); got != "2025-01-10 00:00:00" {
		t.Errorf("date = %s, want midnight of the scan day", got)
	}
	if !rec.MarkedAt.Equal(ts) {
		t.Errorf("marked_at = %v, want full timestamp %v", rec.MarkedAt, ts)
	}
}

func TestDateOfKeepsLocation(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	ts := time.Date(2025, 1, 10, 23, 59, 59, 0, loc)
	d := DateOf(ts)
	if d.Location() != loc {
		t.Errorf("location = %v, want %v", d.Location(), loc)
	}
	if d.Day() != 10 || d.Hour() != 0 {
		t.Errorf("date = %v, want local midnight on the 10th", d)
	}
}
