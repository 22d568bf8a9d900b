package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicate reports that an attendance record already exists for the
// (student, date) pair. The unique constraint on the attendance table is
// the source of truth; callers map this to an already-marked outcome.
var ErrDuplicate = errors.New("attendance: record already exists for student and date")

// Store is the persistence contract the scan processor depends on.
// *Repository is the Postgres implementation; tests use an in-memory fake.
type Store interface {
	FindStudentByTag(ctx context.Context, tag string) (*Student, error)
	FindAttendance(ctx context.Context, studentID int64, date time.Time) (*Record, error)
	InsertAttendance(ctx context.Context, rec Record) (Record, error)
	InsertScanLog(ctx context.Context, entry ScanLog) (ScanLog, error)
}

// Repository persists attendance data in Postgres.
type Repository struct {
	db *sql.DB
}

var _ Store = (*Repository)(nil)

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id BIGSERIAL PRIMARY KEY,
	username TEXT UNIQUE NOT NULL,
	full_name TEXT NOT NULL,
	role TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS classes (
	id BIGSERIAL PRIMARY KEY,
	class_name TEXT NOT NULL,
	section TEXT
);
CREATE TABLE IF NOT EXISTS students (
	id BIGSERIAL PRIMARY KEY,
	student_id TEXT UNIQUE NOT NULL,
	full_name TEXT NOT NULL,
	class_id BIGINT NOT NULL REFERENCES classes(id),
	roll_number TEXT,
	phone TEXT,
	enrollment_date DATE,
	consent_given BOOLEAN NOT NULL DEFAULT FALSE,
	rfid_tag TEXT UNIQUE
);
CREATE TABLE IF NOT EXISTS attendance (
	id BIGSERIAL PRIMARY KEY,
	student_id BIGINT NOT NULL REFERENCES students(id),
	class_id BIGINT NOT NULL REFERENCES classes(id),
	teacher_id BIGINT NOT NULL REFERENCES users(id),
	attendance_date DATE NOT NULL,
	status TEXT NOT NULL,
	method TEXT NOT NULL,
	time_marked TIMESTAMPTZ,
	confidence_score DOUBLE PRECISION,
	notes TEXT,
	UNIQUE (student_id, attendance_date)
);
CREATE TABLE IF NOT EXISTS rfid_scan_logs (
	id UUID PRIMARY KEY,
	rfid_tag TEXT NOT NULL,
	scan_time TIMESTAMPTZ NOT NULL,
	student_id BIGINT REFERENCES students(id),
	attendance_id BIGINT REFERENCES attendance(id),
	status TEXT NOT NULL,
	error_message TEXT
);
`

// EnsureSchema creates the tables the pipeline needs, including the
// (student_id, attendance_date) uniqueness constraint that the idempotence
// guarantee rests on.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

const dateLayout = "2006-01-02"

// FindStudentByTag resolves the owner of an RFID tag. Returns (nil, nil)
// when no student has the tag assigned.
func (r *Repository) FindStudentByTag(ctx context.Context, tag string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, full_name, class_id, COALESCE(rfid_tag, '')
		FROM students
		WHERE rfid_tag = $1
	`, tag)
	var s Student
	if err := row.Scan(&s.ID, &s.StudentID, &s.FullName, &s.ClassID, &s.RFIDTag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// FindAttendance returns the record for (student, date), or (nil, nil).
func (r *Repository) FindAttendance(ctx context.Context, studentID int64, date time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, class_id, teacher_id, attendance_date, status, method,
		       COALESCE(time_marked, attendance_date), COALESCE(confidence_score, 0), COALESCE(notes, '')
		FROM attendance
		WHERE student_id = $1 AND attendance_date = $2::date
	`, studentID, DateOf(date).Format(dateLayout))
	var rec Record
	if err := row.Scan(&rec.ID, &rec.StudentID, &rec.ClassID, &rec.TeacherID, &rec.Date,
		&rec.Status, &rec.Method, &rec.MarkedAt, &rec.Confidence, &rec.Notes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertAttendance writes a new record. The insert is conditioned on the
// uniqueness constraint so that two concurrent scans for the same student
// cannot both create a row; the loser observes ErrDuplicate.
func (r *Repository) InsertAttendance(ctx context.Context, rec Record) (Record, error) {
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (student_id, class_id, teacher_id, attendance_date, status, method, time_marked, confidence_score, notes)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id, attendance_date) DO NOTHING
		RETURNING id
	`, rec.StudentID, rec.ClassID, rec.TeacherID, rec.Date.Format(dateLayout),
		rec.Status, rec.Method, rec.MarkedAt, rec.Confidence, rec.Notes)
	if err := row.Scan(&rec.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrDuplicate
		}
		return Record{}, err
	}
	return rec, nil
}

// InsertScanLog appends an audit entry. Entries are never updated.
func (r *Repository) InsertScanLog(ctx context.Context, entry ScanLog) (ScanLog, error) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.ScanTime.IsZero() {
		entry.ScanTime = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rfid_scan_logs (id, rfid_tag, scan_time, student_id, attendance_id, status, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, entry.ID, entry.Tag, entry.ScanTime, entry.StudentID, entry.AttendanceID, entry.Status, entry.ErrorMessage)
	if err != nil {
		return ScanLog{}, err
	}
	return entry, nil
}

// RecentScanLogs returns the latest audit entries, newest first.
func (r *Repository) RecentScanLogs(ctx context.Context, limit int) ([]ScanLog, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, rfid_tag, scan_time, student_id, attendance_id, status, COALESCE(error_message, '')
		FROM rfid_scan_logs
		ORDER BY scan_time DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []ScanLog
	for rows.Next() {
		var entry ScanLog
		if err := rows.Scan(&entry.ID, &entry.Tag, &entry.ScanTime, &entry.StudentID,
			&entry.AttendanceID, &entry.Status, &entry.ErrorMessage); err != nil {
			return nil, err
		}
		res = append(res, entry)
	}
	return res, rows.Err()
}

// DayEntry pairs an attendance record with the student's name for display.
type DayEntry struct {
	Record      Record
	StudentName string
}

// ListAttendanceByDate returns all records for a calendar date.
func (r *Repository) ListAttendanceByDate(ctx context.Context, date time.Time) ([]DayEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.student_id, a.class_id, a.teacher_id, a.attendance_date, a.status, a.method,
		       COALESCE(a.time_marked, a.attendance_date), COALESCE(a.confidence_score, 0), COALESCE(a.notes, ''),
		       s.full_name
		FROM attendance a
		JOIN students s ON s.id = a.student_id
		WHERE a.attendance_date = $1::date
		ORDER BY a.time_marked
	`, DateOf(date).Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DayEntry
	for rows.Next() {
		var e DayEntry
		if err := rows.Scan(&e.Record.ID, &e.Record.StudentID, &e.Record.ClassID, &e.Record.TeacherID,
			&e.Record.Date, &e.Record.Status, &e.Record.Method, &e.Record.MarkedAt,
			&e.Record.Confidence, &e.Record.Notes, &e.StudentName); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// EnsureClass returns the id of the named class, creating it if missing.
func (r *Repository) EnsureClass(ctx context.Context, name, section string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx,
		`SELECT id FROM classes WHERE class_name = $1 AND COALESCE(section, '') = $2`,
		name, section).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO classes (class_name, section) VALUES ($1, $2) RETURNING id`,
		name, section).Scan(&id)
	return id, err
}

// EnsureTeacher upserts a user record by username and returns its id.
func (r *Repository) EnsureTeacher(ctx context.Context, username, fullName, role string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO users (username, full_name, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET full_name = EXCLUDED.full_name, role = EXCLUDED.role
		RETURNING id
	`, username, fullName, role).Scan(&id)
	return id, err
}

// UpsertStudent creates or updates a student keyed by the school-issued
// student id, including the tag assignment, and returns the internal id.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) (int64, error) {
	var tag any
	if s.RFIDTag != "" {
		tag = s.RFIDTag
	}
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO students (student_id, full_name, class_id, enrollment_date, consent_given, rfid_tag)
		VALUES ($1, $2, $3, CURRENT_DATE, TRUE, $4)
		ON CONFLICT (student_id) DO UPDATE SET
			full_name = EXCLUDED.full_name,
			class_id = EXCLUDED.class_id,
			rfid_tag = COALESCE(EXCLUDED.rfid_tag, students.rfid_tag)
		RETURNING id
	`, s.StudentID, s.FullName, s.ClassID, tag).Scan(&id)
	return id, err
}

// AssignTag binds an RFID tag to a student by school-issued id.
func (r *Repository) AssignTag(ctx context.Context, studentID, tag string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET rfid_tag = $2 WHERE student_id = $1`, studentID, tag)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("attendance: no student with id " + studentID)
	}
	return nil
}
