package attendance

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Result classifies the outcome of a processed scan. Status reuses the
// scan-log vocabulary: success (marked), already_marked, invalid_tag
// (unknown tag), error (store failure, see Err).
type Result struct {
	Status  ScanStatus
	Student *Student
	Record  *Record
	Log     ScanLog
	Err     error
}

// Processor turns decoded tag events into idempotent attendance decisions.
// Every call appends exactly one scan-log entry, whatever the outcome.
type Processor struct {
	store     Store
	teacherID int64
	log       zerolog.Logger
}

// NewProcessor creates a processor. teacherID is the user credited on
// records marked via RFID.
func NewProcessor(store Store, teacherID int64, log zerolog.Logger) *Processor {
	if teacherID <= 0 {
		teacherID = 1
	}
	return &Processor{store: store, teacherID: teacherID, log: log}
}

// Process resolves a decoded tag and applies the daily-idempotence rule.
// The calendar date is taken from at in its own location: attendance is a
// civil-calendar concept, so a scan just after local midnight starts a new
// day. The first scan of the day wins; later scans never mutate the
// existing record.
func (p *Processor) Process(ctx context.Context, tag string, at time.Time) Result {
	entry := ScanLog{Tag: tag, ScanTime: at, Status: ScanError}

	student, err := p.store.FindStudentByTag(ctx, tag)
	if err != nil {
		entry.ErrorMessage = err.Error()
		return p.finish(ctx, Result{Status: ScanError, Err: err}, entry)
	}
	if student == nil {
		entry.Status = ScanInvalidTag
		entry.ErrorMessage = fmt.Sprintf("no student found with RFID tag: %s", tag)
		return p.finish(ctx, Result{Status: ScanInvalidTag}, entry)
	}
	entry.StudentID = &student.ID

	date := DateOf(at)

	// Fast path only; the unique constraint below is what actually
	// guarantees idempotence under concurrent scans.
	existing, err := p.store.FindAttendance(ctx, student.ID, date)
	if err != nil {
		entry.ErrorMessage = err.Error()
		return p.finish(ctx, Result{Status: ScanError, Student: student, Err: err}, entry)
	}
	if existing != nil {
		entry.Status = ScanAlreadyMarked
		return p.finish(ctx, Result{Status: ScanAlreadyMarked, Student: student, Record: existing}, entry)
	}

	rec, err := NewRecord(student.ID, student.ClassID, p.teacherID, date, StatusPresent, MethodRFID, at)
	if err != nil {
		entry.ErrorMessage = err.Error()
		return p.finish(ctx, Result{Status: ScanError, Student: student, Err: err}, entry)
	}
	rec.Confidence = 1.0
	rec.Notes = "Marked via RFID tag: " + tag

	inserted, err := p.store.InsertAttendance(ctx, rec)
	if errors.Is(err, ErrDuplicate) {
		// Lost the race to a concurrent scan; fetch the winning record.
		winner, ferr := p.store.FindAttendance(ctx, student.ID, date)
		if ferr != nil || winner == nil {
			entry.Status = ScanAlreadyMarked
			return p.finish(ctx, Result{Status: ScanAlreadyMarked, Student: student}, entry)
		}
		entry.Status = ScanAlreadyMarked
		return p.finish(ctx, Result{Status: ScanAlreadyMarked, Student: student, Record: winner}, entry)
	}
	if err != nil {
		entry.ErrorMessage = err.Error()
		return p.finish(ctx, Result{Status: ScanError, Student: student, Err: err}, entry)
	}

	entry.Status = ScanSuccess
	entry.AttendanceID = &inserted.ID
	return p.finish(ctx, Result{Status: ScanSuccess, Student: student, Record: &inserted}, entry)
}

// LogDecodeFailure records a notification whose payload never produced a
// usable tag. No physical tap is silently dropped.
func (p *Processor) LogDecodeFailure(ctx context.Context, raw []byte, at time.Time, cause error) ScanLog {
	entry := ScanLog{
		Tag:          hex.EncodeToString(raw),
		ScanTime:     at,
		Status:       ScanInvalidTag,
		ErrorMessage: cause.Error(),
	}
	saved, err := p.store.InsertScanLog(ctx, entry)
	if err != nil {
		p.log.Error().Err(err).Msg("scan log write failed for undecodable payload")
		return entry
	}
	return saved
}

// finish appends the scan-log entry and attaches it to the result. A
// failed audit write downgrades the result to an error but does not panic:
// the listener must keep running.
func (p *Processor) finish(ctx context.Context, res Result, entry ScanLog) Result {
	saved, err := p.store.InsertScanLog(ctx, entry)
	if err != nil {
		p.log.Error().Err(err).Str("tag", entry.Tag).Msg("scan log write failed")
		if res.Err == nil {
			res.Err = err
		}
		res.Log = entry
		return res
	}
	res.Log = saved
	return res
}
