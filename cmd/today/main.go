package main

import (
	"context"
	"fmt"
	"time"

	"attensync/internal/attendance"
	"attensync/internal/config"
	"attensync/internal/logger"
	"attensync/internal/store"
)

// today prints the current day's attendance and the most recent scan-log
// entries.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, "console")
	log := logger.Get()

	ctx := context.Background()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connect failed")
	}
	defer db.Close()

	repo := attendance.NewRepository(db.Client)

	today := attendance.DateOf(time.Now())
	entries, err := repo.ListAttendanceByDate(ctx, today)
	if err != nil {
		log.Fatal().Err(err).Msg("attendance query failed")
	}

	fmt.Printf("Attendance for %s (%d records)\n", today.Format("2006-01-02"), len(entries))
	for _, e := range entries {
		fmt.Printf("  %-20s %-8s %-6s %s\n",
			e.StudentName, e.Record.Status, e.Record.Method,
			e.Record.MarkedAt.Format("15:04:05"))
	}

	logs, err := repo.RecentScanLogs(ctx, 10)
	if err != nil {
		log.Fatal().Err(err).Msg("scan log query failed")
	}

	fmt.Printf("\nRecent scans (%d)\n", len(logs))
	for _, entry := range logs {
		student := "-"
		if entry.StudentID != nil {
			student = fmt.Sprintf("student %d", *entry.StudentID)
		}
		fmt.Printf("  %s  %-16s %-14s %s\n",
			entry.ScanTime.Format("2006-01-02 15:04:05"), entry.Tag, entry.Status, student)
	}
}
