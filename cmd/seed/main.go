package main

import (
	"context"

	"attensync/internal/attendance"
	"attensync/internal/config"
	"attensync/internal/logger"
	"attensync/internal/store"
)

// seed creates the schema and the demo roster with registered RFID tags.
// Safe to run repeatedly.
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
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("schema init failed")
	}

	classID, err := repo.EnsureClass(ctx, "Class 10 A", "A")
	if err != nil {
		log.Fatal().Err(err).Msg("class setup failed")
	}
	teacherID, err := repo.EnsureTeacher(ctx, "admin", "Administrator", "teacher")
	if err != nil {
		log.Fatal().Err(err).Msg("teacher setup failed")
	}
	log.Info().Int64("class_id", classID).Int64("teacher_id", teacherID).Msg("defaults ready")

	students := []attendance.Student{
		{StudentID: "SIH001", FullName: "Arvind", RFIDTag: "ARVIND001"},
		{StudentID: "SIH002", FullName: "Priya Patel", RFIDTag: "E4F8E400"},
		{StudentID: "SIH003", FullName: "Soumya", RFIDTag: "SOUMYA001"},
	}
	for _, s := range students {
		s.ClassID = classID
		id, err := repo.UpsertStudent(ctx, s)
		if err != nil {
			log.Fatal().Err(err).Str("student", s.FullName).Msg("student upsert failed")
		}
		log.Info().Int64("id", id).Str("student", s.FullName).Str("tag", s.RFIDTag).Msg("student registered")
	}

	log.Info().Msg("seed complete")
}
