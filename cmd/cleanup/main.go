package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/nimasrn/payment-gateway/internal/config"
	"github.com/nimasrn/payment-gateway/internal/repository"
	"github.com/nimasrn/payment-gateway/pkg/logger"
	"github.com/nimasrn/payment-gateway/pkg/pg"
)

// Removes pending transactions that were never verified. Meant to run
// from cron; completed rows are never touched.
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	db, err := pg.CreateReadWrite(writeConf, writeConf, false)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	ageDays := config.Get().CleanupPendingAgeDays
	if ageDays <= 0 {
		ageDays = 7
	}
	olderThan := time.Duration(ageDays) * 24 * time.Hour

	repo := repository.NewTransactionRepository(db)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := repo.DeleteStalePending(ctx, olderThan)
	if err != nil {
		logger.Error("cleanup failed", "error", err)
		os.Exit(1)
	}

	logger.Info("cleanup finished", "deleted", deleted, "older_than_days", ageDays)
}

func getEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
