package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/turtacn/ChemScreen/internal/config"
	"github.com/turtacn/ChemScreen/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/ChemScreen/pkg/errors"
)

func TestNewConnectionUnreachable(t *testing.T) {
	cfg := config.DatabaseConfig{
		Host:     "127.0.0.1",
		Port:     1,
		User:     "chemscreen",
		Password: "chemscreen",
		DBName:   "chemscreen",
		SSLMode:  "disable",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewConnection(ctx, cfg, logging.NewNopLogger())
	assert.True(t, errors.IsCode(err, errors.ErrCodeDatabaseError))
}

func TestRollbackMigrationRejectsZeroSteps(t *testing.T) {
	err := RollbackMigration("postgres://localhost/x", "file://migrations", 0)
	assert.Error(t, err)
}
