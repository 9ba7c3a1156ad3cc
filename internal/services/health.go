package services

import (
	"fmt"
	"os"

	"github.com/localnerve/reestrsi/internal/config"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status       string            `json:"status"`
	Database     string            `json:"database"`
	Uploads      string            `json:"uploads"`
	Details      map[string]string `json:"details,omitempty"`
	ErrorMessage string            `json:"error,omitempty"`
}

func (r *HealthCheckResult) fail(format string, args ...any) {
	r.Status = "unhealthy"
	msg := fmt.Sprintf(format, args...)
	if r.ErrorMessage == "" {
		r.ErrorMessage = msg
	} else {
		r.ErrorMessage += "; " + msg
	}
}

// Healthy reports whether every check passed
func (r HealthCheckResult) Healthy() bool {
	return r.Status == "healthy"
}

// HealthCheck checks the database connection and the upload folder
func HealthCheck(cfg *config.Config, db *gorm.DB, log *zap.Logger) HealthCheckResult {
	if log == nil {
		log = zap.NewNop()
	}
	result := HealthCheckResult{
		Status:  "healthy",
		Details: make(map[string]string),
	}

	// Check database connectivity
	sqlDB, err := db.DB()
	if err != nil {
		result.Database = "error"
		result.Details["database_error"] = err.Error()
		result.fail("Database connection error: %v", err)
		log.Warn("health check failed - database connection", zap.Error(err))
	} else if err := sqlDB.Ping(); err != nil {
		result.Database = "unreachable"
		result.Details["database_ping_error"] = err.Error()
		result.fail("Database ping failed: %v", err)
		log.Warn("health check failed - database ping", zap.Error(err))
	} else {
		result.Database = "ok"
		result.Details["database_type"] = cfg.DBType
		result.Details["database_name"] = cfg.DBDatabase
	}

	// Check the upload folder is a directory
	info, err := os.Stat(cfg.UploadFolder)
	switch {
	case err != nil:
		result.Uploads = "unreachable"
		result.Details["uploads_error"] = err.Error()
		result.fail("Upload folder unavailable: %v", err)
		log.Warn("health check failed - upload folder", zap.Error(err))
	case !info.IsDir():
		result.Uploads = "error"
		result.fail("Upload folder %s is not a directory", cfg.UploadFolder)
		log.Warn("health check failed - upload folder is a file", zap.String("path", cfg.UploadFolder))
	default:
		result.Uploads = "ok"
		result.Details["upload_folder"] = cfg.UploadFolder
	}

	if result.Healthy() {
		log.Debug("health check passed - all systems operational")
	}
	return result
}
