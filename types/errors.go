package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound        = errors.New("config not found")
	ErrConfigIsNil           = errors.New("config is nil")
	ErrConfigParseFailed     = errors.New("config parse failed")
	ErrConfigInvalidDuration = errors.New("config invalid duration")
)

var (
	ErrCacheTypeUnknown    = errors.New("cache type unknown")
	ErrCacheAlreadyRunning = errors.New("cache manager already running")
	ErrCacheNotRunning     = errors.New("cache manager not running")
	ErrCacheComputeIsNil   = errors.New("compute function is nil")
)

var (
	ErrMetricsTypeUnknown    = errors.New("metrics type unknown")
	ErrMetricsIsDisabled     = errors.New("metrics manager is disabled")
	ErrMetricsAlreadyRunning = errors.New("metrics manager already running")
	ErrMetricsNotRunning     = errors.New("metrics manager not running")
)

var (
	ErrReporterAlreadyRunning  = errors.New("status reporter already running")
	ErrReporterNotRunning      = errors.New("status reporter not running")
	ErrReporterScheduleEmpty   = errors.New("status reporter schedule is empty")
	ErrReporterScheduleInvalid = errors.New("status reporter schedule invalid")
	ErrReporterTimezoneInvalid = errors.New("status reporter timezone invalid")
)

var (
	ErrWatcherPathEmpty        = errors.New("watcher path is empty")
	ErrWatcherRequiresReporter = errors.New("file watcher requires the status reporter")
)

var (
	ErrLogFileIsEmpty     = errors.New("log file is empty")
	ErrLogFileWrongFormat = errors.New("log file wrong format")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
