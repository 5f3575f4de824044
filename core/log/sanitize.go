// Package log provides secure logging utilities with data sanitization capabilities.
package log

import (
	"crypto/sha256"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

// SanitizationMode controls how sensitive data is handled in logs
type SanitizationMode int

const (
	// ProductionMode hashes sensitive data for production use
	ProductionMode SanitizationMode = iota
	// DevelopmentMode shows truncated sensitive data for debugging
	DevelopmentMode
	// DebugMode shows full sensitive data (only for development)
	DebugMode
)

// currentMode is read on every request goroutine; SetMode may run concurrently.
var currentMode atomic.Int32

func mode() SanitizationMode {
	return SanitizationMode(currentMode.Load())
}

func init() {
	if mode := os.Getenv("DAVGATE_LOG_MODE"); mode != "" {
		currentMode.Store(int32(ParseMode(mode)))
	}
}

// ParseMode maps a mode name to a SanitizationMode. Unknown names fall back
// to ProductionMode.
func ParseMode(name string) SanitizationMode {
	switch strings.ToLower(name) {
	case "development":
		return DevelopmentMode
	case "debug":
		return DebugMode
	default:
		return ProductionMode
	}
}

// SetMode overrides the sanitization mode and returns the previous one.
func SetMode(mode SanitizationMode) SanitizationMode {
	return SanitizationMode(currentMode.Swap(int32(mode)))
}

// SanitizePath sanitizes file paths for logging based on the current mode
func SanitizePath(path string) string {
	if path == "" {
		return ""
	}

	switch mode() {
	case DevelopmentMode:
		if len(path) <= 20 {
			return path
		}
		return path[:10] + "..." + path[len(path)-7:]
	case DebugMode:
		return path
	default:
		// Hash the path to prevent leaking sensitive filenames
		hash := sha256.Sum256([]byte(path))
		return fmt.Sprintf("hash:%x", hash[:8])
	}
}

// SanitizeUserID sanitizes user names for logging
func SanitizeUserID(userID string) string {
	if userID == "" {
		return ""
	}

	switch mode() {
	case DevelopmentMode:
		if len(userID) <= 8 {
			return userID
		}
		return userID[:4] + "****"
	case DebugMode:
		return userID
	default:
		hash := sha256.Sum256([]byte(userID))
		return fmt.Sprintf("user_hash:%x", hash[:6])
	}
}

// User returns a zap field carrying a sanitized user name.
func User(userID string) zap.Field {
	return zap.String("user", SanitizeUserID(userID))
}

// Path returns a zap field carrying a sanitized resource path.
func Path(path string) zap.Field {
	return zap.String("path", SanitizePath(path))
}
