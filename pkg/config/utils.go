package config

import (
	"fmt"
	"strings"
)

// ParseSize parses a size string (e.g., "100MB", "1GB") into bytes
func ParseSize(sizeStr string) (int64, error) {
	// Remove whitespace
	sizeStr = strings.TrimSpace(sizeStr)
	if sizeStr == "" {
		return 0, fmt.Errorf("size string is empty")
	}

	// Extract number and unit
	var number float64
	var unit string

	n, err := fmt.Sscanf(sizeStr, "%f%s", &number, &unit)
	if n < 1 {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}
	if err != nil && n != 1 {
		return 0, fmt.Errorf("invalid size format: %s", sizeStr)
	}

	if n == 1 {
		unit = "B" // Default to bytes if no unit specified
	}

	if number < 0 {
		return 0, fmt.Errorf("size cannot be negative: %s", sizeStr)
	}

	// Convert to bytes
	switch strings.ToUpper(unit) {
	case "B":
		return int64(number), nil
	case "KB", "K":
		return int64(number * 1024), nil
	case "MB", "M":
		return int64(number * 1024 * 1024), nil
	case "GB", "G":
		return int64(number * 1024 * 1024 * 1024), nil
	case "TB", "T":
		return int64(number * 1024 * 1024 * 1024 * 1024), nil
	default:
		return 0, fmt.Errorf("unknown size unit: %s", unit)
	}
}

// FormatSize formats bytes into a human-readable string
func FormatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}

	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
