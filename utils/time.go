package utils

import (
	"fmt"
	"strings"
	"time"
)

// ParseClockTime 解析时间字符串（格式：HH:MM:SS），允许末尾带时区缩写，如 "14:30:00 ACDT"
func ParseClockTime(timeStr string) (time.Time, error) {
	timeStr = strings.TrimSpace(timeStr)
	if timeStr == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	// 时区缩写只用于展示，解析时丢弃
	if idx := strings.IndexByte(timeStr, ' '); idx >= 0 {
		timeStr = timeStr[:idx]
	}

	parsedTime, err := time.Parse("15:04:05", timeStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", timeStr, err)
	}

	return parsedTime, nil
}

// Format12Hour 格式化为 12 小时制 "H:MMAM/PM"，小时不补零
func Format12Hour(t time.Time) string {
	return t.Format("3:04PM")
}
