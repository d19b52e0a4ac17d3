// Package version хранит данные сборки, заданные через -ldflags "-X".
package version

import (
	"fmt"
	"runtime"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Build: данные сборки для логов и /healthz.
type Build struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
}

// Info returns version information populated via -ldflags.
func Info() (v, c, d string) { return version, commit, date }

// Current возвращает данные сборки.
func Current() Build {
	return Build{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
}

func GetVersion() string { return version }

func GetCommit() string { return commit }

func GetDate() string { return date }

// UserAgent: заголовок User-Agent исходящих запросов к шлюзам оплаты и Correios.
func UserAgent() string {
	return "storefront/" + version
}

func String() string {
	return fmt.Sprintf("version=%s commit=%s date=%s", version, commit, date)
}
