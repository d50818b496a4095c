package abapagents

import "runtime"

// Version 当前版本
const Version = "v0.1.0"

// 构建时通过 -ldflags "-X" 注入
var (
	GitCommit = ""
	BuildTime = ""
)

// VersionInfo 版本详情
type VersionInfo struct {
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	GitCommit string `json:"git_commit,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
}

// GetVersionInfo 返回版本详情
func GetVersionInfo() VersionInfo {
	return VersionInfo{
		Version:   Version,
		GoVersion: runtime.Version(),
		GitCommit: GitCommit,
		BuildTime: BuildTime,
	}
}
