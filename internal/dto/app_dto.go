package dto

import "github.com/haierkeys/contact-identity-service/pkg/timex"

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string     `json:"status"`
	Service   string     `json:"service"`
	Version   string     `json:"version"`
	Timestamp timex.Time `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	Database  string     `json:"database"`
}

// VersionDTO 服务端版本信息
type VersionDTO struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GitTag    string `json:"gitTag"`
	BuildTime string `json:"buildTime"`
}
