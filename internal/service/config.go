// Package service implements the business logic layer
// Package service 实现业务逻辑层
package service

// ServiceConfig service layer configuration
// ServiceConfig 服务层配置
type ServiceConfig struct {
	Identity IdentityServiceConfig // Identity resolution config // 身份解析配置
}

// IdentityServiceConfig identity service configuration
// IdentityServiceConfig 身份服务配置
type IdentityServiceConfig struct {
	MergePolicy MergePolicy // shallow (default) or deep // 合并策略
}
