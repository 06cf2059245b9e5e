package logger

// 统一的日志字段命名常量
// 用于确保整个项目中日志字段命名的一致性，便于日志查询和分析
const (
	// FieldTraceID 追踪 ID 字段
	FieldTraceID = "traceId"

	// FieldMethod 方法名称字段
	FieldMethod = "method"

	// FieldError 错误信息字段
	FieldError = "error"

	// FieldDuration 耗时字段
	FieldDuration = "duration"

	// FieldEmail 请求邮箱字段
	FieldEmail = "email"

	// FieldPhone 请求手机号字段
	FieldPhone = "phoneNumber"

	// FieldContactID 联系人 ID 字段
	FieldContactID = "contactId"

	// FieldPrimaryID 主联系人 ID 字段
	FieldPrimaryID = "primaryContactId"

	// FieldOutcome 身份识别结果字段
	FieldOutcome = "outcome"

	// FieldTask 后台任务名称字段
	FieldTask = "task"
)
