package code

var (
	Success = NewSuss(1, lang{en: "Success", zh_cn: "成功"})

	Failed               = NewError(0, lang{en: "Failed", zh_cn: "失败"})
	ErrorServerInternal  = NewError(500, lang{en: "Internal server error", zh_cn: "服务器内部错误"})
	ErrorInvalidParams   = NewError(400, lang{en: "Invalid parameters", zh_cn: "参数错误"})
	ErrorNotFoundAPI     = NewError(404, lang{en: "API not found", zh_cn: "接口不存在"})
	ErrorTooManyRequests = NewError(429, lang{en: "Too many requests", zh_cn: "请求过多"})
	ErrorDBQuery         = NewError(503, lang{en: "Database query error", zh_cn: "数据库查询出错"})
)

// Contact identity codes
// 联系人身份相关错误码
var (
	ErrorIdentifyInputEmpty         = NewError(431, lang{en: "Either email or phoneNumber must be provided", zh_cn: "email 和 phoneNumber 至少提供一个"})
	ErrorContactNotFound            = NewError(432, lang{en: "Contact not found", zh_cn: "联系人不存在"})
	ErrorContactNetworkInconsistent = NewError(531, lang{en: "Contact network has no primary contact", zh_cn: "联系人网络缺少主联系人"})
	ErrorContactStore               = NewError(532, lang{en: "Contact store failure", zh_cn: "联系人存储失败"})
	ErrorWriteQueueBusy             = NewError(533, lang{en: "Write queue is busy, please retry", zh_cn: "写入队列繁忙，请重试"})
)
