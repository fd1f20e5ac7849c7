package response

// 业务状态码沿用 HTTP 语义
const (
	CodeOK              = 0
	CodeBadRequest      = 400
	CodeUnauthorized    = 401 // webhook 签名校验失败
	CodeNotFound        = 404
	CodeConflict        = 409 // 状态冲突、记录已锁定
	CodeUnprocessable   = 422 // 输入缺失、收款信息不可用
	CodeTooManyRequests = 429
	CodeInternal        = 500
	CodeUnavailable     = 503 // 打款渠道未配置或队列不可用
)
