package wire

// 注册表视角的服务状态，随应答帧的 Status 字段传输。
const (
	// StatusActive 心跳正常
	StatusActive = "ACTIVE"
	// StatusSuspect 心跳缺失但仍在宽限期内，收到此状态的服务应重新注册
	StatusSuspect = "SUSPECT"
	// StatusExpired 宽限期耗尽，记录已被清除
	StatusExpired = "EXPIRED"
	// StatusUnknown 注册表不认识该 serviceId，收到此状态的服务应重新注册
	StatusUnknown = "UNKNOWN"
)
