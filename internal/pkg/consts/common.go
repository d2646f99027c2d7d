package consts

const (
	// MaxMessageLength 单条消息内容长度上限
	MaxMessageLength = 2000
)

const (
	DefaultAvatarURL = "default_avatar.png"
)
