package consts

const (
	// IMChatChannelKey 房间频道：仅到达已加入该会话的连接
	IMChatChannelKey = "im:chat:"
	// IMUserChannelKey 个人频道：到达该用户的全部连接，与是否进房无关
	IMUserChannelKey = "im:user:"
	// IMPresenceChannel 全进程在线状态广播频道
	IMPresenceChannel = "im:presence"
)

const (
	// TokenRevokedKey 已注销 Token 黑名单 (按签名)
	TokenRevokedKey = "token:revoked:"
)
