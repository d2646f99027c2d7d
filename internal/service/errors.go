package service

import (
	"errors"
)

const (
	BadRequest          = 400
	Unauthorized        = 401
	NotFound            = 404
	InternalServerError = 500
)

var (
	ErrParamInvalid         = errors.New("参数错误")
	ErrUserNotFound         = errors.New("用户不存在")
	ErrChatNotFound         = errors.New("会话不存在")
	ErrChatDeleted          = errors.New("会话已删除")
	ErrNotParticipant       = errors.New("不是会话成员")
	ErrNotChatAdmin         = errors.New("需要会话管理员权限")
	ErrChatSelf             = errors.New("不能和自己私聊")
	ErrMessageNotFound      = errors.New("消息不存在")
	ErrMessageEmpty         = errors.New("消息内容不能为空")
	ErrMessageTooLong       = errors.New("消息内容超出长度限制")
	ErrNotMessageSender     = errors.New("只能操作自己发送的消息")
	ErrNotificationNotFound = errors.New("通知不存在")
	ErrTargetInvalid        = errors.New("通知目标无效")
	UnauthorizedError       = errors.New("权限不足")
	UnExpectedError         = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:         BadRequest,
	ErrUserNotFound:         NotFound,
	ErrChatNotFound:         NotFound,
	ErrChatDeleted:          NotFound,
	ErrNotParticipant:       Unauthorized,
	ErrNotChatAdmin:         Unauthorized,
	ErrChatSelf:             BadRequest,
	ErrMessageNotFound:      NotFound,
	ErrMessageEmpty:         BadRequest,
	ErrMessageTooLong:       BadRequest,
	ErrNotMessageSender:     Unauthorized,
	ErrNotificationNotFound: NotFound,
	ErrTargetInvalid:        BadRequest,
	UnauthorizedError:       Unauthorized,
	UnExpectedError:         InternalServerError,
}
