package constants

// gin.Context 中使用的键
const (
	DbField     = "_travault_db"
	UserField   = "_travault_uid"
	UserObject  = "_travault_user"
	RequestID   = "X-Request-ID"
	TokenCookie = "token"
)

// 实时推送主题
const (
	TopicEmergencyResponders = "emergency_responders"
	TopicUserPrefix          = "user_"
	TopicGroupPrefix         = "group_"
	TopicContactsSuffix      = "_contacts"
)
