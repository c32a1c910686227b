package events

const (
	TopicConnStatus   = "conn.status"
	TopicPresence     = "presence.changed"
	TopicMessage      = "message.received"
	TopicNotification = "notification.received"
	TopicMembership   = "membership.role_changed"
	TopicRawFrameIn   = "raw.frame.in"
)
