package constant

const (
	QueueStreamName = "campus_ticket_queue_stream"
)

const (
	AllWildcard          = "events.>"
	NotificationWildcard = "events.notification.>"
	PointsWildcard       = "events.points.>"

	SubjectSendEmail   = "events.notification.email"
	SubjectAwardPoints = "events.points.award"
)
