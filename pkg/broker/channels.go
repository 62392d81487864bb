package broker

// Channel naming for the logical streams. Message, reaction and vote
// streams are scoped per topic; the notification stream is scoped per
// recipient; typing shares one ephemeral channel for all topics.
const TypingChannel = "typing"

func MessageChannel(topicID string) string {
	return "stream:messages:" + topicID
}

func ReactionChannel(topicID string) string {
	return "stream:reactions:" + topicID
}

func VoteChannel(topicID string) string {
	return "stream:votes:" + topicID
}

func NotificationChannel(userID string) string {
	return "stream:notifications:" + userID
}
