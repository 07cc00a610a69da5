package pubsub

type TopicKind string

const (
	KindConversation     TopicKind = "conversation"
	KindConversationList TopicKind = "conversationList"
)

// Topic names a broker channel. Topics are ephemeral: the broker tracks one
// only while at least one subscriber is attached.
type Topic struct {
	Kind TopicKind
	Key  string
}

func ConversationTopic(conversationID string) Topic {
	return Topic{Kind: KindConversation, Key: conversationID}
}

func ConversationListTopic(userID string) Topic {
	return Topic{Kind: KindConversationList, Key: userID}
}

func (t Topic) String() string {
	return string(t.Kind) + ":" + t.Key
}
