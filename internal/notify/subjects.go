package notify

// NATS Subject 常量定义
const (
	// SubjectPushNotify 消息提交后产生的推送请求
	SubjectPushNotify = "estate.chat.push.notify"

	// QueueGroupPush 推送消费者队列组名称
	QueueGroupPush = "push-workers"
)
