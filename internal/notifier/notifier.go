package notifier

// TextNotifier 是最小的文本推送接口，组件只依赖它而不是具体实现。
type TextNotifier interface {
	SendText(text string) error
}
