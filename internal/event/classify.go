package event

// ContentType 定义了消息内容类型的枚举
type ContentType string

const (
	TypeEdit     ContentType = "EDIT"
	TypeText     ContentType = "TEXT"
	TypeLocation ContentType = "LOCATION"
	TypeVideo    ContentType = "VIDEO"
	TypeVoice    ContentType = "VOICE"
	TypePhoto    ContentType = "PHOTO"
	TypeDocument ContentType = "DOCUMENT"
	TypeSticker  ContentType = "STICKER"

	// Unclassified 用于无法识别的消息，这类消息仍然计数
	Unclassified ContentType = "UNCLASSIFIED"
)

// classifyRule 把一个字段判断映射到内容类型
type classifyRule struct {
	typ     ContentType
	matches func(Message) bool
}

// rules 按优先级排列，首个命中的规则生效。
// 编辑过的文本消息同时带有编辑标记和文本，必须归为 EDIT。
var rules = []classifyRule{
	{TypeEdit, Message.IsEdited},
	{TypeText, Message.HasText},
	{TypeLocation, func(m Message) bool { return m.HasLocation }},
	{TypeVideo, func(m Message) bool { return m.HasVideo }},
	{TypeVoice, func(m Message) bool { return m.HasVoice }},
	{TypePhoto, func(m Message) bool { return m.HasPhoto }},
	{TypeDocument, func(m Message) bool { return m.HasDocument }},
	{TypeSticker, func(m Message) bool { return m.HasSticker }},
}

// Classify 返回消息的内容类型。
// 没有规则命中时返回 (Unclassified, false)，调用方负责记录诊断日志。
func Classify(m Message) (ContentType, bool) {
	for _, r := range rules {
		if r.matches(m) {
			return r.typ, true
		}
	}
	return Unclassified, false
}

// Types 按分类优先级返回所有已知的内容类型（不含 Unclassified）
func Types() []ContentType {
	types := make([]ContentType, len(rules))
	for i, r := range rules {
		types[i] = r.typ
	}
	return types
}
