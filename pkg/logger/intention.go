package logger

// Intention tags what a log line is about, independent of its level.
// The console handler turns it into an icon; file logs keep it as the
// structured "intention" attribute.
type Intention string

const (
	IntentionRouting    Intention = "routing"
	IntentionBridge     Intention = "bridge"
	IntentionReply      Intention = "reply"
	IntentionValidation Intention = "validation"
	IntentionStatistics Intention = "statistics"
	IntentionStatus     Intention = "status"
	IntentionConfig     Intention = "config"
	IntentionSuccess    Intention = "success"
	IntentionWarning    Intention = "warning" // no icon mapping; level handles emphasis
	IntentionError      Intention = "error"   // no icon mapping; level handles emphasis
	IntentionDebug      Intention = "debug"
)

// iconFor returns a short emoji string for console output for the intention.
func iconFor(i Intention) string {
	switch i {
	case IntentionRouting:
		return "🔀"
	case IntentionBridge:
		return "✨"
	case IntentionReply:
		return "💬"
	case IntentionValidation:
		return "🖼️"
	case IntentionStatistics:
		return "📊"
	case IntentionStatus:
		return "ℹ️"
	case IntentionConfig:
		return "⚙️"
	case IntentionSuccess:
		return "✅"
	case IntentionDebug:
		return "🛠️"
	default:
		return "➤"
	}
}
