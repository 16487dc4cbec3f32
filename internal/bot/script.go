package bot

const (
	RepeatNotice        = "Sorry, I did not understand. Let me repeat the question."
	NoInputNotice       = "We did not receive any input. Goodbye!"
	GoodbyeNotice       = "Thank you for your responses. Goodbye!"
	ErrorNotice         = "Sorry, there was an error processing your request."
	NotUnderstoodNotice = "I could not understand. Please try again."
	TransferNotice      = "Please hold while I transfer you to a customer service agent."

	DefaultMinConfidence   = 0.8
	DefaultMaxSpeechLength = 256
)

// DefaultScript holds the sample prompts. Only the first one is ever asked
// by the script itself; later turns follow the classified intent.
var DefaultScript = []string{
	"We noticed an abandoned cart in our system—did you encounter any issues during checkout?",
	"I would like to cancel an order",
	"Can you help me to contact an agent?",
	"Is anybody available at customer service?",
	"How can I file a complaint?",
	"How to check your refund policy?",
	"Show me your allowed payment methods.",
	"Do you accept card?",
	"How can I find my invoice?",
	"Where can I make an order?",
}

var (
	DefaultEscalationKeywords = []string{"customer service", "human", "agent", "operator", "representative", "real person"}
	DefaultExitKeywords       = []string{"goodbye", "exit", "quit"}
)

// Options configures the dialogue.
type Options struct {
	Script             []string
	AgentNumber        string
	MinConfidence      float64
	EscalationKeywords []string
	ExitKeywords       []string
}

func (o Options) withDefaults() Options {
	if len(o.Script) == 0 {
		o.Script = DefaultScript
	}
	if o.MinConfidence <= 0 {
		o.MinConfidence = DefaultMinConfidence
	}
	if len(o.EscalationKeywords) == 0 {
		o.EscalationKeywords = DefaultEscalationKeywords
	}
	if len(o.ExitKeywords) == 0 {
		o.ExitKeywords = DefaultExitKeywords
	}
	return o
}
