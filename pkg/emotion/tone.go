package emotion

// Tone is the conversational register a chat layer should adopt for a
// stabilized emotion.
type Tone string

const (
	ToneUplifting  Tone = "uplifting"
	ToneCalming    Tone = "calming"
	ToneConsoling  Tone = "consoling"
	ToneSupportive Tone = "supportive"
)

// ToneFor maps a stabilized emotion to a response tone.
func ToneFor(l Label) Tone {
	switch l {
	case Happy, Surprise:
		return ToneUplifting
	case Angry, Disgust:
		return ToneCalming
	case Fear, Sad:
		return ToneConsoling
	default:
		return ToneSupportive
	}
}
