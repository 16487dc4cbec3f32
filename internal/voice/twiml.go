package voice

import (
	"github.com/twilio/twilio-go/twiml"
	"github.com/xaenox/voice-intent-bot/internal/bot"
	"github.com/xaenox/voice-intent-bot/internal/models"
)

// Speech settings applied to every Say and Gather verb.
type Speech struct {
	Voice         string
	Language      string
	Hints         string
	GatherTimeout string
}

func (s Speech) say(text string) *twiml.VoiceSay {
	return &twiml.VoiceSay{Message: text, Voice: s.Voice}
}

func (s Speech) gather(prompt string) *twiml.VoiceGather {
	return &twiml.VoiceGather{
		Input:         "speech",
		Timeout:       s.GatherTimeout,
		SpeechTimeout: "auto",
		Action:        "/gather",
		Language:      s.Language,
		Hints:         s.Hints,
		InnerElements: []twiml.Element{s.say(prompt)},
	}
}

// greeting asks the first question and records the whole call with
// transcription.
func (s Speech) greeting(prompt string) (string, error) {
	return twiml.Voice([]twiml.Element{
		s.gather(prompt),
		&twiml.VoiceRecord{
			MaxLength:                    "3600",
			PlayBeep:                     "true",
			Transcribe:                   "true",
			TranscribeCallback:           "/transcription-complete",
			RecordingStatusCallback:      "/recording-complete",
			RecordingStatusCallbackEvent: "completed",
		},
		s.say(bot.NoInputNotice),
	})
}

// turn renders the reaction to a caller utterance.
func (s Speech) turn(t models.Turn) (string, error) {
	var verbs []twiml.Element
	if t.Notice != "" {
		verbs = append(verbs, s.say(t.Notice))
	}

	switch t.Action {
	case models.ActionContinue, models.ActionRepeat:
		verbs = append(verbs, s.gather(t.Prompt))
	case models.ActionEscalate:
		if t.Dial != "" {
			verbs = append(verbs, &twiml.VoiceDial{Number: t.Dial})
		} else {
			verbs = append(verbs, &twiml.VoiceHangup{})
		}
	default:
		verbs = append(verbs, &twiml.VoiceHangup{})
	}
	return twiml.Voice(verbs)
}
