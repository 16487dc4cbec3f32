package models

import "time"

// TrainingExample is one labeled utterance used to fit the intent classifier.
type TrainingExample struct {
	Text  string `json:"text"`
	Label string `json:"label"`
}

// Prediction is the result of classifying a single utterance
type Prediction struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Understood bool    `json:"understood"`
}

// Session is the per-call dialogue state
type Session struct {
	CallID                string    `json:"call_id"`
	QuestionCursor        int       `json:"question_cursor"`
	LastPrompt            string    `json:"last_prompt"`
	FirstQuestionRepeated bool      `json:"first_question_repeated"`
	GatherStartedAt       time.Time `json:"gather_started_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

type Speaker string

const (
	SpeakerSystem Speaker = "SYSTEM"
	SpeakerUser   Speaker = "USER"
)

// LogEntry is a single line of a call transcript
type LogEntry struct {
	At      time.Time `json:"at"`
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
}

// Action is what the telephony layer should do after a turn.
type Action string

const (
	ActionContinue Action = "CONTINUE"
	ActionRepeat   Action = "REPEAT"
	ActionEscalate Action = "ESCALATE"
	ActionEnd      Action = "END"
)

// Ends reports whether the action terminates the automated dialogue.
func (a Action) Ends() bool {
	return a == ActionEnd || a == ActionEscalate
}

// Turn is the outcome of one dialogue step
type Turn struct {
	Action  Action  `json:"action"`
	Notice  string  `json:"notice,omitempty"`
	Prompt  string  `json:"prompt,omitempty"`
	Dial    string  `json:"dial,omitempty"`
	Session Session `json:"session"`
}
