package scanning

import (
	"encoding/json"
	"errors"
)

// ErrUnrecognizedEnvelope is returned when no known response shape carries text
var ErrUnrecognizedEnvelope = errors.New("could not find data in AI response")

// Envelope is the decoded shape of one inference response.
// Exactly one of the concrete types below is returned by DecodeEnvelope.
type Envelope interface {
	envelope()
}

// ContentBlocksEnvelope is choices[0].message.content_blocks, first block of type text
type ContentBlocksEnvelope struct{ Text string }

// MessageContentEnvelope is choices[0].message.content
type MessageContentEnvelope struct{ Text string }

// ChoiceTextEnvelope is choices[0].text
type ChoiceTextEnvelope struct{ Text string }

// CandidateEnvelope is candidates[0].content.parts[0].text
type CandidateEnvelope struct{ Text string }

// UnrecognizedEnvelope is anything else
type UnrecognizedEnvelope struct{ Raw []byte }

func (ContentBlocksEnvelope) envelope()  {}
func (MessageContentEnvelope) envelope() {}
func (ChoiceTextEnvelope) envelope()     {}
func (CandidateEnvelope) envelope()      {}
func (UnrecognizedEnvelope) envelope()   {}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type rawEnvelope struct {
	Choices []struct {
		Message *struct {
			ContentBlocks []contentBlock  `json:"content_blocks"`
			Content       json.RawMessage `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Candidates []struct {
		Content *struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// DecodeEnvelope classifies a response body. Completion-style choices take
// precedence over candidates; once choices are present candidates are ignored.
func DecodeEnvelope(body []byte) Envelope {
	var raw rawEnvelope
	if err := json.Unmarshal(body, &raw); err != nil {
		return UnrecognizedEnvelope{Raw: body}
	}

	if len(raw.Choices) > 0 {
		choice := raw.Choices[0]
		msg := choice.Message
		switch {
		case msg != nil && msg.ContentBlocks != nil:
			// a present block list is authoritative even without a text block
			if text, ok := firstTextBlock(msg.ContentBlocks); ok {
				return ContentBlocksEnvelope{Text: text}
			}
		case msg != nil && hasContent(msg.Content):
			if text, ok := messageContent(msg.Content); ok {
				return MessageContentEnvelope{Text: text}
			}
		case choice.Text != "":
			return ChoiceTextEnvelope{Text: choice.Text}
		}
		return UnrecognizedEnvelope{Raw: body}
	}

	if len(raw.Candidates) > 0 {
		content := raw.Candidates[0].Content
		// an empty text part is still the payload location; parsing reports it
		if content != nil && len(content.Parts) > 0 {
			return CandidateEnvelope{Text: content.Parts[0].Text}
		}
	}

	return UnrecognizedEnvelope{Raw: body}
}

func firstTextBlock(blocks []contentBlock) (string, bool) {
	for _, b := range blocks {
		if b.Type == "text" {
			return b.Text, b.Text != ""
		}
	}
	return "", false
}

func hasContent(raw json.RawMessage) bool {
	switch string(raw) {
	case "", "null", `""`:
		return false
	}
	return true
}

// messageContent accepts either a plain string or an array of typed blocks
func messageContent(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, s != ""
	}
	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err == nil {
		return firstTextBlock(blocks)
	}
	return "", false
}

// envelopeText returns the payload text of a recognized envelope
func envelopeText(env Envelope) (string, bool) {
	switch e := env.(type) {
	case ContentBlocksEnvelope:
		return e.Text, true
	case MessageContentEnvelope:
		return e.Text, true
	case ChoiceTextEnvelope:
		return e.Text, true
	case CandidateEnvelope:
		return e.Text, true
	case UnrecognizedEnvelope:
		return "", false
	default:
		return "", false
	}
}
