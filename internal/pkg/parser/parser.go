package parser

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/persistence"
)

// Result is a canonical transcription content
type Result struct {
	FullText  string
	Sentences []persistence.Sentence
	// Language is the dominant language, empty if no sentence has one
	Language        string
	AudioFormat     string
	AudioSampleRate int
}

// Decode unmarshals provider payload
func Decode(data []byte) (*asr.RawPayload, error) {
	var res *asr.RawPayload
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, asr.NewMalformedResultError(fmt.Errorf("can't decode payload: %w", err))
	}
	if res == nil {
		return nil, asr.NewMalformedResultError(fmt.Errorf("empty payload"))
	}
	return res, nil
}

// Parse converts raw payload to canonical shape. Never fails
func Parse(raw *asr.RawPayload) *Result {
	res := &Result{Sentences: []persistence.Sentence{}}
	if raw == nil {
		return res
	}
	res.AudioFormat, res.AudioSampleRate = audioInfo(raw)
	tr := firstChannel(raw.Transcripts)
	if tr == nil {
		return res
	}
	for _, s := range tr.Sentences {
		res.Sentences = append(res.Sentences, persistence.Sentence{
			SentenceID:  s.SentenceID,
			BeginTimeMs: s.BeginTime,
			EndTimeMs:   s.EndTime,
			Text:        s.Text,
			Language:    s.Language,
			Emotion:     s.Emotion,
		})
	}
	res.FullText = tr.Text
	if res.FullText == "" {
		res.FullText = joinText(res.Sentences)
	}
	res.Language = DominantLanguage(res.Sentences)
	return res
}

func audioInfo(raw *asr.RawPayload) (string, int) {
	if raw.AudioInfo != nil {
		return raw.AudioInfo.Format, raw.AudioInfo.SampleRate
	}
	if raw.Properties != nil {
		return raw.Properties.AudioFormat, raw.Properties.OriginalSamplingRate
	}
	return "", 0
}

// firstChannel returns channel 0 transcript, or the first one if no channel is marked as 0
func firstChannel(trs []asr.RawTranscript) *asr.RawTranscript {
	if len(trs) == 0 {
		return nil
	}
	for i := range trs {
		if trs[i].ChannelID != nil && *trs[i].ChannelID == 0 {
			return &trs[i]
		}
	}
	return &trs[0]
}

func joinText(sentences []persistence.Sentence) string {
	res := strings.Builder{}
	for _, s := range sentences {
		res.WriteString(s.Text)
	}
	return res.String()
}

// DominantLanguage selects the most frequent sentence language,
// on equal counts the one seen first wins
func DominantLanguage(sentences []persistence.Sentence) string {
	counts := map[string]int{}
	order := []string{}
	for _, s := range sentences {
		if s.Language == "" {
			continue
		}
		if _, ok := counts[s.Language]; !ok {
			order = append(order, s.Language)
		}
		counts[s.Language]++
	}
	res, best := "", 0
	for _, l := range order {
		if counts[l] > best {
			res, best = l, counts[l]
		}
	}
	return res
}
