package parser

import (
	"testing"

	"github.com/airenas/recscribe/internal/pkg/asr"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPayload = `{
	"file_url": "https://olia/a.mp3",
	"audio_info": {"format": "mp3", "sample_rate": 16000},
	"transcripts": [
		{"channel_id": 0, "text": "Hello world. Sveiki.",
		 "sentences": [
			{"sentence_id": 1, "begin_time": 100, "end_time": 1200, "text": "Hello world.", "language": "en", "emotion": "neutral",
			 "words": [{"begin_time": 100, "end_time": 500, "text": "Hello", "punctuation": ""}]},
			{"sentence_id": 2, "begin_time": 1300, "end_time": 2000, "text": "Sveiki.", "language": "lt"}
		 ]}
	]
}`

func TestDecodeParse(t *testing.T) {
	raw, err := Decode([]byte(testPayload))
	require.Nil(t, err)
	res := Parse(raw)
	assert.Equal(t, "Hello world. Sveiki.", res.FullText)
	assert.Equal(t, "en", res.Language)
	assert.Equal(t, "mp3", res.AudioFormat)
	assert.Equal(t, 16000, res.AudioSampleRate)
	assert.Equal(t, []persistence.Sentence{
		{SentenceID: 1, BeginTimeMs: 100, EndTimeMs: 1200, Text: "Hello world.", Language: "en", Emotion: "neutral"},
		{SentenceID: 2, BeginTimeMs: 1300, EndTimeMs: 2000, Text: "Sveiki.", Language: "lt"},
	}, res.Sentences)
}

func TestParse_Idempotent(t *testing.T) {
	raw, err := Decode([]byte(testPayload))
	require.Nil(t, err)
	assert.Equal(t, Parse(raw), Parse(raw))
}

func TestParse_EmptyTranscripts(t *testing.T) {
	raw, err := Decode([]byte(`{"audio_info": {"format": "wav", "sample_rate": 8000}, "transcripts": []}`))
	require.Nil(t, err)
	res := Parse(raw)
	assert.Equal(t, &Result{Sentences: []persistence.Sentence{}, AudioFormat: "wav", AudioSampleRate: 8000}, res)
}

func TestParse_NoSentences(t *testing.T) {
	res := Parse(&asr.RawPayload{AudioInfo: &asr.AudioInfo{Format: "wav", SampleRate: 8000},
		Transcripts: []asr.RawTranscript{{Text: ""}}})
	assert.Equal(t, "", res.FullText)
	assert.Equal(t, "", res.Language)
	assert.Empty(t, res.Sentences)
	assert.Equal(t, "wav", res.AudioFormat)
}

func TestParse_Nil(t *testing.T) {
	res := Parse(nil)
	assert.Equal(t, &Result{Sentences: []persistence.Sentence{}}, res)
}

func TestParse_Properties(t *testing.T) {
	res := Parse(&asr.RawPayload{Properties: &asr.Properties{AudioFormat: "aac", OriginalSamplingRate: 44100}})
	assert.Equal(t, "aac", res.AudioFormat)
	assert.Equal(t, 44100, res.AudioSampleRate)
}

func TestParse_TakesChannelZero(t *testing.T) {
	one, zero := 1, 0
	res := Parse(&asr.RawPayload{Transcripts: []asr.RawTranscript{
		{ChannelID: &one, Text: "second", Sentences: []asr.RawSentence{{Text: "second", Language: "lt"}}},
		{ChannelID: &zero, Text: "first", Sentences: []asr.RawSentence{{Text: "first", Language: "en"}}},
	}})
	assert.Equal(t, "first", res.FullText)
	assert.Equal(t, "en", res.Language)
	require.Equal(t, 1, len(res.Sentences))
}

func TestParse_JoinsSentencesWithoutText(t *testing.T) {
	res := Parse(&asr.RawPayload{Transcripts: []asr.RawTranscript{
		{Sentences: []asr.RawSentence{{Text: "你好。"}, {Text: "世界。"}}},
	}})
	assert.Equal(t, "你好。世界。", res.FullText)
}

func TestDecode_Fails(t *testing.T) {
	for _, s := range []string{"", "olia", "null", `{"transcripts": "olia"}`} {
		t.Run(s, func(t *testing.T) {
			_, err := Decode([]byte(s))
			assert.True(t, asr.IsMalformedResult(err))
		})
	}
}

func TestDominantLanguage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "majority", args: []string{"zh", "en", "zh"}, want: "zh"},
		{name: "tie first seen", args: []string{"en", "zh"}, want: "en"},
		{name: "tie first seen later", args: []string{"lt", "en", "en", "lt"}, want: "lt"},
		{name: "majority late", args: []string{"en", "zh", "zh"}, want: "zh"},
		{name: "empty", args: []string{}, want: ""},
		{name: "skips empty", args: []string{"", "", "en"}, want: "en"},
		{name: "all empty", args: []string{"", ""}, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := make([]persistence.Sentence, 0, len(tt.args))
			for _, l := range tt.args {
				s = append(s, persistence.Sentence{Language: l})
			}
			assert.Equal(t, tt.want, DominantLanguage(s))
		})
	}
}
