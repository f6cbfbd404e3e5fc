package evaluate

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/ent0n29/shadowing/internal/model"
	"github.com/ent0n29/shadowing/internal/reliability"
)

const promptTemplate = `You are an English pronunciation and shadowing practice evaluator.

Compare the original text with the user's transcribed speech and provide feedback.

Original text: %s
User's transcription: %s

Analyze the following aspects:
1. Accuracy: How closely does the transcription match the original?
2. Missing words: Which words were missed or unclear?
3. Added words: Were there any extra words?
4. Pronunciation issues: Based on common transcription errors, what pronunciation areas need work?

Provide your evaluation in the following JSON format:
{
    "accuracy_score": <0-100>,
    "missing_words": ["word1", "word2"],
    "added_words": ["word1", "word2"],
    "pronunciation_notes": "Brief notes on pronunciation areas to improve",
    "overall_feedback": "Encouraging overall feedback with specific suggestions",
    "strengths": ["strength1", "strength2"],
    "areas_to_improve": ["area1", "area2"]
}

Respond ONLY with the JSON, no additional text.`

func Prompt(reference, transcription string) string {
	return fmt.Sprintf(promptTemplate, reference, transcription)
}

// score accepts a JSON number or a numeric string; models emit both.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		b = []byte(strings.TrimSuffix(strings.TrimSpace(str), "%"))
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("accuracy_score: %w", err)
	}
	*s = score(v)
	return nil
}

type rawEvaluation struct {
	AccuracyScore      *score   `json:"accuracy_score"`
	MissingWords       []string `json:"missing_words"`
	AddedWords         []string `json:"added_words"`
	PronunciationNotes string   `json:"pronunciation_notes"`
	OverallFeedback    string   `json:"overall_feedback"`
	Strengths          []string `json:"strengths"`
	AreasToImprove     []string `json:"areas_to_improve"`
}

// ParseEvaluation extracts the evaluation object from a model reply.
// Errors wrap reliability.ErrInvalidResponse.
func ParseEvaluation(raw string) (model.Evaluation, error) {
	body := stripFences(raw)
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return model.Evaluation{}, fmt.Errorf("%w: no json object in reply", reliability.ErrInvalidResponse)
	}

	var r rawEvaluation
	if err := json.Unmarshal([]byte(body[start:end+1]), &r); err != nil {
		return model.Evaluation{}, fmt.Errorf("%w: %v", reliability.ErrInvalidResponse, err)
	}
	if r.AccuracyScore == nil {
		return model.Evaluation{}, fmt.Errorf("%w: accuracy_score missing", reliability.ErrInvalidResponse)
	}
	if strings.TrimSpace(r.OverallFeedback) == "" {
		return model.Evaluation{}, fmt.Errorf("%w: overall_feedback missing", reliability.ErrInvalidResponse)
	}

	ev := model.Evaluation{
		AccuracyScore:      round1(float64(*r.AccuracyScore)),
		MissingWords:       head(nonNil(r.MissingWords), model.MaxWordList),
		AddedWords:         head(nonNil(r.AddedWords), model.MaxWordList),
		PronunciationNotes: strings.TrimSpace(r.PronunciationNotes),
		OverallFeedback:    strings.TrimSpace(r.OverallFeedback),
		Strengths:          nonNil(r.Strengths),
		AreasToImprove:     nonNil(r.AreasToImprove),
	}
	if err := ev.Validate(); err != nil {
		return model.Evaluation{}, fmt.Errorf("%w: %v", reliability.ErrInvalidResponse, err)
	}
	return ev, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:] // drop the language tag line
	}
	s = strings.TrimSpace(s)
	return strings.TrimSuffix(s, "```")
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
