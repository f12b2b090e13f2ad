package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/socratic-ai/tutor-platform/internal/llm"
	"github.com/socratic-ai/tutor-platform/internal/model"
)

const (
	maxPromptExcerpts = 3

	// DefaultGuidingQuestion replaces a reply that was entirely withheld.
	DefaultGuidingQuestion = "What do you already know about this problem, and where would you start?"

	followUpQuestion = "What do you think the next step should be?"
)

const socraticPolicy = `You are a Socratic tutor helping a student work through a course assignment.
Never give complete solutions, finished essays, or final answers, even if the student asks for them directly.
Guide the student with hints, questions, and small steps so they reach the answer themselves.
Always end your reply with a question that keeps the student thinking.`

const directPolicy = `You are a tutor helping a student work through a course assignment.
You may give direct answers, but always show the step-by-step reasoning before stating any answer.`

const outputContract = `Respond with a JSON object with exactly these fields:
{"tutor_reply": string, "question_number": integer or null, "topic_tag": short lowercase topic or null, "confusion_flag": boolean, "grounded": boolean}
- question_number: the assignment question the student is working on, if you can tell.
- topic_tag: the concept the student is working on, two to four words.
- confusion_flag: true when the student expresses difficulty or misunderstanding.
- grounded: true when your reply is supported by the course material excerpts.`

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {}, "all": {},
	"can": {}, "had": {}, "her": {}, "was": {}, "one": {}, "our": {}, "out": {}, "has": {},
	"how": {}, "what": {}, "why": {}, "this": {}, "that": {}, "with": {}, "from": {}, "have": {},
	"they": {}, "will": {}, "would": {}, "there": {}, "their": {}, "about": {}, "which": {},
	"when": {}, "does": {}, "into": {}, "just": {}, "than": {}, "then": {}, "them": {}, "these": {},
	"some": {}, "could": {}, "should": {}, "i'm": {}, "don't": {}, "get": {}, "give": {}, "me": {},
}

// finalAnswerPattern matches sentences that announce a solution.
var finalAnswerPattern = regexp.MustCompile(
	`(?i)\b(the (final |correct |right )?answer is|final answer|the (complete |full )?solution is|here(?:'s| is) the (complete |full |final )?(solution|answer))\b`)

// answerLabelPattern matches sentences that open with an answer label such
// as "Answer: 42" or "Final result = 7".
var answerLabelPattern = regexp.MustCompile(`(?i)^\W*(final |correct )?(answer|solution|result)s?\s*[:=]`)

// systemPrompt assembles the tutor instruction for one turn.
func systemPrompt(allowDirectAnswers bool, excerpts []model.MaterialExcerpt) string {
	var b strings.Builder

	if allowDirectAnswers {
		b.WriteString(directPolicy)
	} else {
		b.WriteString(socraticPolicy)
	}
	b.WriteString("\n\n")
	b.WriteString(outputContract)

	if len(excerpts) > 0 {
		b.WriteString("\n\nCourse material excerpts:\n")
		for _, e := range excerpts {
			fmt.Fprintf(&b, "\n[%s, part %d]\n%s\n", e.Title, e.ChunkIndex+1, e.Content)
		}
	}

	return b.String()
}

// chatHistory maps stored messages to alternating provider turns, starting
// with the user. Consecutive messages from one side are merged.
func chatHistory(history []model.Message, latest string) []llm.ChatMessage {
	var out []llm.ChatMessage

	appendTurn := func(role, content string) {
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content += "\n\n" + content
			return
		}
		out = append(out, llm.ChatMessage{Role: role, Content: content})
	}

	for _, m := range history {
		role := llm.RoleUser
		if m.Sender == model.SenderTutor {
			role = llm.RoleAssistant
		}
		if len(out) == 0 && role != llm.RoleUser {
			continue
		}
		appendTurn(role, m.Text)
	}
	appendTurn(llm.RoleUser, latest)

	return out
}

func keywords(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})

	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.Trim(w, "'")
		if len([]rune(w)) < 3 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		set[w] = struct{}{}
	}
	return set
}

// selectExcerpts ranks excerpts by keyword overlap with the question and
// keeps the best few. Excerpts sharing no keyword are dropped.
func selectExcerpts(excerpts []model.MaterialExcerpt, question string, limit int) []model.MaterialExcerpt {
	query := keywords(question)
	if len(query) == 0 || limit <= 0 {
		return nil
	}

	type scored struct {
		excerpt model.MaterialExcerpt
		score   int
	}

	var ranked []scored
	for _, e := range excerpts {
		score := 0
		for w := range keywords(e.Content + " " + e.Title) {
			if _, ok := query[w]; ok {
				score++
			}
		}
		if score > 0 {
			ranked = append(ranked, scored{excerpt: e, score: score})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]model.MaterialExcerpt, len(ranked))
	for i, r := range ranked {
		out[i] = r.excerpt
	}
	return out
}

// referencedTitles returns the distinct material titles of excerpts in order.
func referencedTitles(excerpts []model.MaterialExcerpt) []string {
	seen := make(map[string]struct{}, len(excerpts))
	var titles []string
	for _, e := range excerpts {
		if _, ok := seen[e.MaterialID]; ok {
			continue
		}
		seen[e.MaterialID] = struct{}{}
		titles = append(titles, e.Title)
	}
	return titles
}

// tutorOutput is the structured reply requested from the model.
type tutorOutput struct {
	TutorReply     string
	QuestionNumber *int
	TopicTag       *string
	ConfusionFlag  bool
	Grounded       *bool
}

type rawTutorOutput struct {
	TutorReply     string          `json:"tutor_reply"`
	QuestionNumber json.RawMessage `json:"question_number"`
	TopicTag       *string         `json:"topic_tag"`
	ConfusionFlag  *bool           `json:"confusion_flag"`
	Grounded       *bool           `json:"grounded"`
}

var (
	errEmptyReply      = errors.New("model returned an empty tutor_reply")
	errMissingConfused = errors.New("model output is missing confusion_flag")
)

// parseTutorOutput decodes the model payload, tolerating surrounding prose
// and markdown code fences. tutor_reply and confusion_flag are required.
func parseTutorOutput(content string) (*tutorOutput, error) {
	payload := strings.TrimSpace(content)
	start := strings.Index(payload, "{")
	end := strings.LastIndex(payload, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in model output")
	}
	payload = payload[start : end+1]

	var raw rawTutorOutput
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		return nil, fmt.Errorf("decode model output: %w", err)
	}

	reply := strings.TrimSpace(raw.TutorReply)
	if reply == "" {
		return nil, errEmptyReply
	}
	if raw.ConfusionFlag == nil {
		return nil, errMissingConfused
	}

	question, err := parseQuestionNumber(raw.QuestionNumber)
	if err != nil {
		return nil, err
	}

	out := &tutorOutput{
		TutorReply:     reply,
		QuestionNumber: question,
		ConfusionFlag:  *raw.ConfusionFlag,
		Grounded:       raw.Grounded,
	}
	if raw.TopicTag != nil {
		if topic := strings.ToLower(strings.TrimSpace(*raw.TopicTag)); topic != "" {
			out.TopicTag = &topic
		}
	}
	return out, nil
}

// parseQuestionNumber accepts a JSON number or numeric string. A value of any
// other shape is an error. Numbers that are not positive integers mean
// unknown.
func parseQuestionNumber(raw json.RawMessage) (*int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("question_number is not a number: %s", raw)
		}
		i, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("question_number is not a number: %s", raw)
		}
		n = float64(i)
	}

	if n < 1 || n != float64(int(n)) {
		return nil, nil
	}
	q := int(n)
	return &q, nil
}

// enforceSocratic removes sentences announcing a final answer and makes the
// reply end with a question.
func enforceSocratic(reply string) string {
	var kept []string
	for _, s := range splitSentences(reply) {
		if finalAnswerPattern.MatchString(s) || answerLabelPattern.MatchString(s) {
			continue
		}
		kept = append(kept, s)
	}

	out := strings.Join(kept, " ")
	if out == "" {
		return DefaultGuidingQuestion
	}
	if strings.HasSuffix(out, "?") {
		return out
	}
	if !strings.HasSuffix(out, ".") && !strings.HasSuffix(out, "!") {
		out += "."
	}
	return out + " " + followUpQuestion
}

// splitSentences splits on terminal punctuation followed by whitespace, so
// decimals and abbreviations inside a word stay intact.
func splitSentences(text string) []string {
	runes := []rune(text)

	var (
		sentences []string
		start     int
	)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
