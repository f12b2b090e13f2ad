package service

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/socratic-ai/tutor-platform/internal/apperr"
	"github.com/socratic-ai/tutor-platform/internal/model"
	"github.com/socratic-ai/tutor-platform/pkg/logger"
	"github.com/socratic-ai/tutor-platform/pkg/metrics"
)

const (
	maxTopics      = 5
	previewRunes   = 100
	unknownStudent = "Unknown"
)

// AnalyticsService computes classroom dashboards.
type AnalyticsService struct {
	store  Store
	access courseAccess
	logger *logger.Logger
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(st Store, log *logger.Logger) *AnalyticsService {
	return &AnalyticsService{
		store:  st,
		access: courseAccess{store: st},
		logger: log,
	}
}

// Aggregate loads the conversations of an assignment and computes its
// snapshot. Only the teacher who owns the course may call it. Any read
// failure fails the whole call.
func (s *AnalyticsService) Aggregate(ctx context.Context, auth model.AuthContext, req *model.AnalyticsRequest) (*model.AnalyticsSnapshot, error) {
	start := time.Now()
	defer func() {
		metrics.AnalyticsDuration.Observe(time.Since(start).Seconds())
	}()

	if _, err := s.access.owner(ctx, auth, req.CourseID); err != nil {
		return nil, err
	}
	if req.AssignmentID == "" {
		return nil, apperr.Validation("assignment_id is required")
	}
	if req.From != nil && req.To != nil && req.From.After(*req.To) {
		return nil, apperr.Validation("from must not be after to")
	}

	convs, err := s.store.ListConversations(ctx, req.CourseID, req.AssignmentID)
	if err != nil {
		return nil, apperr.Persistence("failed to load conversations", err)
	}
	if len(convs) == 0 {
		return model.EmptySnapshot(), nil
	}

	convIDs := make([]string, len(convs))
	studentSet := make(map[string]struct{}, len(convs))
	for i, c := range convs {
		convIDs[i] = c.ID
		studentSet[c.StudentID] = struct{}{}
	}
	studentIDs := make([]string, 0, len(studentSet))
	for id := range studentSet {
		studentIDs = append(studentIDs, id)
	}
	sort.Strings(studentIDs)

	var (
		msgs     []model.Message
		profiles map[string]model.Profile
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		msgs, err = s.store.ListMessagesForConversations(gctx, convIDs, req.From, req.To)
		if err != nil {
			return apperr.Persistence("failed to load messages", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		profiles, err = s.store.GetProfiles(gctx, studentIDs)
		if err != nil {
			return apperr.Persistence("failed to load profiles", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	snapshot := Compute(convs, msgs, profiles)

	s.logger.Debug("analytics computed",
		zap.String("course_id", req.CourseID),
		zap.String("assignment_id", req.AssignmentID),
		zap.Int("conversations", len(convs)),
		zap.Int("messages", len(msgs)))

	return snapshot, nil
}

// Compute derives a snapshot from conversations, their messages and the
// students' profiles. It is a pure function of its inputs.
func Compute(convs []model.Conversation, msgs []model.Message, profiles map[string]model.Profile) *model.AnalyticsSnapshot {
	if len(convs) == 0 {
		return model.EmptySnapshot()
	}

	owner := make(map[string]string, len(convs))
	for _, c := range convs {
		owner[c.ID] = c.StudentID
	}

	var (
		studentTotal, confusedTotal int
		tutorTotal, groundedTotal   int
		byQuestion                  = map[int]int{}
		byTopic                     = map[string]int{}
		latest                      = map[string]model.Message{}
	)

	for _, m := range msgs {
		switch m.Sender {
		case model.SenderTutor:
			tutorTotal++
			if m.GroundedFlag == nil || *m.GroundedFlag {
				groundedTotal++
			}

		case model.SenderStudent:
			studentTotal++
			if !m.Confused() {
				continue
			}
			confusedTotal++

			if m.QuestionNumber != nil {
				byQuestion[*m.QuestionNumber]++
			}
			if m.TopicTag != nil {
				if topic := strings.TrimSpace(*m.TopicTag); topic != "" {
					byTopic[topic]++
				}
			}

			studentID, ok := owner[m.ConversationID]
			if !ok {
				continue
			}
			if prev, seen := latest[studentID]; !seen || newer(m, prev) {
				latest[studentID] = m
			}
		}
	}

	snapshot := &model.AnalyticsSnapshot{
		KPIs: model.KPIs{
			ConfusedPct:         percent(confusedTotal, studentTotal, 0),
			StudentsNeedingHelp: len(latest),
			GroundedRate:        percent(groundedTotal, tutorTotal, 100),
		},
		ByQuestion: questionHistogram(byQuestion),
		Topics:     topicHistogram(byTopic),
		Students:   studentsNeedingHelp(latest, profiles),
	}

	if len(snapshot.ByQuestion) > 0 {
		q := snapshot.ByQuestion[0].Question
		snapshot.KPIs.TopQuestion = &q
	}
	if len(snapshot.Topics) > 0 {
		t := snapshot.Topics[0].Topic
		snapshot.KPIs.TopTopic = &t
	}

	return snapshot
}

// percent returns round(100*part/total), or empty when total is zero.
func percent(part, total, empty int) int {
	if total == 0 {
		return empty
	}
	return int(math.Round(100 * float64(part) / float64(total)))
}

func newer(a, b model.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// questionHistogram sorts by count descending, then question ascending.
func questionHistogram(counts map[int]int) []model.QuestionCount {
	out := make([]model.QuestionCount, 0, len(counts))
	for q, n := range counts {
		out = append(out, model.QuestionCount{Question: q, Confused: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confused != out[j].Confused {
			return out[i].Confused > out[j].Confused
		}
		return out[i].Question < out[j].Question
	})
	return out
}

// topicHistogram keeps the top topics by count, ties ascending by topic.
func topicHistogram(counts map[string]int) []model.TopicCount {
	out := make([]model.TopicCount, 0, len(counts))
	for t, n := range counts {
		out = append(out, model.TopicCount{Topic: t, Confused: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confused != out[j].Confused {
			return out[i].Confused > out[j].Confused
		}
		return out[i].Topic < out[j].Topic
	})
	if len(out) > maxTopics {
		out = out[:maxTopics]
	}
	return out
}

// studentsNeedingHelp lists each student's latest confused message, most
// recent first, ties by student id.
func studentsNeedingHelp(latest map[string]model.Message, profiles map[string]model.Profile) []model.StudentNeedingHelp {
	out := make([]model.StudentNeedingHelp, 0, len(latest))
	for studentID, m := range latest {
		name := unknownStudent
		if p, ok := profiles[studentID]; ok && strings.TrimSpace(p.DisplayName) != "" {
			name = p.DisplayName
		}

		out = append(out, model.StudentNeedingHelp{
			StudentID:      studentID,
			StudentName:    name,
			Question:       m.QuestionNumber,
			Topic:          m.TopicTag,
			LastTS:         m.CreatedAt,
			ConversationID: m.ConversationID,
			LastMessage:    truncateRunes(m.Text, previewRunes),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastTS.Equal(out[j].LastTS) {
			return out[i].LastTS.After(out[j].LastTS)
		}
		return out[i].StudentID < out[j].StudentID
	})
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
