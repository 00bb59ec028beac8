package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lorekeep/lorekeep-engine/pkg/apperrors"
	"github.com/lorekeep/lorekeep-engine/pkg/cluster"
	"github.com/lorekeep/lorekeep-engine/pkg/llm"
	"github.com/lorekeep/lorekeep-engine/pkg/logging"
	"github.com/lorekeep/lorekeep-engine/pkg/models"
	"github.com/lorekeep/lorekeep-engine/pkg/prompts"
	"github.com/lorekeep/lorekeep-engine/pkg/repositories"
)

// Report modes. ReportModeFull also rewrites the topic's title and
// keywords; ReportModeReportOnly updates the summary alone.
const (
	ReportModeReportOnly = "report_only"
	ReportModeFull       = "full"
)

// maxReportNotes caps how many representative members one report prompt
// includes.
const maxReportNotes = 12

const reportTemperature = 0.3

// ReportService names and summarizes a topic from its representative
// members via the structured-generation collaborator.
type ReportService interface {
	Generate(ctx context.Context, ownerID, topicID uuid.UUID, mode string) (*models.Topic, error)
}

type reportService struct {
	db      Store
	topics  repositories.TopicRepository
	members repositories.MemberRepository
	client  llm.LLMClient
	logger  *zap.Logger
}

// NewReportService creates a new ReportService.
func NewReportService(
	db Store,
	topics repositories.TopicRepository,
	members repositories.MemberRepository,
	client llm.LLMClient,
	logger *zap.Logger,
) ReportService {
	return &reportService{
		db:      db,
		topics:  topics,
		members: members,
		client:  client,
		logger:  logger.Named("report-service"),
	}
}

var _ ReportService = (*reportService)(nil)

// reportResult is the strict schema for the collaborator's naming output.
type reportResult struct {
	Title    string   `json:"title"`
	Keywords []string `json:"keywords"`
	Summary  string   `json:"summary"`
}

func (s *reportService) Generate(ctx context.Context, ownerID, topicID uuid.UUID, mode string) (*models.Topic, error) {
	switch mode {
	case ReportModeReportOnly, ReportModeFull:
	default:
		return nil, fmt.Errorf("%w: unknown report mode %q", apperrors.ErrInvalidInput, mode)
	}

	topic, err := s.topics.Get(ctx, s.db, ownerID, topicID)
	if err != nil {
		return nil, err
	}

	members, err := s.members.ListWithNotes(ctx, s.db, topicID)
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, fmt.Errorf("%w: topic has no members to report on", apperrors.ErrInvalidInput)
	}

	prompt := prompts.BuildReportPrompt(topic.Title, representativeNotes(members))

	response, err := s.client.GenerateResponse(ctx, prompt, prompts.ReportSystemMessage, reportTemperature)
	if err != nil {
		s.logger.Error("Report generation failed",
			zap.String("topic_id", topicID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUpstream, err)
	}

	report, err := llm.ParseJSONResponse[reportResult](response)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed report response: %v", apperrors.ErrUpstream, err)
	}
	if report.Summary == "" {
		return nil, fmt.Errorf("%w: report response has no summary", apperrors.ErrUpstream)
	}

	title, keywords := "", []string(nil)
	if mode == ReportModeFull {
		title = report.Title
		keywords = report.Keywords
	}
	if err := s.topics.UpdateReport(ctx, s.db, ownerID, topicID, title, keywords, report.Summary); err != nil {
		return nil, err
	}

	s.logger.Info("Generated topic report",
		zap.String("topic_id", topicID.String()),
		zap.String("mode", mode),
		zap.String("model", s.client.GetModel()))
	return s.topics.Get(ctx, s.db, ownerID, topicID)
}

// representativeNotes picks the members that best represent the topic:
// evidence_rank first, then score descending, capped at maxReportNotes.
func representativeNotes(members []*models.MemberWithNote) []prompts.ReportNote {
	ranked := make([]*models.MemberWithNote, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		return evidenceLess(ranked[i], ranked[j])
	})
	if len(ranked) > maxReportNotes {
		ranked = ranked[:maxReportNotes]
	}

	notes := make([]prompts.ReportNote, 0, len(ranked))
	for _, m := range ranked {
		note := prompts.ReportNote{
			Title:   m.NoteTitle,
			Excerpt: m.NoteExcerpt,
		}
		if m.EventTime != nil {
			note.EventTime = cluster.DayKeyFromTime(*m.EventTime)
		}
		notes = append(notes, note)
	}
	return notes
}
