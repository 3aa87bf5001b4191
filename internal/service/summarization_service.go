package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"voice2note-be/internal/constant"
	"voice2note-be/internal/entity"
	"voice2note-be/internal/objectpath"
	"voice2note-be/internal/pkg/apperror"
	"voice2note-be/internal/repository/unitofwork"
	"voice2note-be/pkg/llm"
	"voice2note-be/pkg/stt"
	"voice2note-be/pkg/utils"
)

type summarizationStage struct {
	stageBase
	llm     llm.LLMProvider
	timeout time.Duration
	now     func() time.Time
}

func NewSummarizationStage(deps PipelineDeps, provider llm.LLMProvider, callTimeout time.Duration) Stage {
	return &summarizationStage{
		stageBase: newStageBase("summarization", deps),
		llm:       provider,
		timeout:   callTimeout,
		now:       time.Now,
	}
}

func (s *summarizationStage) Handle(ctx context.Context, p objectpath.Path) error {
	ctx, span := s.startSpan(ctx, p)
	defer span.End()

	if err := s.summarizeNote(ctx, p); err != nil {
		return s.fail(ctx, span, p, err)
	}
	return nil
}

func (s *summarizationStage) summarizeNote(ctx context.Context, p objectpath.Path) error {
	if _, err := s.requireNote(ctx, p); err != nil {
		return err
	}

	raw, err := s.read(ctx, p.String())
	if err != nil {
		return err
	}
	transcript, _, err := stt.ParseDocument(raw)
	if err != nil {
		return apperror.Validation("transcript %s: %v", p.AudioKey, err)
	}

	summary, title, err := s.summarize(ctx, transcript)
	if err != nil {
		return err
	}

	processedKey := objectpath.ProcessedTranscript(p.Tenant, p.AudioKey, s.now().Unix())
	processedUri := s.Archive.URI(processedKey)
	doc, err := json.Marshal(entity.ProcessedTranscript{
		Tenant:         p.Tenant.String(),
		ProcessedUri:   processedUri,
		NoteTitle:      title,
		TranscriptText: transcript,
		SummaryText:    summary,
	})
	if err != nil {
		return err
	}
	if err := s.write(ctx, processedKey, doc, "application/json"); err != nil {
		return err
	}

	err = s.advance(ctx, p, entity.StatusSummarized, func(ctx context.Context, uow unitofwork.UnitOfWork) error {
		return uow.TranscriptRepository().Upsert(ctx, p.AudioKey, "", map[string]interface{}{
			entity.TranscriptKeyTitle:        title,
			entity.TranscriptKeySummary:      summary,
			entity.TranscriptKeyProcessedUri: processedUri,
		})
	})
	if err != nil {
		return err
	}

	s.Logger.Info("Pipeline", "transcript summarized", map[string]interface{}{
		"tenant":    p.Tenant.String(),
		"audio_key": p.AudioKey,
		"title":     title,
	})
	return s.publish(ctx, processedKey)
}

// summarize produces the summary first and titles the summary, not the transcript.
func (s *summarizationStage) summarize(ctx context.Context, transcript string) (summary, title string, err error) {
	if strings.TrimSpace(transcript) == "" {
		return "", "", nil
	}

	summary, err = s.complete(ctx, constant.SummaryInstruction, transcript)
	if err != nil {
		return "", "", apperror.Upstream(err, "summary")
	}
	summary = utils.FirstSentences(summary, constant.SummaryMaxSentences)

	title, err = s.complete(ctx, constant.TitleInstruction, summary)
	if err != nil {
		return "", "", apperror.Upstream(err, "title")
	}
	title = utils.FirstWords(utils.StripQuotes(title), constant.NoteTitleMaxWords)
	return summary, title, nil
}

func (s *summarizationStage) complete(ctx context.Context, instruction, input string) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	out, err := s.llm.Chat(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: constant.SummarizerPersona},
		{Role: llm.RoleUser, Content: fmt.Sprintf("%s:\n\n%s", instruction, input)},
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
