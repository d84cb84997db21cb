package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/progression/internal/domain"
	"github.com/felixgeelhaar/progression/internal/ledger"
)

// EventLedger is the part of the ledger the dispatcher drives
type EventLedger interface {
	Award(ctx context.Context, id domain.Identity, delta int, reason string) (*domain.AwardResult, error)
	AwardLoginBonus(ctx context.Context, id domain.Identity, firstLogin bool) (*domain.AwardResult, error)
	RecordStudyEvent(ctx context.Context, id domain.Identity, date time.Time) (*ledger.StreakResult, error)
	CompleteProblem(ctx context.Context, attempt domain.ProblemAttempt) (*ledger.ProblemOutcome, error)
}

// AwardPublisher receives a notice for every event that changed XP
type AwardPublisher interface {
	PublishAward(ctx context.Context, notice *AwardNotice) error
}

// Dispatcher maps learning events onto ledger operations
type Dispatcher struct {
	ledger    EventLedger
	publisher AwardPublisher
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. publisher may be nil.
func NewDispatcher(l EventLedger, publisher AwardPublisher, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{ledger: l, publisher: publisher, logger: logger}
}

// Handle applies the event. It satisfies EventHandler.
func (d *Dispatcher) Handle(ctx context.Context, event *LearningEvent) error {
	id, err := domain.ParseIdentity(event.UserID, event.ProfileID)
	if err != nil {
		return err
	}
	date, err := event.StudyDate()
	if err != nil {
		return domain.NewValidationError("date", err.Error())
	}

	var (
		award  *domain.AwardResult
		reason string
	)
	switch event.Type {
	case EventProblemSolved, EventProblemAttempted:
		difficulty, err := domain.ParseDifficulty(event.Difficulty)
		if err != nil {
			return err
		}
		outcome, err := d.ledger.CompleteProblem(ctx, domain.ProblemAttempt{
			ID:         event.ID,
			Identity:   id,
			Subject:    event.Subject,
			Difficulty: difficulty,
			Solved:     event.Type == EventProblemSolved,
			HintsUsed:  event.HintsUsed,
			CreatedAt:  date,
		})
		if err != nil {
			return err
		}
		award, reason = outcome.Award, ledger.ReasonProblemSolved

	case EventDailyLogin:
		if award, err = d.ledger.AwardLoginBonus(ctx, id, event.FirstLogin); err != nil {
			return err
		}
		reason = ledger.ReasonDailyLogin
		if event.FirstLogin {
			reason = ledger.ReasonFirstLogin
		}

	case EventStudySession:
		if _, err := d.ledger.RecordStudyEvent(ctx, id, date); err != nil {
			return err
		}

	case EventXPAward:
		if award, err = d.ledger.Award(ctx, id, event.XP, event.Reason); err != nil {
			return err
		}
		reason = event.Reason

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, event.Type)
	}

	if award != nil && d.publisher != nil {
		notice := &AwardNotice{
			EventID:       event.ID,
			UserID:        id.UserID,
			ProfileID:     id.ProfileID,
			Reason:        reason,
			XPGained:      award.XPGained,
			NewTotal:      award.NewTotal,
			NewLevel:      award.NewLevel,
			PreviousLevel: award.PreviousLevel,
			LeveledUp:     award.LeveledUp,
		}
		// The ledger write already happened; a lost notice must not make the
		// broker redeliver the event.
		if err := d.publisher.PublishAward(ctx, notice); err != nil {
			d.logger.Warn("award notice not published", "event_id", event.ID, "error", err)
		}
	}
	return nil
}
