package scheduler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hotchain/hotledger/internal/auth"
	"github.com/hotchain/hotledger/internal/ledger"
	"github.com/hotchain/hotledger/internal/token"
)

// DefaultMaxSteps bounds the clear invocations of one settle pass.
const DefaultMaxSteps = 64

// Bonus is the part of the contract a settler drives.
type Bonus interface {
	Round(ctx context.Context) (ledger.BonusRound, error)
	SupplyOf(ctx context.Context, code string) (ledger.SupplyRecord, error)
	ClearBonus(ctx context.Context) (token.ClearResult, error)
	CloseBonus(ctx context.Context, force bool) error
}

// SettleReport summarizes one settle pass.
type SettleReport struct {
	Round       uint64 `json:"round"`
	Invocations int    `json:"invocations"`
	Payouts     int    `json:"payouts"`
	Paid        int    `json:"paid"`
	Failed      int    `json:"failed"`
	Closed      bool   `json:"closed"`
}

// Settler repeatedly clears the active round and runs the payouts each clear
// schedules until the round closes.
type Settler struct {
	bonus    Bonus
	runner   *Runner
	maxSteps int
	logger   *slog.Logger
}

// NewSettler constructs a settler; maxSteps <= 0 uses DefaultMaxSteps.
func NewSettler(bonus Bonus, runner *Runner, maxSteps int, logger *slog.Logger) *Settler {
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	return &Settler{bonus: bonus, runner: runner, maxSteps: maxSteps, logger: logger}
}

// Settle runs at most maxSteps clear invocations, signed by the pool issuer.
// It is a no-op when no round is clearing.
func (s *Settler) Settle(ctx context.Context) (SettleReport, error) {
	var report SettleReport
	round, err := s.bonus.Round(ctx)
	if errors.Is(err, ledger.ErrNotFound) {
		return report, nil
	}
	if err != nil {
		return report, err
	}
	if !round.Clearing {
		return report, nil
	}
	report.Round = round.Round

	st, err := s.bonus.SupplyOf(ctx, round.Bonus.Symbol.Code)
	if err != nil {
		return report, err
	}
	ctx = auth.WithSigners(ctx, st.Issuer)

	// leftovers of an interrupted pass run before the next selection
	if err := s.drain(ctx, &report); err != nil {
		s.logger.Warn("settle drain", slog.Uint64("round", round.Round), slog.Any("error", err))
	}
	if round, err = s.bonus.Round(ctx); err != nil {
		return report, err
	}
	report.Closed = !round.Clearing

	for !report.Closed && report.Invocations < s.maxSteps {
		res, err := s.bonus.ClearBonus(ctx)
		if err != nil {
			return report, err
		}
		report.Invocations++
		report.Payouts += len(res.Payouts)

		drainErr := s.drain(ctx, &report)
		if drainErr != nil {
			s.logger.Warn("settle drain", slog.Uint64("round", round.Round), slog.Any("error", drainErr))
		}

		current, err := s.bonus.Round(ctx)
		if err != nil {
			return report, err
		}
		if !current.Clearing {
			report.Closed = true
			continue
		}
		if res.Done && drainErr == nil {
			if err := s.bonus.CloseBonus(ctx, false); err != nil {
				return report, err
			}
			report.Closed = true
		}
	}

	s.logger.Info("settle pass finished",
		slog.Uint64("round", report.Round),
		slog.Int("invocations", report.Invocations),
		slog.Int("payouts", report.Payouts),
		slog.Int("failed", report.Failed),
		slog.Bool("closed", report.Closed),
	)
	return report, nil
}

func (s *Settler) drain(ctx context.Context, report *SettleReport) error {
	dr, err := s.runner.Drain(ctx)
	report.Paid += dr.Paid
	report.Failed += dr.Failed
	return err
}
