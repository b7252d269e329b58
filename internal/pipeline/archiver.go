package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/mexcsniper/internal/domain"
)

// Archiver exports each owner's aged orders and calendar events to cold
// storage. The table TTL removes the rows later; nothing is deleted here.
type Archiver struct {
	blob   domain.Archiver
	owners []string
	age    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewArchiver creates an Archiver exporting records older than age.
func NewArchiver(blob domain.Archiver, owners []string, age time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		blob:   blob,
		owners: owners,
		age:    age,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Run performs one archive pass. Owners are processed in turn; a failure for
// one owner is reported after the rest have been tried.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().Add(-a.age)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("owners", len(a.owners)),
	)

	var (
		errs           []error
		orders, events int64
	)
	for _, owner := range a.owners {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := a.blob.ArchiveOrders(ctx, owner, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("archiving orders of %s before %v: %w", owner, cutoff, err))
		}
		orders += n

		n, err = a.blob.ArchiveCalendarEvents(ctx, owner, cutoff)
		if err != nil {
			errs = append(errs, fmt.Errorf("archiving calendar of %s before %v: %w", owner, cutoff, err))
		}
		events += n
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("orders_archived", orders),
		slog.Int64("events_archived", events),
	)
	return errors.Join(errs...)
}

// RunCron runs the archiver on a 5-field cron schedule
// ("minute hour day-of-month month day-of-week") until ctx is cancelled.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	sched, err := parseCron(cronExpr)
	if err != nil {
		return fmt.Errorf("parsing cron expression %q: %w", cronExpr, err)
	}
	a.logger.InfoContext(ctx, "archiver cron started", slog.String("cron", cronExpr))

	for {
		next, err := sched.next(a.now().UTC())
		if err != nil {
			return fmt.Errorf("cron %q: %w", cronExpr, err)
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			a.logger.Info("archiver cron stopped")
			return ctx.Err()
		case <-timer.C:
			if err := a.Run(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}

// cronField is the set of values one cron field accepts.
type cronField map[int]bool

// parseCronField parses "*", "5", "1,15", "1-5" and "*/10" (steps also
// apply to ranges) within [lo, hi].
func parseCronField(field string, lo, hi int) (cronField, error) {
	out := cronField{}
	for _, part := range strings.Split(field, ",") {
		part = strings.TrimSpace(part)
		step := 1
		if base, s, ok := strings.Cut(part, "/"); ok {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("invalid step %q", s)
			}
			part, step = base, n
		}

		from, to := lo, hi
		switch {
		case part == "*":
		case strings.Contains(part, "-"):
			a, b, _ := strings.Cut(part, "-")
			var err1, err2 error
			from, err1 = strconv.Atoi(a)
			to, err2 = strconv.Atoi(b)
			if err1 != nil || err2 != nil {
				return nil, fmt.Errorf("invalid range %q", part)
			}
		default:
			v, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid value %q", part)
			}
			from, to = v, v
		}
		if from < lo || to > hi || from > to {
			return nil, fmt.Errorf("%q outside [%d, %d]", part, lo, hi)
		}
		for v := from; v <= to; v += step {
			out[v] = true
		}
	}
	return out, nil
}

type cronSchedule struct {
	minute, hour, dom, month, dow cronField
}

func parseCron(expr string) (cronSchedule, error) {
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return cronSchedule{}, fmt.Errorf("cron expression must have 5 fields, got %d", len(fields))
	}
	bounds := [5][2]int{{0, 59}, {0, 23}, {1, 31}, {1, 12}, {0, 6}}
	names := [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}
	var parsed [5]cronField
	for i, f := range fields {
		cf, err := parseCronField(f, bounds[i][0], bounds[i][1])
		if err != nil {
			return cronSchedule{}, fmt.Errorf("parsing %s field: %w", names[i], err)
		}
		parsed[i] = cf
	}
	return cronSchedule{parsed[0], parsed[1], parsed[2], parsed[3], parsed[4]}, nil
}

func (c cronSchedule) matches(t time.Time) bool {
	return c.minute[t.Minute()] && c.hour[t.Hour()] && c.dom[t.Day()] &&
		c.month[int(t.Month())] && c.dow[int(t.Weekday())]
}

// next returns the first minute after t that matches, searching one year.
func (c cronSchedule) next(t time.Time) (time.Time, error) {
	candidate := t.Truncate(time.Minute).Add(time.Minute)
	limit := t.Add(366 * 24 * time.Hour)
	for ; candidate.Before(limit); candidate = candidate.Add(time.Minute) {
		if c.matches(candidate) {
			return candidate, nil
		}
	}
	return time.Time{}, errors.New("no matching time within one year")
}
