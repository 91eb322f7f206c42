package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/licensebot/licensebot/internal/domain"
	"github.com/licensebot/licensebot/internal/observability"
	"github.com/robfig/cron/v3"
)

type LicenseLister interface {
	ListByStatus(ctx context.Context, status domain.LicenseStatus) ([]domain.License, error)
}

type ReconcileReport struct {
	Added   int
	Removed int
	Failed  int
}

// Reconciler repairs the marker role projection: members with an active
// license get the role, members with a revoked one lose it. It never touches
// license records.
type Reconciler struct {
	licenses LicenseLister
	roles    *MarkerRoles
	platform Platform
	log      *slog.Logger
	timeout  time.Duration

	c *cron.Cron
}

func NewReconciler(licenses LicenseLister, roles *MarkerRoles, platform Platform, log *slog.Logger) *Reconciler {
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{
		licenses: licenses,
		roles:    roles,
		platform: platform,
		log:      log,
		timeout:  5 * time.Minute,
		c:        cron.New(),
	}
}

// Start schedules Run on spec (robfig/cron syntax, e.g. "@every 15m").
func (r *Reconciler) Start(spec string) error {
	_, err := r.c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		if _, err := r.Run(ctx); err != nil {
			r.log.Error("role reconcile failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule role reconcile %q: %w", spec, err)
	}
	r.c.Start()
	r.log.Info("role reconciler scheduled", "schedule", spec)
	return nil
}

// Stop waits for a running job to finish.
func (r *Reconciler) Stop() {
	<-r.c.Stop().Done()
}

func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	active, err := r.licenses.ListByStatus(ctx, domain.LicenseStatusActive)
	if err != nil {
		return report, fmt.Errorf("load active licenses: %w", err)
	}
	revoked, err := r.licenses.ListByStatus(ctx, domain.LicenseStatusRevoked)
	if err != nil {
		return report, fmt.Errorf("load revoked licenses: %w", err)
	}

	for _, guildID := range r.platform.GuildIDs() {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		r.reconcileGuild(ctx, guildID, active, revoked, &report)
	}
	r.log.Info("role reconcile finished", "added", report.Added, "removed", report.Removed, "failed", report.Failed)
	return report, nil
}

func (r *Reconciler) reconcileGuild(ctx context.Context, guildID string, active, revoked []domain.License, report *ReconcileReport) {
	var (
		roleID string
		err    error
	)
	if len(active) > 0 {
		roleID, err = r.roles.Ensure(ctx, guildID)
	} else {
		var found bool
		roleID, found, err = r.roles.Resolve(ctx, guildID)
		if err == nil && !found {
			return
		}
	}
	if err != nil {
		report.Failed++
		r.log.Warn("resolve marker role", "guild_id", guildID, "error", err)
		return
	}

	for _, lic := range active {
		r.sync(ctx, guildID, roleID, lic.UserID, true, report)
	}
	for _, lic := range revoked {
		r.sync(ctx, guildID, roleID, lic.UserID, false, report)
	}
}

func (r *Reconciler) sync(ctx context.Context, guildID, roleID, userID string, want bool, report *ReconcileReport) {
	held, err := r.platform.MemberRoles(guildID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return
	}
	if err != nil {
		report.Failed++
		r.log.Warn("fetch member roles", "guild_id", guildID, "user_id", userID, "error", err)
		return
	}
	has := slices.Contains(held, roleID)
	switch {
	case want && !has:
		if err := r.platform.AddRole(guildID, userID, roleID); err != nil {
			report.Failed++
			observability.RecordRoleSync(ctx, "reconcile_add", "error")
			r.log.Warn("add marker role", "guild_id", guildID, "user_id", userID, "error", err)
			return
		}
		report.Added++
		observability.RecordRoleSync(ctx, "reconcile_add", "success")
	case !want && has:
		if err := r.platform.RemoveRole(guildID, userID, roleID); err != nil {
			report.Failed++
			observability.RecordRoleSync(ctx, "reconcile_remove", "error")
			r.log.Warn("remove marker role", "guild_id", guildID, "user_id", userID, "error", err)
			return
		}
		report.Removed++
		observability.RecordRoleSync(ctx, "reconcile_remove", "success")
	}
}
