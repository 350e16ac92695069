package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ledgerhouse/checkbook/pkg/audit"
	"github.com/ledgerhouse/checkbook/pkg/permissions"
)

var (
	dbURL            = flag.String("db-url", getEnv("CHECKBOOK_POSTGRES_URL", "postgres://localhost/checkbook?sslmode=disable"), "PostgreSQL connection URL")
	policyFile       = flag.String("policy-file", getEnv("CHECKBOOK_JANITOR_POLICY", ""), "Path to the YAML retention policy file")
	auditSchedule    = flag.String("audit-schedule", "30 0 * * *", "Cron schedule for audit log cleanup (default: 00:30 UTC)")
	requestsSchedule = flag.String("requests-schedule", "45 0 * * *", "Cron schedule for reviewed request cleanup (default: 00:45 UTC)")
	runOnce          = flag.Bool("run-once", false, "Run both cleanups once and exit")
	cutoffDate       = flag.String("cutoff", "", "Cutoff date (YYYY-MM-DD) overriding the retention policy. Only used with --run-once")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	policy, err := LoadPolicy(*policyFile)
	if err != nil {
		logger.WithError(err).Fatal("invalid retention policy")
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("failed to ping database")
	}

	janitor := &janitor{
		logger:     logger,
		policy:     policy,
		auditStore: audit.NewStore(db),
		permStore:  permissions.NewStore(db),
	}

	if policy.Audit.Archive.Enabled {
		archiver, err := audit.NewArchiver(context.Background(), audit.ArchiveConfig{
			Bucket:       policy.Audit.Archive.Bucket,
			Prefix:       policy.Audit.Archive.Prefix,
			Region:       policy.Audit.Archive.Region,
			Endpoint:     policy.Audit.Archive.Endpoint,
			AccessKey:    os.Getenv("CHECKBOOK_ARCHIVE_ACCESS_KEY"),
			SecretKey:    os.Getenv("CHECKBOOK_ARCHIVE_SECRET_KEY"),
			UsePathStyle: policy.Audit.Archive.UsePathStyle,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to configure archiver")
		}
		janitor.archiver = archiver
	}

	if *runOnce {
		auditCutoff, requestCutoff := janitor.cutoffs()
		if *cutoffDate != "" {
			cutoff, err := time.Parse("2006-01-02", *cutoffDate)
			if err != nil {
				logger.WithError(err).Fatal("invalid cutoff date")
			}
			auditCutoff, requestCutoff = cutoff, cutoff
		}

		janitor.cleanupAudit(auditCutoff)
		janitor.cleanupRequests(requestCutoff)
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*auditSchedule, func() {
		cutoff, _ := janitor.cutoffs()
		janitor.cleanupAudit(cutoff)
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule audit cleanup")
	}

	_, err = c.AddFunc(*requestsSchedule, func() {
		_, cutoff := janitor.cutoffs()
		janitor.cleanupRequests(cutoff)
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to schedule request cleanup")
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"audit_schedule":       *auditSchedule,
		"requests_schedule":    *requestsSchedule,
		"audit_retention_days": policy.Audit.RetentionDays,
		"archive_enabled":      policy.Audit.Archive.Enabled,
	}).Info("janitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	<-c.Stop().Done()
}

type janitor struct {
	logger     *logrus.Logger
	policy     Policy
	auditStore *audit.Store
	permStore  *permissions.Store
	archiver   *audit.Archiver
}

// cutoffs derives the audit and request cutoff dates from the policy.
func (j *janitor) cutoffs() (auditCutoff, requestCutoff time.Time) {
	now := time.Now().UTC()
	return now.AddDate(0, 0, -j.policy.Audit.RetentionDays),
		now.AddDate(0, 0, -j.policy.Requests.RetentionDays)
}

// cleanupAudit archives (when configured) then deletes audit entries older
// than the cutoff. Both steps are idempotent, so a crashed run can simply
// be rerun.
func (j *janitor) cleanupAudit(cutoff time.Time) {
	ctx := context.Background()
	log := j.logger.WithField("cutoff", cutoff.Format("2006-01-02"))

	if j.archiver != nil {
		entries, err := j.auditStore.SearchBefore(ctx, cutoff)
		if err != nil {
			log.WithError(err).Error("audit archive query failed, skipping cleanup")
			return
		}
		if len(entries) > 0 {
			key, err := j.archiver.Archive(ctx, entries, cutoff)
			if err != nil {
				log.WithError(err).Error("audit archive upload failed, skipping cleanup")
				return
			}
			log.WithFields(logrus.Fields{"entries": len(entries), "key": key}).Info("audit entries archived")
		}
	}

	deleted, err := j.auditStore.Cleanup(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("audit cleanup failed")
		return
	}
	log.WithField("deleted", deleted).Info("audit cleanup complete")
}

// cleanupRequests deletes reviewed permission requests older than the
// cutoff. Pending requests are never touched.
func (j *janitor) cleanupRequests(cutoff time.Time) {
	ctx := context.Background()
	log := j.logger.WithField("cutoff", cutoff.Format("2006-01-02"))

	purged, err := j.permStore.PurgeReviewedBefore(ctx, cutoff)
	if err != nil {
		log.WithError(err).Error("request cleanup failed")
		return
	}
	log.WithField("purged", purged).Info("request cleanup complete")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
