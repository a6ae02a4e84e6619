package repo

import (
	"github.com/knowdisk/knowdisk/internal/knowerr"
)

// EnqueueJob inserts a job with status=pending, attempt=0.
func (r *Repo) EnqueueJob(j Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		INSERT INTO jobs(job_id, path, job_type, status, reason, attempt, error, next_run_at_ms, created_at_ms, updated_at_ms)
		VALUES (?, ?, ?, 'pending', ?, 0, NULL, ?, ?, ?)
	`, j.JobID, j.Path, string(j.JobType), j.Reason, j.NextRunAtMs, j.CreatedAtMs, j.UpdatedAtMs)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "enqueue job", err)
	}
	return nil
}

// ClaimDueJobs atomically selects the earliest status=pending AND
// nextRunAtMs<=now rows up to limit, sets them to running, increments
// attempt, and returns the claimed rows with their post-update state.
func (r *Repo) ClaimDueJobs(limit int, nowMs int64) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(`
		SELECT job_id FROM jobs
		WHERE status = 'pending' AND next_run_at_ms <= ?
		ORDER BY next_run_at_ms ASC, job_id ASC
		LIMIT ?`, nowMs, limit)
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "select due jobs", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, knowerr.Wrap(knowerr.KindStorage, "scan due job id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, knowerr.Wrap(knowerr.KindStorage, "iterate due jobs", err)
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	updateStmt, err := tx.Prepare(`
		UPDATE jobs SET status = 'running', attempt = attempt + 1, updated_at_ms = ?
		WHERE job_id = ?`)
	if err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "prepare claim update", err)
	}
	defer updateStmt.Close()

	claimed := make([]Job, 0, len(ids))
	for _, id := range ids {
		if _, err := updateStmt.Exec(nowMs, id); err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "claim job", err)
		}

		job, err := scanJob(tx.QueryRow(`
			SELECT job_id, path, job_type, status, reason, attempt, error, next_run_at_ms, created_at_ms, updated_at_ms
			FROM jobs WHERE job_id = ?`, id))
		if err != nil {
			return nil, knowerr.Wrap(knowerr.KindStorage, "read claimed job", err)
		}
		claimed = append(claimed, *job)
	}

	if err := tx.Commit(); err != nil {
		return nil, knowerr.Wrap(knowerr.KindStorage, "commit claim", err)
	}
	return claimed, nil
}

// CompleteJob transitions a job to status=done.
func (r *Repo) CompleteJob(jobID string, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`UPDATE jobs SET status = 'done', error = NULL, updated_at_ms = ? WHERE job_id = ?`, nowMs, jobID)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "complete job", err)
	}
	return nil
}

// FailJob transitions a job to status=failed with a terminal error.
func (r *Repo) FailJob(jobID string, jobErr string, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`UPDATE jobs SET status = 'failed', error = ?, updated_at_ms = ? WHERE job_id = ?`, jobErr, nowMs, jobID)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "fail job", err)
	}
	return nil
}

// RetryJob transitions a job back to pending with the given next run time.
func (r *Repo) RetryJob(jobID string, jobErr string, nextRunAtMs int64, nowMs int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`
		UPDATE jobs SET status = 'pending', error = ?, next_run_at_ms = ?, updated_at_ms = ?
		WHERE job_id = ?`, jobErr, nextRunAtMs, nowMs, jobID)
	if err != nil {
		return knowerr.Wrap(knowerr.KindStorage, "retry job", err)
	}
	return nil
}

// ResetRunningJobsToPending reclaims jobs orphaned by a prior crash. MUST be
// called exactly once at worker start, before new work is scheduled.
func (r *Repo) ResetRunningJobsToPending(nowMs int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(`
		UPDATE jobs SET status = 'pending', updated_at_ms = ?
		WHERE status = 'running'`, nowMs)
	if err != nil {
		return 0, knowerr.Wrap(knowerr.KindStorage, "reset running jobs", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, knowerr.Wrap(knowerr.KindStorage, "count reset jobs", err)
	}
	return int(n), nil
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var jobType, status string
	if err := row.Scan(&j.JobID, &j.Path, &jobType, &status, &j.Reason, &j.Attempt, &j.Error, &j.NextRunAtMs, &j.CreatedAtMs, &j.UpdatedAtMs); err != nil {
		return nil, err
	}
	j.JobType = JobType(jobType)
	j.Status = JobStatus(status)
	return &j, nil
}
