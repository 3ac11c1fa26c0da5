package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/airenas/recscribe/internal/pkg/persistence"
	"github.com/airenas/recscribe/internal/pkg/status"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// DB provides operations with postgresql
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates DB instance
func NewDB(pool *pgxpool.Pool) (*DB, error) {
	if pool == nil {
		return nil, fmt.Errorf("no pool")
	}
	res := &DB{pool: pool}
	return res, nil
}

// Migrate creates missing tables
func (db *DB) Migrate(ctx context.Context) error {
	goapp.Log.Info().Msg("migrating db")
	if _, err := db.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("can't migrate: %w", err)
	}
	return nil
}

const jobFields = `id, recording_id, provider_task_id, status, request_id, submit_time, scheduled_time, end_time,
	usage_seconds, error_message, result_url, created, updated, version`

// LoadRecording loads recording, returns nil if not found
func (db *DB) LoadRecording(ctx context.Context, id string) (*persistence.Recording, error) {
	var res persistence.Recording
	var st string
	err := db.pool.QueryRow(ctx, `SELECT id, COALESCE(audio_url, ''), COALESCE(object_key, ''), status, updated
		FROM recordings WHERE id = $1`, id).Scan(&res.ID, &res.AudioURL, &res.ObjectKey, &st, &res.Updated)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load recording: %w", err)
	}
	res.Status = status.RecordingFrom(st)
	return &res, nil
}

// UpdateRecordingStatus writes recording status
func (db *DB) UpdateRecordingStatus(ctx context.Context, id string, st status.Recording) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE recordings SET status = $2, updated = $3 WHERE id = $1`,
		id, st.String(), time.Now())
	if err != nil {
		return fmt.Errorf("can't update recording: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't update recording, no records found")
	}
	return nil
}

// InsertJob inserts job
func (db *DB) InsertJob(ctx context.Context, job *persistence.Job) error {
	_, err := db.pool.Exec(ctx, `INSERT INTO jobs(id, recording_id, provider_task_id, status, request_id, created, updated, version)
	VALUES($1, $2, $3, $4, $5, $6, $7, 0)`, job.ID, job.RecordingID, job.ProviderTaskID, job.Status.String(),
		job.RequestID, job.Created, job.Updated)
	if err != nil {
		return fmt.Errorf("can't insert job: %w", err)
	}
	job.Version = 0
	return nil
}

// UpdateJob updates job if the version matches
func (db *DB) UpdateJob(ctx context.Context, job *persistence.Job) error {
	cmd, err := db.pool.Exec(ctx, `UPDATE jobs SET
	status = $3,
	submit_time = $4,
	scheduled_time = $5,
	end_time = $6,
	usage_seconds = $7,
	error_message = $8,
	result_url = $9,
	updated = $10,
	version = $2 + 1
	WHERE id = $1 and version = $2`, job.ID, job.Version, job.Status.String(),
		job.SubmitTime, job.ScheduledTime, job.EndTime, job.UsageSeconds, job.ErrorMessage, job.ResultURL, job.Updated)
	if err != nil {
		return fmt.Errorf("can't update job: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return fmt.Errorf("can't update job %s, no records found for version %d", job.ID, job.Version)
	}
	job.Version++
	return nil
}

// LoadJob loads job, returns nil if not found
func (db *DB) LoadJob(ctx context.Context, id string) (*persistence.Job, error) {
	return db.loadJob(ctx, `SELECT `+jobFields+` FROM jobs WHERE id = $1`, id)
}

// LoadLatestJob loads the newest job of the recording, returns nil if not found
func (db *DB) LoadLatestJob(ctx context.Context, recordingID string) (*persistence.Job, error) {
	return db.loadJob(ctx, `SELECT `+jobFields+` FROM jobs WHERE recording_id = $1
		ORDER BY created DESC LIMIT 1`, recordingID)
}

// LoadUnfinishedJobs returns non final jobs and succeeded jobs without transcription
func (db *DB) LoadUnfinishedJobs(ctx context.Context) ([]*persistence.Job, error) {
	rows, err := db.pool.Query(ctx, `SELECT `+jobFields+` FROM jobs j
		WHERE j.status IN ('PENDING', 'RUNNING')
		OR (j.status = 'SUCCEEDED' AND NOT EXISTS (SELECT 1 FROM transcriptions t WHERE t.job_id = j.id))
		ORDER BY j.created`)
	if err != nil {
		return nil, fmt.Errorf("can't select jobs: %w", err)
	}
	defer rows.Close()

	res := []*persistence.Job{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("can't retrieve job: %w", err)
		}
		res = append(res, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("can't retrieve jobs: %w", err)
	}
	return res, nil
}

func (db *DB) loadJob(ctx context.Context, sql string, arg string) (*persistence.Job, error) {
	res, err := scanJob(db.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load job: %w", err)
	}
	return res, nil
}

func scanJob(row pgx.Row) (*persistence.Job, error) {
	var res persistence.Job
	var st string
	err := row.Scan(&res.ID, &res.RecordingID, &res.ProviderTaskID, &st, &res.RequestID, &res.SubmitTime,
		&res.ScheduledTime, &res.EndTime, &res.UsageSeconds, &res.ErrorMessage, &res.ResultURL,
		&res.Created, &res.Updated, &res.Version)
	if err != nil {
		return nil, err
	}
	res.Status = status.From(st)
	return &res, nil
}

// InsertTranscription inserts transcription, a second transcription for the same job is ignored
func (db *DB) InsertTranscription(ctx context.Context, tr *persistence.Transcription) error {
	sentences, err := json.Marshal(tr.Sentences)
	if err != nil {
		return fmt.Errorf("can't marshal sentences: %w", err)
	}
	cmd, err := db.pool.Exec(ctx, `INSERT INTO transcriptions(id, recording_id, job_id, full_text, sentences,
	language, audio_format, audio_sample_rate, created)
	VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9) ON CONFLICT (job_id) DO NOTHING`, tr.ID, tr.RecordingID, tr.JobID,
		tr.FullText, string(sentences), tr.Language, tr.AudioFormat, tr.AudioSampleRate, tr.Created)
	if err != nil {
		return fmt.Errorf("can't insert transcription: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		goapp.Log.Warn().Str("jobID", tr.JobID).Msg("transcription exists")
	}
	return nil
}

// LoadTranscriptionByJob loads transcription, returns nil if not found
func (db *DB) LoadTranscriptionByJob(ctx context.Context, jobID string) (*persistence.Transcription, error) {
	var res persistence.Transcription
	var sentences []byte
	err := db.pool.QueryRow(ctx, `SELECT id, recording_id, job_id, full_text, sentences, language,
	audio_format, audio_sample_rate, created FROM transcriptions WHERE job_id = $1`, jobID).
		Scan(&res.ID, &res.RecordingID, &res.JobID, &res.FullText, &sentences, &res.Language,
			&res.AudioFormat, &res.AudioSampleRate, &res.Created)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("can't load transcription: %w", err)
	}
	if err := json.Unmarshal(sentences, &res.Sentences); err != nil {
		return nil, fmt.Errorf("can't unmarshal sentences: %w", err)
	}
	return &res, nil
}

// Live returns no error if db is reachable and initialized
func (db *DB) Live(ctx context.Context) error {
	var exists bool
	if err := db.pool.QueryRow(ctx, `SELECT EXISTS (SELECT FROM pg_tables WHERE tablename = 'jobs')`).Scan(&exists); err != nil {
		return fmt.Errorf("can't check table: %w", err)
	}
	if !exists {
		return fmt.Errorf("no migration done")
	}
	return nil
}
