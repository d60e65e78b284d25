package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/examflow/examflow-backend/internal/model"
)

// ExamRepository serves the read contracts of the exam and question-bank
// collaborators. The core only reads these tables; authoring lives in a
// separate service that shares the database.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetExam returns the exam definition or model.ErrExamNotFound.
func (r *ExamRepository) GetExam(ctx context.Context, examID uuid.UUID) (*model.ExamDefinition, error) {
	def := &model.ExamDefinition{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, duration_minutes, pass_threshold
		 FROM exams WHERE id = $1`, examID,
	).Scan(&def.ID, &def.Title, &def.DurationMinutes, &def.PassThreshold)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrExamNotFound
		}
		return nil, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id FROM questions WHERE exam_id = $1 ORDER BY position`, examID)
	if err != nil {
		return nil, fmt.Errorf("load question ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var qid uuid.UUID
		if err := rows.Scan(&qid); err != nil {
			return nil, err
		}
		def.QuestionIDs = append(def.QuestionIDs, qid)
	}
	return def, rows.Err()
}

// GetCorrectness resolves point values and correct option sets for the given
// question ids in one batched query. Identifiers with no record come back in
// the missing slice so callers can decide whether that is retriable.
func (r *ExamRepository) GetCorrectness(ctx context.Context, questionIDs []uuid.UUID) (map[uuid.UUID]model.QuestionKey, []uuid.UUID, error) {
	keys := make(map[uuid.UUID]model.QuestionKey, len(questionIDs))
	if len(questionIDs) == 0 {
		return keys, nil, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, points, correct_options
		 FROM questions WHERE id = ANY($1)`, questionIDs)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var k model.QuestionKey
		if err := rows.Scan(&k.QuestionID, &k.Points, &k.CorrectOptions); err != nil {
			return nil, nil, err
		}
		// Answers store selections sorted; keys must compare the same way.
		slices.Sort(k.CorrectOptions)
		keys[k.QuestionID] = k
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var missing []uuid.UUID
	for _, id := range questionIDs {
		if _, ok := keys[id]; !ok {
			missing = append(missing, id)
		}
	}
	return keys, missing, nil
}
