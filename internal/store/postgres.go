package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresStore is the durable record store. All graph invariants are
// enforced above it; this layer only moves rows.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const contentColumns = `
	c.id, c.kind, c.name, c.description, c.seq_number, c.public,
	c.views, c.upvotes, c.downvotes, c.created_at, c.modified_at,
	COALESCE(co.course_id, ch.chapter_id, le.lesson_id),
	COALESCE(ch.course_content_id, le.chapter_content_id)
`

const contentJoins = `
	FROM contents c
	LEFT JOIN courses co ON co.content_id = c.id
	LEFT JOIN chapters ch ON ch.content_id = c.id
	LEFT JOIN lessons le ON le.content_id = c.id
`

func scanContent(row interface{ Scan(...any) error }) (ContentRow, error) {
	var c ContentRow
	var parent sql.NullInt64
	err := row.Scan(
		&c.ID, &c.Kind, &c.Name, &c.Description, &c.SeqNumber, &c.Public,
		&c.Views, &c.Upvotes, &c.Downvotes, &c.CreatedAt, &c.ModifiedAt,
		&c.SpecificID, &parent,
	)
	if err != nil {
		return ContentRow{}, err
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	return c, nil
}

func (s *PostgresStore) InsertContent(ctx context.Context, row ContentRow) (int64, int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin insert content: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO contents (kind, name, description, seq_number, public, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, row.Kind, row.Name, row.Description, row.SeqNumber, row.Public, row.CreatedAt, row.ModifiedAt).Scan(&id)
	if err != nil {
		return 0, 0, fmt.Errorf("insert content: %w", err)
	}

	var specificID int64
	switch row.Kind {
	case KindCourse:
		err = tx.QueryRowContext(ctx,
			`INSERT INTO courses (content_id) VALUES ($1) RETURNING course_id`, id).Scan(&specificID)
	case KindChapter:
		err = tx.QueryRowContext(ctx,
			`INSERT INTO chapters (content_id, course_content_id) VALUES ($1, $2) RETURNING chapter_id`,
			id, row.ParentID).Scan(&specificID)
	case KindLesson:
		err = tx.QueryRowContext(ctx,
			`INSERT INTO lessons (content_id, chapter_content_id) VALUES ($1, $2) RETURNING lesson_id`,
			id, row.ParentID).Scan(&specificID)
	default:
		return 0, 0, fmt.Errorf("insert content: unknown kind %q", row.Kind)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("insert %s row: %w", row.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit insert content: %w", err)
	}
	return id, specificID, nil
}

func (s *PostgresStore) GetContent(ctx context.Context, id int64) (ContentRow, error) {
	row, err := scanContent(s.db.QueryRowContext(ctx,
		`SELECT `+contentColumns+contentJoins+` WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return ContentRow{}, fmt.Errorf("content %d: %w", id, ErrNoRow)
	}
	if err != nil {
		return ContentRow{}, fmt.Errorf("get content: %w", err)
	}
	return row, nil
}

func (s *PostgresStore) ListChildren(ctx context.Context, parentID int64) ([]ContentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+contentJoins+`
		WHERE ch.course_content_id = $1 OR le.chapter_content_id = $1
		ORDER BY c.seq_number
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()

	var out []ContentRow
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateContentMeta(ctx context.Context, id int64, name, description *string, modifiedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contents
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    modified_at = $4
		WHERE id = $1
	`, id, name, description, modifiedAt)
	if err != nil {
		return fmt.Errorf("update content meta: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateSequenceNumbers(ctx context.Context, changes map[int64]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin renumber: %w", err)
	}
	defer tx.Rollback()
	for id, seq := range changes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE contents SET seq_number = $2 WHERE id = $1`, id, seq); err != nil {
			return fmt.Errorf("renumber content %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateParent(ctx context.Context, id, newParentID, seqNumber int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reparent: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE chapters SET course_content_id = $2 WHERE content_id = $1`, id, newParentID)
	if err != nil {
		return fmt.Errorf("reparent chapter: %w", err)
	}
	moved, _ := res.RowsAffected()
	if moved == 0 {
		res, err = tx.ExecContext(ctx,
			`UPDATE lessons SET chapter_content_id = $2 WHERE content_id = $1`, id, newParentID)
		if err != nil {
			return fmt.Errorf("reparent lesson: %w", err)
		}
		if moved, _ = res.RowsAffected(); moved == 0 {
			return fmt.Errorf("reparent content %d: %w", id, ErrNoRow)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE contents SET seq_number = $2, modified_at = NOW() WHERE id = $1`, id, seqNumber); err != nil {
		return fmt.Errorf("reparent seq: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) SetContentVisibility(ctx context.Context, id int64, public bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contents SET public = $2, modified_at = NOW() WHERE id = $1`, id, public)
	if err != nil {
		return fmt.Errorf("set content visibility: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddContentViews(ctx context.Context, id, delta int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE contents SET views = views + $2 WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("add content views: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListKeywords(ctx context.Context) ([]KeywordRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, word, score, content_id FROM keywords ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list keywords: %w", err)
	}
	defer rows.Close()

	var out []KeywordRow
	for rows.Next() {
		var k KeywordRow
		var content sql.NullInt64
		if err := rows.Scan(&k.ID, &k.Word, &k.Score, &content); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		if content.Valid {
			k.ContentID = &content.Int64
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *PostgresStore) InsertKeyword(ctx context.Context, word string, score int, contentID *int64) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO keywords (word, score, content_id) VALUES ($1, $2, $3) RETURNING id`,
		word, score, contentID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert keyword: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) SetKeywordOwner(ctx context.Context, keywordID int64, contentID *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE keywords SET content_id = $2 WHERE id = $1`, keywordID, contentID)
	if err != nil {
		return fmt.Errorf("set keyword owner: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertLessonPart(ctx context.Context, row LessonPartRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert part: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO lesson_parts (lesson_content_id, seq_number, hidden, kind)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, row.LessonID, row.SeqNumber, row.Hidden, row.Kind).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert lesson part: %w", err)
	}

	switch row.Kind {
	case PartParagraph:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO paragraphs (part_id, basic_text, advanced_text) VALUES ($1, $2, $3)`,
			id, row.Paragraph.BasicText, row.Paragraph.AdvancedText)
	case PartEmbeddable:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO embeddables (part_id, uri, media_kind) VALUES ($1, $2, $3)`,
			id, row.Embeddable.URI, row.Embeddable.MediaKind)
	case PartQuiz:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO quiz_questions (part_id, question, quiz_kind) VALUES ($1, $2, $3)`,
			id, row.Quiz.Question, row.Quiz.QuizKind)
		if err == nil {
			for _, answer := range row.Quiz.Answers {
				if _, err = tx.ExecContext(ctx, `
					INSERT INTO quiz_answers (part_id, content, correct, feedback)
					VALUES ($1, $2, $3, $4)
				`, id, answer.Content, answer.Correct, answer.Feedback); err != nil {
					break
				}
			}
		}
	default:
		return 0, fmt.Errorf("insert lesson part: unknown kind %q", row.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("insert %s payload: %w", row.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert part: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) loadPartPayload(ctx context.Context, part *LessonPartRow) error {
	switch part.Kind {
	case PartParagraph:
		var p ParagraphRow
		var advanced sql.NullString
		err := s.db.QueryRowContext(ctx,
			`SELECT basic_text, advanced_text FROM paragraphs WHERE part_id = $1`,
			part.ID).Scan(&p.BasicText, &advanced)
		if err != nil {
			return fmt.Errorf("load paragraph %d: %w", part.ID, err)
		}
		if advanced.Valid {
			p.AdvancedText = &advanced.String
		}
		part.Paragraph = &p
	case PartEmbeddable:
		var e EmbeddableRow
		err := s.db.QueryRowContext(ctx,
			`SELECT uri, media_kind FROM embeddables WHERE part_id = $1`,
			part.ID).Scan(&e.URI, &e.MediaKind)
		if err != nil {
			return fmt.Errorf("load embeddable %d: %w", part.ID, err)
		}
		part.Embeddable = &e
	case PartQuiz:
		var q QuizQuestionRow
		err := s.db.QueryRowContext(ctx,
			`SELECT question, quiz_kind FROM quiz_questions WHERE part_id = $1`,
			part.ID).Scan(&q.Question, &q.QuizKind)
		if err != nil {
			return fmt.Errorf("load quiz %d: %w", part.ID, err)
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT id, content, correct, feedback FROM quiz_answers WHERE part_id = $1 ORDER BY id`,
			part.ID)
		if err != nil {
			return fmt.Errorf("load quiz answers %d: %w", part.ID, err)
		}
		defer rows.Close()
		for rows.Next() {
			var a QuizAnswerRow
			var feedback sql.NullString
			if err := rows.Scan(&a.ID, &a.Content, &a.Correct, &feedback); err != nil {
				return fmt.Errorf("scan quiz answer: %w", err)
			}
			if feedback.Valid {
				a.Feedback = &feedback.String
			}
			q.Answers = append(q.Answers, a)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		part.Quiz = &q
	}
	return nil
}

func (s *PostgresStore) GetLessonPart(ctx context.Context, id int64) (LessonPartRow, error) {
	var part LessonPartRow
	err := s.db.QueryRowContext(ctx, `
		SELECT id, lesson_content_id, seq_number, hidden, kind
		FROM lesson_parts WHERE id = $1
	`, id).Scan(&part.ID, &part.LessonID, &part.SeqNumber, &part.Hidden, &part.Kind)
	if errors.Is(err, sql.ErrNoRows) {
		return LessonPartRow{}, fmt.Errorf("lesson part %d: %w", id, ErrNoRow)
	}
	if err != nil {
		return LessonPartRow{}, fmt.Errorf("get lesson part: %w", err)
	}
	if err := s.loadPartPayload(ctx, &part); err != nil {
		return LessonPartRow{}, err
	}
	return part, nil
}

func (s *PostgresStore) ListLessonParts(ctx context.Context, lessonContentID int64) ([]LessonPartRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, lesson_content_id, seq_number, hidden, kind
		FROM lesson_parts
		WHERE lesson_content_id = $1
		ORDER BY seq_number
	`, lessonContentID)
	if err != nil {
		return nil, fmt.Errorf("list lesson parts: %w", err)
	}
	defer rows.Close()

	var out []LessonPartRow
	for rows.Next() {
		var part LessonPartRow
		if err := rows.Scan(&part.ID, &part.LessonID, &part.SeqNumber, &part.Hidden, &part.Kind); err != nil {
			return nil, fmt.Errorf("scan lesson part: %w", err)
		}
		out = append(out, part)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadPartPayload(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) UpdateLessonPartSeqs(ctx context.Context, changes map[int64]int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin renumber parts: %w", err)
	}
	defer tx.Rollback()
	for id, seq := range changes {
		if _, err := tx.ExecContext(ctx,
			`UPDATE lesson_parts SET seq_number = $2 WHERE id = $1`, id, seq); err != nil {
			return fmt.Errorf("renumber part %d: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) SetLessonPartHidden(ctx context.Context, id int64, hidden bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE lesson_parts SET hidden = $2 WHERE id = $1`, id, hidden)
	if err != nil {
		return fmt.Errorf("set lesson part hidden: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertAmendment(ctx context.Context, row AmendmentRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert amendment: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO amendments (author_id, content_id, kind, significance, tariff, applied, vetoed, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, row.AuthorID, row.ContentID, row.Kind, row.Significance, row.Tariff, row.Applied, row.Vetoed, row.CreatedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert amendment: %w", err)
	}

	switch row.Kind {
	case AmendmentCreation:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO amendment_creations (amendment_id, name, description, seq_number, content_kind, parent_id)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, id, row.Creation.Name, row.Creation.Description, row.Creation.SeqNumber, row.Creation.ContentKind, row.Creation.ParentID)
		if err == nil {
			for _, seed := range row.Creation.Keywords {
				if _, err = tx.ExecContext(ctx, `
					INSERT INTO amendment_creation_keywords (amendment_id, word, score)
					VALUES ($1, $2, $3)
				`, id, seed.Word, seed.Score); err != nil {
					break
				}
			}
		}
	case AmendmentMeta:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO amendment_metas (amendment_id, new_name, new_description)
			VALUES ($1, $2, $3)
		`, id, row.Meta.NewName, row.Meta.NewDescription)
		if err == nil {
			for _, seed := range row.Meta.AddedKeywords {
				if _, err = tx.ExecContext(ctx, `
					INSERT INTO amendment_meta_keywords (amendment_id, word, score)
					VALUES ($1, $2, $3)
				`, id, seed.Word, seed.Score); err != nil {
					break
				}
			}
		}
		if err == nil {
			for _, deleted := range row.Meta.DeletedKeywordIDs {
				if _, err = tx.ExecContext(ctx, `
					INSERT INTO amendment_meta_keywords (amendment_id, deleted_keyword_id)
					VALUES ($1, $2)
				`, id, deleted); err != nil {
					break
				}
			}
		}
	case AmendmentAdoption:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO amendment_adoptions (amendment_id, new_parent_id, receiver)
			VALUES ($1, $2, $3)
		`, id, row.Adoption.NewParentID, row.Adoption.Receiver)
	case AmendmentList:
		for _, change := range row.List {
			if _, err = tx.ExecContext(ctx, `
				INSERT INTO amendment_list_changes (amendment_id, child_content_id, lesson_part_id, new_seq_number, delete_child)
				VALUES ($1, $2, $3, $4, $5)
			`, id, change.ChildContentID, change.LessonPartID, change.NewSeqNumber, change.Delete); err != nil {
				break
			}
		}
	case AmendmentPart:
		_, err = tx.ExecContext(ctx, `
			INSERT INTO amendment_parts (amendment_id, lesson_part_id, seq_number, old_lesson_part_id)
			VALUES ($1, $2, $3, $4)
		`, id, row.Part.LessonPartID, row.Part.SeqNumber, row.Part.OldLessonPartID)
	default:
		return 0, fmt.Errorf("insert amendment: unknown kind %q", row.Kind)
	}
	if err != nil {
		return 0, fmt.Errorf("insert %s detail: %w", row.Kind, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert amendment: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) loadAmendmentDetail(ctx context.Context, row *AmendmentRow) error {
	switch row.Kind {
	case AmendmentCreation:
		var detail CreationDetailRow
		var parent sql.NullInt64
		err := s.db.QueryRowContext(ctx, `
			SELECT name, description, seq_number, content_kind, parent_id
			FROM amendment_creations WHERE amendment_id = $1
		`, row.ID).Scan(&detail.Name, &detail.Description, &detail.SeqNumber, &detail.ContentKind, &parent)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load creation detail %d: %w", row.ID, err)
		}
		if parent.Valid {
			detail.ParentID = &parent.Int64
		}
		seeds, err := s.db.QueryContext(ctx,
			`SELECT word, score FROM amendment_creation_keywords WHERE amendment_id = $1 ORDER BY id`, row.ID)
		if err != nil {
			return fmt.Errorf("load creation keywords %d: %w", row.ID, err)
		}
		defer seeds.Close()
		for seeds.Next() {
			var seed KeywordSeed
			if err := seeds.Scan(&seed.Word, &seed.Score); err != nil {
				return fmt.Errorf("scan creation keyword: %w", err)
			}
			detail.Keywords = append(detail.Keywords, seed)
		}
		if err := seeds.Err(); err != nil {
			return err
		}
		row.Creation = &detail
	case AmendmentMeta:
		var detail MetaDetailRow
		var name, description sql.NullString
		err := s.db.QueryRowContext(ctx, `
			SELECT new_name, new_description FROM amendment_metas WHERE amendment_id = $1
		`, row.ID).Scan(&name, &description)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load meta detail %d: %w", row.ID, err)
		}
		if name.Valid {
			detail.NewName = &name.String
		}
		if description.Valid {
			detail.NewDescription = &description.String
		}
		keywords, err := s.db.QueryContext(ctx, `
			SELECT word, score, deleted_keyword_id
			FROM amendment_meta_keywords WHERE amendment_id = $1 ORDER BY id
		`, row.ID)
		if err != nil {
			return fmt.Errorf("load meta keywords %d: %w", row.ID, err)
		}
		defer keywords.Close()
		for keywords.Next() {
			var word sql.NullString
			var score, deleted sql.NullInt64
			if err := keywords.Scan(&word, &score, &deleted); err != nil {
				return fmt.Errorf("scan meta keyword: %w", err)
			}
			if deleted.Valid {
				detail.DeletedKeywordIDs = append(detail.DeletedKeywordIDs, deleted.Int64)
			} else if word.Valid {
				detail.AddedKeywords = append(detail.AddedKeywords, KeywordSeed{Word: word.String, Score: int(score.Int64)})
			}
		}
		if err := keywords.Err(); err != nil {
			return err
		}
		row.Meta = &detail
	case AmendmentAdoption:
		var detail AdoptionDetailRow
		err := s.db.QueryRowContext(ctx, `
			SELECT new_parent_id, receiver FROM amendment_adoptions WHERE amendment_id = $1
		`, row.ID).Scan(&detail.NewParentID, &detail.Receiver)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load adoption detail %d: %w", row.ID, err)
		}
		row.Adoption = &detail
	case AmendmentList:
		changes, err := s.db.QueryContext(ctx, `
			SELECT child_content_id, lesson_part_id, new_seq_number, delete_child
			FROM amendment_list_changes WHERE amendment_id = $1 ORDER BY id
		`, row.ID)
		if err != nil {
			return fmt.Errorf("load list changes %d: %w", row.ID, err)
		}
		defer changes.Close()
		for changes.Next() {
			var change ListChangeRow
			var child, part, seq sql.NullInt64
			if err := changes.Scan(&child, &part, &seq, &change.Delete); err != nil {
				return fmt.Errorf("scan list change: %w", err)
			}
			if child.Valid {
				change.ChildContentID = &child.Int64
			}
			if part.Valid {
				change.LessonPartID = &part.Int64
			}
			if seq.Valid {
				change.NewSeqNumber = &seq.Int64
			}
			row.List = append(row.List, change)
		}
		if err := changes.Err(); err != nil {
			return err
		}
	case AmendmentPart:
		var detail PartDetailRow
		var part, old sql.NullInt64
		err := s.db.QueryRowContext(ctx, `
			SELECT lesson_part_id, seq_number, old_lesson_part_id
			FROM amendment_parts WHERE amendment_id = $1
		`, row.ID).Scan(&part, &detail.SeqNumber, &old)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load part detail %d: %w", row.ID, err)
		}
		if part.Valid {
			detail.LessonPartID = &part.Int64
		}
		if old.Valid {
			detail.OldLessonPartID = &old.Int64
		}
		row.Part = &detail
	}
	return nil
}

func (s *PostgresStore) scanAmendment(row interface{ Scan(...any) error }) (AmendmentRow, error) {
	var a AmendmentRow
	var author, content sql.NullInt64
	err := row.Scan(&a.ID, &author, &content, &a.Kind, &a.Significance, &a.Tariff, &a.Applied, &a.Vetoed, &a.CreatedAt)
	if err != nil {
		return AmendmentRow{}, err
	}
	if author.Valid {
		a.AuthorID = &author.Int64
	}
	if content.Valid {
		a.ContentID = &content.Int64
	}
	return a, nil
}

const amendmentColumns = `id, author_id, content_id, kind, significance, tariff, applied, vetoed, created_at`

func (s *PostgresStore) GetAmendment(ctx context.Context, id int64) (AmendmentRow, error) {
	a, err := s.scanAmendment(s.db.QueryRowContext(ctx,
		`SELECT `+amendmentColumns+` FROM amendments WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return AmendmentRow{}, fmt.Errorf("amendment %d: %w", id, ErrNoRow)
	}
	if err != nil {
		return AmendmentRow{}, fmt.Errorf("get amendment: %w", err)
	}
	if err := s.loadAmendmentDetail(ctx, &a); err != nil {
		return AmendmentRow{}, err
	}
	return a, nil
}

func (s *PostgresStore) ListAmendmentsForContent(ctx context.Context, contentID int64) ([]AmendmentRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+amendmentColumns+` FROM amendments WHERE content_id = $1 ORDER BY id`, contentID)
	if err != nil {
		return nil, fmt.Errorf("list amendments: %w", err)
	}
	defer rows.Close()

	var out []AmendmentRow
	for rows.Next() {
		a, err := s.scanAmendment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan amendment: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := s.loadAmendmentDetail(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) SetAmendmentTarget(ctx context.Context, amendmentID, contentID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE amendments SET content_id = $2 WHERE id = $1`, amendmentID, contentID)
	if err != nil {
		return fmt.Errorf("set amendment target: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetAmendmentPartID(ctx context.Context, amendmentID, lessonPartID int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE amendment_parts SET lesson_part_id = $2 WHERE amendment_id = $1`, amendmentID, lessonPartID)
	if err != nil {
		return fmt.Errorf("set amendment part: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkAmendmentApplied(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE amendments SET applied = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark amendment applied: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkAmendmentVetoed(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE amendments SET vetoed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark amendment vetoed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetOpinion(ctx context.Context, amendmentID, userID int64) (int, bool, error) {
	var value int
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM opinions WHERE amendment_id = $1 AND user_id = $2`,
		amendmentID, userID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get opinion: %w", err)
	}
	return value, true, nil
}

func (s *PostgresStore) UpsertOpinion(ctx context.Context, amendmentID, userID int64, value int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO opinions (amendment_id, user_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (amendment_id, user_id) DO UPDATE SET value = EXCLUDED.value, created_at = NOW()
	`, amendmentID, userID, value)
	if err != nil {
		return fmt.Errorf("upsert opinion: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteOpinion(ctx context.Context, amendmentID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM opinions WHERE amendment_id = $1 AND user_id = $2`, amendmentID, userID)
	if err != nil {
		return fmt.Errorf("delete opinion: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListOpinions(ctx context.Context, amendmentID int64) ([]OpinionRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT amendment_id, user_id, value, created_at
		FROM opinions WHERE amendment_id = $1 ORDER BY created_at
	`, amendmentID)
	if err != nil {
		return nil, fmt.Errorf("list opinions: %w", err)
	}
	defer rows.Close()

	var out []OpinionRow
	for rows.Next() {
		var o OpinionRow
		if err := rows.Scan(&o.AmendmentID, &o.UserID, &o.Value, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan opinion: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (UserRow, error) {
	var user UserRow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nickname, created_at FROM users WHERE id = $1`, id).
		Scan(&user.ID, &user.Nickname, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRow{}, fmt.Errorf("user %d: %w", id, ErrNoRow)
	}
	if err != nil {
		return UserRow{}, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) EnsureUserByNickname(ctx context.Context, nickname string) (UserRow, error) {
	var user UserRow
	err := s.db.QueryRowContext(ctx,
		`SELECT id, nickname, created_at FROM users WHERE nickname = $1`, nickname).
		Scan(&user.ID, &user.Nickname, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return UserRow{}, fmt.Errorf("lookup user: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (nickname) VALUES ($1) RETURNING id, nickname, created_at`, nickname).
		Scan(&user.ID, &user.Nickname, &user.CreatedAt)
	if err != nil {
		return UserRow{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

// SearchContents is the Postgres full text fallback used when the primary
// search engine is unavailable.
func (s *PostgresStore) SearchContents(ctx context.Context, query string, limit int) ([]ContentRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+contentColumns+contentJoins+`
		WHERE c.public AND c.fts @@ plainto_tsquery('english', $1)
		ORDER BY ts_rank(c.fts, plainto_tsquery('english', $1)) DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search contents: %w", err)
	}
	defer rows.Close()

	var out []ContentRow
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
