package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/datacove/orangebook-etl/internal/core/domain"
	"github.com/datacove/orangebook-etl/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.Loader = (*Loader)(nil)

// Loader implements driven.Loader using PostgreSQL. Every run is one
// transaction: record upserts, soft deletions, the load_state baseline
// rewrite, and the load_runs audit row commit together or not at all, so a
// failed run leaves the baseline at its prior value and is safe to retry.
type Loader struct {
	db     *DB
	logger *slog.Logger
}

// NewLoader creates a new Loader
func NewLoader(db *DB, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{db: db, logger: logger}
}

// Load applies the delta and the run record atomically. Unchanged records
// are not written, only counted on the run.
func (l *Loader) Load(ctx context.Context, run *domain.LoadRun, delta *domain.Delta) error {
	err := l.db.Transaction(ctx, func(tx *sql.Tx) error {
		for _, rec := range delta.Inserts {
			if err := upsertRecord(ctx, tx, rec); err != nil {
				return fmt.Errorf("insert %s %s: %w", rec.Dataset(), rec.NaturalKey(), err)
			}
			if err := upsertState(ctx, tx, rec); err != nil {
				return fmt.Errorf("state for %s %s: %w", rec.Dataset(), rec.NaturalKey(), err)
			}
		}
		for _, rec := range delta.Updates {
			if err := upsertRecord(ctx, tx, rec); err != nil {
				return fmt.Errorf("update %s %s: %w", rec.Dataset(), rec.NaturalKey(), err)
			}
			if err := upsertState(ctx, tx, rec); err != nil {
				return fmt.Errorf("state for %s %s: %w", rec.Dataset(), rec.NaturalKey(), err)
			}
		}
		for _, key := range delta.Deletions {
			if err := softDelete(ctx, tx, run.Dataset, key); err != nil {
				return fmt.Errorf("delete %s %s: %w", run.Dataset, key, err)
			}
		}
		if err := appendRunTx(ctx, tx, run); err != nil {
			return fmt.Errorf("append run record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	l.logger.Info("load transaction committed",
		"dataset", run.Dataset,
		"run_id", run.ID,
		"inserted", run.Counts.Inserted,
		"updated", run.Counts.Updated,
		"deleted", run.Counts.Deleted,
	)
	return nil
}

// upsertRecord writes one typed record to its dataset table, keyed by
// natural key. A re-appearing key clears any earlier soft deletion.
func upsertRecord(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	switch r := rec.(type) {
	case *domain.ProductRecord:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO products (natural_key, surrogate_id, appl_no, product_no, appl_type,
				ingredient, dosage_form, route, trade_name, applicant, strength, te_code,
				approval_date, is_rld, is_rs, marketing_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (natural_key) DO UPDATE SET
				appl_type = EXCLUDED.appl_type,
				ingredient = EXCLUDED.ingredient,
				dosage_form = EXCLUDED.dosage_form,
				route = EXCLUDED.route,
				trade_name = EXCLUDED.trade_name,
				applicant = EXCLUDED.applicant,
				strength = EXCLUDED.strength,
				te_code = EXCLUDED.te_code,
				approval_date = EXCLUDED.approval_date,
				is_rld = EXCLUDED.is_rld,
				is_rs = EXCLUDED.is_rs,
				marketing_status = EXCLUDED.marketing_status,
				updated_at = now(),
				deleted_at = NULL
		`,
			r.NaturalKey(), r.SurrogateID(), r.ApplNo, r.ProductNo, r.ApplType,
			r.Ingredient, r.DosageForm, r.Route, r.TradeName, r.Applicant, r.Strength, r.TECode,
			NullTime(r.ApprovalDate), r.RLD, r.RS, r.MarketStatus,
		)
		return err

	case *domain.PatentRecord:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO patents (natural_key, appl_no, product_no, appl_type, patent_no,
				patent_expire_date, is_drug_substance, is_drug_product, patent_use_code,
				is_delisted, submission_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (natural_key) DO UPDATE SET
				appl_type = EXCLUDED.appl_type,
				patent_expire_date = EXCLUDED.patent_expire_date,
				is_drug_substance = EXCLUDED.is_drug_substance,
				is_drug_product = EXCLUDED.is_drug_product,
				patent_use_code = EXCLUDED.patent_use_code,
				is_delisted = EXCLUDED.is_delisted,
				submission_date = EXCLUDED.submission_date,
				updated_at = now(),
				deleted_at = NULL
		`,
			r.NaturalKey(), r.ApplNo, r.ProductNo, r.ApplType, r.PatentNo,
			NullTime(r.ExpireDate), r.DrugSubstance, r.DrugProduct, r.UseCode,
			r.Delisted, NullTime(r.SubmissionDate),
		)
		return err

	case *domain.ExclusivityRecord:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exclusivity (natural_key, appl_no, product_no, appl_type,
				exclusivity_code, exclusivity_end_date)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (natural_key) DO UPDATE SET
				appl_type = EXCLUDED.appl_type,
				exclusivity_end_date = EXCLUDED.exclusivity_end_date,
				updated_at = now(),
				deleted_at = NULL
		`,
			r.NaturalKey(), r.ApplNo, r.ProductNo, r.ApplType,
			r.Code, NullTime(r.EndDate),
		)
		return err

	default:
		return fmt.Errorf("unknown record type %T", rec)
	}
}

// upsertState rewrites the baseline entry for one key.
func upsertState(ctx context.Context, tx *sql.Tx, rec domain.Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO load_state (dataset, natural_key, content_hash, loaded_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (dataset, natural_key) DO UPDATE SET
			content_hash = EXCLUDED.content_hash,
			loaded_at = now()
	`, string(rec.Dataset()), rec.NaturalKey(), rec.ContentHash())
	return err
}

// softDelete marks the destination row deleted and removes its baseline
// entry. The row itself stays for the audit trail; if the key reappears in
// a later release the upsert revives it as an insert.
func softDelete(ctx context.Context, tx *sql.Tx, dataset domain.Dataset, key string) error {
	table, err := tableFor(dataset)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE `+table+` SET deleted_at = now(), updated_at = now() WHERE natural_key = $1 AND deleted_at IS NULL`,
		key); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM load_state WHERE dataset = $1 AND natural_key = $2`,
		string(dataset), key)
	return err
}

func tableFor(dataset domain.Dataset) (string, error) {
	switch dataset {
	case domain.DatasetProducts:
		return "products", nil
	case domain.DatasetPatents:
		return "patents", nil
	case domain.DatasetExclusivity:
		return "exclusivity", nil
	}
	return "", fmt.Errorf("%w: no table for dataset %q", domain.ErrInvalidConfig, dataset)
}
