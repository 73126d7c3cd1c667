// Package store persists products, datasets, extent rows and period
// overviews. One Store implementation serves both database backends;
// a small dialect interface isolates the DDL, placeholder style and
// blob encoding that differ between SQLite and PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/terradex/strata/internal/domain"
	"github.com/terradex/strata/internal/ports/output"
)

// dialect abstracts the differences between the supported backends.
type dialect interface {
	// Name identifies the backend in logs.
	Name() string

	// Migrations returns the DDL statements run at startup. Every
	// statement must be idempotent.
	Migrations() []string

	// Rebind converts ?-style placeholders to the backend's style.
	Rebind(query string) string

	// EncodeBlob prepares a byte column value for storage.
	EncodeBlob(data []byte) []byte

	// DecodeBlob reverses EncodeBlob.
	DecodeBlob(data []byte) ([]byte, error)
}

// Store implements the persistence ports over database/sql.
type Store struct {
	db      *sql.DB
	dialect dialect
	logger  *slog.Logger
}

// newStore runs the migrations and wraps the connection.
func newStore(ctx context.Context, db *sql.DB, d dialect, logger *slog.Logger) (*Store, error) {
	for _, stmt := range d.Migrations() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrating %s schema: %w", d.Name(), err)
		}
	}
	logger.Info("store ready", "backend", d.Name())
	return &Store{db: db, dialect: d, logger: logger}, nil
}

// UpsertProduct inserts or updates a product by name and returns its
// reference id. The insert-then-select pair avoids RETURNING, which
// keeps the statement identical across backends.
func (s *Store) UpsertProduct(ctx context.Context, product *domain.Product) (int, error) {
	schemaDoc, err := encodeSchema(product.Schema)
	if err != nil {
		return 0, err
	}
	grid := product.Grid
	if grid == nil {
		grid = domain.NoGrid{}
	}
	gridDoc, err := encodeGrid(grid)
	if err != nil {
		return 0, err
	}
	addedAt := product.AddedAt
	if addedAt.IsZero() {
		addedAt = time.Now()
	}

	const upsert = `
		INSERT INTO product (name, description, metadata_schema, grid_spec, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			description = excluded.description,
			metadata_schema = excluded.metadata_schema,
			grid_spec = excluded.grid_spec
	`
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(upsert),
		product.Name, product.Description, schemaDoc, gridDoc, addedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("upserting product %s: %w", product.Name, err)
	}

	var ref int
	err = s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id FROM product WHERE name = ?`),
		product.Name,
	).Scan(&ref)
	if err != nil {
		return 0, fmt.Errorf("resolving product %s: %w", product.Name, err)
	}
	product.ID = ref
	return ref, nil
}

// GetProduct returns a product by name.
func (s *Store) GetProduct(ctx context.Context, name string) (*domain.Product, error) {
	const query = `
		SELECT id, name, description, metadata_schema, grid_spec, added_at
		FROM product WHERE name = ?
	`
	product, err := scanProduct(s.db.QueryRowContext(ctx, s.dialect.Rebind(query), name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading product %s: %w", name, err)
	}
	return product, nil
}

// ListProducts returns all registered products ordered by name.
func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	const query = `
		SELECT id, name, description, metadata_schema, grid_spec, added_at
		FROM product ORDER BY name
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	defer rows.Close()

	var out []domain.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("listing products: %w", err)
		}
		out = append(out, *product)
	}
	return out, rows.Err()
}

// UpsertDataset inserts a dataset record, replacing the document,
// acquisition range and archived flag if the id already exists.
func (s *Store) UpsertDataset(ctx context.Context, dataset *domain.Dataset) error {
	var ref int
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT id FROM product WHERE name = ?`),
		dataset.Product,
	).Scan(&ref)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("dataset %s: product %s: %w", dataset.ID, dataset.Product, domain.ErrProductNotFound)
	}
	if err != nil {
		return fmt.Errorf("resolving product %s: %w", dataset.Product, err)
	}

	document, err := encodeDocument(dataset.Document)
	if err != nil {
		return err
	}
	added := dataset.Added
	if added.IsZero() {
		added = time.Now()
	}

	const upsert = `
		INSERT INTO dataset (id, product_ref, time_begin, time_end, document, added, archived)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			time_begin = excluded.time_begin,
			time_end = excluded.time_end,
			document = excluded.document,
			archived = excluded.archived
	`
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(upsert),
		dataset.ID.String(), ref,
		nullTime(dataset.Time.Begin), nullTime(dataset.Time.End),
		s.dialect.EncodeBlob(document), added.UTC(), dataset.Archived)
	if err != nil {
		return fmt.Errorf("upserting dataset %s: %w", dataset.ID, err)
	}
	return nil
}

// GetDataset returns one dataset by id.
func (s *Store) GetDataset(ctx context.Context, id uuid.UUID) (*domain.Dataset, error) {
	const query = `
		SELECT d.id, p.name, d.time_begin, d.time_end, d.document, d.added, d.archived
		FROM dataset d JOIN product p ON p.id = d.product_ref
		WHERE d.id = ?
	`
	dataset, err := s.scanDataset(s.db.QueryRowContext(ctx, s.dialect.Rebind(query), id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", id, err)
	}
	return dataset, nil
}

// DatasetsMissingExtent returns the non-archived datasets of a product
// that have no extent row yet.
func (s *Store) DatasetsMissingExtent(ctx context.Context, product string) ([]domain.Dataset, error) {
	const query = `
		SELECT d.id, p.name, d.time_begin, d.time_end, d.document, d.added, d.archived
		FROM dataset d JOIN product p ON p.id = d.product_ref
		WHERE p.name = ? AND d.archived = ?
			AND NOT EXISTS (SELECT 1 FROM dataset_spatial x WHERE x.id = d.id)
		ORDER BY d.added
	`
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), product, false)
	if err != nil {
		return nil, fmt.Errorf("listing unindexed datasets of %s: %w", product, err)
	}
	defer rows.Close()

	var out []domain.Dataset
	for rows.Next() {
		dataset, err := s.scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("listing unindexed datasets of %s: %w", product, err)
		}
		out = append(out, *dataset)
	}
	return out, rows.Err()
}

// CountDatasets returns the number of non-archived datasets of a
// product.
func (s *Store) CountDatasets(ctx context.Context, product string) (int, error) {
	const query = `
		SELECT count(*) FROM dataset d
		JOIN product p ON p.id = d.product_ref
		WHERE p.name = ? AND d.archived = ?
	`
	var count int
	if err := s.db.QueryRowContext(ctx, s.dialect.Rebind(query), product, false).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting datasets of %s: %w", product, err)
	}
	return count, nil
}

// InsertExtents inserts the rows in one transaction, skipping any
// whose dataset id is already present. Extent rows never change once
// written, so the conflict action is DO NOTHING by design of the port.
func (s *Store) InsertExtents(ctx context.Context, rows []domain.DatasetExtent) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("inserting extents: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO dataset_spatial
			(id, product_ref, center_time, creation_time, footprint, srid, grid_x, grid_y, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING
	`
	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(insert))
	if err != nil {
		return 0, fmt.Errorf("inserting extents: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range rows {
		row := &rows[i]
		footprint, err := encodeGeometry(row.Footprint)
		if err != nil {
			return inserted, fmt.Errorf("extent %s: %w", row.ID, err)
		}
		var gridX, gridY interface{}
		if row.GridCell != nil {
			gridX, gridY = int(row.GridCell.X), int(row.GridCell.Y)
		}
		result, err := stmt.ExecContext(ctx,
			row.ID.String(), row.ProductRef,
			row.CenterTime.UTC(), row.CreationTime.UTC(),
			blobOrNil(s.dialect, footprint), row.SRID,
			gridX, gridY, nullInt64(row.SizeBytes))
		if err != nil {
			return inserted, fmt.Errorf("extent %s: %w", row.ID, err)
		}
		if n, err := result.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return inserted, fmt.Errorf("inserting extents: %w", err)
	}
	return inserted, nil
}

// ExtentsForProduct returns all extent rows of a product ordered by
// center time. A limit of 0 means no limit.
func (s *Store) ExtentsForProduct(ctx context.Context, productRef int, limit int) ([]domain.DatasetExtent, error) {
	query := `
		SELECT id, product_ref, center_time, creation_time, footprint, srid, grid_x, grid_y, size_bytes
		FROM dataset_spatial WHERE product_ref = ?
		ORDER BY center_time
	`
	args := []interface{}{productRef}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryExtents(ctx, query, args...)
}

// ExtentsForPeriod returns the extent rows whose center time falls in
// [start, end), ordered by center time.
func (s *Store) ExtentsForPeriod(ctx context.Context, productRef int, start, end time.Time) ([]domain.DatasetExtent, error) {
	query := `
		SELECT id, product_ref, center_time, creation_time, footprint, srid, grid_x, grid_y, size_bytes
		FROM dataset_spatial WHERE product_ref = ?
	`
	args := []interface{}{productRef}
	if !start.IsZero() {
		query += " AND center_time >= ?"
		args = append(args, start.UTC())
	}
	if !end.IsZero() {
		query += " AND center_time < ?"
		args = append(args, end.UTC())
	}
	query += " ORDER BY center_time"
	return s.queryExtents(ctx, query, args...)
}

// CountExtents returns the number of extent rows of a product.
func (s *Store) CountExtents(ctx context.Context, productRef int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		s.dialect.Rebind(`SELECT count(*) FROM dataset_spatial WHERE product_ref = ?`),
		productRef,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting extents: %w", err)
	}
	return count, nil
}

// PutOverview stores an overview under its key, fully replacing any
// previous row for that key.
func (s *Store) PutOverview(ctx context.Context, productRef int, key output.PeriodKey, overview *domain.TimePeriodOverview) error {
	timeline, err := encodeTimeline(overview.TimelineCounts)
	if err != nil {
		return err
	}
	regions, err := encodeRegions(overview.RegionCounts)
	if err != nil {
		return err
	}
	crses, err := encodeCRSSet(overview)
	if err != nil {
		return err
	}
	footprint, err := encodeGeometry(overview.Footprint)
	if err != nil {
		return err
	}

	const upsert = `
		INSERT INTO time_overview
			(product_ref, period_type, start_day, dataset_count,
			 timeline_period, timeline_counts, region_counts,
			 time_begin, time_end,
			 footprint, footprint_crs, footprint_count,
			 newest_creation, crses, size_bytes, generation_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (product_ref, period_type, start_day) DO UPDATE SET
			dataset_count = excluded.dataset_count,
			timeline_period = excluded.timeline_period,
			timeline_counts = excluded.timeline_counts,
			region_counts = excluded.region_counts,
			time_begin = excluded.time_begin,
			time_end = excluded.time_end,
			footprint = excluded.footprint,
			footprint_crs = excluded.footprint_crs,
			footprint_count = excluded.footprint_count,
			newest_creation = excluded.newest_creation,
			crses = excluded.crses,
			size_bytes = excluded.size_bytes,
			generation_time = excluded.generation_time
	`
	_, err = s.db.ExecContext(ctx, s.dialect.Rebind(upsert),
		productRef, string(key.Period), key.StartDay.String(),
		overview.DatasetCount,
		string(overview.TimelinePeriod), timeline, regions,
		nullTime(overview.TimeRange.Begin), nullTime(overview.TimeRange.End),
		blobOrNil(s.dialect, footprint), overview.FootprintCRS, overview.FootprintCount,
		nullTime(overview.NewestDatasetCreation), crses,
		nullInt64(overview.SizeBytes), overview.SummaryGenTime.UTC())
	if err != nil {
		return fmt.Errorf("storing overview %s/%s: %w", key.Period, key.StartDay, err)
	}
	return nil
}

// GetOverview returns the overview stored under a key.
func (s *Store) GetOverview(ctx context.Context, productRef int, key output.PeriodKey) (*domain.TimePeriodOverview, error) {
	const query = `
		SELECT dataset_count, timeline_period, timeline_counts, region_counts,
			time_begin, time_end, footprint, footprint_crs, footprint_count,
			newest_creation, crses, size_bytes, generation_time
		FROM time_overview
		WHERE product_ref = ? AND period_type = ? AND start_day = ?
	`
	row := s.db.QueryRowContext(ctx, s.dialect.Rebind(query),
		productRef, string(key.Period), key.StartDay.String())

	var (
		overview       = domain.NewZeroOverview()
		timelinePeriod string
		timeline       []byte
		regions        []byte
		timeBegin      sql.NullTime
		timeEnd        sql.NullTime
		footprint      []byte
		newestCreation sql.NullTime
		crses          []byte
		sizeBytes      sql.NullInt64
		generationTime time.Time
	)
	err := row.Scan(&overview.DatasetCount, &timelinePeriod, &timeline, &regions,
		&timeBegin, &timeEnd, &footprint, &overview.FootprintCRS, &overview.FootprintCount,
		&newestCreation, &crses, &sizeBytes, &generationTime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOverviewNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading overview %s/%s: %w", key.Period, key.StartDay, err)
	}

	overview.TimelinePeriod = domain.Period(timelinePeriod)
	if overview.TimelineCounts, err = decodeTimeline(timeline); err != nil {
		return nil, err
	}
	if overview.RegionCounts, err = decodeRegions(regions); err != nil {
		return nil, err
	}
	if overview.CRSes, err = decodeCRSSet(crses); err != nil {
		return nil, err
	}
	if len(footprint) > 0 {
		raw, err := s.dialect.DecodeBlob(footprint)
		if err != nil {
			return nil, fmt.Errorf("loading overview footprint: %w", err)
		}
		if overview.Footprint, err = decodeGeometry(raw); err != nil {
			return nil, err
		}
	}
	if timeBegin.Valid {
		overview.TimeRange.Begin = timeBegin.Time.UTC()
	}
	if timeEnd.Valid {
		overview.TimeRange.End = timeEnd.Time.UTC()
	}
	if newestCreation.Valid {
		overview.NewestDatasetCreation = newestCreation.Time.UTC()
	}
	if sizeBytes.Valid {
		overview.SizeBytes = &sizeBytes.Int64
	}
	overview.SummaryGenTime = generationTime.UTC()
	return overview, nil
}

// ListPeriods returns the keys of all stored overviews of a product,
// coarsest first, then by start day.
func (s *Store) ListPeriods(ctx context.Context, productRef int) ([]output.PeriodKey, error) {
	const query = `
		SELECT period_type, start_day FROM time_overview
		WHERE product_ref = ?
		ORDER BY CASE period_type
			WHEN 'all' THEN 0 WHEN 'year' THEN 1 WHEN 'month' THEN 2 ELSE 3
		END, start_day
	`
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), productRef)
	if err != nil {
		return nil, fmt.Errorf("listing overview periods: %w", err)
	}
	defer rows.Close()

	var out []output.PeriodKey
	for rows.Next() {
		var period, startDay string
		if err := rows.Scan(&period, &startDay); err != nil {
			return nil, fmt.Errorf("listing overview periods: %w", err)
		}
		start, err := domain.ParseDate(startDay)
		if err != nil {
			return nil, fmt.Errorf("listing overview periods: %w", err)
		}
		out = append(out, output.PeriodKey{Period: domain.Period(period), StartDay: start})
	}
	return out, rows.Err()
}

// Ping verifies the underlying connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanProduct reads one product row.
func scanProduct(row scanner) (*domain.Product, error) {
	var (
		product   domain.Product
		schemaDoc []byte
		gridDoc   []byte
		addedAt   time.Time
	)
	err := row.Scan(&product.ID, &product.Name, &product.Description, &schemaDoc, &gridDoc, &addedAt)
	if err != nil {
		return nil, err
	}
	if product.Schema, err = decodeSchema(schemaDoc); err != nil {
		return nil, err
	}
	if product.Grid, err = decodeGrid(gridDoc); err != nil {
		return nil, err
	}
	product.AddedAt = addedAt.UTC()
	return &product, nil
}

// scanDataset reads one dataset row, decompressing the document.
func (s *Store) scanDataset(row scanner) (*domain.Dataset, error) {
	var (
		dataset   domain.Dataset
		id        string
		timeBegin sql.NullTime
		timeEnd   sql.NullTime
		document  []byte
		added     time.Time
	)
	err := row.Scan(&id, &dataset.Product, &timeBegin, &timeEnd, &document, &added, &dataset.Archived)
	if err != nil {
		return nil, err
	}
	if dataset.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("dataset id %q: %w", id, err)
	}
	raw, err := s.dialect.DecodeBlob(document)
	if err != nil {
		return nil, fmt.Errorf("dataset %s document: %w", id, err)
	}
	if dataset.Document, err = decodeDocument(raw); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", id, err)
	}
	if timeBegin.Valid {
		dataset.Time.Begin = timeBegin.Time.UTC()
	}
	if timeEnd.Valid {
		dataset.Time.End = timeEnd.Time.UTC()
	}
	dataset.Added = added.UTC()
	return &dataset, nil
}

// queryExtents runs an extent query and scans the result rows.
func (s *Store) queryExtents(ctx context.Context, query string, args ...interface{}) ([]domain.DatasetExtent, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("loading extents: %w", err)
	}
	defer rows.Close()

	var out []domain.DatasetExtent
	for rows.Next() {
		var (
			extent    domain.DatasetExtent
			id        string
			footprint []byte
			gridX     sql.NullInt64
			gridY     sql.NullInt64
			sizeBytes sql.NullInt64
		)
		err := rows.Scan(&id, &extent.ProductRef, &extent.CenterTime, &extent.CreationTime,
			&footprint, &extent.SRID, &gridX, &gridY, &sizeBytes)
		if err != nil {
			return nil, fmt.Errorf("loading extents: %w", err)
		}
		if extent.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("extent id %q: %w", id, err)
		}
		if len(footprint) > 0 {
			raw, err := s.dialect.DecodeBlob(footprint)
			if err != nil {
				return nil, fmt.Errorf("extent %s footprint: %w", id, err)
			}
			if extent.Footprint, err = decodeGeometry(raw); err != nil {
				return nil, fmt.Errorf("extent %s: %w", id, err)
			}
		}
		if gridX.Valid && gridY.Valid {
			extent.GridCell = &domain.GridCell{X: int16(gridX.Int64), Y: int16(gridY.Int64)}
		}
		if sizeBytes.Valid {
			extent.SizeBytes = &sizeBytes.Int64
		}
		extent.CenterTime = extent.CenterTime.UTC()
		extent.CreationTime = extent.CreationTime.UTC()
		out = append(out, extent)
	}
	return out, rows.Err()
}

// nullTime maps a zero time onto SQL NULL.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// nullInt64 maps a nil pointer onto SQL NULL.
func nullInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// blobOrNil encodes a blob column value, keeping nil as SQL NULL.
func blobOrNil(d dialect, data []byte) interface{} {
	if data == nil {
		return nil
	}
	return d.EncodeBlob(data)
}
