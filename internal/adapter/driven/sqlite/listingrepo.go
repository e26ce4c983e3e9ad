package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ListingStore = (*ListingRepo)(nil)

// ListingRepo is the SQLite implementation of the ListingStore port interface.
type ListingRepo struct {
	conn conn
}

// NewListingRepo creates a new ListingRepo backed by the given DB.
func NewListingRepo(db *DB) *ListingRepo {
	return &ListingRepo{conn: dbConn(db)}
}

const listingColumns = `id, owner_id, title, platform, username, niche, followers_count, engagement_rate,
	monthly_views, price_cents, description, images, status, featured, credential_state, version,
	created_at, updated_at`

// Create inserts a new listing. Version starts at 1 regardless of the input.
func (r *ListingRepo) Create(ctx context.Context, l model.Listing) error {
	const query = `
		INSERT INTO listings (` + listingColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`

	images, err := encodeImages(l.Images)
	if err != nil {
		return err
	}

	state := l.CredentialState
	if state == "" {
		state = model.CredentialUnsubmitted
	}
	status := l.Status
	if status == "" {
		status = model.ListingStatusActive
	}
	createdAt := formatTime(l.CreatedAt)

	_, err = r.conn.writer.ExecContext(ctx, query,
		l.ID, l.OwnerID, l.Title, l.Platform, l.Username, l.Niche, l.FollowersCount, l.EngagementRate,
		l.MonthlyViews, l.PriceCents, l.Description, images, string(status), boolToInt(l.Featured),
		string(state), createdAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("create listing %s: %w", l.ID, err)
	}
	return nil
}

// GetByID retrieves a listing. Returns nil, nil if the listing does not exist.
func (r *ListingRepo) GetByID(ctx context.Context, id string) (*model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`

	l, err := scanListing(r.conn.reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get listing %s: %w", id, err)
	}
	return l, nil
}

// List returns listings matching the filter, featured first, newest first.
func (r *ListingRepo) List(ctx context.Context, f driven.ListingFilter) ([]model.Listing, error) {
	var (
		where []string
		args  []any
	)

	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if len(f.Statuses) > 0 {
		placeholders := make([]string, 0, len(f.Statuses))
		for _, s := range f.Statuses {
			placeholders = append(placeholders, "?")
			args = append(args, string(s))
		}
		where = append(where, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if f.ExcludeDeleted {
		where = append(where, "status <> ?")
		args = append(args, string(model.ListingStatusDeleted))
	}
	if f.Platform != "" {
		where = append(where, "platform = ?")
		args = append(args, strings.ToLower(f.Platform))
	}
	if f.Niche != "" {
		where = append(where, "niche = ?")
		args = append(args, strings.ToLower(f.Niche))
	}
	if f.MinPriceCents > 0 {
		where = append(where, "price_cents >= ?")
		args = append(args, f.MinPriceCents)
	}
	if f.MaxPriceCents > 0 {
		where = append(where, "price_cents <= ?")
		args = append(args, f.MaxPriceCents)
	}
	if f.MinFollowers > 0 {
		where = append(where, "followers_count >= ?")
		args = append(args, f.MinFollowers)
	}
	if f.VerifiedOnly {
		where = append(where, "credential_state IN (?, ?)")
		args = append(args, string(model.CredentialVerified), string(model.CredentialChanged))
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		like := "%" + escapeLike(strings.ToLower(q)) + "%"
		where = append(where, `(lower(title) LIKE ? ESCAPE '\' OR lower(username) LIKE ? ESCAPE '\' OR niche LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like)
	}

	query := `SELECT ` + listingColumns + ` FROM listings`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY featured DESC, created_at DESC, id`

	rows, err := r.conn.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		listings = append(listings, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate listings: %w", err)
	}

	return listings, nil
}

// CountByOwner counts the owner's listings that have not been deleted.
func (r *ListingRepo) CountByOwner(ctx context.Context, ownerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM listings WHERE owner_id = ? AND status <> ?`

	var n int
	if err := r.conn.reader.QueryRowContext(ctx, query, ownerID, string(model.ListingStatusDeleted)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count listings for owner %s: %w", ownerID, err)
	}
	return n, nil
}

// UpdateDetails overwrites the catalogue fields of a listing.
func (r *ListingRepo) UpdateDetails(ctx context.Context, l model.Listing) error {
	const query = `
		UPDATE listings
		SET title = ?, platform = ?, username = ?, niche = ?, followers_count = ?, engagement_rate = ?,
			monthly_views = ?, price_cents = ?, description = ?, images = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	images, err := encodeImages(l.Images)
	if err != nil {
		return err
	}

	res, err := r.conn.writer.ExecContext(ctx, query,
		l.Title, l.Platform, l.Username, l.Niche, l.FollowersCount, l.EngagementRate,
		l.MonthlyViews, l.PriceCents, l.Description, images,
		formatTime(time.Now()), l.ID, l.Version,
	)
	if err != nil {
		return fmt.Errorf("update listing %s: %w", l.ID, err)
	}
	return r.checkSwapped(ctx, res, l.ID)
}

// UpdateCredentialState moves the listing to state if its version still matches.
func (r *ListingRepo) UpdateCredentialState(ctx context.Context, id string, expectVersion int64, state model.CredentialState) error {
	const query = `
		UPDATE listings
		SET credential_state = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := r.conn.writer.ExecContext(ctx, query, string(state), formatTime(time.Now()), id, expectVersion)
	if err != nil {
		return fmt.Errorf("update credential state of listing %s: %w", id, err)
	}
	return r.checkSwapped(ctx, res, id)
}

// UpdateStatus sets the sale status. Only active listings keep their featured flag.
func (r *ListingRepo) UpdateStatus(ctx context.Context, id string, expectVersion int64, status model.ListingStatus) error {
	const query = `
		UPDATE listings
		SET status = ?,
			featured = CASE WHEN ? = 'active' THEN featured ELSE 0 END,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := r.conn.writer.ExecContext(ctx, query, string(status), string(status), formatTime(time.Now()), id, expectVersion)
	if err != nil {
		return fmt.Errorf("update status of listing %s: %w", id, err)
	}
	return r.checkSwapped(ctx, res, id)
}

// ClearFeatured unsets the featured flag on the owner's listings other than keepID.
func (r *ListingRepo) ClearFeatured(ctx context.Context, ownerID, keepID string) error {
	const query = `
		UPDATE listings
		SET featured = 0, version = version + 1, updated_at = ?
		WHERE owner_id = ? AND featured = 1 AND id <> ?
	`

	if _, err := r.conn.writer.ExecContext(ctx, query, formatTime(time.Now()), ownerID, keepID); err != nil {
		return fmt.Errorf("clear featured listings for owner %s: %w", ownerID, err)
	}
	return nil
}

// SetFeatured marks a listing featured if its version still matches.
func (r *ListingRepo) SetFeatured(ctx context.Context, id string, expectVersion int64) error {
	const query = `
		UPDATE listings
		SET featured = 1, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`

	res, err := r.conn.writer.ExecContext(ctx, query, formatTime(time.Now()), id, expectVersion)
	if err != nil {
		return fmt.Errorf("set featured listing %s: %w", id, err)
	}
	return r.checkSwapped(ctx, res, id)
}

// DeactivateByOwner moves the owner's active listings to inactive.
func (r *ListingRepo) DeactivateByOwner(ctx context.Context, ownerID string) (int64, error) {
	const query = `
		UPDATE listings
		SET status = 'inactive', featured = 0, version = version + 1, updated_at = ?
		WHERE owner_id = ? AND status = 'active'
	`

	res, err := r.conn.writer.ExecContext(ctx, query, formatTime(time.Now()), ownerID)
	if err != nil {
		return 0, fmt.Errorf("deactivate listings for owner %s: %w", ownerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	return n, nil
}

// checkSwapped turns a zero-row compare-and-set into ErrStaleListing or ErrListingNotFound.
func (r *ListingRepo) checkSwapped(ctx context.Context, res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists int
	err = r.conn.reader.QueryRowContext(ctx, `SELECT 1 FROM listings WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("listing %s: %w", id, driven.ErrListingNotFound)
	}
	if err != nil {
		return fmt.Errorf("check listing %s: %w", id, err)
	}
	return fmt.Errorf("listing %s: %w", id, driven.ErrStaleListing)
}

func scanListing(s scanner) (*model.Listing, error) {
	var (
		l                    model.Listing
		images               string
		status, state        string
		createdAt, updatedAt string
	)

	err := s.Scan(
		&l.ID, &l.OwnerID, &l.Title, &l.Platform, &l.Username, &l.Niche, &l.FollowersCount,
		&l.EngagementRate, &l.MonthlyViews, &l.PriceCents, &l.Description, &images, &status,
		&l.Featured, &state, &l.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	l.Status = model.ListingStatus(status)
	if !l.Status.Valid() {
		return nil, fmt.Errorf("listing %s: unknown status %q", l.ID, status)
	}
	l.CredentialState = model.CredentialState(state)
	if !l.CredentialState.Valid() {
		return nil, fmt.Errorf("listing %s: unknown credential state %q", l.ID, state)
	}

	if err := json.Unmarshal([]byte(images), &l.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if l.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if l.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &l, nil
}

func encodeImages(images []string) (string, error) {
	if images == nil {
		images = []string{}
	}
	data, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return string(data), nil
}

// escapeLike escapes LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
