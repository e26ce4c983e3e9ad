package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// The field list of each version is encrypted with AES-256-GCM before write and
// decrypted after read. Rows are never updated or deleted.
type CredentialRepo struct {
	conn   conn
	sealer sealer
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for AES-256-GCM,
// or nil to disable credential storage (all operations will return ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{conn: dbConn(db), sealer: sealer{key: key}}
}

// sealedField is the at-rest JSON shape of a credential field.
type sealedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Append stores a new version with the next sequence number for its listing.
func (r *CredentialRepo) Append(ctx context.Context, v model.CredentialVersion) (model.CredentialVersion, error) {
	fields := make([]sealedField, 0, len(v.Fields))
	for _, f := range v.Fields {
		fields = append(fields, sealedField(f))
	}
	plaintext, err := json.Marshal(fields)
	if err != nil {
		return model.CredentialVersion{}, fmt.Errorf("encode credential fields: %w", err)
	}
	sealed, err := r.sealer.seal(plaintext)
	if err != nil {
		return model.CredentialVersion{}, err
	}

	const query = `
		INSERT INTO credential_versions (id, listing_id, seq, submission, kind, fields, created_by, created_at)
		SELECT ?, ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?, ?
		FROM credential_versions WHERE listing_id = ?
		RETURNING seq
	`

	createdAt := formatTime(v.CreatedAt)
	err = r.conn.writer.QueryRowContext(ctx, query,
		v.ID, v.ListingID, v.Submission, string(v.Kind), sealed, v.CreatedBy, createdAt, v.ListingID,
	).Scan(&v.Seq)
	if err != nil {
		return model.CredentialVersion{}, fmt.Errorf("append credential version for listing %s: %w", v.ListingID, err)
	}

	v.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return model.CredentialVersion{}, err
	}
	return v, nil
}

// Latest returns the version with the highest sequence number, or nil, nil.
func (r *CredentialRepo) Latest(ctx context.Context, listingID string) (*model.CredentialVersion, error) {
	const query = `
		SELECT id, listing_id, seq, submission, kind, fields, created_by, created_at
		FROM credential_versions
		WHERE listing_id = ?
		ORDER BY seq DESC
		LIMIT 1
	`

	v, err := r.scanVersion(r.conn.reader.QueryRowContext(ctx, query, listingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest credential for listing %s: %w", listingID, err)
	}
	return v, nil
}

// GetByID returns a single version, or nil, nil if it does not exist.
func (r *CredentialRepo) GetByID(ctx context.Context, id string) (*model.CredentialVersion, error) {
	const query = `
		SELECT id, listing_id, seq, submission, kind, fields, created_by, created_at
		FROM credential_versions
		WHERE id = ?
	`

	v, err := r.scanVersion(r.conn.reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get credential version %s: %w", id, err)
	}
	return v, nil
}

// History returns all versions of a listing's credentials, oldest first.
func (r *CredentialRepo) History(ctx context.Context, listingID string) ([]model.CredentialVersion, error) {
	const query = `
		SELECT id, listing_id, seq, submission, kind, fields, created_by, created_at
		FROM credential_versions
		WHERE listing_id = ?
		ORDER BY seq
	`

	rows, err := r.conn.reader.QueryContext(ctx, query, listingID)
	if err != nil {
		return nil, fmt.Errorf("credential history for listing %s: %w", listingID, err)
	}
	defer rows.Close()

	var versions []model.CredentialVersion
	for rows.Next() {
		v, err := r.scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential version: %w", err)
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credential versions: %w", err)
	}

	return versions, nil
}

func (r *CredentialRepo) scanVersion(s scanner) (*model.CredentialVersion, error) {
	var (
		v         model.CredentialVersion
		kind      string
		sealed    string
		createdAt string
	)

	if err := s.Scan(&v.ID, &v.ListingID, &v.Seq, &v.Submission, &kind, &sealed, &v.CreatedBy, &createdAt); err != nil {
		return nil, err
	}
	v.Kind = model.CredentialKind(kind)

	plaintext, err := r.sealer.open(sealed)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential version %s: %w", v.ID, err)
	}
	var fields []sealedField
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return nil, fmt.Errorf("decode credential version %s: %w", v.ID, err)
	}
	v.Fields = make([]model.CredentialField, 0, len(fields))
	for _, f := range fields {
		v.Fields = append(v.Fields, model.CredentialField(f))
	}

	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &v, nil
}
