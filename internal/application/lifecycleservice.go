package application

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// generatedSecretLength is the length of secrets produced for blank change requests.
const generatedSecretLength = 20

const secretAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$%^&*"

// Waker is notified after a transaction enqueued outbox messages.
type Waker interface {
	Wake()
}

// ChangeResult is the outcome of a credential change: the updated listing and the
// newly appended version, including any generated secrets.
type ChangeResult struct {
	Listing model.Listing
	Version model.CredentialVersion
}

// LifecycleService drives a listing through the credential handoff sequence
// unsubmitted, submitted, verified, changed. Every operation re-reads the listing,
// checks the guard and the state precondition, and writes inside one transaction.
type LifecycleService struct {
	tx      driven.Transactor
	metrics Metrics
	waker   Waker
	now     func() time.Time
}

// NewLifecycleService creates a LifecycleService. metrics and waker may be nil.
func NewLifecycleService(tx driven.Transactor, metrics Metrics, waker Waker) *LifecycleService {
	return &LifecycleService{
		tx:      tx,
		metrics: metricsOrNoop(metrics),
		waker:   waker,
		now:     time.Now,
	}
}

// Submit stores a new original credential version supplied by the listing owner and
// moves the listing to submitted, discarding any earlier verification.
func (s *LifecycleService) Submit(ctx context.Context, actor model.Actor, listingID string, fields []model.CredentialField) (*model.Listing, error) {
	listing, err := s.submit(ctx, actor, listingID, fields)
	s.metrics.ObserveTransition("submit", outcomeKind(err))
	return listing, err
}

func (s *LifecycleService) submit(ctx context.Context, actor model.Actor, listingID string, fields []model.CredentialField) (*model.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	cleaned, err := validateSubmission(listingID, fields)
	if err != nil {
		return nil, err
	}

	var result model.Listing
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleOwner); err != nil {
			return err
		}
		if err := rejectClosed(l); err != nil {
			return err
		}

		submission := int64(1)
		latest, err := st.Credentials.Latest(ctx, l.ID)
		if err != nil {
			return translate(err, "load credentials")
		}
		if latest != nil {
			submission = latest.Submission + 1
		}

		if _, err := st.Credentials.Append(ctx, model.CredentialVersion{
			ID:         uuid.NewString(),
			ListingID:  l.ID,
			Submission: submission,
			Kind:       model.CredentialKindOriginal,
			Fields:     cleaned,
			CreatedBy:  actor.ID,
			CreatedAt:  s.now(),
		}); err != nil {
			return translate(err, "store credentials")
		}

		if err := st.Listings.UpdateCredentialState(ctx, l.ID, l.Version, model.CredentialSubmitted); err != nil {
			return translate(err, "update credential state")
		}

		result = advanced(*l, model.CredentialSubmitted, s.now())
		return nil
	})
	if err != nil {
		return nil, translate(err, "submit credentials")
	}

	slog.Info("credentials submitted", "listing_id", listingID, "actor_id", actor.ID)
	return &result, nil
}

// Verify records that an admin confirmed the submitted credentials.
func (s *LifecycleService) Verify(ctx context.Context, actor model.Actor, listingID string) (*model.Listing, error) {
	listing, err := s.verify(ctx, actor, listingID)
	s.metrics.ObserveTransition("verify", outcomeKind(err))
	return listing, err
}

func (s *LifecycleService) verify(ctx context.Context, actor model.Actor, listingID string) (*model.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(listingID) == "" {
		return nil, validationError("listing id is required", fieldError("listing_id", "required"))
	}

	var result model.Listing
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleAdmin); err != nil {
			return err
		}
		if l.Status == model.ListingStatusDeleted {
			return closedConflict(l)
		}

		switch l.CredentialState {
		case model.CredentialSubmitted:
		case model.CredentialUnsubmitted:
			return stateConflict(CodeCredentialNotSubmitted, "credentials have not been submitted", l)
		default:
			return stateConflict(CodeCredentialVerified, "credentials are already verified", l)
		}

		if err := st.Listings.UpdateCredentialState(ctx, l.ID, l.Version, model.CredentialVerified); err != nil {
			return translate(err, "update credential state")
		}

		result = advanced(*l, model.CredentialVerified, s.now())
		return nil
	})
	if err != nil {
		return nil, translate(err, "verify credentials")
	}

	slog.Info("credentials verified", "listing_id", listingID, "actor_id", actor.ID)
	return &result, nil
}

// Change rotates some or all credential fields after verification. Fields named in
// changes with an empty value receive a generated secret; fields not named carry over.
// The buyer of the paid order, or the owner when there is none, is notified through
// the outbox in the same transaction.
func (s *LifecycleService) Change(ctx context.Context, actor model.Actor, listingID string, changes []model.CredentialField) (*ChangeResult, error) {
	result, err := s.change(ctx, actor, listingID, changes)
	s.metrics.ObserveTransition("change", outcomeKind(err))
	return result, err
}

func (s *LifecycleService) change(ctx context.Context, actor model.Actor, listingID string, changes []model.CredentialField) (*ChangeResult, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(listingID) == "" {
		return nil, validationError("listing id is required", fieldError("listing_id", "required"))
	}
	if len(changes) == 0 {
		return nil, validationError("at least one field must be changed", fieldError("changes", "required"))
	}

	var result ChangeResult
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleAdmin); err != nil {
			return err
		}
		if l.Status == model.ListingStatusDeleted {
			return closedConflict(l)
		}
		if !l.CredentialVerified() {
			return stateConflict(CodeCredentialNotVerified, "credentials must be verified before they can be changed", l)
		}

		latest, err := st.Credentials.Latest(ctx, l.ID)
		if err != nil {
			return translate(err, "load credentials")
		}
		if latest == nil {
			return stateConflict(CodeCredentialNotSubmitted, "listing has no stored credentials", l)
		}

		fields, err := applyChanges(latest.Fields, changes)
		if err != nil {
			return err
		}

		version, err := st.Credentials.Append(ctx, model.CredentialVersion{
			ID:         uuid.NewString(),
			ListingID:  l.ID,
			Submission: latest.Submission,
			Kind:       model.CredentialKindChanged,
			Fields:     fields,
			CreatedBy:  actor.ID,
			CreatedAt:  s.now(),
		})
		if err != nil {
			return translate(err, "store credentials")
		}

		if err := st.Listings.UpdateCredentialState(ctx, l.ID, l.Version, model.CredentialChanged); err != nil {
			return translate(err, "update credential state")
		}

		recipient := l.OwnerID
		order, err := st.Orders.PaidForListing(ctx, l.ID)
		if err != nil {
			return translate(err, "load paid order")
		}
		if order != nil {
			recipient = order.BuyerID
		}

		if err := st.Outbox.Enqueue(ctx, model.OutboxMessage{
			ID:          uuid.NewString(),
			ListingID:   l.ID,
			RecipientID: recipient,
			Template:    model.TemplateCredentialChanged,
			Payload: map[string]string{
				"credential_version_id": version.ID,
				"listing_title":         l.Title,
			},
			CreatedAt: s.now(),
		}); err != nil {
			return translate(err, "enqueue notification")
		}

		result = ChangeResult{
			Listing: advanced(*l, model.CredentialChanged, s.now()),
			Version: version,
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "change credentials")
	}

	s.wake()
	slog.Info("credentials changed", "listing_id", listingID, "actor_id", actor.ID, "version_seq", result.Version.Seq)
	return &result, nil
}

// Delete soft-deletes a listing. Credential versions are kept. When the credentials
// had already been rotated, the owner is notified through the outbox.
func (s *LifecycleService) Delete(ctx context.Context, actor model.Actor, listingID string) error {
	err := s.delete(ctx, actor, listingID)
	s.metrics.ObserveTransition("delete", outcomeKind(err))
	return err
}

func (s *LifecycleService) delete(ctx context.Context, actor model.Actor, listingID string) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if strings.TrimSpace(listingID) == "" {
		return validationError("listing id is required", fieldError("listing_id", "required"))
	}

	var notified bool
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleOwner); err != nil {
			return err
		}
		if err := rejectClosed(l); err != nil {
			return err
		}

		if err := st.Listings.UpdateStatus(ctx, l.ID, l.Version, model.ListingStatusDeleted); err != nil {
			return translate(err, "delete listing")
		}

		if l.CredentialState != model.CredentialChanged {
			return nil
		}

		latest, err := st.Credentials.Latest(ctx, l.ID)
		if err != nil {
			return translate(err, "load credentials")
		}
		payload := map[string]string{"listing_title": l.Title}
		if latest != nil {
			payload["credential_version_id"] = latest.ID
		}

		if err := st.Outbox.Enqueue(ctx, model.OutboxMessage{
			ID:          uuid.NewString(),
			ListingID:   l.ID,
			RecipientID: l.OwnerID,
			Template:    model.TemplateCredentialChangedOnDelete,
			Payload:     payload,
			CreatedAt:   s.now(),
		}); err != nil {
			return translate(err, "enqueue notification")
		}
		notified = true
		return nil
	})
	if err != nil {
		return translate(err, "delete listing")
	}

	if notified {
		s.wake()
	}
	slog.Info("listing deleted", "listing_id", listingID, "actor_id", actor.ID, "owner_notified", notified)
	return nil
}

// MarkFeatured makes the listing the owner's single featured listing. Only premium
// sellers may feature, and only active listings can be featured.
func (s *LifecycleService) MarkFeatured(ctx context.Context, actor model.Actor, listingID string) (*model.Listing, error) {
	listing, err := s.markFeatured(ctx, actor, listingID)
	s.metrics.ObserveTransition("mark_featured", outcomeKind(err))
	return listing, err
}

func (s *LifecycleService) markFeatured(ctx context.Context, actor model.Actor, listingID string) (*model.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(listingID) == "" {
		return nil, validationError("listing id is required", fieldError("listing_id", "required"))
	}

	var result model.Listing
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleOwner); err != nil {
			return err
		}
		if actor.Plan != model.PlanPremium {
			return authorizationError("featuring requires a premium plan", CodePremiumRequired,
				map[string]any{"actor_id": actor.ID, "listing_id": l.ID})
		}
		if l.Status != model.ListingStatusActive {
			return stateConflict(CodeListingNotActive, "only active listings can be featured", l)
		}

		result = *l
		if l.Featured {
			return nil
		}

		if err := st.Listings.ClearFeatured(ctx, l.OwnerID, l.ID); err != nil {
			return translate(err, "clear featured listings")
		}
		if err := st.Listings.SetFeatured(ctx, l.ID, l.Version); err != nil {
			return translate(err, "set featured listing")
		}

		result.Featured = true
		result.Version++
		result.UpdatedAt = s.now()
		return nil
	})
	if err != nil {
		return nil, translate(err, "mark featured")
	}

	slog.Info("listing featured", "listing_id", listingID, "actor_id", actor.ID)
	return &result, nil
}

// CredentialHistory returns every credential version of a listing, oldest first.
// Owners of a sold listing see rotated versions without their values.
func (s *LifecycleService) CredentialHistory(ctx context.Context, actor model.Actor, listingID string) ([]model.CredentialVersion, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(listingID) == "" {
		return nil, validationError("listing id is required", fieldError("listing_id", "required"))
	}

	var history []model.CredentialVersion
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleOwnerOrAdmin); err != nil {
			return err
		}

		history, err = st.Credentials.History(ctx, l.ID)
		if err != nil {
			return translate(err, "load credential history")
		}
		if actor.IsAdmin() {
			return nil
		}

		sold, err := hasBuyer(ctx, st, l)
		if err != nil {
			return err
		}
		if sold {
			history = redactRotations(history)
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "credential history")
	}
	return history, nil
}

// hasBuyer reports whether the listing has been sold or has a paid order.
func hasBuyer(ctx context.Context, st driven.Stores, l *model.Listing) (bool, error) {
	if l.Status == model.ListingStatusSold {
		return true, nil
	}
	order, err := st.Orders.PaidForListing(ctx, l.ID)
	if err != nil {
		return false, translate(err, "load paid order")
	}
	return order != nil, nil
}

// redactRotations hides the values of changed versions. Once a listing has a buyer
// the rotated secrets belong to the buyer alone.
func redactRotations(history []model.CredentialVersion) []model.CredentialVersion {
	out := make([]model.CredentialVersion, len(history))
	for i, v := range history {
		if v.Kind == model.CredentialKindChanged {
			v = v.Redact()
		}
		out[i] = v
	}
	return out
}

func (s *LifecycleService) wake() {
	if s.waker != nil {
		s.waker.Wake()
	}
}

// loadListing reads the listing inside the transaction or returns a not-found error.
func loadListing(ctx context.Context, st driven.Stores, id string) (*model.Listing, error) {
	l, err := st.Listings.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "load listing")
	}
	if l == nil {
		return nil, notFoundError("listing", id)
	}
	return l, nil
}

// rejectClosed fails for sold and deleted listings.
func rejectClosed(l *model.Listing) error {
	if l.ClosedToSeller() {
		return closedConflict(l)
	}
	return nil
}

func closedConflict(l *model.Listing) error {
	if l.Status == model.ListingStatusSold {
		return stateConflict(CodeListingSold, "listing has been sold", l)
	}
	return stateConflict(CodeListingDeleted, "listing has been deleted", l)
}

func stateConflict(code, message string, l *model.Listing) error {
	return conflictError(code, message, map[string]any{
		"listing_id":       l.ID,
		"status":           string(l.Status),
		"credential_state": string(l.CredentialState),
	})
}

// advanced returns l as it reads after a successful credential state write.
func advanced(l model.Listing, state model.CredentialState, now time.Time) model.Listing {
	l.CredentialState = state
	l.Version++
	l.UpdatedAt = now
	return l
}

// validateSubmission trims fields and rejects empty or duplicate entries.
func validateSubmission(listingID string, fields []model.CredentialField) ([]model.CredentialField, error) {
	if strings.TrimSpace(listingID) == "" {
		return nil, validationError("listing id is required", fieldError("listing_id", "required"))
	}
	if len(fields) == 0 {
		return nil, validationError("at least one credential field is required", fieldError("credential", "required"))
	}

	cleaned := make([]model.CredentialField, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for i, f := range fields {
		name := strings.TrimSpace(f.Name)
		value := strings.TrimSpace(f.Value)
		path := fmt.Sprintf("credential[%d]", i)

		if name == "" {
			return nil, validationError("credential field name is required", fieldError(path+".name", "required"))
		}
		if value == "" {
			return nil, validationError("credential field value is required", fieldError(path+".value", "required"))
		}
		key := strings.ToLower(name)
		if seen[key] {
			return nil, validationError("duplicate credential field", fieldError(path+".name", "duplicate: "+name))
		}
		seen[key] = true

		cleaned = append(cleaned, model.CredentialField{Name: name, Value: value})
	}
	return cleaned, nil
}

// applyChanges merges changes into current. Names match case-insensitively and keep
// the stored spelling.
func applyChanges(current []model.CredentialField, changes []model.CredentialField) ([]model.CredentialField, error) {
	index := make(map[string]int, len(current))
	for i, f := range current {
		index[strings.ToLower(f.Name)] = i
	}

	next := make([]model.CredentialField, len(current))
	copy(next, current)

	seen := make(map[string]bool, len(changes))
	for i, c := range changes {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		path := fmt.Sprintf("changes[%d].name", i)

		if key == "" {
			return nil, validationError("change field name is required", fieldError(path, "required"))
		}
		pos, ok := index[key]
		if !ok {
			return nil, validationError("unknown credential field", fieldError(path, "unknown field: "+c.Name))
		}
		if seen[key] {
			return nil, validationError("duplicate change field", fieldError(path, "duplicate: "+c.Name))
		}
		seen[key] = true

		value := strings.TrimSpace(c.Value)
		if value == "" {
			generated, err := generateSecret(generatedSecretLength)
			if err != nil {
				return nil, fmt.Errorf("generate secret: %w", err)
			}
			value = generated
		}
		next[pos].Value = value
	}
	return next, nil
}

// generateSecret returns n characters drawn uniformly from secretAlphabet.
func generateSecret(n int) (string, error) {
	const maxByte = 256 - (256 % len(secretAlphabet))

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if int(b) >= maxByte {
				continue
			}
			out = append(out, secretAlphabet[int(b)%len(secretAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
