package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/printloom/go-services/internal/design"
	"github.com/printloom/go-services/internal/gateway"
	"github.com/printloom/go-services/internal/locks"
	"github.com/printloom/go-services/internal/store"
	"github.com/printloom/go-services/pkg/logger"
	"github.com/printloom/go-services/pkg/metrics"
)

var (
	// ErrNotFound means the slug has no registered design.
	ErrNotFound = errors.New("publish: design not found")
	// ErrInFlight means another command is already executing for the slug.
	ErrInFlight = errors.New("publish: command already in flight for slug")
	// ErrInvalidTransition means the command is not valid from the record's
	// current state. No external call was made.
	ErrInvalidTransition = errors.New("publish: command not valid for current state")
)

// Options bound the retry behaviour of every step.
type Options struct {
	MaxAttempts int
	Backoff     Backoff
}

func DefaultOptions() Options {
	return Options{
		MaxAttempts: 3,
		Backoff:     Backoff{Base: time.Second, Cap: 30 * time.Second},
	}
}

// Result is the outcome of one command. When the record lands in Retrying,
// RetryAfter tells the caller how long to wait before reissuing; the
// orchestrator itself never sleeps. Upstream failures are not returned as
// errors; callers observe them through the record's status and last_error.
type Result struct {
	Record     *design.Record
	RetryAfter time.Duration
}

// Orchestrator drives one design at a time through its publishing steps with
// idempotency, bounded retry, and single-flight-per-slug semantics. All
// decisions derive from persisted state, so any command is safe to reissue
// after a crash or duplicate request.
type Orchestrator struct {
	designs  *store.Collection
	locker   locks.SlugLocker
	printify gateway.PrintifyGateway
	shopify  gateway.ShopifyGateway
	opts     Options
}

func NewOrchestrator(designs *store.Collection, locker locks.SlugLocker, printify gateway.PrintifyGateway, shopify gateway.ShopifyGateway, opts Options) *Orchestrator {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Orchestrator{
		designs:  designs,
		locker:   locker,
		printify: printify,
		shopify:  shopify,
		opts:     opts,
	}
}

// CreateProduct creates the draft product on the fulfillment service and
// records its id. Reissuing after the id is recorded makes no external call.
func (o *Orchestrator) CreateProduct(ctx context.Context, slug string, spec gateway.ProductSpec) (Result, error) {
	return o.step(ctx, slug, design.CommandCreateProduct, design.StatusCreatingProduct, design.StatusCreated,
		func(ctx context.Context, rec *design.Record) (func(*design.Record), error) {
			ref, err := o.printify.CreateProduct(ctx, spec)
			if err != nil {
				return nil, err
			}
			return func(r *design.Record) {
				r.Printify = &design.PrintifyInfo{
					ShopID:          ref.ShopID,
					BlueprintID:     spec.BlueprintID,
					PrintProviderID: spec.PrintProviderID,
					ProductID:       ref.ID,
					Variants:        variantIDs(spec.Variants),
					PrintAreas:      printAreaPositions(spec.PrintAreas),
				}
			}, nil
		})
}

// PublishProduct publishes the recorded draft product to the storefront.
func (o *Orchestrator) PublishProduct(ctx context.Context, slug string, details gateway.PublishDetails) (Result, error) {
	return o.step(ctx, slug, design.CommandPublishProduct, design.StatusPublishing, design.StatusPublished,
		func(ctx context.Context, rec *design.Record) (func(*design.Record), error) {
			if err := o.printify.PublishProduct(ctx, rec.Printify.ShopID, rec.Printify.ProductID, details); err != nil {
				return nil, err
			}
			return func(r *design.Record) {
				r.Printify.Published = true
			}, nil
		})
}

// SyncImages uploads the given mockup refs to the storefront product.
// Refs already recorded as uploaded are skipped, and refs that land before a
// mid-sync failure are recorded so a retry resumes with the remainder; the
// step only reaches Synced once every ref uploaded.
func (o *Orchestrator) SyncImages(ctx context.Context, slug, productID string, refs []string) (Result, error) {
	return o.step(ctx, slug, design.CommandSyncImages, design.StatusSyncingImages, design.StatusSynced,
		func(ctx context.Context, rec *design.Record) (func(*design.Record), error) {
			pid := productID
			if pid == "" && rec.Shopify != nil {
				pid = rec.Shopify.ProductID
			}
			if pid == "" {
				return nil, gateway.Errf(gateway.KindValidation, "no storefront product id for slug %s", slug)
			}
			pending := pendingRefs(rec, refs)
			uploaded, err := o.shopify.UploadImages(ctx, pid, pending)
			merge := func(r *design.Record) {
				if r.Shopify == nil {
					r.Shopify = &design.ShopifyInfo{ProductID: pid}
				}
				for _, u := range uploaded {
					r.Shopify.UploadedImageRefs = appendUnique(r.Shopify.UploadedImageRefs, normalizeRef(u.Src))
				}
			}
			if err != nil {
				// record partial progress before classifying the failure
				return merge, err
			}
			return merge, nil
		})
}

// call performs the external side effect for a step and, on success, returns
// the merge to apply to the record.
type call func(ctx context.Context, rec *design.Record) (func(*design.Record), error)

// step is the shared command algorithm: acquire the slug's critical section,
// short-circuit if the result is already recorded, persist the in-flight
// marker, make the external call without holding the store lock, then commit
// the classified outcome with a compare-and-swap.
func (o *Orchestrator) step(ctx context.Context, slug string, cmd design.Command, inflight, target design.Status, fn call) (Result, error) {
	release, err := o.locker.TryAcquire(ctx, slug)
	if err != nil {
		if errors.Is(err, locks.ErrHeld) {
			metrics.PublishSteps.WithLabelValues(string(cmd), "conflict").Inc()
			return Result{}, ErrInFlight
		}
		return Result{}, err
	}
	defer release()

	doc, err := o.designs.Get(slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	rec, err := design.Decode(doc.Payload)
	if err != nil {
		return Result{}, err
	}

	// idempotency short-circuit: result already recorded, no external call
	if rec.Completed(cmd) {
		if rec.Status.InFlight() || rec.Status == design.StatusRetrying {
			rec, err = o.persist(slug, doc.Version, func(r *design.Record) {
				r.Status = target
				r.ClearRetryState()
			})
			if err != nil {
				return Result{}, err
			}
		}
		metrics.PublishSteps.WithLabelValues(string(cmd), "noop").Inc()
		return Result{Record: rec}, nil
	}

	if !o.allowed(rec, cmd) {
		metrics.PublishSteps.WithLabelValues(string(cmd), "invalid").Inc()
		return Result{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, cmd, rec.Status)
	}

	// mark the step in flight so crashes leave a resumable trace
	rec, err = o.persist(slug, doc.Version, func(r *design.Record) {
		r.Status = inflight
	})
	if err != nil {
		return Result{}, err
	}
	version := rec.UpdatedVersion

	// external call: no store lock held, slug lock keeps the step single-flight
	merge, callErr := fn(ctx, rec)

	if callErr != nil {
		return o.commitFailure(slug, version, rec, cmd, merge, callErr)
	}

	rec, err = o.persist(slug, version, func(r *design.Record) {
		merge(r)
		r.Status = target
		r.ClearRetryState()
	})
	if err != nil {
		return Result{}, err
	}
	metrics.PublishSteps.WithLabelValues(string(cmd), "success").Inc()
	logger.Infof("publish: %s succeeded for %s (status=%s)", cmd, slug, rec.Status)
	return Result{Record: rec}, nil
}

// allowed extends the record's own transition table with the manual-restart
// case: a Failed record may be retried once the attempt ceiling is raised.
func (o *Orchestrator) allowed(rec *design.Record, cmd design.Command) bool {
	if rec.CanApply(cmd) {
		return true
	}
	return rec.Status == design.StatusFailed && rec.PendingStep == cmd && rec.AttemptCount < o.opts.MaxAttempts
}

// commitFailure classifies a gateway failure and persists the Retrying or
// Failed transition. partial, when non-nil, merges progress that landed
// before the failure.
func (o *Orchestrator) commitFailure(slug string, version int64, rec *design.Record, cmd design.Command, partial func(*design.Record), callErr error) (Result, error) {
	ge := gateway.AsError(callErr)
	retryable := ge.Retryable()

	rec, err := o.persist(slug, version, func(r *design.Record) {
		if partial != nil {
			partial(r)
		}
		r.AttemptCount++
		r.PendingStep = cmd
		r.LastError = &design.StepError{
			Kind:    string(ge.Kind),
			Message: ge.Message,
			At:      time.Now().UTC(),
		}
		if retryable && r.AttemptCount < o.opts.MaxAttempts {
			r.Status = design.StatusRetrying
		} else {
			r.Status = design.StatusFailed
		}
	})
	if err != nil {
		return Result{}, err
	}

	if rec.Status == design.StatusRetrying {
		delay := o.opts.Backoff.Delay(rec.AttemptCount)
		if ge.RetryAfter > delay {
			delay = ge.RetryAfter
		}
		metrics.PublishSteps.WithLabelValues(string(cmd), "retrying").Inc()
		logger.Warnf("publish: %s failed for %s (%s: %s), retry %d/%d in %s", cmd, slug, ge.Kind, ge.Message, rec.AttemptCount, o.opts.MaxAttempts, delay)
		return Result{Record: rec, RetryAfter: delay}, nil
	}
	metrics.PublishSteps.WithLabelValues(string(cmd), "failed").Inc()
	logger.Errorf("publish: %s failed terminally for %s (%s: %s) after %d attempts", cmd, slug, ge.Kind, ge.Message, rec.AttemptCount)
	return Result{Record: rec}, nil
}

// persist commits a record mutation iff the stored version still equals base.
// Under the single-flight guarantee a version change means a protocol
// violation, so ErrConflict is surfaced rather than retried.
func (o *Orchestrator) persist(slug string, base int64, mutate func(*design.Record)) (*design.Record, error) {
	var out *design.Record
	doc, err := o.designs.Upsert(slug, func(cur *store.Document) (json.RawMessage, error) {
		if cur == nil {
			return nil, store.ErrNotFound
		}
		if cur.Version != base {
			return nil, store.ErrConflict
		}
		r, err := design.Decode(cur.Payload)
		if err != nil {
			return nil, err
		}
		mutate(r)
		out = r
		return r.Encode()
	})
	if err != nil {
		return nil, err
	}
	out.UpdatedAt = doc.UpdatedAt
	out.UpdatedVersion = doc.Version
	return out, nil
}

func pendingRefs(rec *design.Record, refs []string) []string {
	done := map[string]bool{}
	if rec.Shopify != nil {
		for _, r := range rec.Shopify.UploadedImageRefs {
			done[normalizeRef(r)] = true
		}
	}
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		if !done[normalizeRef(r)] {
			out = append(out, r)
		}
	}
	return out
}

// normalizeRef drops the query part of a URL ref so presigned URLs for the
// same object compare equal across retries.
func normalizeRef(ref string) string {
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		return ref[:i]
	}
	return ref
}

func appendUnique(list []string, v string) []string {
	for _, e := range list {
		if e == v {
			return list
		}
	}
	return append(list, v)
}

func variantIDs(vs []gateway.Variant) []int {
	out := make([]int, 0, len(vs))
	for _, v := range vs {
		out = append(out, v.ID)
	}
	return out
}

func printAreaPositions(pas []gateway.PrintArea) []string {
	var out []string
	for _, pa := range pas {
		for _, ph := range pa.Placeholders {
			out = appendUnique(out, ph.Position)
		}
	}
	return out
}
