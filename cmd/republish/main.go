package main

import (
	"context"
	"os"
	"time"

	"github.com/printloom/go-services/internal/config"
	"github.com/printloom/go-services/internal/design"
	"github.com/printloom/go-services/internal/design/publish"
	"github.com/printloom/go-services/internal/gateway"
	"github.com/printloom/go-services/internal/gateway/printify"
	"github.com/printloom/go-services/internal/gateway/shopify"
	"github.com/printloom/go-services/internal/locks"
	"github.com/printloom/go-services/internal/store"
	"github.com/printloom/go-services/pkg/logger"
)

// republish scans the designs collection and reissues the pending command for
// records parked in Retrying once their backoff delay has elapsed. It fills
// the scheduler role the orchestrator assumes: the orchestrator only reports
// retry delays, it never sleeps.
//
// Run once per invocation (cron friendly), or set REPUBLISH_INTERVAL (e.g.
// 30s) to loop.
func main() {
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}

	designs, err := store.Open(cfg.Store.DataDir, "designs")
	if err != nil {
		logger.Fatalf("failed to open designs collection: %v", err)
	}

	printifyClient := printify.NewClient(printify.Config{
		BaseURL: cfg.Printify.BaseURL,
		Token:   cfg.Printify.Token,
		ShopID:  cfg.Printify.ShopID,
		Timeout: cfg.Printify.Timeout,
	})
	shopifyClient := shopify.NewClient(shopify.Config{
		StoreDomain: cfg.Shopify.StoreDomain,
		AdminToken:  cfg.Shopify.AdminToken,
		APIVersion:  cfg.Shopify.APIVersion,
		Timeout:     cfg.Shopify.Timeout,
	})

	orch := publish.NewOrchestrator(designs, locks.NewMemoryLocker(), printifyClient, shopifyClient, publish.Options{
		MaxAttempts: cfg.Publish.MaxAttempts,
		Backoff:     publish.Backoff{Base: cfg.Publish.BackoffBase, Cap: cfg.Publish.BackoffCap},
	})
	backoff := publish.Backoff{Base: cfg.Publish.BackoffBase, Cap: cfg.Publish.BackoffCap}

	interval := time.Duration(0)
	if v := os.Getenv("REPUBLISH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			interval = d
		} else {
			logger.Warnf("invalid REPUBLISH_INTERVAL %q: %v", v, err)
		}
	}

	for {
		sweep(designs, orch, backoff)
		if interval <= 0 {
			return
		}
		time.Sleep(interval)
	}
}

func sweep(designs *store.Collection, orch *publish.Orchestrator, backoff publish.Backoff) {
	docs, err := designs.List()
	if err != nil {
		logger.Errorf("sweep: list designs: %v", err)
		return
	}
	now := time.Now()
	for _, doc := range docs {
		rec, err := design.Decode(doc.Payload)
		if err != nil {
			logger.Errorf("sweep: decode %s: %v", doc.Key, err)
			continue
		}
		if rec.Status != design.StatusRetrying {
			continue
		}
		if due := doc.UpdatedAt.Add(backoff.Delay(rec.AttemptCount)); now.Before(due) {
			continue
		}
		reissue(orch, rec)
	}
}

func reissue(orch *publish.Orchestrator, rec *design.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var (
		res publish.Result
		err error
	)
	switch rec.PendingStep {
	case design.CommandPublishProduct:
		res, err = orch.PublishProduct(ctx, rec.Slug, gateway.DefaultPublishDetails())
	case design.CommandSyncImages:
		res, err = orch.SyncImages(ctx, rec.Slug, "", rec.Mockups)
	case design.CommandCreateProduct:
		// the product spec is supplied by the caller and not persisted,
		// so the create step cannot be replayed from here
		logger.Warnf("sweep: %s pending create_product, reissue via the API", rec.Slug)
		return
	default:
		logger.Warnf("sweep: %s retrying with unknown pending step %q", rec.Slug, rec.PendingStep)
		return
	}
	if err != nil {
		logger.Errorf("sweep: reissue %s for %s: %v", rec.PendingStep, rec.Slug, err)
		return
	}
	logger.Infof("sweep: reissued %s for %s (status=%s retry_after=%s)", rec.PendingStep, rec.Slug, res.Record.Status, res.RetryAfter)
}
