package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/j2kenton/apptrack/internal/classify"
	"github.com/j2kenton/apptrack/internal/mailbox"
	"github.com/j2kenton/apptrack/internal/model"
	"github.com/j2kenton/apptrack/internal/reconcile"
	"github.com/j2kenton/apptrack/internal/resilience"
	"github.com/j2kenton/apptrack/internal/store"
	"github.com/j2kenton/apptrack/pkg/anthropic"
)

// parseDate parses the YYYY-MM-DD form used in reports and suggestions.
func parseDate(s string) (time.Time, error) {
	return time.Parse(model.DateLayout, s)
}

// initStore opens the configured backend. Callers own Close.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return store.NewSQLite(cfg.Store.DatabaseURL)
	}
}

// appEnv bundles the collaborators a reconciling command needs.
type appEnv struct {
	Store    store.Store
	Source   *mailbox.IMAPSource
	Analyzer *classify.Analyzer
	Engine   *reconcile.Engine
}

func (e *appEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initEnv wires store, mail source, classifier tiers, and the engine.
// withMail controls whether an IMAP source is attached; records and
// export work offline.
func initEnv(ctx context.Context, withMail bool) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "init store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	keywords := classify.DefaultKeywords()
	if cfg.Classify.KeywordsFile != "" {
		keywords, err = classify.LoadKeywords(cfg.Classify.KeywordsFile)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load keywords")
		}
	}
	rule := classify.NewRuleClassifier(keywords)

	var ai anthropic.Client
	if cfg.Anthropic.Key != "" {
		ai = anthropic.NewClient(cfg.Anthropic.Key)
	} else {
		zap.L().Info("anthropic key not set, classification runs on keyword rules only")
	}

	throttle := resilience.NewSignatureThrottle(cfg.Reconcile.ThrottleMaxAttempts)
	analyzer := classify.NewAnalyzer(ai, rule, cfg.Classify, cfg.Anthropic, throttle)

	env := &appEnv{
		Store:    st,
		Analyzer: analyzer,
	}

	var source *mailbox.IMAPSource
	if withMail {
		source = mailbox.NewIMAPSource(cfg.Mail)
		env.Source = source
	}

	// A nil *IMAPSource must stay a nil interface inside the engine.
	if source != nil {
		env.Engine = reconcile.NewEngine(source, analyzer, rule, cfg)
	} else {
		env.Engine = reconcile.NewEngine(nil, analyzer, rule, cfg)
	}

	return env, nil
}
