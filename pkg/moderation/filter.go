// Package moderation implements the submission denylist as a Rego policy.
//
// The check is a courtesy filter run before a submission leaves the client. The gateway
// only enforces it when configured to.
package moderation

import (
	"context"
	_ "embed"
	"sort"

	"github.com/m-mizutani/bubbleboard/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/open-policy-agent/opa/v1/rego"
)

//go:embed policy/moderation.rego
var defaultPolicy string

// DefaultTerms is the denylist handed to the policy as input.terms.
var DefaultTerms = []string{
	"sex",
	"sexual",
	"porn",
	"nazi",
	"hitler",
	"racist",
	"hate",
	"kill",
	"murder",
	"violence",
}

// Verdict is the outcome of one check.
type Verdict struct {
	Allowed bool
	Terms   []string
}

type Filter struct {
	query *rego.PreparedEvalQuery
	terms []string
}

type Option func(*config)

type config struct {
	policyDir string
	terms     []string
}

// WithPolicyDir replaces the built-in policy with the .rego files in dir. The files must
// define data.moderation.deny as a set of matched terms.
func WithPolicyDir(dir string) Option {
	return func(c *config) {
		c.policyDir = dir
	}
}

// WithTerms replaces the denylist passed to the policy.
func WithTerms(terms []string) Option {
	return func(c *config) {
		c.terms = terms
	}
}

func New(ctx context.Context, opts ...Option) (*Filter, error) {
	cfg := &config{terms: DefaultTerms}
	for _, opt := range opts {
		opt(cfg)
	}

	modules := []func(*rego.Rego){rego.Module("moderation.rego", defaultPolicy)}
	if cfg.policyDir != "" {
		loaded, err := loadModules(cfg.policyDir)
		if err != nil {
			return nil, err
		}
		if len(loaded) == 0 {
			return nil, goerr.New("no policy files found", goerr.V("dir", cfg.policyDir))
		}
		modules = loaded
	}

	query, err := prepareQuery(ctx, modules)
	if err != nil {
		return nil, err
	}

	return &Filter{query: query, terms: cfg.terms}, nil
}

// Check evaluates text against the policy. Matched terms are returned sorted.
func (f *Filter) Check(ctx context.Context, text string) (*Verdict, error) {
	input := map[string]any{
		"text":  text,
		"terms": f.terms,
	}

	rs, err := f.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to evaluate moderation policy")
	}

	verdict := &Verdict{Allowed: true}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return verdict, nil
	}

	matched, ok := rs[0].Expressions[0].Value.([]any)
	if !ok {
		return nil, goerr.New("invalid moderation result: deny is not a set",
			goerr.V("value", rs[0].Expressions[0].Value))
	}

	for _, m := range matched {
		term, ok := m.(string)
		if !ok {
			return nil, goerr.New("invalid moderation result: term is not a string", goerr.V("term", m))
		}
		verdict.Terms = append(verdict.Terms, term)
	}
	sort.Strings(verdict.Terms)
	verdict.Allowed = len(verdict.Terms) == 0

	return verdict, nil
}

// Validate returns model.ErrModerationRejected when text hits the denylist.
func (f *Filter) Validate(ctx context.Context, text string) error {
	verdict, err := f.Check(ctx, text)
	if err != nil {
		return err
	}
	if !verdict.Allowed {
		return goerr.Wrap(model.ErrModerationRejected, "text rejected by moderation policy",
			goerr.V("terms", verdict.Terms))
	}
	return nil
}
