// Package policy decides which principal may perform which operation using
// rego policies evaluated by OPA.
package policy

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

const allowQuery = "data.accesstime.authz.allow"

//go:embed policies/*.rego
var embedded embed.FS

// Action names an authorized operation.
type Action string

const (
	ActionSetPackage Action = "set_package"
	ActionPurchase   Action = "purchase"
	ActionGrant      Action = "grant"
	ActionStart      Action = "start"
	ActionPause      Action = "pause"
)

// Input is the document a decision is made on.
type Input struct {
	Action Action
	Caller string
	Owner  string
	Admin  string
}

func (in Input) toMap() map[string]interface{} {
	return map[string]interface{}{
		"action": string(in.Action),
		"caller": in.Caller,
		"owner":  in.Owner,
		"admin":  in.Admin,
	}
}

// Authorizer evaluates the allow rule.
type Authorizer struct {
	policyDir string
	logger    zerolog.Logger

	mu    sync.RWMutex
	query rego.PreparedEvalQuery
}

// NewAuthorizer loads policies from policyDir, or the built-in policy when
// policyDir is empty.
func NewAuthorizer(policyDir string, logger zerolog.Logger) (*Authorizer, error) {
	a := &Authorizer{
		policyDir: policyDir,
		logger:    logger.With().Str("component", "policy").Logger(),
	}

	if err := a.Reload(); err != nil {
		return nil, err
	}

	source := policyDir
	if source == "" {
		source = "embedded"
	}
	a.logger.Info().Str("policy_source", source).Msg("Policy authorizer initialized")

	return a, nil
}

// Reload reloads and recompiles the policies. Evaluations in flight keep
// using the previous query.
func (a *Authorizer) Reload() error {
	modules, err := a.loadModules()
	if err != nil {
		return fmt.Errorf("failed to load policies: %w", err)
	}

	opts := []func(*rego.Rego){rego.Query(allowQuery)}
	for _, module := range modules {
		opts = append(opts, rego.ParsedModule(module))
	}

	query, err := rego.New(opts...).PrepareForEval(context.Background())
	if err != nil {
		return fmt.Errorf("failed to prepare authorization query: %w", err)
	}

	a.mu.Lock()
	a.query = query
	a.mu.Unlock()
	return nil
}

func (a *Authorizer) loadModules() ([]*ast.Module, error) {
	var (
		files []string
		read  func(string) ([]byte, error)
	)

	if a.policyDir == "" {
		matches, err := fs.Glob(embedded, "policies/*.rego")
		if err != nil {
			return nil, fmt.Errorf("failed to glob embedded policies: %w", err)
		}
		files, read = matches, embedded.ReadFile
	} else {
		matches, err := filepath.Glob(filepath.Join(a.policyDir, "*.rego"))
		if err != nil {
			return nil, fmt.Errorf("failed to glob policy files: %w", err)
		}
		files, read = matches, os.ReadFile
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no policy files found in %s", a.policyDir)
	}
	sort.Strings(files)

	modules := make([]*ast.Module, 0, len(files))
	for _, file := range files {
		content, err := read(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read policy file %s: %w", file, err)
		}

		module, err := ast.ParseModule(file, string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse policy file %s: %w", file, err)
		}

		modules = append(modules, module)
		a.logger.Debug().Str("file", file).Str("package", module.Package.Path.String()).Msg("Loaded policy module")
	}

	return modules, nil
}

// Allow reports whether the input is permitted. Evaluation errors deny.
func (a *Authorizer) Allow(ctx context.Context, in Input) (bool, error) {
	startTime := time.Now()

	a.mu.RLock()
	query := a.query
	a.mu.RUnlock()

	results, err := query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return false, fmt.Errorf("authorization query evaluation failed: %w", err)
	}

	a.logger.Debug().
		Str("action", string(in.Action)).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Authorization evaluated")

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("allow is not a boolean: %T", results[0].Expressions[0].Value)
	}
	return allowed, nil
}
