package main

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/dd0wney/cluso-deconflict/pkg/constraints"
	"github.com/dd0wney/cluso-deconflict/pkg/logging"
	"github.com/dd0wney/cluso-deconflict/pkg/metrics"
	"github.com/dd0wney/cluso-deconflict/pkg/storage"
)

const exitIntegrity = 5

func (a *app) verifyCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Audit the embedded graph against the deconfliction integrity rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			be, err := a.embeddedGraph(ctx, "verify")
			if err != nil {
				return err
			}
			defer a.closeStore(ctx, be)

			ia := newIntegrityAudit(be.graph, a.metrics, a.log)
			result, err := ia.Run()
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(result); err != nil {
					return err
				}
			} else {
				for _, v := range result.Violations {
					fmt.Fprintf(a.stdout, "%-7s %-26s %s: %s\n", v.Severity, v.Type, v.Constraint, v.Message)
				}
			}

			errs := len(result.GetViolationsBySeverity(constraints.Error))
			if !result.Valid {
				return &exitError{code: exitIntegrity, msg: fmt.Sprintf("integrity check failed: %d errors", errs)}
			}
			if !asJSON {
				fmt.Fprintf(a.stdout, "Graph consistent (%d warnings)\n",
					len(result.GetViolationsBySeverity(constraints.Warning)))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	return cmd
}

// integrityAudit runs the deconfliction constraints over a graph and keeps
// the last result for the health endpoint.
type integrityAudit struct {
	graph     *storage.GraphStorage
	validator *constraints.Validator
	metrics   *metrics.Registry
	logger    logging.Logger

	mu   sync.Mutex
	last *constraints.ValidationResult
}

func newIntegrityAudit(graph *storage.GraphStorage, reg *metrics.Registry, logger logging.Logger) *integrityAudit {
	return &integrityAudit{
		graph:     graph,
		validator: constraints.Deconfliction(),
		metrics:   reg,
		logger:    logger.With(logging.Component("integrity")),
	}
}

func (ia *integrityAudit) Run() (*constraints.ValidationResult, error) {
	result, err := ia.validator.ValidateStorage(ia.graph)
	if err != nil {
		ia.logger.Error("integrity audit failed", logging.Error(err))
		return nil, err
	}

	errs := len(result.GetViolationsBySeverity(constraints.Error))
	ia.metrics.IntegrityViolationsLast.Set(float64(errs))
	if errs > 0 {
		ia.logger.Warn("integrity violations found", logging.Count(errs))
	} else {
		ia.logger.Debug("integrity audit passed")
	}

	ia.mu.Lock()
	ia.last = result
	ia.mu.Unlock()
	return result, nil
}

// Last has the signature health.IntegrityCheck expects
func (ia *integrityAudit) Last() (errs, warnings int, checkedAt time.Time, ok bool) {
	ia.mu.Lock()
	defer ia.mu.Unlock()
	if ia.last == nil {
		return 0, 0, time.Time{}, false
	}
	return len(ia.last.GetViolationsBySeverity(constraints.Error)),
		len(ia.last.GetViolationsBySeverity(constraints.Warning)),
		ia.last.CheckedAt, true
}
