package estimator

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/large-farva/skylock/internal/catalog"
	"github.com/large-farva/skylock/internal/config"
	"github.com/large-farva/skylock/internal/metrics"
	"github.com/large-farva/skylock/internal/sky"
)

// Propagator is the single capability the estimator needs from a
// catalog. Implementations must be safe for concurrent Propagate calls
// and must enumerate identities in a stable order.
type Propagator interface {
	IDs() []string
	Propagate(id string, at time.Time) (catalog.StateVector, error)
}

var _ Propagator = (*catalog.Snapshot)(nil)

// View is the terminal attitude candidates are scored against: the
// observer's geodetic position, the active grid projection, and the
// desired boresight direction.
type View struct {
	Observer  sky.Observer
	Proj      sky.Projection
	BoreAzDeg float64
	BoreElDeg float64
}

// Candidate is one catalog member visible from the terminal at one
// instant, with its projection onto the obstruction grid.
type Candidate struct {
	ID    string
	State catalog.StateVector
	Topo  sky.Topo
	Cell  sky.Cell
}

// Filter reduces a catalog to the candidates worth scoring: above the
// elevation mask, inside the field-of-view cone around the desired
// boresight, and projectable onto the grid.
type Filter struct {
	log *slog.Logger
	cfg config.SelectorConfig
}

// NewFilter builds a Filter with the given scoring configuration.
func NewFilter(log *slog.Logger, cfg config.SelectorConfig) *Filter {
	return &Filter{log: log, cfg: cfg}
}

// CandidatesAt propagates every catalog member to the instant and keeps
// the visible ones, in ascending identity order. Per-satellite
// propagation failures are absorbed: counted, debug-logged, never
// returned. The only error out is context cancellation.
func (f *Filter) CandidatesAt(ctx context.Context, prop Propagator, view View, at time.Time) ([]Candidate, error) {
	ids := prop.IDs()
	found := make([]*Candidate, len(ids))

	gmst := sky.GMST(at)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, id := range ids {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			sv, err := prop.Propagate(id, at)
			if err != nil {
				metrics.PropagationFailed()
				f.log.Debug("propagation failed", "satellite", id, "err", err)
				return nil
			}

			topo := view.Observer.LookAnglesAt(sv, gmst)
			if topo.ElevationDeg < f.cfg.MinElevation {
				return nil
			}
			if sky.AngularSeparation(topo.ElevationDeg, topo.AzimuthDeg,
				view.BoreElDeg, view.BoreAzDeg) > f.cfg.FOVRadiusDegrees {
				return nil
			}
			cell, ok := view.Proj.ToCell(topo.ElevationDeg, topo.AzimuthDeg)
			if !ok {
				return nil
			}

			found[i] = &Candidate{ID: id, State: sv, Topo: topo, Cell: cell}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// ids is sorted, so compacting preserves ascending identity order.
	out := make([]Candidate, 0, len(ids))
	for _, c := range found {
		if c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}
