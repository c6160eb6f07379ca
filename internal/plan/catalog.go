package plan

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"github.com/taxfolio/billing/internal/config"
	"go.uber.org/zap"
)

// DefaultPlans returns the built-in catalog used when no plans.yml is present.
func DefaultPlans() []Plan {
	return []Plan{
		{
			ID:       "FREE",
			Name:     "Free",
			Price:    0,
			Currency: "INR",
			Interval: IntervalMonthly,
			Entitlements: Entitlements{
				MaxUsers:     1,
				MaxStorageMB: 100,
				MaxAPICalls:  1_000,
			},
		},
		{
			ID:       "PERSONAL",
			Name:     "Personal",
			Price:    9_900,
			Currency: "INR",
			Interval: IntervalMonthly,
			Entitlements: Entitlements{
				MaxUsers:     1,
				MaxStorageMB: 1_024,
				MaxAPICalls:  10_000,
			},
		},
		{
			ID:       "BUSINESS",
			Name:     "Business",
			Price:    299_900,
			Currency: "INR",
			Interval: IntervalMonthly,
			Entitlements: Entitlements{
				MaxUsers:     25,
				MaxStorageMB: 51_200,
				MaxAPICalls:  500_000,
			},
		},
		{
			ID:       "ENTERPRISE",
			Name:     "Enterprise",
			Price:    999_900,
			Currency: "INR",
			Interval: IntervalMonthly,
			Entitlements: Entitlements{
				MaxUsers:     Unlimited,
				MaxStorageMB: Unlimited,
				MaxAPICalls:  Unlimited,
			},
		},
	}
}

type snapshot struct {
	plans   map[string]Plan
	ordered []Plan
	version int64
}

// Catalog is a hot-reloadable plan registry. Lookups never block on
// reloads; readers always see a complete catalog snapshot.
type Catalog struct {
	current atomic.Value // holds snapshot
	log     *zap.Logger
}

// NewCatalog loads plans.yml from the configured search paths, falling
// back to the built-in defaults, and watches the file for changes.
func NewCatalog(cfg config.Config, log *zap.Logger) (*Catalog, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	for _, path := range cfg.PlanConfigPaths {
		v.AddConfigPath(path)
	}

	catalog := &Catalog{log: log.Named("plan.catalog")}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		if err := catalog.store(DefaultPlans(), 1); err != nil {
			return nil, err
		}
		catalog.log.Info("plan catalog loaded from defaults", zap.Int("plans", len(DefaultPlans())))
		return catalog, nil
	}

	plans, err := unmarshalPlans(v)
	if err != nil {
		return nil, err
	}
	if err := catalog.store(plans, 1); err != nil {
		return nil, err
	}
	catalog.log.Info("plan catalog loaded", zap.String("file", v.ConfigFileUsed()), zap.Int("plans", len(plans)))

	v.OnConfigChange(func(e fsnotify.Event) {
		reloaded, err := unmarshalPlans(v)
		if err != nil {
			catalog.log.Error("plan catalog reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		next := catalog.current.Load().(snapshot).version + 1
		if err := catalog.store(reloaded, next); err != nil {
			catalog.log.Error("plan catalog reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		catalog.log.Info("plan catalog reloaded", zap.Int64("version", next), zap.Int("plans", len(reloaded)))
	})
	v.WatchConfig()

	return catalog, nil
}

// NewStaticCatalog builds a catalog from a fixed plan list. Used by tests
// and by embedders that manage plan configuration themselves.
func NewStaticCatalog(plans []Plan) (*Catalog, error) {
	catalog := &Catalog{log: zap.NewNop()}
	if err := catalog.store(plans, 1); err != nil {
		return nil, err
	}
	return catalog, nil
}

func (c *Catalog) store(plans []Plan, version int64) error {
	if err := validatePlans(plans); err != nil {
		return err
	}
	indexed := make(map[string]Plan, len(plans))
	ordered := make([]Plan, len(plans))
	copy(ordered, plans)
	for _, p := range plans {
		indexed[p.ID] = p
	}
	c.current.Store(snapshot{plans: indexed, ordered: ordered, version: version})
	return nil
}

// GetPlan returns the plan with the given id.
func (c *Catalog) GetPlan(id string) (Plan, error) {
	snap := c.current.Load().(snapshot)
	p, ok := snap.plans[strings.TrimSpace(id)]
	if !ok {
		return Plan{}, ErrPlanNotFound
	}
	return p, nil
}

// ListPlans returns all plans in catalog order.
func (c *Catalog) ListPlans() []Plan {
	snap := c.current.Load().(snapshot)
	out := make([]Plan, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// Version returns the catalog generation, incremented on each reload.
func (c *Catalog) Version() int64 {
	return c.current.Load().(snapshot).version
}

func unmarshalPlans(v *viper.Viper) ([]Plan, error) {
	var plans []Plan
	if err := v.UnmarshalKey("plans", &plans); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}
	return plans, nil
}

func validatePlans(plans []Plan) error {
	if len(plans) == 0 {
		return ErrInvalidCatalog
	}
	seen := make(map[string]struct{}, len(plans))
	for _, p := range plans {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return ErrInvalidCatalog
		}
		if _, dup := seen[id]; dup {
			return ErrDuplicatePlanID
		}
		seen[id] = struct{}{}
		if p.Price < 0 {
			return fmt.Errorf("%w: plan %s has negative price", ErrInvalidCatalog, id)
		}
		if strings.TrimSpace(p.Currency) == "" {
			return fmt.Errorf("%w: plan %s missing currency", ErrInvalidCatalog, id)
		}
		switch p.Interval {
		case IntervalMonthly, IntervalYearly:
		default:
			return fmt.Errorf("%w: plan %s has interval %q", ErrInvalidCatalog, id, p.Interval)
		}
	}
	return nil
}
